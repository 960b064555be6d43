package config

import (
	"kartlobby/game/vote"
)

var majors = map[string]vote.MajorMode{
	"single":    vote.MajorSingle,
	"grandprix": vote.MajorGrandPrix,
}

var minors = map[string]vote.MinorMode{
	"normal":          vote.MinorNormal,
	"timetrial":       vote.MinorTimeTrial,
	"followtheleader": vote.MinorFollowTheLeader,
	"threestrikes":    vote.MinorThreeStrikes,
	"soccer":          vote.MinorSoccer,
}

// Mode is the race mode used when nobody voted.
func (l Lobby) Mode() vote.Mode {
	return vote.Mode{Major: majors[l.Major], Minor: minors[l.Minor], RaceCount: l.RaceCount}
}

// DefaultTrack is the track used for a slot nobody voted on. An unset
// track falls back to the first one the content catalogue offers.
func (l Lobby) DefaultTrack(first string) vote.Track {
	name := l.Track
	if name == "" {
		name = first
	}
	return vote.Track{Name: name, Laps: l.Laps}
}
