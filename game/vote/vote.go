package vote

import "fmt"

type MajorMode uint8

const (
	MajorSingle MajorMode = iota
	MajorGrandPrix
)

func (m MajorMode) String() string {
	switch m {
	case MajorSingle:
		return "Single"
	case MajorGrandPrix:
		return "GrandPrix"
	default:
		return fmt.Sprintf("Unknown(%d)", m)
	}
}

type MinorMode uint8

const (
	MinorNormal MinorMode = iota
	MinorTimeTrial
	MinorFollowTheLeader
	MinorThreeStrikes
	MinorSoccer
)

func (m MinorMode) String() string {
	switch m {
	case MinorNormal:
		return "Normal"
	case MinorTimeTrial:
		return "TimeTrial"
	case MinorFollowTheLeader:
		return "FollowTheLeader"
	case MinorThreeStrikes:
		return "ThreeStrikes"
	case MinorSoccer:
		return "Soccer"
	default:
		return fmt.Sprintf("Unknown(%d)", m)
	}
}

// TrackVote is one player's vote for a single race slot. A nil field means
// the player has not voted on it.
type TrackVote struct {
	Track    *string
	Reversed *bool
	Laps     *uint8
}

// RaceVote holds everything a single player has voted for.
type RaceVote struct {
	Major     *MajorMode
	Minor     *MinorMode
	RaceCount *uint8
	Tracks    []TrackVote
}

// Mode is the resolved major/minor/race count triple.
type Mode struct {
	Major     MajorMode
	Minor     MinorMode
	RaceCount uint8
}

// Track is the resolved setting of one race slot.
type Track struct {
	Name     string
	Reversed bool
	Laps     uint8
}

// Slots is the number of races the mode implies: the race count for a
// Grand Prix, one otherwise.
func (m Mode) Slots() int {
	if m.Major == MajorGrandPrix && m.RaceCount > 0 {
		return int(m.RaceCount)
	}
	return 1
}
