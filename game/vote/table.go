package vote

import "sort"

// FieldKind names one votable field.
type FieldKind uint8

const (
	FieldMajor FieldKind = iota
	FieldMinor
	FieldRaceCount
	FieldTrack
	FieldReversed
	FieldLaps
)

type fieldKey struct {
	kind FieldKind
	slot int
}

// Ballot points at one recorded field of one player's vote.
type Ballot struct {
	PlayerID uint8
	Kind     FieldKind
	Slot     uint8
}

// Table maps player ids to their votes. It remembers, per field, the order
// in which each player's current value was first accepted; that order is
// what breaks ties during resolution.
//
// Values outlive a round. The round only tracks who has voted on a track
// since the last NewRound.
type Table struct {
	votes map[uint8]*RaceVote
	seq   map[uint8]map[fieldKey]uint64
	next  uint64
	round map[uint8]bool
}

func NewTable() *Table {
	return &Table{
		votes: make(map[uint8]*RaceVote),
		seq:   make(map[uint8]map[fieldKey]uint64),
		round: make(map[uint8]bool),
	}
}

// NewRound forgets who voted on a track this round. Recorded values and
// their acceptance order stay.
func (t *Table) NewRound() {
	clear(t.round)
}

// VotedTrackThisRound reports whether the player sent a track vote since
// the last NewRound.
func (t *Table) VotedTrackThisRound(playerID uint8) bool {
	return t.round[playerID]
}

func (t *Table) vote(playerID uint8) *RaceVote {
	v, ok := t.votes[playerID]
	if !ok {
		v = &RaceVote{}
		t.votes[playerID] = v
		t.seq[playerID] = make(map[fieldKey]uint64)
	}
	return v
}

// touch stamps the field with a new sequence number when the value changed.
// Re-sending an identical value keeps the original position.
func (t *Table) touch(playerID uint8, key fieldKey, changed bool) {
	if _, ok := t.seq[playerID][key]; ok && !changed {
		return
	}
	t.next++
	t.seq[playerID][key] = t.next
}

func (t *Table) trackVote(playerID uint8, slot int) *TrackVote {
	v := t.vote(playerID)
	for len(v.Tracks) <= slot {
		v.Tracks = append(v.Tracks, TrackVote{})
	}
	return &v.Tracks[slot]
}

func (t *Table) SetMajor(playerID uint8, major MajorMode) {
	v := t.vote(playerID)
	changed := v.Major == nil || *v.Major != major
	v.Major = &major
	t.touch(playerID, fieldKey{kind: FieldMajor}, changed)
}

func (t *Table) SetMinor(playerID uint8, minor MinorMode) {
	v := t.vote(playerID)
	changed := v.Minor == nil || *v.Minor != minor
	v.Minor = &minor
	t.touch(playerID, fieldKey{kind: FieldMinor}, changed)
}

func (t *Table) SetRaceCount(playerID uint8, count uint8) {
	v := t.vote(playerID)
	changed := v.RaceCount == nil || *v.RaceCount != count
	v.RaceCount = &count
	t.touch(playerID, fieldKey{kind: FieldRaceCount}, changed)
}

func (t *Table) SetTrack(playerID uint8, track string, slot uint8) {
	tv := t.trackVote(playerID, int(slot))
	changed := tv.Track == nil || *tv.Track != track
	tv.Track = &track
	t.touch(playerID, fieldKey{kind: FieldTrack, slot: int(slot)}, changed)
	t.round[playerID] = true
}

func (t *Table) SetReversed(playerID uint8, reversed bool, slot uint8) {
	tv := t.trackVote(playerID, int(slot))
	changed := tv.Reversed == nil || *tv.Reversed != reversed
	tv.Reversed = &reversed
	t.touch(playerID, fieldKey{kind: FieldReversed, slot: int(slot)}, changed)
}

func (t *Table) SetLaps(playerID uint8, laps uint8, slot uint8) {
	tv := t.trackVote(playerID, int(slot))
	changed := tv.Laps == nil || *tv.Laps != laps
	tv.Laps = &laps
	t.touch(playerID, fieldKey{kind: FieldLaps, slot: int(slot)}, changed)
}

// Get returns a copy of the player's vote.
func (t *Table) Get(playerID uint8) (RaceVote, bool) {
	v, ok := t.votes[playerID]
	if !ok {
		return RaceVote{}, false
	}
	cpy := *v
	cpy.Tracks = append([]TrackVote(nil), v.Tracks...)
	return cpy, true
}

// TrackVoters counts the players that have voted for at least one track.
func (t *Table) TrackVoters() int {
	n := 0
	for _, v := range t.votes {
		for _, tv := range v.Tracks {
			if tv.Track != nil {
				n++
				break
			}
		}
	}
	return n
}

// HasVotedTrack reports whether the player has a track vote in any slot.
func (t *Table) HasVotedTrack(playerID uint8) bool {
	v, ok := t.votes[playerID]
	if !ok {
		return false
	}
	for _, tv := range v.Tracks {
		if tv.Track != nil {
			return true
		}
	}
	return false
}

type entry[T comparable] struct {
	seq   uint64
	value T
}

// collect walks every player's vote and gathers the values of one field in
// the order they were accepted.
func collect[T comparable](t *Table, key fieldKey, get func(*RaceVote) *T) []entry[T] {
	var out []entry[T]
	for playerID, v := range t.votes {
		p := get(v)
		if p == nil {
			continue
		}
		out = append(out, entry[T]{seq: t.seq[playerID][key], value: *p})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

func resolve[T comparable](entries []entry[T], def T) T {
	h := newHistogram[T]()
	for _, e := range entries {
		h.add(e.value)
	}
	if w, ok := h.winner(); ok {
		return w
	}
	return def
}

func slotField[T comparable](slot int, get func(*TrackVote) *T) func(*RaceVote) *T {
	return func(v *RaceVote) *T {
		if slot >= len(v.Tracks) {
			return nil
		}
		return get(&v.Tracks[slot])
	}
}

// ComputeRaceMode resolves major mode, minor mode and race count
// independently. Fields nobody voted on resolve to the matching default.
func (t *Table) ComputeRaceMode(def Mode) Mode {
	return Mode{
		Major: resolve(collect(t, fieldKey{kind: FieldMajor},
			func(v *RaceVote) *MajorMode { return v.Major }), def.Major),
		Minor: resolve(collect(t, fieldKey{kind: FieldMinor},
			func(v *RaceVote) *MinorMode { return v.Minor }), def.Minor),
		RaceCount: resolve(collect(t, fieldKey{kind: FieldRaceCount},
			func(v *RaceVote) *uint8 { return v.RaceCount }), def.RaceCount),
	}
}

// ComputeTracks resolves every race slot independently. def supplies the
// fallback for slots or fields without any vote.
func (t *Table) ComputeTracks(slots int, def Track) []Track {
	tracks := make([]Track, slots)
	for slot := 0; slot < slots; slot++ {
		tracks[slot] = Track{
			Name: resolve(collect(t, fieldKey{kind: FieldTrack, slot: slot},
				slotField(slot, func(tv *TrackVote) *string { return tv.Track })), def.Name),
			Reversed: resolve(collect(t, fieldKey{kind: FieldReversed, slot: slot},
				slotField(slot, func(tv *TrackVote) *bool { return tv.Reversed })), def.Reversed),
			Laps: resolve(collect(t, fieldKey{kind: FieldLaps, slot: slot},
				slotField(slot, func(tv *TrackVote) *uint8 { return tv.Laps })), def.Laps),
		}
	}
	return tracks
}

// ComputeNextTrack resolves the first race slot.
func (t *Table) ComputeNextTrack(def Track) Track {
	return t.ComputeTracks(1, def)[0]
}

// Voters lists the ids of players with at least one recorded vote, ascending.
func (t *Table) Voters() []uint8 {
	ids := make([]uint8, 0, len(t.votes))
	for id := range t.votes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// History lists every recorded field in the order its current value was
// accepted. Replaying it into an empty table gives the same resolution,
// ties included.
func (t *Table) History() []Ballot {
	type stamped struct {
		ballot Ballot
		seq    uint64
	}
	var all []stamped
	for playerID, fields := range t.seq {
		for key, seq := range fields {
			all = append(all, stamped{
				ballot: Ballot{PlayerID: playerID, Kind: key.kind, Slot: uint8(key.slot)},
				seq:    seq,
			})
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].seq < all[j].seq })

	out := make([]Ballot, len(all))
	for i, s := range all {
		out[i] = s.ballot
	}
	return out
}
