package gamepackets

import "kartlobby/game/vote"

// VotePacket is shared by the client request and the server echo. Both
// directions carry the same shape.
type VotePacket interface {
	ServerPacket
	ClientPacket
	Voter() uint8
	Apply(t *vote.Table)
}

var voteDecoders = map[PacketType]func(r *Reader) Packet{
	VoteMajor:     readVoteMajor,
	VoteRaceCount: readVoteRaceCount,
	VoteMinor:     readVoteMinor,
	VoteTrack:     readVoteTrack,
	VoteReversed:  readVoteReversed,
	VoteLaps:      readVoteLaps,
}

// VoteHistory turns a vote table back into the echoes that built it, in
// acceptance order.
func VoteHistory(t *vote.Table) []VotePacket {
	var out []VotePacket
	for _, b := range t.History() {
		v, _ := t.Get(b.PlayerID)
		switch b.Kind {
		case vote.FieldMajor:
			out = append(out, VoteMajorPacket{PlayerID: b.PlayerID, Major: *v.Major})
		case vote.FieldMinor:
			out = append(out, VoteMinorPacket{PlayerID: b.PlayerID, Minor: *v.Minor})
		case vote.FieldRaceCount:
			out = append(out, VoteRaceCountPacket{PlayerID: b.PlayerID, Count: *v.RaceCount})
		case vote.FieldTrack:
			out = append(out, VoteTrackPacket{PlayerID: b.PlayerID, Track: *v.Tracks[b.Slot].Track, Index: b.Slot})
		case vote.FieldReversed:
			out = append(out, VoteReversedPacket{PlayerID: b.PlayerID, Reversed: *v.Tracks[b.Slot].Reversed, Index: b.Slot})
		case vote.FieldLaps:
			out = append(out, VoteLapsPacket{PlayerID: b.PlayerID, Laps: *v.Tracks[b.Slot].Laps, Index: b.Slot})
		}
	}
	return out
}

type VoteMajorPacket struct {
	PlayerID uint8
	Major    vote.MajorMode
}

func (p VoteMajorPacket) Type() PacketType { return VoteMajor }
func (p VoteMajorPacket) Voter() uint8 { return p.PlayerID }
func (p VoteMajorPacket) Apply(t *vote.Table) { t.SetMajor(p.PlayerID, p.Major) }
func (p VoteMajorPacket) DispatchServer(h ServerHandler, from string) { h.OnVote(from, p) }
func (p VoteMajorPacket) DispatchClient(h ClientHandler) { h.OnVote(p) }

func (p VoteMajorPacket) Marshal(w *Writer) {
	w.U8(p.PlayerID)
	w.U8(uint8(p.Major))
}

func readVoteMajor(r *Reader) Packet {
	return VoteMajorPacket{PlayerID: r.U8(), Major: vote.MajorMode(r.U8())}
}

type VoteRaceCountPacket struct {
	PlayerID uint8
	Count    uint8
}

func (p VoteRaceCountPacket) Type() PacketType { return VoteRaceCount }
func (p VoteRaceCountPacket) Voter() uint8 { return p.PlayerID }
func (p VoteRaceCountPacket) Apply(t *vote.Table) { t.SetRaceCount(p.PlayerID, p.Count) }
func (p VoteRaceCountPacket) DispatchServer(h ServerHandler, from string) { h.OnVote(from, p) }
func (p VoteRaceCountPacket) DispatchClient(h ClientHandler) { h.OnVote(p) }

func (p VoteRaceCountPacket) Marshal(w *Writer) {
	w.U8(p.PlayerID)
	w.U8(p.Count)
}

func readVoteRaceCount(r *Reader) Packet {
	return VoteRaceCountPacket{PlayerID: r.U8(), Count: r.U8()}
}

type VoteMinorPacket struct {
	PlayerID uint8
	Minor    vote.MinorMode
}

func (p VoteMinorPacket) Type() PacketType { return VoteMinor }
func (p VoteMinorPacket) Voter() uint8 { return p.PlayerID }
func (p VoteMinorPacket) Apply(t *vote.Table) { t.SetMinor(p.PlayerID, p.Minor) }
func (p VoteMinorPacket) DispatchServer(h ServerHandler, from string) { h.OnVote(from, p) }
func (p VoteMinorPacket) DispatchClient(h ClientHandler) { h.OnVote(p) }

func (p VoteMinorPacket) Marshal(w *Writer) {
	w.U8(p.PlayerID)
	w.U8(uint8(p.Minor))
}

func readVoteMinor(r *Reader) Packet {
	return VoteMinorPacket{PlayerID: r.U8(), Minor: vote.MinorMode(r.U8())}
}

type VoteTrackPacket struct {
	PlayerID uint8
	Track    string
	Index    uint8
}

func (p VoteTrackPacket) Type() PacketType { return VoteTrack }
func (p VoteTrackPacket) Voter() uint8 { return p.PlayerID }
func (p VoteTrackPacket) Apply(t *vote.Table) { t.SetTrack(p.PlayerID, p.Track, p.Index) }
func (p VoteTrackPacket) DispatchServer(h ServerHandler, from string) { h.OnVote(from, p) }
func (p VoteTrackPacket) DispatchClient(h ClientHandler) { h.OnVote(p) }

func (p VoteTrackPacket) Marshal(w *Writer) {
	w.U8(p.PlayerID)
	w.String(p.Track)
	w.U8(p.Index)
}

func readVoteTrack(r *Reader) Packet {
	return VoteTrackPacket{PlayerID: r.U8(), Track: r.String(), Index: r.U8()}
}

type VoteReversedPacket struct {
	PlayerID uint8
	Reversed bool
	Index    uint8
}

func (p VoteReversedPacket) Type() PacketType { return VoteReversed }
func (p VoteReversedPacket) Voter() uint8 { return p.PlayerID }
func (p VoteReversedPacket) Apply(t *vote.Table) { t.SetReversed(p.PlayerID, p.Reversed, p.Index) }
func (p VoteReversedPacket) DispatchServer(h ServerHandler, from string) { h.OnVote(from, p) }
func (p VoteReversedPacket) DispatchClient(h ClientHandler) { h.OnVote(p) }

func (p VoteReversedPacket) Marshal(w *Writer) {
	w.U8(p.PlayerID)
	w.Bool(p.Reversed)
	w.U8(p.Index)
}

func readVoteReversed(r *Reader) Packet {
	return VoteReversedPacket{PlayerID: r.U8(), Reversed: r.Bool(), Index: r.U8()}
}

type VoteLapsPacket struct {
	PlayerID uint8
	Laps     uint8
	Index    uint8
}

func (p VoteLapsPacket) Type() PacketType { return VoteLaps }
func (p VoteLapsPacket) Voter() uint8 { return p.PlayerID }
func (p VoteLapsPacket) Apply(t *vote.Table) { t.SetLaps(p.PlayerID, p.Laps, p.Index) }
func (p VoteLapsPacket) DispatchServer(h ServerHandler, from string) { h.OnVote(from, p) }
func (p VoteLapsPacket) DispatchClient(h ClientHandler) { h.OnVote(p) }

func (p VoteLapsPacket) Marshal(w *Writer) {
	w.U8(p.PlayerID)
	w.U8(p.Laps)
	w.U8(p.Index)
}

func readVoteLaps(r *Reader) Packet {
	return VoteLapsPacket{PlayerID: r.U8(), Laps: r.U8(), Index: r.U8()}
}
