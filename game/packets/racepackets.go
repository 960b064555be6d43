package gamepackets

import (
	"fmt"

	"kartlobby/game/vote"
)

type KartRefusalReason uint8

const (
	KartTaken KartRefusalReason = iota
	KartNotAllowed
	KartSelectionNotOpen
)

func (r KartRefusalReason) String() string {
	switch r {
	case KartTaken:
		return "Taken"
	case KartNotAllowed:
		return "NotAllowed"
	case KartSelectionNotOpen:
		return "SelectionNotOpen"
	default:
		return fmt.Sprintf("Unknown(%d)", r)
	}
}

type RequestStartSelectionPacket struct{}

func (p RequestStartSelectionPacket) Type() PacketType { return RequestStartSelection }
func (p RequestStartSelectionPacket) Marshal(w *Writer) {}
func (p RequestStartSelectionPacket) DispatchServer(h ServerHandler, from string) {
	h.OnRequestStartSelection(from, p)
}

// StartSelectionPacket opens kart and track selection with the sets every
// connected host can use. The defaults fill fields nobody votes on.
type StartSelectionPacket struct {
	Karts        []string
	Tracks       []string
	DefaultMode  vote.Mode
	DefaultTrack vote.Track
}

func (p StartSelectionPacket) Type() PacketType { return StartSelection }

func (p StartSelectionPacket) Marshal(w *Writer) {
	w.Strings(p.Karts)
	w.Strings(p.Tracks)
	w.U8(uint8(p.DefaultMode.Major))
	w.U8(uint8(p.DefaultMode.Minor))
	w.U8(p.DefaultMode.RaceCount)
	w.String(p.DefaultTrack.Name)
	w.Bool(p.DefaultTrack.Reversed)
	w.U8(p.DefaultTrack.Laps)
}

func (p StartSelectionPacket) DispatchClient(h ClientHandler) { h.OnStartSelection(p) }

func readStartSelection(r *Reader) Packet {
	p := StartSelectionPacket{Karts: r.Strings(), Tracks: r.Strings()}
	p.DefaultMode = vote.Mode{
		Major:     vote.MajorMode(r.U8()),
		Minor:     vote.MinorMode(r.U8()),
		RaceCount: r.U8(),
	}
	p.DefaultTrack = vote.Track{Name: r.String(), Reversed: r.Bool(), Laps: r.U8()}
	return p
}

type KartSelectionRequestedPacket struct {
	PlayerID uint8
	Kart     string
}

func (p KartSelectionRequestedPacket) Type() PacketType { return KartSelectionRequested }

func (p KartSelectionRequestedPacket) Marshal(w *Writer) {
	w.U8(p.PlayerID)
	w.String(p.Kart)
}

func (p KartSelectionRequestedPacket) DispatchServer(h ServerHandler, from string) {
	h.OnKartSelectionRequested(from, p)
}

func readKartSelectionRequested(r *Reader) Packet {
	return KartSelectionRequestedPacket{PlayerID: r.U8(), Kart: r.String()}
}

type KartSelectionUpdatePacket struct {
	PlayerID uint8
	Kart     string
}

func (p KartSelectionUpdatePacket) Type() PacketType { return KartSelectionUpdate }

func (p KartSelectionUpdatePacket) Marshal(w *Writer) {
	w.U8(p.PlayerID)
	w.String(p.Kart)
}

func (p KartSelectionUpdatePacket) DispatchClient(h ClientHandler) { h.OnKartSelectionUpdate(p) }

func readKartSelectionUpdate(r *Reader) Packet {
	return KartSelectionUpdatePacket{PlayerID: r.U8(), Kart: r.String()}
}

type KartSelectionRefusedPacket struct {
	PlayerID uint8
	Reason   KartRefusalReason
}

func (p KartSelectionRefusedPacket) Type() PacketType { return KartSelectionRefused }

func (p KartSelectionRefusedPacket) Marshal(w *Writer) {
	w.U8(p.PlayerID)
	w.U8(uint8(p.Reason))
}

func (p KartSelectionRefusedPacket) DispatchClient(h ClientHandler) { h.OnKartSelectionRefused(p) }

func readKartSelectionRefused(r *Reader) Packet {
	return KartSelectionRefusedPacket{PlayerID: r.U8(), Reason: KartRefusalReason(r.U8())}
}

type LoadWorldPacket struct{}

func (p LoadWorldPacket) Type() PacketType { return LoadWorld }
func (p LoadWorldPacket) Marshal(w *Writer) {}
func (p LoadWorldPacket) DispatchClient(h ClientHandler) { h.OnLoadWorld(p) }

// ClientLoadedWorldPacket lists the local players of the sending host whose
// world is ready.
type ClientLoadedWorldPacket struct {
	PlayerIDs []uint8
}

func (p ClientLoadedWorldPacket) Type() PacketType { return ClientLoadedWorld }

func (p ClientLoadedWorldPacket) Marshal(w *Writer) {
	w.IDs(p.PlayerIDs)
}

func (p ClientLoadedWorldPacket) DispatchServer(h ServerHandler, from string) {
	h.OnClientLoadedWorld(from, p)
}

func readClientLoadedWorld(r *Reader) Packet {
	return ClientLoadedWorldPacket{PlayerIDs: r.IDs()}
}

type StartRacePacket struct{}

func (p StartRacePacket) Type() PacketType { return StartRace }
func (p StartRacePacket) Marshal(w *Writer) {}
func (p StartRacePacket) DispatchClient(h ClientHandler) { h.OnStartRace(p) }

type StartedRacePacket struct{}

func (p StartedRacePacket) Type() PacketType { return StartedRace }
func (p StartedRacePacket) Marshal(w *Writer) {}
func (p StartedRacePacket) DispatchServer(h ServerHandler, from string) {
	h.OnStartedRace(from, p)
}

// RaceFinishedPacket carries the final ranking as kart ids, winner first.
type RaceFinishedPacket struct {
	Order []uint8
}

func (p RaceFinishedPacket) Type() PacketType { return RaceFinished }

func (p RaceFinishedPacket) Marshal(w *Writer) {
	w.IDs(p.Order)
}

func (p RaceFinishedPacket) DispatchClient(h ClientHandler) { h.OnRaceFinished(p) }

func readRaceFinished(r *Reader) Packet {
	return RaceFinishedPacket{Order: r.IDs()}
}

type RaceFinishedAckPacket struct{}

func (p RaceFinishedAckPacket) Type() PacketType { return RaceFinishedAck }
func (p RaceFinishedAckPacket) Marshal(w *Writer) {}
func (p RaceFinishedAckPacket) DispatchServer(h ServerHandler, from string) {
	h.OnRaceFinishedAck(from, p)
}

type ExitResultScreenPacket struct{}

func (p ExitResultScreenPacket) Type() PacketType { return ExitResultScreen }
func (p ExitResultScreenPacket) Marshal(w *Writer) {}
func (p ExitResultScreenPacket) DispatchClient(h ClientHandler) { h.OnExitResultScreen(p) }
