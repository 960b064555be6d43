package gamepackets

import (
	"fmt"

	"github.com/pkg/errors"

	"kartlobby/game/setup"
)

type RefusalReason uint8

const (
	RefusedTooManyPlayers RefusalReason = iota
	RefusedBanned
	RefusedBusy
	RefusedIncompatibleContent
)

func (r RefusalReason) String() string {
	switch r {
	case RefusedTooManyPlayers:
		return "TooManyPlayers"
	case RefusedBanned:
		return "Banned"
	case RefusedBusy:
		return "Busy"
	case RefusedIncompatibleContent:
		return "IncompatibleContent"
	default:
		return fmt.Sprintf("Unknown(%d)", r)
	}
}

// LocalPlayer is one player sitting at the connecting host.
type LocalPlayer struct {
	Name       string
	Difficulty setup.Difficulty
}

type ConnectionRequestedPacket struct {
	Players  []LocalPlayer
	Password string
	Karts    []string
	Tracks   []string
}

func (p ConnectionRequestedPacket) Type() PacketType {
	return ConnectionRequested
}

func (p ConnectionRequestedPacket) Marshal(w *Writer) {
	w.U8(uint8(len(p.Players)))
	for _, lp := range p.Players {
		w.String(lp.Name)
		w.U8(uint8(lp.Difficulty))
	}
	w.String(p.Password)
	w.Strings(p.Karts)
	w.Strings(p.Tracks)
}

func (p ConnectionRequestedPacket) DispatchServer(h ServerHandler, from string) {
	h.OnConnectionRequested(from, p)
}

func readConnectionRequested(r *Reader) Packet {
	var p ConnectionRequestedPacket
	n := int(r.U8())
	for i := 0; i < n && r.Err() == nil; i++ {
		p.Players = append(p.Players, LocalPlayer{
			Name:       r.String(),
			Difficulty: setup.Difficulty(r.U8()),
		})
	}
	p.Password = r.String()
	p.Karts = r.Strings()
	p.Tracks = r.Strings()
	return p
}

// ConnectionAcceptedPacket hands a new host its ids and token. Roster holds
// the players that were already connected and Votes the server's vote table
// in acceptance order.
type ConnectionAcceptedPacket struct {
	PlayerIDs  []uint8
	HostID     uint8
	Token      uint32
	Authorised bool
	Roster     []setup.PlayerProfile
	Votes      []VotePacket
}

func (p ConnectionAcceptedPacket) Type() PacketType {
	return ConnectionAccepted
}

func (p ConnectionAcceptedPacket) Marshal(w *Writer) {
	w.IDs(p.PlayerIDs)
	w.U8(p.HostID)
	w.U32(p.Token)
	w.Bool(p.Authorised)
	w.U8(uint8(len(p.Roster)))
	for _, pp := range p.Roster {
		writeProfile(w, pp)
	}
	w.U16(uint16(len(p.Votes)))
	for _, v := range p.Votes {
		w.U8(uint8(v.Type()))
		v.Marshal(w)
	}
}

func (p ConnectionAcceptedPacket) DispatchClient(h ClientHandler) {
	h.OnConnectionAccepted(p)
}

func readConnectionAccepted(r *Reader) Packet {
	var p ConnectionAcceptedPacket
	p.PlayerIDs = r.IDs()
	p.HostID = r.U8()
	p.Token = r.U32()
	p.Authorised = r.Bool()
	n := int(r.U8())
	for i := 0; i < n && r.Err() == nil; i++ {
		p.Roster = append(p.Roster, readProfile(r))
	}
	n = int(r.U16())
	for i := 0; i < n && r.Err() == nil; i++ {
		packetType := PacketType(r.U8())
		decode, ok := voteDecoders[packetType]
		if !ok {
			r.fail(errors.Wrapf(ErrUnknownPacket, "vote type %d", packetType))
			break
		}
		p.Votes = append(p.Votes, decode(r).(VotePacket))
	}
	return p
}

func writeProfile(w *Writer, pp setup.PlayerProfile) {
	w.U8(pp.GlobalPlayerID)
	w.U8(pp.HostID)
	w.String(pp.Name)
	w.String(pp.Kart)
	w.Bool(pp.LocalMaster)
	w.U8(uint8(pp.Difficulty))
}

func readProfile(r *Reader) setup.PlayerProfile {
	return setup.PlayerProfile{
		GlobalPlayerID: r.U8(),
		HostID:         r.U8(),
		Name:           r.String(),
		Kart:           r.String(),
		LocalMaster:    r.Bool(),
		Difficulty:     setup.Difficulty(r.U8()),
	}
}

type ConnectionRefusedPacket struct {
	Reason RefusalReason
}

func (p ConnectionRefusedPacket) Type() PacketType {
	return ConnectionRefused
}

func (p ConnectionRefusedPacket) Marshal(w *Writer) {
	w.U8(uint8(p.Reason))
}

func (p ConnectionRefusedPacket) DispatchClient(h ClientHandler) {
	h.OnConnectionRefused(p)
}

func readConnectionRefused(r *Reader) Packet {
	return ConnectionRefusedPacket{Reason: RefusalReason(r.U8())}
}

type NewPlayerConnectedPacket struct {
	Player setup.PlayerProfile
}

func (p NewPlayerConnectedPacket) Type() PacketType {
	return NewPlayerConnected
}

func (p NewPlayerConnectedPacket) Marshal(w *Writer) {
	writeProfile(w, p.Player)
}

func (p NewPlayerConnectedPacket) DispatchClient(h ClientHandler) {
	h.OnNewPlayerConnected(p)
}

func readNewPlayerConnected(r *Reader) Packet {
	return NewPlayerConnectedPacket{Player: readProfile(r)}
}

type PlayerDisconnectedPacket struct {
	PlayerID uint8
}

func (p PlayerDisconnectedPacket) Type() PacketType {
	return PlayerDisconnected
}

func (p PlayerDisconnectedPacket) Marshal(w *Writer) {
	w.U8(p.PlayerID)
}

func (p PlayerDisconnectedPacket) DispatchClient(h ClientHandler) {
	h.OnPlayerDisconnected(p)
}

func readPlayerDisconnected(r *Reader) Packet {
	return PlayerDisconnectedPacket{PlayerID: r.U8()}
}
