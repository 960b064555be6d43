package gamepackets

import (
	"github.com/pkg/errors"
)

var ErrUnknownPacket = errors.New("unknown packet type")

// Frame is one packet on the wire: [type][token (4 bytes little-endian)][body].
type Frame struct {
	Token  uint32
	Packet Packet
}

// Encode serialises a packet with the connection token of its recipient.
func Encode(token uint32, p Packet) ([]byte, error) {
	w := &Writer{buf: make([]byte, 0, 16)}
	w.U8(uint8(p.Type()))
	w.U32(token)
	p.Marshal(w)
	if err := w.Err(); err != nil {
		return nil, errors.Wrapf(err, "failed to marshal %s packet", p.Type())
	}
	return w.Bytes(), nil
}

var decoders = map[PacketType]func(r *Reader) Packet{
	ConnectionRequested:    readConnectionRequested,
	ConnectionAccepted:     readConnectionAccepted,
	ConnectionRefused:      readConnectionRefused,
	NewPlayerConnected:     readNewPlayerConnected,
	PlayerDisconnected:     readPlayerDisconnected,
	RequestStartSelection:  func(*Reader) Packet { return RequestStartSelectionPacket{} },
	StartSelection:         readStartSelection,
	KartSelectionRequested: readKartSelectionRequested,
	KartSelectionUpdate:    readKartSelectionUpdate,
	KartSelectionRefused:   readKartSelectionRefused,
	VoteMajor:              readVoteMajor,
	VoteRaceCount:          readVoteRaceCount,
	VoteMinor:              readVoteMinor,
	VoteTrack:              readVoteTrack,
	VoteReversed:           readVoteReversed,
	VoteLaps:               readVoteLaps,
	LoadWorld:              func(*Reader) Packet { return LoadWorldPacket{} },
	ClientLoadedWorld:      readClientLoadedWorld,
	StartRace:              func(*Reader) Packet { return StartRacePacket{} },
	StartedRace:            func(*Reader) Packet { return StartedRacePacket{} },
	RaceFinished:           readRaceFinished,
	RaceFinishedAck:        func(*Reader) Packet { return RaceFinishedAckPacket{} },
	ExitResultScreen:       func(*Reader) Packet { return ExitResultScreenPacket{} },
	Ping:                   readPing,
	Pong:                   readPong,
}

// PacketFactory turns raw frames back into typed packets.
type PacketFactory struct{}

func (f *PacketFactory) FromBytes(data []byte) (Frame, error) {
	if len(data) == 0 {
		return Frame{}, errors.Wrap(ErrShortPacket, "empty packet")
	}

	packetType := PacketType(data[0])
	decode, ok := decoders[packetType]
	if !ok {
		return Frame{}, errors.Wrapf(ErrUnknownPacket, "type %d", data[0])
	}

	r := NewReader(data[1:])
	token := r.U32()
	p := decode(r)
	if err := r.Err(); err != nil {
		return Frame{}, errors.Wrapf(err, "failed to unmarshal %s packet", packetType)
	}
	return Frame{Token: token, Packet: p}, nil
}
