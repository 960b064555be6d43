package game

import (
	"github.com/pkg/errors"

	gamepackets "kartlobby/game/packets"
)

// Peer is one transport connection as the lobby sees it. Reliable sends are
// ordered; unreliable sends may be dropped or reordered.
type Peer interface {
	ID() string
	SendReliable(data []byte) error
	SendUnreliable(data []byte) error
	Close() error
}

func send(peer Peer, token uint32, packet gamepackets.Packet) error {
	data, err := gamepackets.Encode(token, packet)
	if err != nil {
		return err
	}
	return errors.Wrapf(peer.SendReliable(data), "failed to send %s packet", packet.Type())
}

func sendUnreliable(peer Peer, token uint32, packet gamepackets.Packet) error {
	data, err := gamepackets.Encode(token, packet)
	if err != nil {
		return err
	}
	return errors.Wrapf(peer.SendUnreliable(data), "failed to send %s packet", packet.Type())
}
