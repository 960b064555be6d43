package game

import (
	"github.com/pkg/errors"

	gamepackets "kartlobby/game/packets"
)

var (
	ErrLobbyClosed   = errors.New("lobby closed")
	ErrPublicAddress = errors.New("public address discovery failed")
	ErrRegistration  = errors.New("master server registration failed")
	ErrWorldLoad     = errors.New("world loading failed")
	ErrLeft          = errors.New("left the server")
	ErrDisconnected  = errors.New("connection to server lost")
)

// RefusedError is returned by a client whose connection was refused.
type RefusedError struct {
	Reason gamepackets.RefusalReason
}

func (e RefusedError) Error() string {
	return "connection refused: " + e.Reason.String()
}
