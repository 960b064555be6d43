package world

import (
	"context"
	"time"

	"kartlobby/game/setup"
	"kartlobby/game/vote"
)

// Setup is everything needed to build a race world once voting is over.
type Setup struct {
	Mode    vote.Mode
	Tracks  []vote.Track
	Players []setup.PlayerProfile
}

// World is the playable race as seen by the lobby. Kart ids are the global
// player ids of the drivers.
type World interface {
	Start()
	Freeze()
	IsRaceOver() bool
	Karts() []uint8
	KartRaceTime(kart uint8) time.Duration
	SetKartPositions(order []uint8)
	Positions() map[uint8]int
}

// Builder constructs a world. It may block for as long as loading takes.
type Builder interface {
	BuildWorld(ctx context.Context, s Setup) (World, error)
}
