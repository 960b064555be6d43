package game

import (
	log "github.com/sirupsen/logrus"
)

// SubProtocol is a protocol that only lives while a race is running.
type SubProtocol interface {
	Name() string
	Stop()
}

// RaceProtocols creates the per-race sub-protocols.
type RaceProtocols func() []SubProtocol

type relay struct {
	name string
}

func (r *relay) Name() string { return r.name }

func (r *relay) Stop() {
	log.WithField("protocol", r.name).Debug("Race protocol stopped")
}

// DefaultRaceProtocols are the controller event, kart update and game
// event relays.
func DefaultRaceProtocols() []SubProtocol {
	protocols := []SubProtocol{
		&relay{name: "controller_events"},
		&relay{name: "kart_update"},
		&relay{name: "game_events"},
	}
	for _, p := range protocols {
		log.WithField("protocol", p.Name()).Debug("Race protocol started")
	}
	return protocols
}

func stopProtocols(protocols []SubProtocol) {
	for _, p := range protocols {
		p.Stop()
	}
}
