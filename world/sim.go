package world

import (
	"context"
	"hash/fnv"
	"math/rand"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

var ErrNoTrack = errors.New("no track selected")

// SimBuilder builds headless worlds where every kart finishes after a fixed
// race length plus a per-kart spread.
type SimBuilder struct {
	LoadDelay  time.Duration
	RaceLength time.Duration
	Spread     time.Duration
}

func (b SimBuilder) BuildWorld(ctx context.Context, s Setup) (World, error) {
	if len(s.Tracks) == 0 || s.Tracks[0].Name == "" {
		return nil, ErrNoTrack
	}
	if b.LoadDelay > 0 {
		select {
		case <-ctx.Done():
			return nil, errors.Wrap(ctx.Err(), "world loading cancelled")
		case <-time.After(b.LoadDelay):
		}
	}

	h := fnv.New64a()
	h.Write([]byte(s.Tracks[0].Name))
	rng := rand.New(rand.NewSource(int64(h.Sum64())))

	sim := &Sim{
		raceLength: b.RaceLength * time.Duration(max(1, int(s.Tracks[0].Laps))),
		times:      make(map[uint8]time.Duration),
		positions:  make(map[uint8]int),
	}
	for _, p := range s.Players {
		sim.karts = append(sim.karts, p.GlobalPlayerID)
		var extra time.Duration
		if b.Spread > 0 {
			extra = time.Duration(rng.Int63n(int64(b.Spread)))
		}
		sim.times[p.GlobalPlayerID] = sim.raceLength + extra
	}
	log.WithFields(log.Fields{"track": s.Tracks[0].Name, "karts": len(sim.karts)}).Info("Simulated world loaded")
	return sim, nil
}

// Sim is a world without physics. It is safe for concurrent use.
type Sim struct {
	mu         sync.Mutex
	karts      []uint8
	times      map[uint8]time.Duration
	raceLength time.Duration
	startedAt  time.Time
	frozenAt   time.Time
	positions  map[uint8]int
}

func (s *Sim) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startedAt = time.Now()
}

// Freeze stops the race clock. A frozen race never ends on its own.
func (s *Sim) Freeze() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frozenAt.IsZero() {
		s.frozenAt = time.Now()
	}
}

func (s *Sim) elapsed() time.Duration {
	if s.startedAt.IsZero() {
		return 0
	}
	if !s.frozenAt.IsZero() {
		return max(0, s.frozenAt.Sub(s.startedAt))
	}
	return time.Since(s.startedAt)
}

func (s *Sim) IsRaceOver() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startedAt.IsZero() {
		return false
	}
	var longest time.Duration
	for _, t := range s.times {
		longest = max(longest, t)
	}
	return s.elapsed() >= longest
}

func (s *Sim) Karts() []uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uint8(nil), s.karts...)
}

// KartRaceTime is the kart's finish time. Once frozen, karts still on the
// track report the frozen clock, so they rank behind every finisher.
func (s *Sim) KartRaceTime(kart uint8) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.times[kart]
	if s.frozenAt.IsZero() {
		return t
	}
	if e := s.elapsed(); t > e {
		return e + time.Nanosecond
	}
	return t
}

// SetKartPositions records the final ranking, first entry first.
func (s *Sim) SetKartPositions(order []uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions = make(map[uint8]int, len(order))
	for i, kart := range order {
		s.positions[kart] = i + 1
	}
}

func (s *Sim) Positions() map[uint8]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[uint8]int, len(s.positions))
	for k, v := range s.positions {
		out[k] = v
	}
	return out
}
