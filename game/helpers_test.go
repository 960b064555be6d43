package game

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	gamepackets "kartlobby/game/packets"
	"kartlobby/game/vote"
	"kartlobby/world"
)

const waitFor = 2 * time.Second

var errPipeClosed = errors.New("pipe closed")

// link joins a server lobby and a client lobby with two in-memory pipe ends.
type link struct {
	id     string
	closed chan struct{}
	once   sync.Once
	server *ServerLobby
	client *ClientLobby
}

type pipeEnd struct {
	link *link
	out  chan []byte
}

func (p *pipeEnd) ID() string { return p.link.id }

func (p *pipeEnd) SendReliable(data []byte) error {
	select {
	case <-p.link.closed:
		return errPipeClosed
	default:
	}
	p.out <- slices.Clone(data)
	return nil
}

func (p *pipeEnd) SendUnreliable(data []byte) error {
	return p.SendReliable(data)
}

func (p *pipeEnd) Close() error {
	p.link.close()
	return nil
}

func (k *link) close() {
	k.once.Do(func() {
		close(k.closed)
		go func() {
			k.server.Disconnect(k.id)
			k.client.Disconnected()
		}()
	})
}

func pump(ctx context.Context, ch <-chan []byte, deliver func([]byte)) {
	for {
		select {
		case data := <-ch:
			deliver(data)
		case <-ctx.Done():
			return
		}
	}
}

// connect starts a client and links it to the server.
func connect(t *testing.T, ctx context.Context, server *ServerLobby, id string, cfg ClientConfig, builder world.Builder) *ClientLobby {
	t.Helper()
	if cfg.Tick == 0 {
		cfg.Tick = 2 * time.Millisecond
	}
	if cfg.Karts == nil {
		cfg.Karts = []string{"tux", "gnu", "nolok"}
	}
	if cfg.Tracks == nil {
		cfg.Tracks = []string{"X", "Y", "Z"}
	}
	client := NewClientLobby(ctx, cfg, ClientDeps{Builder: builder})
	k := &link{id: id, closed: make(chan struct{}), server: server, client: client}
	toClient := &pipeEnd{link: k, out: make(chan []byte, 1024)}
	toServer := &pipeEnd{link: k, out: make(chan []byte, 1024)}
	go pump(ctx, toClient.out, client.Receive)
	go pump(ctx, toServer.out, func(data []byte) { server.Receive(id, data) })

	server.Connect(toClient)
	client.Link(toServer)
	return client
}

func players(names ...string) []gamepackets.LocalPlayer {
	out := make([]gamepackets.LocalPlayer, len(names))
	for i, n := range names {
		out[i] = gamepackets.LocalPlayer{Name: n}
	}
	return out
}

var (
	testMode  = vote.Mode{Major: vote.MajorSingle, Minor: vote.MinorNormal, RaceCount: 1}
	testTrack = vote.Track{Name: "Z", Laps: 3}
)

func testServerConfig() ServerConfig {
	return ServerConfig{
		Name:            "test",
		MaxPlayers:      8,
		Karts:           []string{"tux", "gnu", "nolok"},
		Tracks:          []string{"X", "Y", "Z"},
		DefaultMode:     testMode,
		DefaultTrack:    testTrack,
		Tick:            2 * time.Millisecond,
		ResultTimeout:   time.Minute,
		JitterTolerance: time.Millisecond,
	}
}

func waitServer(t *testing.T, s *ServerLobby, cond func(ServerView) bool) ServerView {
	t.Helper()
	var last ServerView
	require.Eventually(t, func() bool {
		v, err := s.View(context.Background())
		if err != nil {
			return false
		}
		last = v
		return cond(v)
	}, waitFor, 2*time.Millisecond, "server never reached expected view")
	return last
}

func waitClient(t *testing.T, c *ClientLobby, cond func(ClientView) bool) ClientView {
	t.Helper()
	var last ClientView
	require.Eventually(t, func() bool {
		v, err := c.View(context.Background())
		if err != nil {
			return false
		}
		last = v
		return cond(v)
	}, waitFor, 2*time.Millisecond, "client never reached expected view")
	return last
}

func serverIn(states ...ServerState) func(ServerView) bool {
	return func(v ServerView) bool { return slices.Contains(states, v.State) }
}

func clientIn(states ...ClientState) func(ClientView) bool {
	return func(v ClientView) bool { return slices.Contains(states, v.State) }
}

// fakeWorld is a world whose finish is flipped by the test.
type fakeWorld struct {
	mu        sync.Mutex
	karts     []uint8
	times     map[uint8]time.Duration
	over      *atomic.Bool
	started   bool
	frozen    bool
	positions map[uint8]int
}

func (w *fakeWorld) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.started = true
}

func (w *fakeWorld) Freeze() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.frozen = true
}

func (w *fakeWorld) IsRaceOver() bool { return w.over.Load() }

func (w *fakeWorld) Karts() []uint8 { return slices.Clone(w.karts) }

func (w *fakeWorld) KartRaceTime(kart uint8) time.Duration { return w.times[kart] }

func (w *fakeWorld) SetKartPositions(order []uint8) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.positions = make(map[uint8]int)
	for i, k := range order {
		w.positions[k] = i + 1
	}
}

func (w *fakeWorld) Positions() map[uint8]int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.positions
}

// fakeBuilder hands out fakeWorlds. A non-nil gate holds every build until
// it is closed.
type fakeBuilder struct {
	gate  chan struct{}
	times map[uint8]time.Duration
	over  atomic.Bool
	fail  error

	mu     sync.Mutex
	setups []world.Setup
}

func (b *fakeBuilder) BuildWorld(ctx context.Context, s world.Setup) (world.World, error) {
	if b.gate != nil {
		select {
		case <-b.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	b.mu.Lock()
	b.setups = append(b.setups, s)
	b.mu.Unlock()
	if b.fail != nil {
		return nil, b.fail
	}
	w := &fakeWorld{times: b.times, over: &b.over}
	for _, p := range s.Players {
		w.karts = append(w.karts, p.GlobalPlayerID)
	}
	return w, nil
}

func (b *fakeBuilder) built() []world.Setup {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.setups)
}
