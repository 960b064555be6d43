package game

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	gamepackets "kartlobby/game/packets"
	"kartlobby/world"
)

type lobbyMsg interface{ isLobbyMsg() }

type packetReceived struct {
	peerID string
	data   []byte
}

type worldLoaded struct {
	match uint64
	world world.World
	err   error
}

type getView struct {
	reply chan any
}

type runFunc struct {
	f func()
}

func (packetReceived) isLobbyMsg() {}
func (worldLoaded) isLobbyMsg() {}
func (getView) isLobbyMsg() {}
func (runFunc) isLobbyMsg() {}

// lobby holds what the server and client protocols share: the inbox that
// serialises every state change, shutdown signalling and packet decoding.
type lobby struct {
	inbox   chan lobbyMsg
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	err     error
	factory gamepackets.PacketFactory
	log     *log.Entry
}

func newLobby(parent context.Context, role string) lobby {
	ctx, cancel := context.WithCancel(parent)
	return lobby{
		inbox:  make(chan lobbyMsg, 64),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		log:    log.WithField("role", role),
	}
}

// post hands a message to the loop. It gives up once the lobby is gone.
func (l *lobby) post(m lobbyMsg) bool {
	select {
	case l.inbox <- m:
		return true
	case <-l.ctx.Done():
		return false
	}
}

// async runs a blocking call off the loop and posts its outcome back.
func (l *lobby) async(f func(ctx context.Context) lobbyMsg) {
	go func() {
		if m := f(l.ctx); m != nil {
			l.post(m)
		}
	}()
}

// after posts m once d has elapsed.
func (l *lobby) after(d time.Duration, m lobbyMsg) *time.Timer {
	return time.AfterFunc(d, func() { l.post(m) })
}

// loadWorld builds the world off the loop. The outcome comes back as a
// worldLoaded message tagged with the match it was built for.
func (l *lobby) loadWorld(b world.Builder, s world.Setup, match uint64) {
	l.async(func(ctx context.Context) lobbyMsg {
		w, err := b.BuildWorld(ctx, s)
		return worldLoaded{match: match, world: w, err: err}
	})
}

func (l *lobby) view(ctx context.Context) (any, error) {
	reply := make(chan any, 1)
	if !l.post(getView{reply: reply}) {
		return nil, ErrLobbyClosed
	}
	select {
	case v := <-reply:
		return v, nil
	case <-l.done:
		return nil, ErrLobbyClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Done is closed once the lobby loop has exited.
func (l *lobby) Done() <-chan struct{} {
	return l.done
}

// Err returns the reason the lobby stopped. Only valid after Done is closed.
func (l *lobby) Err() error {
	return l.err
}

// Shutdown asks the loop to stop.
func (l *lobby) Shutdown() {
	l.cancel()
}

func (l *lobby) decode(peerID string, data []byte) (gamepackets.Frame, bool) {
	frame, err := l.factory.FromBytes(data)
	if err != nil {
		l.log.WithError(err).WithField("peer", peerID).Warn("Dropping malformed packet")
		return gamepackets.Frame{}, false
	}
	return frame, true
}

func schedule(interval time.Duration) (<-chan time.Time, func()) {
	if interval <= 0 {
		return nil, func() {}
	}
	ticker := time.NewTicker(interval)
	return ticker.C, ticker.Stop
}
