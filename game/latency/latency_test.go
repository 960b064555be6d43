package latency

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gamepackets "kartlobby/game/packets"
)

func TestTracker_RollingAverage(t *testing.T) {
	tr := NewTracker()
	tr.Add("a")
	start := time.Unix(1000, 0)

	p1, ok := tr.NextPing("a", start)
	require.True(t, ok)
	p2, _ := tr.NextPing("a", start.Add(time.Second))
	assert.Greater(t, p2.Seq, p1.Seq)

	require.True(t, tr.OnPong("a", p1.Seq, start.Add(40*time.Millisecond)))
	avg, ok := tr.Average("a")
	require.True(t, ok)
	assert.Equal(t, 40*time.Millisecond, avg)

	require.True(t, tr.OnPong("a", p2.Seq, start.Add(time.Second+80*time.Millisecond)))
	avg, _ = tr.Average("a")
	assert.Equal(t, 60*time.Millisecond, avg)
}

func TestTracker_UnknownSequenceIgnored(t *testing.T) {
	tr := NewTracker()
	tr.Add("a")
	now := time.Unix(1000, 0)
	p, _ := tr.NextPing("a", now)

	assert.False(t, tr.OnPong("a", p.Seq+10, now.Add(time.Millisecond)))
	assert.False(t, tr.OnPong("nobody", p.Seq, now))
	_, ok := tr.Average("a")
	assert.False(t, ok)

	// a second pong for the same seq is stale
	require.True(t, tr.OnPong("a", p.Seq, now.Add(10*time.Millisecond)))
	assert.False(t, tr.OnPong("a", p.Seq, now.Add(20*time.Millisecond)))
}

func TestTracker_PrunesOldPings(t *testing.T) {
	tr := NewTracker()
	tr.Add("a")
	now := time.Unix(1000, 0)
	old, _ := tr.NextPing("a", now)
	tr.NextPing("a", now.Add(StaleAfter+time.Second))

	assert.False(t, tr.OnPong("a", old.Seq, now.Add(StaleAfter+2*time.Second)))
}

func TestTracker_ServerDelay(t *testing.T) {
	tr := NewTracker()
	now := time.Unix(1000, 0)
	rtts := map[string]time.Duration{"a": 40 * time.Millisecond, "b": 120 * time.Millisecond, "c": 900 * time.Millisecond}
	for peer, rtt := range rtts {
		tr.Add(peer)
		p, _ := tr.NextPing(peer, now)
		tr.OnPong(peer, p.Seq, now.Add(rtt))
	}
	tr.Add("silent")

	assert.Equal(t, 100*time.Millisecond+60*time.Millisecond, tr.ServerDelay(100*time.Millisecond, 300*time.Millisecond))
	assert.Equal(t, 100*time.Millisecond+450*time.Millisecond, tr.ServerDelay(100*time.Millisecond, 0))

	tr.Reset()
	assert.Equal(t, 100*time.Millisecond, tr.ServerDelay(100*time.Millisecond, 0))
	assert.Empty(t, tr.Averages())
}

func TestEcho(t *testing.T) {
	assert.Equal(t, gamepackets.PongPacket{Seq: 42}, Echo(gamepackets.PingPacket{Seq: 42, SentAt: 7}))
}
