package latency

import (
	"time"

	log "github.com/sirupsen/logrus"

	gamepackets "kartlobby/game/packets"
)

// StaleAfter is how long an unanswered ping is remembered.
const StaleAfter = 10 * time.Second

type pingRecord struct {
	seq      uint32
	sentTime time.Time
}

type peerStats struct {
	nextSeq     uint32
	outstanding []pingRecord
	sum         time.Duration
	count       int
	average     time.Duration
}

// Tracker keeps round-trip statistics for every peer the server pings.
// It is not safe for concurrent use; the lobby loop owns it.
type Tracker struct {
	peers map[string]*peerStats
}

func NewTracker() *Tracker {
	return &Tracker{peers: make(map[string]*peerStats)}
}

func (t *Tracker) Add(peer string) {
	if _, ok := t.peers[peer]; !ok {
		t.peers[peer] = &peerStats{}
	}
}

func (t *Tracker) Remove(peer string) {
	delete(t.peers, peer)
}

// Reset forgets every statistic but keeps the peers registered.
func (t *Tracker) Reset() {
	for id := range t.peers {
		t.peers[id] = &peerStats{}
	}
}

// NextPing records a ping for peer and returns the packet to send.
func (t *Tracker) NextPing(peer string, now time.Time) (gamepackets.PingPacket, bool) {
	stats, ok := t.peers[peer]
	if !ok {
		return gamepackets.PingPacket{}, false
	}
	stats.prune(now)
	stats.nextSeq++
	stats.outstanding = append(stats.outstanding, pingRecord{seq: stats.nextSeq, sentTime: now})
	return gamepackets.PingPacket{Seq: stats.nextSeq, SentAt: uint64(now.UnixMilli())}, true
}

func (s *peerStats) prune(now time.Time) {
	kept := s.outstanding[:0]
	for _, rec := range s.outstanding {
		if now.Sub(rec.sentTime) < StaleAfter {
			kept = append(kept, rec)
		}
	}
	s.outstanding = kept
}

// OnPong folds the round trip of a known ping into the peer's average.
// Unknown or pruned sequence numbers are logged and ignored.
func (t *Tracker) OnPong(peer string, seq uint32, now time.Time) bool {
	stats, ok := t.peers[peer]
	if !ok {
		log.WithField("peer", peer).Debug("Pong from untracked peer")
		return false
	}
	for i, rec := range stats.outstanding {
		if rec.seq != seq {
			continue
		}
		stats.outstanding = append(stats.outstanding[:i], stats.outstanding[i+1:]...)
		stats.sum += now.Sub(rec.sentTime)
		stats.count++
		stats.average = stats.sum / time.Duration(stats.count)
		return true
	}
	log.WithFields(log.Fields{"peer": peer, "seq": seq}).Warn("Discarding pong with unknown sequence number")
	return false
}

// Average returns the peer's mean round trip, if any pong has arrived.
func (t *Tracker) Average(peer string) (time.Duration, bool) {
	stats, ok := t.peers[peer]
	if !ok || stats.count == 0 {
		return 0, false
	}
	return stats.average, true
}

// Averages returns every known average keyed by peer.
func (t *Tracker) Averages() map[string]time.Duration {
	out := make(map[string]time.Duration, len(t.peers))
	for id, stats := range t.peers {
		if stats.count > 0 {
			out[id] = stats.average
		}
	}
	return out
}

// ServerDelay is how long the server holds back its own race start:
// jitter plus half of the largest average ping. Peers above maxPing are
// left out; a zero maxPing disables that filter.
func (t *Tracker) ServerDelay(jitter, maxPing time.Duration) time.Duration {
	var worst time.Duration
	for _, stats := range t.peers {
		if stats.count == 0 {
			continue
		}
		if maxPing > 0 && stats.average > maxPing {
			continue
		}
		if stats.average > worst {
			worst = stats.average
		}
	}
	return jitter + worst/2
}

// Echo is the client side of the protocol: every ping is answered at once
// with the same sequence number.
func Echo(p gamepackets.PingPacket) gamepackets.PongPacket {
	return gamepackets.PongPacket{Seq: p.Seq}
}
