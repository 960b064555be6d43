// Package webrtc carries lobby packets over a pair of pion data channels:
// a reliable ordered one for the protocol and an unreliable unordered one
// for pings.
package webrtc

import (
	"sync"
	"sync/atomic"

	"github.com/pion/webrtc/v4"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"kartlobby/logging"
)

const (
	reliableLabel   = "lobby"
	unreliableLabel = "lobby-unreliable"
)

var ErrNotOpen = errors.New("data channel not open")

type Options struct {
	// ICEServers are STUN/TURN urls, e.g. stun:stun.l.google.com:19302.
	ICEServers []string
	PionLevel  log.Level
	// Rate limits inbound packets per peer. Zero disables the limit. Excess
	// unreliable packets are dropped; a peer exceeding it on the reliable
	// channel is disconnected.
	Rate  rate.Limit
	Burst int
}

// Handler receives the session's events. All fields are optional.
type Handler struct {
	OnOpen    func()
	OnMessage func([]byte)
	OnClose   func()
}

type PeerSession struct {
	SessionID string
	Peer      *webrtc.PeerConnection

	handler     Handler
	onCandidate func(webrtc.ICECandidateInit)
	limiter     *rate.Limiter
	log         *log.Entry

	mu         sync.Mutex
	reliable   *webrtc.DataChannel
	unreliable *webrtc.DataChannel
	pending    []webrtc.ICECandidateInit
	opened     chan struct{}
	openOnce   sync.Once
	closeOnce  sync.Once
	flooded    atomic.Bool
}

func newPeerSession(sessionID string, opts Options, h Handler, onCandidate func(webrtc.ICECandidateInit)) (*PeerSession, error) {
	se := webrtc.SettingEngine{LoggerFactory: logging.PionFactory{Level: opts.PionLevel}}
	api := webrtc.NewAPI(webrtc.WithSettingEngine(se))

	config := webrtc.Configuration{}
	if len(opts.ICEServers) > 0 {
		config.ICEServers = []webrtc.ICEServer{{URLs: opts.ICEServers}}
	}
	peer, err := api.NewPeerConnection(config)
	if err != nil {
		return nil, errors.Wrap(err, "create peer connection")
	}

	ps := &PeerSession{
		SessionID:   sessionID,
		Peer:        peer,
		handler:     h,
		onCandidate: onCandidate,
		log:         log.WithField("session", sessionID),
		opened:      make(chan struct{}),
	}
	if opts.Rate > 0 {
		ps.limiter = rate.NewLimiter(opts.Rate, max(opts.Burst, 1))
	}

	ps.setupICE()
	peer.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		ps.log.WithField("state", s.String()).Debug("Peer connection state changed")
		if s == webrtc.PeerConnectionStateFailed || s == webrtc.PeerConnectionStateClosed {
			ps.closed()
		}
	})
	return ps, nil
}

// Answer accepts a remote offer. It returns the session and the answer SDP
// to send back.
func Answer(sessionID, offerSDP string, opts Options, h Handler, onCandidate func(webrtc.ICECandidateInit)) (*PeerSession, string, error) {
	ps, err := newPeerSession(sessionID, opts, h, onCandidate)
	if err != nil {
		return nil, "", err
	}
	ps.Peer.OnDataChannel(ps.attach)

	answer, err := ps.handleOffer(offerSDP)
	if err != nil {
		ps.Peer.Close()
		return nil, "", err
	}
	return ps, answer, nil
}

// Offer opens both data channels and returns the offer SDP. The answer is
// fed back through SetAnswer.
func Offer(sessionID string, opts Options, h Handler, onCandidate func(webrtc.ICECandidateInit)) (*PeerSession, string, error) {
	ps, err := newPeerSession(sessionID, opts, h, onCandidate)
	if err != nil {
		return nil, "", err
	}

	ordered, unordered := true, false
	var noRetransmits uint16
	reliable, err := ps.Peer.CreateDataChannel(reliableLabel, &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		ps.Peer.Close()
		return nil, "", errors.Wrap(err, "create reliable channel")
	}
	unreliable, err := ps.Peer.CreateDataChannel(unreliableLabel, &webrtc.DataChannelInit{
		Ordered:        &unordered,
		MaxRetransmits: &noRetransmits,
	})
	if err != nil {
		ps.Peer.Close()
		return nil, "", errors.Wrap(err, "create unreliable channel")
	}
	ps.attach(reliable)
	ps.attach(unreliable)

	offer, err := ps.Peer.CreateOffer(nil)
	if err != nil {
		ps.Peer.Close()
		return nil, "", errors.Wrap(err, "create offer")
	}
	if err := ps.Peer.SetLocalDescription(offer); err != nil {
		ps.Peer.Close()
		return nil, "", errors.Wrap(err, "set local description")
	}
	return ps, offer.SDP, nil
}

func (ps *PeerSession) setupICE() {
	ps.Peer.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil || ps.onCandidate == nil {
			return
		}
		ps.onCandidate(c.ToJSON())
	})
}

func (ps *PeerSession) handleOffer(offerSDP string) (string, error) {
	offer := webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  offerSDP,
	}
	if err := ps.Peer.SetRemoteDescription(offer); err != nil {
		return "", errors.Wrap(err, "set remote description")
	}

	answer, err := ps.Peer.CreateAnswer(nil)
	if err != nil {
		return "", errors.Wrap(err, "create answer")
	}
	if err := ps.Peer.SetLocalDescription(answer); err != nil {
		return "", errors.Wrap(err, "set local description")
	}
	return answer.SDP, nil
}

// SetAnswer completes an offer and applies candidates that arrived early.
func (ps *PeerSession) SetAnswer(answerSDP string) error {
	err := ps.Peer.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  answerSDP,
	})
	if err != nil {
		return errors.Wrap(err, "set remote description")
	}

	ps.mu.Lock()
	pending := ps.pending
	ps.pending = nil
	ps.mu.Unlock()
	for _, c := range pending {
		if err := ps.Peer.AddICECandidate(c); err != nil {
			ps.log.WithError(err).Warn("Dropping early ICE candidate")
		}
	}
	return nil
}

func (ps *PeerSession) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	ps.mu.Lock()
	if ps.Peer.RemoteDescription() == nil {
		ps.pending = append(ps.pending, candidate)
		ps.mu.Unlock()
		return nil
	}
	ps.mu.Unlock()
	return errors.Wrap(ps.Peer.AddICECandidate(candidate), "add ICE candidate")
}

func (ps *PeerSession) attach(dc *webrtc.DataChannel) {
	ps.mu.Lock()
	switch dc.Label() {
	case reliableLabel:
		ps.reliable = dc
	case unreliableLabel:
		ps.unreliable = dc
	default:
		ps.mu.Unlock()
		ps.log.WithField("label", dc.Label()).Warn("Closing unknown data channel")
		dc.Close()
		return
	}
	ps.mu.Unlock()

	label := dc.Label()
	dc.OnOpen(func() {
		ps.log.WithField("label", label).Debug("Data channel open")
		if label == reliableLabel {
			ps.open()
		}
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		ps.receive(label == reliableLabel, msg.Data)
	})
	if label == reliableLabel {
		dc.OnClose(ps.closed)
	}
}

// open runs the OnOpen handler once, then releases inbound packets.
// pion calls OnOpen and the read loop on different goroutines.
func (ps *PeerSession) open() {
	ps.openOnce.Do(func() {
		if ps.handler.OnOpen != nil {
			ps.handler.OnOpen()
		}
		close(ps.opened)
	})
}

func (ps *PeerSession) receive(reliable bool, data []byte) {
	if reliable {
		<-ps.opened
	} else {
		select {
		case <-ps.opened:
		default:
			return
		}
	}
	if ps.flooded.Load() {
		return
	}
	if ps.limiter != nil && !ps.limiter.Allow() {
		if !reliable {
			ps.log.Debug("Inbound rate exceeded, dropping unreliable packet")
			return
		}
		ps.flooded.Store(true)
		ps.log.Warn("Peer flooded the reliable channel, closing")
		go ps.Close()
		return
	}
	if ps.handler.OnMessage != nil {
		ps.handler.OnMessage(data)
	}
}

// Opened is closed once the reliable channel can carry packets.
func (ps *PeerSession) Opened() <-chan struct{} {
	return ps.opened
}

func (ps *PeerSession) ID() string { return ps.SessionID }

func (ps *PeerSession) SendReliable(data []byte) error {
	return ps.sendOn(ps.channel(true), data)
}

// SendUnreliable uses the unordered channel without retransmits.
func (ps *PeerSession) SendUnreliable(data []byte) error {
	return ps.sendOn(ps.channel(false), data)
}

func (ps *PeerSession) channel(reliable bool) *webrtc.DataChannel {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if reliable {
		return ps.reliable
	}
	return ps.unreliable
}

func (ps *PeerSession) sendOn(dc *webrtc.DataChannel, data []byte) error {
	if dc == nil || dc.ReadyState() != webrtc.DataChannelStateOpen {
		return ErrNotOpen
	}
	return errors.Wrap(dc.Send(data), "data channel send")
}

func (ps *PeerSession) Close() error {
	err := ps.Peer.Close()
	ps.closed()
	return errors.Wrap(err, "close peer connection")
}

func (ps *PeerSession) closed() {
	ps.closeOnce.Do(func() {
		ps.log.Info("Peer session closed")
		if ps.handler.OnClose != nil {
			go ps.handler.OnClose()
		}
	})
}
