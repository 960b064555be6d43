package signaling

import (
	"context"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	pion "github.com/pion/webrtc/v4"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"kartlobby/config"
	"kartlobby/webrtc"
)

var ErrRejected = errors.New("join rejected")

// Dial offers a session to the signaling server at url and waits until the
// reliable data channel is open. The websocket is closed once it is.
func Dial(ctx context.Context, url string, opts webrtc.Options, h webrtc.Handler) (*webrtc.PeerSession, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", url)
	}
	c := &wsConn{conn: conn}
	defer c.Close()

	session, offer, err := webrtc.Offer(uuid.NewString(), opts, h, func(candidate pion.ICECandidateInit) {
		if err := c.send(IceCandidatePacket{Type: typeCandidate, Candidate: candidate}); err != nil {
			log.WithError(err).Debug("Could not send ICE candidate")
		}
	})
	if err != nil {
		return nil, err
	}
	if err := c.send(JoinRequest{Type: typeJoin, Version: config.ProtocolVersion, Offer: offer}); err != nil {
		session.Close()
		return nil, err
	}

	failed := make(chan error, 1)
	go func() {
		hs := handlers{
			accept: func(p AcceptJoinPacket) {
				log.WithField("session", p.Session).Info("Join accepted")
				if err := session.SetAnswer(p.Answer); err != nil {
					failed <- err
				}
			},
			reject: func(p RejectJoinPacket) {
				failed <- errors.WithMessage(ErrRejected, p.Reason)
			},
			candidate: func(p IceCandidatePacket) {
				if err := session.AddICECandidate(p.Candidate); err != nil {
					log.WithError(err).Warn("Failed to add ICE candidate")
				}
			},
		}
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				select {
				case failed <- errors.Wrap(err, "signaling closed"):
				default:
				}
				return
			}
			route(message, hs)
		}
	}()

	select {
	case <-session.Opened():
		return session, nil
	case err := <-failed:
		session.Close()
		return nil, err
	case <-ctx.Done():
		session.Close()
		return nil, errors.Wrap(ctx.Err(), "waiting for data channel")
	}
}
