// Package signaling exchanges SDP offers, answers and ICE candidates over a
// websocket so that lobby peers can open their data channels.
package signaling

import (
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	pion "github.com/pion/webrtc/v4"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"kartlobby/config"
	"kartlobby/game"
	"kartlobby/webrtc"
)

// Lobby is what the signaling server feeds new peers into.
type Lobby interface {
	Connect(peer game.Peer)
	Receive(peerID string, data []byte)
	Disconnect(peerID string)
}

type Server struct {
	lobby    Lobby
	opts     webrtc.Options
	upgrader websocket.Upgrader

	mu       sync.Mutex
	sessions map[string]*webrtc.PeerSession
}

func NewServer(lobby Lobby, opts webrtc.Options) *Server {
	return &Server{
		lobby: lobby,
		opts:  opts,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		sessions: make(map[string]*webrtc.PeerSession),
	}
}

// wsConn serialises writes; gorilla allows one writer at a time.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsConn) send(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return errors.Wrap(c.conn.WriteJSON(v), "websocket write")
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("Websocket upgrade failed")
		return
	}
	c := &wsConn{conn: conn}
	defer c.Close()

	// one session per websocket; candidates on this socket belong to it
	var session *webrtc.PeerSession
	h := handlers{
		join: func(p JoinRequest) {
			if session != nil {
				log.WithField("session", session.ID()).Warn("Second join on one socket")
				return
			}
			session = s.handleJoin(c, p)
		},
		candidate: func(p IceCandidatePacket) {
			if session == nil {
				log.Warn("ICE candidate before join")
				return
			}
			if err := session.AddICECandidate(p.Candidate); err != nil {
				log.WithError(err).Warn("Failed to add ICE candidate")
			}
		},
	}

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			log.WithError(err).Debug("Signaling socket closed")
			break
		}
		route(message, h)
	}

	if session != nil {
		select {
		case <-session.Opened():
		default:
			log.WithField("session", session.ID()).Info("Signaling ended before the data channel opened")
			session.Close()
		}
	}
}

func (s *Server) handleJoin(c *wsConn, p JoinRequest) *webrtc.PeerSession {
	if p.Version != config.ProtocolVersion {
		log.WithField("version", p.Version).Info("Rejecting join from incompatible version")
		c.send(RejectJoinPacket{Type: typeReject, Reason: "version " + config.ProtocolVersion + " required"})
		return nil
	}

	id := uuid.NewString()
	session, answer, err := webrtc.Answer(id, p.Offer, s.opts, webrtc.Handler{
		OnOpen: func() {
			if ps := s.session(id); ps != nil {
				s.lobby.Connect(ps)
			}
		},
		OnMessage: func(data []byte) { s.lobby.Receive(id, data) },
		OnClose: func() {
			s.remove(id)
			s.lobby.Disconnect(id)
		},
	}, func(candidate pion.ICECandidateInit) {
		if err := c.send(IceCandidatePacket{Type: typeCandidate, Session: id, Candidate: candidate}); err != nil {
			log.WithError(err).Debug("Could not send ICE candidate")
		}
	})
	if err != nil {
		log.WithError(err).Warn("Failed to create session")
		c.send(RejectJoinPacket{Type: typeReject, Reason: "bad offer"})
		return nil
	}

	s.mu.Lock()
	s.sessions[id] = session
	s.mu.Unlock()
	log.WithField("session", id).Info("Created session")

	if err := c.send(AcceptJoinPacket{
		Type:    typeAccept,
		Version: config.ProtocolVersion,
		Session: id,
		Answer:  answer,
	}); err != nil {
		log.WithError(err).Warn("Could not send answer")
	}
	return session
}

func (s *Server) session(id string) *webrtc.PeerSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[id]
}

func (s *Server) remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// Sessions is the number of live peer sessions.
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Close tears down every session.
func (s *Server) Close() {
	s.mu.Lock()
	sessions := make([]*webrtc.PeerSession, 0, len(s.sessions))
	for _, ps := range s.sessions {
		sessions = append(sessions, ps)
	}
	s.mu.Unlock()
	for _, ps := range sessions {
		ps.Close()
	}
}
