package signaling

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kartlobby/config"
	"kartlobby/game"
	"kartlobby/webrtc"
)

type recordingLobby struct {
	connected chan game.Peer
	received  chan []byte
	gone      chan string
}

func newRecordingLobby() *recordingLobby {
	return &recordingLobby{
		connected: make(chan game.Peer, 4),
		received:  make(chan []byte, 16),
		gone:      make(chan string, 4),
	}
}

func (l *recordingLobby) Connect(p game.Peer) { l.connected <- p }
func (l *recordingLobby) Receive(_ string, data []byte) { l.received <- data }
func (l *recordingLobby) Disconnect(id string) { l.gone <- id }

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestRoute_DispatchesByType(t *testing.T) {
	var joins []JoinRequest
	var rejects []RejectJoinPacket
	h := handlers{
		join:   func(p JoinRequest) { joins = append(joins, p) },
		reject: func(p RejectJoinPacket) { rejects = append(rejects, p) },
	}

	route([]byte(`{"type":"joinInvite","version":"1","offer":"v=0"}`), h)
	route([]byte(`{"type":"rejectJoin","reason":"full"}`), h)
	route([]byte(`{"type":"acceptJoin","answer":"v=0"}`), h)
	route([]byte(`{"type":"nope"}`), h)
	route([]byte(`not json`), h)

	require.Len(t, joins, 1)
	assert.Equal(t, "v=0", joins[0].Offer)
	require.Len(t, rejects, 1)
	assert.Equal(t, "full", rejects[0].Reason)
}

func dialRaw(url string) (*wsConn, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, err
	}
	return &wsConn{conn: conn}, nil
}

func TestDial_ReturnsRejection(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var join JoinRequest
		if err := conn.ReadJSON(&join); err != nil {
			return
		}
		conn.WriteJSON(RejectJoinPacket{Type: typeReject, Reason: "lobby full"})
		conn.ReadMessage()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := Dial(ctx, wsURL(srv), webrtc.Options{}, webrtc.Handler{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRejected))
	assert.Contains(t, err.Error(), "lobby full")
}

func TestServer_RejectsBadOffer(t *testing.T) {
	srv := httptest.NewServer(NewServer(newRecordingLobby(), webrtc.Options{}))
	defer srv.Close()

	c, err := dialRaw(wsURL(srv))
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.send(JoinRequest{Type: typeJoin, Version: config.ProtocolVersion, Offer: "garbage"}))
	var reply RejectJoinPacket
	require.NoError(t, c.conn.ReadJSON(&reply))
	assert.Equal(t, typeReject, reply.Type)
	assert.Equal(t, "bad offer", reply.Reason)

	require.NoError(t, c.send(JoinRequest{Type: typeJoin, Version: "99"}))
	require.NoError(t, c.conn.ReadJSON(&reply))
	assert.Contains(t, reply.Reason, "version")
}

func TestDial_EndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("opens real ICE sockets")
	}
	lobby := newRecordingLobby()
	server := NewServer(lobby, webrtc.Options{})
	srv := httptest.NewServer(server)
	defer srv.Close()
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	session, err := Dial(ctx, wsURL(srv), webrtc.Options{}, webrtc.Handler{})
	require.NoError(t, err)

	var peer game.Peer
	select {
	case peer = <-lobby.connected:
	case <-ctx.Done():
		t.Fatal("lobby never saw the peer")
	}
	assert.Equal(t, 1, server.Sessions())

	require.NoError(t, session.SendReliable([]byte{1, 2, 3}))
	select {
	case data := <-lobby.received:
		assert.Equal(t, []byte{1, 2, 3}, data)
	case <-ctx.Done():
		t.Fatal("packet never arrived")
	}

	session.Close()
	select {
	case id := <-lobby.gone:
		assert.Equal(t, peer.ID(), id)
	case <-ctx.Done():
		t.Fatal("disconnect never reported")
	}
}
