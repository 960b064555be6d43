package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kartlobby/config"
	"kartlobby/content"
	"kartlobby/game"
	"kartlobby/game/setup"
	"kartlobby/game/vote"
)

type fakeLobby struct {
	view    game.ServerView
	err     error
	started int
}

func (f *fakeLobby) View(context.Context) (game.ServerView, error) { return f.view, f.err }

func (f *fakeLobby) StartSelection() { f.started++ }

func get(t *testing.T, app *fiber.App, method, path string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(method, path, nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	if strings.HasPrefix(resp.Header.Get(fiber.HeaderContentType), fiber.MIMEApplicationJSON) {
		require.NoError(t, json.Unmarshal(body, &out))
	}
	return resp, out
}

func TestControlAPI_Status(t *testing.T) {
	lobby := &fakeLobby{view: game.ServerView{
		State:   game.Selecting,
		Players: []setup.PlayerProfile{{GlobalPlayerID: 0, Name: "tux"}},
		Pings:   map[string]time.Duration{"peer": 20 * time.Millisecond},
	}}
	app := newControlAPI(lobby)

	resp, body := get(t, app, fiber.MethodGet, "/status")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "Selecting", body["state"])

	_, body = get(t, app, fiber.MethodGet, "/players")
	players := body["players"].([]any)
	require.Len(t, players, 1)
	assert.Equal(t, "tux", players[0].(map[string]any)["name"])
}

func TestControlAPI_Votes(t *testing.T) {
	track := "lighthouse"
	lobby := &fakeLobby{view: game.ServerView{
		Votes:      map[uint8]vote.RaceVote{3: {Tracks: []vote.TrackVote{{Track: &track}}}},
		NextTracks: []vote.Track{{Name: track, Laps: 3}},
	}}
	_, body := get(t, newControlAPI(lobby), fiber.MethodGet, "/votes")
	assert.Contains(t, body["votes"], "3")
	assert.Len(t, body["tracks"], 1)
}

func TestControlAPI_StartSelection(t *testing.T) {
	lobby := &fakeLobby{view: game.ServerView{State: game.AcceptingClients}}
	app := newControlAPI(lobby)

	resp, _ := get(t, app, fiber.MethodPost, "/selection/start")
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)

	lobby.view.Players = []setup.PlayerProfile{{Name: "tux"}}
	resp, _ = get(t, app, fiber.MethodPost, "/selection/start")
	assert.Equal(t, fiber.StatusAccepted, resp.StatusCode)
	assert.Equal(t, 1, lobby.started)

	lobby.err = game.ErrLobbyClosed
	resp, _ = get(t, app, fiber.MethodGet, "/status")
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
}

func TestControlAPI_RealLobby(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cfg := config.Default()
	cfg.Lobby.Tick = 5 * time.Millisecond
	lobby := game.NewServerLobby(ctx, serverConfig(cfg, content.Builtin()), game.ServerDeps{})

	resp, body := get(t, newControlAPI(lobby), fiber.MethodGet, "/status")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "AcceptingClients", body["state"])
	assert.ElementsMatch(t, []any{"gnu", "nolok", "sara", "tux"}, body["karts"])
}

func TestServerConfig_DefaultTrackComesFromContent(t *testing.T) {
	sc := serverConfig(config.Default(), content.Builtin())
	assert.Equal(t, "hacienda", sc.DefaultTrack.Name)
	assert.Equal(t, uint8(3), sc.DefaultTrack.Laps)
	assert.Equal(t, 15*time.Second, sc.ResultTimeout)
}

func TestClientConfig_PlayersFromNames(t *testing.T) {
	cfg := config.Default()
	cfg.Client.Names = []string{"tux", "gnu"}
	cc := clientConfig(cfg, content.Builtin())
	require.Len(t, cc.Players, 2)
	assert.Equal(t, "gnu", cc.Players[1].Name)
	assert.Equal(t, content.Builtin().KartNames(), cc.Karts)
}

func TestWaitReady(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ready")
	exited := make(chan struct{})

	go func() {
		time.Sleep(150 * time.Millisecond)
		os.WriteFile(path, []byte("\n"), 0o644)
	}()
	require.NoError(t, waitReady(context.Background(), path, exited, 5*time.Second))

	err := waitReady(context.Background(), filepath.Join(dir, "never"), exited, 200*time.Millisecond)
	assert.True(t, errors.Is(err, ErrServerNotReady))

	close(exited)
	err = waitReady(context.Background(), filepath.Join(dir, "never"), exited, 5*time.Second)
	assert.True(t, errors.Is(err, ErrServerNotReady))
	assert.Contains(t, err.Error(), "exited")
}

func TestDashboard_ProxiesControlAPI(t *testing.T) {
	control := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"path":"`+r.URL.Path+`","method":"`+r.Method+`"}`)
	}))
	defer control.Close()

	app := newDashboard(&supervisor{}, control.URL)
	_, body := get(t, app, fiber.MethodGet, "/api/lobby")
	assert.Equal(t, "/status", body["path"])

	_, body = get(t, app, fiber.MethodPost, "/api/selection/start")
	assert.Equal(t, "/selection/start", body["path"])
	assert.Equal(t, "POST", body["method"])

	_, body = get(t, app, fiber.MethodGet, "/api/server/status")
	assert.Equal(t, false, body["running"])
}

func TestListenPort(t *testing.T) {
	port, err := listenPort(":2759")
	require.NoError(t, err)
	assert.Equal(t, 2759, port)

	port, err = listenPort("0.0.0.0:4000")
	require.NoError(t, err)
	assert.Equal(t, 4000, port)

	_, err = listenPort("localhost")
	assert.Error(t, err)
	_, err = listenPort(":0")
	assert.Error(t, err)
}
