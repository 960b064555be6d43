package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kartlobby/game/vote"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kartlobby.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_DefaultsAreValid(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Server.MaxPlayers)
	assert.Equal(t, 15*time.Second, cfg.Lobby.ResultTimeout)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  name: friday night
  max_players: 4
  wan: true
lobby:
  result_timeout: 5s
  major: grandprix
  minor: timetrial
  race_count: 3
  track: lighthouse
directory:
  kind: consul
  address: 127.0.0.1:8500
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "friday night", cfg.Server.Name)
	assert.True(t, cfg.Server.WAN)
	assert.Equal(t, ":2759", cfg.Server.Listen)
	assert.Equal(t, 5*time.Second, cfg.Lobby.ResultTimeout)
	assert.Equal(t, vote.Mode{Major: vote.MajorGrandPrix, Minor: vote.MinorTimeTrial, RaceCount: 3}, cfg.Lobby.Mode())
	assert.Equal(t, vote.Track{Name: "lighthouse", Laps: 3}, cfg.Lobby.DefaultTrack("sandtrack"))
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "server:\n  name: from file\n")
	t.Setenv("KARTLOBBY_SERVER_NAME", "from env")
	t.Setenv("KARTLOBBY_SERVER_MAX_PLAYERS", "12")
	t.Setenv("KARTLOBBY_CLIENT_NAMES", "tux,gnu")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from env", cfg.Server.Name)
	assert.Equal(t, 12, cfg.Server.MaxPlayers)
	assert.Equal(t, []string{"tux", "gnu"}, cfg.Client.Names)
}

func TestLoad_RejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"unknown mode":         "lobby:\n  minor: demolition\n",
		"consul needs address": "directory:\n  kind: consul\n",
		"nats needs url":       "results:\n  kind: nats\n",
		"no players allowed":   "server:\n  max_players: 0\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}

	t.Setenv("KARTLOBBY_SERVER_WAN", "sometimes")
	_, err := Load("")
	assert.Error(t, err)
}

func TestLobby_DefaultTrackFallsBack(t *testing.T) {
	l := Default().Lobby
	assert.Equal(t, vote.Track{Name: "sandtrack", Laps: 3}, l.DefaultTrack("sandtrack"))
}
