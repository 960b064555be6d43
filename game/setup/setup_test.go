package setup

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kartlobby/game/vote"
)

func TestAddPlayer_RejectsDuplicateID(t *testing.T) {
	s := New()
	require.NoError(t, s.AddPlayer(PlayerProfile{GlobalPlayerID: 0, HostID: 1, Name: "tux", LocalMaster: true}))
	require.NoError(t, s.AddPlayer(PlayerProfile{GlobalPlayerID: 1, HostID: 2, Name: "nolok"}))
	s.SetLocalMaster(0)

	err := s.AddPlayer(PlayerProfile{GlobalPlayerID: 1, HostID: 3, Name: "gnu"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicatePlayer))

	players := s.Players()
	require.Len(t, players, 2)
	assert.Equal(t, "nolok", players[1].Name)
	assert.Equal(t, uint8(0), s.LocalMaster())
}

func TestRemovePlayer_KeepsOtherIDs(t *testing.T) {
	s := New()
	for i := uint8(0); i < 3; i++ {
		require.NoError(t, s.AddPlayer(PlayerProfile{GlobalPlayerID: i, HostID: i}))
	}

	assert.True(t, s.RemovePlayer(1))
	assert.False(t, s.RemovePlayer(1))

	players := s.Players()
	require.Len(t, players, 2)
	assert.Equal(t, uint8(0), players[0].GlobalPlayerID)
	assert.Equal(t, uint8(2), players[1].GlobalPlayerID)
}

func TestRemoveHost_RemovesAllLocalPlayers(t *testing.T) {
	s := New()
	require.NoError(t, s.AddPlayer(PlayerProfile{GlobalPlayerID: 0, HostID: 1}))
	require.NoError(t, s.AddPlayer(PlayerProfile{GlobalPlayerID: 1, HostID: 2}))
	require.NoError(t, s.AddPlayer(PlayerProfile{GlobalPlayerID: 2, HostID: 2}))

	assert.Equal(t, []uint8{1, 2}, s.HostPlayers(2))
	removed := s.RemoveHost(2)
	require.Len(t, removed, 2)
	assert.Equal(t, 1, s.PlayerCount())
	assert.Empty(t, s.HostPlayers(2))
}

func TestKartSelection(t *testing.T) {
	s := New()
	require.NoError(t, s.AddPlayer(PlayerProfile{GlobalPlayerID: 0, HostID: 1}))
	require.NoError(t, s.AddPlayer(PlayerProfile{GlobalPlayerID: 1, HostID: 2}))

	assert.True(t, s.SetPlayerKart(0, "tux"))
	assert.False(t, s.SetPlayerKart(9, "tux"))
	assert.True(t, s.IsKartAvailable("tux", 0))
	assert.False(t, s.IsKartAvailable("tux", 1))

	s.RemovePlayer(0)
	assert.True(t, s.IsKartAvailable("tux", 1))
}

func TestTrackVoters_IgnoresDepartedPlayers(t *testing.T) {
	s := New()
	require.NoError(t, s.AddPlayer(PlayerProfile{GlobalPlayerID: 0, HostID: 1}))
	require.NoError(t, s.AddPlayer(PlayerProfile{GlobalPlayerID: 1, HostID: 2}))
	s.Votes().SetTrack(0, "hacienda", 0)
	s.Votes().SetTrack(1, "hacienda", 0)
	assert.Equal(t, 2, s.TrackVoters())

	s.RemovePlayer(1)
	assert.Equal(t, 1, s.TrackVoters())
	_, kept := s.Votes().Get(1)
	assert.True(t, kept)
}

func TestTrackVoters_CountsOnlyThisRound(t *testing.T) {
	s := New()
	require.NoError(t, s.AddPlayer(PlayerProfile{GlobalPlayerID: 0, HostID: 1}))
	s.Votes().SetTrack(0, "hacienda", 0)
	assert.Equal(t, 1, s.TrackVoters())

	s.Votes().NewRound()
	assert.Zero(t, s.TrackVoters())
	assert.Equal(t, "hacienda", s.Votes().ComputeNextTrack(vote.Track{}).Name)

	s.Votes().SetTrack(0, "hacienda", 0)
	assert.Equal(t, 1, s.TrackVoters())
}

func TestClearKarts(t *testing.T) {
	s := New()
	require.NoError(t, s.AddPlayer(PlayerProfile{GlobalPlayerID: 0, HostID: 1}))
	require.NoError(t, s.AddPlayer(PlayerProfile{GlobalPlayerID: 1, HostID: 2}))
	s.SetPlayerKart(0, "tux")
	s.SetPlayerKart(1, "gnu")

	s.ClearKarts()
	for _, p := range s.Players() {
		assert.Empty(t, p.Kart)
	}
	assert.True(t, s.IsKartAvailable("tux", 1))
}
