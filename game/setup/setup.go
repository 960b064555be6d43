package setup

import (
	"fmt"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"kartlobby/game/vote"
)

var ErrDuplicatePlayer = errors.New("player id already in setup")

type Difficulty uint8

const (
	DifficultyNovice Difficulty = iota
	DifficultyIntermediate
	DifficultyExpert
	DifficultySuperTux
)

func (d Difficulty) String() string {
	switch d {
	case DifficultyNovice:
		return "Novice"
	case DifficultyIntermediate:
		return "Intermediate"
	case DifficultyExpert:
		return "Expert"
	case DifficultySuperTux:
		return "SuperTux"
	default:
		return fmt.Sprintf("Unknown(%d)", d)
	}
}

// PlayerProfile describes one player in the session. GlobalPlayerID and
// HostID never change for the lifetime of the profile.
type PlayerProfile struct {
	GlobalPlayerID uint8      `json:"globalPlayerId"`
	HostID         uint8      `json:"hostId"`
	Name           string     `json:"name"`
	Kart           string     `json:"kart,omitempty"`
	LocalMaster    bool       `json:"localMaster"`
	Difficulty     Difficulty `json:"difficulty"`
}

// GameSetup is the roster of a session plus the votes cast for the next
// match. Players are kept in insertion order.
type GameSetup struct {
	players       []*PlayerProfile
	localMasterID uint8
	votes         *vote.Table
}

func New() *GameSetup {
	return &GameSetup{votes: vote.NewTable()}
}

// AddPlayer appends a profile. A profile whose id is already present is
// ignored and ErrDuplicatePlayer is returned.
func (s *GameSetup) AddPlayer(p PlayerProfile) error {
	if _, ok := s.Player(p.GlobalPlayerID); ok {
		log.WithField("player", p.GlobalPlayerID).Error("Refusing to add duplicate player")
		return errors.Wrapf(ErrDuplicatePlayer, "id %d", p.GlobalPlayerID)
	}
	profile := p
	s.players = append(s.players, &profile)
	return nil
}

// RemovePlayer removes the profile with the given id and reports whether it
// was present. Other ids are left untouched.
func (s *GameSetup) RemovePlayer(id uint8) bool {
	for i, p := range s.players {
		if p.GlobalPlayerID == id {
			s.players = append(s.players[:i], s.players[i+1:]...)
			return true
		}
	}
	return false
}

// RemoveHost removes every profile owned by hostID and returns them.
func (s *GameSetup) RemoveHost(hostID uint8) []PlayerProfile {
	var removed []PlayerProfile
	kept := s.players[:0]
	for _, p := range s.players {
		if p.HostID == hostID {
			removed = append(removed, *p)
			continue
		}
		kept = append(kept, p)
	}
	for i := len(kept); i < len(s.players); i++ {
		s.players[i] = nil
	}
	s.players = kept
	return removed
}

func (s *GameSetup) Player(id uint8) (PlayerProfile, bool) {
	for _, p := range s.players {
		if p.GlobalPlayerID == id {
			return *p, true
		}
	}
	return PlayerProfile{}, false
}

// Players returns a copy of the roster in insertion order.
func (s *GameSetup) Players() []PlayerProfile {
	out := make([]PlayerProfile, len(s.players))
	for i, p := range s.players {
		out[i] = *p
	}
	return out
}

func (s *GameSetup) PlayerCount() int {
	return len(s.players)
}

// HostPlayers returns the ids of the players owned by hostID.
func (s *GameSetup) HostPlayers(hostID uint8) []uint8 {
	var ids []uint8
	for _, p := range s.players {
		if p.HostID == hostID {
			ids = append(ids, p.GlobalPlayerID)
		}
	}
	return ids
}

// SetPlayerKart records the kart chosen by a player. It returns false when
// the player is unknown.
func (s *GameSetup) SetPlayerKart(id uint8, kart string) bool {
	for _, p := range s.players {
		if p.GlobalPlayerID == id {
			p.Kart = kart
			return true
		}
	}
	return false
}

// ClearKarts forgets every player's kart choice.
func (s *GameSetup) ClearKarts() {
	for _, p := range s.players {
		p.Kart = ""
	}
}

// IsKartAvailable reports whether no player other than id has taken kart.
func (s *GameSetup) IsKartAvailable(kart string, id uint8) bool {
	for _, p := range s.players {
		if p.GlobalPlayerID != id && p.Kart == kart {
			return false
		}
	}
	return true
}

// SetLocalMaster records which player drives the menus of this process.
func (s *GameSetup) SetLocalMaster(id uint8) {
	s.localMasterID = id
}

func (s *GameSetup) LocalMaster() uint8 {
	return s.localMasterID
}

// TrackVoters counts the current players that have voted for a track this
// round. Votes left behind by departed players are ignored.
func (s *GameSetup) TrackVoters() int {
	n := 0
	for _, p := range s.players {
		if s.votes.VotedTrackThisRound(p.GlobalPlayerID) {
			n++
		}
	}
	return n
}

func (s *GameSetup) Votes() *vote.Table {
	return s.votes
}
