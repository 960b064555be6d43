package results

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

type Entry struct {
	Rank     int           `json:"rank"`
	PlayerID uint8         `json:"playerId"`
	Name     string        `json:"name"`
	Kart     string        `json:"kart"`
	RaceTime time.Duration `json:"raceTime"`
}

// MatchResult is the final ranking of one race.
type MatchResult struct {
	Server     string    `json:"server"`
	Major      string    `json:"major"`
	Minor      string    `json:"minor"`
	Track      string    `json:"track"`
	Laps       uint8     `json:"laps"`
	Reversed   bool      `json:"reversed"`
	FinishedAt time.Time `json:"finishedAt"`
	Entries    []Entry   `json:"entries"`
}

type Reporter interface {
	ReportResults(ctx context.Context, r MatchResult) error
}

// LogReporter writes results to the log only.
type LogReporter struct{}

func (LogReporter) ReportResults(_ context.Context, r MatchResult) error {
	for _, e := range r.Entries {
		log.WithFields(log.Fields{
			"track":  r.Track,
			"rank":   e.Rank,
			"player": e.Name,
			"kart":   e.Kart,
			"time":   e.RaceTime,
		}).Info("Race result")
	}
	return nil
}
