package rooms

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// DefaultSweepInterval is how often the dormancy sweep runs.
const DefaultSweepInterval = 10 * time.Minute

// Sweeper periodically runs the dormancy sweep.
type Sweeper struct {
	app      *App
	clock    clockwork.Clock
	interval time.Duration
}

// NewSweeper creates a dormancy sweeper for app.
func NewSweeper(app *App, clock clockwork.Clock, interval time.Duration) *Sweeper {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{app: app, clock: clock, interval: interval}
}

// Run blocks until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	log.Info().Dur("interval", s.interval).Msg("dormancy sweeper started")

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("dormancy sweeper shutting down")
			return
		case <-ticker.Chan():
			if _, err := s.app.SweepDormant(ctx); err != nil {
				log.Error().Err(err).Msg("dormancy sweep failed")
			}
		}
	}
}
