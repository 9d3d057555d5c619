package app

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultTickInterval is how often deadlines are checked.
	DefaultTickInterval = 500 * time.Millisecond
	// DefaultIdleTTL is how long an abandoned session is kept.
	DefaultIdleTTL = 30 * time.Minute
	// evictEvery is how many ticks pass between idle sweeps.
	evictEvery = 120
)

// Scheduler drives question deadlines on the server. Clients never advance
// questions; only this loop does, under each session's own lock.
type Scheduler struct {
	service  *QuizService
	clock    clockwork.Clock
	interval time.Duration
	idleTTL  time.Duration
}

func NewScheduler(service *QuizService, clock clockwork.Clock, interval, idleTTL time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	return &Scheduler{
		service:  service,
		clock:    clock,
		interval: interval,
		idleTTL:  idleTTL,
	}
}

// Run checks deadlines every interval until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	log.Info().Dur("interval", s.interval).Dur("idle_ttl", s.idleTTL).Msg("deadline scheduler started")

	ticks := 0
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("deadline scheduler stopped")
			return nil
		case <-ticker.Chan():
			s.service.AdvanceDue(ctx)
			ticks++
			if ticks%evictEvery == 0 {
				s.service.EvictIdle(ctx, s.idleTTL)
			}
		}
	}
}
