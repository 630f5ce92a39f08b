package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Runner executes one cycle
type Runner interface {
	RunOnce(ctx context.Context) *Report
}

// Scheduler runs cycles back to back with a fixed pause between them.
// Cycles never overlap.
type Scheduler struct {
	runner   Runner
	interval time.Duration
}

// NewScheduler creates a scheduler
func NewScheduler(runner Runner, interval time.Duration) *Scheduler {
	return &Scheduler{runner: runner, interval: interval}
}

// Run loops until ctx is cancelled
func (s *Scheduler) Run(ctx context.Context) error {
	log.Info().Dur("interval", s.interval).Msg("Scheduler started")

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Scheduler stopped")
			return ctx.Err()
		case <-timer.C:
		}

		s.runner.RunOnce(ctx)
		if ctx.Err() != nil {
			log.Info().Msg("Scheduler stopped")
			return ctx.Err()
		}
		timer.Reset(s.interval)
	}
}
