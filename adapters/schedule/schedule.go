// Package schedule provides the external timer collaborator that drives
// periodic counter resets. Reset timing lives here, never inside the
// quota tracker.
package schedule

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Resetter zeroes all usage counters.
type Resetter interface {
	ResetAll(ctx context.Context) error
}

// CronScheduler runs counter resets on a cron spec.
type CronScheduler struct {
	cron   *cron.Cron
	logger zerolog.Logger
}

// New creates a scheduler that invokes resetter on the given cron spec
// (standard 5-field syntax, e.g. "0 0 1 * *" for midnight on the 1st).
func New(spec string, resetter Resetter, logger zerolog.Logger) (*CronScheduler, error) {
	c := cron.New()

	_, err := c.AddFunc(spec, func() {
		logger.Info().Str("schedule", spec).Msg("scheduled usage reset starting")
		if err := resetter.ResetAll(context.Background()); err != nil {
			logger.Error().Err(err).Msg("scheduled usage reset failed")
			return
		}
		logger.Info().Msg("scheduled usage reset completed")
	})
	if err != nil {
		return nil, fmt.Errorf("parse reset schedule %q: %w", spec, err)
	}

	return &CronScheduler{cron: c, logger: logger}, nil
}

// Start begins running scheduled jobs in their own goroutine.
func (s *CronScheduler) Start() {
	s.cron.Start()
}

// Stop stops the scheduler, waiting for a running job to finish.
func (s *CronScheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
