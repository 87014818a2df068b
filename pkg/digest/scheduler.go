package digest

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/aifeedco/aifeed/pkg/storage/postgres"
)

// Scheduler generates the daily digest once per day at a fixed UTC hour.
type Scheduler struct {
	logger *zerolog.Logger
	cfg    *Config
	gen    *Generator
	cancel context.CancelFunc
	done   chan struct{}
}

func NewScheduler(logger *zerolog.Logger, cfg *Config, gen *Generator) *Scheduler {
	return &Scheduler{
		logger: logger,
		cfg:    cfg,
		gen:    gen,
	}
}

func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)

		s.logger.Info().
			Int("hour_utc", s.cfg.ScheduleHourUTC).
			Msg("Digest scheduler started")

		for {
			timer := time.NewTimer(untilNextRun(time.Now().UTC(), s.cfg.ScheduleHourUTC))
			select {
			case <-ctx.Done():
				timer.Stop()
				s.logger.Info().Msg("Digest scheduler stopped")
				return
			case <-timer.C:
				_, err := s.gen.Generate(ctx, postgres.SummaryTypeDaily, 0, 0)
				switch {
				case errors.Is(err, ErrNoArticles):
					s.logger.Info().Msg("No processed articles for scheduled digest")
				case err != nil:
					s.logger.Error().Err(err).Msg("Scheduled digest generation failed")
				}
			}
		}
	}()
}

// Stop ends the schedule loop. An in-flight generation completes on its own.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
}

// untilNextRun returns the wait until the next occurrence of the given UTC
// hour, at least a minute out so a run right at the boundary does not fire
// twice in one day.
func untilNextRun(now time.Time, hour int) time.Duration {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, time.UTC)
	if !next.After(now.Add(time.Minute)) {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(now)
}
