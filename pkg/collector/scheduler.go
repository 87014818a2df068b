package collector

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/aifeedco/aifeed/pkg/lib"
)

// Scheduler triggers periodic collection runs. A tick that lands while a
// task is still running is skipped.
type Scheduler struct {
	logger *zerolog.Logger
	cfg    *Config
	orch   *Orchestrator
	cancel context.CancelFunc
	done   chan struct{}
}

func NewScheduler(logger *zerolog.Logger, cfg *Config, orch *Orchestrator) *Scheduler {
	return &Scheduler{
		logger: logger,
		cfg:    cfg,
		orch:   orch,
	}
}

func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)

		ticker := lib.NewJitteredTicker(s.cfg.Interval)
		defer ticker.Stop()

		s.logger.Info().
			Dur("interval", s.cfg.Interval).
			Msg("Collection scheduler started")

		for {
			select {
			case <-ctx.Done():
				s.logger.Info().Msg("Collection scheduler stopped")
				return
			case <-ticker.C:
				_, err := s.orch.Start(ctx, StartOptions{AIEnabled: s.cfg.AIEnabled})
				switch {
				case errors.Is(err, ErrTaskRunning):
					s.logger.Info().Msg("Collection still running, skipping scheduled run")
				case err != nil:
					s.logger.Error().Err(err).Msg("Scheduled collection failed to start")
				}
			}
		}
	}()
}

// Stop ends the schedule loop. An in-flight collection run completes on its own.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
}
