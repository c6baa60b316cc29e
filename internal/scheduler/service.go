package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Service re-runs a pipeline on a standard cron schedule. Without it the
// CLI runs the pipeline exactly once.
type Service struct {
	schedule cron.Schedule
	expr     string
	run      func(ctx context.Context) error
	stop     chan struct{}
}

func NewService(expr string, run func(ctx context.Context) error) (*Service, error) {
	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, err
	}
	return &Service{schedule: schedule, expr: expr, run: run, stop: make(chan struct{})}, nil
}

// Validate checks a cron expression without building a service.
func Validate(expr string) error {
	_, err := cron.ParseStandard(expr)
	return err
}

// Start blocks, firing the pipeline at each scheduled instant, until the
// context is cancelled or Stop is called. A failed run is logged and the
// schedule keeps going.
func (s *Service) Start(ctx context.Context) error {
	log.Info().Str("cron", s.expr).Msg("schedule service started")
	for {
		next := s.schedule.Next(time.Now())
		log.Info().Time("next_run", next).Msg("pipeline scheduled")

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-s.stop:
			timer.Stop()
			return nil
		case <-timer.C:
		}

		if err := s.run(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Error().Err(err).Msg("scheduled pipeline run failed")
		}
	}
}

func (s *Service) Stop() {
	close(s.stop)
}
