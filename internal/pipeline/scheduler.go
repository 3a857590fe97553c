package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/andresuchdata/autopo-replenishment/internal/config"
	"github.com/andresuchdata/autopo-replenishment/internal/domain"
	"github.com/rs/zerolog/log"
)

// AnalysisRunner executes a single analysis run.
type AnalysisRunner interface {
	Run(ctx context.Context, req RunRequest) (*domain.RunSummary, error)
}

// Scheduler triggers one run per configured source every day at a fixed
// local wall-clock time.
type Scheduler struct {
	runner  AnalysisRunner
	sources []string
	hour    int
	minute  int
	now     func() time.Time
}

// NewScheduler creates a scheduler from config. RunAt must be HH:MM.
func NewScheduler(runner AnalysisRunner, cfg config.SchedulerConfig) (*Scheduler, error) {
	at, err := time.Parse("15:04", strings.TrimSpace(cfg.RunAt))
	if err != nil {
		return nil, fmt.Errorf("%w: scheduler run time %q must be HH:MM", domain.ErrValidation, cfg.RunAt)
	}

	sources := make([]string, 0, len(cfg.Sources))
	for _, src := range cfg.Sources {
		if src = strings.TrimSpace(src); src != "" {
			sources = append(sources, src)
		}
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("%w: scheduler needs at least one source", domain.ErrValidation)
	}

	return &Scheduler{
		runner:  runner,
		sources: sources,
		hour:    at.Hour(),
		minute:  at.Minute(),
		now:     time.Now,
	}, nil
}

// NextRun returns the first scheduled time strictly after t.
func (s *Scheduler) NextRun(t time.Time) time.Time {
	next := time.Date(t.Year(), t.Month(), t.Day(), s.hour, s.minute, 0, 0, t.Location())
	if !next.After(t) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// Start blocks, running every source at each scheduled time until ctx is
// done.
func (s *Scheduler) Start(ctx context.Context) {
	for {
		next := s.NextRun(s.now())
		log.Info().
			Strs("sources", s.sources).
			Time("next_run", next).
			Msg("Scheduler waiting for next run")

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Info().Msg("Scheduler stopped")
			return
		case <-timer.C:
		}

		s.RunOnce(ctx)
	}
}

// RunOnce runs every source for today in turn. Contention with a run already
// in progress is expected and only logged.
func (s *Scheduler) RunOnce(ctx context.Context) {
	for _, source := range s.sources {
		if ctx.Err() != nil {
			return
		}

		summary, err := s.runner.Run(ctx, RunRequest{Source: source})
		switch {
		case err == nil:
			log.Info().
				Str("source", source).
				Str("run_id", summary.RunID).
				Int("products_analyzed", summary.ProductsAnalyzed).
				Msg("Scheduled run completed")
		case errors.Is(err, domain.ErrRunInProgress):
			log.Warn().Str("source", source).Msg("Scheduled run skipped, another run holds the lock")
		default:
			log.Error().Err(err).Str("source", source).Msg("Scheduled run failed")
		}
	}
}
