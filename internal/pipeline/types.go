package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/andresuchdata/autopo-replenishment/internal/config"
	"github.com/andresuchdata/autopo-replenishment/internal/domain"
	"github.com/andresuchdata/autopo-replenishment/internal/settings"
)

// RunRequest describes one analysis run.
type RunRequest struct {
	Source string
	// AnalysisDate defaults to today (UTC) when zero.
	AnalysisDate time.Time
	// DryRun computes everything but writes nothing.
	DryRun bool
	// Limit caps the number of products analyzed; zero means no cap.
	Limit int
}

// Validate normalizes the request and rejects malformed input.
func (r *RunRequest) Validate() error {
	r.Source = strings.TrimSpace(r.Source)
	if r.Source == "" {
		return fmt.Errorf("%w: source is required", domain.ErrValidation)
	}
	if r.Limit < 0 {
		return fmt.Errorf("%w: limit must not be negative", domain.ErrValidation)
	}
	return nil
}

// ParseAnalysisDate parses a YYYY-MM-DD date. An empty string means today.
func ParseAnalysisDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(domain.DateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: analysis date %q must be YYYY-MM-DD", domain.ErrValidation, value)
	}
	return t, nil
}

// RunnerConfig holds execution knobs of the runner
type RunnerConfig struct {
	WorkerCount   int           // Concurrent product computations per batch
	RetryAttempts int           // Retries of a failed persistence step
	RetryBackoff  time.Duration // Initial backoff, doubled on each retry
	LockTTL       time.Duration // Lease duration of the per-source lock
}

// DefaultRunnerConfig returns sensible defaults
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		WorkerCount:   4,
		RetryAttempts: 3,
		RetryBackoff:  500 * time.Millisecond,
		LockTTL:       2 * time.Hour,
	}
}

// RunnerConfigFrom maps application config onto runner knobs.
func RunnerConfigFrom(engine config.EngineConfig, lock config.LockConfig) RunnerConfig {
	cfg := DefaultRunnerConfig()
	if engine.WorkerCount > 0 {
		cfg.WorkerCount = engine.WorkerCount
	}
	if engine.RetryAttempts >= 0 {
		cfg.RetryAttempts = engine.RetryAttempts
	}
	if engine.RetryBackoff > 0 {
		cfg.RetryBackoff = engine.RetryBackoff
	}
	if lock.TTL > 0 {
		cfg.LockTTL = lock.TTL
	}
	return cfg
}

// SettingsSource resolves the settings a run works with.
type SettingsSource interface {
	RunSettings(ctx context.Context) (settings.RunSettings, error)
}

// Exporter publishes the committed recommendations of a run.
type Exporter interface {
	Export(ctx context.Context, source string, analysisDate time.Time, records []domain.RecommendationRecord) (string, error)
}

// CacheInvalidator drops cached reads of a source after new data lands.
type CacheInvalidator interface {
	InvalidateSource(ctx context.Context, source string) error
}
