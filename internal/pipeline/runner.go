package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/andresuchdata/autopo-replenishment/internal/domain"
	"github.com/andresuchdata/autopo-replenishment/internal/lock"
	"github.com/andresuchdata/autopo-replenishment/internal/metrics"
	"github.com/andresuchdata/autopo-replenishment/internal/replenishment"
	"github.com/andresuchdata/autopo-replenishment/internal/repository"
	"github.com/andresuchdata/autopo-replenishment/internal/settings"
	"github.com/andresuchdata/autopo-replenishment/pkg/logger"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Dependencies are the collaborators of a Runner. Exporter, Cache, Metrics
// and IsTransient are optional.
type Dependencies struct {
	Products        repository.ProductRepository
	Sales           repository.SalesRepository
	Inventory       repository.InventoryRepository
	Recommendations repository.RecommendationRepository
	Alerts          repository.AlertRepository
	Runs            repository.RunRepository
	Settings        SettingsSource
	Locker          lock.Locker
	Exporter        Exporter
	Cache           CacheInvalidator
	Metrics         *metrics.Metrics
	// IsTransient reports whether a persistence error is worth retrying.
	// Nil retries every error.
	IsTransient func(error) bool
}

// Runner executes analysis runs: one per (source, analysis date), products
// processed in keyset-paged batches, each batch committed on its own.
type Runner struct {
	deps Dependencies
	cfg  RunnerConfig
	now  func() time.Time
}

// NewRunner creates a new analysis runner
func NewRunner(deps Dependencies, cfg RunnerConfig) *Runner {
	if cfg.WorkerCount < 1 {
		cfg.WorkerCount = 1
	}
	return &Runner{deps: deps, cfg: cfg, now: time.Now}
}

// run carries the mutable state of one execution.
type run struct {
	keeper    *lock.Keeper
	req       RunRequest
	date      time.Time
	settings  settings.RunSettings
	record    *domain.AnalysisRun
	summary   *domain.RunSummary
	log       zerolog.Logger
	committed []domain.RecommendationRecord
	cancelled bool
	alertErr  error
}

// Run executes one analysis run. It returns domain.ErrValidation,
// domain.ErrRunInProgress (lock held, or lost mid-run) or
// domain.ErrPartialFailure (all wrapped) for the corresponding outcomes, and
// the context error when cancelled between batches. The summary is non-nil whenever the run got past its lock.
func (r *Runner) Run(ctx context.Context, req RunRequest) (*domain.RunSummary, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	startedAt := r.now()
	date := req.AnalysisDate
	if date.IsZero() {
		date = startedAt
	}
	date = replenishment.AnalysisDay(date)

	lease, err := r.deps.Locker.Acquire(ctx, lock.RunKey(req.Source), r.cfg.LockTTL)
	if err != nil {
		return nil, err
	}
	keeper := lock.KeepAlive(ctx, lease, r.cfg.LockTTL)
	defer func() {
		keeper.Stop()
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			logger.Log.Warn().Err(err).Str("source", req.Source).Msg("failed to release run lock")
		}
	}()

	// Settings are read once; later edits apply to the next run.
	rs, err := r.deps.Settings.RunSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load run settings: %w", err)
	}

	runID := uuid.NewString()
	st := &run{
		keeper:   keeper,
		req:      req,
		date:     date,
		settings: rs,
		log:      logger.ForRun(runID, req.Source),
		record: &domain.AnalysisRun{
			ID:           runID,
			Source:       req.Source,
			AnalysisDate: date,
			Status:       domain.RunStatusProcessing,
			DryRun:       req.DryRun,
			StartedAt:    startedAt,
		},
		summary: &domain.RunSummary{
			RunID:            runID,
			Source:           req.Source,
			AnalysisDate:     date.Format(domain.DateLayout),
			DryRun:           req.DryRun,
			SucceededBatches: []int{},
			FailedBatches:    []int{},
		},
	}

	if !req.DryRun {
		if err := r.deps.Runs.CreateRun(ctx, st.record); err != nil {
			return nil, fmt.Errorf("failed to create analysis run: %w", err)
		}
	}

	st.log.Info().
		Str("analysis_date", st.summary.AnalysisDate).
		Bool("dry_run", req.DryRun).
		Int("batch_size", rs.BatchSize).
		Int("limit", req.Limit).
		Msg("Starting analysis run")

	runErr := r.processBatches(ctx, st)
	if runErr == nil && !st.cancelled {
		// Alerts are only reconciled by the run that still owns the source.
		runErr = st.keeper.Renew(context.WithoutCancel(ctx))
	}
	if runErr == nil && !st.cancelled && rs.AlertsEnabled {
		st.alertErr = r.reconcileAlerts(context.WithoutCancel(ctx), st)
	}

	return r.finish(ctx, st, runErr)
}

// processBatches walks the catalog in product_id order. Cancellation is only
// observed between batches; a started batch always finishes.
func (r *Runner) processBatches(ctx context.Context, st *run) error {
	afterID := ""
	processed := 0

	for batchNumber := 1; ; batchNumber++ {
		if ctx.Err() != nil {
			st.cancelled = true
			st.log.Warn().Int("batch", batchNumber).Msg("Run cancelled before batch")
			return nil
		}
		if err := st.keeper.Renew(context.WithoutCancel(ctx)); err != nil {
			return fmt.Errorf("stopping before batch %d: %w", batchNumber, err)
		}

		limit := st.settings.BatchSize
		if st.req.Limit > 0 {
			remaining := st.req.Limit - processed
			if remaining <= 0 {
				return nil
			}
			if remaining < limit {
				limit = remaining
			}
		}

		batchCtx := context.WithoutCancel(ctx)

		var products []domain.Product
		if _, err := r.retry(batchCtx, st, "load products", func() error {
			var err error
			products, err = r.deps.Products.ListActiveProducts(batchCtx, st.req.Source, afterID, limit)
			return err
		}); err != nil {
			return fmt.Errorf("failed to load products after %q: %w", afterID, err)
		}
		if len(products) == 0 {
			return nil
		}

		r.processBatch(batchCtx, st, batchNumber, products)

		processed += len(products)
		afterID = products[len(products)-1].ProductID
		if len(products) < limit {
			return nil
		}
	}
}

// processBatch analyzes and persists one batch. Failures are recorded on the
// batch and never abort the run.
func (r *Runner) processBatch(ctx context.Context, st *run, batchNumber int, products []domain.Product) {
	startTime := time.Now()
	batch := &domain.RunBatch{
		RunID:          st.record.ID,
		BatchNumber:    batchNumber,
		FirstProductID: products[0].ProductID,
		LastProductID:  products[len(products)-1].ProductID,
		ProductCount:   len(products),
		Status:         domain.BatchStatusProcessing,
	}
	blog := st.log.With().Int("batch", batchNumber).Logger()

	records, retries, err := r.analyzeBatch(ctx, st, products)
	if err == nil && !st.req.DryRun {
		var saveRetries int
		attempts := 0
		saveRetries, err = r.retry(ctx, st, "save batch", func() error {
			batch.RetryCount = retries + attempts
			attempts++
			return r.deps.Recommendations.SaveBatch(ctx, batch, records)
		})
		retries += saveRetries
	}
	batch.RetryCount = retries

	if err != nil {
		batch.Status = domain.BatchStatusFailed
		batch.ErrorMessage = err.Error()
		st.summary.FailedBatches = append(st.summary.FailedBatches, batchNumber)
		r.deps.Metrics.RecordBatch(st.req.Source, string(domain.BatchStatusFailed), retries)

		blog.Error().Err(err).
			Str("first_product_id", batch.FirstProductID).
			Str("last_product_id", batch.LastProductID).
			Int("retries", retries).
			Msg("Batch failed, continuing with next batch")

		if !st.req.DryRun {
			if recErr := r.deps.Runs.RecordBatch(ctx, batch); recErr != nil {
				blog.Error().Err(recErr).Msg("Failed to record failed batch")
			}
		}
		return
	}

	skipped := 0
	for _, rec := range records {
		if rec.DataIssue != "" {
			skipped++
		}
	}

	st.committed = append(st.committed, records...)
	st.summary.SucceededBatches = append(st.summary.SucceededBatches, batchNumber)
	st.summary.ProductsAnalyzed += len(records) - skipped
	st.summary.ProductsSkipped += skipped
	if !st.req.DryRun {
		st.summary.RecommendationsWritten += len(records)
	}
	r.deps.Metrics.RecordBatch(st.req.Source, string(domain.BatchStatusCommitted), retries)
	r.deps.Metrics.RecordProducts(st.req.Source, len(records)-skipped, skipped)

	blog.Info().
		Int("products", len(records)).
		Int("skipped", skipped).
		Dur("duration", time.Since(startTime)).
		Msg("Batch completed")
}

// analyzeBatch loads the batch's facts and computes one record per product.
// Product computation is pure and runs on a bounded worker pool.
func (r *Runner) analyzeBatch(ctx context.Context, st *run, products []domain.Product) ([]domain.RecommendationRecord, int, error) {
	ids := make([]string, len(products))
	for i, p := range products {
		ids[i] = p.ProductID
	}

	from := st.date.AddDate(0, 0, -st.settings.SalesLookbackDays)

	var (
		histories map[string]domain.SalesHistory
		snapshots map[string][]domain.InventorySnapshot
	)
	retries, err := r.retry(ctx, st, "load batch facts", func() error {
		var err error
		if histories, err = r.deps.Sales.GetSalesHistories(ctx, st.req.Source, ids, from, st.date); err != nil {
			return err
		}
		snapshots, err = r.deps.Inventory.GetSnapshots(ctx, st.req.Source, ids)
		return err
	})
	if err != nil {
		return nil, retries, fmt.Errorf("failed to load batch facts: %w", err)
	}

	analyzer := replenishment.NewVelocityAnalyzer(st.settings)
	calculator := replenishment.NewPositionCalculator()
	engine := replenishment.NewRecommendationEngine(st.settings)

	records := make([]domain.RecommendationRecord, len(products))
	g := new(errgroup.Group)
	g.SetLimit(r.cfg.WorkerCount)

	for i := range products {
		i := i
		g.Go(func() error {
			p := products[i]
			history := histories[p.ProductID]
			history.ProductID = p.ProductID

			v := analyzer.Analyze(history, st.date)
			pos, err := calculator.Calculate(snapshots[p.ProductID], v)
			if err != nil {
				st.log.Warn().
					Str("product_id", p.ProductID).
					Str("reason", err.Error()).
					Msg("Skipping product with invalid input data")
				records[i] = engine.Unanalyzable(p, st.date, err.Error())
				return nil
			}

			records[i] = engine.Recommend(replenishment.RecommendationInput{
				Product:      p,
				AnalysisDate: st.date,
				Velocity:     v,
				Position:     pos,
			})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, retries, err
	}

	return records, retries, nil
}

// reconcileAlerts runs a single alert pass over every committed record and
// applies the plan in one transaction. A dry run only counts the changes.
func (r *Runner) reconcileAlerts(ctx context.Context, st *run) error {
	if len(st.committed) == 0 {
		return nil
	}

	ids := make([]string, 0, len(st.committed))
	for _, rec := range st.committed {
		ids = append(ids, rec.ProductID)
	}

	var open, ignored []domain.AlertRecord
	if _, err := r.retry(ctx, st, "load alerts", func() error {
		var err error
		if open, err = r.deps.Alerts.ListOpenAlerts(ctx, st.req.Source, ids); err != nil {
			return err
		}
		ignored, err = r.deps.Alerts.ListIgnoredAlerts(ctx, st.req.Source, ids)
		return err
	}); err != nil {
		return fmt.Errorf("failed to load alerts: %w", err)
	}

	plan := replenishment.NewAlertManager(st.settings).Reconcile(replenishment.ReconcileInput{
		AnalysisDate:  st.date,
		Now:           r.now(),
		Records:       st.committed,
		OpenAlerts:    open,
		IgnoredAlerts: ignored,
	})

	if !st.req.DryRun && !plan.Empty() {
		if _, err := r.retry(ctx, st, "apply alert plan", func() error {
			return r.deps.Alerts.ApplyPlan(ctx, plan)
		}); err != nil {
			return fmt.Errorf("failed to apply alert plan: %w", err)
		}
	}

	st.summary.AlertsRaised = len(plan.Create)
	st.summary.AlertsUpdated = len(plan.Update)
	st.summary.AlertsResolved = len(plan.Resolve) + len(plan.Cleared)
	st.summary.AlertsReopened = len(plan.Reopen)
	r.deps.Metrics.RecordAlerts(st.req.Source, len(plan.Create), len(plan.Update), st.summary.AlertsResolved, len(plan.Reopen))

	st.log.Info().
		Int("raised", st.summary.AlertsRaised).
		Int("updated", st.summary.AlertsUpdated).
		Int("resolved", st.summary.AlertsResolved).
		Int("reopened", st.summary.AlertsReopened).
		Msg("Alerts reconciled")
	return nil
}

// finish settles the run status, persists it and publishes side outputs.
func (r *Runner) finish(ctx context.Context, st *run, runErr error) (*domain.RunSummary, error) {
	finishCtx := context.WithoutCancel(ctx)
	failed := len(st.summary.FailedBatches)
	succeeded := len(st.summary.SucceededBatches)

	var err error
	switch {
	case runErr != nil:
		st.summary.Status = domain.RunStatusFailed
		err = runErr
	case st.cancelled:
		st.summary.Status = domain.RunStatusCancelled
		err = fmt.Errorf("analysis run cancelled after %d batches: %w", succeeded+failed, context.Cause(ctx))
	case failed > 0 && succeeded == 0:
		st.summary.Status = domain.RunStatusFailed
		err = fmt.Errorf("all %d batches failed", failed)
	case failed > 0 || st.alertErr != nil:
		st.summary.Status = domain.RunStatusPartiallyFailed
		if st.alertErr != nil {
			err = fmt.Errorf("%w: %v", domain.ErrPartialFailure, st.alertErr)
		} else {
			err = fmt.Errorf("%w: failed batches %v", domain.ErrPartialFailure, st.summary.FailedBatches)
		}
	default:
		st.summary.Status = domain.RunStatusCompleted
	}

	completedAt := r.now()
	st.summary.Duration = completedAt.Sub(st.record.StartedAt)

	if !st.req.DryRun {
		st.record.Status = st.summary.Status
		st.record.ProductsAnalyzed = st.summary.ProductsAnalyzed
		st.record.RecommendationsWritten = st.summary.RecommendationsWritten
		st.record.AlertsRaised = st.summary.AlertsRaised
		st.record.AlertsResolved = st.summary.AlertsResolved
		st.record.CompletedAt = &completedAt
		if err != nil {
			st.record.ErrorMessage = err.Error()
		}
		if updErr := r.deps.Runs.UpdateRun(finishCtx, st.record); updErr != nil {
			st.log.Error().Err(updErr).Msg("Failed to persist run status")
		}

		r.publish(finishCtx, st)
	}

	r.deps.Metrics.RecordRun(st.req.Source, string(st.summary.Status), st.summary.Duration)
	r.recordPriorities(st)

	event := st.log.Info()
	if err != nil {
		event = st.log.Warn().Err(err)
	}
	event.
		Str("status", string(st.summary.Status)).
		Int("products_analyzed", st.summary.ProductsAnalyzed).
		Int("products_skipped", st.summary.ProductsSkipped).
		Ints("failed_batches", st.summary.FailedBatches).
		Dur("duration", st.summary.Duration).
		Msg("Analysis run finished")

	return st.summary, err
}

// publish refreshes downstream readers once new rows are committed.
func (r *Runner) publish(ctx context.Context, st *run) {
	if len(st.committed) == 0 {
		return
	}

	if r.deps.Cache != nil {
		if err := r.deps.Cache.InvalidateSource(ctx, st.req.Source); err != nil {
			st.log.Warn().Err(err).Msg("Failed to invalidate recommendation cache")
		}
	}

	if r.deps.Exporter != nil && !st.cancelled {
		key, err := r.deps.Exporter.Export(ctx, st.req.Source, st.date, st.committed)
		if err != nil {
			st.log.Warn().Err(err).Msg("Failed to export recommendations")
			return
		}
		st.log.Info().Str("key", key).Int("records", len(st.committed)).Msg("Exported recommendations")
	}
}

func (r *Runner) recordPriorities(st *run) {
	if st.cancelled || len(st.summary.FailedBatches) > 0 {
		return
	}
	counts := make(map[string]int)
	for _, rec := range st.committed {
		counts[string(rec.PriorityLevel)]++
	}
	r.deps.Metrics.SetPriorityCounts(st.req.Source, counts)
}

// retry runs fn until it succeeds, returns a non-transient error or runs
// out of attempts. The backoff doubles after every failure. It returns the
// number of retries performed.
func (r *Runner) retry(ctx context.Context, st *run, op string, fn func() error) (int, error) {
	backoff := r.cfg.RetryBackoff
	var err error
	for attempt := 0; ; attempt++ {
		if err = fn(); err == nil {
			return attempt, nil
		}
		if attempt >= r.cfg.RetryAttempts || (r.deps.IsTransient != nil && !r.deps.IsTransient(err)) {
			return attempt, err
		}

		st.log.Warn().Err(err).
			Str("operation", op).
			Int("attempt", attempt+1).
			Dur("backoff", backoff).
			Msg("Retrying after error")

		select {
		case <-ctx.Done():
			return attempt, err
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}
