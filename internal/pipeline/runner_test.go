package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/andresuchdata/autopo-replenishment/internal/domain"
	"github.com/andresuchdata/autopo-replenishment/internal/lock"
	"github.com/andresuchdata/autopo-replenishment/internal/settings"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var runDate = time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)

type harness struct {
	catalog  *fakeCatalog
	recs     *fakeRecommendations
	alerts   *fakeAlerts
	runs     *fakeRuns
	locker   *lock.MemoryLocker
	exporter *recordingExporter
	cache    *recordingCache
	runner   *Runner
}

// newHarness seeds n products that each sell 10 units a day and hold 20,
// so every product is CRITICAL with a two day stockout horizon.
func newHarness(t *testing.T, n int) *harness {
	t.Helper()

	catalog := &fakeCatalog{
		sales:     make(map[string][]domain.SalesRecord),
		snapshots: make(map[string][]domain.InventorySnapshot),
	}
	for i := 1; i <= n; i++ {
		id := fmt.Sprintf("P-%02d", i)
		catalog.products = append(catalog.products, domain.Product{
			ProductID:                id,
			SKU:                      "SKU-" + id,
			Source:                   "shopee",
			IsActiveForReplenishment: true,
		})
		for day := 1; day <= 30; day++ {
			catalog.sales[id] = append(catalog.sales[id], domain.SalesRecord{
				ProductID:       id,
				Source:          "shopee",
				OrderDate:       runDate.AddDate(0, 0, -day),
				Quantity:        10,
				TransactionType: domain.TransactionSale,
			})
		}
		catalog.snapshots[id] = []domain.InventorySnapshot{
			{ProductID: id, Source: "shopee", Warehouse: "main", QuantityPresent: 20},
		}
	}

	rs := settings.Defaults()
	rs.BatchSize = 2

	h := &harness{
		catalog:  catalog,
		recs:     newFakeRecommendations(),
		alerts:   &fakeAlerts{},
		runs:     newFakeRuns(),
		locker:   lock.NewMemoryLocker(),
		exporter: &recordingExporter{},
		cache:    &recordingCache{},
	}
	h.runner = NewRunner(Dependencies{
		Products:        catalog,
		Sales:           catalog,
		Inventory:       catalog,
		Recommendations: h.recs,
		Alerts:          h.alerts,
		Runs:            h.runs,
		Settings:        staticSettings{rs: rs},
		Locker:          h.locker,
		Exporter:        h.exporter,
		Cache:           h.cache,
	}, RunnerConfig{
		WorkerCount:   2,
		RetryAttempts: 2,
		RetryBackoff:  time.Millisecond,
		LockTTL:       time.Minute,
	})
	h.runner.now = func() time.Time { return runDate.Add(2 * time.Hour) }
	return h
}

func (h *harness) run(ctx context.Context, req RunRequest) (*domain.RunSummary, error) {
	if req.Source == "" {
		req.Source = "shopee"
	}
	if req.AnalysisDate.IsZero() {
		req.AnalysisDate = runDate
	}
	return h.runner.Run(ctx, req)
}

func TestRunCompletesAndPublishes(t *testing.T) {
	h := newHarness(t, 5)

	summary, err := h.run(context.Background(), RunRequest{})
	require.NoError(t, err)

	assert.Equal(t, domain.RunStatusCompleted, summary.Status)
	assert.Equal(t, "2024-06-30", summary.AnalysisDate)
	assert.Equal(t, 5, summary.ProductsAnalyzed)
	assert.Equal(t, 5, summary.RecommendationsWritten)
	assert.Equal(t, []int{1, 2, 3}, summary.SucceededBatches)
	assert.Empty(t, summary.FailedBatches)
	assert.Equal(t, 5, summary.AlertsRaised)

	rows := h.recs.sortedRows()
	require.Len(t, rows, 5)
	for _, rec := range rows {
		assert.Equal(t, domain.PriorityCritical, rec.PriorityLevel, rec.ProductID)
		require.NotNil(t, rec.DaysUntilStockout)
		assert.Equal(t, 2.0, *rec.DaysUntilStockout)
	}

	run, err := h.runs.GetRun(context.Background(), summary.RunID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusCompleted, run.Status)
	assert.Equal(t, 5, run.RecommendationsWritten)
	assert.NotNil(t, run.CompletedAt)

	assert.Equal(t, []string{"shopee/20240630"}, h.exporter.keys)
	assert.Equal(t, 5, h.exporter.records)
	assert.Equal(t, []string{"shopee"}, h.cache.invalidated)
}

func TestRerunIsIdempotent(t *testing.T) {
	h := newHarness(t, 5)
	ctx := context.Background()

	first, err := h.run(ctx, RunRequest{})
	require.NoError(t, err)
	afterFirst := h.recs.sortedRows()

	second, err := h.run(ctx, RunRequest{})
	require.NoError(t, err)

	assert.Equal(t, afterFirst, h.recs.sortedRows())
	assert.Len(t, h.recs.rows, 5)
	assert.NotEqual(t, first.RunID, second.RunID)

	assert.Equal(t, 5, first.AlertsRaised)
	assert.Equal(t, 0, second.AlertsRaised)
	assert.Equal(t, 5, second.AlertsUpdated)
	assert.Len(t, h.alerts.alerts, 5, "no duplicate alerts on re-run")
}

func TestRunRejectsConcurrentRunForSource(t *testing.T) {
	h := newHarness(t, 2)
	ctx := context.Background()

	lease, err := h.locker.Acquire(ctx, lock.RunKey("shopee"), time.Minute)
	require.NoError(t, err)

	summary, err := h.run(ctx, RunRequest{})
	assert.Nil(t, summary)
	assert.True(t, errors.Is(err, domain.ErrRunInProgress))
	assert.Empty(t, h.runs.runs)

	require.NoError(t, lease.Release(ctx))
	_, err = h.run(ctx, RunRequest{})
	assert.NoError(t, err, "lock is free again once released")
}

func TestRunReleasesLockAfterRun(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()

	_, err := h.run(ctx, RunRequest{})
	require.NoError(t, err)

	lease, err := h.locker.Acquire(ctx, lock.RunKey("shopee"), time.Minute)
	require.NoError(t, err)
	require.NoError(t, lease.Release(ctx))
}

func TestRunKeepsLockWhileBatchOutlivesTTL(t *testing.T) {
	h := newHarness(t, 3)
	h.runner.cfg.LockTTL = 30 * time.Millisecond
	ctx := context.Background()

	started := make(chan struct{})
	var once sync.Once
	h.recs.onSave = func(batch *domain.RunBatch) {
		if batch.BatchNumber == 1 {
			once.Do(func() { close(started) })
			time.Sleep(150 * time.Millisecond)
		}
	}

	type result struct {
		summary *domain.RunSummary
		err     error
	}
	first := make(chan result, 1)
	go func() {
		summary, err := h.run(ctx, RunRequest{})
		first <- result{summary, err}
	}()

	<-started
	time.Sleep(60 * time.Millisecond)

	summary, err := h.run(ctx, RunRequest{})
	assert.Nil(t, summary)
	assert.True(t, errors.Is(err, domain.ErrRunInProgress), "second run must not start while the first holds the source")

	res := <-first
	require.NoError(t, res.err)
	assert.Equal(t, domain.RunStatusCompleted, res.summary.Status)
	assert.Equal(t, []int{1, 2}, res.summary.SucceededBatches)
}

// stealableLocker hands out leases that report loss once stolen is set.
type stealableLocker struct {
	stolen atomic.Bool
}

func (l *stealableLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (lock.Lease, error) {
	return &stealableLease{locker: l, key: key}, nil
}

type stealableLease struct {
	locker *stealableLocker
	key    string
}

func (s *stealableLease) Key() string { return s.key }

func (s *stealableLease) Extend(ctx context.Context, ttl time.Duration) error {
	if s.locker.stolen.Load() {
		return fmt.Errorf("lock %s was taken: %w", s.key, domain.ErrRunInProgress)
	}
	return nil
}

func (s *stealableLease) Release(ctx context.Context) error { return nil }

func TestRunStopsWhenLockIsLost(t *testing.T) {
	h := newHarness(t, 5)
	locker := &stealableLocker{}
	h.runner.deps.Locker = locker
	h.recs.onSave = func(batch *domain.RunBatch) {
		if batch.BatchNumber == 1 {
			locker.stolen.Store(true)
		}
	}

	summary, err := h.run(context.Background(), RunRequest{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrRunInProgress))

	require.NotNil(t, summary)
	assert.Equal(t, domain.RunStatusFailed, summary.Status)
	assert.Equal(t, []int{1}, summary.SucceededBatches)
	assert.Equal(t, 1, h.recs.saves, "no batch starts after the lock is lost")
	assert.Empty(t, h.alerts.alerts, "alerts are not reconciled without the lock")
}

func TestRunPartialFailureKeepsCommittedBatches(t *testing.T) {
	h := newHarness(t, 5)
	h.recs.failBatch = 2
	h.recs.failTimes = -1

	summary, err := h.run(context.Background(), RunRequest{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrPartialFailure))

	assert.Equal(t, domain.RunStatusPartiallyFailed, summary.Status)
	assert.Equal(t, []int{1, 3}, summary.SucceededBatches)
	assert.Equal(t, []int{2}, summary.FailedBatches)
	assert.Equal(t, 3, summary.ProductsAnalyzed)
	assert.Equal(t, 5, h.recs.saves, "batch 2 tried once plus two retries")

	rows := h.recs.rows
	assert.Len(t, rows, 3)
	_, stored := rows[domain.RecommendationKey{ProductID: "P-03", Source: "shopee", AnalysisDate: "2024-06-30"}]
	assert.False(t, stored)

	require.Len(t, h.runs.batches, 1)
	failed := h.runs.batches[0]
	assert.Equal(t, domain.BatchStatusFailed, failed.Status)
	assert.Equal(t, 2, failed.BatchNumber)
	assert.Equal(t, "P-03", failed.FirstProductID)
	assert.Equal(t, "P-04", failed.LastProductID)
	assert.Equal(t, 2, failed.RetryCount)
	assert.Contains(t, failed.ErrorMessage, errStoreDown.Error())

	run, err := h.runs.GetRun(context.Background(), summary.RunID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusPartiallyFailed, run.Status)
	assert.NotEmpty(t, run.ErrorMessage)

	assert.Len(t, h.alerts.alerts, 3, "alerts only for committed products")
}

func TestRunRetriesTransientSaveFailure(t *testing.T) {
	h := newHarness(t, 2)
	h.recs.failBatch = 1
	h.recs.failTimes = 1

	summary, err := h.run(context.Background(), RunRequest{})
	require.NoError(t, err)

	assert.Equal(t, domain.RunStatusCompleted, summary.Status)
	require.Len(t, h.recs.batches, 1)
	assert.Equal(t, 1, h.recs.batches[0].RetryCount)
}

func TestRunDoesNotRetryPermanentErrors(t *testing.T) {
	h := newHarness(t, 2)
	h.recs.failBatch = 1
	h.recs.failTimes = -1
	h.runner.deps.IsTransient = func(err error) bool { return false }

	summary, err := h.run(context.Background(), RunRequest{})
	require.Error(t, err)

	assert.Equal(t, domain.RunStatusFailed, summary.Status, "no batch committed")
	assert.False(t, errors.Is(err, domain.ErrPartialFailure))
	assert.Equal(t, 1, h.recs.saves)
}

func TestRunCancellationStopsAtBatchBoundary(t *testing.T) {
	h := newHarness(t, 5)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h.recs.onSave = func(batch *domain.RunBatch) {
		if batch.BatchNumber == 1 {
			cancel()
		}
	}

	summary, err := h.run(ctx, RunRequest{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))

	assert.Equal(t, domain.RunStatusCancelled, summary.Status)
	assert.Equal(t, []int{1}, summary.SucceededBatches)
	assert.Len(t, h.recs.rows, 2, "in-flight batch completed")
	assert.Empty(t, h.alerts.alerts, "alerts are not reconciled for a cancelled run")

	run, err := h.runs.GetRun(context.Background(), summary.RunID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusCancelled, run.Status)
}

func TestDryRunWritesNothing(t *testing.T) {
	h := newHarness(t, 5)

	summary, err := h.run(context.Background(), RunRequest{DryRun: true})
	require.NoError(t, err)

	assert.True(t, summary.DryRun)
	assert.Equal(t, domain.RunStatusCompleted, summary.Status)
	assert.Equal(t, 5, summary.ProductsAnalyzed)
	assert.Equal(t, 0, summary.RecommendationsWritten)
	assert.Equal(t, 5, summary.AlertsRaised, "alerts are counted, not written")

	assert.Empty(t, h.recs.rows)
	assert.Empty(t, h.alerts.alerts)
	assert.Empty(t, h.runs.runs)
	assert.Empty(t, h.exporter.keys)
	assert.Empty(t, h.cache.invalidated)
}

func TestRunHonoursLimit(t *testing.T) {
	h := newHarness(t, 5)

	summary, err := h.run(context.Background(), RunRequest{Limit: 3})
	require.NoError(t, err)

	assert.Equal(t, 3, summary.ProductsAnalyzed)
	assert.Equal(t, []int{1, 2}, summary.SucceededBatches)
	assert.Len(t, h.recs.rows, 3)
}

func TestRunSkipsProductsWithInvalidInventory(t *testing.T) {
	h := newHarness(t, 5)
	h.catalog.snapshots["P-03"] = []domain.InventorySnapshot{
		{ProductID: "P-03", Source: "shopee", Warehouse: "main", QuantityPresent: -4},
	}

	summary, err := h.run(context.Background(), RunRequest{})
	require.NoError(t, err)

	assert.Equal(t, 4, summary.ProductsAnalyzed)
	assert.Equal(t, 1, summary.ProductsSkipped)
	assert.Equal(t, 5, summary.RecommendationsWritten)

	rec := h.recs.rows[domain.RecommendationKey{ProductID: "P-03", Source: "shopee", AnalysisDate: "2024-06-30"}]
	assert.Equal(t, domain.TrendNoData, rec.SalesTrend)
	assert.Equal(t, domain.PriorityLow, rec.PriorityLevel)
	assert.Nil(t, rec.DaysUntilStockout)
	assert.Contains(t, rec.DataIssue, "invalid inventory snapshot")

	assert.Len(t, h.alerts.alerts, 4, "product with a data issue raises no alerts")
}

func TestRunValidatesRequest(t *testing.T) {
	h := newHarness(t, 1)

	_, err := h.runner.Run(context.Background(), RunRequest{Source: "  "})
	assert.True(t, errors.Is(err, domain.ErrValidation))

	_, err = h.runner.Run(context.Background(), RunRequest{Source: "shopee", Limit: -1})
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestParseAnalysisDate(t *testing.T) {
	d, err := ParseAnalysisDate("2024-06-30")
	require.NoError(t, err)
	assert.Equal(t, runDate, d)

	d, err = ParseAnalysisDate("")
	require.NoError(t, err)
	assert.True(t, d.IsZero())

	_, err = ParseAnalysisDate("30/06/2024")
	assert.True(t, errors.Is(err, domain.ErrValidation))
}
