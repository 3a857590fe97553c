package pipeline

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/andresuchdata/autopo-replenishment/internal/domain"
	"github.com/andresuchdata/autopo-replenishment/internal/replenishment"
	"github.com/andresuchdata/autopo-replenishment/internal/settings"
)

var errStoreDown = errors.New("store unavailable")

type fakeCatalog struct {
	products  []domain.Product
	sales     map[string][]domain.SalesRecord
	snapshots map[string][]domain.InventorySnapshot
}

func (c *fakeCatalog) ListActiveProducts(ctx context.Context, source, afterID string, limit int) ([]domain.Product, error) {
	sorted := append([]domain.Product(nil), c.products...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ProductID < sorted[j].ProductID })

	var out []domain.Product
	for _, p := range sorted {
		if p.Source == source && p.IsActiveForReplenishment && p.ProductID > afterID {
			out = append(out, p)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (c *fakeCatalog) CountActiveProducts(ctx context.Context, source string) (int, error) {
	return len(c.products), nil
}

func (c *fakeCatalog) GetSalesHistories(ctx context.Context, source string, productIDs []string, from, to time.Time) (map[string]domain.SalesHistory, error) {
	out := make(map[string]domain.SalesHistory, len(productIDs))
	for _, id := range productIDs {
		h := domain.SalesHistory{ProductID: id}
		for _, rec := range c.sales[id] {
			if rec.TransactionType == domain.TransactionSale && rec.OrderDate.Before(to) {
				d := rec.OrderDate
				if h.FirstSaleDate == nil || d.Before(*h.FirstSaleDate) {
					h.FirstSaleDate = &d
				}
				if h.LastSaleDate == nil || d.After(*h.LastSaleDate) {
					h.LastSaleDate = &d
				}
			}
			if !rec.OrderDate.Before(from) && rec.OrderDate.Before(to) {
				h.Records = append(h.Records, rec)
			}
		}
		out[id] = h
	}
	return out, nil
}

func (c *fakeCatalog) GetSnapshots(ctx context.Context, source string, productIDs []string) (map[string][]domain.InventorySnapshot, error) {
	out := make(map[string][]domain.InventorySnapshot)
	for _, id := range productIDs {
		if snaps, ok := c.snapshots[id]; ok {
			out[id] = snaps
		}
	}
	return out, nil
}

// fakeRecommendations stores rows by their uniqueness key. failBatch makes
// SaveBatch fail for that batch number; failTimes bounds how often.
type fakeRecommendations struct {
	mu        sync.Mutex
	rows      map[domain.RecommendationKey]domain.RecommendationRecord
	batches   []domain.RunBatch
	saves     int
	failBatch int
	failTimes int
	onSave    func(batch *domain.RunBatch)
}

func newFakeRecommendations() *fakeRecommendations {
	return &fakeRecommendations{rows: make(map[domain.RecommendationKey]domain.RecommendationRecord)}
}

func (f *fakeRecommendations) SaveBatch(ctx context.Context, batch *domain.RunBatch, records []domain.RecommendationRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.saves++
	if batch.BatchNumber == f.failBatch && f.failTimes != 0 {
		if f.failTimes > 0 {
			f.failTimes--
		}
		return errStoreDown
	}
	for _, rec := range records {
		f.rows[rec.Key()] = rec
	}
	batch.Status = domain.BatchStatusCommitted
	f.batches = append(f.batches, *batch)
	if f.onSave != nil {
		f.onSave(batch)
	}
	return nil
}

func (f *fakeRecommendations) ListRecommendations(ctx context.Context, filter domain.RecommendationFilter) ([]domain.RecommendationRecord, int, error) {
	return nil, 0, nil
}

func (f *fakeRecommendations) SummarizeByPriority(ctx context.Context, source, analysisDate string) ([]domain.PrioritySummary, error) {
	return nil, nil
}

func (f *fakeRecommendations) LatestAnalysisDate(ctx context.Context, source string) (string, error) {
	return "", nil
}

func (f *fakeRecommendations) sortedRows() []domain.RecommendationRecord {
	out := make([]domain.RecommendationRecord, 0, len(f.rows))
	for _, rec := range f.rows {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}

type fakeAlerts struct {
	alerts []domain.AlertRecord
	nextID int64
}

func (f *fakeAlerts) ListOpenAlerts(ctx context.Context, source string, productIDs []string) ([]domain.AlertRecord, error) {
	wanted := toSet(productIDs)
	var out []domain.AlertRecord
	for _, a := range f.alerts {
		if a.Source == source && wanted[a.ProductID] && a.Status.IsOpen() {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeAlerts) ListIgnoredAlerts(ctx context.Context, source string, productIDs []string) ([]domain.AlertRecord, error) {
	return nil, nil
}

func (f *fakeAlerts) ApplyPlan(ctx context.Context, plan replenishment.ReconcilePlan) error {
	for _, a := range plan.Create {
		f.nextID++
		a.ID = f.nextID
		f.alerts = append(f.alerts, a)
	}
	for _, group := range [][]domain.AlertRecord{plan.Update, plan.Resolve, plan.Reopen, plan.Cleared} {
		for _, a := range group {
			for i := range f.alerts {
				if f.alerts[i].ID == a.ID {
					f.alerts[i] = a
				}
			}
		}
	}
	return nil
}

func (f *fakeAlerts) ListAlerts(ctx context.Context, filter domain.AlertFilter) ([]domain.AlertRecord, int, error) {
	return f.alerts, len(f.alerts), nil
}

func (f *fakeAlerts) GetAlert(ctx context.Context, id int64) (*domain.AlertRecord, error) {
	return nil, domain.ErrNotFound
}

func (f *fakeAlerts) TransitionAlert(ctx context.Context, id int64, from, to domain.AlertStatus, at time.Time) (*domain.AlertRecord, error) {
	return nil, domain.ErrNotFound
}

type fakeRuns struct {
	runs    map[string]domain.AnalysisRun
	batches []domain.RunBatch
}

func newFakeRuns() *fakeRuns {
	return &fakeRuns{runs: make(map[string]domain.AnalysisRun)}
}

func (f *fakeRuns) CreateRun(ctx context.Context, run *domain.AnalysisRun) error {
	f.runs[run.ID] = *run
	return nil
}

func (f *fakeRuns) UpdateRun(ctx context.Context, run *domain.AnalysisRun) error {
	f.runs[run.ID] = *run
	return nil
}

func (f *fakeRuns) GetRun(ctx context.Context, id string) (*domain.AnalysisRun, error) {
	run, ok := f.runs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &run, nil
}

func (f *fakeRuns) RecordBatch(ctx context.Context, batch *domain.RunBatch) error {
	f.batches = append(f.batches, *batch)
	return nil
}

func (f *fakeRuns) ListBatches(ctx context.Context, runID string) ([]domain.RunBatch, error) {
	return f.batches, nil
}

type staticSettings struct {
	rs settings.RunSettings
}

func (s staticSettings) RunSettings(ctx context.Context) (settings.RunSettings, error) {
	return s.rs, nil
}

type recordingExporter struct {
	keys    []string
	records int
}

func (e *recordingExporter) Export(ctx context.Context, source string, analysisDate time.Time, records []domain.RecommendationRecord) (string, error) {
	key := source + "/" + analysisDate.Format("20060102")
	e.keys = append(e.keys, key)
	e.records = len(records)
	return key, nil
}

type recordingCache struct {
	invalidated []string
}

func (c *recordingCache) InvalidateSource(ctx context.Context, source string) error {
	c.invalidated = append(c.invalidated, source)
	return nil
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
