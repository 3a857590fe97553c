package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/andresuchdata/autopo-replenishment/internal/cache"
	"github.com/andresuchdata/autopo-replenishment/internal/domain"
	"github.com/andresuchdata/autopo-replenishment/internal/pipeline"
	"github.com/andresuchdata/autopo-replenishment/internal/replenishment"
	"github.com/andresuchdata/autopo-replenishment/internal/settings"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRecommendations struct {
	latest    string
	records   []domain.RecommendationRecord
	summary   []domain.PrioritySummary
	lastQuery domain.RecommendationFilter
	listCalls int
}

func (s *stubRecommendations) SaveBatch(ctx context.Context, batch *domain.RunBatch, records []domain.RecommendationRecord) error {
	return nil
}

func (s *stubRecommendations) ListRecommendations(ctx context.Context, filter domain.RecommendationFilter) ([]domain.RecommendationRecord, int, error) {
	s.listCalls++
	s.lastQuery = filter
	return s.records, len(s.records), nil
}

func (s *stubRecommendations) SummarizeByPriority(ctx context.Context, source, analysisDate string) ([]domain.PrioritySummary, error) {
	return s.summary, nil
}

func (s *stubRecommendations) LatestAnalysisDate(ctx context.Context, source string) (string, error) {
	return s.latest, nil
}

// memoryCache keeps pages in a map keyed by the filter value.
type memoryCache struct {
	pages map[string]*cache.RecommendationPage
}

func (m *memoryCache) GetSummary(ctx context.Context, source, analysisDate string) ([]domain.PrioritySummary, bool, error) {
	return nil, false, nil
}

func (m *memoryCache) SetSummary(ctx context.Context, source, analysisDate string, summary []domain.PrioritySummary) error {
	return nil
}

func (m *memoryCache) GetPage(ctx context.Context, filter domain.RecommendationFilter) (*cache.RecommendationPage, bool, error) {
	page, ok := m.pages[pageKey(filter)]
	return page, ok, nil
}

func (m *memoryCache) SetPage(ctx context.Context, filter domain.RecommendationFilter, page *cache.RecommendationPage) error {
	m.pages[pageKey(filter)] = page
	return nil
}

func (m *memoryCache) InvalidateSource(ctx context.Context, source string) error {
	m.pages = make(map[string]*cache.RecommendationPage)
	return nil
}

func pageKey(filter domain.RecommendationFilter) string {
	return fmt.Sprintf("%s|%s|%v|%d|%d", filter.Source, filter.AnalysisDate, filter.Priorities, filter.Page, filter.PageSize)
}

func TestRecommendationListDefaultsToLatestDate(t *testing.T) {
	repo := &stubRecommendations{
		latest:  "2024-06-30",
		records: []domain.RecommendationRecord{{ProductID: "P-1"}},
	}
	svc := NewRecommendationService(repo, &memoryCache{pages: map[string]*cache.RecommendationPage{}})

	records, total, err := svc.List(context.Background(), domain.RecommendationFilter{Source: "shopee"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Len(t, records, 1)
	assert.Equal(t, "2024-06-30", repo.lastQuery.AnalysisDate)

	_, _, err = svc.List(context.Background(), domain.RecommendationFilter{Source: "shopee"})
	require.NoError(t, err)
	assert.Equal(t, 1, repo.listCalls, "second read served from cache")
}

func TestRecommendationListWithoutRuns(t *testing.T) {
	svc := NewRecommendationService(&stubRecommendations{}, nil)

	records, total, err := svc.List(context.Background(), domain.RecommendationFilter{Source: "shopee"})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.NotNil(t, records)
	assert.Empty(t, records)
}

func TestRecommendationValidation(t *testing.T) {
	svc := NewRecommendationService(&stubRecommendations{}, nil)

	_, _, err := svc.List(context.Background(), domain.RecommendationFilter{})
	assert.True(t, errors.Is(err, domain.ErrValidation))

	_, _, err = svc.Summary(context.Background(), "shopee", "June 30")
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestRecommendationSummary(t *testing.T) {
	repo := &stubRecommendations{
		latest:  "2024-06-30",
		summary: []domain.PrioritySummary{{PriorityLevel: domain.PriorityCritical, Count: 2}},
	}
	svc := NewRecommendationService(repo, nil)

	summary, date, err := svc.Summary(context.Background(), "shopee", "")
	require.NoError(t, err)
	assert.Equal(t, "2024-06-30", date)
	assert.Equal(t, repo.summary, summary)
}

type stubAlerts struct {
	alerts      map[int64]domain.AlertRecord
	transitions []domain.AlertStatus
}

func (s *stubAlerts) ListOpenAlerts(ctx context.Context, source string, productIDs []string) ([]domain.AlertRecord, error) {
	return nil, nil
}

func (s *stubAlerts) ListIgnoredAlerts(ctx context.Context, source string, productIDs []string) ([]domain.AlertRecord, error) {
	return nil, nil
}

func (s *stubAlerts) ApplyPlan(ctx context.Context, plan replenishment.ReconcilePlan) error {
	return nil
}

func (s *stubAlerts) ListAlerts(ctx context.Context, filter domain.AlertFilter) ([]domain.AlertRecord, int, error) {
	var out []domain.AlertRecord
	for id := int64(1); id <= int64(len(s.alerts)); id++ {
		a := s.alerts[id]
		for _, st := range filter.Statuses {
			if a.Status == st {
				out = append(out, a)
			}
		}
	}
	return out, len(out), nil
}

func (s *stubAlerts) GetAlert(ctx context.Context, id int64) (*domain.AlertRecord, error) {
	a, ok := s.alerts[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &a, nil
}

func (s *stubAlerts) TransitionAlert(ctx context.Context, id int64, from, to domain.AlertStatus, at time.Time) (*domain.AlertRecord, error) {
	a := s.alerts[id]
	if a.Status != from {
		return nil, domain.ErrInvalidTransition
	}
	s.transitions = append(s.transitions, to)
	a.Status = to
	a.UpdatedAt = at
	s.alerts[id] = a
	return &a, nil
}

type fixedSettings settings.RunSettings

func (f fixedSettings) RunSettings(ctx context.Context) (settings.RunSettings, error) {
	return settings.RunSettings(f), nil
}

func newAlertStub() *stubAlerts {
	return &stubAlerts{alerts: map[int64]domain.AlertRecord{
		1: {ID: 1, ProductID: "P-1", AlertType: domain.AlertStockoutCritical, AlertLevel: domain.AlertLevelCritical, Status: domain.AlertStatusNew},
		2: {ID: 2, ProductID: "P-2", AlertType: domain.AlertSlowMoving, AlertLevel: domain.AlertLevelLow, Status: domain.AlertStatusNew},
		3: {ID: 3, ProductID: "P-3", AlertType: domain.AlertStockoutWarning, AlertLevel: domain.AlertLevelHigh, Status: domain.AlertStatusResolved},
	}}
}

func TestAlertUpdateStatus(t *testing.T) {
	repo := newAlertStub()
	svc := NewAlertService(repo, fixedSettings(settings.Defaults()))

	updated, err := svc.UpdateStatus(context.Background(), 1, domain.AlertStatusAcknowledged)
	require.NoError(t, err)
	assert.Equal(t, domain.AlertStatusAcknowledged, updated.Status)

	_, err = svc.UpdateStatus(context.Background(), 1, domain.AlertStatusNew)
	assert.True(t, errors.Is(err, domain.ErrInvalidTransition))

	_, err = svc.UpdateStatus(context.Background(), 3, domain.AlertStatusIgnored)
	assert.True(t, errors.Is(err, domain.ErrInvalidTransition), "terminal alerts stay terminal")

	_, err = svc.UpdateStatus(context.Background(), 99, domain.AlertStatusResolved)
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	assert.Equal(t, []domain.AlertStatus{domain.AlertStatusAcknowledged}, repo.transitions)
}

func TestAlertNotifiableFiltersByConfiguredLevels(t *testing.T) {
	svc := NewAlertService(newAlertStub(), fixedSettings(settings.Defaults()))

	alerts, err := svc.Notifiable(context.Background(), "shopee")
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, int64(1), alerts[0].ID)

	rs := settings.Defaults()
	rs.NotifyAlertLevels = []domain.AlertLevel{domain.AlertLevelLow}
	svc = NewAlertService(newAlertStub(), fixedSettings(rs))

	alerts, err = svc.Notifiable(context.Background(), "shopee")
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, int64(2), alerts[0].ID)
}

type stubRunner struct {
	req pipeline.RunRequest
}

func (s *stubRunner) Run(ctx context.Context, req pipeline.RunRequest) (*domain.RunSummary, error) {
	s.req = req
	return &domain.RunSummary{RunID: "r-1", Source: req.Source, Status: domain.RunStatusCompleted}, nil
}

type stubRuns struct {
	run *domain.AnalysisRun
}

func (s *stubRuns) CreateRun(ctx context.Context, run *domain.AnalysisRun) error { return nil }
func (s *stubRuns) UpdateRun(ctx context.Context, run *domain.AnalysisRun) error { return nil }

func (s *stubRuns) GetRun(ctx context.Context, id string) (*domain.AnalysisRun, error) {
	if s.run == nil || s.run.ID != id {
		return nil, domain.ErrNotFound
	}
	return s.run, nil
}

func (s *stubRuns) RecordBatch(ctx context.Context, batch *domain.RunBatch) error { return nil }

func (s *stubRuns) ListBatches(ctx context.Context, runID string) ([]domain.RunBatch, error) {
	return nil, nil
}

func TestRunServiceTriggerAndGet(t *testing.T) {
	runner := &stubRunner{}
	runs := &stubRuns{run: &domain.AnalysisRun{ID: "r-1", Source: "shopee", Status: domain.RunStatusCompleted}}
	svc := NewRunService(runner, runs)

	summary, err := svc.Trigger(context.Background(), pipeline.RunRequest{Source: "shopee", DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, "r-1", summary.RunID)
	assert.True(t, runner.req.DryRun)

	detail, err := svc.Get(context.Background(), "r-1")
	require.NoError(t, err)
	assert.Equal(t, "shopee", detail.Run.Source)
	assert.NotNil(t, detail.Batches)

	_, err = svc.Get(context.Background(), "missing")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}
