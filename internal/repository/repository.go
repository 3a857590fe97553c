package repository

import (
	"context"
	"time"

	"github.com/andresuchdata/autopo-replenishment/internal/domain"
	"github.com/andresuchdata/autopo-replenishment/internal/replenishment"
)

// ProductRepository reads the replenishment-enabled catalog.
type ProductRepository interface {
	// ListActiveProducts returns up to limit active products of a source
	// with product_id > afterID, ordered by product_id.
	ListActiveProducts(ctx context.Context, source, afterID string, limit int) ([]domain.Product, error)
	CountActiveProducts(ctx context.Context, source string) (int, error)
}

// SalesRepository reads order facts.
type SalesRepository interface {
	// GetSalesHistories loads the order lines of productIDs in [from, to)
	// plus each product's all-time first and last sale date.
	GetSalesHistories(ctx context.Context, source string, productIDs []string, from, to time.Time) (map[string]domain.SalesHistory, error)
}

type InventoryRepository interface {
	GetSnapshots(ctx context.Context, source string, productIDs []string) (map[string][]domain.InventorySnapshot, error)
}

type RecommendationRepository interface {
	// SaveBatch upserts a batch of records and marks the batch committed in
	// one transaction.
	SaveBatch(ctx context.Context, batch *domain.RunBatch, records []domain.RecommendationRecord) error
	ListRecommendations(ctx context.Context, filter domain.RecommendationFilter) ([]domain.RecommendationRecord, int, error)
	SummarizeByPriority(ctx context.Context, source, analysisDate string) ([]domain.PrioritySummary, error)
	LatestAnalysisDate(ctx context.Context, source string) (string, error)
}

type AlertRepository interface {
	ListOpenAlerts(ctx context.Context, source string, productIDs []string) ([]domain.AlertRecord, error)
	// ListIgnoredAlerts returns, per (source, product_id, alert_type), the most
	// recent terminal alert when that alert is IGNORED.
	ListIgnoredAlerts(ctx context.Context, source string, productIDs []string) ([]domain.AlertRecord, error)
	// ApplyPlan writes every change of a reconcile plan in one transaction.
	ApplyPlan(ctx context.Context, plan replenishment.ReconcilePlan) error
	ListAlerts(ctx context.Context, filter domain.AlertFilter) ([]domain.AlertRecord, int, error)
	GetAlert(ctx context.Context, id int64) (*domain.AlertRecord, error)
	// TransitionAlert moves an alert from one status to another, failing
	// with domain.ErrInvalidTransition if it is no longer in from.
	TransitionAlert(ctx context.Context, id int64, from, to domain.AlertStatus, at time.Time) (*domain.AlertRecord, error)
}

type RunRepository interface {
	CreateRun(ctx context.Context, run *domain.AnalysisRun) error
	UpdateRun(ctx context.Context, run *domain.AnalysisRun) error
	GetRun(ctx context.Context, id string) (*domain.AnalysisRun, error)
	RecordBatch(ctx context.Context, batch *domain.RunBatch) error
	ListBatches(ctx context.Context, runID string) ([]domain.RunBatch, error)
}
