package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/andresuchdata/autopo-replenishment/internal/domain"
	"github.com/andresuchdata/autopo-replenishment/internal/repository"
	"github.com/jmoiron/sqlx"
)

// runRepository handles database operations for analysis run tracking
type runRepository struct {
	db *DB
}

func NewRunRepository(db *DB) repository.RunRepository {
	return &runRepository{db: db}
}

// CreateRun creates a new analysis run record
func (r *runRepository) CreateRun(ctx context.Context, run *domain.AnalysisRun) error {
	query := `
		INSERT INTO analysis_runs (
			id, source, analysis_date, status, dry_run, products_analyzed,
			recommendations_written, alerts_raised, alerts_resolved, started_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.ExecContext(
		ctx, query,
		run.ID, run.Source, run.AnalysisDate, run.Status, run.DryRun, run.ProductsAnalyzed,
		run.RecommendationsWritten, run.AlertsRaised, run.AlertsResolved, run.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create analysis run: %w", err)
	}
	return nil
}

// UpdateRun updates an existing analysis run
func (r *runRepository) UpdateRun(ctx context.Context, run *domain.AnalysisRun) error {
	query := `
		UPDATE analysis_runs
		SET status = $1, products_analyzed = $2, recommendations_written = $3,
		    alerts_raised = $4, alerts_resolved = $5, completed_at = $6, error_message = $7
		WHERE id = $8
	`

	_, err := r.db.ExecContext(
		ctx, query,
		run.Status, run.ProductsAnalyzed, run.RecommendationsWritten,
		run.AlertsRaised, run.AlertsResolved, run.CompletedAt, run.ErrorMessage, run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update analysis run: %w", err)
	}
	return nil
}

// GetRun retrieves an analysis run by ID
func (r *runRepository) GetRun(ctx context.Context, id string) (*domain.AnalysisRun, error) {
	query := `
		SELECT id, source, analysis_date, status, dry_run, products_analyzed,
		       recommendations_written, alerts_raised, alerts_resolved,
		       started_at, completed_at, error_message
		FROM analysis_runs
		WHERE id = $1
	`

	run := &domain.AnalysisRun{}
	err := r.db.GetContext(ctx, run, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get analysis run: %w", err)
	}

	return run, nil
}

// RecordBatch stores the outcome of a batch outside of its data transaction,
// which is how failed batches are kept.
func (r *runRepository) RecordBatch(ctx context.Context, batch *domain.RunBatch) error {
	return upsertBatch(ctx, r.db, batch)
}

// ListBatches retrieves all batches of a run
func (r *runRepository) ListBatches(ctx context.Context, runID string) ([]domain.RunBatch, error) {
	query := `
		SELECT id, run_id, batch_number, first_product_id, last_product_id,
		       product_count, status, retry_count, error_message
		FROM analysis_run_batches
		WHERE run_id = $1
		ORDER BY batch_number
	`

	var batches []domain.RunBatch
	if err := r.db.SelectContext(ctx, &batches, query, runID); err != nil {
		return nil, fmt.Errorf("failed to list run batches: %w", err)
	}
	return batches, nil
}

func upsertBatch(ctx context.Context, q sqlx.QueryerContext, batch *domain.RunBatch) error {
	query := `
		INSERT INTO analysis_run_batches (
			run_id, batch_number, first_product_id, last_product_id,
			product_count, status, retry_count, error_message
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (run_id, batch_number)
		DO UPDATE SET
			status = EXCLUDED.status,
			retry_count = EXCLUDED.retry_count,
			error_message = EXCLUDED.error_message
		RETURNING id
	`

	err := q.QueryRowxContext(
		ctx, query,
		batch.RunID, batch.BatchNumber, batch.FirstProductID, batch.LastProductID,
		batch.ProductCount, batch.Status, batch.RetryCount, batch.ErrorMessage,
	).Scan(&batch.ID)
	if err != nil {
		return fmt.Errorf("failed to record batch %d: %w", batch.BatchNumber, err)
	}
	return nil
}
