// internal/repository/postgres/alert_repository.go
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/andresuchdata/autopo-replenishment/internal/domain"
	"github.com/andresuchdata/autopo-replenishment/internal/replenishment"
	"github.com/andresuchdata/autopo-replenishment/internal/repository"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const alertColumns = `
	id, product_id, sku, source, alert_type, alert_level, message, status,
	created_at, updated_at, acknowledged_at, resolved_at`

// openStatusList matches the predicate of uq_alerts_open_source_product_type.
const openStatusList = `('NEW', 'ACKNOWLEDGED', 'IN_PROGRESS')`

type alertRepository struct {
	db *DB
}

func NewAlertRepository(db *DB) repository.AlertRepository {
	return &alertRepository{db: db}
}

func (r *alertRepository) ListOpenAlerts(ctx context.Context, source string, productIDs []string) ([]domain.AlertRecord, error) {
	if len(productIDs) == 0 {
		return nil, nil
	}

	query := `
		SELECT ` + alertColumns + `
		FROM replenishment_alerts
		WHERE source = $1
		  AND product_id = ANY($2::text[])
		  AND status IN ` + openStatusList + `
		ORDER BY id
	`

	var alerts []domain.AlertRecord
	if err := r.db.SelectContext(ctx, &alerts, query, source, pq.Array(productIDs)); err != nil {
		return nil, fmt.Errorf("error listing open alerts: %w", err)
	}
	return alerts, nil
}

func (r *alertRepository) ListIgnoredAlerts(ctx context.Context, source string, productIDs []string) ([]domain.AlertRecord, error) {
	if len(productIDs) == 0 {
		return nil, nil
	}

	query := `
		SELECT ` + alertColumns + `
		FROM (
			SELECT DISTINCT ON (product_id, alert_type) ` + alertColumns + `
			FROM replenishment_alerts
			WHERE source = $1
			  AND product_id = ANY($2::text[])
			  AND status IN ('RESOLVED', 'IGNORED')
			ORDER BY product_id, alert_type, updated_at DESC, id DESC
		) latest
		WHERE status = 'IGNORED'
		ORDER BY id
	`

	var alerts []domain.AlertRecord
	if err := r.db.SelectContext(ctx, &alerts, query, source, pq.Array(productIDs)); err != nil {
		return nil, fmt.Errorf("error listing ignored alerts: %w", err)
	}
	return alerts, nil
}

func (r *alertRepository) ApplyPlan(ctx context.Context, plan replenishment.ReconcilePlan) error {
	if plan.Empty() {
		return nil
	}

	return r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		// 1. New alerts; a concurrent open alert for the same source, product and type is refreshed instead
		for _, a := range plan.Create {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO replenishment_alerts (
					product_id, sku, source, alert_type, alert_level, message, status, created_at, updated_at
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
				ON CONFLICT (source, product_id, alert_type) WHERE status IN `+openStatusList+`
				DO UPDATE SET message = EXCLUDED.message, alert_level = EXCLUDED.alert_level, updated_at = EXCLUDED.updated_at
			`, a.ProductID, a.SKU, a.Source, a.AlertType, a.AlertLevel, a.Message, a.Status, a.CreatedAt, a.UpdatedAt)
			if err != nil {
				return fmt.Errorf("failed to create %s alert for %s: %w", a.AlertType, a.ProductID, err)
			}
		}

		// 2. Refresh alerts whose condition still holds
		for _, a := range plan.Update {
			_, err := tx.ExecContext(ctx, `
				UPDATE replenishment_alerts
				SET message = $1, alert_level = $2, updated_at = $3
				WHERE id = $4 AND status IN `+openStatusList,
				a.Message, a.AlertLevel, a.UpdatedAt, a.ID)
			if err != nil {
				return fmt.Errorf("failed to update alert %d: %w", a.ID, err)
			}
		}

		// 3. Auto-resolve cleared conditions and duplicates
		for _, a := range plan.Resolve {
			_, err := tx.ExecContext(ctx, `
				UPDATE replenishment_alerts
				SET status = 'RESOLVED', message = $1, resolved_at = $2, updated_at = $3
				WHERE id = $4 AND status IN `+openStatusList,
				a.Message, a.ResolvedAt, a.UpdatedAt, a.ID)
			if err != nil {
				return fmt.Errorf("failed to resolve alert %d: %w", a.ID, err)
			}
		}

		// 4. Ignored alerts: reopen on re-trigger, stamp when cleared
		for _, a := range plan.Reopen {
			_, err := tx.ExecContext(ctx, `
				UPDATE replenishment_alerts
				SET status = 'NEW', message = $1, alert_level = $2, updated_at = $3,
				    acknowledged_at = NULL, resolved_at = NULL
				WHERE id = $4 AND status = 'IGNORED'`,
				a.Message, a.AlertLevel, a.UpdatedAt, a.ID)
			if err != nil {
				return fmt.Errorf("failed to reopen alert %d: %w", a.ID, err)
			}
		}
		for _, a := range plan.Cleared {
			_, err := tx.ExecContext(ctx, `
				UPDATE replenishment_alerts
				SET resolved_at = $1, updated_at = $2
				WHERE id = $3 AND status = 'IGNORED'`,
				a.ResolvedAt, a.UpdatedAt, a.ID)
			if err != nil {
				return fmt.Errorf("failed to clear alert %d: %w", a.ID, err)
			}
		}

		return nil
	})
}

func (r *alertRepository) ListAlerts(ctx context.Context, filter domain.AlertFilter) ([]domain.AlertRecord, int, error) {
	var conditions []string
	var args []interface{}
	argCounter := 1

	if filter.Source != "" {
		conditions = append(conditions, fmt.Sprintf("source = $%d", argCounter))
		args = append(args, filter.Source)
		argCounter++
	}

	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, s := range filter.Statuses {
			statuses = append(statuses, string(s))
		}
		conditions = append(conditions, fmt.Sprintf("status = ANY($%d::text[])", argCounter))
		args = append(args, pq.Array(statuses))
		argCounter++
	}

	if filter.AlertType != "" {
		conditions = append(conditions, fmt.Sprintf("alert_type = $%d", argCounter))
		args = append(args, filter.AlertType)
		argCounter++
	}

	if filter.ProductID != "" {
		conditions = append(conditions, fmt.Sprintf("product_id = $%d", argCounter))
		args = append(args, filter.ProductID)
		argCounter++
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM replenishment_alerts`+where, args...); err != nil {
		return nil, 0, fmt.Errorf("error counting alerts: %w", err)
	}

	page, pageSize := normalizePage(filter.Page, filter.PageSize)
	query := fmt.Sprintf(`
		SELECT %s
		FROM replenishment_alerts%s
		ORDER BY CASE alert_level
			WHEN 'CRITICAL' THEN 1
			WHEN 'HIGH' THEN 2
			WHEN 'MEDIUM' THEN 3
			WHEN 'LOW' THEN 4
			ELSE 5
		END, created_at DESC, id DESC
		LIMIT $%d OFFSET $%d
	`, alertColumns, where, argCounter, argCounter+1)
	args = append(args, pageSize, (page-1)*pageSize)

	var alerts []domain.AlertRecord
	if err := r.db.SelectContext(ctx, &alerts, query, args...); err != nil {
		return nil, 0, fmt.Errorf("error listing alerts: %w", err)
	}
	return alerts, total, nil
}

func (r *alertRepository) GetAlert(ctx context.Context, id int64) (*domain.AlertRecord, error) {
	alert := &domain.AlertRecord{}
	err := r.db.GetContext(ctx, alert, `SELECT `+alertColumns+` FROM replenishment_alerts WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error getting alert %d: %w", id, err)
	}
	return alert, nil
}

func (r *alertRepository) TransitionAlert(ctx context.Context, id int64, from, to domain.AlertStatus, at time.Time) (*domain.AlertRecord, error) {
	// IGNORED leaves resolved_at empty; it is stamped once the condition clears.
	query := `
		UPDATE replenishment_alerts
		SET status = $1::text,
		    updated_at = $2,
		    acknowledged_at = CASE WHEN $1::text = 'ACKNOWLEDGED' THEN $2 ELSE acknowledged_at END,
		    resolved_at = CASE WHEN $1::text = 'RESOLVED' THEN $2 ELSE resolved_at END
		WHERE id = $3 AND status = $4
		RETURNING ` + alertColumns

	alert := &domain.AlertRecord{}
	err := r.db.GetContext(ctx, alert, query, to, at, id, from)
	if errors.Is(err, sql.ErrNoRows) {
		if _, getErr := r.GetAlert(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, fmt.Errorf("alert %d is no longer %s: %w", id, from, domain.ErrInvalidTransition)
	}
	if err != nil {
		return nil, fmt.Errorf("error updating alert %d: %w", id, err)
	}
	return alert, nil
}
