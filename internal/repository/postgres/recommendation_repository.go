// internal/repository/postgres/recommendation_repository.go
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/andresuchdata/autopo-replenishment/internal/domain"
	"github.com/andresuchdata/autopo-replenishment/internal/repository"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const recommendationColumns = `
	product_id, sku, source, analysis_date, current_stock, available_stock, reserved_stock,
	daily_sales_rate_7d, daily_sales_rate_14d, daily_sales_rate_30d, days_until_stockout,
	target_stock_level, recommended_order_quantity, recommended_order_value, priority_level,
	urgency_score, sales_trend, last_sale_date, inventory_turnover_days,
	has_inventory_snapshot, data_issue`

type recommendationRepository struct {
	db *DB
}

func NewRecommendationRepository(db *DB) repository.RecommendationRepository {
	return &recommendationRepository{db: db}
}

func (r *recommendationRepository) SaveBatch(ctx context.Context, batch *domain.RunBatch, records []domain.RecommendationRecord) error {
	return r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		// 1. Upsert recommendations on (product_id, source, analysis_date)
		query := `
			INSERT INTO replenishment_recommendations (` + recommendationColumns + `
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
			ON CONFLICT (product_id, source, analysis_date)
			DO UPDATE SET
				sku = EXCLUDED.sku,
				current_stock = EXCLUDED.current_stock,
				available_stock = EXCLUDED.available_stock,
				reserved_stock = EXCLUDED.reserved_stock,
				daily_sales_rate_7d = EXCLUDED.daily_sales_rate_7d,
				daily_sales_rate_14d = EXCLUDED.daily_sales_rate_14d,
				daily_sales_rate_30d = EXCLUDED.daily_sales_rate_30d,
				days_until_stockout = EXCLUDED.days_until_stockout,
				target_stock_level = EXCLUDED.target_stock_level,
				recommended_order_quantity = EXCLUDED.recommended_order_quantity,
				recommended_order_value = EXCLUDED.recommended_order_value,
				priority_level = EXCLUDED.priority_level,
				urgency_score = EXCLUDED.urgency_score,
				sales_trend = EXCLUDED.sales_trend,
				last_sale_date = EXCLUDED.last_sale_date,
				inventory_turnover_days = EXCLUDED.inventory_turnover_days,
				has_inventory_snapshot = EXCLUDED.has_inventory_snapshot,
				data_issue = EXCLUDED.data_issue,
				updated_at = NOW()
		`

		stmt, err := tx.PreparexContext(ctx, query)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, rec := range records {
			_, err := stmt.ExecContext(
				ctx,
				rec.ProductID,
				rec.SKU,
				rec.Source,
				rec.AnalysisDate,
				rec.CurrentStock,
				rec.AvailableStock,
				rec.ReservedStock,
				rec.DailySalesRate7d,
				rec.DailySalesRate14d,
				rec.DailySalesRate30d,
				rec.DaysUntilStockout,
				rec.TargetStockLevel,
				rec.RecommendedOrderQuantity,
				rec.RecommendedOrderValue,
				rec.PriorityLevel,
				rec.UrgencyScore,
				rec.SalesTrend,
				rec.LastSaleDate,
				rec.InventoryTurnoverDays,
				rec.HasInventorySnapshot,
				rec.DataIssue,
			)
			if err != nil {
				return fmt.Errorf("failed to upsert recommendation for %s: %w", rec.ProductID, err)
			}
		}

		// 2. Mark the batch committed alongside its rows
		if batch == nil {
			return nil
		}
		batch.Status = domain.BatchStatusCommitted
		return upsertBatch(ctx, tx, batch)
	})
}

func (r *recommendationRepository) ListRecommendations(ctx context.Context, filter domain.RecommendationFilter) ([]domain.RecommendationRecord, int, error) {
	where, args := buildRecommendationFilter(filter)

	var total int
	countQuery := `SELECT COUNT(*) FROM replenishment_recommendations` + where
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("error counting recommendations: %w", err)
	}

	page, pageSize := normalizePage(filter.Page, filter.PageSize)
	query := fmt.Sprintf(`
		SELECT %s
		FROM replenishment_recommendations%s
		ORDER BY urgency_score DESC, product_id
		LIMIT $%d OFFSET $%d
	`, recommendationColumns, where, len(args)+1, len(args)+2)
	args = append(args, pageSize, (page-1)*pageSize)

	var records []domain.RecommendationRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, 0, fmt.Errorf("error listing recommendations: %w", err)
	}

	return records, total, nil
}

func (r *recommendationRepository) SummarizeByPriority(ctx context.Context, source, analysisDate string) ([]domain.PrioritySummary, error) {
	query := `
		SELECT priority_level,
		       COUNT(*) AS count,
		       COALESCE(SUM(recommended_order_quantity), 0) AS total_quantity,
		       COALESCE(SUM(recommended_order_value), 0) AS total_value
		FROM replenishment_recommendations
		WHERE source = $1 AND analysis_date = $2
		GROUP BY priority_level
		ORDER BY CASE priority_level
			WHEN 'CRITICAL' THEN 1
			WHEN 'HIGH' THEN 2
			WHEN 'MEDIUM' THEN 3
			ELSE 4
		END
	`

	var summary []domain.PrioritySummary
	if err := r.db.SelectContext(ctx, &summary, query, source, analysisDate); err != nil {
		return nil, fmt.Errorf("error summarizing recommendations: %w", err)
	}
	return summary, nil
}

func (r *recommendationRepository) LatestAnalysisDate(ctx context.Context, source string) (string, error) {
	var date string
	query := `
		SELECT COALESCE(TO_CHAR(MAX(analysis_date), 'YYYY-MM-DD'), '')
		FROM replenishment_recommendations
		WHERE source = $1
	`
	if err := r.db.GetContext(ctx, &date, query, source); err != nil {
		return "", fmt.Errorf("error getting latest analysis date: %w", err)
	}
	return date, nil
}

func buildRecommendationFilter(filter domain.RecommendationFilter) (string, []interface{}) {
	var conditions []string
	var args []interface{}
	argCounter := 1

	if filter.Source != "" {
		conditions = append(conditions, fmt.Sprintf("source = $%d", argCounter))
		args = append(args, filter.Source)
		argCounter++
	}

	if filter.AnalysisDate != "" {
		conditions = append(conditions, fmt.Sprintf("analysis_date = $%d", argCounter))
		args = append(args, filter.AnalysisDate)
		argCounter++
	}

	if len(filter.Priorities) > 0 {
		priorities := make([]string, 0, len(filter.Priorities))
		for _, p := range filter.Priorities {
			priorities = append(priorities, string(p))
		}
		conditions = append(conditions, fmt.Sprintf("priority_level = ANY($%d::text[])", argCounter))
		args = append(args, pq.Array(priorities))
	}

	if len(conditions) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 50
	}
	if pageSize > 500 {
		pageSize = 500
	}
	return page, pageSize
}
