// internal/repository/postgres/product_repository.go
package postgres

import (
	"context"
	"fmt"

	"github.com/andresuchdata/autopo-replenishment/internal/domain"
	"github.com/andresuchdata/autopo-replenishment/internal/repository"
)

type productRepository struct {
	db *DB
}

func NewProductRepository(db *DB) repository.ProductRepository {
	return &productRepository{db: db}
}

func (r *productRepository) ListActiveProducts(ctx context.Context, source, afterID string, limit int) ([]domain.Product, error) {
	if limit <= 0 {
		limit = 1000
	}

	// product_id is the keyset for batch paging.
	query := `
		SELECT product_id, sku, display_name, source, min_stock_level, max_stock_level,
		       reorder_point, lead_time_days, safety_stock_days,
		       is_active_for_replenishment, unit_cost
		FROM products
		WHERE source = $1
		  AND is_active_for_replenishment = TRUE
		  AND product_id > $2
		ORDER BY product_id
		LIMIT $3
	`

	var products []domain.Product
	if err := r.db.SelectContext(ctx, &products, query, source, afterID, limit); err != nil {
		return nil, fmt.Errorf("error listing active products: %w", err)
	}

	return products, nil
}

func (r *productRepository) CountActiveProducts(ctx context.Context, source string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM products WHERE source = $1 AND is_active_for_replenishment = TRUE`
	if err := r.db.GetContext(ctx, &count, query, source); err != nil {
		return 0, fmt.Errorf("error counting active products: %w", err)
	}
	return count, nil
}
