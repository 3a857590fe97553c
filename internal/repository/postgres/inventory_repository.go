package postgres

import (
	"context"
	"fmt"

	"github.com/andresuchdata/autopo-replenishment/internal/domain"
	"github.com/andresuchdata/autopo-replenishment/internal/repository"
	"github.com/lib/pq"
)

type inventoryRepository struct {
	db *DB
}

func NewInventoryRepository(db *DB) repository.InventoryRepository {
	return &inventoryRepository{db: db}
}

func (r *inventoryRepository) GetSnapshots(ctx context.Context, source string, productIDs []string) (map[string][]domain.InventorySnapshot, error) {
	out := make(map[string][]domain.InventorySnapshot, len(productIDs))
	if len(productIDs) == 0 {
		return out, nil
	}

	query := `
		SELECT product_id, source, warehouse, quantity_present, quantity_reserved, updated_at
		FROM inventory_snapshots
		WHERE source = $1
		  AND product_id = ANY($2::text[])
		ORDER BY product_id, warehouse
	`

	var snapshots []domain.InventorySnapshot
	if err := r.db.SelectContext(ctx, &snapshots, query, source, pq.Array(productIDs)); err != nil {
		return nil, fmt.Errorf("error loading inventory snapshots: %w", err)
	}

	for _, s := range snapshots {
		out[s.ProductID] = append(out[s.ProductID], s)
	}
	return out, nil
}
