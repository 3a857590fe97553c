package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/andresuchdata/autopo-replenishment/internal/domain"
	"github.com/andresuchdata/autopo-replenishment/internal/repository"
	"github.com/lib/pq"
)

type salesRepository struct {
	db *DB
}

func NewSalesRepository(db *DB) repository.SalesRepository {
	return &salesRepository{db: db}
}

type saleBounds struct {
	ProductID string     `db:"product_id"`
	FirstSale *time.Time `db:"first_sale"`
	LastSale  *time.Time `db:"last_sale"`
}

func (r *salesRepository) GetSalesHistories(ctx context.Context, source string, productIDs []string, from, to time.Time) (map[string]domain.SalesHistory, error) {
	histories := make(map[string]domain.SalesHistory, len(productIDs))
	if len(productIDs) == 0 {
		return histories, nil
	}

	recordsQuery := `
		SELECT product_id, source, order_date, quantity, transaction_type
		FROM sales_records
		WHERE source = $1
		  AND product_id = ANY($2::text[])
		  AND order_date >= $3
		  AND order_date < $4
		ORDER BY product_id, order_date
	`

	var records []domain.SalesRecord
	if err := r.db.SelectContext(ctx, &records, recordsQuery, source, pq.Array(productIDs), from, to); err != nil {
		return nil, fmt.Errorf("error loading sales records: %w", err)
	}

	boundsQuery := `
		SELECT product_id, MIN(order_date) AS first_sale, MAX(order_date) AS last_sale
		FROM sales_records
		WHERE source = $1
		  AND product_id = ANY($2::text[])
		  AND transaction_type = 'sale'
		  AND order_date < $3
		GROUP BY product_id
	`

	var bounds []saleBounds
	if err := r.db.SelectContext(ctx, &bounds, boundsQuery, source, pq.Array(productIDs), to); err != nil {
		return nil, fmt.Errorf("error loading sale bounds: %w", err)
	}

	for _, rec := range records {
		h := histories[rec.ProductID]
		h.ProductID = rec.ProductID
		h.Records = append(h.Records, rec)
		histories[rec.ProductID] = h
	}
	for _, b := range bounds {
		h := histories[b.ProductID]
		h.ProductID = b.ProductID
		h.FirstSaleDate = b.FirstSale
		h.LastSaleDate = b.LastSale
		histories[b.ProductID] = h
	}

	return histories, nil
}
