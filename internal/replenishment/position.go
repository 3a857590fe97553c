package replenishment

import (
	"fmt"

	"github.com/andresuchdata/autopo-replenishment/internal/domain"
)

// StockPosition is the source-level stock picture of one product.
type StockPosition struct {
	CurrentStock          int
	ReservedStock         int
	AvailableStock        int
	DaysUntilStockout     *float64
	InventoryTurnoverDays *float64
	HasSnapshot           bool
}

// PositionCalculator sums warehouse snapshots and forecasts stockout.
type PositionCalculator struct{}

func NewPositionCalculator() *PositionCalculator {
	return &PositionCalculator{}
}

// Calculate builds the position for one product. Stockout is forecast from
// the 7 day rate and turnover from the 30 day rate; both are nil when the
// rate is zero.
func (pc *PositionCalculator) Calculate(snapshots []domain.InventorySnapshot, v Velocity) (StockPosition, error) {
	pos := StockPosition{HasSnapshot: len(snapshots) > 0}

	for _, s := range snapshots {
		if s.QuantityPresent < 0 || s.QuantityReserved < 0 {
			return StockPosition{}, fmt.Errorf("%w: warehouse %s has present=%d reserved=%d",
				domain.ErrInvalidInventory, s.Warehouse, s.QuantityPresent, s.QuantityReserved)
		}
		pos.CurrentStock += s.QuantityPresent
		pos.ReservedStock += s.QuantityReserved
	}

	pos.AvailableStock = pos.CurrentStock - pos.ReservedStock
	if pos.AvailableStock < 0 {
		pos.AvailableStock = 0
	}

	if v.Rate7d > 0 {
		d := roundFloat(float64(pos.AvailableStock)/v.Rate7d, 2)
		pos.DaysUntilStockout = &d
	}
	if v.Rate30d > 0 {
		d := roundFloat(float64(pos.AvailableStock)/v.Rate30d, 2)
		pos.InventoryTurnoverDays = &d
	}

	return pos, nil
}
