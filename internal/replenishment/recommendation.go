package replenishment

import (
	"math"
	"time"

	"github.com/andresuchdata/autopo-replenishment/internal/domain"
	"github.com/andresuchdata/autopo-replenishment/internal/settings"
	"github.com/shopspring/decimal"
)

// Urgency weights. The stockout term dominates; the trend term only
// separates products with comparable stockout horizons.
const (
	urgencyStockoutWeight = 85.0
	urgencyGrowingBoost   = 15.0
	urgencyStableBoost    = 7.5
)

// RecommendationInput is everything needed to recommend for one product.
type RecommendationInput struct {
	Product      domain.Product
	AnalysisDate time.Time
	Velocity     Velocity
	Position     StockPosition
}

// RecommendationEngine turns velocity and stock position into a reorder
// recommendation. It is deterministic: identical input yields an identical
// record.
type RecommendationEngine struct {
	settings settings.RunSettings
}

// NewRecommendationEngine creates an engine bound to a run's settings.
func NewRecommendationEngine(rs settings.RunSettings) *RecommendationEngine {
	return &RecommendationEngine{settings: rs}
}

// Recommend computes the recommendation record for one product.
func (e *RecommendationEngine) Recommend(in RecommendationInput) domain.RecommendationRecord {
	v := in.Velocity
	pos := in.Position

	// 1. Coverage horizon, falling back to system defaults
	leadTime := e.settings.DefaultLeadTimeDays
	if in.Product.LeadTimeDays != nil && *in.Product.LeadTimeDays >= 0 {
		leadTime = *in.Product.LeadTimeDays
	}
	safetyDays := e.settings.DefaultSafetyStockDays
	if in.Product.SafetyStockDays != nil && *in.Product.SafetyStockDays >= 0 {
		safetyDays = *in.Product.SafetyStockDays
	}

	// 2. Target stock level = rate_7d × (lead time + safety days), bounded by min/max stock
	target := e.TargetStockLevel(v.Rate7d, leadTime, safetyDays, in.Product.MinStockLevel, in.Product.MaxStockLevel)

	// 3. Order quantity, capped relative to available stock
	qty := e.OrderQuantity(target, pos.AvailableStock)

	// 4. Priority and urgency
	priority := e.Priority(pos.DaysUntilStockout, qty)
	urgency := e.UrgencyScore(pos.DaysUntilStockout, v.Trend)

	rec := domain.RecommendationRecord{
		ProductID:                in.Product.ProductID,
		SKU:                      in.Product.SKU,
		Source:                   in.Product.Source,
		AnalysisDate:             AnalysisDay(in.AnalysisDate),
		CurrentStock:             pos.CurrentStock,
		AvailableStock:           pos.AvailableStock,
		ReservedStock:            pos.ReservedStock,
		DailySalesRate7d:         v.Rate7d,
		DailySalesRate14d:        v.Rate14d,
		DailySalesRate30d:        v.Rate30d,
		DaysUntilStockout:        roundPtr(pos.DaysUntilStockout, 2),
		TargetStockLevel:         target,
		RecommendedOrderQuantity: qty,
		PriorityLevel:            priority,
		UrgencyScore:             urgency,
		SalesTrend:               v.Trend,
		LastSaleDate:             v.LastSaleDate,
		InventoryTurnoverDays:    roundPtr(pos.InventoryTurnoverDays, 2),
		HasInventorySnapshot:     pos.HasSnapshot,
	}

	// 5. Order value requires a known unit cost
	if in.Product.UnitCost.Valid {
		rec.RecommendedOrderValue = decimal.NullDecimal{
			Decimal: in.Product.UnitCost.Decimal.Mul(decimal.NewFromInt(int64(qty))).Round(2),
			Valid:   true,
		}
	}

	return rec
}

// Unanalyzable builds the record written for a product whose input facts
// are invalid. It carries no forecast and never ranks above LOW.
func (e *RecommendationEngine) Unanalyzable(product domain.Product, analysisDate time.Time, reason string) domain.RecommendationRecord {
	return domain.RecommendationRecord{
		ProductID:            product.ProductID,
		SKU:                  product.SKU,
		Source:               product.Source,
		AnalysisDate:         AnalysisDay(analysisDate),
		PriorityLevel:        domain.PriorityLow,
		SalesTrend:           domain.TrendNoData,
		HasInventorySnapshot: true,
		DataIssue:            reason,
	}
}

// TargetStockLevel returns the stock level to hold, rounded up to whole
// units. A positive min stock level is a floor and a positive max stock
// level is a ceiling unless it conflicts with the floor.
func (e *RecommendationEngine) TargetStockLevel(rate7d float64, leadTimeDays, safetyStockDays int, minStock, maxStock *int) int {
	target := int(math.Ceil(math.Max(0, roundFloat(rate7d*float64(leadTimeDays+safetyStockDays), 4))))

	floor := 0
	if minStock != nil && *minStock > 0 {
		floor = *minStock
		if target < floor {
			target = floor
		}
	}
	if maxStock != nil && *maxStock > 0 && *maxStock >= floor && target > *maxStock {
		target = *maxStock
	}

	return target
}

// OrderQuantity returns max(0, target - available) capped at
// available × max_recommended_order_multiplier. The cap is an operator
// policy limiting single-run order spikes; with zero available stock no
// quantity is recommended and the product surfaces through priority and
// alerts instead.
func (e *RecommendationEngine) OrderQuantity(target, available int) int {
	qty := target - available
	if qty <= 0 {
		return 0
	}

	limit := int(math.Floor(float64(available) * e.settings.MaxRecommendedOrderMultiplier))
	if qty > limit {
		qty = limit
	}
	if qty < 0 {
		return 0
	}
	return qty
}

// Priority ranks a recommendation. A nil stockout forecast can never be
// CRITICAL or HIGH.
func (e *RecommendationEngine) Priority(daysUntilStockout *float64, orderQty int) domain.PriorityLevel {
	switch {
	case daysUntilStockout != nil && *daysUntilStockout <= float64(e.settings.CriticalStockoutThreshold):
		return domain.PriorityCritical
	case daysUntilStockout != nil && *daysUntilStockout <= float64(e.settings.HighPriorityThreshold):
		return domain.PriorityHigh
	case orderQty > 0:
		return domain.PriorityMedium
	default:
		return domain.PriorityLow
	}
}

// UrgencyScore returns a [0,100] ranking signal. It never increases as the
// stockout horizon grows; a nil horizon contributes nothing.
func (e *RecommendationEngine) UrgencyScore(daysUntilStockout *float64, trend domain.SalesTrend) float64 {
	score := 0.0

	if daysUntilStockout != nil {
		halfLife := math.Max(1, float64(e.settings.CriticalStockoutThreshold))
		days := math.Max(0, *daysUntilStockout)
		score += urgencyStockoutWeight * halfLife / (halfLife + days)
	}

	switch trend {
	case domain.TrendGrowing:
		score += urgencyGrowingBoost
	case domain.TrendStable:
		score += urgencyStableBoost
	}

	return roundFloat(math.Min(100, math.Max(0, score)), 2)
}

// AnalysisDay normalizes a run date to midnight UTC.
func AnalysisDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
