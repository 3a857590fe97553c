package replenishment

import (
	"encoding/json"
	"testing"

	"github.com/andresuchdata/autopo-replenishment/internal/domain"
	"github.com/andresuchdata/autopo-replenishment/internal/settings"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }

func product(id string) domain.Product {
	return domain.Product{
		ProductID:                id,
		SKU:                      "SKU-" + id,
		DisplayName:              "Product " + id,
		Source:                   "shopee",
		IsActiveForReplenishment: true,
	}
}

func recommendFor(t *testing.T, rs settings.RunSettings, p domain.Product, v Velocity, snapshots []domain.InventorySnapshot) domain.RecommendationRecord {
	t.Helper()
	pos, err := NewPositionCalculator().Calculate(snapshots, v)
	require.NoError(t, err)
	return NewRecommendationEngine(rs).Recommend(RecommendationInput{
		Product:      p,
		AnalysisDate: day("2024-06-30"),
		Velocity:     v,
		Position:     pos,
	})
}

func TestRecommendScenarioA(t *testing.T) {
	p := product("A")
	p.LeadTimeDays = intPtr(14)
	p.SafetyStockDays = intPtr(7)

	rec := recommendFor(t, settings.Defaults(), p,
		Velocity{Rate7d: 10, Rate14d: 10, Rate30d: 10, Trend: domain.TrendStable},
		[]domain.InventorySnapshot{{Warehouse: "JKT", QuantityPresent: 20}})

	assert.Equal(t, 210, rec.TargetStockLevel)
	assert.Equal(t, 60, rec.RecommendedOrderQuantity)
	require.NotNil(t, rec.DaysUntilStockout)
	assert.Equal(t, 2.0, *rec.DaysUntilStockout)
	assert.Equal(t, domain.PriorityCritical, rec.PriorityLevel)
	assert.Equal(t, day("2024-06-30"), rec.AnalysisDate)
}

func TestRecommendScenarioAUncapped(t *testing.T) {
	rs := settings.Defaults()
	rs.MaxRecommendedOrderMultiplier = 100

	rec := recommendFor(t, rs, product("A"),
		Velocity{Rate7d: 10, Rate30d: 10, Trend: domain.TrendStable},
		[]domain.InventorySnapshot{{QuantityPresent: 20}})

	assert.Equal(t, 190, rec.RecommendedOrderQuantity)
}

func TestRecommendScenarioB(t *testing.T) {
	asOf := day("2024-06-30")
	v := NewVelocityAnalyzer(settings.Defaults()).Analyze(domain.SalesHistory{}, asOf)

	rec := recommendFor(t, settings.Defaults(), product("B"), v, []domain.InventorySnapshot{{QuantityPresent: 50}})

	assert.Equal(t, domain.TrendNoData, rec.SalesTrend)
	assert.Nil(t, rec.DaysUntilStockout)
	assert.Equal(t, domain.PriorityLow, rec.PriorityLevel)
	assert.Zero(t, rec.RecommendedOrderQuantity)
	assert.Zero(t, rec.UrgencyScore)
	assert.Equal(t, 50, rec.CurrentStock)
}

func TestRecommendFallsBackToDefaultLeadTimes(t *testing.T) {
	rec := recommendFor(t, settings.Defaults(), product("C"),
		Velocity{Rate7d: 2, Rate30d: 2, Trend: domain.TrendStable},
		[]domain.InventorySnapshot{{QuantityPresent: 40}})

	assert.Equal(t, 42, rec.TargetStockLevel)
	assert.Equal(t, 2, rec.RecommendedOrderQuantity)
	assert.Equal(t, domain.PriorityMedium, rec.PriorityLevel)
}

func TestRecommendStockLevelBounds(t *testing.T) {
	engine := NewRecommendationEngine(settings.Defaults())

	assert.Equal(t, 10, engine.TargetStockLevel(0, 14, 7, intPtr(10), nil))
	assert.Equal(t, 100, engine.TargetStockLevel(10, 14, 7, nil, intPtr(100)))
	assert.Equal(t, 210, engine.TargetStockLevel(10, 14, 7, intPtr(50), intPtr(20)), "max below min is ignored")
	assert.Equal(t, 50, engine.TargetStockLevel(1, 14, 7, intPtr(50), intPtr(20)))
	assert.Equal(t, 22, engine.TargetStockLevel(1.01, 14, 7, nil, nil), "rounded up to whole units")
}

func TestRecommendMinStockWithoutVelocity(t *testing.T) {
	p := product("D")
	p.MinStockLevel = intPtr(10)

	rec := recommendFor(t, settings.Defaults(), p, Velocity{Trend: domain.TrendNoData},
		[]domain.InventorySnapshot{{QuantityPresent: 4}})

	assert.Equal(t, 6, rec.RecommendedOrderQuantity)
	assert.Nil(t, rec.DaysUntilStockout)
	assert.Equal(t, domain.PriorityMedium, rec.PriorityLevel)
}

func TestRecommendOrderValue(t *testing.T) {
	p := product("E")
	p.UnitCost = decimal.NullDecimal{Decimal: decimal.RequireFromString("12.50"), Valid: true}

	rec := recommendFor(t, settings.Defaults(), p,
		Velocity{Rate7d: 10, Rate30d: 10, Trend: domain.TrendStable},
		[]domain.InventorySnapshot{{QuantityPresent: 20}})

	require.True(t, rec.RecommendedOrderValue.Valid)
	assert.Equal(t, "750", rec.RecommendedOrderValue.Decimal.String())

	rec = recommendFor(t, settings.Defaults(), product("F"),
		Velocity{Rate7d: 10, Rate30d: 10, Trend: domain.TrendStable},
		[]domain.InventorySnapshot{{QuantityPresent: 20}})
	assert.False(t, rec.RecommendedOrderValue.Valid)
}

func TestRecommendIsDeterministic(t *testing.T) {
	p := product("G")
	p.UnitCost = decimal.NullDecimal{Decimal: decimal.RequireFromString("3.10"), Valid: true}
	last := day("2024-06-29")
	v := Velocity{Rate7d: 3.4286, Rate14d: 2.5, Rate30d: 2.1, LastSaleDate: &last, Trend: domain.TrendGrowing}
	snapshots := []domain.InventorySnapshot{{QuantityPresent: 17, QuantityReserved: 2}}

	first := recommendFor(t, settings.Defaults(), p, v, snapshots)
	second := recommendFor(t, settings.Defaults(), p, v, snapshots)
	assert.Equal(t, first, second)

	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestUnanalyzableRecord(t *testing.T) {
	rec := NewRecommendationEngine(settings.Defaults()).Unanalyzable(product("H"), day("2024-06-30"), "negative stock")

	assert.Equal(t, domain.TrendNoData, rec.SalesTrend)
	assert.Equal(t, domain.PriorityLow, rec.PriorityLevel)
	assert.Nil(t, rec.DaysUntilStockout)
	assert.Equal(t, "negative stock", rec.DataIssue)
}

func TestUrgencySmallerHorizonScoresHigher(t *testing.T) {
	engine := NewRecommendationEngine(settings.Defaults())

	for _, trend := range []domain.SalesTrend{domain.TrendGrowing, domain.TrendStable, domain.TrendDeclining, domain.TrendNoData} {
		near := engine.UrgencyScore(floatPtr(3), trend)
		far := engine.UrgencyScore(floatPtr(10), trend)
		assert.GreaterOrEqual(t, near, far, string(trend))
		assert.GreaterOrEqual(t, far, engine.UrgencyScore(nil, trend), string(trend))
	}

	assert.Greater(t, engine.UrgencyScore(floatPtr(5), domain.TrendGrowing), engine.UrgencyScore(floatPtr(5), domain.TrendDeclining))
}

var trends = []domain.SalesTrend{domain.TrendGrowing, domain.TrendStable, domain.TrendDeclining, domain.TrendNoData}

func TestUrgencyProperties(t *testing.T) {
	engine := NewRecommendationEngine(settings.Defaults())
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("urgency is monotonic in days until stockout", prop.ForAll(
		func(a, b float64, trendIdx int) bool {
			near, far := a, b
			if near > far {
				near, far = far, near
			}
			trend := trends[trendIdx]
			return engine.UrgencyScore(&near, trend) >= engine.UrgencyScore(&far, trend)
		},
		gen.Float64Range(0, 365),
		gen.Float64Range(0, 365),
		gen.IntRange(0, len(trends)-1),
	))

	properties.Property("urgency stays within [0,100]", prop.ForAll(
		func(d float64, trendIdx int) bool {
			score := engine.UrgencyScore(&d, trends[trendIdx])
			return score >= 0 && score <= 100
		},
		gen.Float64Range(0, 10000),
		gen.IntRange(0, len(trends)-1),
	))

	properties.Property("same rate, less stock is never less urgent", prop.ForAll(
		func(stockA, stockB int, rate float64) bool {
			low, high := stockA, stockB
			if low > high {
				low, high = high, low
			}
			v := Velocity{Rate7d: rate, Rate30d: rate, Trend: domain.TrendStable}
			pc := NewPositionCalculator()
			posLow, _ := pc.Calculate([]domain.InventorySnapshot{{QuantityPresent: low}}, v)
			posHigh, _ := pc.Calculate([]domain.InventorySnapshot{{QuantityPresent: high}}, v)
			recLow := engine.Recommend(RecommendationInput{Product: product("P"), AnalysisDate: day("2024-06-30"), Velocity: v, Position: posLow})
			recHigh := engine.Recommend(RecommendationInput{Product: product("P"), AnalysisDate: day("2024-06-30"), Velocity: v, Position: posHigh})
			return recLow.UrgencyScore >= recHigh.UrgencyScore
		},
		gen.IntRange(0, 5000),
		gen.IntRange(0, 5000),
		gen.Float64Range(0.1, 500),
	))

	properties.TestingRun(t)
}

func TestNullSafetyProperty(t *testing.T) {
	engine := NewRecommendationEngine(settings.Defaults())
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("zero 7d rate has no stockout forecast and is never critical", prop.ForAll(
		func(present, reserved int, rate30 float64, minStock int) bool {
			v := Velocity{Rate7d: 0, Rate30d: rate30, Trend: domain.TrendNoData}
			pos, err := NewPositionCalculator().Calculate([]domain.InventorySnapshot{{QuantityPresent: present, QuantityReserved: reserved}}, v)
			if err != nil {
				return false
			}
			p := product("N")
			p.MinStockLevel = &minStock
			rec := engine.Recommend(RecommendationInput{Product: p, AnalysisDate: day("2024-06-30"), Velocity: v, Position: pos})
			return rec.DaysUntilStockout == nil && rec.PriorityLevel != domain.PriorityCritical && rec.PriorityLevel != domain.PriorityHigh
		},
		gen.IntRange(0, 10000),
		gen.IntRange(0, 10000),
		gen.Float64Range(0, 100),
		gen.IntRange(0, 500),
	))

	properties.TestingRun(t)
}
