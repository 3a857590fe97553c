package replenishment

import (
	"time"

	"github.com/andresuchdata/autopo-replenishment/internal/domain"
	"github.com/andresuchdata/autopo-replenishment/internal/settings"
)

// Velocity windows in days.
const (
	window7d  = 7
	window14d = 14
	window30d = 30
)

// Velocity is the sales rate picture of one product at an as-of date.
// Rates are unreliable whenever Trend is NO_DATA.
type Velocity struct {
	Rate7d       float64
	Rate14d      float64
	Rate30d      float64
	LastSaleDate *time.Time
	Trend        domain.SalesTrend
	HistoryDays  int
}

// VelocityAnalyzer computes trailing-window sales rates and trend.
type VelocityAnalyzer struct {
	minHistoryDays int
	growthRatio    float64
	declineRatio   float64
}

// NewVelocityAnalyzer creates an analyzer bound to a run's settings.
func NewVelocityAnalyzer(rs settings.RunSettings) *VelocityAnalyzer {
	return &VelocityAnalyzer{
		minHistoryDays: rs.MinSalesHistoryDays,
		growthRatio:    rs.TrendGrowthRatio,
		declineRatio:   rs.TrendDeclineRatio,
	}
}

// Analyze computes rates over [asOf-W, asOf) for W in 7/14/30 days. Returns
// inside a window reduce its net quantity; the rate never goes below zero.
func (a *VelocityAnalyzer) Analyze(history domain.SalesHistory, asOf time.Time) Velocity {
	asOf = truncateDay(asOf)

	var net7, net14, net30 int
	var firstSale, lastSale *time.Time
	for i := range history.Records {
		rec := history.Records[i]
		if !rec.OrderDate.Before(asOf) {
			continue
		}

		if rec.TransactionType == domain.TransactionSale {
			d := rec.OrderDate
			if lastSale == nil || d.After(*lastSale) {
				lastSale = &d
			}
			if firstSale == nil || d.Before(*firstSale) {
				firstSale = &d
			}
		}

		qty := signedQuantity(rec)
		age := asOf.Sub(rec.OrderDate)
		if age <= window30d*24*time.Hour {
			net30 += qty
		}
		if age <= window14d*24*time.Hour {
			net14 += qty
		}
		if age <= window7d*24*time.Hour {
			net7 += qty
		}
	}

	// The repository knows about sales outside the loaded lookback.
	if history.LastSaleDate != nil && history.LastSaleDate.Before(asOf) &&
		(lastSale == nil || history.LastSaleDate.After(*lastSale)) {
		d := *history.LastSaleDate
		lastSale = &d
	}
	if history.FirstSaleDate != nil && history.FirstSaleDate.Before(asOf) &&
		(firstSale == nil || history.FirstSaleDate.Before(*firstSale)) {
		d := *history.FirstSaleDate
		firstSale = &d
	}

	v := Velocity{
		Rate7d:       windowRate(net7, window7d),
		Rate14d:      windowRate(net14, window14d),
		Rate30d:      windowRate(net30, window30d),
		LastSaleDate: lastSale,
	}
	if firstSale != nil {
		v.HistoryDays = daysBetween(*firstSale, asOf)
	}
	v.Trend = a.trend(v, firstSale != nil)

	return v
}

func (a *VelocityAnalyzer) trend(v Velocity, hasSales bool) domain.SalesTrend {
	switch {
	case !hasSales:
		return domain.TrendNoData
	case v.HistoryDays < a.minHistoryDays:
		return domain.TrendNoData
	case v.Rate30d <= 0:
		return domain.TrendNoData
	case v.Rate7d >= a.growthRatio*v.Rate30d:
		return domain.TrendGrowing
	case v.Rate7d <= a.declineRatio*v.Rate30d:
		return domain.TrendDeclining
	default:
		return domain.TrendStable
	}
}

func signedQuantity(rec domain.SalesRecord) int {
	qty := rec.Quantity
	if qty < 0 {
		qty = -qty
	}
	switch rec.TransactionType {
	case domain.TransactionSale:
		return qty
	case domain.TransactionReturn:
		return -qty
	default:
		return 0
	}
}

func windowRate(net, days int) float64 {
	if net <= 0 {
		return 0
	}
	return roundFloat(float64(net)/float64(days), 4)
}
