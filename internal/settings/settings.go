package settings

import "github.com/andresuchdata/autopo-replenishment/internal/domain"

// Setting keys, grouped by category.
const (
	KeyDefaultLeadTimeDays     = "default_lead_time_days"
	KeyDefaultSafetyStockDays  = "default_safety_stock_days"
	KeyMaxOrderMultiplier      = "max_recommended_order_multiplier"
	KeyAnalysisBatchSize       = "analysis_batch_size"
	KeyCriticalStockoutDays    = "critical_stockout_threshold"
	KeyHighPriorityDays        = "high_priority_threshold"
	KeySlowMovingThresholdDays = "slow_moving_threshold_days"
	KeyOverstockedDays         = "overstocked_threshold_days"
	KeyAlertsEnabled           = "alerts_enabled"
	KeyMinSalesHistoryDays     = "min_sales_history_days"
	KeyTrendGrowthRatio        = "trend_growth_ratio"
	KeyTrendDeclineRatio       = "trend_decline_ratio"
	KeySalesLookbackDays       = "sales_lookback_days"
	KeyNotifyAlertLevels       = "notify_alert_levels"
)

// Documented defaults. A missing or malformed setting resolves to these.
const (
	DefaultLeadTimeDays        = 14
	DefaultSafetyStockDays     = 7
	DefaultMaxOrderMultiplier  = 3.0
	DefaultAnalysisBatchSize   = 1000
	DefaultCriticalStockout    = 3
	DefaultHighPriority        = 7
	DefaultSlowMovingDays      = 30
	DefaultOverstockedDays     = 90
	DefaultAlertsEnabled       = true
	DefaultMinSalesHistoryDays = 14
	DefaultTrendGrowthRatio    = 1.2
	DefaultTrendDeclineRatio   = 0.8
	DefaultSalesLookbackDays   = 365

	// minLookbackDays keeps the longest velocity window fully loaded.
	minLookbackDays = 30
)

// RunSettings is the immutable configuration a single analysis run works
// with. It is resolved once when the run starts and passed explicitly to
// every component.
type RunSettings struct {
	DefaultLeadTimeDays           int
	DefaultSafetyStockDays        int
	MaxRecommendedOrderMultiplier float64
	BatchSize                     int

	CriticalStockoutThreshold int
	HighPriorityThreshold     int
	SlowMovingThresholdDays   int
	OverstockedThresholdDays  int
	AlertsEnabled             bool

	MinSalesHistoryDays int
	TrendGrowthRatio    float64
	TrendDeclineRatio   float64
	SalesLookbackDays   int

	NotifyAlertLevels []domain.AlertLevel
}

// Defaults returns the settings a run uses when the table is empty.
func Defaults() RunSettings {
	return RunSettings{
		DefaultLeadTimeDays:           DefaultLeadTimeDays,
		DefaultSafetyStockDays:        DefaultSafetyStockDays,
		MaxRecommendedOrderMultiplier: DefaultMaxOrderMultiplier,
		BatchSize:                     DefaultAnalysisBatchSize,
		CriticalStockoutThreshold:     DefaultCriticalStockout,
		HighPriorityThreshold:         DefaultHighPriority,
		SlowMovingThresholdDays:       DefaultSlowMovingDays,
		OverstockedThresholdDays:      DefaultOverstockedDays,
		AlertsEnabled:                 DefaultAlertsEnabled,
		MinSalesHistoryDays:           DefaultMinSalesHistoryDays,
		TrendGrowthRatio:              DefaultTrendGrowthRatio,
		TrendDeclineRatio:             DefaultTrendDeclineRatio,
		SalesLookbackDays:             DefaultSalesLookbackDays,
		NotifyAlertLevels:             []domain.AlertLevel{domain.AlertLevelCritical, domain.AlertLevelHigh},
	}
}
