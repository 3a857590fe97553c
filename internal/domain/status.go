package domain

import "strings"

type TransactionType string

const (
	TransactionSale   TransactionType = "sale"
	TransactionReturn TransactionType = "return"
)

type PriorityLevel string

const (
	PriorityCritical PriorityLevel = "CRITICAL"
	PriorityHigh     PriorityLevel = "HIGH"
	PriorityMedium   PriorityLevel = "MEDIUM"
	PriorityLow      PriorityLevel = "LOW"
)

var priorityLevels = map[string]PriorityLevel{
	"critical": PriorityCritical,
	"high":     PriorityHigh,
	"medium":   PriorityMedium,
	"low":      PriorityLow,
}

// ParsePriorityLevel returns the priority for a label (case-insensitive).
func ParsePriorityLevel(label string) (PriorityLevel, bool) {
	p, ok := priorityLevels[strings.ToLower(strings.TrimSpace(label))]
	return p, ok
}

type SalesTrend string

const (
	TrendGrowing   SalesTrend = "GROWING"
	TrendStable    SalesTrend = "STABLE"
	TrendDeclining SalesTrend = "DECLINING"
	TrendNoData    SalesTrend = "NO_DATA"
)

type AlertType string

const (
	AlertStockoutCritical AlertType = "STOCKOUT_CRITICAL"
	AlertStockoutWarning  AlertType = "STOCKOUT_WARNING"
	AlertSlowMoving       AlertType = "SLOW_MOVING"
	AlertOverstocked      AlertType = "OVERSTOCKED"
	AlertNoSales          AlertType = "NO_SALES"
)

// AlertTypes lists every alert type in reconciliation order.
var AlertTypes = []AlertType{
	AlertStockoutCritical,
	AlertStockoutWarning,
	AlertSlowMoving,
	AlertOverstocked,
	AlertNoSales,
}

// ParseAlertType returns the alert type for a label (case-insensitive).
func ParseAlertType(label string) (AlertType, bool) {
	candidate := AlertType(strings.ToUpper(strings.TrimSpace(label)))
	for _, t := range AlertTypes {
		if t == candidate {
			return t, true
		}
	}
	return "", false
}

type AlertLevel string

const (
	AlertLevelCritical AlertLevel = "CRITICAL"
	AlertLevelHigh     AlertLevel = "HIGH"
	AlertLevelMedium   AlertLevel = "MEDIUM"
	AlertLevelLow      AlertLevel = "LOW"
	AlertLevelInfo     AlertLevel = "INFO"
)

var alertLevels = map[AlertType]AlertLevel{
	AlertStockoutCritical: AlertLevelCritical,
	AlertStockoutWarning:  AlertLevelHigh,
	AlertOverstocked:      AlertLevelMedium,
	AlertSlowMoving:       AlertLevelLow,
	AlertNoSales:          AlertLevelInfo,
}

// Level returns the severity an alert of this type is raised with.
func (t AlertType) Level() AlertLevel {
	if level, ok := alertLevels[t]; ok {
		return level
	}
	return AlertLevelInfo
}

type AlertStatus string

const (
	AlertStatusNew          AlertStatus = "NEW"
	AlertStatusAcknowledged AlertStatus = "ACKNOWLEDGED"
	AlertStatusInProgress   AlertStatus = "IN_PROGRESS"
	AlertStatusResolved     AlertStatus = "RESOLVED"
	AlertStatusIgnored      AlertStatus = "IGNORED"
)

// OpenAlertStatuses are the non-terminal statuses. At most one alert per
// (source, product_id, alert_type) may be in one of them.
var OpenAlertStatuses = []AlertStatus{
	AlertStatusNew,
	AlertStatusAcknowledged,
	AlertStatusInProgress,
}

var alertTransitions = map[AlertStatus][]AlertStatus{
	AlertStatusNew:          {AlertStatusAcknowledged, AlertStatusInProgress, AlertStatusResolved, AlertStatusIgnored},
	AlertStatusAcknowledged: {AlertStatusInProgress, AlertStatusResolved, AlertStatusIgnored},
	AlertStatusInProgress:   {AlertStatusResolved, AlertStatusIgnored},
}

// IsOpen reports whether the status is non-terminal.
func (s AlertStatus) IsOpen() bool {
	for _, open := range OpenAlertStatuses {
		if s == open {
			return true
		}
	}
	return false
}

// CanTransition reports whether an operator may move an alert from s to next.
// Reopening an IGNORED alert is reserved to the engine.
func (s AlertStatus) CanTransition(next AlertStatus) bool {
	for _, allowed := range alertTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ParseAlertStatus returns the status for a label (case-insensitive).
func ParseAlertStatus(label string) (AlertStatus, bool) {
	candidate := AlertStatus(strings.ToUpper(strings.TrimSpace(label)))
	switch candidate {
	case AlertStatusNew, AlertStatusAcknowledged, AlertStatusInProgress, AlertStatusResolved, AlertStatusIgnored:
		return candidate, true
	}
	return "", false
}

type SettingType string

const (
	SettingString  SettingType = "STRING"
	SettingInteger SettingType = "INTEGER"
	SettingDecimal SettingType = "DECIMAL"
	SettingBoolean SettingType = "BOOLEAN"
	SettingJSON    SettingType = "JSON"
)

type SettingCategory string

const (
	CategoryInventory     SettingCategory = "INVENTORY"
	CategoryAlerts        SettingCategory = "ALERTS"
	CategoryAnalytics     SettingCategory = "ANALYTICS"
	CategoryNotifications SettingCategory = "NOTIFICATIONS"
)

type RunStatus string

const (
	RunStatusPending         RunStatus = "pending"
	RunStatusProcessing      RunStatus = "processing"
	RunStatusCompleted       RunStatus = "completed"
	RunStatusPartiallyFailed RunStatus = "partially_failed"
	RunStatusFailed          RunStatus = "failed"
	RunStatusCancelled       RunStatus = "cancelled"
)

type BatchStatus string

const (
	BatchStatusProcessing BatchStatus = "processing"
	BatchStatusCommitted  BatchStatus = "committed"
	BatchStatusFailed     BatchStatus = "failed"
)
