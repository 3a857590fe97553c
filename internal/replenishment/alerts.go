package replenishment

import (
	"fmt"
	"sort"
	"time"

	"github.com/andresuchdata/autopo-replenishment/internal/domain"
	"github.com/andresuchdata/autopo-replenishment/internal/settings"
)

// ReconcileInput is the state the alert manager reconciles in one pass.
type ReconcileInput struct {
	// AnalysisDate is the run's logical date; Now stamps alert timestamps.
	AnalysisDate time.Time
	Now          time.Time
	Records      []domain.RecommendationRecord
	// OpenAlerts are the NEW, ACKNOWLEDGED and IN_PROGRESS alerts of the
	// products being reconciled.
	OpenAlerts []domain.AlertRecord
	// IgnoredAlerts are alerts whose most recent terminal status is IGNORED.
	IgnoredAlerts []domain.AlertRecord
}

// ReconcilePlan lists the alert writes a run must apply.
type ReconcilePlan struct {
	Create []domain.AlertRecord
	// Update holds open alerts whose condition still holds, with a
	// refreshed message and timestamp.
	Update  []domain.AlertRecord
	Resolve []domain.AlertRecord
	// Reopen holds IGNORED alerts moved back to NEW after their condition
	// cleared and triggered again.
	Reopen []domain.AlertRecord
	// Cleared holds IGNORED alerts whose condition cleared; they keep their
	// status and get resolved_at stamped.
	Cleared []domain.AlertRecord
}

// Empty reports whether the plan has nothing to write.
func (p ReconcilePlan) Empty() bool {
	return len(p.Create)+len(p.Update)+len(p.Resolve)+len(p.Reopen)+len(p.Cleared) == 0
}

type alertKey struct {
	source    string
	productID string
	alertType domain.AlertType
}

// AlertManager raises, refreshes and resolves alerts from recommendation
// output. At most one open alert exists per (source, product_id, alert_type).
type AlertManager struct {
	settings settings.RunSettings
}

// NewAlertManager creates a manager bound to a run's settings.
func NewAlertManager(rs settings.RunSettings) *AlertManager {
	return &AlertManager{settings: rs}
}

// Conditions returns the alert types the record triggers with their
// messages.
func (m *AlertManager) Conditions(rec domain.RecommendationRecord, analysisDate time.Time) map[domain.AlertType]string {
	out := make(map[domain.AlertType]string)

	switch rec.PriorityLevel {
	case domain.PriorityCritical:
		out[domain.AlertStockoutCritical] = fmt.Sprintf(
			"%s will stock out in %s days (available %d, 7d rate %.2f/day)",
			rec.SKU, formatDays(rec.DaysUntilStockout), rec.AvailableStock, rec.DailySalesRate7d)
	case domain.PriorityHigh:
		out[domain.AlertStockoutWarning] = fmt.Sprintf(
			"%s will stock out in %s days (available %d, 7d rate %.2f/day)",
			rec.SKU, formatDays(rec.DaysUntilStockout), rec.AvailableStock, rec.DailySalesRate7d)
	}

	if rec.AvailableStock > 0 {
		switch {
		case rec.LastSaleDate == nil:
			out[domain.AlertSlowMoving] = fmt.Sprintf(
				"%s has %d units available and no recorded sale", rec.SKU, rec.AvailableStock)
		case rec.DailySalesRate30d <= 0:
			out[domain.AlertSlowMoving] = fmt.Sprintf(
				"%s has %d units available and no net sales in 30 days (last sale %s)",
				rec.SKU, rec.AvailableStock, rec.LastSaleDate.Format(domain.DateLayout))
		case daysBetween(*rec.LastSaleDate, analysisDate) > m.settings.SlowMovingThresholdDays:
			out[domain.AlertSlowMoving] = fmt.Sprintf(
				"%s has %d units available and last sold %d days ago",
				rec.SKU, rec.AvailableStock, daysBetween(*rec.LastSaleDate, analysisDate))
		}
	}

	if rec.InventoryTurnoverDays != nil && *rec.InventoryTurnoverDays > float64(m.settings.OverstockedThresholdDays) {
		out[domain.AlertOverstocked] = fmt.Sprintf(
			"%s holds %s days of stock (threshold %d)",
			rec.SKU, formatDays(rec.InventoryTurnoverDays), m.settings.OverstockedThresholdDays)
	}

	switch {
	case !rec.HasInventorySnapshot:
		out[domain.AlertNoSales] = fmt.Sprintf("%s has no inventory snapshot for source %s", rec.SKU, rec.Source)
	case rec.LastSaleDate == nil:
		out[domain.AlertNoSales] = fmt.Sprintf("%s has never recorded a sale on %s", rec.SKU, rec.Source)
	}

	return out
}

// Reconcile compares triggered conditions against existing alerts. Records
// flagged with a data issue leave their product's alerts untouched.
func (m *AlertManager) Reconcile(in ReconcileInput) ReconcilePlan {
	var plan ReconcilePlan

	open := make(map[alertKey]domain.AlertRecord, len(in.OpenAlerts))
	for _, a := range sortedByID(in.OpenAlerts) {
		key := alertKey{source: a.Source, productID: a.ProductID, alertType: a.AlertType}
		if _, exists := open[key]; exists {
			// Duplicate open alert, keep the oldest one.
			dup := a
			dup.Status = domain.AlertStatusResolved
			dup.ResolvedAt = timePtr(in.Now)
			dup.UpdatedAt = in.Now
			dup.Message = a.Message + " (duplicate resolved)"
			plan.Resolve = append(plan.Resolve, dup)
			continue
		}
		open[key] = a
	}

	ignored := make(map[alertKey]domain.AlertRecord, len(in.IgnoredAlerts))
	for _, a := range sortedByID(in.IgnoredAlerts) {
		ignored[alertKey{source: a.Source, productID: a.ProductID, alertType: a.AlertType}] = a
	}

	for _, rec := range in.Records {
		if rec.DataIssue != "" {
			continue
		}
		triggered := m.Conditions(rec, in.AnalysisDate)

		for _, alertType := range domain.AlertTypes {
			key := alertKey{source: rec.Source, productID: rec.ProductID, alertType: alertType}
			message, active := triggered[alertType]
			existing, isOpen := open[key]
			ign, isIgnored := ignored[key]

			switch {
			case active && isOpen:
				existing.Message = message
				existing.AlertLevel = alertType.Level()
				existing.UpdatedAt = in.Now
				plan.Update = append(plan.Update, existing)

			case active && isIgnored:
				if ign.ResolvedAt == nil {
					// Still ignored, condition never cleared.
					continue
				}
				ign.Status = domain.AlertStatusNew
				ign.Message = message
				ign.AlertLevel = alertType.Level()
				ign.UpdatedAt = in.Now
				ign.AcknowledgedAt = nil
				ign.ResolvedAt = nil
				plan.Reopen = append(plan.Reopen, ign)

			case active:
				plan.Create = append(plan.Create, domain.AlertRecord{
					ProductID:  rec.ProductID,
					SKU:        rec.SKU,
					Source:     rec.Source,
					AlertType:  alertType,
					AlertLevel: alertType.Level(),
					Message:    message,
					Status:     domain.AlertStatusNew,
					CreatedAt:  in.Now,
					UpdatedAt:  in.Now,
				})

			case isOpen:
				existing.Status = domain.AlertStatusResolved
				existing.ResolvedAt = timePtr(in.Now)
				existing.UpdatedAt = in.Now
				plan.Resolve = append(plan.Resolve, existing)

			case isIgnored && ign.ResolvedAt == nil:
				ign.ResolvedAt = timePtr(in.Now)
				ign.UpdatedAt = in.Now
				plan.Cleared = append(plan.Cleared, ign)
			}
		}
	}

	return plan
}

func sortedByID(alerts []domain.AlertRecord) []domain.AlertRecord {
	out := append([]domain.AlertRecord(nil), alerts...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func formatDays(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.1f", *v)
}

func timePtr(t time.Time) *time.Time {
	return &t
}
