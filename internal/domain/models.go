package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is a sellable item on one marketplace channel together with its
// replenishment settings. Owned by the catalog; read-only here.
type Product struct {
	ProductID                string              `json:"product_id" db:"product_id"`
	SKU                      string              `json:"sku" db:"sku"`
	DisplayName              string              `json:"display_name" db:"display_name"`
	Source                   string              `json:"source" db:"source"`
	MinStockLevel            *int                `json:"min_stock_level" db:"min_stock_level"`
	MaxStockLevel            *int                `json:"max_stock_level" db:"max_stock_level"`
	ReorderPoint             *int                `json:"reorder_point" db:"reorder_point"`
	LeadTimeDays             *int                `json:"lead_time_days" db:"lead_time_days"`
	SafetyStockDays          *int                `json:"safety_stock_days" db:"safety_stock_days"`
	IsActiveForReplenishment bool                `json:"is_active_for_replenishment" db:"is_active_for_replenishment"`
	UnitCost                 decimal.NullDecimal `json:"unit_cost" db:"unit_cost"`
}

// SalesRecord is one immutable order line.
type SalesRecord struct {
	ProductID       string          `json:"product_id" db:"product_id"`
	Source          string          `json:"source" db:"source"`
	OrderDate       time.Time       `json:"order_date" db:"order_date"`
	Quantity        int             `json:"quantity" db:"quantity"`
	TransactionType TransactionType `json:"transaction_type" db:"transaction_type"`
}

// SalesHistory is the slice of order facts the analyzer needs for one
// product. FirstSaleDate spans the full history, not just the loaded rows.
type SalesHistory struct {
	ProductID     string
	Records       []SalesRecord
	FirstSaleDate *time.Time
	LastSaleDate  *time.Time
}

// InventorySnapshot is the stock on hand for a product in one warehouse.
type InventorySnapshot struct {
	ProductID        string    `json:"product_id" db:"product_id"`
	Source           string    `json:"source" db:"source"`
	Warehouse        string    `json:"warehouse" db:"warehouse"`
	QuantityPresent  int       `json:"quantity_present" db:"quantity_present"`
	QuantityReserved int       `json:"quantity_reserved" db:"quantity_reserved"`
	UpdatedAt        time.Time `json:"updated_at" db:"updated_at"`
}

// RecommendationRecord is the engine's per product/source/day output.
// Nil forecasts mean "no measurable velocity".
type RecommendationRecord struct {
	ProductID                string              `json:"product_id" db:"product_id"`
	SKU                      string              `json:"sku" db:"sku"`
	Source                   string              `json:"source" db:"source"`
	AnalysisDate             time.Time           `json:"analysis_date" db:"analysis_date"`
	CurrentStock             int                 `json:"current_stock" db:"current_stock"`
	AvailableStock           int                 `json:"available_stock" db:"available_stock"`
	ReservedStock            int                 `json:"reserved_stock" db:"reserved_stock"`
	DailySalesRate7d         float64             `json:"daily_sales_rate_7d" db:"daily_sales_rate_7d"`
	DailySalesRate14d        float64             `json:"daily_sales_rate_14d" db:"daily_sales_rate_14d"`
	DailySalesRate30d        float64             `json:"daily_sales_rate_30d" db:"daily_sales_rate_30d"`
	DaysUntilStockout        *float64            `json:"days_until_stockout" db:"days_until_stockout"`
	TargetStockLevel         int                 `json:"target_stock_level" db:"target_stock_level"`
	RecommendedOrderQuantity int                 `json:"recommended_order_quantity" db:"recommended_order_quantity"`
	RecommendedOrderValue    decimal.NullDecimal `json:"recommended_order_value" db:"recommended_order_value"`
	PriorityLevel            PriorityLevel       `json:"priority_level" db:"priority_level"`
	UrgencyScore             float64             `json:"urgency_score" db:"urgency_score"`
	SalesTrend               SalesTrend          `json:"sales_trend" db:"sales_trend"`
	LastSaleDate             *time.Time          `json:"last_sale_date" db:"last_sale_date"`
	InventoryTurnoverDays    *float64            `json:"inventory_turnover_days" db:"inventory_turnover_days"`
	HasInventorySnapshot     bool                `json:"has_inventory_snapshot" db:"has_inventory_snapshot"`
	DataIssue                string              `json:"data_issue,omitempty" db:"data_issue"`
}

// Key identifies the row a record upserts into.
func (r RecommendationRecord) Key() RecommendationKey {
	return RecommendationKey{ProductID: r.ProductID, Source: r.Source, AnalysisDate: r.AnalysisDate.Format(DateLayout)}
}

// RecommendationKey is the uniqueness key of a recommendation row.
type RecommendationKey struct {
	ProductID    string
	Source       string
	AnalysisDate string
}

// AlertRecord is an operational alert persisted for external notifiers.
type AlertRecord struct {
	ID             int64       `json:"id" db:"id"`
	ProductID      string      `json:"product_id" db:"product_id"`
	SKU            string      `json:"sku" db:"sku"`
	Source         string      `json:"source" db:"source"`
	AlertType      AlertType   `json:"alert_type" db:"alert_type"`
	AlertLevel     AlertLevel  `json:"alert_level" db:"alert_level"`
	Message        string      `json:"message" db:"message"`
	Status         AlertStatus `json:"status" db:"status"`
	CreatedAt      time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at" db:"updated_at"`
	AcknowledgedAt *time.Time  `json:"acknowledged_at" db:"acknowledged_at"`
	ResolvedAt     *time.Time  `json:"resolved_at" db:"resolved_at"`
}

// SettingEntry is one typed row of the settings table.
type SettingEntry struct {
	Key       string          `json:"key" db:"key"`
	Value     string          `json:"value" db:"value"`
	ValueType SettingType     `json:"value_type" db:"value_type"`
	Category  SettingCategory `json:"category" db:"category"`
}

// AnalysisRun tracks one execution of the engine for a source and date.
type AnalysisRun struct {
	ID                     string     `json:"id" db:"id"`
	Source                 string     `json:"source" db:"source"`
	AnalysisDate           time.Time  `json:"analysis_date" db:"analysis_date"`
	Status                 RunStatus  `json:"status" db:"status"`
	DryRun                 bool       `json:"dry_run" db:"dry_run"`
	ProductsAnalyzed       int        `json:"products_analyzed" db:"products_analyzed"`
	RecommendationsWritten int        `json:"recommendations_written" db:"recommendations_written"`
	AlertsRaised           int        `json:"alerts_raised" db:"alerts_raised"`
	AlertsResolved         int        `json:"alerts_resolved" db:"alerts_resolved"`
	StartedAt              time.Time  `json:"started_at" db:"started_at"`
	CompletedAt            *time.Time `json:"completed_at" db:"completed_at"`
	ErrorMessage           string     `json:"error_message" db:"error_message"`
}

// RunBatch tracks one committed (or failed) batch of a run.
type RunBatch struct {
	ID             int64       `json:"id" db:"id"`
	RunID          string      `json:"run_id" db:"run_id"`
	BatchNumber    int         `json:"batch_number" db:"batch_number"`
	FirstProductID string      `json:"first_product_id" db:"first_product_id"`
	LastProductID  string      `json:"last_product_id" db:"last_product_id"`
	ProductCount   int         `json:"product_count" db:"product_count"`
	Status         BatchStatus `json:"status" db:"status"`
	RetryCount     int         `json:"retry_count" db:"retry_count"`
	ErrorMessage   string      `json:"error_message" db:"error_message"`
}

// RunSummary is returned to the scheduler or CLI that triggered a run.
type RunSummary struct {
	RunID                  string        `json:"run_id"`
	Source                 string        `json:"source"`
	AnalysisDate           string        `json:"analysis_date"`
	Status                 RunStatus     `json:"status"`
	DryRun                 bool          `json:"dry_run"`
	ProductsAnalyzed       int           `json:"products_analyzed"`
	ProductsSkipped        int           `json:"products_skipped"`
	RecommendationsWritten int           `json:"recommendations_written"`
	AlertsRaised           int           `json:"alerts_raised"`
	AlertsUpdated          int           `json:"alerts_updated"`
	AlertsResolved         int           `json:"alerts_resolved"`
	AlertsReopened         int           `json:"alerts_reopened"`
	SucceededBatches       []int         `json:"succeeded_batches"`
	FailedBatches          []int         `json:"failed_batches"`
	Duration               time.Duration `json:"duration"`
}

// RecommendationFilter selects recommendation rows for downstream readers.
type RecommendationFilter struct {
	Source       string          `json:"source"`
	AnalysisDate string          `json:"analysis_date"`
	Priorities   []PriorityLevel `json:"priorities"`
	Page         int             `json:"page"`
	PageSize     int             `json:"page_size"`
}

// PrioritySummary counts recommendations per priority level.
type PrioritySummary struct {
	PriorityLevel PriorityLevel   `json:"priority_level" db:"priority_level"`
	Count         int             `json:"count" db:"count"`
	TotalQuantity int             `json:"total_quantity" db:"total_quantity"`
	TotalValue    decimal.Decimal `json:"total_value" db:"total_value"`
}

// AlertFilter selects alerts for operators and notifiers.
type AlertFilter struct {
	Source    string        `json:"source"`
	Statuses  []AlertStatus `json:"statuses"`
	AlertType AlertType     `json:"alert_type"`
	ProductID string        `json:"product_id"`
	Page      int           `json:"page"`
	PageSize  int           `json:"page_size"`
}

// DateLayout is the wire and storage format of analysis dates.
const DateLayout = "2006-01-02"
