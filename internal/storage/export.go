package storage

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"github.com/andresuchdata/autopo-replenishment/internal/domain"
)

var exportHeader = []string{
	"product_id", "sku", "source", "analysis_date", "current_stock", "available_stock",
	"reserved_stock", "daily_sales_rate_7d", "daily_sales_rate_14d", "daily_sales_rate_30d",
	"days_until_stockout", "target_stock_level", "recommended_order_quantity",
	"recommended_order_value", "priority_level", "urgency_score", "sales_trend",
	"last_sale_date", "inventory_turnover_days",
}

// Exporter publishes a run's recommendations as CSV.
type Exporter struct {
	store ObjectStorage
}

func NewExporter(store ObjectStorage) *Exporter {
	return &Exporter{store: store}
}

const exportRoot = "recommendations/"

// ExportKey is where the recommendations of a source and day are written.
func ExportKey(source string, analysisDate time.Time) string {
	return fmt.Sprintf("%s%s/%s.csv", exportRoot, source, analysisDate.Format("20060102"))
}

// ExportPrefix is the key prefix of a source's exports, or of all exports
// when source is empty.
func ExportPrefix(source string) string {
	if source == "" {
		return exportRoot
	}
	return exportRoot + source + "/"
}

// Export uploads records and returns the object key.
func (e *Exporter) Export(ctx context.Context, source string, analysisDate time.Time, records []domain.RecommendationRecord) (string, error) {
	payload, err := EncodeCSV(records)
	if err != nil {
		return "", err
	}

	key := ExportKey(source, analysisDate)
	if err := e.store.UploadObject(ctx, key, payload, "text/csv"); err != nil {
		return "", err
	}
	return key, nil
}

// EncodeCSV renders records in export column order. Nil forecasts and
// unknown values are written as empty cells.
func EncodeCSV(records []domain.RecommendationRecord) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	// Write header
	if err := writer.Write(exportHeader); err != nil {
		return nil, err
	}

	// Write data
	for _, rec := range records {
		row := []string{
			rec.ProductID,
			rec.SKU,
			rec.Source,
			rec.AnalysisDate.Format(domain.DateLayout),
			strconv.Itoa(rec.CurrentStock),
			strconv.Itoa(rec.AvailableStock),
			strconv.Itoa(rec.ReservedStock),
			formatFloat(rec.DailySalesRate7d),
			formatFloat(rec.DailySalesRate14d),
			formatFloat(rec.DailySalesRate30d),
			formatFloatPtr(rec.DaysUntilStockout),
			strconv.Itoa(rec.TargetStockLevel),
			strconv.Itoa(rec.RecommendedOrderQuantity),
			"",
			string(rec.PriorityLevel),
			formatFloat(rec.UrgencyScore),
			string(rec.SalesTrend),
			"",
			formatFloatPtr(rec.InventoryTurnoverDays),
		}
		if rec.RecommendedOrderValue.Valid {
			row[13] = rec.RecommendedOrderValue.Decimal.StringFixed(2)
		}
		if rec.LastSaleDate != nil {
			row[17] = rec.LastSaleDate.Format(domain.DateLayout)
		}

		if err := writer.Write(row); err != nil {
			return nil, err
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("encode recommendations csv: %w", err)
	}
	return buf.Bytes(), nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatFloatPtr(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}
