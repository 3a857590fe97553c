package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/andresuchdata/autopo-replenishment/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Repository reads the raw settings table.
type Repository interface {
	ListSettings(ctx context.Context) ([]domain.SettingEntry, error)
}

// Store hands out point-in-time snapshots of the settings table.
type Store struct {
	repo Repository
}

func NewStore(repo Repository) *Store {
	return &Store{repo: repo}
}

// Snapshot reads every setting once. Later changes to the table do not
// affect the returned value.
func (s *Store) Snapshot(ctx context.Context) (*Snapshot, error) {
	entries, err := s.repo.ListSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("error loading settings: %w", err)
	}
	return NewSnapshot(entries), nil
}

// RunSettings is a shortcut for Snapshot followed by Resolve.
func (s *Store) RunSettings(ctx context.Context) (RunSettings, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return RunSettings{}, err
	}
	return snap.Resolve(), nil
}

type entryKey struct {
	category domain.SettingCategory
	key      string
}

// Snapshot is an immutable view over the settings table with typed,
// category-scoped reads. Missing or malformed values resolve to the
// caller's default and malformed ones are logged.
type Snapshot struct {
	entries map[entryKey]domain.SettingEntry
}

func NewSnapshot(entries []domain.SettingEntry) *Snapshot {
	snap := &Snapshot{entries: make(map[entryKey]domain.SettingEntry, len(entries))}
	for _, e := range entries {
		k := entryKey{
			category: domain.SettingCategory(strings.ToUpper(strings.TrimSpace(string(e.Category)))),
			key:      strings.TrimSpace(e.Key),
		}
		snap.entries[k] = e
	}
	return snap
}

func (s *Snapshot) lookup(category domain.SettingCategory, key string, want domain.SettingType) (string, bool) {
	e, ok := s.entries[entryKey{category: category, key: key}]
	if !ok {
		return "", false
	}
	if e.ValueType != "" && e.ValueType != want {
		log.Warn().
			Str("category", string(category)).
			Str("key", key).
			Str("declared_type", string(e.ValueType)).
			Str("expected_type", string(want)).
			Msg("settings: declared type mismatch, parsing as expected type")
	}
	return strings.TrimSpace(e.Value), true
}

func malformed(category domain.SettingCategory, key, value string, def interface{}, err error) {
	log.Warn().
		Err(err).
		Str("category", string(category)).
		Str("key", key).
		Str("value", value).
		Interface("default", def).
		Msg("settings: malformed value, using default")
}

func (s *Snapshot) String(category domain.SettingCategory, key, def string) string {
	v, ok := s.lookup(category, key, domain.SettingString)
	if !ok || v == "" {
		return def
	}
	return v
}

func (s *Snapshot) Int(category domain.SettingCategory, key string, def int) int {
	v, ok := s.lookup(category, key, domain.SettingInteger)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		malformed(category, key, v, def, err)
		return def
	}
	return n
}

func (s *Snapshot) Decimal(category domain.SettingCategory, key string, def decimal.Decimal) decimal.Decimal {
	v, ok := s.lookup(category, key, domain.SettingDecimal)
	if !ok {
		return def
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		malformed(category, key, v, def.String(), err)
		return def
	}
	return d
}

func (s *Snapshot) Bool(category domain.SettingCategory, key string, def bool) bool {
	v, ok := s.lookup(category, key, domain.SettingBoolean)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(strings.ToLower(v))
	if err != nil {
		malformed(category, key, v, def, err)
		return def
	}
	return b
}

// JSON decodes the setting into dest. It reports false, leaving dest
// untouched, when the key is missing or the value does not decode.
func (s *Snapshot) JSON(category domain.SettingCategory, key string, dest interface{}) bool {
	v, ok := s.lookup(category, key, domain.SettingJSON)
	if !ok {
		return false
	}
	if err := json.Unmarshal([]byte(v), dest); err != nil {
		malformed(category, key, v, nil, err)
		return false
	}
	return true
}

// Resolve builds the run configuration. Values outside their valid range
// are treated as malformed.
func (s *Snapshot) Resolve() RunSettings {
	def := Defaults()
	rs := RunSettings{
		DefaultLeadTimeDays:       s.positiveInt(domain.CategoryInventory, KeyDefaultLeadTimeDays, def.DefaultLeadTimeDays, 0),
		DefaultSafetyStockDays:    s.positiveInt(domain.CategoryInventory, KeyDefaultSafetyStockDays, def.DefaultSafetyStockDays, 0),
		BatchSize:                 s.positiveInt(domain.CategoryInventory, KeyAnalysisBatchSize, def.BatchSize, 1),
		CriticalStockoutThreshold: s.positiveInt(domain.CategoryAlerts, KeyCriticalStockoutDays, def.CriticalStockoutThreshold, 0),
		HighPriorityThreshold:     s.positiveInt(domain.CategoryAlerts, KeyHighPriorityDays, def.HighPriorityThreshold, 0),
		SlowMovingThresholdDays:   s.positiveInt(domain.CategoryAlerts, KeySlowMovingThresholdDays, def.SlowMovingThresholdDays, 1),
		OverstockedThresholdDays:  s.positiveInt(domain.CategoryAlerts, KeyOverstockedDays, def.OverstockedThresholdDays, 1),
		AlertsEnabled:             s.Bool(domain.CategoryAlerts, KeyAlertsEnabled, def.AlertsEnabled),
		MinSalesHistoryDays:       s.positiveInt(domain.CategoryAnalytics, KeyMinSalesHistoryDays, def.MinSalesHistoryDays, 0),
		SalesLookbackDays:         s.positiveInt(domain.CategoryAnalytics, KeySalesLookbackDays, def.SalesLookbackDays, minLookbackDays),
	}

	rs.MaxRecommendedOrderMultiplier = s.positiveFloat(domain.CategoryInventory, KeyMaxOrderMultiplier, def.MaxRecommendedOrderMultiplier)
	rs.TrendGrowthRatio = s.positiveFloat(domain.CategoryAnalytics, KeyTrendGrowthRatio, def.TrendGrowthRatio)
	rs.TrendDeclineRatio = s.positiveFloat(domain.CategoryAnalytics, KeyTrendDeclineRatio, def.TrendDeclineRatio)
	if rs.TrendDeclineRatio >= rs.TrendGrowthRatio {
		log.Warn().
			Float64("growth_ratio", rs.TrendGrowthRatio).
			Float64("decline_ratio", rs.TrendDeclineRatio).
			Msg("settings: trend ratios overlap, using defaults")
		rs.TrendGrowthRatio = def.TrendGrowthRatio
		rs.TrendDeclineRatio = def.TrendDeclineRatio
	}
	if rs.HighPriorityThreshold < rs.CriticalStockoutThreshold {
		log.Warn().
			Int("critical", rs.CriticalStockoutThreshold).
			Int("high", rs.HighPriorityThreshold).
			Msg("settings: high priority threshold below critical threshold, raising it")
		rs.HighPriorityThreshold = rs.CriticalStockoutThreshold
	}

	var levels []string
	rs.NotifyAlertLevels = def.NotifyAlertLevels
	if s.JSON(domain.CategoryNotifications, KeyNotifyAlertLevels, &levels) {
		parsed := make([]domain.AlertLevel, 0, len(levels))
		for _, l := range levels {
			parsed = append(parsed, domain.AlertLevel(strings.ToUpper(strings.TrimSpace(l))))
		}
		rs.NotifyAlertLevels = parsed
	}

	return rs
}

func (s *Snapshot) positiveInt(category domain.SettingCategory, key string, def, min int) int {
	n := s.Int(category, key, def)
	if n < min {
		malformed(category, key, strconv.Itoa(n), def, fmt.Errorf("value below minimum %d", min))
		return def
	}
	return n
}

func (s *Snapshot) positiveFloat(category domain.SettingCategory, key string, def float64) float64 {
	d := s.Decimal(category, key, decimal.NewFromFloat(def))
	if !d.IsPositive() {
		malformed(category, key, d.String(), def, fmt.Errorf("value must be positive"))
		return def
	}
	f, _ := d.Float64()
	return f
}
