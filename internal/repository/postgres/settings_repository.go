package postgres

import (
	"context"
	"fmt"

	"github.com/andresuchdata/autopo-replenishment/internal/domain"
)

type SettingsRepository struct {
	db *DB
}

func NewSettingsRepository(db *DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// ListSettings reads the whole settings table; runs snapshot it once.
func (r *SettingsRepository) ListSettings(ctx context.Context) ([]domain.SettingEntry, error) {
	query := `
		SELECT key, value, value_type, category
		FROM system_settings
		ORDER BY category, key
	`

	var entries []domain.SettingEntry
	if err := r.db.SelectContext(ctx, &entries, query); err != nil {
		return nil, fmt.Errorf("error loading system settings: %w", err)
	}
	return entries, nil
}
