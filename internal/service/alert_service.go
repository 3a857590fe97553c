package service

import (
	"context"
	"fmt"
	"time"

	"github.com/andresuchdata/autopo-replenishment/internal/domain"
	"github.com/andresuchdata/autopo-replenishment/internal/repository"
	"github.com/andresuchdata/autopo-replenishment/internal/settings"
	"github.com/rs/zerolog/log"
)

// SettingsSource resolves the current run settings.
type SettingsSource interface {
	RunSettings(ctx context.Context) (settings.RunSettings, error)
}

type AlertService struct {
	repo     repository.AlertRepository
	settings SettingsSource
	now      func() time.Time
}

func NewAlertService(repo repository.AlertRepository, settingsSource SettingsSource) *AlertService {
	return &AlertService{repo: repo, settings: settingsSource, now: time.Now}
}

func (s *AlertService) List(ctx context.Context, filter domain.AlertFilter) ([]domain.AlertRecord, int, error) {
	alerts, total, err := s.repo.ListAlerts(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	if alerts == nil {
		alerts = make([]domain.AlertRecord, 0)
	}
	return alerts, total, nil
}

// Notifiable lists NEW alerts whose level is configured for notification.
// Delivery belongs to external notifiers.
func (s *AlertService) Notifiable(ctx context.Context, source string) ([]domain.AlertRecord, error) {
	rs, err := s.settings.RunSettings(ctx)
	if err != nil {
		return nil, err
	}

	levels := make(map[domain.AlertLevel]bool, len(rs.NotifyAlertLevels))
	for _, l := range rs.NotifyAlertLevels {
		levels[l] = true
	}

	var out []domain.AlertRecord
	for page := 1; ; page++ {
		alerts, total, err := s.repo.ListAlerts(ctx, domain.AlertFilter{
			Source:   source,
			Statuses: []domain.AlertStatus{domain.AlertStatusNew},
			Page:     page,
			PageSize: 500,
		})
		if err != nil {
			return nil, err
		}
		for _, a := range alerts {
			if levels[a.AlertLevel] {
				out = append(out, a)
			}
		}
		if len(alerts) == 0 || page*500 >= total {
			break
		}
	}

	if out == nil {
		out = make([]domain.AlertRecord, 0)
	}
	return out, nil
}

// UpdateStatus applies an operator transition. The write is conditional on
// the status read here, so a concurrent change surfaces as
// domain.ErrInvalidTransition instead of being overwritten.
func (s *AlertService) UpdateStatus(ctx context.Context, id int64, next domain.AlertStatus) (*domain.AlertRecord, error) {
	current, err := s.repo.GetAlert(ctx, id)
	if err != nil {
		return nil, err
	}

	if !current.Status.CanTransition(next) {
		return nil, fmt.Errorf("alert %d cannot move from %s to %s: %w", id, current.Status, next, domain.ErrInvalidTransition)
	}

	updated, err := s.repo.TransitionAlert(ctx, id, current.Status, next, s.now().UTC())
	if err != nil {
		return nil, err
	}

	log.Info().
		Int64("alert_id", id).
		Str("product_id", updated.ProductID).
		Str("from", string(current.Status)).
		Str("to", string(next)).
		Msg("Alert status updated")
	return updated, nil
}
