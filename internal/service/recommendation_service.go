package service

import (
	"context"
	"fmt"
	"time"

	"github.com/andresuchdata/autopo-replenishment/internal/cache"
	"github.com/andresuchdata/autopo-replenishment/internal/domain"
	"github.com/andresuchdata/autopo-replenishment/internal/repository"
	"github.com/rs/zerolog/log"
)

type RecommendationService struct {
	repo  repository.RecommendationRepository
	cache cache.RecommendationCache
}

func NewRecommendationService(repo repository.RecommendationRepository, cacheImpl cache.RecommendationCache) *RecommendationService {
	if cacheImpl == nil {
		cacheImpl = cache.NewNoopRecommendationCache()
	}
	return &RecommendationService{repo: repo, cache: cacheImpl}
}

// resolveDate defaults an empty analysis date to the source's latest run.
func (s *RecommendationService) resolveDate(ctx context.Context, source, analysisDate string) (string, error) {
	if analysisDate != "" {
		if _, err := time.Parse(domain.DateLayout, analysisDate); err != nil {
			return "", fmt.Errorf("%w: analysis_date %q must be YYYY-MM-DD", domain.ErrValidation, analysisDate)
		}
		return analysisDate, nil
	}
	return s.repo.LatestAnalysisDate(ctx, source)
}

// List returns one page of recommendations ranked by urgency.
func (s *RecommendationService) List(ctx context.Context, filter domain.RecommendationFilter) ([]domain.RecommendationRecord, int, error) {
	if filter.Source == "" {
		return nil, 0, fmt.Errorf("%w: source is required", domain.ErrValidation)
	}

	date, err := s.resolveDate(ctx, filter.Source, filter.AnalysisDate)
	if err != nil {
		return nil, 0, err
	}
	if date == "" {
		return []domain.RecommendationRecord{}, 0, nil
	}
	filter.AnalysisDate = date

	if page, ok, err := s.cache.GetPage(ctx, filter); err == nil && ok {
		return page.Records, page.Total, nil
	} else if err != nil {
		log.Warn().Err(err).Msg("recommendations: cache get page failed")
	}

	records, total, err := s.repo.ListRecommendations(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	if records == nil {
		records = make([]domain.RecommendationRecord, 0)
	}

	if err := s.cache.SetPage(ctx, filter, &cache.RecommendationPage{Records: records, Total: total}); err != nil {
		log.Warn().Err(err).Msg("recommendations: cache set page failed")
	}

	return records, total, nil
}

// Summary counts recommendations per priority for one source and day. It
// also returns the date the summary was computed for.
func (s *RecommendationService) Summary(ctx context.Context, source, analysisDate string) ([]domain.PrioritySummary, string, error) {
	if source == "" {
		return nil, "", fmt.Errorf("%w: source is required", domain.ErrValidation)
	}

	date, err := s.resolveDate(ctx, source, analysisDate)
	if err != nil {
		return nil, "", err
	}
	if date == "" {
		return []domain.PrioritySummary{}, "", nil
	}

	if summary, ok, err := s.cache.GetSummary(ctx, source, date); err == nil && ok {
		return summary, date, nil
	} else if err != nil {
		log.Warn().Err(err).Msg("recommendations: cache get summary failed")
	}

	summary, err := s.repo.SummarizeByPriority(ctx, source, date)
	if err != nil {
		return nil, "", err
	}
	if summary == nil {
		summary = make([]domain.PrioritySummary, 0)
	}

	if err := s.cache.SetSummary(ctx, source, date, summary); err != nil {
		log.Warn().Err(err).Msg("recommendations: cache set summary failed")
	}

	return summary, date, nil
}
