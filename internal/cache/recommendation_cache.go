package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/andresuchdata/autopo-replenishment/internal/config"
	"github.com/andresuchdata/autopo-replenishment/internal/domain"
	"github.com/redis/go-redis/v9"
)

const (
	recommendationKeyPrefix = "replenishment"
	recommendationScanBatch = 100
)

// RecommendationPage is a cached page of recommendation rows.
type RecommendationPage struct {
	Records []domain.RecommendationRecord `json:"records"`
	Total   int                           `json:"total"`
}

// RecommendationCache caches read-side queries. A committed run invalidates
// every entry of its source.
type RecommendationCache interface {
	GetSummary(ctx context.Context, source, analysisDate string) ([]domain.PrioritySummary, bool, error)
	SetSummary(ctx context.Context, source, analysisDate string, summary []domain.PrioritySummary) error
	GetPage(ctx context.Context, filter domain.RecommendationFilter) (*RecommendationPage, bool, error)
	SetPage(ctx context.Context, filter domain.RecommendationFilter, page *RecommendationPage) error
	InvalidateSource(ctx context.Context, source string) error
}

type redisRecommendationCache struct {
	client *redis.Client
	ttl    time.Duration
}

type noopRecommendationCache struct{}

// NewRecommendationCache returns a Redis-backed cache when caching is enabled
// and a client is available, and a no-op cache otherwise.
func NewRecommendationCache(cfg config.CacheConfig, client *redis.Client) RecommendationCache {
	if !cfg.Enabled || client == nil {
		return &noopRecommendationCache{}
	}
	return NewRedisRecommendationCache(client, TTL(cfg))
}

func NewRedisRecommendationCache(client *redis.Client, ttl time.Duration) RecommendationCache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &redisRecommendationCache{client: client, ttl: ttl}
}

func NewNoopRecommendationCache() RecommendationCache {
	return &noopRecommendationCache{}
}

func (c *redisRecommendationCache) GetSummary(ctx context.Context, source, analysisDate string) ([]domain.PrioritySummary, bool, error) {
	var summary []domain.PrioritySummary
	ok, err := c.get(ctx, summaryKey(source, analysisDate), &summary)
	return summary, ok, err
}

func (c *redisRecommendationCache) SetSummary(ctx context.Context, source, analysisDate string, summary []domain.PrioritySummary) error {
	return c.set(ctx, summaryKey(source, analysisDate), summary)
}

func (c *redisRecommendationCache) GetPage(ctx context.Context, filter domain.RecommendationFilter) (*RecommendationPage, bool, error) {
	page := &RecommendationPage{}
	ok, err := c.get(ctx, pageKey(filter), page)
	if !ok {
		return nil, false, err
	}
	return page, true, nil
}

func (c *redisRecommendationCache) SetPage(ctx context.Context, filter domain.RecommendationFilter, page *RecommendationPage) error {
	return c.set(ctx, pageKey(filter), page)
}

func (c *redisRecommendationCache) InvalidateSource(ctx context.Context, source string) error {
	return deleteKeysWithPrefix(ctx, c.client, sourcePrefix(source), recommendationScanBatch)
}

func (c *redisRecommendationCache) get(ctx context.Context, key string, dest interface{}) (bool, error) {
	payload, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get failed: %w", err)
	}

	if err := json.Unmarshal(payload, dest); err != nil {
		return false, fmt.Errorf("decode recommendation cache: %w", err)
	}
	return true, nil
}

func (c *redisRecommendationCache) set(ctx context.Context, key string, value interface{}) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode recommendation cache: %w", err)
	}

	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (n *noopRecommendationCache) GetSummary(ctx context.Context, source, analysisDate string) ([]domain.PrioritySummary, bool, error) {
	return nil, false, nil
}

func (n *noopRecommendationCache) SetSummary(ctx context.Context, source, analysisDate string, summary []domain.PrioritySummary) error {
	return nil
}

func (n *noopRecommendationCache) GetPage(ctx context.Context, filter domain.RecommendationFilter) (*RecommendationPage, bool, error) {
	return nil, false, nil
}

func (n *noopRecommendationCache) SetPage(ctx context.Context, filter domain.RecommendationFilter, page *RecommendationPage) error {
	return nil
}

func (n *noopRecommendationCache) InvalidateSource(ctx context.Context, source string) error {
	return nil
}

func sourcePrefix(source string) string {
	return fmt.Sprintf("%s:%s:", recommendationKeyPrefix, strings.ToLower(strings.TrimSpace(source)))
}

func summaryKey(source, analysisDate string) string {
	return sourcePrefix(source) + "summary:" + strings.TrimSpace(analysisDate)
}

func pageKey(filter domain.RecommendationFilter) string {
	return sourcePrefix(filter.Source) + "page:" + recommendationFilterHash(filter)
}

func recommendationFilterHash(filter domain.RecommendationFilter) string {
	parts := []string{
		"analysis_date=" + strings.TrimSpace(filter.AnalysisDate),
		fmt.Sprintf("page=%d", filter.Page),
		fmt.Sprintf("page_size=%d", filter.PageSize),
	}

	if len(filter.Priorities) > 0 {
		priorities := make([]string, 0, len(filter.Priorities))
		for _, p := range filter.Priorities {
			priorities = append(priorities, strings.ToUpper(string(p)))
		}
		sort.Strings(priorities)
		parts = append(parts, "priorities="+strings.Join(priorities, ","))
	}

	sort.Strings(parts)
	raw := strings.Join(parts, "|")
	sum := sha1.Sum([]byte(raw))
	return hex.EncodeToString(sum[:])
}
