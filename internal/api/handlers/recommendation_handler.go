package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/andresuchdata/autopo-replenishment/internal/domain"
	"github.com/andresuchdata/autopo-replenishment/internal/service"
	"github.com/gin-gonic/gin"
)

type RecommendationHandler struct {
	service *service.RecommendationService
}

func NewRecommendationHandler(service *service.RecommendationService) *RecommendationHandler {
	return &RecommendationHandler{service: service}
}

func (h *RecommendationHandler) parseFilter(c *gin.Context) (domain.RecommendationFilter, error) {
	filter := domain.RecommendationFilter{
		Source:       strings.TrimSpace(c.Query("source")),
		AnalysisDate: strings.TrimSpace(c.Query("analysis_date")),
		Page:         1,
		PageSize:     50,
	}

	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil && page > 0 {
		filter.Page = page
	}

	if size, err := strconv.Atoi(c.DefaultQuery("page_size", "50")); err == nil && size > 0 {
		filter.PageSize = size
	}

	for _, label := range queryList(c, "priority") {
		p, ok := domain.ParsePriorityLevel(label)
		if !ok {
			return filter, fmt.Errorf("%w: unknown priority %q", domain.ErrValidation, label)
		}
		filter.Priorities = append(filter.Priorities, p)
	}

	return filter, nil
}

// GetRecommendations lists recommendations ranked by urgency.
func (h *RecommendationHandler) GetRecommendations(c *gin.Context) {
	filter, err := h.parseFilter(c)
	if err != nil {
		respondError(c, err)
		return
	}

	records, total, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"items":     records,
		"total":     total,
		"page":      filter.Page,
		"page_size": filter.PageSize,
	})
}

func (h *RecommendationHandler) GetSummary(c *gin.Context) {
	source := strings.TrimSpace(c.Query("source"))
	summary, date, err := h.service.Summary(c.Request.Context(), source, strings.TrimSpace(c.Query("analysis_date")))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"source":        source,
		"analysis_date": date,
		"priorities":    summary,
	})
}
