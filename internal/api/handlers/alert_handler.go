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

type AlertHandler struct {
	service *service.AlertService
}

func NewAlertHandler(service *service.AlertService) *AlertHandler {
	return &AlertHandler{service: service}
}

type updateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

func (h *AlertHandler) parseFilter(c *gin.Context) (domain.AlertFilter, error) {
	filter := domain.AlertFilter{
		Source:    strings.TrimSpace(c.Query("source")),
		ProductID: strings.TrimSpace(c.Query("product_id")),
		Page:      1,
		PageSize:  50,
	}

	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil && page > 0 {
		filter.Page = page
	}

	if size, err := strconv.Atoi(c.DefaultQuery("page_size", "50")); err == nil && size > 0 {
		filter.PageSize = size
	}

	for _, label := range queryList(c, "status") {
		s, ok := domain.ParseAlertStatus(label)
		if !ok {
			return filter, fmt.Errorf("%w: unknown alert status %q", domain.ErrValidation, label)
		}
		filter.Statuses = append(filter.Statuses, s)
	}

	if raw := strings.TrimSpace(c.Query("alert_type")); raw != "" {
		t, ok := domain.ParseAlertType(raw)
		if !ok {
			return filter, fmt.Errorf("%w: unknown alert type %q", domain.ErrValidation, raw)
		}
		filter.AlertType = t
	}

	return filter, nil
}

func (h *AlertHandler) GetAlerts(c *gin.Context) {
	filter, err := h.parseFilter(c)
	if err != nil {
		respondError(c, err)
		return
	}

	alerts, total, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"items":     alerts,
		"total":     total,
		"page":      filter.Page,
		"page_size": filter.PageSize,
	})
}

// GetNotifiable lists NEW alerts at the configured notification levels.
func (h *AlertHandler) GetNotifiable(c *gin.Context) {
	alerts, err := h.service.Notifiable(c.Request.Context(), strings.TrimSpace(c.Query("source")))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"items": alerts})
}

func (h *AlertHandler) UpdateStatus(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(c, fmt.Errorf("%w: alert id must be a positive integer", domain.ErrValidation))
		return
	}

	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, fmt.Errorf("%w: %v", domain.ErrValidation, err))
		return
	}

	next, ok := domain.ParseAlertStatus(req.Status)
	if !ok {
		respondError(c, fmt.Errorf("%w: unknown alert status %q", domain.ErrValidation, req.Status))
		return
	}

	alert, err := h.service.UpdateStatus(c.Request.Context(), id, next)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, alert)
}
