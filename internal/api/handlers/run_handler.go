package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/andresuchdata/autopo-replenishment/internal/domain"
	"github.com/andresuchdata/autopo-replenishment/internal/pipeline"
	"github.com/andresuchdata/autopo-replenishment/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type RunHandler struct {
	service *service.RunService
}

func NewRunHandler(service *service.RunService) *RunHandler {
	return &RunHandler{service: service}
}

type triggerRunRequest struct {
	Source       string `json:"source" binding:"required"`
	AnalysisDate string `json:"analysis_date"`
	DryRun       bool   `json:"dry_run"`
	Limit        int    `json:"limit"`
}

// TriggerRun executes an analysis run and returns its summary. Partially
// failed and cancelled runs still answer 200; the summary status tells.
func (h *RunHandler) TriggerRun(c *gin.Context) {
	var body triggerRunRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, fmt.Errorf("%w: %v", domain.ErrValidation, err))
		return
	}

	date, err := pipeline.ParseAnalysisDate(body.AnalysisDate)
	if err != nil {
		respondError(c, err)
		return
	}

	summary, err := h.service.Trigger(c.Request.Context(), pipeline.RunRequest{
		Source:       body.Source,
		AnalysisDate: date,
		DryRun:       body.DryRun,
		Limit:        body.Limit,
	})

	switch {
	case err == nil,
		summary != nil && errors.Is(err, domain.ErrPartialFailure),
		summary != nil && errors.Is(err, context.Canceled):
		c.JSON(http.StatusOK, summary)
	case summary != nil:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     err.Error(),
			"code":      CodeRunFailed,
			"retryable": true,
			"summary":   summary,
		})
	default:
		respondError(c, err)
	}
}

func (h *RunHandler) GetRun(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		respondError(c, fmt.Errorf("%w: run id must be a UUID", domain.ErrValidation))
		return
	}

	detail, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, detail)
}
