package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/andresuchdata/autopo-replenishment/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Error codes returned to clients.
const (
	CodeValidation        = "VALIDATION_ERROR"
	CodeNotFound          = "NOT_FOUND"
	CodeRunInProgress     = "RUN_IN_PROGRESS"
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeRunFailed         = "RUN_FAILED"
	CodeInternal          = "INTERNAL_ERROR"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Retryable bool   `json:"retryable"`
}

// classify maps an error to its HTTP status and response body.
func classify(err error) (int, ErrorResponse) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: CodeValidation}
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: CodeNotFound}
	case errors.Is(err, domain.ErrRunInProgress):
		return http.StatusConflict, ErrorResponse{Error: err.Error(), Code: CodeRunInProgress, Retryable: true}
	case errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict, ErrorResponse{Error: err.Error(), Code: CodeInvalidTransition}
	default:
		return http.StatusInternalServerError, ErrorResponse{Error: "internal server error", Code: CodeInternal, Retryable: true}
	}
}

func respondError(c *gin.Context, err error) {
	status, body := classify(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.FullPath()).Msg("Request failed")
	}
	c.AbortWithStatusJSON(status, body)
}

// queryList supports both repeated and comma separated parameters:
//
//	?priority=CRITICAL&priority=HIGH
//	?priority=CRITICAL,HIGH
func queryList(c *gin.Context, param string) []string {
	var out []string
	for _, v := range c.QueryArray(param) {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
