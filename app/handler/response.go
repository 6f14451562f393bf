package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"intelliscale/internal/service"
	"intelliscale/pkg/autoscaler"
	"intelliscale/pkg/interfaces"
	"intelliscale/pkg/logger"
)

// statusFor maps service errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrValidation), errors.Is(err, service.ErrNotRunning):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrNotFound), errors.Is(err, interfaces.ErrContainerNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrPolicyExists), errors.Is(err, autoscaler.ErrEvaluationBusy):
		return http.StatusConflict
	case errors.Is(err, service.ErrUnsupported):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as {"error": ...}. Server errors are logged, the rest are caller mistakes.
func respondError(c *gin.Context, action string, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		logger.ErrorCtx(c.Request.Context(), "failed to %s: %v", action, err)
	} else {
		logger.DebugCtx(c.Request.Context(), "rejected %s: %v", action, err)
	}
	c.JSON(code, gin.H{"error": err.Error()})
}

// idParam parses a positive integer path parameter
func idParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid %s", name)})
		return 0, false
	}
	return id, true
}

// intQuery parses an optional non-negative integer query parameter
func intQuery(c *gin.Context, name string, def int) int {
	if raw := c.Query(name); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v >= 0 {
			return v
		}
	}
	return def
}
