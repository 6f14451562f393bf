package handler

import (
	"context"
	"net/http"
	"time"

	"intelliscale/pkg/autoscaler"
	"intelliscale/pkg/interfaces"
	"intelliscale/pkg/logger"

	"github.com/gin-gonic/gin"
)

const (
	defaultEventLimit = 50
	maxEventLimit     = 500
	// how long a manual evaluation waits for a running tick
	evaluateNowWait = 30 * time.Second
)

// AutoScalerHandler handles autoscaling operations
type AutoScalerHandler struct {
	manager *autoscaler.Manager
}

// NewAutoScalerHandler creates autoscaler handler
func NewAutoScalerHandler(manager *autoscaler.Manager) *AutoScalerHandler {
	return &AutoScalerHandler{
		manager: manager,
	}
}

// GetStatus gets autoscaler status
// @Summary Get autoscaler status
// @Description Get current autoscaler status, including every enabled policy and recent events
// @Tags Autoscaling
// @Produce json
// @Success 200 {object} autoscaler.AutoScalerStatus
// @Router /api/v1/autoscaling/status [get]
func (h *AutoScalerHandler) GetStatus(c *gin.Context) {
	status, err := h.manager.GetStatus(c.Request.Context())
	if err != nil {
		respondError(c, "get autoscaler status", err)
		return
	}

	c.JSON(http.StatusOK, status)
}

// ListEvents lists scaling events, newest first
// @Summary List scaling events
// @Tags Autoscaling
// @Param container_id query string false "Container ID"
// @Param policy_id query int false "Policy ID"
// @Param limit query int false "Limit (default 50, max 500)"
// @Param offset query int false "Offset"
// @Produce json
// @Success 200 {array} interfaces.ScalingEvent
// @Router /api/v1/autoscaling/events [get]
func (h *AutoScalerHandler) ListEvents(c *gin.Context) {
	limit := intQuery(c, "limit", defaultEventLimit)
	if limit == 0 || limit > maxEventLimit {
		limit = maxEventLimit
	}

	filter := interfaces.ScalingEventFilter{
		ContainerID: c.Query("container_id"),
		PolicyID:    int64(intQuery(c, "policy_id", 0)),
		Limit:       limit,
		Offset:      intQuery(c, "offset", 0),
	}

	events, err := h.manager.GetScalingHistory(c.Request.Context(), filter)
	if err != nil {
		respondError(c, "list scaling events", err)
		return
	}

	c.JSON(http.StatusOK, events)
}

// EvaluateNow runs an evaluation pass immediately
// @Summary Evaluate all policies now
// @Description Forces a pass over all enabled policies, ignoring evaluation periods. Cooldowns still apply.
// @Tags Autoscaling
// @Produce json
// @Success 200 {object} autoscaler.TickReport
// @Failure 409 {object} map[string]string
// @Router /api/v1/autoscaling/evaluate-now [post]
func (h *AutoScalerHandler) EvaluateNow(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), evaluateNowWait)
	defer cancel()

	report, err := h.manager.EvaluateNow(ctx)
	if err != nil {
		respondError(c, "evaluate policies", err)
		return
	}

	logger.InfoCtx(c.Request.Context(), "manual evaluation done: evaluated=%d actions=%d errors=%d",
		report.Evaluated, report.Actions, report.Errors)
	c.JSON(http.StatusOK, report)
}

// Enable enables autoscaler
// @Summary Enable autoscaler
// @Tags Autoscaling
// @Produce json
// @Success 200 {object} map[string]string
// @Router /api/v1/autoscaling/enable [post]
func (h *AutoScalerHandler) Enable(c *gin.Context) {
	h.manager.Enable()
	logger.InfoCtx(c.Request.Context(), "autoscaler enabled")
	c.JSON(http.StatusOK, gin.H{"status": "enabled"})
}

// Disable disables autoscaler
// @Summary Disable autoscaler
// @Tags Autoscaling
// @Produce json
// @Success 200 {object} map[string]string
// @Router /api/v1/autoscaling/disable [post]
func (h *AutoScalerHandler) Disable(c *gin.Context) {
	h.manager.Disable()
	logger.InfoCtx(c.Request.Context(), "autoscaler disabled")
	c.JSON(http.StatusOK, gin.H{"status": "disabled"})
}

// GetGlobalConfig gets autoscaler global config
// @Summary Get autoscaler config
// @Tags Autoscaling
// @Produce json
// @Success 200 {object} autoscaler.Config
// @Router /api/v1/autoscaling/config [get]
func (h *AutoScalerHandler) GetGlobalConfig(c *gin.Context) {
	c.JSON(http.StatusOK, h.manager.GetGlobalConfig())
}

// UpdateGlobalConfig updates autoscaler global config
// @Summary Update autoscaler config
// @Description Changing the interval resets the control loop ticker
// @Tags Autoscaling
// @Accept json
// @Produce json
// @Param config body autoscaler.Config true "Global config"
// @Success 200 {object} autoscaler.Config
// @Router /api/v1/autoscaling/config [put]
func (h *AutoScalerHandler) UpdateGlobalConfig(c *gin.Context) {
	var cfg autoscaler.Config
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	if cfg.Interval <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "interval must be greater than 0"})
		return
	}

	if err := h.manager.UpdateGlobalConfig(c.Request.Context(), &cfg); err != nil {
		respondError(c, "update autoscaler config", err)
		return
	}
	c.JSON(http.StatusOK, h.manager.GetGlobalConfig())
}
