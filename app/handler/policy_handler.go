package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"intelliscale/app/middleware"
	"intelliscale/internal/service"
	"intelliscale/pkg/autoscaler"
	"intelliscale/pkg/interfaces"
	"intelliscale/pkg/logger"
)

// PolicyStatusProvider computes the live status of a policy
type PolicyStatusProvider interface {
	PolicyStatus(ctx context.Context, p *interfaces.ScalingPolicy) *autoscaler.PolicyStatus
}

// PolicyHandler handles scaling policy CRUD
type PolicyHandler struct {
	policyService *service.PolicyService
	status        PolicyStatusProvider
}

// NewPolicyHandler creates policy handler
func NewPolicyHandler(policyService *service.PolicyService, status PolicyStatusProvider) *PolicyHandler {
	return &PolicyHandler{
		policyService: policyService,
		status:        status,
	}
}

// Create creates a scaling policy
// @Summary Create scaling policy
// @Description Create the scaling policy of a primary container. Omitted fields take defaults.
// @Tags Autoscaling
// @Accept json
// @Produce json
// @Param request body interfaces.CreatePolicyRequest true "Policy"
// @Success 201 {object} interfaces.ScalingPolicy
// @Router /api/v1/autoscaling/policies [post]
func (h *PolicyHandler) Create(c *gin.Context) {
	var req interfaces.CreatePolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	policy, err := h.policyService.CreatePolicy(c.Request.Context(), middleware.UserID(c), &req)
	if err != nil {
		respondError(c, "create scaling policy", err)
		return
	}

	c.JSON(http.StatusCreated, policy)
}

// List lists the caller's scaling policies
// @Summary List scaling policies
// @Tags Autoscaling
// @Produce json
// @Success 200 {array} interfaces.ScalingPolicy
// @Router /api/v1/autoscaling/policies [get]
func (h *PolicyHandler) List(c *gin.Context) {
	policies, err := h.policyService.ListPolicies(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		respondError(c, "list scaling policies", err)
		return
	}
	c.JSON(http.StatusOK, policies)
}

// Get gets one scaling policy
// @Summary Get scaling policy
// @Tags Autoscaling
// @Produce json
// @Param id path int true "Policy ID"
// @Success 200 {object} interfaces.ScalingPolicy
// @Router /api/v1/autoscaling/policies/{id} [get]
func (h *PolicyHandler) Get(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	policy, err := h.policyService.GetPolicy(c.Request.Context(), id)
	if err != nil {
		respondError(c, "get scaling policy", err)
		return
	}
	c.JSON(http.StatusOK, policy)
}

// Update updates a scaling policy
// @Summary Update scaling policy
// @Description Partial update; the merged policy is validated as a whole.
// @Tags Autoscaling
// @Accept json
// @Produce json
// @Param id path int true "Policy ID"
// @Param request body interfaces.UpdatePolicyRequest true "Fields to change"
// @Success 200 {object} interfaces.ScalingPolicy
// @Router /api/v1/autoscaling/policies/{id} [put]
func (h *PolicyHandler) Update(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	var req interfaces.UpdatePolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	policy, err := h.policyService.UpdatePolicy(c.Request.Context(), id, &req)
	if err != nil {
		respondError(c, "update scaling policy", err)
		return
	}
	c.JSON(http.StatusOK, policy)
}

// Delete deletes a scaling policy, its events are kept
// @Summary Delete scaling policy
// @Tags Autoscaling
// @Param id path int true "Policy ID"
// @Success 204
// @Router /api/v1/autoscaling/policies/{id} [delete]
func (h *PolicyHandler) Delete(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	if err := h.policyService.DeletePolicy(c.Request.Context(), id); err != nil {
		respondError(c, "delete scaling policy", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Toggle flips the enabled flag of a policy
// @Summary Toggle scaling policy
// @Tags Autoscaling
// @Produce json
// @Param id path int true "Policy ID"
// @Success 200 {object} interfaces.ScalingPolicy
// @Router /api/v1/autoscaling/policies/{id}/toggle [post]
func (h *PolicyHandler) Toggle(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	policy, err := h.policyService.TogglePolicy(c.Request.Context(), id)
	if err != nil {
		respondError(c, "toggle scaling policy", err)
		return
	}
	logger.InfoCtx(c.Request.Context(), "policy %d toggled, enabled=%v", id, policy.Enabled)
	c.JSON(http.StatusOK, policy)
}

// Status returns replica count, cooldown and next evaluation of a policy
// @Summary Get scaling policy status
// @Tags Autoscaling
// @Produce json
// @Param id path int true "Policy ID"
// @Success 200 {object} autoscaler.PolicyStatus
// @Router /api/v1/autoscaling/policies/{id}/status [get]
func (h *PolicyHandler) Status(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	policy, err := h.policyService.GetPolicy(c.Request.Context(), id)
	if err != nil {
		respondError(c, "get scaling policy", err)
		return
	}
	c.JSON(http.StatusOK, h.status.PolicyStatus(c.Request.Context(), policy))
}
