package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"intelliscale/app/middleware"
	"intelliscale/internal/service"
	"intelliscale/pkg/interfaces"
	"intelliscale/pkg/metricsource"
)

// ContainerHandler handles container registry operations
type ContainerHandler struct {
	containerService *service.ContainerService
}

// NewContainerHandler creates container handler
func NewContainerHandler(containerService *service.ContainerService) *ContainerHandler {
	return &ContainerHandler{
		containerService: containerService,
	}
}

// Register declares a primary container
// @Summary Register container
// @Description Only registries that track externally declared containers (simulated) accept this
// @Tags Containers
// @Accept json
// @Produce json
// @Param request body interfaces.RegisterContainerRequest true "Container"
// @Success 201 {object} interfaces.ContainerInfo
// @Router /api/v1/containers [post]
func (h *ContainerHandler) Register(c *gin.Context) {
	var req interfaces.RegisterContainerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	info, err := h.containerService.RegisterContainer(c.Request.Context(), middleware.UserID(c), &req)
	if err != nil {
		respondError(c, "register container", err)
		return
	}
	c.JSON(http.StatusCreated, info)
}

// List lists running containers
// @Summary List containers
// @Tags Containers
// @Produce json
// @Success 200 {array} interfaces.ContainerInfo
// @Router /api/v1/containers [get]
func (h *ContainerHandler) List(c *gin.Context) {
	containers, err := h.containerService.ListContainers(c.Request.Context())
	if err != nil {
		respondError(c, "list containers", err)
		return
	}
	c.JSON(http.StatusOK, containers)
}

// Get gets one container
// @Summary Get container
// @Tags Containers
// @Produce json
// @Param id path string true "Container ID"
// @Success 200 {object} interfaces.ContainerInfo
// @Router /api/v1/containers/{id} [get]
func (h *ContainerHandler) Get(c *gin.Context) {
	info, err := h.containerService.GetContainer(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "get container", err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// Replicas lists the replica set of a primary
// @Summary Get container replicas
// @Tags Containers
// @Produce json
// @Param id path string true "Primary container ID"
// @Success 200 {object} service.ContainerReplicas
// @Router /api/v1/containers/{id}/replicas [get]
func (h *ContainerHandler) Replicas(c *gin.Context) {
	replicas, err := h.containerService.GetReplicas(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "get container replicas", err)
		return
	}
	c.JSON(http.StatusOK, replicas)
}

// PinMetrics forces the simulated cpu and memory usage of a container
// @Summary Pin simulated metrics
// @Tags Containers
// @Accept json
// @Produce json
// @Param id path string true "Container ID"
// @Param request body metricsource.Override true "Pinned values"
// @Success 200 {object} map[string]string
// @Router /api/v1/containers/{id}/simulated-metrics [put]
func (h *ContainerHandler) PinMetrics(c *gin.Context) {
	var o metricsource.Override
	if err := c.ShouldBindJSON(&o); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	id := c.Param("id")
	if err := h.containerService.PinMetrics(c.Request.Context(), id, o); err != nil {
		respondError(c, "pin metrics", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "pinned", "container_id": id})
}

// UnpinMetrics restores random simulated usage
// @Summary Unpin simulated metrics
// @Tags Containers
// @Produce json
// @Param id path string true "Container ID"
// @Success 200 {object} map[string]string
// @Router /api/v1/containers/{id}/simulated-metrics [delete]
func (h *ContainerHandler) UnpinMetrics(c *gin.Context) {
	id := c.Param("id")
	if err := h.containerService.UnpinMetrics(c.Request.Context(), id); err != nil {
		respondError(c, "unpin metrics", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "unpinned", "container_id": id})
}
