package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"intelliscale/pkg/interfaces"
	"intelliscale/pkg/logger"
	"intelliscale/pkg/metricsource"
)

// MetricsPinner implemented by metrics sources whose values can be forced
type MetricsPinner interface {
	Pin(containerID string, o metricsource.Override)
	Unpin(containerID string)
}

// ContainerReplicas primary container and its running replicas
type ContainerReplicas struct {
	Primary  *interfaces.ContainerInfo   `json:"primary"`
	Replicas []*interfaces.ContainerInfo `json:"replicas"`
	Total    int                         `json:"total"` // primary included
}

// ContainerService exposes the container registry to the API
type ContainerService struct {
	registry interfaces.ContainerRegistry
	metrics  interfaces.MetricsSource
}

// NewContainerService creates a new container service
func NewContainerService(registry interfaces.ContainerRegistry, metrics interfaces.MetricsSource) *ContainerService {
	return &ContainerService{
		registry: registry,
		metrics:  metrics,
	}
}

// RegisterContainer declares a primary container with registries that accept it
func (s *ContainerService) RegisterContainer(ctx context.Context, userID int64, req *interfaces.RegisterContainerRequest) (*interfaces.ContainerInfo, error) {
	registrar, ok := s.registry.(interfaces.ContainerRegistrar)
	if !ok {
		return nil, fmt.Errorf("%w: container registration", ErrUnsupported)
	}
	if strings.TrimSpace(req.Name) == "" {
		return nil, fmt.Errorf("%w: name is required", ErrValidation)
	}
	if req.Port < 1 || req.Port > 65535 {
		return nil, fmt.Errorf("%w: port must be within 1-65535, got %d", ErrValidation, req.Port)
	}
	if req.ID != "" {
		if _, err := s.registry.ContainerStatus(ctx, req.ID); err == nil {
			return nil, fmt.Errorf("%w: container %s already exists", ErrValidation, req.ID)
		}
	}

	req.UserID = userID
	info, err := registrar.RegisterContainer(ctx, req)
	if err != nil {
		return nil, err
	}
	logger.InfoCtx(ctx, "registered container %s (%s) at %s", info.ID, info.Name, info.URL)
	return info, nil
}

// ListContainers lists running containers, primaries and replicas
func (s *ContainerService) ListContainers(ctx context.Context) ([]*interfaces.ContainerInfo, error) {
	return s.registry.ListContainers(ctx)
}

// GetContainer returns one container
func (s *ContainerService) GetContainer(ctx context.Context, id string) (*interfaces.ContainerInfo, error) {
	info, err := s.registry.ContainerStatus(ctx, id)
	if err != nil {
		if errors.Is(err, interfaces.ErrContainerNotFound) {
			return nil, fmt.Errorf("%w: container %s", ErrNotFound, id)
		}
		return nil, err
	}
	return info, nil
}

// GetReplicas returns the replica set of a primary, oldest replica first
func (s *ContainerService) GetReplicas(ctx context.Context, id string) (*ContainerReplicas, error) {
	primary, err := s.GetContainer(ctx, id)
	if err != nil {
		return nil, err
	}

	ids, err := s.registry.ListReplicas(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list replicas: %w", err)
	}

	result := &ContainerReplicas{
		Primary:  primary,
		Replicas: make([]*interfaces.ContainerInfo, 0, len(ids)),
	}
	for _, replicaID := range ids {
		info, err := s.registry.ContainerStatus(ctx, replicaID)
		if err != nil {
			// stopped between the two calls
			logger.DebugCtx(ctx, "replica %s vanished: %v", replicaID, err)
			continue
		}
		result.Replicas = append(result.Replicas, info)
	}
	result.Total = 1 + len(result.Replicas)
	return result, nil
}

// PinMetrics forces the simulated usage of a container
func (s *ContainerService) PinMetrics(ctx context.Context, id string, o metricsource.Override) error {
	pinner, ok := s.metrics.(MetricsPinner)
	if !ok {
		return fmt.Errorf("%w: pinning metrics", ErrUnsupported)
	}
	if o.CPUPercent < 0 || o.CPUPercent > 100 || o.MemoryPercent < 0 || o.MemoryPercent > 100 {
		return fmt.Errorf("%w: percentages must be within 0-100", ErrValidation)
	}
	if o.MemoryMB < 0 {
		return fmt.Errorf("%w: memory_mb must not be negative", ErrValidation)
	}
	if _, err := s.GetContainer(ctx, id); err != nil {
		return err
	}

	pinner.Pin(id, o)
	logger.InfoCtx(ctx, "pinned metrics of %s: cpu=%.1f%% mem=%.1f%%", id, o.CPUPercent, o.MemoryPercent)
	return nil
}

// UnpinMetrics restores random simulated usage
func (s *ContainerService) UnpinMetrics(ctx context.Context, id string) error {
	pinner, ok := s.metrics.(MetricsPinner)
	if !ok {
		return fmt.Errorf("%w: pinning metrics", ErrUnsupported)
	}
	pinner.Unpin(id)
	return nil
}
