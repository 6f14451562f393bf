package monitoring

import (
	"context"
	"fmt"
	"sync"

	"intelliscale/pkg/interfaces"
	"intelliscale/pkg/logger"
)

// Collector samples every running container and exports the values as gauges
type Collector struct {
	registry interfaces.ContainerRegistry
	source   interfaces.MetricsSource

	mu       sync.Mutex
	exported map[string]string // container id -> parent id of the last export
}

// NewCollector creates container metrics collector
func NewCollector(registry interfaces.ContainerRegistry, source interfaces.MetricsSource) *Collector {
	return &Collector{
		registry: registry,
		source:   source,
		exported: make(map[string]string),
	}
}

// Collect samples all running containers once. Per-container failures are logged and skipped.
func (c *Collector) Collect(ctx context.Context) ([]ContainerUsage, error) {
	containers, err := c.registry.ListContainers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	seen := make(map[string]string, len(containers))
	usages := make([]ContainerUsage, 0, len(containers))
	for _, ctr := range containers {
		sample, err := c.source.Sample(ctx, ctr.ID)
		if err != nil {
			logger.WarnCtx(ctx, "failed to sample container %s: %v", ctr.ID, err)
			continue
		}

		ContainerCPUUsage.WithLabelValues(ctr.ID, ctr.ParentID).Set(sample.CPUPercent)
		ContainerMemoryUsage.WithLabelValues(ctr.ID, ctr.ParentID).Set(sample.MemoryPercent)
		seen[ctr.ID] = ctr.ParentID

		usages = append(usages, ContainerUsage{
			ContainerID:   ctr.ID,
			ParentID:      ctr.ParentID,
			CPUPercent:    sample.CPUPercent,
			MemoryPercent: sample.MemoryPercent,
			MemoryMB:      sample.MemoryMB,
			Timestamp:     sample.Timestamp,
		})
	}

	// drop series of containers that went away
	c.mu.Lock()
	for id, parent := range c.exported {
		if _, ok := seen[id]; !ok {
			ContainerCPUUsage.DeleteLabelValues(id, parent)
			ContainerMemoryUsage.DeleteLabelValues(id, parent)
		}
	}
	c.exported = seen
	c.mu.Unlock()

	return usages, nil
}
