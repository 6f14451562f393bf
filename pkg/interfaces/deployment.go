package interfaces

import (
	"context"
	"errors"
	"time"

	"intelliscale/pkg/constants"
)

// ErrContainerNotFound returned by registries for unknown container ids
var ErrContainerNotFound = errors.New("container not found")

// ContainerInfo container or replica details
type ContainerInfo struct {
	ID        string                    `json:"id"`
	ParentID  string                    `json:"parent_id,omitempty"`
	UserID    int64                     `json:"user_id"`
	Name      string                    `json:"name"`
	Image     string                    `json:"image"`
	Port      int                       `json:"port"`
	URL       string                    `json:"url"`
	Status    constants.ContainerStatus `json:"status"`
	Labels    map[string]string         `json:"labels,omitempty"`
	StartedAt *time.Time                `json:"started_at,omitempty"`
	CreatedAt time.Time                 `json:"created_at"`
}

// IsRunning reports whether the container is serving
func (c *ContainerInfo) IsRunning() bool {
	return c.Status == constants.ContainerStatusRunning
}

// ContainerRegistry owns containers and their replica sets
type ContainerRegistry interface {
	// StartReplica starts one more replica of the primary and returns its id
	StartReplica(ctx context.Context, parentID string) (string, error)

	// StopReplica stops a replica
	StopReplica(ctx context.Context, replicaID string) error

	// ListReplicas returns running replica ids of the primary, oldest first
	ListReplicas(ctx context.Context, parentID string) ([]string, error)

	// ContainerStatus returns container details or ErrContainerNotFound
	ContainerStatus(ctx context.Context, id string) (*ContainerInfo, error)

	// ListContainers returns running containers, primaries and replicas
	ListContainers(ctx context.Context) ([]*ContainerInfo, error)
}

// RegisterContainerRequest request for registering a primary container
type RegisterContainerRequest struct {
	ID     string `json:"id"`
	UserID int64  `json:"user_id"`
	Name   string `json:"name" binding:"required"`
	Image  string `json:"image"`
	Port   int    `json:"port" binding:"required"`
	URL    string `json:"url"` // optional, derived from host and port when empty

	Labels map[string]string `json:"labels,omitempty"`
}

// ContainerRegistrar implemented by registries that accept externally declared primaries
type ContainerRegistrar interface {
	RegisterContainer(ctx context.Context, req *RegisterContainerRequest) (*ContainerInfo, error)
}

// MetricSample point-in-time resource usage of a container
type MetricSample struct {
	ContainerID    string    `json:"container_id"`
	CPUPercent     float64   `json:"cpu_percent"`
	MemoryPercent  float64   `json:"memory_percent"`
	MemoryMB       float64   `json:"memory_mb"`
	NetworkRxBytes uint64    `json:"network_rx_bytes"`
	NetworkTxBytes uint64    `json:"network_tx_bytes"`
	Timestamp      time.Time `json:"timestamp"`
}

// MetricsSource pull-style container metrics
type MetricsSource interface {
	Sample(ctx context.Context, containerID string) (*MetricSample, error)
}
