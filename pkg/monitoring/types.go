package monitoring

import "time"

// ContainerUsage one exported sample
type ContainerUsage struct {
	ContainerID   string    `json:"container_id"`
	ParentID      string    `json:"parent_id,omitempty"`
	CPUPercent    float64   `json:"cpu_percent"`
	MemoryPercent float64   `json:"memory_percent"`
	MemoryMB      float64   `json:"memory_mb"`
	Timestamp     time.Time `json:"timestamp"`
}
