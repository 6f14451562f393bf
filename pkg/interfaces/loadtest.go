package interfaces

import (
	"time"

	"intelliscale/pkg/constants"
)

// StartLoadTestRequest request body for starting a load test
type StartLoadTestRequest struct {
	ContainerID     string `json:"container_id" binding:"required"`
	TotalRequests   int    `json:"total_requests"`
	Concurrency     int    `json:"concurrency"`
	DurationSeconds int    `json:"duration_seconds"`
}

// LoadTest load test run and its aggregates
type LoadTest struct {
	ID          int64                    `json:"id"`
	UserID      int64                    `json:"user_id"`
	ContainerID string                   `json:"container_id"`
	TargetURL   string                   `json:"target_url"`
	Status      constants.LoadTestStatus `json:"status"`

	TotalRequests   int `json:"total_requests"`
	Concurrency     int `json:"concurrency"`
	DurationSeconds int `json:"duration_seconds"`

	RequestsSent      int64 `json:"requests_sent"`
	RequestsCompleted int64 `json:"requests_completed"`
	RequestsFailed    int64 `json:"requests_failed"`

	AvgResponseTimeMs *float64 `json:"avg_response_time_ms,omitempty"`
	MinResponseTimeMs *float64 `json:"min_response_time_ms,omitempty"`
	MaxResponseTimeMs *float64 `json:"max_response_time_ms,omitempty"`
	PeakCPUPercent    *float64 `json:"peak_cpu_percent,omitempty"`
	PeakMemoryMB      *float64 `json:"peak_memory_mb,omitempty"`
	ErrorMessage      string   `json:"error_message,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// ProgressPercent share of total_requests already issued
func (t *LoadTest) ProgressPercent() float64 {
	if t.TotalRequests <= 0 {
		return 0
	}
	return float64(t.RequestsSent) / float64(t.TotalRequests) * 100
}

// LoadTestMetric one sampler tick of a running load test
type LoadTestMetric struct {
	LoadTestID        int64     `json:"load_test_id"`
	Timestamp         time.Time `json:"timestamp"`
	CPUPercent        float64   `json:"cpu_percent"`
	MemoryMB          float64   `json:"memory_mb"`
	RequestsSent      int64     `json:"requests_sent"`
	RequestsCompleted int64     `json:"requests_completed"`
	RequestsFailed    int64     `json:"requests_failed"`
	ActiveRequests    int64     `json:"active_requests"`
}
