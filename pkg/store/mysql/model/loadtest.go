package model

import "time"

// LoadTest MySQL model for load_tests table
type LoadTest struct {
	ID          int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID      int64  `gorm:"column:user_id;not null;index:idx_load_test_user" json:"user_id"`
	ContainerID string `gorm:"column:container_id;type:varchar(64);not null;index:idx_load_test_container" json:"container_id"`
	TargetURL   string `gorm:"column:target_url;type:varchar(512);not null" json:"target_url"`
	Status      string `gorm:"column:status;type:varchar(20);not null;index:idx_load_test_status" json:"status"`

	TotalRequests   int `gorm:"column:total_requests;not null" json:"total_requests"`
	Concurrency     int `gorm:"column:concurrency;not null" json:"concurrency"`
	DurationSeconds int `gorm:"column:duration_seconds;not null" json:"duration_seconds"`

	RequestsSent      int64 `gorm:"column:requests_sent;not null" json:"requests_sent"`
	RequestsCompleted int64 `gorm:"column:requests_completed;not null" json:"requests_completed"`
	RequestsFailed    int64 `gorm:"column:requests_failed;not null" json:"requests_failed"`

	AvgResponseTimeMs *float64 `gorm:"column:avg_response_time_ms" json:"avg_response_time_ms,omitempty"`
	MinResponseTimeMs *float64 `gorm:"column:min_response_time_ms" json:"min_response_time_ms,omitempty"`
	MaxResponseTimeMs *float64 `gorm:"column:max_response_time_ms" json:"max_response_time_ms,omitempty"`
	PeakCPUPercent    *float64 `gorm:"column:peak_cpu_percent" json:"peak_cpu_percent,omitempty"`
	PeakMemoryMB      *float64 `gorm:"column:peak_memory_mb" json:"peak_memory_mb,omitempty"`
	ErrorMessage      string   `gorm:"column:error_message;type:text" json:"error_message,omitempty"`

	CreatedAt   time.Time  `gorm:"column:created_at;not null;autoCreateTime" json:"created_at"`
	StartedAt   *time.Time `gorm:"column:started_at" json:"started_at,omitempty"`
	CompletedAt *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`
}

// TableName specifies the table name for LoadTest
func (LoadTest) TableName() string {
	return "load_tests"
}

// LoadTestMetric MySQL model for load_test_metrics table
type LoadTestMetric struct {
	ID                int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	LoadTestID        int64     `gorm:"column:load_test_id;not null;index:idx_metric_test_ts,priority:1" json:"load_test_id"`
	Timestamp         time.Time `gorm:"column:timestamp;not null;index:idx_metric_test_ts,priority:2" json:"timestamp"`
	CPUPercent        float64   `gorm:"column:cpu_percent;not null" json:"cpu_percent"`
	MemoryMB          float64   `gorm:"column:memory_mb;not null" json:"memory_mb"`
	RequestsSent      int64     `gorm:"column:requests_sent;not null" json:"requests_sent"`
	RequestsCompleted int64     `gorm:"column:requests_completed;not null" json:"requests_completed"`
	RequestsFailed    int64     `gorm:"column:requests_failed;not null" json:"requests_failed"`
	ActiveRequests    int64     `gorm:"column:active_requests;not null" json:"active_requests"`
}

// TableName specifies the table name for LoadTestMetric
func (LoadTestMetric) TableName() string {
	return "load_test_metrics"
}
