package model

import "time"

// ScalingPolicy MySQL model for scaling_policies table
type ScalingPolicy struct {
	ID          int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	ContainerID string `gorm:"column:container_id;type:varchar(64);not null;uniqueIndex:idx_policy_container_unique" json:"container_id"`
	UserID      int64  `gorm:"column:user_id;not null;index:idx_policy_user" json:"user_id"`
	Enabled     bool   `gorm:"column:enabled;not null;index:idx_policy_enabled" json:"enabled"`

	ScaleUpCPUThreshold      float64 `gorm:"column:scale_up_cpu_threshold;not null" json:"scale_up_cpu_threshold"`
	ScaleUpMemoryThreshold   float64 `gorm:"column:scale_up_memory_threshold;not null" json:"scale_up_memory_threshold"`
	ScaleDownCPUThreshold    float64 `gorm:"column:scale_down_cpu_threshold;not null" json:"scale_down_cpu_threshold"`
	ScaleDownMemoryThreshold float64 `gorm:"column:scale_down_memory_threshold;not null" json:"scale_down_memory_threshold"`

	MinReplicas      int `gorm:"column:min_replicas;not null" json:"min_replicas"`
	MaxReplicas      int `gorm:"column:max_replicas;not null" json:"max_replicas"`
	CooldownPeriod   int `gorm:"column:cooldown_period;not null" json:"cooldown_period"`     // seconds
	EvaluationPeriod int `gorm:"column:evaluation_period;not null" json:"evaluation_period"` // seconds

	LoadBalancerEnabled bool `gorm:"column:load_balancer_enabled;not null" json:"load_balancer_enabled"`
	LoadBalancerPort    *int `gorm:"column:load_balancer_port" json:"load_balancer_port,omitempty"`

	// Set only together with a scaling event, governs cooldown
	LastScaledAt *time.Time `gorm:"column:last_scaled_at" json:"last_scaled_at,omitempty"`
	CreatedAt    time.Time  `gorm:"column:created_at;not null;autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"column:updated_at;not null;autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for ScalingPolicy
func (ScalingPolicy) TableName() string {
	return "scaling_policies"
}
