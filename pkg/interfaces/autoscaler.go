package interfaces

import (
	"context"
	"time"

	"intelliscale/pkg/constants"
)

// ScalingPolicy auto-scaling policy governing one primary container
type ScalingPolicy struct {
	ID          int64  `json:"id"`
	ContainerID string `json:"container_id"`
	UserID      int64  `json:"user_id"`
	Enabled     bool   `json:"enabled"`

	// Thresholds (percent, 0-100)
	ScaleUpCPUThreshold      float64 `json:"scale_up_cpu_threshold"`
	ScaleUpMemoryThreshold   float64 `json:"scale_up_memory_threshold"`
	ScaleDownCPUThreshold    float64 `json:"scale_down_cpu_threshold"`
	ScaleDownMemoryThreshold float64 `json:"scale_down_memory_threshold"`

	// Replica bounds, primary included
	MinReplicas int `json:"min_replicas"`
	MaxReplicas int `json:"max_replicas"`

	CooldownPeriod   int `json:"cooldown_period"`   // seconds between scale actions
	EvaluationPeriod int `json:"evaluation_period"` // seconds between metric checks

	LoadBalancerEnabled bool `json:"load_balancer_enabled"`
	LoadBalancerPort    *int `json:"load_balancer_port,omitempty"`

	LastScaledAt *time.Time `json:"last_scaled_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Cooldown returns the cooldown period as a duration
func (p *ScalingPolicy) Cooldown() time.Duration {
	return time.Duration(p.CooldownPeriod) * time.Second
}

// EvaluationInterval returns the evaluation period as a duration
func (p *ScalingPolicy) EvaluationInterval() time.Duration {
	return time.Duration(p.EvaluationPeriod) * time.Second
}

// CooldownRemaining returns how long the policy must still wait before acting, zero if free to act
func (p *ScalingPolicy) CooldownRemaining(now time.Time) time.Duration {
	if p.LastScaledAt == nil {
		return 0
	}
	remaining := p.Cooldown() - now.Sub(*p.LastScaledAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// ScalingEvent scaling event (append-only history record)
type ScalingEvent struct {
	ID                 int64                   `json:"id"`
	EventID            string                  `json:"event_id"`
	PolicyID           int64                   `json:"policy_id"`
	ContainerID        string                  `json:"container_id"`
	Action             constants.ScaleAction   `json:"action"`
	TriggerMetric      constants.TriggerMetric `json:"trigger_metric"`
	MetricValue        float64                 `json:"metric_value"`
	ReplicaCountBefore int                     `json:"replica_count_before"`
	ReplicaCountAfter  int                     `json:"replica_count_after"`
	CreatedAt          time.Time               `json:"created_at"`
}

// ScalingEventFilter paging and filtering for the event log
type ScalingEventFilter struct {
	ContainerID string
	PolicyID    int64
	Limit       int
	Offset      int
}

// PolicyStore what the evaluation engine needs from policy persistence
type PolicyStore interface {
	// ListEnabledPolicies returns a snapshot of all enabled policies ordered by id
	ListEnabledPolicies(ctx context.Context) ([]*ScalingPolicy, error)

	// RecordScaleAction appends the event and sets the policy's last_scaled_at to
	// event.CreatedAt in a single transaction
	RecordScaleAction(ctx context.Context, event *ScalingEvent) error

	// ListScalingEvents returns events newest first
	ListScalingEvents(ctx context.Context, filter ScalingEventFilter) ([]*ScalingEvent, error)
}

// PolicyFields mutable policy fields; nil keeps the current (or default) value
type PolicyFields struct {
	Enabled                  *bool    `json:"enabled,omitempty"`
	ScaleUpCPUThreshold      *float64 `json:"scale_up_cpu_threshold,omitempty"`
	ScaleUpMemoryThreshold   *float64 `json:"scale_up_memory_threshold,omitempty"`
	ScaleDownCPUThreshold    *float64 `json:"scale_down_cpu_threshold,omitempty"`
	ScaleDownMemoryThreshold *float64 `json:"scale_down_memory_threshold,omitempty"`
	MinReplicas              *int     `json:"min_replicas,omitempty"`
	MaxReplicas              *int     `json:"max_replicas,omitempty"`
	CooldownPeriod           *int     `json:"cooldown_period,omitempty"`
	EvaluationPeriod         *int     `json:"evaluation_period,omitempty"`
	LoadBalancerEnabled      *bool    `json:"load_balancer_enabled,omitempty"`
	LoadBalancerPort         *int     `json:"load_balancer_port,omitempty"`
}

// CreatePolicyRequest request for creating a scaling policy
type CreatePolicyRequest struct {
	ContainerID string `json:"container_id" binding:"required"`
	PolicyFields
}

// UpdatePolicyRequest partial policy update
type UpdatePolicyRequest struct {
	PolicyFields
}
