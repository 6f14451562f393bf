package autoscaler

import (
	"errors"
	"time"

	"intelliscale/pkg/constants"
	"intelliscale/pkg/interfaces"
)

// ErrEvaluationBusy returned by EvaluateNow when the context expired while a pass was still running
var ErrEvaluationBusy = errors.New("an evaluation pass is already running")

// Config 自动扩缩容运行时配置（持久化到 Redis）
type Config struct {
	Enabled  bool `json:"enabled"`  // 是否启用自动扩缩容
	Interval int  `json:"interval"` // 控制循环间隔（秒）
}

// ScalingPolicy is an alias to interfaces.ScalingPolicy (domain model)
type ScalingPolicy = interfaces.ScalingPolicy

// ScalingEvent is an alias to interfaces.ScalingEvent (domain model)
type ScalingEvent = interfaces.ScalingEvent

// Decision outcome of evaluating one policy against one sample
type Decision struct {
	Action          constants.ScaleAction   `json:"action"`
	TriggerMetric   constants.TriggerMetric `json:"trigger_metric,omitempty"`
	MetricValue     float64                 `json:"metric_value"`
	CurrentReplicas int                     `json:"current_replicas"`
	DesiredReplicas int                     `json:"desired_replicas"`
	Reason          string                  `json:"reason"`
}

// IsAction reports whether the decision requires a registry call
func (d Decision) IsAction() bool {
	return d.Action == constants.ScaleActionUp || d.Action == constants.ScaleActionDown
}

// PolicyResult what happened to one policy during a pass
type PolicyResult struct {
	PolicyID    int64                 `json:"policy_id"`
	ContainerID string                `json:"container_id"`
	Skipped     bool                  `json:"skipped"` // not due yet
	Decision    *Decision             `json:"decision,omitempty"`
	EventID     string                `json:"event_id,omitempty"`
	Action      constants.ScaleAction `json:"action"`
	Error       string                `json:"error,omitempty"`
}

// TickReport summary of one evaluation pass
type TickReport struct {
	StartedAt  time.Time      `json:"started_at"`
	Duration   time.Duration  `json:"duration"`
	Forced     bool           `json:"forced"`
	Evaluated  int            `json:"evaluated"`
	Actions    int            `json:"actions"`
	Errors     int            `json:"errors"`
	Policies   []PolicyResult `json:"policies"`
	LockMissed bool           `json:"lock_missed,omitempty"` // another instance held the lock
}

// PolicyStatus live view of one policy, as shown next to the policy in the UI
type PolicyStatus struct {
	PolicyID             int64      `json:"policy_id"`
	ContainerID          string     `json:"container_id"`
	Enabled              bool       `json:"enabled"`
	CurrentReplicas      int        `json:"current_replicas"`
	MinReplicas          int        `json:"min_replicas"`
	MaxReplicas          int        `json:"max_replicas"`
	CanScaleUp           bool       `json:"can_scale_up"`
	CanScaleDown         bool       `json:"can_scale_down"`
	LastScaledAt         *time.Time `json:"last_scaled_at,omitempty"`
	LastEvaluatedAt      *time.Time `json:"last_evaluated_at,omitempty"`
	TimeSinceLastScale   *float64   `json:"time_since_last_scale,omitempty"` // seconds
	CooldownRemaining    float64    `json:"cooldown_remaining"`              // seconds
	ReplicaCountError    string     `json:"replica_count_error,omitempty"`
	NextEvaluationDueSec float64    `json:"next_evaluation_due"` // seconds until due, 0 if due
}

// AutoScalerStatus 自动扩缩容系统状态
type AutoScalerStatus struct {
	Enabled      bool            `json:"enabled"`
	Running      bool            `json:"running"`
	Interval     int             `json:"interval"`
	LastRunTime  time.Time       `json:"last_run_time"`
	LastReport   *TickReport     `json:"last_report,omitempty"`
	Policies     []*PolicyStatus `json:"policies"`
	RecentEvents []*ScalingEvent `json:"recent_events"`
}
