package constants

// ScaleAction scaling direction recorded in the event log
type ScaleAction string

const (
	ScaleActionUp   ScaleAction = "scale_up"
	ScaleActionDown ScaleAction = "scale_down"
	ScaleActionNone ScaleAction = "none"
)

// TriggerMetric metric that crossed the threshold
type TriggerMetric string

const (
	TriggerMetricCPU    TriggerMetric = "cpu"
	TriggerMetricMemory TriggerMetric = "memory"
)

// Policy bounds and defaults
const (
	MaxReplicaCeiling = 8

	DefaultScaleUpThreshold   = 80.0
	DefaultScaleDownThreshold = 30.0
	DefaultMinReplicas        = 1
	DefaultMaxReplicas        = 8
	DefaultCooldownPeriod     = 300
	DefaultEvaluationPeriod   = 60
)

// ContainerStatus lifecycle of a container or replica
type ContainerStatus string

const (
	ContainerStatusPending ContainerStatus = "pending"
	ContainerStatusRunning ContainerStatus = "running"
	ContainerStatusStopped ContainerStatus = "stopped"
	ContainerStatusFailed  ContainerStatus = "failed"
)

func (s ContainerStatus) String() string {
	return string(s)
}
