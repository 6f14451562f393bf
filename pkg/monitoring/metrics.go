package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "intelliscale"

var (
	AutoscalerTicks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "autoscaler_ticks_total",
			Help:      "Evaluation passes run by the autoscaler, by trigger.",
		},
		[]string{"trigger"},
	)

	AutoscalerTickSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "autoscaler_ticks_skipped_total",
			Help:      "Ticks skipped because a pass was running, the engine was disabled or another instance held the lock.",
		},
		[]string{"reason"},
	)

	AutoscalerTickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "autoscaler_tick_duration_seconds",
			Help:      "Duration of one evaluation pass.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	ScaleActions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "autoscaler_scale_actions_total",
			Help:      "Scale actions executed, by action and trigger metric.",
		},
		[]string{"action", "trigger_metric"},
	)

	EvaluationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "autoscaler_evaluation_errors_total",
			Help:      "Policy evaluations aborted by a collaborator failure, by stage.",
		},
		[]string{"stage"},
	)

	ContainerReplicas = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "container_replicas",
			Help:      "Replica count (primary included) observed at the last evaluation.",
		},
		[]string{"container_id"},
	)

	LoadTestRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loadtest_requests_total",
			Help:      "Load test requests by outcome.",
		},
		[]string{"outcome"},
	)

	LoadTestsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "loadtests_active",
			Help:      "Load tests currently running.",
		},
	)

	LoadTestRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loadtest_runs_total",
			Help:      "Finished load tests by terminal status.",
		},
		[]string{"status"},
	)

	ContainerCPUUsage = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "container_cpu_usage_percent",
			Help: "Container CPU usage percent.",
		},
		[]string{"container_id", "parent_id"},
	)

	ContainerMemoryUsage = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "container_memory_usage_percent",
			Help: "Container memory usage percent.",
		},
		[]string{"container_id", "parent_id"},
	)
)
