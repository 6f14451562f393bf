package autoscaler

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"

	"intelliscale/pkg/constants"
	"intelliscale/pkg/interfaces"
)

func basePolicy() *interfaces.ScalingPolicy {
	return &interfaces.ScalingPolicy{
		ID:                       1,
		ContainerID:              "web",
		Enabled:                  true,
		ScaleUpCPUThreshold:      80,
		ScaleUpMemoryThreshold:   80,
		ScaleDownCPUThreshold:    30,
		ScaleDownMemoryThreshold: 30,
		MinReplicas:              1,
		MaxReplicas:              4,
		CooldownPeriod:           60,
		EvaluationPeriod:         30,
	}
}

func TestDecide(t *testing.T) {
	now := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	recent := now.Add(-10 * time.Second)
	old := now.Add(-10 * time.Minute)

	tests := []struct {
		name         string
		mutate       func(p *interfaces.ScalingPolicy)
		cpu, mem     float64
		replicas     int
		wantAction   constants.ScaleAction
		wantTrigger  constants.TriggerMetric
		wantValue    float64
		wantReplicas int
	}{
		{name: "cpu over threshold scales up", cpu: 85, mem: 40, replicas: 1,
			wantAction: constants.ScaleActionUp, wantTrigger: constants.TriggerMetricCPU, wantValue: 85, wantReplicas: 2},
		{name: "threshold equality counts", cpu: 80, mem: 40, replicas: 1,
			wantAction: constants.ScaleActionUp, wantTrigger: constants.TriggerMetricCPU, wantValue: 80, wantReplicas: 2},
		{name: "memory alone triggers", cpu: 50, mem: 90, replicas: 2,
			wantAction: constants.ScaleActionUp, wantTrigger: constants.TriggerMetricMemory, wantValue: 90, wantReplicas: 3},
		{name: "both over prefers cpu", cpu: 81, mem: 99, replicas: 2,
			wantAction: constants.ScaleActionUp, wantTrigger: constants.TriggerMetricCPU, wantValue: 81, wantReplicas: 3},
		{name: "at max no scale up", cpu: 95, mem: 95, replicas: 4,
			wantAction: constants.ScaleActionNone, wantReplicas: 4},
		{name: "cooldown blocks scale up",
			mutate: func(p *interfaces.ScalingPolicy) { p.LastScaledAt = &recent },
			cpu:    95, mem: 10, replicas: 1, wantAction: constants.ScaleActionNone, wantReplicas: 1},
		{name: "elapsed cooldown allows scale up",
			mutate: func(p *interfaces.ScalingPolicy) { p.LastScaledAt = &old },
			cpu:    95, mem: 10, replicas: 1, wantAction: constants.ScaleActionUp,
			wantTrigger: constants.TriggerMetricCPU, wantValue: 95, wantReplicas: 2},
		{name: "both low scales down", cpu: 10, mem: 20, replicas: 3,
			wantAction: constants.ScaleActionDown, wantTrigger: constants.TriggerMetricCPU, wantValue: 10, wantReplicas: 2},
		{name: "one metric low is not enough", cpu: 10, mem: 50, replicas: 3,
			wantAction: constants.ScaleActionNone, wantReplicas: 3},
		{name: "at min no scale down", cpu: 5, mem: 5, replicas: 1,
			wantAction: constants.ScaleActionNone, wantReplicas: 1},
		{name: "cooldown blocks scale down",
			mutate: func(p *interfaces.ScalingPolicy) { p.LastScaledAt = &recent },
			cpu:    5, mem: 5, replicas: 3, wantAction: constants.ScaleActionNone, wantReplicas: 3},
		{name: "fixed size policy never acts",
			mutate: func(p *interfaces.ScalingPolicy) { p.MinReplicas, p.MaxReplicas = 2, 2 },
			cpu:    99, mem: 99, replicas: 2, wantAction: constants.ScaleActionNone, wantReplicas: 2},
		{name: "overlapping thresholds fall through to scale down at max",
			mutate: func(p *interfaces.ScalingPolicy) { p.ScaleDownCPUThreshold, p.ScaleDownMemoryThreshold = 90, 90 },
			cpu:    85, mem: 50, replicas: 4, wantAction: constants.ScaleActionDown,
			wantTrigger: constants.TriggerMetricCPU, wantValue: 85, wantReplicas: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := basePolicy()
			if tt.mutate != nil {
				tt.mutate(p)
			}
			d := Decide(p, &interfaces.MetricSample{CPUPercent: tt.cpu, MemoryPercent: tt.mem}, tt.replicas, now)
			assert.Equal(t, tt.wantAction, d.Action, d.Reason)
			assert.Equal(t, tt.wantTrigger, d.TriggerMetric)
			assert.Equal(t, tt.wantValue, d.MetricValue)
			assert.Equal(t, tt.wantReplicas, d.DesiredReplicas)
			assert.NotEmpty(t, d.Reason)
		})
	}
}

func TestIsDue(t *testing.T) {
	p := basePolicy()
	now := time.Now()

	assert.True(t, IsDue(p, time.Time{}, false, now))
	assert.False(t, IsDue(p, now.Add(-29*time.Second), true, now))
	assert.True(t, IsDue(p, now.Add(-30*time.Second), true, now))
}

func TestDecide_BoundsProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	now := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)

	properties.Property("replica count stays within [min, max] over any metric sequence", prop.ForAll(
		func(lo, span int, upCPU, upMem, downCPU, downMem float64, cpus, mems []float64) bool {
			hi := lo + span
			if hi > constants.MaxReplicaCeiling {
				hi = constants.MaxReplicaCeiling
			}
			p := basePolicy()
			p.MinReplicas, p.MaxReplicas = lo, hi
			p.ScaleUpCPUThreshold, p.ScaleUpMemoryThreshold = upCPU, upMem
			p.ScaleDownCPUThreshold, p.ScaleDownMemoryThreshold = downCPU, downMem
			p.CooldownPeriod = 0

			replicas := lo
			for i := 0; i < len(cpus) && i < len(mems); i++ {
				d := Decide(p, &interfaces.MetricSample{CPUPercent: cpus[i], MemoryPercent: mems[i]}, replicas, now.Add(time.Duration(i)*time.Minute))
				replicas = d.DesiredReplicas
				if replicas < lo || replicas > hi {
					return false
				}
				if lo == hi && d.IsAction() {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, constants.MaxReplicaCeiling),
		gen.IntRange(0, constants.MaxReplicaCeiling),
		gen.Float64Range(0, 100),
		gen.Float64Range(0, 100),
		gen.Float64Range(0, 100),
		gen.Float64Range(0, 100),
		gen.SliceOfN(20, gen.Float64Range(0, 100)),
		gen.SliceOfN(20, gen.Float64Range(0, 100)),
	))

	properties.Property("no action while cooling down", prop.ForAll(
		func(cpu, mem float64, replicas int, sinceSec int) bool {
			p := basePolicy()
			last := now.Add(-time.Duration(sinceSec) * time.Second)
			p.LastScaledAt = &last
			d := Decide(p, &interfaces.MetricSample{CPUPercent: cpu, MemoryPercent: mem}, replicas, now)
			return !d.IsAction()
		},
		gen.Float64Range(0, 100),
		gen.Float64Range(0, 100),
		gen.IntRange(1, 4),
		gen.IntRange(0, 59),
	))

	properties.TestingRun(t)
}
