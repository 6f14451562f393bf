package autoscaler

import (
	"fmt"
	"time"

	"intelliscale/pkg/constants"
	"intelliscale/pkg/interfaces"
)

// Decide applies the threshold rules of a policy to one sample.
// replicas counts the primary plus its running replicas.
//
// Scale-up fires when either metric reaches its up threshold, the count is below
// max and the cooldown has elapsed; cpu wins when both metrics cross. Scale-down is
// only considered when scale-up did not fire and needs both metrics at or below
// their down thresholds, the count above min and the cooldown elapsed.
func Decide(p *interfaces.ScalingPolicy, sample *interfaces.MetricSample, replicas int, now time.Time) Decision {
	d := Decision{
		Action:          constants.ScaleActionNone,
		CurrentReplicas: replicas,
		DesiredReplicas: replicas,
	}

	cooldown := p.CooldownRemaining(now)
	cpu, mem := sample.CPUPercent, sample.MemoryPercent

	cpuHigh := cpu >= p.ScaleUpCPUThreshold
	memHigh := mem >= p.ScaleUpMemoryThreshold
	if cpuHigh || memHigh {
		d.TriggerMetric, d.MetricValue = constants.TriggerMetricCPU, cpu
		if !cpuHigh {
			d.TriggerMetric, d.MetricValue = constants.TriggerMetricMemory, mem
		}

		switch {
		case replicas >= p.MaxReplicas:
			d.Reason = fmt.Sprintf("%s %.1f%% over threshold but already at max replicas %d", d.TriggerMetric, d.MetricValue, p.MaxReplicas)
		case cooldown > 0:
			d.Reason = fmt.Sprintf("%s %.1f%% over threshold but cooling down for %s", d.TriggerMetric, d.MetricValue, cooldown.Round(time.Second))
		default:
			d.Action = constants.ScaleActionUp
			d.DesiredReplicas = replicas + 1
			d.Reason = fmt.Sprintf("%s %.1f%% >= %.1f%%", d.TriggerMetric, d.MetricValue, upThreshold(p, d.TriggerMetric))
			return d
		}
	}

	if cpu <= p.ScaleDownCPUThreshold && mem <= p.ScaleDownMemoryThreshold {
		switch {
		case replicas <= p.MinReplicas:
			if d.Reason == "" {
				d.Reason = fmt.Sprintf("usage low but already at min replicas %d", p.MinReplicas)
			}
		case cooldown > 0:
			if d.Reason == "" {
				d.Reason = fmt.Sprintf("usage low but cooling down for %s", cooldown.Round(time.Second))
			}
		default:
			d.Action = constants.ScaleActionDown
			d.TriggerMetric = constants.TriggerMetricCPU
			d.MetricValue = cpu
			d.DesiredReplicas = replicas - 1
			d.Reason = fmt.Sprintf("cpu %.1f%% <= %.1f%% and memory %.1f%% <= %.1f%%",
				cpu, p.ScaleDownCPUThreshold, mem, p.ScaleDownMemoryThreshold)
			return d
		}
	}

	if d.Reason == "" {
		d.Reason = fmt.Sprintf("cpu %.1f%% and memory %.1f%% within thresholds", cpu, mem)
	}
	if d.TriggerMetric != "" && d.Action == constants.ScaleActionNone {
		d.TriggerMetric = ""
		d.MetricValue = 0
	}
	return d
}

func upThreshold(p *interfaces.ScalingPolicy, m constants.TriggerMetric) float64 {
	if m == constants.TriggerMetricMemory {
		return p.ScaleUpMemoryThreshold
	}
	return p.ScaleUpCPUThreshold
}

// IsDue reports whether a policy should be evaluated at now
func IsDue(p *interfaces.ScalingPolicy, lastEvaluated time.Time, evaluated bool, now time.Time) bool {
	if !evaluated {
		return true
	}
	return now.Sub(lastEvaluated) >= p.EvaluationInterval()
}
