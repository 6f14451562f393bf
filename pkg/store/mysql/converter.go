package mysql

import (
	"intelliscale/pkg/constants"
	"intelliscale/pkg/interfaces"
)

// ToPolicyDomain converts ScalingPolicy row to domain policy
func ToPolicyDomain(p *ScalingPolicy) *interfaces.ScalingPolicy {
	if p == nil {
		return nil
	}
	return &interfaces.ScalingPolicy{
		ID:                       p.ID,
		ContainerID:              p.ContainerID,
		UserID:                   p.UserID,
		Enabled:                  p.Enabled,
		ScaleUpCPUThreshold:      p.ScaleUpCPUThreshold,
		ScaleUpMemoryThreshold:   p.ScaleUpMemoryThreshold,
		ScaleDownCPUThreshold:    p.ScaleDownCPUThreshold,
		ScaleDownMemoryThreshold: p.ScaleDownMemoryThreshold,
		MinReplicas:              p.MinReplicas,
		MaxReplicas:              p.MaxReplicas,
		CooldownPeriod:           p.CooldownPeriod,
		EvaluationPeriod:         p.EvaluationPeriod,
		LoadBalancerEnabled:      p.LoadBalancerEnabled,
		LoadBalancerPort:         p.LoadBalancerPort,
		LastScaledAt:             p.LastScaledAt,
		CreatedAt:                p.CreatedAt,
		UpdatedAt:                p.UpdatedAt,
	}
}

// FromPolicyDomain converts domain policy to ScalingPolicy row
func FromPolicyDomain(p *interfaces.ScalingPolicy) *ScalingPolicy {
	if p == nil {
		return nil
	}
	return &ScalingPolicy{
		ID:                       p.ID,
		ContainerID:              p.ContainerID,
		UserID:                   p.UserID,
		Enabled:                  p.Enabled,
		ScaleUpCPUThreshold:      p.ScaleUpCPUThreshold,
		ScaleUpMemoryThreshold:   p.ScaleUpMemoryThreshold,
		ScaleDownCPUThreshold:    p.ScaleDownCPUThreshold,
		ScaleDownMemoryThreshold: p.ScaleDownMemoryThreshold,
		MinReplicas:              p.MinReplicas,
		MaxReplicas:              p.MaxReplicas,
		CooldownPeriod:           p.CooldownPeriod,
		EvaluationPeriod:         p.EvaluationPeriod,
		LoadBalancerEnabled:      p.LoadBalancerEnabled,
		LoadBalancerPort:         p.LoadBalancerPort,
		LastScaledAt:             p.LastScaledAt,
		CreatedAt:                p.CreatedAt,
		UpdatedAt:                p.UpdatedAt,
	}
}

// ToScalingEventDomain converts ScalingEvent row to domain event
func ToScalingEventDomain(e *ScalingEvent) *interfaces.ScalingEvent {
	if e == nil {
		return nil
	}
	return &interfaces.ScalingEvent{
		ID:                 e.ID,
		EventID:            e.EventID,
		PolicyID:           e.PolicyID,
		ContainerID:        e.ContainerID,
		Action:             constants.ScaleAction(e.Action),
		TriggerMetric:      constants.TriggerMetric(e.TriggerMetric),
		MetricValue:        e.MetricValue,
		ReplicaCountBefore: e.ReplicaCountBefore,
		ReplicaCountAfter:  e.ReplicaCountAfter,
		CreatedAt:          e.CreatedAt,
	}
}

// FromScalingEventDomain converts domain event to ScalingEvent row
func FromScalingEventDomain(e *interfaces.ScalingEvent) *ScalingEvent {
	if e == nil {
		return nil
	}
	return &ScalingEvent{
		ID:                 e.ID,
		EventID:            e.EventID,
		PolicyID:           e.PolicyID,
		ContainerID:        e.ContainerID,
		Action:             string(e.Action),
		TriggerMetric:      string(e.TriggerMetric),
		MetricValue:        e.MetricValue,
		ReplicaCountBefore: e.ReplicaCountBefore,
		ReplicaCountAfter:  e.ReplicaCountAfter,
		CreatedAt:          e.CreatedAt,
	}
}

// ToLoadTestDomain converts LoadTest row to domain load test
func ToLoadTestDomain(t *LoadTest) *interfaces.LoadTest {
	if t == nil {
		return nil
	}
	return &interfaces.LoadTest{
		ID:                t.ID,
		UserID:            t.UserID,
		ContainerID:       t.ContainerID,
		TargetURL:         t.TargetURL,
		Status:            constants.LoadTestStatus(t.Status),
		TotalRequests:     t.TotalRequests,
		Concurrency:       t.Concurrency,
		DurationSeconds:   t.DurationSeconds,
		RequestsSent:      t.RequestsSent,
		RequestsCompleted: t.RequestsCompleted,
		RequestsFailed:    t.RequestsFailed,
		AvgResponseTimeMs: t.AvgResponseTimeMs,
		MinResponseTimeMs: t.MinResponseTimeMs,
		MaxResponseTimeMs: t.MaxResponseTimeMs,
		PeakCPUPercent:    t.PeakCPUPercent,
		PeakMemoryMB:      t.PeakMemoryMB,
		ErrorMessage:      t.ErrorMessage,
		CreatedAt:         t.CreatedAt,
		StartedAt:         t.StartedAt,
		CompletedAt:       t.CompletedAt,
	}
}

// ToLoadTestMetricDomain converts LoadTestMetric row to domain metric
func ToLoadTestMetricDomain(m *LoadTestMetric) *interfaces.LoadTestMetric {
	if m == nil {
		return nil
	}
	return &interfaces.LoadTestMetric{
		LoadTestID:        m.LoadTestID,
		Timestamp:         m.Timestamp,
		CPUPercent:        m.CPUPercent,
		MemoryMB:          m.MemoryMB,
		RequestsSent:      m.RequestsSent,
		RequestsCompleted: m.RequestsCompleted,
		RequestsFailed:    m.RequestsFailed,
		ActiveRequests:    m.ActiveRequests,
	}
}

// FromLoadTestMetricDomain converts domain metric to LoadTestMetric row
func FromLoadTestMetricDomain(m *interfaces.LoadTestMetric) *LoadTestMetric {
	if m == nil {
		return nil
	}
	return &LoadTestMetric{
		LoadTestID:        m.LoadTestID,
		Timestamp:         m.Timestamp,
		CPUPercent:        m.CPUPercent,
		MemoryMB:          m.MemoryMB,
		RequestsSent:      m.RequestsSent,
		RequestsCompleted: m.RequestsCompleted,
		RequestsFailed:    m.RequestsFailed,
		ActiveRequests:    m.ActiveRequests,
	}
}

// ToContainerDomain converts Container row to domain container info
func ToContainerDomain(c *Container) *interfaces.ContainerInfo {
	if c == nil {
		return nil
	}
	info := &interfaces.ContainerInfo{
		ID:        c.ID,
		UserID:    c.UserID,
		Name:      c.Name,
		Image:     c.Image,
		Port:      c.Port,
		URL:       c.URL,
		Status:    constants.ContainerStatus(c.Status),
		Labels:    JSONMapToStringMap(c.Labels),
		StartedAt: c.StartedAt,
		CreatedAt: c.CreatedAt,
	}
	if c.ParentID != nil {
		info.ParentID = *c.ParentID
	}
	return info
}
