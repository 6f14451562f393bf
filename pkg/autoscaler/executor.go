package autoscaler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"intelliscale/pkg/constants"
	"intelliscale/pkg/interfaces"
	"intelliscale/pkg/logger"
	"intelliscale/pkg/monitoring"
)

// Executor executor - executes scaling operations
type Executor struct {
	registry interfaces.ContainerRegistry
	store    interfaces.PolicyStore
}

// NewExecutor creates executor
func NewExecutor(registry interfaces.ContainerRegistry, store interfaces.PolicyStore) *Executor {
	return &Executor{
		registry: registry,
		store:    store,
	}
}

// Execute carries out one scale decision. replicas are the running replica ids,
// oldest first. The event is only recorded after the registry call succeeded.
func (e *Executor) Execute(ctx context.Context, policy *ScalingPolicy, decision Decision, replicas []string, now time.Time) (*ScalingEvent, error) {
	var err error
	switch decision.Action {
	case constants.ScaleActionUp:
		err = e.scaleUp(ctx, policy, decision)
	case constants.ScaleActionDown:
		err = e.scaleDown(ctx, policy, decision, replicas)
	default:
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	event := &ScalingEvent{
		EventID:            generateEventID(),
		PolicyID:           policy.ID,
		ContainerID:        policy.ContainerID,
		Action:             decision.Action,
		TriggerMetric:      decision.TriggerMetric,
		MetricValue:        decision.MetricValue,
		ReplicaCountBefore: decision.CurrentReplicas,
		ReplicaCountAfter:  decision.DesiredReplicas,
		CreatedAt:          now,
	}
	if err := e.store.RecordScaleAction(ctx, event); err != nil {
		// the replica change already happened; the next pass sees the new count
		return nil, fmt.Errorf("replica changed but failed to record scaling event: %w", err)
	}

	scaledAt := now
	policy.LastScaledAt = &scaledAt
	monitoring.ScaleActions.WithLabelValues(string(event.Action), string(event.TriggerMetric)).Inc()
	monitoring.ContainerReplicas.WithLabelValues(policy.ContainerID).Set(float64(decision.DesiredReplicas))
	return event, nil
}

// scaleUp starts one replica of the primary
func (e *Executor) scaleUp(ctx context.Context, policy *ScalingPolicy, decision Decision) error {
	logger.InfoCtx(ctx, "scaling up %s from %d to %d replicas (reason: %s)",
		policy.ContainerID, decision.CurrentReplicas, decision.DesiredReplicas, decision.Reason)

	replicaID, err := e.registry.StartReplica(ctx, policy.ContainerID)
	if err != nil {
		return fmt.Errorf("failed to start replica: %w", err)
	}

	logger.InfoCtx(ctx, "started replica %s for %s", replicaID, policy.ContainerID)
	return nil
}

// scaleDown stops the most recently started replica
func (e *Executor) scaleDown(ctx context.Context, policy *ScalingPolicy, decision Decision, replicas []string) error {
	if len(replicas) == 0 {
		return fmt.Errorf("no replica of %s to stop", policy.ContainerID)
	}
	// LIFO: long-lived connections usually sit on the oldest replicas
	target := replicas[len(replicas)-1]

	logger.InfoCtx(ctx, "scaling down %s from %d to %d replicas, stopping %s (reason: %s)",
		policy.ContainerID, decision.CurrentReplicas, decision.DesiredReplicas, target, decision.Reason)

	if err := e.registry.StopReplica(ctx, target); err != nil {
		return fmt.Errorf("failed to stop replica %s: %w", target, err)
	}
	return nil
}

func generateEventID() string {
	return uuid.New().String()
}
