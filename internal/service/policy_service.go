package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"intelliscale/pkg/config"
	"intelliscale/pkg/constants"
	"intelliscale/pkg/interfaces"
	"intelliscale/pkg/logger"
	"intelliscale/pkg/store/mysql"
)

// PolicyService handles scaling policy business logic and serves as the
// evaluation engine's policy store
type PolicyService struct {
	ds         *mysql.Datastore
	policyRepo *mysql.ScalingPolicyRepository
	eventRepo  *mysql.ScalingEventRepository
	registry   interfaces.ContainerRegistry
	limits     config.AutoScalerConfig

	// called after a policy is deleted, e.g. to drop its evaluation schedule
	onDelete func(ctx context.Context, policyID int64) error
	// called after a scale action is committed
	onScale func(ctx context.Context, event *interfaces.ScalingEvent)
}

var _ interfaces.PolicyStore = (*PolicyService)(nil)

// NewPolicyService creates a new policy service
func NewPolicyService(repo *mysql.Repository, registry interfaces.ContainerRegistry, limits config.AutoScalerConfig) *PolicyService {
	return &PolicyService{
		ds:         repo.GetDatastore(),
		policyRepo: repo.ScalingPolicy,
		eventRepo:  repo.ScalingEvent,
		registry:   registry,
		limits:     limits,
	}
}

// SetDeleteHook registers fn to run after a policy is deleted
func (s *PolicyService) SetDeleteHook(fn func(ctx context.Context, policyID int64) error) {
	s.onDelete = fn
}

// SetScaleHook registers fn to run after each committed scale action
func (s *PolicyService) SetScaleHook(fn func(ctx context.Context, event *interfaces.ScalingEvent)) {
	s.onScale = fn
}

// CreatePolicy creates a policy for a primary container
func (s *PolicyService) CreatePolicy(ctx context.Context, userID int64, req *interfaces.CreatePolicyRequest) (*interfaces.ScalingPolicy, error) {
	if req.ContainerID == "" {
		return nil, fmt.Errorf("%w: container_id is required", ErrValidation)
	}

	info, err := s.registry.ContainerStatus(ctx, req.ContainerID)
	if err != nil {
		if errors.Is(err, interfaces.ErrContainerNotFound) {
			return nil, fmt.Errorf("%w: container %s", ErrNotFound, req.ContainerID)
		}
		return nil, fmt.Errorf("failed to look up container: %w", err)
	}
	if info.ParentID != "" {
		return nil, fmt.Errorf("%w: %s is a replica, policies govern primary containers", ErrValidation, req.ContainerID)
	}

	existing, err := s.policyRepo.GetByContainer(ctx, req.ContainerID)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing policy: %w", err)
	}
	if existing != nil {
		return nil, ErrPolicyExists
	}

	policy := DefaultPolicy(req.ContainerID, userID)
	ApplyPolicyFields(policy, &req.PolicyFields)
	if err := ValidatePolicy(policy, s.limits); err != nil {
		return nil, err
	}

	row := mysql.FromPolicyDomain(policy)
	if err := s.policyRepo.Create(ctx, row); err != nil {
		if errors.Is(err, mysql.ErrDuplicatePolicy) {
			return nil, ErrPolicyExists
		}
		return nil, err
	}

	logger.InfoCtx(ctx, "created scaling policy %d for container %s", row.ID, row.ContainerID)
	return mysql.ToPolicyDomain(row), nil
}

// GetPolicy retrieves a policy by id
func (s *PolicyService) GetPolicy(ctx context.Context, id int64) (*interfaces.ScalingPolicy, error) {
	row, err := s.policyRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, fmt.Errorf("%w: scaling policy %d", ErrNotFound, id)
	}
	return mysql.ToPolicyDomain(row), nil
}

// ListPolicies lists the policies of a user, all policies when userID is 0
func (s *PolicyService) ListPolicies(ctx context.Context, userID int64) ([]*interfaces.ScalingPolicy, error) {
	rows, err := s.policyRepo.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]*interfaces.ScalingPolicy, len(rows))
	for i, row := range rows {
		out[i] = mysql.ToPolicyDomain(row)
	}
	return out, nil
}

// UpdatePolicy applies a partial update; the merged policy is validated as a whole
func (s *PolicyService) UpdatePolicy(ctx context.Context, id int64, req *interfaces.UpdatePolicyRequest) (*interfaces.ScalingPolicy, error) {
	policy, err := s.GetPolicy(ctx, id)
	if err != nil {
		return nil, err
	}

	ApplyPolicyFields(policy, &req.PolicyFields)
	if err := ValidatePolicy(policy, s.limits); err != nil {
		return nil, err
	}
	policy.UpdatedAt = time.Now()

	row := mysql.FromPolicyDomain(policy)
	if err := s.policyRepo.Update(ctx, row); err != nil {
		return nil, err
	}

	logger.InfoCtx(ctx, "updated scaling policy %d", id)
	return policy, nil
}

// DeletePolicy deletes a policy, its scaling events stay in the log
func (s *PolicyService) DeletePolicy(ctx context.Context, id int64) error {
	deleted, err := s.policyRepo.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return fmt.Errorf("%w: scaling policy %d", ErrNotFound, id)
	}

	if s.onDelete != nil {
		if err := s.onDelete(ctx, id); err != nil {
			logger.WarnCtx(ctx, "policy %d deleted but cleanup failed: %v", id, err)
		}
	}
	logger.InfoCtx(ctx, "deleted scaling policy %d", id)
	return nil
}

// TogglePolicy flips the enabled flag
func (s *PolicyService) TogglePolicy(ctx context.Context, id int64) (*interfaces.ScalingPolicy, error) {
	policy, err := s.GetPolicy(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.SetPolicyEnabled(ctx, id, !policy.Enabled)
}

// SetPolicyEnabled sets the enabled flag. Takes effect at the next tick.
func (s *PolicyService) SetPolicyEnabled(ctx context.Context, id int64, enabled bool) (*interfaces.ScalingPolicy, error) {
	found, err := s.policyRepo.SetEnabled(ctx, id, enabled)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: scaling policy %d", ErrNotFound, id)
	}
	logger.InfoCtx(ctx, "scaling policy %d enabled=%v", id, enabled)
	return s.GetPolicy(ctx, id)
}

// ListEnabledPolicies implements interfaces.PolicyStore
func (s *PolicyService) ListEnabledPolicies(ctx context.Context) ([]*interfaces.ScalingPolicy, error) {
	rows, err := s.policyRepo.ListEnabled(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*interfaces.ScalingPolicy, len(rows))
	for i, row := range rows {
		out[i] = mysql.ToPolicyDomain(row)
	}
	return out, nil
}

// RecordScaleAction implements interfaces.PolicyStore: the event and the
// policy's last_scaled_at are written in one transaction. The replica change
// already happened, so a policy deleted meanwhile still gets its event.
func (s *PolicyService) RecordScaleAction(ctx context.Context, event *interfaces.ScalingEvent) error {
	row := mysql.FromScalingEventDomain(event)
	err := s.ds.ExecTx(ctx, func(ctx context.Context) error {
		if err := s.eventRepo.Create(ctx, row); err != nil {
			return err
		}
		found, err := s.policyRepo.UpdateLastScaledAt(ctx, event.PolicyID, event.CreatedAt)
		if err != nil {
			return err
		}
		if !found {
			logger.WarnCtx(ctx, "policy %d was deleted during scaling of %s, event %s kept",
				event.PolicyID, event.ContainerID, event.EventID)
		}
		return nil
	})
	if err != nil {
		// keep the cooldown even without an event, or the next pass scales again
		if _, uerr := s.policyRepo.UpdateLastScaledAt(ctx, event.PolicyID, event.CreatedAt); uerr != nil {
			logger.ErrorCtx(ctx, "failed to keep cooldown of policy %d: %v", event.PolicyID, uerr)
		}
		return err
	}
	event.ID = row.ID
	if s.onScale != nil {
		s.onScale(ctx, event)
	}
	return nil
}

// ListScalingEvents implements interfaces.PolicyStore, newest first
func (s *PolicyService) ListScalingEvents(ctx context.Context, filter interfaces.ScalingEventFilter) ([]*interfaces.ScalingEvent, error) {
	rows, err := s.eventRepo.List(ctx, filter.ContainerID, filter.PolicyID, filter.Limit, filter.Offset)
	if err != nil {
		return nil, err
	}
	out := make([]*interfaces.ScalingEvent, len(rows))
	for i, row := range rows {
		out[i] = mysql.ToScalingEventDomain(row)
	}
	return out, nil
}

// DefaultPolicy returns a policy carrying the default thresholds and bounds
func DefaultPolicy(containerID string, userID int64) *interfaces.ScalingPolicy {
	return &interfaces.ScalingPolicy{
		ContainerID:              containerID,
		UserID:                   userID,
		Enabled:                  true,
		ScaleUpCPUThreshold:      constants.DefaultScaleUpThreshold,
		ScaleUpMemoryThreshold:   constants.DefaultScaleUpThreshold,
		ScaleDownCPUThreshold:    constants.DefaultScaleDownThreshold,
		ScaleDownMemoryThreshold: constants.DefaultScaleDownThreshold,
		MinReplicas:              constants.DefaultMinReplicas,
		MaxReplicas:              constants.DefaultMaxReplicas,
		CooldownPeriod:           constants.DefaultCooldownPeriod,
		EvaluationPeriod:         constants.DefaultEvaluationPeriod,
		LoadBalancerEnabled:      true,
	}
}

// ApplyPolicyFields copies the set fields onto p
func ApplyPolicyFields(p *interfaces.ScalingPolicy, f *interfaces.PolicyFields) {
	if f.Enabled != nil {
		p.Enabled = *f.Enabled
	}
	if f.ScaleUpCPUThreshold != nil {
		p.ScaleUpCPUThreshold = *f.ScaleUpCPUThreshold
	}
	if f.ScaleUpMemoryThreshold != nil {
		p.ScaleUpMemoryThreshold = *f.ScaleUpMemoryThreshold
	}
	if f.ScaleDownCPUThreshold != nil {
		p.ScaleDownCPUThreshold = *f.ScaleDownCPUThreshold
	}
	if f.ScaleDownMemoryThreshold != nil {
		p.ScaleDownMemoryThreshold = *f.ScaleDownMemoryThreshold
	}
	if f.MinReplicas != nil {
		p.MinReplicas = *f.MinReplicas
	}
	if f.MaxReplicas != nil {
		p.MaxReplicas = *f.MaxReplicas
	}
	if f.CooldownPeriod != nil {
		p.CooldownPeriod = *f.CooldownPeriod
	}
	if f.EvaluationPeriod != nil {
		p.EvaluationPeriod = *f.EvaluationPeriod
	}
	if f.LoadBalancerEnabled != nil {
		p.LoadBalancerEnabled = *f.LoadBalancerEnabled
	}
	if f.LoadBalancerPort != nil {
		port := *f.LoadBalancerPort
		p.LoadBalancerPort = &port
	}
}

// ValidatePolicy checks thresholds, replica bounds and timing against limits.
// Overlapping up/down thresholds are accepted.
func ValidatePolicy(p *interfaces.ScalingPolicy, limits config.AutoScalerConfig) error {
	thresholds := []struct {
		name  string
		value float64
	}{
		{"scale_up_cpu_threshold", p.ScaleUpCPUThreshold},
		{"scale_up_memory_threshold", p.ScaleUpMemoryThreshold},
		{"scale_down_cpu_threshold", p.ScaleDownCPUThreshold},
		{"scale_down_memory_threshold", p.ScaleDownMemoryThreshold},
	}
	for _, th := range thresholds {
		if th.value < 0 || th.value > 100 {
			return fmt.Errorf("%w: %s must be within 0-100, got %g", ErrValidation, th.name, th.value)
		}
	}

	if p.MinReplicas < 1 {
		return fmt.Errorf("%w: min_replicas must be at least 1, got %d", ErrValidation, p.MinReplicas)
	}
	if p.MaxReplicas > constants.MaxReplicaCeiling {
		return fmt.Errorf("%w: max_replicas must be at most %d, got %d", ErrValidation, constants.MaxReplicaCeiling, p.MaxReplicas)
	}
	if p.MinReplicas > p.MaxReplicas {
		return fmt.Errorf("%w: min_replicas (%d) exceeds max_replicas (%d)", ErrValidation, p.MinReplicas, p.MaxReplicas)
	}

	if p.CooldownPeriod < limits.MinCooldownPeriod {
		return fmt.Errorf("%w: cooldown_period must be at least %d seconds, got %d", ErrValidation, limits.MinCooldownPeriod, p.CooldownPeriod)
	}
	if p.EvaluationPeriod < limits.MinEvaluationPeriod {
		return fmt.Errorf("%w: evaluation_period must be at least %d seconds, got %d", ErrValidation, limits.MinEvaluationPeriod, p.EvaluationPeriod)
	}
	if p.EvaluationPeriod <= 0 {
		return fmt.Errorf("%w: evaluation_period must be positive", ErrValidation)
	}

	if p.LoadBalancerPort != nil && (*p.LoadBalancerPort < 1 || *p.LoadBalancerPort > 65535) {
		return fmt.Errorf("%w: load_balancer_port must be within 1-65535, got %d", ErrValidation, *p.LoadBalancerPort)
	}
	return nil
}
