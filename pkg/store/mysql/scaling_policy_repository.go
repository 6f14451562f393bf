package mysql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// ErrDuplicatePolicy returned when a container already has a policy
var ErrDuplicatePolicy = errors.New("scaling policy already exists for container")

// ScalingPolicyRepository handles scaling policy persistence
type ScalingPolicyRepository struct {
	ds *Datastore
}

// NewScalingPolicyRepository creates a new scaling policy repository
func NewScalingPolicyRepository(ds *Datastore) *ScalingPolicyRepository {
	return &ScalingPolicyRepository{ds: ds}
}

// Create creates a new scaling policy
func (r *ScalingPolicyRepository) Create(ctx context.Context, policy *ScalingPolicy) error {
	if err := r.ds.DB(ctx).Create(policy).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicatePolicy
		}
		return fmt.Errorf("failed to create scaling policy: %w", err)
	}
	return nil
}

// Get retrieves a policy by id, nil if absent
func (r *ScalingPolicyRepository) Get(ctx context.Context, id int64) (*ScalingPolicy, error) {
	var policy ScalingPolicy
	err := r.ds.DB(ctx).Where("id = ?", id).First(&policy).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get scaling policy: %w", err)
	}
	return &policy, nil
}

// GetByContainer retrieves the policy governing a container, nil if absent
func (r *ScalingPolicyRepository) GetByContainer(ctx context.Context, containerID string) (*ScalingPolicy, error) {
	var policy ScalingPolicy
	err := r.ds.DB(ctx).Where("container_id = ?", containerID).First(&policy).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get scaling policy by container: %w", err)
	}
	return &policy, nil
}

// List retrieves policies of a user (all users when userID is 0)
func (r *ScalingPolicyRepository) List(ctx context.Context, userID int64) ([]*ScalingPolicy, error) {
	query := r.ds.DB(ctx).Order("id ASC")
	if userID != 0 {
		query = query.Where("user_id = ?", userID)
	}
	var policies []*ScalingPolicy
	if err := query.Find(&policies).Error; err != nil {
		return nil, fmt.Errorf("failed to list scaling policies: %w", err)
	}
	return policies, nil
}

// ListEnabled retrieves all enabled policies ordered by id
func (r *ScalingPolicyRepository) ListEnabled(ctx context.Context) ([]*ScalingPolicy, error) {
	var policies []*ScalingPolicy
	err := r.ds.DB(ctx).Where("enabled = ?", true).Order("id ASC").Find(&policies).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list enabled scaling policies: %w", err)
	}
	return policies, nil
}

// Update saves all mutable fields of a policy
func (r *ScalingPolicyRepository) Update(ctx context.Context, policy *ScalingPolicy) error {
	err := r.ds.DB(ctx).Model(policy).Select(
		"enabled",
		"scale_up_cpu_threshold", "scale_up_memory_threshold",
		"scale_down_cpu_threshold", "scale_down_memory_threshold",
		"min_replicas", "max_replicas",
		"cooldown_period", "evaluation_period",
		"load_balancer_enabled", "load_balancer_port",
		"updated_at",
	).Updates(policy).Error
	if err != nil {
		return fmt.Errorf("failed to update scaling policy: %w", err)
	}
	return nil
}

// SetEnabled flips the enabled flag, returns false if the policy does not exist
func (r *ScalingPolicyRepository) SetEnabled(ctx context.Context, id int64, enabled bool) (bool, error) {
	result := r.ds.DB(ctx).Model(&ScalingPolicy{}).Where("id = ?", id).
		Updates(map[string]interface{}{"enabled": enabled, "updated_at": time.Now()})
	if result.Error != nil {
		return false, fmt.Errorf("failed to set policy enabled: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// UpdateLastScaledAt records the time of the latest scale action.
// Returns false when the policy no longer exists.
func (r *ScalingPolicyRepository) UpdateLastScaledAt(ctx context.Context, id int64, at time.Time) (bool, error) {
	result := r.ds.DB(ctx).Model(&ScalingPolicy{}).Where("id = ?", id).Update("last_scaled_at", at)
	if result.Error != nil {
		return false, fmt.Errorf("failed to update last_scaled_at: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// Delete deletes a policy, its scaling events are kept
func (r *ScalingPolicyRepository) Delete(ctx context.Context, id int64) (bool, error) {
	result := r.ds.DB(ctx).Where("id = ?", id).Delete(&ScalingPolicy{})
	if result.Error != nil {
		return false, fmt.Errorf("failed to delete scaling policy: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}
