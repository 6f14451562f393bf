package mysql

import (
	"context"
	"fmt"
	"time"
)

// ScalingEventRepository handles scaling event persistence
type ScalingEventRepository struct {
	ds *Datastore
}

// NewScalingEventRepository creates a new scaling event repository
func NewScalingEventRepository(ds *Datastore) *ScalingEventRepository {
	return &ScalingEventRepository{ds: ds}
}

// Create creates a new scaling event
func (r *ScalingEventRepository) Create(ctx context.Context, event *ScalingEvent) error {
	if err := r.ds.DB(ctx).Create(event).Error; err != nil {
		return fmt.Errorf("failed to create scaling event: %w", err)
	}
	return nil
}

// List retrieves scaling events newest first, optionally filtered by container and policy
func (r *ScalingEventRepository) List(ctx context.Context, containerID string, policyID int64, limit, offset int) ([]*ScalingEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	query := r.ds.DB(ctx).Model(&ScalingEvent{})
	if containerID != "" {
		query = query.Where("container_id = ?", containerID)
	}
	if policyID != 0 {
		query = query.Where("policy_id = ?", policyID)
	}

	var events []*ScalingEvent
	err := query.
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Offset(offset).
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list scaling events: %w", err)
	}
	return events, nil
}

// ListRecent retrieves the most recent scaling events
func (r *ScalingEventRepository) ListRecent(ctx context.Context, limit int) ([]*ScalingEvent, error) {
	return r.List(ctx, "", 0, limit, 0)
}

// Count counts scaling events of a container (all containers when empty)
func (r *ScalingEventRepository) Count(ctx context.Context, containerID string) (int64, error) {
	query := r.ds.DB(ctx).Model(&ScalingEvent{})
	if containerID != "" {
		query = query.Where("container_id = ?", containerID)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count scaling events: %w", err)
	}
	return count, nil
}

// DeleteOldEvents deletes events older than the specified time
func (r *ScalingEventRepository) DeleteOldEvents(ctx context.Context, olderThan time.Time) (int64, error) {
	result := r.ds.DB(ctx).Where("created_at < ?", olderThan).Delete(&ScalingEvent{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete old events: %w", result.Error)
	}
	return result.RowsAffected, nil
}
