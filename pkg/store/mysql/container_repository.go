package mysql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// ContainerRepository handles container persistence for the simulated registry
type ContainerRepository struct {
	ds *Datastore
}

// NewContainerRepository creates a new container repository
func NewContainerRepository(ds *Datastore) *ContainerRepository {
	return &ContainerRepository{ds: ds}
}

// Create creates a container row
func (r *ContainerRepository) Create(ctx context.Context, c *Container) error {
	if err := r.ds.DB(ctx).Create(c).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("container %s already exists: %w", c.ID, err)
		}
		return fmt.Errorf("failed to create container: %w", err)
	}
	return nil
}

// Get retrieves a container by id, nil if absent
func (r *ContainerRepository) Get(ctx context.Context, id string) (*Container, error) {
	var c Container
	err := r.ds.DB(ctx).Where("id = ?", id).First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get container: %w", err)
	}
	return &c, nil
}

// ListChildren retrieves replicas of a primary in the given status, oldest start first
func (r *ContainerRepository) ListChildren(ctx context.Context, parentID, status string) ([]*Container, error) {
	var children []*Container
	err := r.ds.DB(ctx).
		Where("parent_id = ? AND status = ?", parentID, status).
		Order("started_at ASC").
		Order("replica_index ASC").
		Find(&children).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list replicas: %w", err)
	}
	return children, nil
}

// MaxReplicaIndex returns the highest replica index ever used under a primary
func (r *ContainerRepository) MaxReplicaIndex(ctx context.Context, parentID string) (int, error) {
	var maxIndex int
	err := r.ds.DB(ctx).Model(&Container{}).
		Where("parent_id = ?", parentID).
		Select("COALESCE(MAX(replica_index), 0)").
		Row().Scan(&maxIndex)
	if err != nil {
		return 0, fmt.Errorf("failed to get max replica index: %w", err)
	}
	return maxIndex, nil
}

// ListByStatus retrieves containers in a status, primaries first
func (r *ContainerRepository) ListByStatus(ctx context.Context, status string) ([]*Container, error) {
	var containers []*Container
	err := r.ds.DB(ctx).Where("status = ?", status).
		Order("replica_index ASC").Order("created_at ASC").
		Find(&containers).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}
	return containers, nil
}

// ListPrimaries retrieves primary containers of a user (all users when userID is 0)
func (r *ContainerRepository) ListPrimaries(ctx context.Context, userID int64) ([]*Container, error) {
	query := r.ds.DB(ctx).Where("parent_id IS NULL")
	if userID != 0 {
		query = query.Where("user_id = ?", userID)
	}
	var containers []*Container
	if err := query.Order("created_at ASC").Find(&containers).Error; err != nil {
		return nil, fmt.Errorf("failed to list primary containers: %w", err)
	}
	return containers, nil
}

// MarkStopped marks a running container stopped, returns false if it was not running
func (r *ContainerRepository) MarkStopped(ctx context.Context, id string, at time.Time) (bool, error) {
	result := r.ds.DB(ctx).Model(&Container{}).
		Where("id = ? AND status = ?", id, "running").
		Updates(map[string]interface{}{"status": "stopped", "stopped_at": at})
	if result.Error != nil {
		return false, fmt.Errorf("failed to stop container: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}
