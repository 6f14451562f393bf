package mysql

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// LoadTestRepository handles load test and load test metric persistence
type LoadTestRepository struct {
	ds *Datastore
}

// NewLoadTestRepository creates a new load test repository
func NewLoadTestRepository(ds *Datastore) *LoadTestRepository {
	return &LoadTestRepository{ds: ds}
}

// Create creates a new load test
func (r *LoadTestRepository) Create(ctx context.Context, test *LoadTest) error {
	if err := r.ds.DB(ctx).Create(test).Error; err != nil {
		return fmt.Errorf("failed to create load test: %w", err)
	}
	return nil
}

// Get retrieves a load test by id, nil if absent
func (r *LoadTestRepository) Get(ctx context.Context, id int64) (*LoadTest, error) {
	var test LoadTest
	err := r.ds.DB(ctx).Where("id = ?", id).First(&test).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get load test: %w", err)
	}
	return &test, nil
}

// Transition moves a load test from one of the expected statuses to next and applies fields.
// Returns false when the row is not in an expected status, which keeps terminal states sinks.
func (r *LoadTestRepository) Transition(ctx context.Context, id int64, from []string, next string, fields map[string]interface{}) (bool, error) {
	updates := map[string]interface{}{"status": next}
	for k, v := range fields {
		updates[k] = v
	}
	result := r.ds.DB(ctx).Model(&LoadTest{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return false, fmt.Errorf("failed to transition load test %d to %s: %w", id, next, result.Error)
	}
	return result.RowsAffected > 0, nil
}

// UpdateProgress stores running counters; ignored once the test left running
func (r *LoadTestRepository) UpdateProgress(ctx context.Context, id int64, status string, sent, completed, failed int64) error {
	err := r.ds.DB(ctx).Model(&LoadTest{}).
		Where("id = ? AND status = ?", id, status).
		Updates(map[string]interface{}{
			"requests_sent":      sent,
			"requests_completed": completed,
			"requests_failed":    failed,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to update load test progress: %w", err)
	}
	return nil
}

// List retrieves load tests newest first, filtered by user and container when set
func (r *LoadTestRepository) List(ctx context.Context, userID int64, containerID string, limit int) ([]*LoadTest, error) {
	if limit <= 0 {
		limit = 20
	}
	query := r.ds.DB(ctx).Model(&LoadTest{})
	if userID != 0 {
		query = query.Where("user_id = ?", userID)
	}
	if containerID != "" {
		query = query.Where("container_id = ?", containerID)
	}
	var tests []*LoadTest
	if err := query.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&tests).Error; err != nil {
		return nil, fmt.Errorf("failed to list load tests: %w", err)
	}
	return tests, nil
}

// ListByStatus retrieves load tests in any of the given statuses
func (r *LoadTestRepository) ListByStatus(ctx context.Context, statuses []string) ([]*LoadTest, error) {
	var tests []*LoadTest
	if err := r.ds.DB(ctx).Where("status IN ?", statuses).Order("id ASC").Find(&tests).Error; err != nil {
		return nil, fmt.Errorf("failed to list load tests by status: %w", err)
	}
	return tests, nil
}

// CreateMetric appends one sampler tick
func (r *LoadTestRepository) CreateMetric(ctx context.Context, metric *LoadTestMetric) error {
	if err := r.ds.DB(ctx).Create(metric).Error; err != nil {
		return fmt.Errorf("failed to create load test metric: %w", err)
	}
	return nil
}

// ListMetrics retrieves the time series of a load test, oldest first
func (r *LoadTestRepository) ListMetrics(ctx context.Context, loadTestID int64) ([]*LoadTestMetric, error) {
	var metrics []*LoadTestMetric
	err := r.ds.DB(ctx).Where("load_test_id = ?", loadTestID).
		Order("timestamp ASC").Order("id ASC").
		Find(&metrics).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list load test metrics: %w", err)
	}
	return metrics, nil
}
