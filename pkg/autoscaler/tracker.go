package autoscaler

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	redisstore "intelliscale/pkg/store/redis"
)

// EvaluationTracker remembers when each policy was last evaluated.
// This is separate from last_scaled_at: a check that takes no action still counts.
type EvaluationTracker interface {
	LastEvaluated(ctx context.Context, policyID int64) (time.Time, bool, error)
	MarkEvaluated(ctx context.Context, policyID int64, at time.Time) error
	Forget(ctx context.Context, policyID int64) error
}

// NewEvaluationTracker returns a Redis backed tracker, or an in-memory one when client is nil
func NewEvaluationTracker(client *redis.Client) EvaluationTracker {
	if client == nil {
		return NewMemoryTracker()
	}
	return &redisTracker{repo: redisstore.NewEvaluationRepository(redisstore.NewRedisClientFromClient(client))}
}

// MemoryTracker in-process tracker for single-instance deployments
type MemoryTracker struct {
	mu   sync.RWMutex
	last map[int64]time.Time
}

// NewMemoryTracker creates in-memory tracker
func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{last: make(map[int64]time.Time)}
}

func (t *MemoryTracker) LastEvaluated(ctx context.Context, policyID int64) (time.Time, bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	at, ok := t.last[policyID]
	return at, ok, nil
}

func (t *MemoryTracker) MarkEvaluated(ctx context.Context, policyID int64, at time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last[policyID] = at
	return nil
}

func (t *MemoryTracker) Forget(ctx context.Context, policyID int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.last, policyID)
	return nil
}

type redisTracker struct {
	repo *redisstore.EvaluationRepository
}

func (t *redisTracker) LastEvaluated(ctx context.Context, policyID int64) (time.Time, bool, error) {
	return t.repo.Get(ctx, policyID)
}

func (t *redisTracker) MarkEvaluated(ctx context.Context, policyID int64, at time.Time) error {
	return t.repo.Set(ctx, policyID, at)
}

func (t *redisTracker) Forget(ctx context.Context, policyID int64) error {
	return t.repo.Delete(ctx, policyID)
}
