package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	evaluationHashKey = "autoscaler:last-evaluated" // policy id -> unix millis
)

// EvaluationRepository keeps per-policy last evaluation times in a Redis hash
// so every engine instance shares the same due schedule
type EvaluationRepository struct {
	redis *redis.Client
}

// NewEvaluationRepository creates evaluation repository
func NewEvaluationRepository(redisClient *RedisClient) *EvaluationRepository {
	return &EvaluationRepository{
		redis: redisClient.GetClient(),
	}
}

// Get returns the last evaluation time of a policy, ok=false if never evaluated
func (r *EvaluationRepository) Get(ctx context.Context, policyID int64) (time.Time, bool, error) {
	val, err := r.redis.HGet(ctx, evaluationHashKey, strconv.FormatInt(policyID, 10)).Result()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to get last evaluation: %w", err)
	}

	ms, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("malformed last evaluation for policy %d: %w", policyID, err)
	}
	return time.UnixMilli(ms), true, nil
}

// Set records the evaluation time of a policy
func (r *EvaluationRepository) Set(ctx context.Context, policyID int64, at time.Time) error {
	if err := r.redis.HSet(ctx, evaluationHashKey, strconv.FormatInt(policyID, 10), at.UnixMilli()).Err(); err != nil {
		return fmt.Errorf("failed to set last evaluation: %w", err)
	}
	return nil
}

// Delete forgets a policy, used when the policy is removed
func (r *EvaluationRepository) Delete(ctx context.Context, policyID int64) error {
	if err := r.redis.HDel(ctx, evaluationHashKey, strconv.FormatInt(policyID, 10)).Err(); err != nil {
		return fmt.Errorf("failed to delete last evaluation: %w", err)
	}
	return nil
}

// All returns every recorded evaluation time
func (r *EvaluationRepository) All(ctx context.Context) (map[int64]time.Time, error) {
	raw, err := r.redis.HGetAll(ctx, evaluationHashKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list evaluations: %w", err)
	}

	result := make(map[int64]time.Time, len(raw))
	for k, v := range raw {
		id, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			continue
		}
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			continue
		}
		result[id] = time.UnixMilli(ms)
	}
	return result, nil
}
