package mysql

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	ds, err := NewSQLiteDatastore(":memory:")
	require.NoError(t, err)
	require.NoError(t, ds.AutoMigrate())
	t.Cleanup(func() { ds.Close() })
	return NewRepositoryWithDatastore(ds)
}

func testPolicy(containerID string) *ScalingPolicy {
	return &ScalingPolicy{
		ContainerID:              containerID,
		UserID:                   1,
		Enabled:                  true,
		ScaleUpCPUThreshold:      80,
		ScaleUpMemoryThreshold:   80,
		ScaleDownCPUThreshold:    30,
		ScaleDownMemoryThreshold: 30,
		MinReplicas:              1,
		MaxReplicas:              3,
		CooldownPeriod:           60,
		EvaluationPeriod:         30,
		LoadBalancerEnabled:      true,
	}
}

func TestScalingPolicyRepository_DuplicateContainerRejected(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.ScalingPolicy.Create(ctx, testPolicy("c1")))
	err := repo.ScalingPolicy.Create(ctx, testPolicy("c1"))
	assert.ErrorIs(t, err, ErrDuplicatePolicy)

	require.NoError(t, repo.ScalingPolicy.Create(ctx, testPolicy("c2")))
	all, err := repo.ScalingPolicy.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestScalingPolicyRepository_ListEnabledSkipsDisabled(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	p1 := testPolicy("c1")
	p2 := testPolicy("c2")
	p2.Enabled = false
	require.NoError(t, repo.ScalingPolicy.Create(ctx, p1))
	require.NoError(t, repo.ScalingPolicy.Create(ctx, p2))

	enabled, err := repo.ScalingPolicy.ListEnabled(ctx)
	require.NoError(t, err)
	require.Len(t, enabled, 1)
	assert.Equal(t, "c1", enabled[0].ContainerID)

	found, err := repo.ScalingPolicy.SetEnabled(ctx, p1.ID, false)
	require.NoError(t, err)
	assert.True(t, found)

	enabled, err = repo.ScalingPolicy.ListEnabled(ctx)
	require.NoError(t, err)
	assert.Empty(t, enabled)

	found, err = repo.ScalingPolicy.SetEnabled(ctx, 999, true)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestScalingPolicyRepository_UpdatePersistsZeroValues(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	p := testPolicy("c1")
	port := 8080
	p.LoadBalancerPort = &port
	require.NoError(t, repo.ScalingPolicy.Create(ctx, p))

	p.Enabled = false
	p.LoadBalancerEnabled = false
	p.LoadBalancerPort = nil
	p.MaxReplicas = 5
	require.NoError(t, repo.ScalingPolicy.Update(ctx, p))

	got, err := repo.ScalingPolicy.Get(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.False(t, got.Enabled)
	assert.False(t, got.LoadBalancerEnabled)
	assert.Nil(t, got.LoadBalancerPort)
	assert.Equal(t, 5, got.MaxReplicas)
}

func TestScalingPolicyRepository_DeleteKeepsEvents(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	p := testPolicy("c1")
	require.NoError(t, repo.ScalingPolicy.Create(ctx, p))
	require.NoError(t, repo.ScalingEvent.Create(ctx, &ScalingEvent{
		EventID: "e1", PolicyID: p.ID, ContainerID: "c1", Action: "scale_up", TriggerMetric: "cpu",
		MetricValue: 90, ReplicaCountBefore: 1, ReplicaCountAfter: 2, CreatedAt: time.Now(),
	}))

	deleted, err := repo.ScalingPolicy.Delete(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	got, err := repo.ScalingPolicy.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	count, err := repo.ScalingEvent.Count(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestScalingEventRepository_ListNewestFirstWithPaging(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"e1", "e2", "e3", "e4"} {
		container := "c1"
		if i == 3 {
			container = "c2"
		}
		require.NoError(t, repo.ScalingEvent.Create(ctx, &ScalingEvent{
			EventID: id, PolicyID: 1, ContainerID: container, Action: "scale_up", TriggerMetric: "cpu",
			ReplicaCountBefore: i + 1, ReplicaCountAfter: i + 2, CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	events, err := repo.ScalingEvent.List(ctx, "c1", 0, 2, 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "e3", events[0].EventID)
	assert.Equal(t, "e2", events[1].EventID)

	events, err = repo.ScalingEvent.List(ctx, "c1", 0, 2, 2)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "e1", events[0].EventID)

	recent, err := repo.ScalingEvent.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 4)
	assert.Equal(t, "e4", recent[0].EventID)

	deleted, err := repo.ScalingEvent.DeleteOldEvents(ctx, base.Add(90*time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)
}

func TestLoadTestRepository_TransitionGuardsTerminalStates(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	test := &LoadTest{UserID: 1, ContainerID: "c1", TargetURL: "http://x", Status: "pending",
		TotalRequests: 10, Concurrency: 2, DurationSeconds: 10}
	require.NoError(t, repo.LoadTest.Create(ctx, test))

	ok, err := repo.LoadTest.Transition(ctx, test.ID, []string{"pending"}, "running", map[string]interface{}{"started_at": time.Now()})
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, repo.LoadTest.UpdateProgress(ctx, test.ID, "running", 5, 4, 1))

	ok, err = repo.LoadTest.Transition(ctx, test.ID, []string{"running"}, "cancelled", nil)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.LoadTest.Transition(ctx, test.ID, []string{"running"}, "completed", nil)
	require.NoError(t, err)
	assert.False(t, ok, "terminal state must not be left")

	// progress writes after the terminal transition are ignored
	require.NoError(t, repo.LoadTest.UpdateProgress(ctx, test.ID, "running", 9, 9, 0))

	got, err := repo.LoadTest.Get(ctx, test.ID)
	require.NoError(t, err)
	assert.Equal(t, "cancelled", got.Status)
	assert.Equal(t, int64(5), got.RequestsSent)
	assert.NotNil(t, got.StartedAt)
}

func TestLoadTestRepository_MetricsAndHistory(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.LoadTest.Create(ctx, &LoadTest{UserID: 1, ContainerID: "c1", TargetURL: "http://x",
			Status: "completed", TotalRequests: 10, Concurrency: 1, DurationSeconds: 10}))
	}
	require.NoError(t, repo.LoadTest.Create(ctx, &LoadTest{UserID: 2, ContainerID: "c1", TargetURL: "http://x",
		Status: "running", TotalRequests: 10, Concurrency: 1, DurationSeconds: 10}))

	history, err := repo.LoadTest.List(ctx, 1, "c1", 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Greater(t, history[0].ID, history[1].ID)

	running, err := repo.LoadTest.ListByStatus(ctx, []string{"pending", "running"})
	require.NoError(t, err)
	assert.Len(t, running, 1)

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, repo.LoadTest.CreateMetric(ctx, &LoadTestMetric{
			LoadTestID: 1, Timestamp: start.Add(time.Duration(2-i) * time.Second), RequestsCompleted: int64(i),
		}))
	}
	metrics, err := repo.LoadTest.ListMetrics(ctx, 1)
	require.NoError(t, err)
	require.Len(t, metrics, 3)
	assert.Equal(t, int64(2), metrics[0].RequestsCompleted)
}

func TestContainerRepository_ChildrenOrderedByStart(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.Container.Create(ctx, &Container{ID: "web", Name: "web", Port: 8000, Status: "running"}))

	parent := "web"
	base := time.Now()
	for i := 1; i <= 3; i++ {
		started := base.Add(time.Duration(i) * time.Second)
		require.NoError(t, repo.Container.Create(ctx, &Container{
			ID: "web-replica-" + string(rune('0'+i)), ParentID: &parent, Name: "web", Port: 8000 + i,
			Status: "running", ReplicaIndex: i, StartedAt: &started,
		}))
	}

	idx, err := repo.Container.MaxReplicaIndex(ctx, "web")
	require.NoError(t, err)
	assert.Equal(t, 3, idx)

	stopped, err := repo.Container.MarkStopped(ctx, "web-replica-2", time.Now())
	require.NoError(t, err)
	assert.True(t, stopped)

	stopped, err = repo.Container.MarkStopped(ctx, "web-replica-2", time.Now())
	require.NoError(t, err)
	assert.False(t, stopped)

	children, err := repo.Container.ListChildren(ctx, "web", "running")
	require.NoError(t, err)
	require.Len(t, children, 2)
	assert.Equal(t, "web-replica-1", children[0].ID)
	assert.Equal(t, "web-replica-3", children[1].ID)

	idx, err = repo.Container.MaxReplicaIndex(ctx, "none")
	require.NoError(t, err)
	assert.Equal(t, 0, idx)
}
