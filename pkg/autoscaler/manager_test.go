package autoscaler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intelliscale/pkg/constants"
	"intelliscale/pkg/interfaces"
)

type fakeStore struct {
	mu       sync.Mutex
	policies map[int64]*interfaces.ScalingPolicy
	events   []*interfaces.ScalingEvent
}

func newFakeStore(policies ...*interfaces.ScalingPolicy) *fakeStore {
	s := &fakeStore{policies: make(map[int64]*interfaces.ScalingPolicy)}
	for _, p := range policies {
		s.policies[p.ID] = p
	}
	return s
}

func (s *fakeStore) ListEnabledPolicies(ctx context.Context) ([]*interfaces.ScalingPolicy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*interfaces.ScalingPolicy, 0, len(s.policies))
	for _, p := range s.policies {
		if p.Enabled {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *fakeStore) RecordScaleAction(ctx context.Context, event *interfaces.ScalingEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	at := event.CreatedAt
	s.policies[event.PolicyID].LastScaledAt = &at
	return nil
}

func (s *fakeStore) ListScalingEvents(ctx context.Context, filter interfaces.ScalingEventFilter) ([]*interfaces.ScalingEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*interfaces.ScalingEvent, 0, len(s.events))
	for i := len(s.events) - 1; i >= 0; i-- {
		out = append(out, s.events[i])
	}
	return out, nil
}

func (s *fakeStore) setEnabled(id int64, enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policies[id].Enabled = enabled
}

func (s *fakeStore) eventCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

type fakeRegistry struct {
	mu        sync.Mutex
	replicas  map[string][]string
	failStart error
	failStop  error
	stopped   []string
	seq       int
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{replicas: make(map[string][]string)}
}

func (r *fakeRegistry) StartReplica(ctx context.Context, parentID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failStart != nil {
		return "", r.failStart
	}
	r.seq++
	id := fmt.Sprintf("%s-replica-%d", parentID, r.seq)
	r.replicas[parentID] = append(r.replicas[parentID], id)
	return id, nil
}

func (r *fakeRegistry) StopReplica(ctx context.Context, replicaID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failStop != nil {
		return r.failStop
	}
	for parent, ids := range r.replicas {
		for i, id := range ids {
			if id == replicaID {
				r.replicas[parent] = append(ids[:i:i], ids[i+1:]...)
				r.stopped = append(r.stopped, replicaID)
				return nil
			}
		}
	}
	return interfaces.ErrContainerNotFound
}

func (r *fakeRegistry) ListReplicas(ctx context.Context, parentID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.replicas[parentID]...), nil
}

func (r *fakeRegistry) ContainerStatus(ctx context.Context, id string) (*interfaces.ContainerInfo, error) {
	return &interfaces.ContainerInfo{ID: id, Status: constants.ContainerStatusRunning}, nil
}

func (r *fakeRegistry) ListContainers(ctx context.Context) ([]*interfaces.ContainerInfo, error) {
	return nil, nil
}

func (r *fakeRegistry) count(parentID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return 1 + len(r.replicas[parentID])
}

type fakeMetrics struct {
	mu     sync.Mutex
	values map[string][2]float64
	err    error
	panics map[string]bool
	calls  int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{values: make(map[string][2]float64), panics: make(map[string]bool)}
}

func (f *fakeMetrics) set(id string, cpu, mem float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[id] = [2]float64{cpu, mem}
}

func (f *fakeMetrics) Sample(ctx context.Context, id string) (*interfaces.MetricSample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.panics[id] {
		panic("metrics backend exploded")
	}
	if f.err != nil {
		return nil, f.err
	}
	v := f.values[id]
	return &interfaces.MetricSample{ContainerID: id, CPUPercent: v[0], MemoryPercent: v[1]}, nil
}

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	manager  *Manager
	store    *fakeStore
	registry *fakeRegistry
	metrics  *fakeMetrics
	clock    *manualClock
}

func newTestEnv(t *testing.T, policies ...*interfaces.ScalingPolicy) *testEnv {
	t.Helper()
	env := &testEnv{
		store:    newFakeStore(policies...),
		registry: newFakeRegistry(),
		metrics:  newFakeMetrics(),
		clock:    &manualClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)},
	}
	env.manager = NewManager(&Config{Enabled: true, Interval: 30}, env.store, env.registry, env.metrics, nil)
	env.manager.now = env.clock.Now
	return env
}

func scenarioPolicy() *interfaces.ScalingPolicy {
	return &interfaces.ScalingPolicy{
		ID:                       1,
		ContainerID:              "web",
		Enabled:                  true,
		ScaleUpCPUThreshold:      10,
		ScaleUpMemoryThreshold:   80,
		ScaleDownCPUThreshold:    5,
		ScaleDownMemoryThreshold: 5,
		MinReplicas:              1,
		MaxReplicas:              3,
		CooldownPeriod:           60,
		EvaluationPeriod:         20,
	}
}

func TestManager_CooldownSuppressesRepeatedScaleUp(t *testing.T) {
	env := newTestEnv(t, scenarioPolicy())
	env.metrics.set("web", 15, 20)
	ctx := context.Background()

	// three due ticks inside one cooldown window
	for i := 0; i < 3; i++ {
		env.manager.tick(ctx)
		env.clock.Advance(25 * time.Second)
	}

	require.Equal(t, 1, env.store.eventCount())
	event := env.store.events[0]
	assert.Equal(t, constants.ScaleActionUp, event.Action)
	assert.Equal(t, constants.TriggerMetricCPU, event.TriggerMetric)
	assert.Equal(t, 15.0, event.MetricValue)
	assert.Equal(t, 1, event.ReplicaCountBefore)
	assert.Equal(t, 2, event.ReplicaCountAfter)
	assert.NotEmpty(t, event.EventID)
	assert.Equal(t, 2, env.registry.count("web"))

	// once the cooldown has passed the next due tick scales again
	env.clock.Advance(time.Minute)
	env.manager.tick(ctx)
	assert.Equal(t, 2, env.store.eventCount())
	assert.Equal(t, 3, env.registry.count("web"))

	// max reached
	env.clock.Advance(2 * time.Minute)
	env.manager.tick(ctx)
	assert.Equal(t, 2, env.store.eventCount())
	assert.Equal(t, 3, env.registry.count("web"))
}

func TestManager_SkipsPoliciesNotDue(t *testing.T) {
	p := scenarioPolicy()
	p.EvaluationPeriod = 120
	env := newTestEnv(t, p)
	env.metrics.set("web", 1, 1)
	ctx := context.Background()

	report, err := env.manager.runOnce(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Evaluated)

	env.clock.Advance(30 * time.Second)
	report, err = env.manager.runOnce(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Evaluated)
	require.Len(t, report.Policies, 1)
	assert.True(t, report.Policies[0].Skipped)

	env.clock.Advance(90 * time.Second)
	report, err = env.manager.runOnce(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Evaluated)
}

func TestManager_RegistryFailureRecordsNothingAndRetries(t *testing.T) {
	env := newTestEnv(t, scenarioPolicy())
	env.metrics.set("web", 50, 20)
	env.registry.failStart = errors.New("docker daemon unavailable")
	ctx := context.Background()

	report, err := env.manager.runOnce(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Errors)
	assert.Equal(t, 0, env.store.eventCount())
	assert.Nil(t, env.store.policies[1].LastScaledAt)

	_, evaluated, err := env.manager.tracker.LastEvaluated(ctx, 1)
	require.NoError(t, err)
	assert.False(t, evaluated, "failed evaluation must stay due")

	// registry recovers; the very next tick retries even though the period has not elapsed
	env.registry.failStart = nil
	env.clock.Advance(time.Second)
	report, err = env.manager.runOnce(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Actions)
	assert.Equal(t, 1, env.store.eventCount())
}

func TestManager_MetricsFailureDoesNotAbortTick(t *testing.T) {
	other := scenarioPolicy()
	other.ID = 2
	other.ContainerID = "api"
	env := newTestEnv(t, scenarioPolicy(), other)
	env.metrics.panics["web"] = true
	env.metrics.set("api", 50, 10)

	report, err := env.manager.runOnce(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Errors)
	assert.Equal(t, 1, report.Actions)
	assert.Contains(t, report.Policies[0].Error, "panic")
	assert.Equal(t, 2, env.registry.count("api"))
}

func TestManager_EvaluateNowIsIdempotentWithinCooldown(t *testing.T) {
	p := scenarioPolicy()
	p.EvaluationPeriod = 3600
	env := newTestEnv(t, p)
	env.metrics.set("web", 90, 90)
	ctx := context.Background()

	first, err := env.manager.EvaluateNow(ctx)
	require.NoError(t, err)
	second, err := env.manager.EvaluateNow(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, first.Actions)
	assert.Equal(t, 0, second.Actions)
	assert.Equal(t, 1, second.Evaluated, "evaluate-now ignores the evaluation period")
	assert.Equal(t, 1, env.store.eventCount())
}

func TestManager_EvaluateNowRunsWhileDisabled(t *testing.T) {
	env := newTestEnv(t, scenarioPolicy())
	env.metrics.set("web", 90, 90)
	env.manager.Disable()

	report, err := env.manager.EvaluateNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Actions)
}

func TestManager_EvaluateNowWaitsForRunningPass(t *testing.T) {
	env := newTestEnv(t, scenarioPolicy())

	// occupy the slot as a running pass would
	env.manager.slot <- struct{}{}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := env.manager.EvaluateNow(ctx)
	assert.ErrorIs(t, err, ErrEvaluationBusy)

	// a scheduled tick is skipped instead of queued
	calls := env.metrics.calls
	env.manager.tick(context.Background())
	assert.Equal(t, calls, env.metrics.calls)

	<-env.manager.slot
	_, err = env.manager.EvaluateNow(context.Background())
	assert.NoError(t, err)
}

func TestManager_DisabledPolicyStopsProducingEvents(t *testing.T) {
	p := scenarioPolicy()
	p.CooldownPeriod = 0
	p.MaxReplicas = 8
	env := newTestEnv(t, p)
	env.metrics.set("web", 99, 99)
	ctx := context.Background()

	env.manager.tick(ctx)
	require.Equal(t, 1, env.store.eventCount())

	env.store.setEnabled(1, false)
	for i := 0; i < 3; i++ {
		env.clock.Advance(time.Minute)
		env.manager.tick(ctx)
	}
	assert.Equal(t, 1, env.store.eventCount())
}

func TestManager_ScaleDownStopsNewestReplica(t *testing.T) {
	p := scenarioPolicy()
	p.CooldownPeriod = 0
	env := newTestEnv(t, p)
	env.registry.replicas["web"] = []string{"web-replica-old", "web-replica-new"}
	env.metrics.set("web", 1, 1)

	report, err := env.manager.runOnce(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Actions)
	assert.Equal(t, []string{"web-replica-new"}, env.registry.stopped)

	require.Equal(t, 1, env.store.eventCount())
	event := env.store.events[0]
	assert.Equal(t, constants.ScaleActionDown, event.Action)
	assert.Equal(t, 3, event.ReplicaCountBefore)
	assert.Equal(t, 2, event.ReplicaCountAfter)
}

func TestManager_FixedSizePolicyNeverActs(t *testing.T) {
	p := scenarioPolicy()
	p.MinReplicas, p.MaxReplicas = 1, 1
	p.CooldownPeriod = 0
	env := newTestEnv(t, p)
	ctx := context.Background()

	for _, v := range []float64{0, 3, 50, 100} {
		env.metrics.set("web", v, v)
		_, err := env.manager.EvaluateNow(ctx)
		require.NoError(t, err)
	}
	assert.Equal(t, 0, env.store.eventCount())
}

func TestManager_StatusAndPolicyStatus(t *testing.T) {
	p := scenarioPolicy()
	env := newTestEnv(t, p)
	env.metrics.set("web", 50, 50)
	ctx := context.Background()

	_, err := env.manager.EvaluateNow(ctx)
	require.NoError(t, err)
	env.clock.Advance(10 * time.Second)

	status, err := env.manager.GetStatus(ctx)
	require.NoError(t, err)
	assert.True(t, status.Enabled)
	require.Len(t, status.Policies, 1)
	require.Len(t, status.RecentEvents, 1)
	require.NotNil(t, status.LastReport)

	ps := status.Policies[0]
	assert.Equal(t, 2, ps.CurrentReplicas)
	assert.False(t, ps.CanScaleUp, "cooling down")
	assert.InDelta(t, 50, ps.CooldownRemaining, 0.001)
	require.NotNil(t, ps.TimeSinceLastScale)
	assert.InDelta(t, 10, *ps.TimeSinceLastScale, 0.001)
	require.NotNil(t, ps.LastEvaluatedAt)
	assert.InDelta(t, 10, ps.NextEvaluationDueSec, 0.001)

	env.clock.Advance(time.Minute)
	fresh, err := env.store.ListEnabledPolicies(ctx)
	require.NoError(t, err)
	ps = env.manager.PolicyStatus(ctx, fresh[0])
	assert.True(t, ps.CanScaleUp)
	assert.True(t, ps.CanScaleDown)
}

func TestManager_StartRunsTicks(t *testing.T) {
	env := newTestEnv(t, scenarioPolicy())
	env.metrics.set("web", 50, 50)
	env.manager.config.Interval = 1

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, env.manager.Start(ctx))
	assert.Error(t, env.manager.Start(ctx), "double start")
	assert.True(t, env.manager.IsRunning())

	assert.Eventually(t, func() bool { return env.store.eventCount() == 1 }, 5*time.Second, 50*time.Millisecond)

	require.NoError(t, env.manager.Stop())
	assert.False(t, env.manager.IsRunning())
	assert.Error(t, env.manager.Stop())
}

func TestManager_UpdateGlobalConfig(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	assert.Error(t, env.manager.UpdateGlobalConfig(ctx, &Config{Enabled: true, Interval: 0}))

	require.NoError(t, env.manager.UpdateGlobalConfig(ctx, &Config{Enabled: false, Interval: 10}))
	cfg := env.manager.GetGlobalConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, 10, cfg.Interval)
	assert.False(t, env.manager.IsEnabled())

	select {
	case d := <-env.manager.resetCh:
		assert.Equal(t, 10*time.Second, d)
	default:
		t.Fatal("interval change not signalled to the control loop")
	}
}

func TestManager_ConcurrentConfigUpdatesDoNotBlock(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// control loop not running, nobody drains resetCh
	var wg sync.WaitGroup
	for i := 1; i <= 20; i++ {
		wg.Add(1)
		go func(interval int) {
			defer wg.Done()
			assert.NoError(t, env.manager.UpdateGlobalConfig(ctx, &Config{Enabled: true, Interval: interval}))
		}(i)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("concurrent config updates blocked")
	}

	select {
	case d := <-env.manager.resetCh:
		assert.Equal(t, time.Duration(env.manager.GetGlobalConfig().Interval)*time.Second, d)
	default:
		t.Fatal("interval change not signalled to the control loop")
	}
}

func TestManager_GlobalSwitchPersistedInRedis(t *testing.T) {
	_, client := newTestRedis(t)
	store := newFakeStore()

	m1 := NewManager(&Config{Enabled: true, Interval: 30}, store, newFakeRegistry(), newFakeMetrics(), client)
	m1.Disable()

	m2 := NewManager(&Config{Enabled: true, Interval: 30}, store, newFakeRegistry(), newFakeMetrics(), client)
	assert.False(t, m2.IsEnabled(), "disabled state survives restart")

	m2.Enable()
	m3 := NewManager(&Config{Enabled: false, Interval: 30}, store, newFakeRegistry(), newFakeMetrics(), client)
	assert.True(t, m3.IsEnabled())
}

func TestManager_SharedScheduleAcrossInstances(t *testing.T) {
	_, client := newTestRedis(t)
	p := scenarioPolicy()
	p.EvaluationPeriod = 300
	store := newFakeStore(p)
	metrics := newFakeMetrics()
	metrics.set("web", 1, 1)
	registry := newFakeRegistry()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	m1 := NewManager(&Config{Enabled: true, Interval: 30}, store, registry, metrics, client)
	m1.now = func() time.Time { return now }
	m2 := NewManager(&Config{Enabled: true, Interval: 30}, store, registry, metrics, client)
	m2.now = func() time.Time { return now.Add(time.Minute) }

	report, err := m1.runOnce(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Evaluated)

	report, err = m2.runOnce(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Evaluated, "second instance sees the first instance's evaluation")
}

func TestManager_ForgetPolicy(t *testing.T) {
	env := newTestEnv(t, scenarioPolicy())
	env.metrics.set("web", 1, 1)
	ctx := context.Background()

	_, err := env.manager.runOnce(ctx, false)
	require.NoError(t, err)
	_, ok, _ := env.manager.tracker.LastEvaluated(ctx, 1)
	assert.True(t, ok)

	require.NoError(t, env.manager.ForgetPolicy(ctx, 1))
	_, ok, _ = env.manager.tracker.LastEvaluated(ctx, 1)
	assert.False(t, ok)
}
