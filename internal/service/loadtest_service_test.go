package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intelliscale/pkg/config"
	"intelliscale/pkg/constants"
	"intelliscale/pkg/interfaces"
	"intelliscale/pkg/loadgen"
	"intelliscale/pkg/metricsource"
	"intelliscale/pkg/store/mysql"
)

func newLoadTestService(t *testing.T, env *testEnv) *LoadTestService {
	t.Helper()
	cfg := config.DefaultLoadTestConfig()
	cfg.SampleInterval = 50 * time.Millisecond
	cfg.CancelWaitTimeout = 5 * time.Second
	svc := NewLoadTestService(env.repo.LoadTest, env.registry, metricsource.NewSimulatedSourceWithSeed(7), cfg)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		svc.Shutdown(ctx)
	})
	return svc
}

func waitTerminal(t *testing.T, svc *LoadTestService, id int64) *interfaces.LoadTest {
	t.Helper()
	var test *interfaces.LoadTest
	require.Eventually(t, func() bool {
		got, err := svc.GetLoadTest(context.Background(), id)
		if err != nil {
			return false
		}
		test = got
		return got.Status.IsTerminal() && !svc.IsActive(id)
	}, 10*time.Second, 20*time.Millisecond)
	return test
}

func okServer(t *testing.T) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestValidateLoadTestRequest(t *testing.T) {
	valid := interfaces.StartLoadTestRequest{ContainerID: "web", TotalRequests: 100, Concurrency: 10, DurationSeconds: 30}
	require.NoError(t, ValidateLoadTestRequest(&valid))

	tests := map[string]func(r *interfaces.StartLoadTestRequest){
		"no container":         func(r *interfaces.StartLoadTestRequest) { r.ContainerID = "" },
		"zero requests":        func(r *interfaces.StartLoadTestRequest) { r.TotalRequests = 0 },
		"too many requests":    func(r *interfaces.StartLoadTestRequest) { r.TotalRequests = 1001 },
		"zero concurrency":     func(r *interfaces.StartLoadTestRequest) { r.Concurrency = 0 },
		"too much concurrency": func(r *interfaces.StartLoadTestRequest) { r.Concurrency = 51 },
		"too short":            func(r *interfaces.StartLoadTestRequest) { r.DurationSeconds = 9 },
		"too long":             func(r *interfaces.StartLoadTestRequest) { r.DurationSeconds = 301 },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			r := valid
			mutate(&r)
			assert.ErrorIs(t, ValidateLoadTestRequest(&r), ErrValidation)
		})
	}
}

func TestLoadTestService_StartRejectsBadTargets(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "web", okServer(t).URL)
	svc := newLoadTestService(t, env)
	ctx := context.Background()

	_, err := svc.StartLoadTest(ctx, 1, &interfaces.StartLoadTestRequest{
		ContainerID: "ghost", TotalRequests: 1, Concurrency: 1, DurationSeconds: 10,
	})
	assert.ErrorIs(t, err, ErrNotFound)

	replicaID, err := env.registry.StartReplica(ctx, "web")
	require.NoError(t, err)
	require.NoError(t, env.registry.StopReplica(ctx, replicaID))
	_, err = svc.StartLoadTest(ctx, 1, &interfaces.StartLoadTestRequest{
		ContainerID: replicaID, TotalRequests: 1, Concurrency: 1, DurationSeconds: 10,
	})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.StartLoadTest(ctx, 1, &interfaces.StartLoadTestRequest{
		ContainerID: "web", TotalRequests: 5000, Concurrency: 1, DurationSeconds: 10,
	})
	assert.ErrorIs(t, err, ErrValidation)

	history, err := svc.ListHistory(ctx, 0, "", 10)
	require.NoError(t, err)
	assert.Empty(t, history, "rejected requests leave no record")
}

func TestLoadTestService_RunsToCompletion(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "web", okServer(t).URL)
	svc := newLoadTestService(t, env)
	ctx := context.Background()

	started, err := svc.StartLoadTest(ctx, 1, &interfaces.StartLoadTestRequest{
		ContainerID: "web", TotalRequests: 1, Concurrency: 1, DurationSeconds: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, constants.LoadTestStatusRunning, started.Status)
	assert.NotNil(t, started.StartedAt)

	final := waitTerminal(t, svc, started.ID)
	assert.Equal(t, constants.LoadTestStatusCompleted, final.Status)
	assert.Equal(t, int64(1), final.RequestsSent)
	assert.Equal(t, int64(1), final.RequestsCompleted)
	assert.Equal(t, int64(0), final.RequestsFailed)
	assert.Equal(t, 100.0, final.ProgressPercent())
	assert.NotNil(t, final.CompletedAt)
	assert.NotNil(t, final.AvgResponseTimeMs)
	require.NotNil(t, final.PeakCPUPercent)
	assert.GreaterOrEqual(t, *final.PeakCPUPercent, 3.0)

	metrics, err := svc.GetMetrics(ctx, started.ID)
	require.NoError(t, err)
	require.NotEmpty(t, metrics)
	assert.Equal(t, int64(1), metrics[len(metrics)-1].RequestsCompleted)

	// a finished test cannot be cancelled
	_, err = svc.CancelLoadTest(ctx, started.ID)
	assert.ErrorIs(t, err, ErrNotRunning)

	sub, snapshot, err := svc.Subscribe(ctx, started.ID)
	require.NoError(t, err)
	assert.Nil(t, sub)
	assert.Equal(t, constants.LoadTestStatusCompleted, snapshot.Status)

	_, err = svc.GetLoadTest(ctx, 12345)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = svc.GetMetrics(ctx, 12345)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoadTestService_FinishHookSeesTerminalRecord(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "web", okServer(t).URL)
	svc := newLoadTestService(t, env)

	finished := make(chan *interfaces.LoadTest, 1)
	svc.SetFinishHook(func(ctx context.Context, test *interfaces.LoadTest) {
		finished <- test
	})

	started, err := svc.StartLoadTest(context.Background(), 1, &interfaces.StartLoadTestRequest{
		ContainerID: "web", TotalRequests: 2, Concurrency: 1, DurationSeconds: 10,
	})
	require.NoError(t, err)

	select {
	case test := <-finished:
		assert.Equal(t, started.ID, test.ID)
		assert.Equal(t, constants.LoadTestStatusCompleted, test.Status)
		assert.NotNil(t, test.CompletedAt)
	case <-time.After(10 * time.Second):
		t.Fatal("finish hook not called")
	}
}

func TestLoadTestService_FailingTargetFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	env := newTestEnv(t)
	env.register(t, "web", srv.URL)
	svc := newLoadTestService(t, env)

	started, err := svc.StartLoadTest(context.Background(), 1, &interfaces.StartLoadTestRequest{
		ContainerID: "web", TotalRequests: 1, Concurrency: 1, DurationSeconds: 10,
	})
	require.NoError(t, err)

	final := waitTerminal(t, svc, started.ID)
	assert.Equal(t, constants.LoadTestStatusFailed, final.Status)
	assert.Equal(t, int64(1), final.RequestsFailed)
	assert.NotEmpty(t, final.ErrorMessage)
}

func TestLoadTestService_UnreachableTargetFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	env := newTestEnv(t)
	env.register(t, "web", url)
	svc := newLoadTestService(t, env)

	started, err := svc.StartLoadTest(context.Background(), 1, &interfaces.StartLoadTestRequest{
		ContainerID: "web", TotalRequests: 10, Concurrency: 1, DurationSeconds: 10,
	})
	require.NoError(t, err)

	final := waitTerminal(t, svc, started.ID)
	assert.Equal(t, constants.LoadTestStatusFailed, final.Status)
	assert.Contains(t, final.ErrorMessage, "target unreachable")
	assert.Equal(t, int64(0), final.RequestsSent)
}

func TestLoadTestService_CancelStreamsTerminalEvent(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "web", okServer(t).URL)
	svc := newLoadTestService(t, env)
	ctx := context.Background()

	started, err := svc.StartLoadTest(ctx, 1, &interfaces.StartLoadTestRequest{
		ContainerID: "web", TotalRequests: 1000, Concurrency: 5, DurationSeconds: 300,
	})
	require.NoError(t, err)

	sub, snapshot, err := svc.Subscribe(ctx, started.ID)
	require.NoError(t, err)
	require.NotNil(t, sub)
	defer sub.Close()
	assert.Equal(t, constants.LoadTestStatusRunning, snapshot.Status)

	require.Eventually(t, func() bool {
		got, err := svc.GetLoadTest(ctx, started.ID)
		return err == nil && got.RequestsCompleted > 0
	}, 5*time.Second, 20*time.Millisecond)

	cancelled, err := svc.CancelLoadTest(ctx, started.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.LoadTestStatusCancelled, cancelled.Status)
	assert.Less(t, cancelled.RequestsSent, int64(1000))
	assert.LessOrEqual(t, cancelled.RequestsCompleted+cancelled.RequestsFailed, cancelled.RequestsSent)
	assert.False(t, svc.IsActive(started.ID))

	var last loadgen.Event
	for ev := range sub.C {
		last = ev
	}
	assert.Equal(t, loadgen.EventComplete, last.Type)
	require.NotNil(t, last.Test)
	assert.Equal(t, constants.LoadTestStatusCancelled, last.Test.Status)

	_, err = svc.CancelLoadTest(ctx, started.ID)
	assert.ErrorIs(t, err, ErrNotRunning)
}

func TestLoadTestService_ShutdownCancelsActiveRuns(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "web", okServer(t).URL)
	svc := newLoadTestService(t, env)
	ctx := context.Background()

	started, err := svc.StartLoadTest(ctx, 1, &interfaces.StartLoadTestRequest{
		ContainerID: "web", TotalRequests: 1000, Concurrency: 2, DurationSeconds: 300,
	})
	require.NoError(t, err)

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, svc.Shutdown(shutdownCtx))

	got, err := svc.GetLoadTest(ctx, started.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.LoadTestStatusCancelled, got.Status)

	_, err = svc.StartLoadTest(ctx, 1, &interfaces.StartLoadTestRequest{
		ContainerID: "web", TotalRequests: 1, Concurrency: 1, DurationSeconds: 10,
	})
	assert.Error(t, err)
}

func TestLoadTestService_RecoverInterrupted(t *testing.T) {
	env := newTestEnv(t)
	svc := newLoadTestService(t, env)
	ctx := context.Background()

	orphan := &mysql.LoadTest{UserID: 1, ContainerID: "web", TargetURL: "http://x", Status: "running",
		TotalRequests: 10, Concurrency: 1, DurationSeconds: 10}
	done := &mysql.LoadTest{UserID: 1, ContainerID: "web", TargetURL: "http://x", Status: "completed",
		TotalRequests: 10, Concurrency: 1, DurationSeconds: 10}
	require.NoError(t, env.repo.LoadTest.Create(ctx, orphan))
	require.NoError(t, env.repo.LoadTest.Create(ctx, done))

	n, err := svc.RecoverInterrupted(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := svc.GetLoadTest(ctx, orphan.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.LoadTestStatusFailed, got.Status)
	assert.Equal(t, interruptedMessage, got.ErrorMessage)

	got, err = svc.GetLoadTest(ctx, done.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.LoadTestStatusCompleted, got.Status)
}

func TestLoadTestService_ReapStale(t *testing.T) {
	env := newTestEnv(t)
	svc := newLoadTestService(t, env)
	ctx := context.Background()

	longAgo := time.Now().Add(-time.Hour)
	stale := &mysql.LoadTest{UserID: 1, ContainerID: "web", TargetURL: "http://x", Status: "running",
		TotalRequests: 10, Concurrency: 1, DurationSeconds: 10, StartedAt: &longAgo}
	recent := time.Now()
	fresh := &mysql.LoadTest{UserID: 1, ContainerID: "web", TargetURL: "http://x", Status: "running",
		TotalRequests: 10, Concurrency: 1, DurationSeconds: 300, StartedAt: &recent}
	require.NoError(t, env.repo.LoadTest.Create(ctx, stale))
	require.NoError(t, env.repo.LoadTest.Create(ctx, fresh))

	n, err := svc.ReapStale(ctx, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := svc.GetLoadTest(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.LoadTestStatusRunning, got.Status)
}
