package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"intelliscale/pkg/config"
	"intelliscale/pkg/constants"
	"intelliscale/pkg/interfaces"
	"intelliscale/pkg/loadgen"
	"intelliscale/pkg/logger"
	"intelliscale/pkg/monitoring"
	"intelliscale/pkg/store/mysql"
)

const interruptedMessage = "interrupted by server restart"

var activeStatuses = []string{
	string(constants.LoadTestStatusPending),
	string(constants.LoadTestStatusRunning),
}

// activeRun a load test executing in this process
type activeRun struct {
	gen    *loadgen.Generator
	hub    *loadgen.Broadcaster
	cancel context.CancelFunc
	done   chan struct{}
}

// LoadTestService owns the load test state machine and the runs of this process
type LoadTestService struct {
	repo     *mysql.LoadTestRepository
	registry interfaces.ContainerRegistry
	metrics  interfaces.MetricsSource
	cfg      config.LoadTestConfig

	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu       sync.Mutex
	active   map[int64]*activeRun
	shutdown bool
	wg       sync.WaitGroup

	onFinish func(ctx context.Context, test *interfaces.LoadTest)
}

// NewLoadTestService creates a new load test service
func NewLoadTestService(repo *mysql.LoadTestRepository, registry interfaces.ContainerRegistry, metrics interfaces.MetricsSource, cfg config.LoadTestConfig) *LoadTestService {
	ctx, cancel := context.WithCancel(context.Background())
	return &LoadTestService{
		repo:       repo,
		registry:   registry,
		metrics:    metrics,
		cfg:        cfg,
		baseCtx:    ctx,
		baseCancel: cancel,
		active:     make(map[int64]*activeRun),
	}
}

// SetFinishHook registers fn to run once a test reached its terminal state
func (s *LoadTestService) SetFinishHook(fn func(ctx context.Context, test *interfaces.LoadTest)) {
	s.onFinish = fn
}

// ValidateLoadTestRequest rejects out-of-range parameters, nothing is clamped
func ValidateLoadTestRequest(req *interfaces.StartLoadTestRequest) error {
	if req.ContainerID == "" {
		return fmt.Errorf("%w: container_id is required", ErrValidation)
	}
	if req.TotalRequests < constants.LoadTestMinTotalRequests || req.TotalRequests > constants.LoadTestMaxTotalRequests {
		return fmt.Errorf("%w: total_requests must be within %d-%d, got %d", ErrValidation,
			constants.LoadTestMinTotalRequests, constants.LoadTestMaxTotalRequests, req.TotalRequests)
	}
	if req.Concurrency < constants.LoadTestMinConcurrency || req.Concurrency > constants.LoadTestMaxConcurrency {
		return fmt.Errorf("%w: concurrency must be within %d-%d, got %d", ErrValidation,
			constants.LoadTestMinConcurrency, constants.LoadTestMaxConcurrency, req.Concurrency)
	}
	if req.DurationSeconds < constants.LoadTestMinDuration || req.DurationSeconds > constants.LoadTestMaxDuration {
		return fmt.Errorf("%w: duration_seconds must be within %d-%d, got %d", ErrValidation,
			constants.LoadTestMinDuration, constants.LoadTestMaxDuration, req.DurationSeconds)
	}
	return nil
}

// StartLoadTest validates the request, records the test and starts it in the background.
// The returned test is already running.
func (s *LoadTestService) StartLoadTest(ctx context.Context, userID int64, req *interfaces.StartLoadTestRequest) (*interfaces.LoadTest, error) {
	if err := ValidateLoadTestRequest(req); err != nil {
		return nil, err
	}

	info, err := s.registry.ContainerStatus(ctx, req.ContainerID)
	if err != nil {
		if errors.Is(err, interfaces.ErrContainerNotFound) {
			return nil, fmt.Errorf("%w: container %s", ErrNotFound, req.ContainerID)
		}
		return nil, fmt.Errorf("failed to look up container: %w", err)
	}
	if !info.IsRunning() || info.URL == "" {
		return nil, fmt.Errorf("%w: container %s is not running", ErrValidation, req.ContainerID)
	}

	row := &mysql.LoadTest{
		UserID:          userID,
		ContainerID:     req.ContainerID,
		TargetURL:       info.URL,
		Status:          string(constants.LoadTestStatusPending),
		TotalRequests:   req.TotalRequests,
		Concurrency:     req.Concurrency,
		DurationSeconds: req.DurationSeconds,
	}
	if err := s.repo.Create(ctx, row); err != nil {
		return nil, err
	}

	if err := loadgen.Transition(constants.LoadTestStatusPending, constants.LoadTestStatusRunning); err != nil {
		return nil, err
	}
	startedAt := time.Now()
	ok, err := s.repo.Transition(ctx, row.ID, []string{string(constants.LoadTestStatusPending)},
		string(constants.LoadTestStatusRunning), map[string]interface{}{"started_at": startedAt})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("load test %d left pending before it could start", row.ID)
	}
	row.Status = string(constants.LoadTestStatusRunning)
	row.StartedAt = &startedAt

	opts := loadgen.Options{
		TargetURL:      info.URL,
		TotalRequests:  req.TotalRequests,
		Concurrency:    req.Concurrency,
		Duration:       time.Duration(req.DurationSeconds) * time.Second,
		RequestTimeout: s.cfg.RequestTimeout,
		SampleInterval: s.cfg.SampleInterval,
		FailureRatio:   s.cfg.FailureRatio,
		StartedAt:      startedAt,
	}
	hub := loadgen.NewBroadcaster(s.cfg.SubscriberBuffer)
	sink := &progressSink{repo: s.repo, loadTestID: row.ID}

	runCtx, cancel := context.WithCancel(logger.WithTraceID(s.baseCtx, logger.TraceID(ctx)))
	run := &activeRun{
		gen:    loadgen.NewGenerator(row.ID, req.ContainerID, opts, s.metrics, sink, hub),
		hub:    hub,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		cancel()
		s.repo.Transition(ctx, row.ID, activeStatuses, string(constants.LoadTestStatusFailed),
			map[string]interface{}{"completed_at": time.Now(), "error_message": "server shutting down"})
		return nil, fmt.Errorf("load test service is shutting down")
	}
	s.active[row.ID] = run
	s.wg.Add(1)
	s.mu.Unlock()
	monitoring.LoadTestsActive.Inc()

	go s.execute(runCtx, row.ID, run)

	logger.InfoCtx(ctx, "started load test %d against %s (%d requests, concurrency %d, %ds)",
		row.ID, info.URL, req.TotalRequests, req.Concurrency, req.DurationSeconds)
	return mysql.ToLoadTestDomain(row), nil
}

func (s *LoadTestService) execute(ctx context.Context, id int64, run *activeRun) {
	defer func() {
		s.mu.Lock()
		delete(s.active, id)
		s.mu.Unlock()
		monitoring.LoadTestsActive.Dec()
		close(run.done)
		s.wg.Done()
	}()
	defer run.cancel()

	var res *loadgen.Result
	func() {
		defer func() {
			if r := recover(); r != nil {
				logger.ErrorCtx(ctx, "load test %d panicked: %v", id, r)
				res = &loadgen.Result{
					Status:       constants.LoadTestStatusFailed,
					ErrorMessage: fmt.Sprintf("internal error: %v", r),
					Counters:     run.gen.Snapshot(),
				}
			}
		}()
		res = run.gen.Run(ctx)
	}()

	final := s.finish(context.WithoutCancel(ctx), id, res)
	run.hub.Close(&loadgen.Event{Type: loadgen.EventComplete, Test: final})
	if final != nil && s.onFinish != nil {
		s.onFinish(context.WithoutCancel(ctx), final)
	}
}

// finish applies the terminal transition and aggregates, returns the stored record
func (s *LoadTestService) finish(ctx context.Context, id int64, res *loadgen.Result) *interfaces.LoadTest {
	if err := loadgen.Transition(constants.LoadTestStatusRunning, res.Status); err != nil {
		logger.ErrorCtx(ctx, "load test %d: %v", id, err)
		res.Status = constants.LoadTestStatusFailed
	}

	fields := map[string]interface{}{
		"completed_at":         time.Now(),
		"requests_sent":        res.Counters.Sent,
		"requests_completed":   res.Counters.Completed,
		"requests_failed":      res.Counters.Failed,
		"avg_response_time_ms": res.AvgResponseTimeMs,
		"min_response_time_ms": res.MinResponseTimeMs,
		"max_response_time_ms": res.MaxResponseTimeMs,
		"peak_cpu_percent":     res.PeakCPUPercent,
		"peak_memory_mb":       res.PeakMemoryMB,
		"error_message":        res.ErrorMessage,
	}
	ok, err := s.repo.Transition(ctx, id, []string{string(constants.LoadTestStatusRunning)}, string(res.Status), fields)
	if err != nil {
		logger.ErrorCtx(ctx, "load test %d: failed to store terminal state: %v", id, err)
	} else if !ok {
		logger.WarnCtx(ctx, "load test %d already left running, %s dropped", id, res.Status)
	} else {
		monitoring.LoadTestRuns.WithLabelValues(string(res.Status)).Inc()
		logger.InfoCtx(ctx, "load test %d %s: sent=%d completed=%d failed=%d",
			id, res.Status, res.Counters.Sent, res.Counters.Completed, res.Counters.Failed)
	}

	row, err := s.repo.Get(ctx, id)
	if err != nil || row == nil {
		logger.ErrorCtx(ctx, "load test %d: failed to reload: %v", id, err)
		return nil
	}
	return mysql.ToLoadTestDomain(row)
}

// GetLoadTest returns the current state; live counters are overlaid while running
func (s *LoadTestService) GetLoadTest(ctx context.Context, id int64) (*interfaces.LoadTest, error) {
	row, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, fmt.Errorf("%w: load test %d", ErrNotFound, id)
	}
	test := mysql.ToLoadTestDomain(row)

	if test.Status == constants.LoadTestStatusRunning {
		if run := s.lookup(id); run != nil {
			snap := run.gen.Snapshot()
			test.RequestsSent = snap.Sent
			test.RequestsCompleted = snap.Completed
			test.RequestsFailed = snap.Failed
		}
	}
	return test, nil
}

// CancelLoadTest stops a running test and waits (bounded) for it to reach cancelled
func (s *LoadTestService) CancelLoadTest(ctx context.Context, id int64) (*interfaces.LoadTest, error) {
	test, err := s.GetLoadTest(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := loadgen.Transition(test.Status, constants.LoadTestStatusCancelled); err != nil {
		return nil, fmt.Errorf("%w: load test %d is %s", ErrNotRunning, id, test.Status)
	}
	run := s.lookup(id)
	if run == nil {
		return nil, fmt.Errorf("%w: load test %d is not running in this process", ErrNotRunning, id)
	}

	run.cancel()
	logger.InfoCtx(ctx, "cancelling load test %d", id)

	timer := time.NewTimer(s.cfg.CancelWaitTimeout)
	defer timer.Stop()
	select {
	case <-run.done:
	case <-timer.C:
		logger.WarnCtx(ctx, "load test %d did not stop within %s", id, s.cfg.CancelWaitTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return s.GetLoadTest(ctx, id)
}

// Subscribe attaches to the live stream of a test. The subscription is nil
// when the test is not running in this process.
func (s *LoadTestService) Subscribe(ctx context.Context, id int64) (*loadgen.Subscription, *interfaces.LoadTest, error) {
	test, err := s.GetLoadTest(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if test.Status.IsTerminal() {
		return nil, test, nil
	}
	run := s.lookup(id)
	if run == nil {
		return nil, test, nil
	}
	return run.hub.Subscribe(), test, nil
}

// ListHistory lists tests newest first
func (s *LoadTestService) ListHistory(ctx context.Context, userID int64, containerID string, limit int) ([]*interfaces.LoadTest, error) {
	rows, err := s.repo.List(ctx, userID, containerID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]*interfaces.LoadTest, len(rows))
	for i, row := range rows {
		out[i] = mysql.ToLoadTestDomain(row)
	}
	return out, nil
}

// GetMetrics returns the sampled time series of a test, oldest first
func (s *LoadTestService) GetMetrics(ctx context.Context, id int64) ([]*interfaces.LoadTestMetric, error) {
	row, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, fmt.Errorf("%w: load test %d", ErrNotFound, id)
	}

	rows, err := s.repo.ListMetrics(ctx, id)
	if err != nil {
		return nil, err
	}
	out := make([]*interfaces.LoadTestMetric, len(rows))
	for i, m := range rows {
		out[i] = mysql.ToLoadTestMetricDomain(m)
	}
	return out, nil
}

// IsActive reports whether the test runs in this process
func (s *LoadTestService) IsActive(id int64) bool {
	return s.lookup(id) != nil
}

// RecoverInterrupted fails tests a previous process left pending or running
func (s *LoadTestService) RecoverInterrupted(ctx context.Context) (int, error) {
	rows, err := s.repo.ListByStatus(ctx, activeStatuses)
	if err != nil {
		return 0, err
	}
	return s.failOrphans(ctx, rows, interruptedMessage)
}

// ReapStale fails running tests that no process is driving and that
// exceeded their duration by more than grace
func (s *LoadTestService) ReapStale(ctx context.Context, grace time.Duration) (int, error) {
	rows, err := s.repo.ListByStatus(ctx, activeStatuses)
	if err != nil {
		return 0, err
	}

	now := time.Now()
	stale := make([]*mysql.LoadTest, 0, len(rows))
	for _, row := range rows {
		since := row.CreatedAt
		if row.StartedAt != nil {
			since = *row.StartedAt
		}
		if now.Sub(since) > time.Duration(row.DurationSeconds)*time.Second+grace {
			stale = append(stale, row)
		}
	}
	return s.failOrphans(ctx, stale, "load test exceeded its duration without finishing")
}

func (s *LoadTestService) failOrphans(ctx context.Context, rows []*mysql.LoadTest, message string) (int, error) {
	failed := 0
	for _, row := range rows {
		if s.IsActive(row.ID) {
			continue
		}
		ok, err := s.repo.Transition(ctx, row.ID, activeStatuses, string(constants.LoadTestStatusFailed),
			map[string]interface{}{"completed_at": time.Now(), "error_message": message})
		if err != nil {
			return failed, err
		}
		if ok {
			failed++
			monitoring.LoadTestRuns.WithLabelValues(string(constants.LoadTestStatusFailed)).Inc()
			logger.WarnCtx(ctx, "load test %d marked failed: %s", row.ID, message)
		}
	}
	return failed, nil
}

// Shutdown cancels every active run and waits for them to record their terminal state
func (s *LoadTestService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.shutdown = true
	s.mu.Unlock()

	s.baseCancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("load tests still running at shutdown: %w", ctx.Err())
	}
}

func (s *LoadTestService) lookup(id int64) *activeRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active[id]
}

// progressSink persists sampler ticks and running counters
type progressSink struct {
	repo       *mysql.LoadTestRepository
	loadTestID int64
}

func (p *progressSink) RecordSample(ctx context.Context, m *interfaces.LoadTestMetric) error {
	if err := p.repo.CreateMetric(ctx, mysql.FromLoadTestMetricDomain(m)); err != nil {
		return err
	}
	return p.repo.UpdateProgress(ctx, p.loadTestID, string(constants.LoadTestStatusRunning),
		m.RequestsSent, m.RequestsCompleted, m.RequestsFailed)
}
