package loadgen

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"intelliscale/pkg/constants"
	"intelliscale/pkg/interfaces"
	"intelliscale/pkg/logger"
	"intelliscale/pkg/monitoring"
)

const (
	outcomeCompleted = "completed"
	outcomeFailed    = "failed"
	outcomeAbandoned = "abandoned"
)

// Options load generator parameters
type Options struct {
	TargetURL      string
	TotalRequests  int
	Concurrency    int
	Duration       time.Duration
	RequestTimeout time.Duration
	SampleInterval time.Duration
	FailureRatio   float64

	// StartedAt anchors the duration deadline, zero means when Run is called
	StartedAt time.Time
}

// Validate rejects options the generator cannot run with
func (o Options) Validate() error {
	if o.TargetURL == "" {
		return fmt.Errorf("target url is required")
	}
	if o.TotalRequests <= 0 {
		return fmt.Errorf("total requests must be positive, got %d", o.TotalRequests)
	}
	if o.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be positive, got %d", o.Concurrency)
	}
	if o.Duration <= 0 {
		return fmt.Errorf("duration must be positive, got %s", o.Duration)
	}
	return nil
}

// Sink persists samples of a running test
type Sink interface {
	RecordSample(ctx context.Context, metric *interfaces.LoadTestMetric) error
}

// Result terminal outcome of a run
type Result struct {
	Status       constants.LoadTestStatus
	ErrorMessage string
	Counters     Snapshot

	AvgResponseTimeMs *float64
	MinResponseTimeMs *float64
	MaxResponseTimeMs *float64
	PeakCPUPercent    *float64
	PeakMemoryMB      *float64
}

// Generator issues paced GET requests against one target.
// A Generator runs once.
type Generator struct {
	loadTestID  int64
	containerID string
	opts        Options

	client   *http.Client
	metrics  interfaces.MetricsSource
	sink     Sink
	hub      *Broadcaster
	counters *Counters
	now      func() time.Time

	mu      sync.Mutex
	history []*interfaces.LoadTestMetric
}

// NewGenerator creates a generator. metrics, sink and hub may be nil.
func NewGenerator(loadTestID int64, containerID string, opts Options, metrics interfaces.MetricsSource, sink Sink, hub *Broadcaster) *Generator {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 5 * time.Second
	}
	if opts.SampleInterval <= 0 {
		opts.SampleInterval = 2 * time.Second
	}
	if opts.FailureRatio <= 0 {
		opts.FailureRatio = 0.5
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = opts.Concurrency

	return &Generator{
		loadTestID:  loadTestID,
		containerID: containerID,
		opts:        opts,
		client:      &http.Client{Transport: transport},
		metrics:     metrics,
		sink:        sink,
		hub:         hub,
		counters:    NewCounters(),
		now:         time.Now,
	}
}

// Snapshot live counters
func (g *Generator) Snapshot() Snapshot {
	return g.counters.Snapshot()
}

// History samples taken so far, oldest first
func (g *Generator) History() []*interfaces.LoadTestMetric {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]*interfaces.LoadTestMetric, len(g.history))
	copy(out, g.history)
	return out
}

// Run blocks until the run ends. Cancelling ctx cancels the run; StartedAt
// plus Duration is a hard deadline that also bounds the preflight. Requests
// still in flight when either happens are abandoned.
func (g *Generator) Run(ctx context.Context) *Result {
	defer g.client.CloseIdleConnections()

	startedAt := g.opts.StartedAt
	if startedAt.IsZero() {
		startedAt = g.now()
	}
	runCtx, cancel := context.WithDeadline(ctx, startedAt.Add(g.opts.Duration))
	defer cancel()

	if err := g.preflight(runCtx); err != nil {
		if ctx.Err() != nil {
			return &Result{Status: constants.LoadTestStatusCancelled}
		}
		logger.WarnCtx(ctx, "load test %d target %s unreachable: %v", g.loadTestID, g.opts.TargetURL, err)
		return &Result{
			Status:       constants.LoadTestStatusFailed,
			ErrorMessage: fmt.Sprintf("target unreachable: %v", err),
		}
	}

	stopSampler := make(chan struct{})
	var samplerWg sync.WaitGroup
	samplerWg.Add(1)
	go func() {
		defer samplerWg.Done()
		g.sampleLoop(runCtx, stopSampler)
	}()

	g.flood(runCtx)

	close(stopSampler)
	samplerWg.Wait()

	// final sample, taken even after cancellation
	g.sample(context.WithoutCancel(ctx))

	return g.result(ctx)
}

func (g *Generator) preflight(ctx context.Context) error {
	reqCtx, cancel := context.WithTimeout(ctx, g.opts.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, g.opts.TargetURL, nil)
	if err != nil {
		return err
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	// any HTTP answer means the target is reachable
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return nil
}

// flood dispatches at most TotalRequests jobs to Concurrency workers, paced at
// TotalRequests/Duration per second
func (g *Generator) flood(ctx context.Context) {
	perSecond := float64(g.opts.TotalRequests) / g.opts.Duration.Seconds()
	limiter := rate.NewLimiter(rate.Limit(perSecond), 1)

	jobs := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < g.opts.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range jobs {
				g.fire(ctx)
			}
		}()
	}

dispatch:
	for issued := 0; issued < g.opts.TotalRequests; issued++ {
		// fails fast when the next slot lies beyond the deadline
		if err := limiter.Wait(ctx); err != nil {
			break
		}
		select {
		case jobs <- struct{}{}:
		case <-ctx.Done():
			break dispatch
		}
	}
	close(jobs)
	wg.Wait()
}

func (g *Generator) fire(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	g.counters.Begin()

	reqCtx, cancel := context.WithTimeout(ctx, g.opts.RequestTimeout)
	defer cancel()

	start := time.Now()
	err := g.get(reqCtx)
	switch {
	case err == nil:
		g.counters.Complete(time.Since(start))
		monitoring.LoadTestRequests.WithLabelValues(outcomeCompleted).Inc()
	case ctx.Err() != nil:
		g.counters.Abandon()
		monitoring.LoadTestRequests.WithLabelValues(outcomeAbandoned).Inc()
	default:
		g.counters.Fail()
		monitoring.LoadTestRequests.WithLabelValues(outcomeFailed).Inc()
	}
}

func (g *Generator) get(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.opts.TargetURL, nil)
	if err != nil {
		return err
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

func (g *Generator) sampleLoop(ctx context.Context, stop <-chan struct{}) {
	ticker := time.NewTicker(g.opts.SampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.sample(context.WithoutCancel(ctx))
		}
	}
}

// sample records one metric point: target usage plus a counter snapshot
func (g *Generator) sample(ctx context.Context) *interfaces.LoadTestMetric {
	snap := g.counters.Snapshot()
	m := &interfaces.LoadTestMetric{
		LoadTestID:        g.loadTestID,
		Timestamp:         g.now(),
		RequestsSent:      snap.Sent,
		RequestsCompleted: snap.Completed,
		RequestsFailed:    snap.Failed,
		ActiveRequests:    snap.Active,
	}
	if g.metrics != nil {
		usage, err := g.metrics.Sample(ctx, g.containerID)
		if err != nil {
			logger.WarnCtx(ctx, "load test %d: failed to sample %s: %v", g.loadTestID, g.containerID, err)
		} else {
			m.CPUPercent = usage.CPUPercent
			m.MemoryMB = usage.MemoryMB
		}
	}

	g.mu.Lock()
	g.history = append(g.history, m)
	g.mu.Unlock()

	if g.sink != nil {
		if err := g.sink.RecordSample(ctx, m); err != nil {
			logger.WarnCtx(ctx, "load test %d: failed to persist sample: %v", g.loadTestID, err)
		}
	}
	if g.hub != nil {
		g.hub.Publish(Event{Type: EventMetric, Metric: m})
	}
	return m
}

func (g *Generator) result(ctx context.Context) *Result {
	snap := g.counters.Snapshot()
	res := &Result{Counters: snap}

	if ctx.Err() != nil {
		res.Status = constants.LoadTestStatusCancelled
	} else {
		res.Status = Outcome(snap, g.opts.FailureRatio)
		if res.Status == constants.LoadTestStatusFailed {
			res.ErrorMessage = fmt.Sprintf("failure ratio %.2f exceeded %.2f (%d failed, %d completed)",
				snap.FailureRatio(), g.opts.FailureRatio, snap.Failed, snap.Completed)
		}
	}

	if snap.ResponseCount > 0 {
		avg := durationMs(snap.ResponseTotal) / float64(snap.ResponseCount)
		lo := durationMs(snap.ResponseMin)
		hi := durationMs(snap.ResponseMax)
		res.AvgResponseTimeMs, res.MinResponseTimeMs, res.MaxResponseTimeMs = &avg, &lo, &hi
	}

	history := g.History()
	if len(history) > 0 {
		peakCPU, peakMem := history[0].CPUPercent, history[0].MemoryMB
		for _, m := range history[1:] {
			peakCPU = max(peakCPU, m.CPUPercent)
			peakMem = max(peakMem, m.MemoryMB)
		}
		res.PeakCPUPercent, res.PeakMemoryMB = &peakCPU, &peakMem
	}
	return res
}

func durationMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
