package loadgen

import (
	"sync"
	"time"
)

// Snapshot point-in-time copy of a run's counters
type Snapshot struct {
	Sent      int64 `json:"requests_sent"`
	Completed int64 `json:"requests_completed"`
	Failed    int64 `json:"requests_failed"`
	Active    int64 `json:"active_requests"`
	Abandoned int64 `json:"requests_abandoned"`

	// response times of completed requests
	ResponseCount int64         `json:"-"`
	ResponseTotal time.Duration `json:"-"`
	ResponseMin   time.Duration `json:"-"`
	ResponseMax   time.Duration `json:"-"`
}

// FailureRatio failed / (completed + failed), 0 when nothing finished
func (s Snapshot) FailureRatio() float64 {
	finished := s.Completed + s.Failed
	if finished == 0 {
		return 0
	}
	return float64(s.Failed) / float64(finished)
}

// Counters request accumulator owned by one run
type Counters struct {
	mu   sync.Mutex
	snap Snapshot
}

// NewCounters creates zeroed counters
func NewCounters() *Counters {
	return &Counters{}
}

// Begin marks one request as issued and in flight
func (c *Counters) Begin() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap.Sent++
	c.snap.Active++
}

// Complete records a successful request
func (c *Counters) Complete(elapsed time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap.Active--
	c.snap.Completed++

	s := &c.snap
	if s.ResponseCount == 0 || elapsed < s.ResponseMin {
		s.ResponseMin = elapsed
	}
	if elapsed > s.ResponseMax {
		s.ResponseMax = elapsed
	}
	s.ResponseCount++
	s.ResponseTotal += elapsed
}

// Fail records a failed request
func (c *Counters) Fail() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap.Active--
	c.snap.Failed++
}

// Abandon records a request cut off by cancellation or the deadline.
// It stays in Sent but counts neither as completed nor as failed.
func (c *Counters) Abandon() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap.Active--
	c.snap.Abandoned++
}

// Snapshot returns a consistent copy
func (c *Counters) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}
