package metricsource

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"intelliscale/pkg/interfaces"
)

// Value ranges reported for an idle simulated container
const (
	minCPUPercent    = 3.0
	maxCPUPercent    = 15.0
	minMemoryPercent = 10.0
	maxMemoryPercent = 30.0
	minMemoryMB      = 100.0
	maxMemoryMB      = 300.0
)

// Override pinned values for one container. Zero fields keep the random value.
type Override struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	MemoryMB      float64 `json:"memory_mb"`
}

// SimulatedSource produces bounded random metrics for simulated containers.
// Pinned overrides let demos and tests force threshold crossings.
type SimulatedSource struct {
	mu       sync.Mutex
	rnd      *rand.Rand
	pinned   map[string]Override
	networks map[string][2]uint64
	now      func() time.Time
}

var _ interfaces.MetricsSource = (*SimulatedSource)(nil)

// NewSimulatedSource creates simulated metrics source
func NewSimulatedSource() *SimulatedSource {
	return NewSimulatedSourceWithSeed(time.Now().UnixNano())
}

// NewSimulatedSourceWithSeed creates a deterministic simulated source
func NewSimulatedSourceWithSeed(seed int64) *SimulatedSource {
	return &SimulatedSource{
		rnd:      rand.New(rand.NewSource(seed)),
		pinned:   make(map[string]Override),
		networks: make(map[string][2]uint64),
		now:      time.Now,
	}
}

// Sample returns the current usage of a container
func (s *SimulatedSource) Sample(ctx context.Context, containerID string) (*interfaces.MetricSample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sample := &interfaces.MetricSample{
		ContainerID:   containerID,
		CPUPercent:    s.between(minCPUPercent, maxCPUPercent),
		MemoryPercent: s.between(minMemoryPercent, maxMemoryPercent),
		MemoryMB:      s.between(minMemoryMB, maxMemoryMB),
		Timestamp:     s.now(),
	}

	if o, ok := s.pinned[containerID]; ok {
		if o.CPUPercent > 0 {
			sample.CPUPercent = o.CPUPercent
		}
		if o.MemoryPercent > 0 {
			sample.MemoryPercent = o.MemoryPercent
		}
		if o.MemoryMB > 0 {
			sample.MemoryMB = o.MemoryMB
		}
	}

	// network counters only grow
	net := s.networks[containerID]
	net[0] += uint64(s.rnd.Intn(64 * 1024))
	net[1] += uint64(s.rnd.Intn(64 * 1024))
	s.networks[containerID] = net
	sample.NetworkRxBytes = net[0]
	sample.NetworkTxBytes = net[1]

	return sample, nil
}

// Pin fixes the values reported for a container until Unpin
func (s *SimulatedSource) Pin(containerID string, o Override) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pinned[containerID] = o
}

// Unpin returns a container to random values
func (s *SimulatedSource) Unpin(containerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pinned, containerID)
}

// Pinned returns the override of a container, if any
func (s *SimulatedSource) Pinned(containerID string) (Override, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.pinned[containerID]
	return o, ok
}

func (s *SimulatedSource) between(lo, hi float64) float64 {
	return lo + s.rnd.Float64()*(hi-lo)
}
