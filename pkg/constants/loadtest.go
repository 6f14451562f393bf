package constants

// LoadTestStatus load test lifecycle state
type LoadTestStatus string

const (
	LoadTestStatusPending   LoadTestStatus = "pending"
	LoadTestStatusRunning   LoadTestStatus = "running"
	LoadTestStatusCompleted LoadTestStatus = "completed"
	LoadTestStatusFailed    LoadTestStatus = "failed"
	LoadTestStatusCancelled LoadTestStatus = "cancelled"
)

func (s LoadTestStatus) String() string {
	return string(s)
}

// IsTerminal reports whether no further transitions are possible
func (s LoadTestStatus) IsTerminal() bool {
	switch s {
	case LoadTestStatusCompleted, LoadTestStatusFailed, LoadTestStatusCancelled:
		return true
	}
	return false
}

// CanTransitionTo reports whether s -> next is a legal transition
func (s LoadTestStatus) CanTransitionTo(next LoadTestStatus) bool {
	switch s {
	case LoadTestStatusPending:
		return next == LoadTestStatusRunning || next == LoadTestStatusFailed
	case LoadTestStatusRunning:
		return next == LoadTestStatusCompleted || next == LoadTestStatusFailed || next == LoadTestStatusCancelled
	}
	return false
}

// Load test configuration bounds
const (
	LoadTestMinTotalRequests = 1
	LoadTestMaxTotalRequests = 1000
	LoadTestMinConcurrency   = 1
	LoadTestMaxConcurrency   = 50
	LoadTestMinDuration      = 10
	LoadTestMaxDuration      = 300
)
