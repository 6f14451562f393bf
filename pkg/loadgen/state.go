package loadgen

import (
	"errors"
	"fmt"

	"intelliscale/pkg/constants"
)

// ErrInvalidTransition returned for transitions the load test state machine forbids
var ErrInvalidTransition = errors.New("invalid load test state transition")

// Transition checks from -> to against the state machine
func Transition(from, to constants.LoadTestStatus) error {
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// Outcome terminal status for a run that was not cancelled
func Outcome(snap Snapshot, failureRatio float64) constants.LoadTestStatus {
	if snap.FailureRatio() > failureRatio {
		return constants.LoadTestStatusFailed
	}
	return constants.LoadTestStatusCompleted
}
