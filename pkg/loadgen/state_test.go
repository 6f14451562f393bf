package loadgen

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"intelliscale/pkg/constants"
)

func TestTransition(t *testing.T) {
	all := []constants.LoadTestStatus{
		constants.LoadTestStatusPending,
		constants.LoadTestStatusRunning,
		constants.LoadTestStatusCompleted,
		constants.LoadTestStatusFailed,
		constants.LoadTestStatusCancelled,
	}
	allowed := map[[2]constants.LoadTestStatus]bool{
		{constants.LoadTestStatusPending, constants.LoadTestStatusRunning}:   true,
		{constants.LoadTestStatusPending, constants.LoadTestStatusFailed}:    true,
		{constants.LoadTestStatusRunning, constants.LoadTestStatusCompleted}: true,
		{constants.LoadTestStatusRunning, constants.LoadTestStatusFailed}:    true,
		{constants.LoadTestStatusRunning, constants.LoadTestStatusCancelled}: true,
	}

	for _, from := range all {
		for _, to := range all {
			err := Transition(from, to)
			if allowed[[2]constants.LoadTestStatus{from, to}] {
				assert.NoError(t, err, "%s -> %s", from, to)
			} else {
				assert.ErrorIs(t, err, ErrInvalidTransition, "%s -> %s", from, to)
			}
		}
	}
}

func TestOutcome(t *testing.T) {
	tests := []struct {
		name string
		snap Snapshot
		want constants.LoadTestStatus
	}{
		{"nothing finished", Snapshot{}, constants.LoadTestStatusCompleted},
		{"all good", Snapshot{Completed: 10}, constants.LoadTestStatusCompleted},
		{"exactly half", Snapshot{Completed: 5, Failed: 5}, constants.LoadTestStatusCompleted},
		{"failures dominate", Snapshot{Completed: 4, Failed: 6}, constants.LoadTestStatusFailed},
		{"abandoned ignored", Snapshot{Completed: 3, Failed: 1, Abandoned: 50}, constants.LoadTestStatusCompleted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Outcome(tt.snap, 0.5))
		})
	}
}

func TestCounters(t *testing.T) {
	c := NewCounters()
	for i := 0; i < 4; i++ {
		c.Begin()
	}
	c.Complete(30 * time.Millisecond)
	c.Complete(10 * time.Millisecond)
	c.Fail()

	snap := c.Snapshot()
	assert.Equal(t, int64(4), snap.Sent)
	assert.Equal(t, int64(1), snap.Active)
	assert.Equal(t, 10*time.Millisecond, snap.ResponseMin)
	assert.Equal(t, 30*time.Millisecond, snap.ResponseMax)
	assert.Equal(t, int64(2), snap.ResponseCount)

	c.Abandon()
	snap = c.Snapshot()
	assert.Equal(t, int64(0), snap.Active)
	assert.Equal(t, int64(1), snap.Abandoned)
	assert.InDelta(t, 1.0/3.0, snap.FailureRatio(), 1e-9)
}
