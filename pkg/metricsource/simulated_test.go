package metricsource

import (
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulatedSource_ValuesStayInRange(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("unpinned samples stay within the idle ranges", prop.ForAll(
		func(seed int64, id string) bool {
			src := NewSimulatedSourceWithSeed(seed)
			s, err := src.Sample(context.Background(), id)
			if err != nil {
				return false
			}
			return s.CPUPercent >= minCPUPercent && s.CPUPercent <= maxCPUPercent &&
				s.MemoryPercent >= minMemoryPercent && s.MemoryPercent <= maxMemoryPercent &&
				s.MemoryMB >= minMemoryMB && s.MemoryMB <= maxMemoryMB
		},
		gen.Int64(),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

func TestSimulatedSource_PinOverridesNonZeroFields(t *testing.T) {
	src := NewSimulatedSourceWithSeed(1)
	ctx := context.Background()

	src.Pin("web", Override{CPUPercent: 95})
	s, err := src.Sample(ctx, "web")
	require.NoError(t, err)
	assert.Equal(t, 95.0, s.CPUPercent)
	assert.GreaterOrEqual(t, s.MemoryPercent, minMemoryPercent)

	_, ok := src.Pinned("web")
	assert.True(t, ok)

	src.Unpin("web")
	s, err = src.Sample(ctx, "web")
	require.NoError(t, err)
	assert.LessOrEqual(t, s.CPUPercent, maxCPUPercent)
}

func TestSimulatedSource_NetworkCountersMonotone(t *testing.T) {
	src := NewSimulatedSourceWithSeed(42)
	ctx := context.Background()

	first, err := src.Sample(ctx, "web")
	require.NoError(t, err)
	second, err := src.Sample(ctx, "web")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, second.NetworkRxBytes, first.NetworkRxBytes)
	assert.GreaterOrEqual(t, second.NetworkTxBytes, first.NetworkTxBytes)
}

func TestSimulatedSource_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewSimulatedSourceWithSeed(1).Sample(ctx, "web")
	assert.ErrorIs(t, err, context.Canceled)
}
