package timebase

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bsdphk/ntimed/internal/tstamp"
)

func TestSimBackendSleepAdvances(t *testing.T) {
	sb := NewSimBackend()
	start := sb.Now()
	sb.Sleep(10)
	require.InDelta(t, 10.0, tstamp.Diff(sb.Now(), start), 1e-9)
}

func TestSimBackendStepBumpsGeneration(t *testing.T) {
	sb := NewSimBackend()
	require.EqualValues(t, 0, sb.Generation())
	sb.Step(0.2)
	require.EqualValues(t, 1, sb.Generation())
	require.InDelta(t, 0.2, sb.Delta, 1e-9)
}

func TestSimBackendKernelPLLTick(t *testing.T) {
	sb := NewSimBackend()
	sb.Adjust(10, 10, 0.0)
	for i := 0; i < 10; i++ {
		sb.KernelPLLTick()
	}
	require.InDelta(t, 0.0, sb.adjDur, 1e-9)
	require.InDelta(t, 0.0, sb.adjOffset, 1e-6)
}

func TestSimBackendBump(t *testing.T) {
	sb := NewSimBackend()
	sb.Bump(1e-4, 0.05)
	require.InDelta(t, 0.05, sb.Delta, 1e-9)
	sb.KernelPLLTick()
	require.InDelta(t, 1e-4, sb.freq, 1e-12)
}

func TestSimBackendSetNowAnchorsWithoutTouchingDeltaOrGeneration(t *testing.T) {
	sb := NewSimBackend()
	sb.Step(0.5) // bumps Delta and Generation so we can assert they're untouched
	target := tstamp.FromDouble(1_700_000_000)

	sb.SetNow(target)

	require.InDelta(t, 0.0, tstamp.Diff(sb.Now(), target), 1e-9)
	require.InDelta(t, 0.5, sb.Delta, 1e-9)
	require.EqualValues(t, 1, sb.Generation())
}
