package combiner

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFindPeakSingleSourcePicksMid(t *testing.T) {
	c := New()
	s := c.AddSource()
	require.NoError(t, s.Update(1.0, -0.01, 0.0, 0.01, 1))

	res, ok := c.FindPeak(1, 1)
	require.True(t, ok)
	require.InDelta(t, 0.0, res.Offset, 1e-9)
	require.Equal(t, 1, res.Quorum)
}

func TestFindPeakAgreementBoostsDensity(t *testing.T) {
	c := New()
	a := c.AddSource()
	b := c.AddSource()
	require.NoError(t, a.Update(1.0, -0.01, 0.0, 0.01, 1))
	require.NoError(t, b.Update(1.0, -0.01, 0.0, 0.01, 1))

	res, ok := c.FindPeak(1, 2)
	require.True(t, ok)
	require.InDelta(t, 0.0, res.Offset, 1e-9)
	require.Equal(t, 2, res.Quorum)
}

func TestFindPeakQuorumNotMet(t *testing.T) {
	c := New()
	a := c.AddSource()
	require.NoError(t, a.Update(1.0, -0.01, 0.0, 0.01, 1))

	_, ok := c.FindPeak(1, 2)
	require.False(t, ok)
}

func TestFindPeakIgnoresStaleGeneration(t *testing.T) {
	c := New()
	a := c.AddSource()
	require.NoError(t, a.Update(1.0, -0.01, 0.0, 0.01, 1))

	_, ok := c.FindPeak(2, 1)
	require.False(t, ok)
}

func TestFindPeakIgnoresUnregisteredSource(t *testing.T) {
	c := New()
	_, ok := c.FindPeak(1, 1)
	require.False(t, ok)
}

func TestUpdateRejectsOutOfRangeTrust(t *testing.T) {
	c := New()
	s := c.AddSource()
	require.Error(t, s.Update(1.5, -0.01, 0.0, 0.01, 1))
	require.Error(t, s.Update(-0.1, -0.01, 0.0, 0.01, 1))
}

// These two disjoint, equal-width, equal-trust triangles are centered
// on values (0.0 and 8.0, with a 0.5-wide base) chosen so the
// peak-density arithmetic lands on the exact same float64 on both
// sides: this is a genuine bit-exact tie, not just a close call.
const (
	tieALow, tieAMid, tieAHigh = -0.25, 0.0, 0.25
	tieBLow, tieBMid, tieBHigh = 7.75, 8.0, 8.25
)

func TestFindPeakTiesBreakTowardSmallerX(t *testing.T) {
	c := New()
	a := c.AddSource()
	b := c.AddSource()
	require.NoError(t, a.Update(1.0, tieALow, tieAMid, tieAHigh, 1))
	require.NoError(t, b.Update(1.0, tieBLow, tieBMid, tieBHigh, 1))

	res, ok := c.FindPeak(1, 1)
	require.True(t, ok)
	require.InDelta(t, tieAMid, res.Offset, 1e-9)
}

func TestFindPeakTiesBreakTowardSmallerXRegardlessOfRegistrationOrder(t *testing.T) {
	c := New()
	b := c.AddSource()
	a := c.AddSource()
	// Same tie as above, but the smaller-x source is registered second,
	// so iteration order alone would otherwise pick the larger x first.
	require.NoError(t, b.Update(1.0, tieBLow, tieBMid, tieBHigh, 1))
	require.NoError(t, a.Update(1.0, tieALow, tieAMid, tieAHigh, 1))

	res, ok := c.FindPeak(1, 1)
	require.True(t, ok)
	require.InDelta(t, tieAMid, res.Offset, 1e-9)
}

func TestFindPeakDisagreeingSourcesPickDenserCluster(t *testing.T) {
	c := New()
	a := c.AddSource()
	b := c.AddSource()
	liar := c.AddSource()
	require.NoError(t, a.Update(1.0, -0.005, 0.0, 0.005, 1))
	require.NoError(t, b.Update(1.0, -0.004, 0.0, 0.004, 1))
	require.NoError(t, liar.Update(1.0, 0.995, 1.0, 1.005, 1))

	res, ok := c.FindPeak(1, 1)
	require.True(t, ok)
	require.InDelta(t, 0.0, res.Offset, 1e-3)
}
