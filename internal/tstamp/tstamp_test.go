package tstamp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddDiffRoundTrip(t *testing.T) {
	base := FromDouble(1700000000.123456789)
	deltas := []float64{1, -1, 0.1, -0.1, 1e-3, -1e-3, 1e-6, -1e-6, 1e-9, -1e-9, 2, -2}
	for _, d := range deltas {
		got := Diff(Add(base, d), base)
		require.InDeltaf(t, d, got, 5e-10, "delta %g", d)
	}
}

func TestAddCarriesSeconds(t *testing.T) {
	base := Timestamp{Sec: 100, Frac: 0xFFFFFFFFFFFFFFFF}
	got := Add(base, 0.000000001)
	require.GreaterOrEqual(t, got.Sec, uint64(101))
}

func TestDiffFarApart(t *testing.T) {
	a := FromDouble(2000000000.5)
	b := FromDouble(1000000000.25)
	require.InDelta(t, 1000000000.25, Diff(a, b), 1e-6)
}

func TestString(t *testing.T) {
	ts := FromNanosec(42, 500000000)
	require.Equal(t, "42.500000000", ts.String())
}
