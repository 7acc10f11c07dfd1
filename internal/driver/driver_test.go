package driver

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatsRoundTrip(t *testing.T) {
	s := NewStats()
	s.UpdateCounterBy(CounterPollsSent, 3)
	s.UpdateCounterBy(CounterPollsSent, 2)
	s.SetCounter(CounterRepliesOK, 7)

	got := s.Get()
	require.EqualValues(t, 5, got[CounterPollsSent])
	require.EqualValues(t, 7, got[CounterRepliesOK])

	s.Reset()
	got = s.Get()
	require.EqualValues(t, 0, got[CounterPollsSent])
	require.EqualValues(t, 0, got[CounterRepliesOK])
}

func TestStatsGetIsACopy(t *testing.T) {
	s := NewStats()
	s.SetCounter(CounterPollsSent, 1)
	snap := s.Get()
	snap[CounterPollsSent] = 99
	require.EqualValues(t, 1, s.Get()[CounterPollsSent])
}
