package scheduler

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bsdphk/ntimed/internal/timebase"
)

func TestRunOrdersByFireTime(t *testing.T) {
	tb := timebase.NewSimBackend()
	s := New(tb)

	var order []int
	s.ScheduleRel(3, 0, func(priv any) Result { order = append(order, priv.(int)); return Done }, 3, "c")
	s.ScheduleRel(1, 0, func(priv any) Result { order = append(order, priv.(int)); return Done }, 1, "a")
	s.ScheduleRel(2, 0, func(priv any) Result { order = append(order, priv.(int)); return Done }, 2, "b")

	require.Equal(t, OK, s.Run())
	require.Equal(t, []int{1, 2, 3}, order)
}

func TestRunTiesBreakByInsertionOrder(t *testing.T) {
	tb := timebase.NewSimBackend()
	s := New(tb)
	now := tb.Now()

	var order []string
	s.ScheduleAbs(now, 0, func(priv any) Result { order = append(order, priv.(string)); return Done }, "first", "x")
	s.ScheduleAbs(now, 0, func(priv any) Result { order = append(order, priv.(string)); return Done }, "second", "x")

	require.Equal(t, OK, s.Run())
	require.Equal(t, []string{"first", "second"}, order)
}

func TestCancelledTaskNeverFires(t *testing.T) {
	tb := timebase.NewSimBackend()
	s := New(tb)

	fired := false
	h := s.ScheduleRel(5, 0, func(any) Result { fired = true; return Done }, nil, "cancel-me")
	s.Cancel(h)

	require.Equal(t, OK, s.Run())
	require.False(t, fired)
}

func TestRunRepeatsTask(t *testing.T) {
	tb := timebase.NewSimBackend()
	s := New(tb)

	count := 0
	s.ScheduleRel(1, 1, func(any) Result {
		count++
		if count == 3 {
			return Done
		}
		return OK
	}, nil, "repeat")

	require.Equal(t, OK, s.Run())
	require.Equal(t, 3, count)
}

func TestRunPropagatesFail(t *testing.T) {
	tb := timebase.NewSimBackend()
	s := New(tb)
	s.ScheduleRel(0, 0, func(any) Result { return Fail }, nil, "boom")
	require.Equal(t, Fail, s.Run())
}

func TestCancelOfDeadHandlePanics(t *testing.T) {
	tb := timebase.NewSimBackend()
	s := New(tb)
	h := s.ScheduleRel(0, 0, func(any) Result { return Done }, nil, "once")
	require.Equal(t, OK, s.Run())
	require.Panics(t, func() { s.Cancel(h) })
}
