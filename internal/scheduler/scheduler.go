/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package scheduler implements the cooperative, single-threaded
// "todo-list": a fire-time ordered queue of deferred calls driving all
// periodic work (polling, PLL ticks, simulation advance).
package scheduler

import (
	"container/list"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/bsdphk/ntimed/internal/timebase"
	"github.com/bsdphk/ntimed/internal/tstamp"
)

// Result is the outcome of one task invocation.
type Result int

const (
	// OK reschedules the task at when+repeat if repeat != 0, else destroys it.
	OK Result = iota
	// Done destroys the task regardless of its repeat period.
	Done
	// Fail aborts the run loop, propagating Fail to the caller.
	Fail
	// Intr is never returned by a task; Run returns it when sleep is interrupted.
	Intr
)

// Func is a scheduled callback. priv is the opaque payload passed to
// Schedule{Abs,Rel}.
type Func func(priv any) Result

// Handle identifies a live scheduled task; it is invalidated by firing
// or by Cancel.
type Handle struct {
	elem *list.Element
}

type task struct {
	fn     Func
	priv   any
	when   tstamp.Timestamp
	repeat float64
	label  string
}

// Scheduler is a single-threaded, fire-time ordered task queue.
type Scheduler struct {
	tb timebase.Backend
	tl *list.List
}

// New returns an empty Scheduler driven by tb.
func New(tb timebase.Backend) *Scheduler {
	return &Scheduler{tb: tb, tl: list.New()}
}

func (s *Scheduler) insert(t *task) Handle {
	for e := s.tl.Front(); e != nil; e = e.Next() {
		cur := e.Value.(*task)
		if tstamp.Diff(cur.when, t.when) > 0.0 {
			return Handle{elem: s.tl.InsertBefore(t, e)}
		}
	}
	return Handle{elem: s.tl.PushBack(t)}
}

// ScheduleAbs schedules fn to fire at the absolute time when, repeating
// every repeat seconds (0 for one-shot).
func (s *Scheduler) ScheduleAbs(when tstamp.Timestamp, repeat float64, fn Func, priv any, label string) Handle {
	if repeat < 0 {
		panic("scheduler: repeat must be >= 0")
	}
	return s.insert(&task{fn: fn, priv: priv, when: when, repeat: repeat, label: label})
}

// ScheduleRel schedules fn to fire delta seconds from now, repeating
// every repeat seconds (0 for one-shot).
func (s *Scheduler) ScheduleRel(delta, repeat float64, fn Func, priv any, label string) Handle {
	if delta < 0 {
		panic("scheduler: delta must be >= 0")
	}
	when := tstamp.Add(s.tb.Now(), delta)
	return s.ScheduleAbs(when, repeat, fn, priv, label)
}

// Cancel removes h from the queue. Cancelling a handle that is not
// live (already fired, or from another Scheduler) is an invariant
// violation.
func (s *Scheduler) Cancel(h Handle) {
	if h.elem == nil {
		panic("scheduler: cancel of a dead handle")
	}
	for e := s.tl.Front(); e != nil; e = e.Next() {
		if e == h.elem {
			s.tl.Remove(e)
			return
		}
	}
	panic("scheduler: cancel of a handle not present in the queue")
}

// Run dequeues and fires tasks in fire-time order until the queue is
// empty or a task returns Fail. It returns OK, Fail or Intr.
func (s *Scheduler) Run() Result {
	for s.tl.Len() > 0 {
		e := s.tl.Front()
		t := e.Value.(*task)
		if interrupted := s.tb.Sleep(sleepDuration(s.tb.Now(), t.when)); interrupted {
			return Intr
		}
		log.Debugf("scheduler: firing %s at %s", t.label, t.when.String())
		ret := t.fn(t.priv)
		switch ret {
		case Fail:
			return Fail
		case Done:
			s.tl.Remove(e)
		case OK:
			s.tl.Remove(e)
			if t.repeat != 0.0 {
				t.when = tstamp.Add(t.when, t.repeat)
				s.insert(t)
			}
		default:
			panic(fmt.Sprintf("scheduler: invalid result %d from task %q", ret, t.label))
		}
	}
	return OK
}

func sleepDuration(now, when tstamp.Timestamp) float64 {
	d := tstamp.Diff(when, now)
	if d < 0 {
		d = 0
	}
	return d
}
