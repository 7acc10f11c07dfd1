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

package cmd

import (
	"context"
	"net"
	"time"

	"github.com/bsdphk/ntimed/internal/driver"
	"github.com/bsdphk/ntimed/internal/params"
	"github.com/bsdphk/ntimed/internal/scheduler"
	"github.com/bsdphk/ntimed/internal/timebase"
	"github.com/bsdphk/ntimed/internal/udpio"
)

// pollTimeout bounds how long the steering client waits for a reply
// to an outstanding request before moving on to the next peer.
const pollTimeout = 800 * time.Millisecond

// schedTicker adapts a scheduler.Scheduler to the timebase.Ticker
// capability UnixBackend needs to restore its steering frequency once
// an Adjust window elapses. The backend must exist before the
// scheduler can be built (the scheduler needs a timebase.Backend),
// and the scheduler must exist before the backend can use it, so the
// ticker is constructed first and back-filled once both sides exist.
type schedTicker struct {
	sched *scheduler.Scheduler
}

// ScheduleOnce implements timebase.Ticker.
func (t *schedTicker) ScheduleOnce(delta float64, fn func()) (cancel func()) {
	h := t.sched.ScheduleRel(delta, 0, func(any) scheduler.Result {
		fn()
		return scheduler.Done
	}, nil, "restore steering frequency")
	return func() { t.sched.Cancel(h) }
}

// runSteeringClient is the default mode: a live daemon that polls
// every named server, folds accepted samples through the combiner and
// the PLL, and steers the local kernel clock.
func runSteeringClient(servers []string, traceFile string, table *params.Table, defaults *params.Defaults) error {
	if len(servers) == 0 {
		driver.Fail("ntimed: no servers given")
	}

	ticker := &schedTicker{}
	backend := timebase.NewUnixBackend(ticker)

	conn, err := udpio.Listen(&net.UDPAddr{Port: 0})
	if err != nil {
		driver.Fail("ntimed: %v", err)
	}
	defer conn.Close()

	d := driver.New(backend, conn, table, defaults, pollTimeout)
	ticker.sched = d.Sched

	ctx := context.Background()
	for _, s := range servers {
		if err := d.AddPeer(ctx, s); err != nil {
			driver.Fail("ntimed: %v", err)
		}
	}

	w, closeTrace, err := openTraceWriter(traceFile)
	if err != nil {
		driver.Fail("ntimed: %v", err)
	}
	defer closeTrace()
	d.Trace = w

	notifyHUP(d.RepollNow)

	if ret := d.Run(); ret == scheduler.Fail {
		driver.Fail("ntimed: scheduler task failed")
	}
	return nil
}
