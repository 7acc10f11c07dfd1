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

// Package driver wires the peer set, combiner, PLL, scheduler and
// parameter table into a single running steering client, and draws
// the line between recoverable runtime errors and fatal usage errors.
package driver

import (
	"context"
	"os"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/bsdphk/ntimed/internal/combiner"
	"github.com/bsdphk/ntimed/internal/params"
	"github.com/bsdphk/ntimed/internal/peer"
	"github.com/bsdphk/ntimed/internal/pll"
	"github.com/bsdphk/ntimed/internal/scheduler"
	"github.com/bsdphk/ntimed/internal/timebase"
	"github.com/bsdphk/ntimed/internal/trace"
	"github.com/bsdphk/ntimed/internal/udpio"
)

// Fail reports a fatal configuration/usage error and terminates the
// process with exit status 1. It is the only place in the driver that
// calls os.Exit; everything below it returns errors normally.
func Fail(format string, args ...any) {
	log.Errorf(format, args...)
	os.Exit(1)
}

// Driver owns every long-lived component of a running steering
// client.
type Driver struct {
	Backend     timebase.Backend
	Conn        *udpio.Conn
	Params      *params.Table
	Defaults    *params.Defaults
	PollTimeout time.Duration

	Peers    *peer.Set
	Combiner *combiner.Combiner
	PLL      *pll.PLL
	Sched    *scheduler.Scheduler
	Stats    *Stats

	// Trace, if non-nil, receives Now/NTP_Filter/PLL lines for every
	// poll round. Poll/NTP_Packet wire-level lines are only emitted by
	// poll-server mode, not the steering client.
	Trace *trace.Writer
}

// New wires a Driver around an already-open backend and UDP
// connection.
func New(backend timebase.Backend, conn *udpio.Conn, table *params.Table, defaults *params.Defaults, pollTimeout time.Duration) *Driver {
	c := combiner.New()
	peers := peer.NewSet(c)
	peers.PollPeriod = defaults.PollPeriod
	peers.InitDuration = defaults.InitDuration
	peers.InitPackets = defaults.InitPackets
	return &Driver{
		Backend:     backend,
		Conn:        conn,
		Params:      table,
		Defaults:    defaults,
		PollTimeout: pollTimeout,
		Peers:       peers,
		Combiner:    c,
		PLL:         pll.New(backend),
		Sched:       scheduler.New(backend),
		Stats:       NewStats(),
	}
}

// AddPeer resolves hostname and registers it in the peer set. A
// resolution failure is a config/usage error: the caller should treat
// it as fatal at startup via Fail.
func (d *Driver) AddPeer(ctx context.Context, hostname string) error {
	n, err := d.Peers.Add(ctx, hostname)
	if err != nil {
		return err
	}
	log.Infof("driver: added %q (%d address(es))", hostname, n)
	return nil
}

func (d *Driver) pllConfig() pll.Config {
	return pll.Config{
		PInit:       d.Defaults.PLLStdPInit,
		IInit:       d.Defaults.PLLStdIInit,
		CaptureTime: d.Defaults.PLLStdCaptureTime,
		StiffenRate: d.Defaults.PLLStdStiffenRate,
		PLimit:      d.Defaults.PLLStdPLimit,
	}
}

// pollTick polls the next peer in round-robin order, folds an
// accepted sample through the combiner and PLL, then reschedules
// itself at the peer set's next pacing interval.
func (d *Driver) pollTick(any) scheduler.Result {
	interval := d.Peers.NextInterval()
	d.Stats.UpdateCounterBy(CounterPollsSent, 1)

	if d.Trace != nil {
		d.Trace.Now(d.Backend.Now(), "poll")
	}

	p, sample, err := d.Peers.PollOnce(d.Conn, d.Backend, d.PollTimeout,
		d.Defaults.NTPFilterAverage, d.Defaults.NTPFilterThreshold)
	switch {
	case err != nil && p != nil:
		d.Stats.UpdateCounterBy(CounterRepliesDropped, 1)
		log.Debugf("driver: poll %s %s: %v", p.Hostname, p.IP, err)
	case err != nil:
		log.Debugf("driver: poll: %v", err)
	default:
		d.Stats.UpdateCounterBy(CounterRepliesOK, 1)
		log.Debugf("driver: poll %s %s trust=%.3f lo=%.3e mid=%.3e hi=%.3e branch=%d",
			p.Hostname, p.IP, sample.Trust, sample.Lo, sample.Mid, sample.Hi, sample.Branch)
		if d.Trace != nil {
			d.Trace.Filter(p.Hostname, p.IP, sample.Branch, sample.Lo, sample.Mid, sample.Hi,
				sample.LoLim, sample.AMid, sample.HiLim)
		}

		res, ok := d.Combiner.FindPeak(d.Backend.Generation(), int(d.Defaults.CombinerQuorum))
		if !ok {
			d.Stats.UpdateCounterBy(CounterCombinerNoQ, 1)
			if p.State == peer.StateActive {
				p.State = peer.StateAvailable
			}
		} else {
			p.State = peer.StateActive
			report := d.PLL.Update(res.Offset, res.Density, d.pllConfig())
			d.Stats.UpdateCounterBy(CounterPLLTicks, 1)
			log.Debugf("driver: PLL %s dt=%.3e offset=%.3e p_term=%.3e dur=%.3e",
				report.Mode, report.Dt, res.Offset, report.PTerm, report.Dur)
			if d.Trace != nil {
				d.Trace.PLL(int(report.Mode), report.Dt, res.Offset, res.Density,
					report.PTerm, report.Dur, report.Integrator, report.UsedA, report.UsedB)
			}
		}
	}
	if d.Trace != nil {
		d.Trace.Flush()
	}

	d.Sched.ScheduleRel(interval, 0, d.pollTick, nil, "peer poll")
	return scheduler.Done
}

// Run schedules the first poll and runs the scheduler loop until it
// exits (either the queue empties, a task fails, or sleep is
// interrupted by a signal).
func (d *Driver) Run() scheduler.Result {
	if len(d.Peers.Peers()) == 0 {
		Fail("driver: no peers configured")
	}
	d.Sched.ScheduleRel(0, 0, d.pollTick, nil, "peer poll")
	return d.Sched.Run()
}

// RepollNow cancels nothing (the scheduler has no way to peek a
// specific pending task) but immediately enqueues an extra poll,
// matching the SIGHUP "re-poll at the next scheduler turn" contract.
func (d *Driver) RepollNow() {
	d.Sched.ScheduleRel(0, 0, d.pollTick, nil, "SIGHUP re-poll")
}
