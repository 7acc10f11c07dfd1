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
	"fmt"
	"os"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/bsdphk/ntimed/internal/combiner"
	"github.com/bsdphk/ntimed/internal/driver"
	"github.com/bsdphk/ntimed/internal/params"
	"github.com/bsdphk/ntimed/internal/peer"
	"github.com/bsdphk/ntimed/internal/pll"
	"github.com/bsdphk/ntimed/internal/timebase"
	"github.com/bsdphk/ntimed/internal/trace"
	"github.com/bsdphk/ntimed/internal/tstamp"
	"github.com/bsdphk/ntimed/internal/wire"
)

// bump is a scheduled one-shot oscillator perturbation parsed from
// the -B when,freq,phase flag.
type bump struct {
	when    tstamp.Timestamp
	freq    float64
	phase   float64
	applied bool
}

// parseBumpSpec parses "when,freq,phase" (all float seconds/Hz) into
// a pending bump. An empty spec means no bump is scheduled.
func parseBumpSpec(spec string) (*bump, error) {
	if spec == "" {
		return nil, nil
	}
	parts := strings.Split(spec, ",")
	if len(parts) != 3 {
		return nil, fmt.Errorf("bump spec %q: want when,freq,phase", spec)
	}
	when, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return nil, fmt.Errorf("bump spec %q: bad when: %w", spec, err)
	}
	freq, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return nil, fmt.Errorf("bump spec %q: bad freq: %w", spec, err)
	}
	phase, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return nil, fmt.Errorf("bump spec %q: bad phase: %w", spec, err)
	}
	return &bump{when: tstamp.FromDouble(when), freq: freq, phase: phase}, nil
}

// simInjector feeds a recorded trace's "Now"/"Poll" records through a
// simulated clock, peer set, combiner and PLL exactly as the live
// driver's pollTick would, except the "wire" packets are reconstructed
// from the trace's relative-timestamp fields rather than actually
// sent and received.
type simInjector struct {
	backend  *timebase.SimBackend
	set      *peer.Set
	comb     *combiner.Combiner
	pll      *pll.PLL
	defaults *params.Defaults
	trace    *trace.Writer
	bump     *bump
	anchored bool
}

func (si *simInjector) findPeer(hostname, ip string) *peer.Peer {
	for _, p := range si.set.Peers() {
		if p.Hostname == hostname && p.IP == ip {
			return p
		}
	}
	return nil
}

// AdvanceTo implements trace.Injector. The first call anchors the
// simulated clock to t outright; later calls advance it second by
// second, running the simulated 1 Hz kernel-PLL tick at each whole
// second crossed, and apply the scheduled bump (if any) once the
// virtual clock reaches it.
func (si *simInjector) AdvanceTo(t, _ string) error {
	secs, err := strconv.ParseFloat(t, 64)
	if err != nil {
		return fmt.Errorf("sim-client: bad Now timestamp %q: %w", t, err)
	}
	target := tstamp.FromDouble(secs)

	if !si.anchored {
		si.backend.SetNow(target)
		si.anchored = true
		return nil
	}

	for {
		remaining := tstamp.Diff(target, si.backend.Now())
		if remaining <= 0 {
			return nil
		}
		step := remaining
		if step > 1.0 {
			step = 1.0
		}
		before := si.backend.Now().Sec
		si.backend.Sleep(step)
		if si.backend.Now().Sec != before {
			si.backend.KernelPLLTick()
		}
		if si.bump != nil && !si.bump.applied && tstamp.Diff(si.backend.Now(), si.bump.when) >= 0 {
			si.backend.Bump(si.bump.freq, si.bump.phase)
			si.bump.applied = true
		}
		if si.trace != nil {
			si.trace.Now(si.backend.Now(), "sim")
		}
	}
}

// InjectPoll implements trace.Injector: it rebuilds the wire packet
// the recorded "Poll" line describes and runs it through the named
// peer's filter, then the shared combiner and PLL, exactly as a live
// poll round would.
func (si *simInjector) InjectPoll(hostname, ip string, fields []string) error {
	p := si.findPeer(hostname, ip)
	if p == nil {
		log.Debugf("sim-client: Poll record for unknown peer %s %s, ignored", hostname, ip)
		return nil
	}

	pkt, err := decodeTraceFields(fields)
	if err != nil {
		return fmt.Errorf("sim-client: %s %s: %w", hostname, ip, err)
	}

	// Re-base the recorded origin/rx instants by the simulated clock's
	// cumulative correction, exactly as simfile_poll() does in the
	// original simulator: otherwise the filter recomputes the same
	// recorded offset forever and the PLL never observes its own
	// corrections taking effect.
	pkt.Origin = tstamp.Add(pkt.Origin, si.backend.Delta)
	pkt.RxTime = tstamp.Add(pkt.RxTime, si.backend.Delta)

	sample, err := p.Filter.Update(si.backend.Generation(), pkt, si.defaults.NTPFilterAverage, si.defaults.NTPFilterThreshold)
	if err != nil {
		log.Debugf("sim-client: %s %s rejected: %v", hostname, ip, err)
		return nil
	}
	if si.trace != nil {
		si.trace.Filter(hostname, ip, sample.Branch, sample.Lo, sample.Mid, sample.Hi,
			sample.LoLim, sample.AMid, sample.HiLim)
	}
	if err := p.Source.Update(sample.Trust, sample.Lo, sample.Mid, sample.Hi, si.backend.Generation()); err != nil {
		return fmt.Errorf("sim-client: %s %s: combiner update: %w", hostname, ip, err)
	}

	res, ok := si.comb.FindPeak(si.backend.Generation(), int(si.defaults.CombinerQuorum))
	if !ok {
		return nil
	}
	report := si.pll.Update(res.Offset, res.Density, pll.Config{
		PInit:       si.defaults.PLLStdPInit,
		IInit:       si.defaults.PLLStdIInit,
		CaptureTime: si.defaults.PLLStdCaptureTime,
		StiffenRate: si.defaults.PLLStdStiffenRate,
		PLimit:      si.defaults.PLLStdPLimit,
	})
	if si.trace != nil {
		si.trace.PLL(int(report.Mode), report.Dt, res.Offset, res.Density,
			report.PTerm, report.Dur, report.Integrator, report.UsedA, report.UsedB)
	}
	return nil
}

// decodeTraceFields rebuilds a wire.Packet from one Poll/NTP_Packet
// record's 14 fields: leap ver mode str poll prec delay disp refid
// ref-orig origin recv-orig xmit-recv rx-xmit.
func decodeTraceFields(f []string) (*wire.Packet, error) {
	if len(f) != 14 {
		return nil, fmt.Errorf("want 14 packet fields, got %d", len(f))
	}
	leap, err := strconv.ParseUint(f[0], 10, 8)
	if err != nil {
		return nil, fmt.Errorf("leap: %w", err)
	}
	version, err := strconv.ParseUint(f[1], 10, 8)
	if err != nil {
		return nil, fmt.Errorf("version: %w", err)
	}
	mode, err := strconv.ParseUint(f[2], 10, 8)
	if err != nil {
		return nil, fmt.Errorf("mode: %w", err)
	}
	stratum, err := strconv.ParseUint(f[3], 10, 8)
	if err != nil {
		return nil, fmt.Errorf("stratum: %w", err)
	}
	pollExp, err := strconv.ParseInt(f[4], 10, 8)
	if err != nil {
		return nil, fmt.Errorf("poll: %w", err)
	}
	precision, err := strconv.ParseInt(f[5], 10, 8)
	if err != nil {
		return nil, fmt.Errorf("precision: %w", err)
	}
	delay, err := parseAbsTimestamp(f[6])
	if err != nil {
		return nil, fmt.Errorf("delay: %w", err)
	}
	disp, err := parseAbsTimestamp(f[7])
	if err != nil {
		return nil, fmt.Errorf("dispersion: %w", err)
	}
	var refID uint32
	if _, err := fmt.Sscanf(f[8], "0x%08x", &refID); err != nil {
		return nil, fmt.Errorf("refid: %w", err)
	}
	refMinusOrig, err := strconv.ParseFloat(f[9], 64)
	if err != nil {
		return nil, fmt.Errorf("ref-orig: %w", err)
	}
	origin, err := parseAbsTimestamp(f[10])
	if err != nil {
		return nil, fmt.Errorf("origin: %w", err)
	}
	recvMinusOrig, err := strconv.ParseFloat(f[11], 64)
	if err != nil {
		return nil, fmt.Errorf("recv-orig: %w", err)
	}
	xmitMinusRecv, err := strconv.ParseFloat(f[12], 64)
	if err != nil {
		return nil, fmt.Errorf("xmit-recv: %w", err)
	}
	rxMinusXmit, err := strconv.ParseFloat(f[13], 64)
	if err != nil {
		return nil, fmt.Errorf("rx-xmit: %w", err)
	}

	receive := tstamp.Add(origin, recvMinusOrig)
	transmit := tstamp.Add(receive, xmitMinusRecv)
	rx := tstamp.Add(transmit, rxMinusXmit)
	reference := tstamp.Add(origin, refMinusOrig)

	pkt := &wire.Packet{
		Leap: uint8(leap), Version: uint8(version), Mode: uint8(mode),
		Stratum: uint8(stratum), Poll: int8(pollExp), Precision: int8(precision),
		RootDelay: delay, RootDispersion: disp,
		Reference: reference, Origin: origin, Receive: receive, Transmit: transmit,
		RxTime: rx,
	}
	copy(pkt.RefID[:], []byte{byte(refID >> 24), byte(refID >> 16), byte(refID >> 8), byte(refID)})
	return pkt, nil
}

func parseAbsTimestamp(s string) (tstamp.Timestamp, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return tstamp.Timestamp{}, err
	}
	if v < 0 {
		return tstamp.Timestamp{}, fmt.Errorf("negative absolute timestamp %q", s)
	}
	return tstamp.FromDouble(v), nil
}

// runSimClientMode replays tracePath against a simulated clock,
// applying an optional -B when,freq,phase oscillator perturbation,
// and optionally echoes a diagnostic trace to traceOut. Parameter
// tweaks from -p were already applied to defaults by the caller, so
// the parameter table itself isn't needed here.
func runSimClientMode(tracePath, traceOut, bumpSpec string, defaults *params.Defaults) error {
	f, err := os.Open(tracePath)
	if err != nil {
		driver.Fail("sim-client: %v", err)
	}
	defer f.Close()

	header, err := trace.NewReader(f)
	if err != nil {
		driver.Fail("sim-client: %v", err)
	}
	if _, err := f.Seek(0, 0); err != nil {
		driver.Fail("sim-client: rewind trace: %v", err)
	}

	backend := timebase.NewSimBackend()
	comb := combiner.New()
	set := peer.NewSet(comb)
	for _, pid := range header.PeerIDs {
		set.AddKnown(pid.Hostname, pid.IP)
	}

	b, err := parseBumpSpec(bumpSpec)
	if err != nil {
		driver.Fail("sim-client: %v", err)
	}

	w, closeTrace, err := openTraceWriter(traceOut)
	if err != nil {
		driver.Fail("sim-client: %v", err)
	}
	defer closeTrace()

	inj := &simInjector{
		backend:  backend,
		set:      set,
		comb:     comb,
		pll:      pll.New(backend),
		defaults: defaults,
		trace:    w,
		bump:     b,
	}

	player, err := trace.NewPlayer(f, inj)
	if err != nil {
		driver.Fail("sim-client: %v", err)
	}
	if err := player.Run(); err != nil {
		driver.Fail("sim-client: %v", err)
	}

	log.Infof("sim-client: replay done, cumulative Time_Sim_delta=%.3e", backend.Delta)
	return nil
}
