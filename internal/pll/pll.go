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

// Package pll steers the system clock from the combiner's offset
// estimates using a four-mode proportional-integral loop: an initial
// mode that waits for a trustworthy estimate, a step to cancel any
// gross initial offset, a settling mode, and a track mode that feeds
// the local oscillator's frequency correction.
package pll

import (
	"math"

	"github.com/bsdphk/ntimed/internal/timebase"
	"github.com/bsdphk/ntimed/internal/tstamp"
)

// Mode is the loop's current state.
type Mode int

const (
	ModeStartup Mode = iota
	ModeWaitStep
	ModeWaitTrack
	ModeTrack
)

func (m Mode) String() string {
	switch m {
	case ModeStartup:
		return "startup"
	case ModeWaitStep:
		return "wait-step"
	case ModeWaitTrack:
		return "wait-track"
	case ModeTrack:
		return "track"
	default:
		return "unknown"
	}
}

// Config carries the tweakable loop constants, normally sourced from
// a params.Defaults.
type Config struct {
	PInit       float64
	IInit       float64
	CaptureTime float64
	StiffenRate float64
	PLimit      float64
}

// Report is one call's worth of diagnostic output, shaped after the
// "PLL mode dt offset weight -> p_term dur integrator used_a used_b"
// trace line.
type Report struct {
	Mode       Mode
	Dt         float64
	PTerm      float64
	Dur        float64
	Integrator float64
	UsedA      float64
	UsedB      float64
}

// PLL is one clock's loop state. It is not safe for concurrent use.
type PLL struct {
	backend timebase.Backend

	integrator float64
	lastTime   tstamp.Timestamp
	mode       Mode
	a, b       float64
	t0         tstamp.Timestamp
	generation uint64
	haveGen    bool
}

// New returns a loop in its startup mode, steering backend.
func New(backend timebase.Backend) *PLL {
	return &PLL{backend: backend}
}

// Mode reports the loop's current state.
func (p *PLL) Mode() Mode { return p.mode }

// Update feeds one new (offset, weight) estimate from the combiner
// through the loop. offset is seconds the local clock is ahead of
// true time (so a positive offset means the loop should slow down);
// weight is the combiner's peak density for that estimate, used only
// as a coarse trust threshold, not a proportional scale.
func (p *PLL) Update(offset, weight float64, cfg Config) Report {
	t0 := p.backend.Now()
	pTerm := 0.0
	dur := 0.0
	dt := 0.0
	usedA, usedB := 0.0, 0.0

	gen := p.backend.Generation()
	if !p.haveGen || gen != p.generation {
		p.mode = ModeStartup
		p.generation = gen
		p.haveGen = true
	}

	switch p.mode {
	case ModeStartup:
		p.t0 = t0
		p.mode = ModeWaitStep
		p.a = cfg.PInit
		p.b = 0.0

	case ModeWaitStep:
		rt := tstamp.Diff(t0, p.t0)
		if rt > 2.0 && weight > 3 {
			if math.Abs(offset) > 1e-3 {
				p.backend.Step(-offset)
			}
			p.mode = ModeWaitTrack
			p.t0 = t0
		}

	case ModeWaitTrack:
		rt := tstamp.Diff(t0, p.t0)
		if rt > 6.0 {
			p.b = p.a / cfg.IInit
			p.t0 = t0
			p.mode = ModeTrack
		}

	case ModeTrack:
		dt = tstamp.Diff(t0, p.lastTime)

		// Brute-force exploitation of the weight: ideally the
		// p/i terms would scale continuously with confidence, but
		// absent a good candidate function this just keeps a
		// distant, noisy source from overdriving the default loop.
		switch {
		case weight < 50:
			usedA, usedB = 3e-2, 5e-4
		case weight < 150:
			usedA, usedB = 6e-2, 1e-3
		default:
			rt := tstamp.Diff(t0, p.t0)
			if rt > cfg.CaptureTime && p.a > cfg.PLimit {
				p.a *= math.Pow(cfg.StiffenRate, dt)
				p.b *= math.Pow(cfg.StiffenRate, dt)
			}
			usedA, usedB = p.a, p.b
		}
		pTerm = -offset * usedA
		p.integrator += pTerm * usedB
		dur = dt
	}

	dur = math.Ceil(dur)

	clamp := dur * 500e-6
	if pTerm > clamp {
		pTerm = clamp
	}
	if pTerm < -clamp {
		pTerm = -clamp
	}

	p.lastTime = t0
	if dur > 0.0 {
		p.backend.Adjust(pTerm, dur, p.integrator)
	}

	return Report{
		Mode:       p.mode,
		Dt:         dt,
		PTerm:      pTerm,
		Dur:        dur,
		Integrator: p.integrator,
		UsedA:      usedA,
		UsedB:      usedB,
	}
}
