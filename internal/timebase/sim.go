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

package timebase

import (
	"math"

	"github.com/bsdphk/ntimed/internal/tstamp"
)

// SimBackend is a virtual clock that only advances when Sleep is
// called. It keeps a base frequency, a pending adjust window, and a
// cumulative Delta useful for post-processing a simulation trace.
type SimBackend struct {
	now        tstamp.Timestamp
	freq       float64
	freq0      float64
	adjOffset  float64
	adjDur     float64
	adjFreq    float64
	generation uint64

	// Delta is the cumulative amount the simulated clock has been
	// moved by Step and Adjust, exposed for trace post-processing.
	Delta float64
}

// NewSimBackend returns a SimBackend anchored 1,000,000 seconds after
// the UNIX epoch, matching the original simulator's starting point.
func NewSimBackend() *SimBackend {
	return &SimBackend{now: tstamp.FromDouble(1e6)}
}

// Now returns the virtual clock's current value.
func (s *SimBackend) Now() tstamp.Timestamp {
	return s.now
}

// SetNow anchors the virtual clock to t outright, without touching
// Delta or the generation counter. It exists for the trace replayer,
// which anchors the simulated clock to the first "Now" record rather
// than NewSimBackend's fixed default.
func (s *SimBackend) SetNow(t tstamp.Timestamp) {
	s.now = t
}

// Sleep advances the virtual clock by dur seconds and folds dur*freq
// into Delta. It never reports interruption.
func (s *SimBackend) Sleep(dur float64) bool {
	s.now = tstamp.Add(s.now, dur)
	s.Delta += dur * s.freq
	return false
}

// Step adds offset into Delta and bumps the clock generation.
func (s *SimBackend) Step(offset float64) {
	s.Delta += offset
	s.generation++
}

// Adjust records the requested steering window; the per-second
// residual-offset folding happens in KernelPLLTick, which the caller
// runs once per virtual second.
func (s *SimBackend) Adjust(offset, duration, frequency float64) {
	s.adjOffset = offset
	s.adjDur = math.Floor(duration)
	if s.adjOffset > 0.0 && s.adjDur == 0.0 {
		s.adjDur = 1.0
	}
	s.adjFreq = frequency
}

// Generation returns the current clock-step generation.
func (s *SimBackend) Generation() uint64 {
	return s.generation
}

// Bump injects a step in base frequency and/or phase, for test
// scenarios that need to perturb the simulated oscillator directly.
func (s *SimBackend) Bump(freqDelta, phaseDelta float64) {
	s.freq0 += freqDelta
	s.Delta += phaseDelta
}

// KernelPLLTick moves one second of residual Adjust offset into the
// steering frequency and decrements the remaining duration. It is
// meant to be scheduled once per virtual second by the caller,
// mirroring the original simulator's fixed 1 Hz kernel-PLL task.
func (s *SimBackend) KernelPLLTick() {
	s.freq = s.freq0 + s.adjFreq
	if s.adjDur > 0.0 {
		d := s.adjOffset / s.adjDur
		s.freq += d
		s.adjOffset -= d
		s.adjDur--
	}
}
