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

// Package timebase provides the pluggable clock source: the real
// kernel clock (UnixBackend), a read-only view of it (UnixPassiveBackend)
// and a virtual clock driven purely by scheduler sleeps (SimBackend).
package timebase

import (
	"github.com/bsdphk/ntimed/internal/tstamp"
)

// Backend is the contract every timebase implementation satisfies.
type Backend interface {
	// Now returns the current time.
	Now() tstamp.Timestamp
	// Sleep blocks for dur seconds (or advances virtual time by dur),
	// returning true iff interrupted by a signal.
	Sleep(dur float64) bool
	// Step adds offset seconds to the clock immediately and bumps the
	// clock generation.
	Step(offset float64)
	// Adjust applies frequency (plus offset/duration while duration
	// seconds remain) to the clock's steering frequency.
	Adjust(offset, duration, frequency float64)
	// Generation returns the current clock-step generation counter.
	Generation() uint64
}

// Ticker is the minimal one-shot scheduling capability UnixBackend
// needs in order to restore its steering frequency once an Adjust
// window elapses, without timebase importing the scheduler package.
type Ticker interface {
	// ScheduleOnce arranges for fn to run delta seconds from now, and
	// returns a function that cancels it if it hasn't fired yet.
	ScheduleOnce(delta float64, fn func()) (cancel func())
}
