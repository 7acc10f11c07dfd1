//go:build !linux

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
	"sync/atomic"
	"time"

	"github.com/bsdphk/ntimed/internal/tstamp"
)

// UnixBackend is a non-Linux stand-in backed by the Go runtime clock;
// it cannot steer the kernel's NTP frequency state, which is
// Linux-specific (clock_adjtime(2)).
type UnixBackend struct {
	generation uint64
	ticker     Ticker
	cancelTick func()
}

// NewUnixBackend returns a non-steering stand-in backend.
func NewUnixBackend(ticker Ticker) *UnixBackend {
	return &UnixBackend{ticker: ticker}
}

// Now reads the Go runtime's wall clock.
func (u *UnixBackend) Now() tstamp.Timestamp {
	t := time.Now()
	return tstamp.FromNanosec(uint64(t.Unix()), int64(t.Nanosecond()))
}

// Step is a no-op placeholder outside Linux; it only bumps the generation.
func (u *UnixBackend) Step(float64) {
	atomic.AddUint64(&u.generation, 1)
}

// Adjust is a no-op placeholder outside Linux.
func (u *UnixBackend) Adjust(offset, duration, frequency float64) {
	if u.cancelTick != nil {
		u.cancelTick()
		u.cancelTick = nil
	}
	if duration > 0 {
		u.cancelTick = u.ticker.ScheduleOnce(duration, func() { u.cancelTick = nil })
	}
}

// Generation returns the current clock-step generation.
func (u *UnixBackend) Generation() uint64 { return atomic.LoadUint64(&u.generation) }

// Sleep blocks for dur seconds; it cannot observe signal interruption
// through time.Sleep and always reports uninterrupted.
func (u *UnixBackend) Sleep(dur float64) bool {
	if dur > 0 {
		time.Sleep(time.Duration(dur * float64(time.Second)))
	}
	return false
}

// UnixPassiveBackend is the non-Linux stand-in for the read-only backend.
type UnixPassiveBackend struct {
	inner *UnixBackend
}

// NewUnixPassiveBackend returns a read-only non-Linux stand-in.
func NewUnixPassiveBackend() *UnixPassiveBackend {
	return &UnixPassiveBackend{inner: &UnixBackend{}}
}

// Now reads the Go runtime's wall clock.
func (p *UnixPassiveBackend) Now() tstamp.Timestamp { return p.inner.Now() }

// Sleep blocks for dur seconds.
func (p *UnixPassiveBackend) Sleep(dur float64) bool { return p.inner.Sleep(dur) }

// Step panics: a passive backend must never steer the clock.
func (p *UnixPassiveBackend) Step(float64) {
	panic("timebase: Step called on a passive (poll-server) backend")
}

// Adjust panics: a passive backend must never steer the clock.
func (p *UnixPassiveBackend) Adjust(float64, float64, float64) {
	panic("timebase: Adjust called on a passive (poll-server) backend")
}

// Generation always reads 0: a passive backend never steps the clock.
func (p *UnixPassiveBackend) Generation() uint64 { return 0 }
