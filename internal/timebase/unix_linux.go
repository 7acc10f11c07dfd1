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
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"unsafe"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/bsdphk/ntimed/internal/tstamp"
)

// ppbToTimexPPM converts parts-per-billion frequency to the 2^-16 ppm
// units clock_adjtime expects. man clock_adjtime(2): struct timex's
// freq field is ppm with a 16-bit fractional part.
const ppbToTimexPPM = 65.536

// adjFrequency is linux/timex.h's ADJ_FREQUENCY mode bit.
const adjFrequency uint32 = 0x0002

// UnixBackend steers CLOCK_REALTIME via clock_adjtime(2). Generation
// is bumped on every Step.
type UnixBackend struct {
	clockid    int32
	generation uint64
	ticker     Ticker
	cancelTick func()
}

// NewUnixBackend returns a backend steering CLOCK_REALTIME. ticker
// supplies the one-shot scheduling used to restore the frequency once
// an Adjust window elapses.
func NewUnixBackend(ticker Ticker) *UnixBackend {
	return &UnixBackend{clockid: unix.CLOCK_REALTIME, ticker: ticker}
}

func (u *UnixBackend) adjtime(buf *unix.Timex) error {
	_, _, errno := unix.Syscall(unix.SYS_CLOCK_ADJTIME, uintptr(u.clockid), uintptr(unsafe.Pointer(buf)), 0)
	if errno != 0 {
		return errno
	}
	return nil
}

func (u *UnixBackend) setFreq(frequency float64) {
	if math.IsNaN(frequency) || math.IsInf(frequency, 0) {
		panic(fmt.Sprintf("timebase: non-finite frequency %v", frequency))
	}
	freqPPB := frequency * 1e9
	tx := &unix.Timex{}
	tx.Modes = adjFrequency
	tx.Freq = int64(freqPPB * ppbToTimexPPM)
	if err := u.adjtime(tx); err != nil {
		log.Warningf("timebase: clock_adjtime frequency set failed: %v", err)
	}
}

// Now reads CLOCK_REALTIME at nanosecond resolution.
func (u *UnixBackend) Now() tstamp.Timestamp {
	var ts unix.Timespec
	if err := unix.ClockGettime(u.clockid, &ts); err != nil {
		panic(fmt.Sprintf("timebase: clock_gettime failed: %v", err))
	}
	return tstamp.FromNanosec(uint64(ts.Sec), int64(ts.Nsec))
}

// Step reads CLOCK_REALTIME, adds offset, writes it back and bumps
// the clock generation.
func (u *UnixBackend) Step(offset float64) {
	now := u.Now()
	stepped := tstamp.Add(now, offset)
	ts := unix.Timespec{Sec: int64(stepped.Sec), Nsec: stepped.Nanosec()}
	if err := unix.ClockSettime(u.clockid, &ts); err != nil {
		log.Warningf("timebase: clock_settime failed: %v", err)
	}
	atomic.AddUint64(&u.generation, 1)
}

// Adjust sets the kernel steering frequency to frequency+offset/duration
// and schedules a one-shot restore of frequency alone once duration
// elapses, applying a constant slew over the requested window. Any
// pending restore is cancelled first.
func (u *UnixBackend) Adjust(offset, duration, frequency float64) {
	if u.cancelTick != nil {
		u.cancelTick()
		u.cancelTick = nil
	}
	duration = math.Floor(duration)
	if offset > 0.0 && duration == 0.0 {
		duration = 1.0
	}
	freq := frequency
	if duration > 0.0 {
		freq += offset / duration
	}
	u.setFreq(freq)
	if duration > 0.0 {
		u.cancelTick = u.ticker.ScheduleOnce(duration, func() {
			u.setFreq(frequency)
			u.cancelTick = nil
		})
	}
}

// Generation returns the current clock-step generation.
func (u *UnixBackend) Generation() uint64 {
	return atomic.LoadUint64(&u.generation)
}

// Sleep blocks for dur seconds via poll(2) with no descriptors, the
// idiomatic EINTR-interruptible timed wait.
func (u *UnixBackend) Sleep(dur float64) bool {
	if dur < 0 {
		dur = 0
	}
	_, err := unix.Poll(nil, int(dur*1e3))
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return true
		}
		log.Warningf("timebase: poll sleep failed: %v", err)
	}
	return false
}

// UnixPassiveBackend observes CLOCK_REALTIME but must never steer it:
// Step and Adjust are invariant violations for a passive poller.
type UnixPassiveBackend struct {
	inner *UnixBackend
}

// NewUnixPassiveBackend returns a read-only view of CLOCK_REALTIME,
// used by poll-server mode which must never discipline the clock.
func NewUnixPassiveBackend() *UnixPassiveBackend {
	return &UnixPassiveBackend{inner: &UnixBackend{clockid: unix.CLOCK_REALTIME}}
}

// Now reads CLOCK_REALTIME.
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
