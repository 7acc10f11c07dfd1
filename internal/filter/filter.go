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

// Package filter runs the adaptive sanity filter that turns a raw NTP
// reply into a (trust, lo, mid, hi) offset estimate for the combiner.
// It rejects malformed or implausible replies outright and, for the
// rest, tracks a running noise estimate per peer so that outliers
// pull less weight on the exponential moving averages than well
// behaved samples do.
package filter

import (
	"fmt"
	"math"

	"github.com/bsdphk/ntimed/internal/tstamp"
	"github.com/bsdphk/ntimed/internal/wire"
)

// Sample is one accepted filter output, ready for the combiner. LoLim,
// AMid and HiLim are carried along only for the NTP_Filter trace line;
// the combiner only needs Trust/Lo/Mid/Hi.
type Sample struct {
	Trust              float64
	Lo, Mid, Hi        float64
	Branch             int
	LoLim, AMid, HiLim float64
}

// Filter holds the per-peer running state of the sanity filter.
type Filter struct {
	lo, mid, hi    float64
	alo, amid, ahi float64
	alolo, ahihi   float64
	navg           float64
	trust          float64
	branch         int
	generation     uint64
}

// New returns a freshly reset filter.
func New() *Filter {
	return &Filter{}
}

// Reject explains why Update declined to produce a sample.
type Reject struct {
	Reason string
}

func (r *Reject) Error() string { return r.Reason }

func reject(format string, args ...any) (Sample, error) {
	return Sample{}, &Reject{Reason: fmt.Sprintf(format, args...)}
}

// Update feeds one received packet (with RxTime already stamped)
// through the filter. avg and threshold are the tweakable
// ntp_filter_average / ntp_filter_threshold parameters. generation is
// the backend's current clock generation; a change since the last
// call (a clock step happened) resets the running averages, since
// they are no longer meaningful against the stepped clock.
func (f *Filter) Update(generation uint64, pkt *wire.Packet, avg, threshold float64) (Sample, error) {
	if generation != f.generation {
		f.generation = generation
		f.navg = 0
		f.alo, f.amid, f.ahi = 0, 0, 0
		f.alolo, f.ahihi = 0, 0
	}

	if pkt.Leap == wire.LeapUnknown {
		return reject("leap indicator unknown")
	}
	if pkt.Version < 3 || pkt.Version > 4 {
		return reject("bad version %d", pkt.Version)
	}
	if pkt.Mode != wire.ModeServer {
		return reject("bad mode %d", pkt.Mode)
	}
	if pkt.Stratum == 0 || pkt.Stratum > 15 {
		return reject("bad stratum %d", pkt.Stratum)
	}

	if r := tstamp.Diff(pkt.Transmit, pkt.Receive); r <= 0.0 {
		return reject("receive after transmit (%.3e)", r)
	}

	r := tstamp.Diff(pkt.Transmit, pkt.Reference)
	if r < -2e-9 {
		// two nanoseconds of slack for rounding error
		return reject("reference after transmit (%.3e)", r)
	}
	if r > 2048 {
		return reject("ancient reference (%.3e)", r)
	}

	if f.navg < avg {
		f.navg++
	}

	f.lo = tstamp.Diff(pkt.Origin, pkt.Receive)
	f.hi = tstamp.Diff(pkt.RxTime, pkt.Transmit)
	f.mid = 0.5 * (f.lo + f.hi)

	var loNoise, hiNoise float64
	if f.navg > 2 {
		loNoise = math.Sqrt(f.alolo - f.alo*f.alo)
		hiNoise = math.Sqrt(f.ahihi - f.ahi*f.ahi)
	}

	loLim := f.alo - loNoise*threshold
	hiLim := f.ahi + hiNoise*threshold

	failLo := f.lo < loLim
	failHi := f.hi > hiLim

	switch {
	case failLo && failHi:
		f.branch = 1
	case f.navg > 3 && failLo:
		f.mid = f.amid + (f.hi - f.ahi)
		f.branch = 2
	case f.navg > 3 && failHi:
		f.mid = f.amid + f.lo - f.alo
		f.branch = 3
	default:
		f.branch = 4
	}

	div := f.navg
	if f.navg > 2 && f.branch != 4 {
		div *= div
	}

	f.alo += (f.lo - f.alo) / div
	f.amid += (f.mid - f.amid) / div
	f.ahi += (f.hi - f.ahi) / div
	f.alolo += (f.lo*f.lo - f.alolo) / div
	f.ahihi += (f.hi*f.hi - f.ahihi) / div

	switch {
	case pkt.Stratum == 0, pkt.Stratum == 15:
		f.trust = 0.0
	default:
		f.trust = 1.0 / float64(pkt.Stratum)
	}

	return Sample{
		Trust: f.trust, Lo: f.lo, Mid: f.mid, Hi: f.hi, Branch: f.branch,
		LoLim: loLim, AMid: f.amid, HiLim: hiLim,
	}, nil
}

// Navg reports the current average-window size, capped at the
// ntp_filter_average parameter last passed to Update.
func (f *Filter) Navg() float64 { return f.navg }
