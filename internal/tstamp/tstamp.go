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

// Package tstamp implements the 64.64 fixed-point timestamp used to
// carry time through the scheduler, the wire codec and the PLL.
package tstamp

import (
	"fmt"
	"math"
)

// NanoFrac is 2^64 / 1e9, the scale factor between a nanosecond and one
// unit of the 64-bit fraction field. Multiplying a nanosecond count by
// this constant rounds it into frac-of-second units.
const NanoFrac = 18446744074.0

// Timestamp is seconds since the UNIX epoch (Sec) plus a fraction of a
// second expressed as n/2^64 (Frac).
type Timestamp struct {
	Sec  uint64
	Frac uint64
}

// FromNanosec builds a Timestamp from whole seconds plus a nanosecond
// remainder in [0, 1e9).
func FromNanosec(sec uint64, nsec int64) Timestamp {
	return Timestamp{
		Sec:  sec,
		Frac: uint64(float64(nsec) * NanoFrac),
	}
}

// FromDouble builds a Timestamp from a non-negative number of seconds
// since the UNIX epoch expressed as a double-precision delta.
func FromDouble(seconds float64) Timestamp {
	if seconds < 0 {
		panic("tstamp: FromDouble requires a non-negative value")
	}
	sec := math.Floor(seconds)
	frac := seconds - sec
	return Timestamp{
		Sec:  uint64(sec),
		Frac: uint64(frac * 18446744073709551616.0), // frac * 2^64
	}
}

// Add advances t by delta seconds, which may be negative, carrying
// fractional overflow/underflow into the seconds field.
func Add(t Timestamp, delta float64) Timestamp {
	neg := delta < 0
	if neg {
		delta = -delta
	}
	sec := math.Floor(delta)
	frac := uint64((delta - sec) * 18446744073709551616.0)
	isec := uint64(sec)

	if !neg {
		newFrac := t.Frac + frac
		carry := uint64(0)
		if newFrac < t.Frac {
			carry = 1
		}
		return Timestamp{Sec: t.Sec + isec + carry, Frac: newFrac}
	}

	newFrac := t.Frac - frac
	borrow := uint64(0)
	if newFrac > t.Frac {
		borrow = 1
	}
	return Timestamp{Sec: t.Sec - isec - borrow, Frac: newFrac}
}

// Diff returns a - b as a double-precision number of seconds. The
// fractional difference is computed first and the whole-second
// difference added afterwards, to avoid losing precision when a and b
// are far apart but close together in value.
func Diff(a, b Timestamp) float64 {
	var fracDiff float64
	var secDiff float64
	if a.Frac >= b.Frac {
		fracDiff = float64(a.Frac-b.Frac) / 18446744073709551616.0
	} else {
		fracDiff = -(float64(b.Frac-a.Frac) / 18446744073709551616.0)
	}
	secDiff = float64(int64(a.Sec) - int64(b.Sec))
	return secDiff + fracDiff
}

// String renders t as "sec.nnnnnnnnn".
func (t Timestamp) String() string {
	nsec := uint64(float64(t.Frac) / NanoFrac)
	return fmt.Sprintf("%d.%09d", t.Sec, nsec)
}

// Nanosec returns the nanosecond-of-second component of t, rounded.
func (t Timestamp) Nanosec() int64 {
	return int64(math.Round(float64(t.Frac) / NanoFrac))
}
