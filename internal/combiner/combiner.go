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

// Package combiner merges the (trust, lo, mid, hi) triangular
// probability density that each peer's filter produces into a single
// clock-offset estimate.
//
// Every source contributes a triangular PDF over [lo, hi] peaking at
// mid, scaled by its trust. The combiner sums the PDFs at every
// source's breakpoints and picks the x with the highest summed
// density: http://phk.freebsd.dk/time/20141107.html.
package combiner

import (
	"fmt"
	"math"
)

// floorDensity keeps the argmax well defined when every source
// disagrees completely; it also makes single-source plots on a log
// scale sensible.
const floorDensity = 0.001

// Source is one peer's registered slot in the combiner. Peers update
// their slot every time their filter accepts a new sample; stale
// slots (generation mismatch, i.e. a clock step happened since the
// last update) are ignored by FindPeak.
type Source struct {
	trust, low, mid, high float64
	generation            uint64
	valid                 bool
}

// Update records a fresh (trust, lo, mid, hi) estimate for this
// source, tagging it with the clock generation it was computed
// against.
func (s *Source) Update(trust, low, mid, high float64, generation uint64) error {
	if trust < 0 || trust > 1.0 || math.IsNaN(trust) {
		return fmt.Errorf("combiner: trust %.3f out of range [0,1]", trust)
	}
	s.trust, s.low, s.mid, s.high = trust, low, mid, high
	s.generation = generation
	s.valid = true
	return nil
}

// Combiner fuses every registered source's current estimate.
type Combiner struct {
	sources []*Source
}

// New returns an empty combiner.
func New() *Combiner {
	return &Combiner{}
}

// AddSource registers a new peer slot and returns a handle to it.
func (c *Combiner) AddSource() *Source {
	s := &Source{low: math.NaN(), mid: math.NaN(), high: math.NaN()}
	c.sources = append(c.sources, s)
	return s
}

// Result is the combiner's current best clock-offset estimate.
type Result struct {
	Offset  float64
	Density float64
	Quorum  int
}

func (c *Combiner) densityAt(x float64, generation uint64) (prob float64, quorum int) {
	prob = floorDensity
	for _, s := range c.sources {
		if !s.valid || s.generation != generation {
			continue
		}
		if x < s.low || x > s.high {
			continue
		}
		if s.low >= s.high {
			continue
		}
		if s.trust > 0 {
			quorum++
		}
		if x < s.mid {
			prob += s.trust * 2.0 * (x - s.low) / ((s.high - s.low) * (s.mid - s.low))
		} else {
			prob += s.trust * 2.0 * (s.high - x) / ((s.high - s.low) * (s.high - s.mid))
		}
	}
	return prob, quorum
}

// FindPeak scans every live source's lo/mid/hi breakpoints for the
// one with the highest summed density, then reports whether at least
// quorumNeeded distinct sources covered that point. Ties are broken
// toward the smaller x. Zero-trust sources are not counted toward the
// quorum. Sources from a stale generation (a clock step
// happened since their last update) are excluded, and so is any
// source that has never produced a valid estimate.
func (c *Combiner) FindPeak(generation uint64, quorumNeeded int) (Result, bool) {
	best := Result{Offset: 0, Density: 0, Quorum: 0}
	live := false
	for _, s := range c.sources {
		if !s.valid || s.generation != generation {
			continue
		}
		live = true
		for _, x := range [3]float64{s.low, s.mid, s.high} {
			prob, quorum := c.densityAt(x, generation)
			if prob > best.Density || (prob == best.Density && x < best.Offset) {
				best = Result{Offset: x, Density: prob, Quorum: quorum}
			}
		}
	}
	if !live {
		return Result{}, false
	}
	return best, best.Quorum >= quorumNeeded
}
