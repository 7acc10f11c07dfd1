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

package driver

import "sync"

// Stats is a thread-safe bag of named counters: polls sent, replies
// accepted/rejected, PLL steps, clock-step generations, and so on.
type Stats struct {
	mux      sync.Mutex
	counters map[string]int64
}

// NewStats returns an empty counter bag.
func NewStats() *Stats {
	return &Stats{counters: map[string]int64{}}
}

// UpdateCounterBy adds count (which may be negative) to key.
func (s *Stats) UpdateCounterBy(key string, count int64) {
	s.mux.Lock()
	s.counters[key] += count
	s.mux.Unlock()
}

// SetCounter sets key to val outright.
func (s *Stats) SetCounter(key string, val int64) {
	s.mux.Lock()
	s.counters[key] = val
	s.mux.Unlock()
}

// Get returns a point-in-time copy of every counter.
func (s *Stats) Get() map[string]int64 {
	ret := make(map[string]int64)
	s.mux.Lock()
	for k, v := range s.counters {
		ret[k] = v
	}
	s.mux.Unlock()
	return ret
}

// Reset zeroes every existing counter without forgetting its name.
func (s *Stats) Reset() {
	s.mux.Lock()
	for k := range s.counters {
		s.counters[k] = 0
	}
	s.mux.Unlock()
}

// Counter names used throughout the driver.
const (
	CounterPollsSent      = "polls_sent"
	CounterRepliesOK      = "replies_accepted"
	CounterRepliesDropped = "replies_dropped"
	CounterFilterRejected = "filter_rejected"
	CounterCombinerNoQ    = "combiner_no_quorum"
	CounterClockSteps     = "clock_steps"
	CounterPLLTicks       = "pll_ticks"
)
