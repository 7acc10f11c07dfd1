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

package peer

import "container/ring"

// reachWindow is a fixed-size ring of the last few poll outcomes for
// one peer (1.0 for an accepted reply, 0.0 for a timeout or rejected
// packet), used to derive a peer's reachability state.
type reachWindow struct {
	size        int
	currentSize int
	sum         float64
	samples     *ring.Ring
}

func newReachWindow(size int) *reachWindow {
	if size < 1 {
		size = 1
	}
	w := &reachWindow{size: size, samples: ring.New(size)}
	for i := 0; i < w.size; i++ {
		w.samples.Value = false
		w.samples = w.samples.Next()
	}
	return w
}

func (w *reachWindow) add(reached bool) {
	w.samples = w.samples.Next()
	if prev, ok := w.samples.Value.(bool); ok && prev {
		w.sum--
	}
	if w.currentSize < w.size {
		w.currentSize++
	}
	w.samples.Value = reached
	if reached {
		w.sum++
	}
}

// ratio returns the fraction of the window's polls that succeeded.
func (w *reachWindow) ratio() float64 {
	if w.currentSize == 0 {
		return 0
	}
	return w.sum / float64(w.currentSize)
}

// consecutiveMisses reports how many polls in a row, most recent
// first, have failed.
func (w *reachWindow) consecutiveMisses() int {
	n := 0
	r := w.samples
	for i := 0; i < w.currentSize; i++ {
		reached, _ := r.Value.(bool)
		if reached {
			break
		}
		n++
		r = r.Prev()
	}
	return n
}
