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

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"time"

	"github.com/bsdphk/ntimed/internal/combiner"
	"github.com/bsdphk/ntimed/internal/filter"
	"github.com/bsdphk/ntimed/internal/timebase"
	"github.com/bsdphk/ntimed/internal/udpio"
	"github.com/bsdphk/ntimed/internal/wire"
)

// Set holds every peer under poll, plus the pacing and duplicate
// bookkeeping that span the whole set.
type Set struct {
	peers  []*Peer
	groups map[string]*group
	uf     *unionFind
	seen   map[string]bool
	cursor int

	combiner *combiner.Combiner

	t0           float64
	InitDuration float64
	PollPeriod   float64
	InitPackets  float64
}

// NewSet returns an empty set with the original client's default
// pacing: a 6-packet, 64-second ramp settling into a 64-second steady
// poll period.
func NewSet(c *combiner.Combiner) *Set {
	return &Set{
		groups:       map[string]*group{},
		uf:           newUnionFind(),
		seen:         map[string]bool{},
		combiner:     c,
		t0:           1.0,
		InitDuration: 64.0,
		PollPeriod:   64.0,
		InitPackets:  6.0,
	}
}

// Peers returns every peer in the set, including duplicates.
func (s *Set) Peers() []*Peer { return s.peers }

// Add resolves hostname and registers one peer per returned address.
// Addresses already seen under a different hostname are kept in the
// set (for reporting) but marked Duplicate and excluded from polling
// and pacing.
func (s *Set) Add(ctx context.Context, hostname string) (int, error) {
	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, hostname)
	if err != nil {
		return 0, fmt.Errorf("peer: resolve %q: %w", hostname, err)
	}
	if len(addrs) == 0 {
		return 0, fmt.Errorf("peer: %q resolved to no addresses", hostname)
	}

	g := &group{hostname: hostname}
	added := 0
	for _, a := range addrs {
		key := a.IP.String()
		p := newPeer(hostname, &net.UDPAddr{IP: a.IP, Port: 123}, g)
		p.Source = s.combiner.AddSource()

		if s.seen[key] {
			p.State = StateDuplicate
			s.uf.union(key, hostname)
		} else {
			s.seen[key] = true
			s.uf.add(key)
		}
		s.peers = append(s.peers, p)
		g.count++
		added++
	}
	if len(addrs) > 1 {
		for _, p := range s.peers[len(s.peers)-added:] {
			if p.State != StateDuplicate {
				p.State = StateMultihome
			}
		}
	}
	s.groups[hostname] = g
	return added, nil
}

// AddKnown registers one peer by hostname and literal IP without a
// DNS lookup, for callers that already know the peer set from a
// trace's header (the simulator replay path).
func (s *Set) AddKnown(hostname, ip string) *Peer {
	g := &group{hostname: hostname}
	p := newPeer(hostname, &net.UDPAddr{IP: net.ParseIP(ip), Port: 123}, g)
	p.Source = s.combiner.AddSource()

	key := ip
	if s.seen[key] {
		p.State = StateDuplicate
		s.uf.union(key, hostname)
	} else {
		s.seen[key] = true
		s.uf.add(key)
	}
	s.peers = append(s.peers, p)
	g.count++
	s.groups[hostname] = g
	return p
}

func (s *Set) activeCount() int {
	n := 0
	for _, p := range s.peers {
		if p.State != StateDuplicate {
			n++
		}
	}
	return n
}

// nextActive returns the next non-duplicate peer in round-robin
// order, or nil if the set has no pollable peers.
func (s *Set) nextActive() *Peer {
	n := len(s.peers)
	if n == 0 {
		return nil
	}
	for i := 0; i < n; i++ {
		s.cursor = (s.cursor + 1) % n
		if p := s.peers[s.cursor]; p.State != StateDuplicate {
			return p
		}
	}
	return nil
}

// NextInterval reports the delay, in seconds, before the next peer
// should be polled, and advances the set's internal pacing clock.
// Early on it ramps geometrically from a dense initial burst (so a
// fresh start gets InitPackets samples per peer within InitDuration
// seconds) down to a steady PollPeriod/activeCount spacing.
func (s *Set) NextInterval() float64 {
	n := float64(s.activeCount())
	if n == 0 {
		return s.PollPeriod
	}
	d := s.PollPeriod / n
	if s.t0 < s.InitDuration {
		dt := math.Exp(math.Log(s.InitDuration) / (s.InitPackets * n))
		if s.t0*dt < s.InitDuration {
			d = s.t0*dt - s.t0
		}
	}
	s.t0 += d
	return d
}

// reportsUnsynchronized is true when a reply's own header says the
// server has nothing trustworthy to offer (unknown leap status, or a
// kiss-of-death/out-of-range stratum) — the same conditions the sanity
// filter itself rejects on, checked again here so PollOnce can tell
// that case apart from a reachable peer producing an implausible
// sample.
func reportsUnsynchronized(pkt *wire.Packet) bool {
	return pkt.Leap == wire.LeapUnknown || pkt.Stratum == 0 || pkt.Stratum > 15
}

// ErrNoPeers is returned by PollOnce when the set has nothing
// pollable.
var ErrNoPeers = errors.New("peer: no pollable peers in set")

// PollOnce advances the round robin by one peer, polls it, and feeds
// an accepted reply through the peer's filter into its combiner slot.
// It returns the peer polled and the filter sample produced, if any;
// the caller drives the combiner's FindPeak and the PLL afterward.
func (s *Set) PollOnce(conn *udpio.Conn, backend timebase.Backend, timeout time.Duration, avg, threshold float64) (*Peer, *filter.Sample, error) {
	p := s.nextActive()
	if p == nil {
		return nil, nil, ErrNoPeers
	}

	rxp, err := p.Poll(conn, backend, timeout)
	if err != nil {
		p.reach.add(false)
		p.updateState()
		return p, nil, err
	}
	p.reach.add(true)
	p.updateState()

	sample, ferr := p.Filter.Update(backend.Generation(), rxp, avg, threshold)
	if ferr != nil {
		if reportsUnsynchronized(rxp) {
			p.State = StateUnsynchronized
		}
		return p, nil, ferr
	}
	if uerr := p.Source.Update(sample.Trust, sample.Lo, sample.Mid, sample.Hi, backend.Generation()); uerr != nil {
		return p, nil, uerr
	}
	return p, &sample, nil
}
