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

// Package peer models one upstream NTP server (and groups of them
// discovered under a single hostname), owning the round trip, the
// per-peer sanity filter, and the combiner slot it feeds.
package peer

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/bsdphk/ntimed/internal/combiner"
	"github.com/bsdphk/ntimed/internal/filter"
	"github.com/bsdphk/ntimed/internal/timebase"
	"github.com/bsdphk/ntimed/internal/tstamp"
	"github.com/bsdphk/ntimed/internal/udpio"
	"github.com/bsdphk/ntimed/internal/wire"
)

// group is the hostname a peer was discovered under; several peers
// can share a group when a hostname resolves to multiple addresses.
type group struct {
	hostname string
	count    int
}

// Peer is one upstream NTP server.
type Peer struct {
	Hostname string
	IP       string
	Addr     *net.UDPAddr

	State State

	Filter *filter.Filter
	Source *combiner.Source

	group *group
	reach *reachWindow

	tx wire.Packet
}

func clientRequest() wire.Packet {
	return wire.Packet{
		Leap:           wire.LeapUnknown,
		Version:        4,
		Mode:           wire.ModeClient,
		Stratum:        0,
		Poll:           4,
		Precision:      -6,
		RootDelay:      tstamp.Timestamp{Sec: 1},
		RootDispersion: tstamp.Timestamp{Sec: 1},
	}
}

func newPeer(hostname string, addr *net.UDPAddr, g *group) *Peer {
	return &Peer{
		Hostname: hostname,
		IP:       addr.IP.String(),
		Addr:     addr,
		State:    StateNew,
		Filter:   filter.New(),
		group:    g,
		reach:    newReachWindow(8),
		tx:       clientRequest(),
	}
}

// Request returns the client request last sent to this peer (valid
// only after a call to Poll), for callers that need to report it
// verbatim, such as the poll-server trace writer.
func (p *Peer) Request() wire.Packet { return p.tx }

// ErrNoReply covers both a timeout and a reply this peer has to
// discard (wrong source, wrong length, not an answer to our request).
var ErrNoReply = errors.New("peer: no usable reply before deadline")

// Poll sends one client request to the peer and waits up to timeout
// for a matching reply, discarding stray datagrams (from a different
// source, or not a reply to the request just sent) along the way.
func (p *Peer) Poll(conn *udpio.Conn, backend timebase.Backend, timeout time.Duration) (*wire.Packet, error) {
	buf := make([]byte, wire.Size)
	now := backend.Now()
	if err := p.tx.Pack(buf, now); err != nil {
		return nil, fmt.Errorf("peer %s: pack request: %w", p.Hostname, err)
	}
	if err := conn.Send(buf, p.Addr); err != nil {
		return nil, fmt.Errorf("peer %s: send: %w", p.Hostname, err)
	}

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		reply, err := conn.ReadTimed(deadline)
		if err != nil {
			break
		}
		if !reply.From.IP.Equal(p.Addr.IP) {
			continue
		}
		if len(reply.Data) != wire.Size {
			continue
		}
		rxp, err := wire.Unpack(reply.Data)
		if err != nil {
			continue
		}
		rxp.RxTime = reply.Rx
		if tstamp.Diff(p.tx.Transmit, rxp.Origin) != 0.0 {
			// not a reply to the request we just sent
			continue
		}
		return rxp, nil
	}
	return nil, ErrNoReply
}

// updateState derives the peer's reachability classification from its
// recent poll history. It never promotes a peer to Active: that
// requires the combiner/PLL to have actually selected it, which is
// the driver's call, not the peer's.
func (p *Peer) updateState() {
	if p.State == StateDuplicate {
		return
	}
	switch miss := p.reach.consecutiveMisses(); {
	case miss >= unreachableAfter:
		p.State = StateUnreachable
	case miss >= unresponsiveAfter:
		p.State = StateUnresponsive
	default:
		if p.State == StateNew || p.State == StateUnresponsive || p.State == StateUnreachable {
			p.State = StateAvailable
		}
	}
}
