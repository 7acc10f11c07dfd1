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

// Package trace reads and writes the line-oriented poll/filter/PLL
// record format used both to capture a live poller's run for later
// analysis and to feed a simulator a scripted one.
package trace

import (
	"bufio"
	"fmt"
	"io"

	"github.com/bsdphk/ntimed/internal/tstamp"
	"github.com/bsdphk/ntimed/internal/wire"
)

// Writer emits trace records in the fixed line format.
type Writer struct {
	w *bufio.Writer
}

// NewWriter wraps w for trace output. Callers should Flush when done.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// Flush pushes any buffered output to the underlying writer.
func (tw *Writer) Flush() error { return tw.w.Flush() }

// Header writes the fixed three-part preamble: format line, peer
// count, and one "# Peer hostname ip" line per discovered peer.
func (tw *Writer) Header(formatName string, peers []PeerID) {
	fmt.Fprintf(tw.w, "# NTIMED Format %s 1.0\n", formatName)
	fmt.Fprintf(tw.w, "# Found %d peers\n", len(peers))
	for _, p := range peers {
		fmt.Fprintf(tw.w, "# Peer %s %s\n", p.Hostname, p.IP)
	}
}

// PeerID names one discovered peer for the header.
type PeerID struct {
	Hostname string
	IP       string
}

// Now writes a clock-advance marker.
func (tw *Writer) Now(t tstamp.Timestamp, label string) {
	fmt.Fprintf(tw.w, "Now %s %s\n", t.String(), label)
}

// Poll writes one outgoing-or-incoming NTP packet against a peer,
// using the compact relative-timestamp fields described in §6.
func (tw *Writer) Poll(kind string, hostname, ip string, f PacketFields) {
	fmt.Fprintf(tw.w, "%s %s %s %d %d %d %d %d %d %s %s 0x%08x %.3e %s %.3e %.3e %.3e\n",
		kind, hostname, ip,
		f.Leap, f.Version, f.Mode, f.Stratum, f.Poll, f.Precision,
		f.Delay.String(), f.Dispersion.String(), f.RefID,
		f.RefMinusOrig, f.Origin.String(), f.RecvMinusOrig, f.XmitMinusRecv, f.RxMinusXmit)
}

// PacketFields is the decoded-and-derived view of an NTP packet that
// the Poll/NTP_Packet trace lines carry.
type PacketFields struct {
	Leap, Version, Mode, Stratum, Poll uint8
	Precision                          int8
	Delay, Dispersion                  tstamp.Timestamp
	RefID                              uint32
	RefMinusOrig                       float64
	Origin                             tstamp.Timestamp
	RecvMinusOrig                      float64
	XmitMinusRecv                      float64
	RxMinusXmit                        float64
}

// FieldsFromPacket derives the relative-timestamp PacketFields the
// Poll/NTP_Packet trace lines carry from a decoded wire packet. rxTime
// is the locally captured arrival instant. An outgoing request has no
// arrival time of its own; passing its Transmit makes the rx-xmit
// field zero.
func FieldsFromPacket(pkt *wire.Packet, rxTime tstamp.Timestamp) PacketFields {
	return PacketFields{
		Leap: pkt.Leap, Version: pkt.Version, Mode: pkt.Mode,
		Stratum: pkt.Stratum, Poll: uint8(pkt.Poll), Precision: pkt.Precision,
		Delay: pkt.RootDelay, Dispersion: pkt.RootDispersion,
		RefID:         refIDUint32(pkt.RefID),
		RefMinusOrig:  tstamp.Diff(pkt.Reference, pkt.Origin),
		Origin:        pkt.Origin,
		RecvMinusOrig: tstamp.Diff(pkt.Receive, pkt.Origin),
		XmitMinusRecv: tstamp.Diff(pkt.Transmit, pkt.Receive),
		RxMinusXmit:   tstamp.Diff(rxTime, pkt.Transmit),
	}
}

func refIDUint32(id [4]byte) uint32 {
	return uint32(id[0])<<24 | uint32(id[1])<<16 | uint32(id[2])<<8 | uint32(id[3])
}

// Filter writes an NTP_Filter diagnostic line.
func (tw *Writer) Filter(hostname, ip string, branch int, lo, mid, hi, loLim, amid, hiLim float64) {
	fmt.Fprintf(tw.w, "NTP_Filter %s %s %d %.3e %.3e %.3e %.3e %.3e %.3e\n",
		hostname, ip, branch, lo, mid, hi, loLim, amid, hiLim)
}

// PLL writes a PLL diagnostic line.
func (tw *Writer) PLL(mode int, dt, offset, weight, pTerm, dur, integrator, a, b float64) {
	fmt.Fprintf(tw.w, "PLL %d %.3e %.3e %.3e %.3e %.3e %.3e %.3e %.3e\n",
		mode, dt, offset, weight, pTerm, dur, integrator, a, b)
}
