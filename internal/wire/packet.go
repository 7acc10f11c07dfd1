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

// Package wire (de)serializes the 48-byte NTPv3/v4 packet format.
package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/bsdphk/ntimed/internal/tstamp"
)

// Size is the wire size of an NTP packet in bytes.
const Size = 48

// ntpUnixEpoch is the number of seconds between the NTP epoch
// (1900-01-01) and the UNIX epoch (1970-01-01): ((1970-1900)*365+17)*86400.
const ntpUnixEpoch = 2208988800

// Leap indicator values.
const (
	LeapNoWarning = 0
	LeapAddSecond = 1
	LeapSubSecond = 2
	LeapUnknown   = 3
)

// Mode values.
const (
	ModeReserved  = 0
	ModeActive    = 1
	ModePassive   = 2
	ModeClient    = 3
	ModeServer    = 4
	ModeBroadcast = 5
)

// Packet is the decoded form of a 48-byte NTP wire record.
type Packet struct {
	Leap      uint8
	Version   uint8
	Mode      uint8
	Stratum   uint8
	Poll      int8
	Precision int8

	RootDelay      tstamp.Timestamp // short-format (32-bit)
	RootDispersion tstamp.Timestamp // short-format (32-bit)
	RefID          [4]byte

	Reference tstamp.Timestamp
	Origin    tstamp.Timestamp
	Receive   tstamp.Timestamp
	Transmit  tstamp.Timestamp

	// RxTime is not part of the wire format: it is the locally
	// captured arrival instant of this reply, stamped by the caller
	// after a successful receive.
	RxTime tstamp.Timestamp
}

func short2ts(p []byte) tstamp.Timestamp {
	sec := binary.BigEndian.Uint16(p)
	frac := binary.BigEndian.Uint16(p[2:])
	return tstamp.Timestamp{Sec: uint64(sec), Frac: uint64(frac) << 48}
}

func ts2short(dst []byte, t tstamp.Timestamp) {
	if t.Sec >= 65536 {
		panic(fmt.Sprintf("wire: short-format timestamp seconds out of range: %d", t.Sec))
	}
	binary.BigEndian.PutUint16(dst, uint16(t.Sec))
	binary.BigEndian.PutUint16(dst[2:], uint16(t.Frac>>48))
}

func long2ts(p []byte) tstamp.Timestamp {
	sec := binary.BigEndian.Uint32(p)
	frac := binary.BigEndian.Uint32(p[4:])
	return tstamp.Timestamp{Sec: uint64(sec) - ntpUnixEpoch, Frac: uint64(frac) << 32}
}

func ts2long(dst []byte, t tstamp.Timestamp) {
	binary.BigEndian.PutUint32(dst, uint32(t.Sec+ntpUnixEpoch))
	binary.BigEndian.PutUint32(dst[4:], uint32(t.Frac>>32))
}

// Unpack decodes a 48-byte NTP packet. Stratum-0 packets are accepted
// at this layer; rejection on protocol-validity grounds happens in
// the sanity filter, not here.
func Unpack(buf []byte) (*Packet, error) {
	if len(buf) != Size {
		return nil, fmt.Errorf("wire: packet must be %d bytes, got %d", Size, len(buf))
	}
	p := &Packet{}
	p.Leap = buf[0] >> 6
	p.Version = (buf[0] >> 3) & 0x7
	p.Mode = buf[0] & 0x07
	p.Stratum = buf[1]
	p.Poll = int8(buf[2])
	p.Precision = int8(buf[3])
	p.RootDelay = short2ts(buf[4:8])
	p.RootDispersion = short2ts(buf[8:12])
	copy(p.RefID[:], buf[12:16])
	p.Reference = long2ts(buf[16:24])
	p.Origin = long2ts(buf[24:32])
	p.Receive = long2ts(buf[32:40])
	p.Transmit = long2ts(buf[40:48])
	return p, nil
}

// Pack encodes p into buf (which must be at least Size bytes), using
// now as the transmit timestamp. After writing, it re-derives p's
// Transmit field from the just-written bytes so that a later
// origin-match test against a reply is bit-exact.
func (p *Packet) Pack(buf []byte, now tstamp.Timestamp) error {
	if len(buf) < Size {
		return fmt.Errorf("wire: pack buffer must be at least %d bytes, got %d", Size, len(buf))
	}
	if p.Version > 7 {
		return fmt.Errorf("wire: version %d out of range (0..7)", p.Version)
	}
	if p.Stratum > 14 {
		return fmt.Errorf("wire: stratum %d out of range (0..14)", p.Stratum)
	}

	buf[0] = (p.Leap << 6) | (p.Version << 3) | p.Mode
	buf[1] = p.Stratum
	buf[2] = byte(p.Poll)
	buf[3] = byte(p.Precision)
	ts2short(buf[4:8], p.RootDelay)
	ts2short(buf[8:12], p.RootDispersion)
	copy(buf[12:16], p.RefID[:])
	ts2long(buf[16:24], p.Reference)
	ts2long(buf[24:32], p.Origin)
	ts2long(buf[32:40], p.Receive)

	p.Transmit = now
	ts2long(buf[40:48], p.Transmit)
	// Reverse again, to avoid subsequent trouble from rounding.
	p.Transmit = long2ts(buf[40:48])
	return nil
}

// ValidSettingsFormat reports whether the leap/version/mode byte
// describes a well-formed client request: leap is 0 (no warning) or 3
// (unknown), version is 1..4, mode is client.
func (p *Packet) ValidSettingsFormat() bool {
	if p.Leap != LeapNoWarning && p.Leap != LeapUnknown {
		return false
	}
	if p.Version < 1 || p.Version > 4 {
		return false
	}
	return p.Mode == ModeClient
}
