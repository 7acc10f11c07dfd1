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

// Package udpio wraps the raw UDP socket used to send NTP requests
// and receive replies carrying a kernel-attached receive timestamp.
package udpio

import (
	"fmt"
	"net"

	"github.com/bsdphk/ntimed/internal/tstamp"
)

// MaxPacket is large enough for any NTP packet plus extension fields.
const MaxPacket = 512

// Conn is a UDP socket enabled for kernel receive timestamping.
type Conn struct {
	uc *net.UDPConn
	fd int
}

// Listen opens a UDP socket bound to laddr (use port 0 for an
// ephemeral client port) with kernel RX timestamping enabled.
func Listen(laddr *net.UDPAddr) (*Conn, error) {
	uc, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("udpio: listen: %w", err)
	}
	sc, err := uc.SyscallConn()
	if err != nil {
		uc.Close()
		return nil, fmt.Errorf("udpio: syscall conn: %w", err)
	}
	var fd int
	if err := sc.Control(func(f uintptr) { fd = int(f) }); err != nil {
		uc.Close()
		return nil, fmt.Errorf("udpio: syscall control: %w", err)
	}
	c := &Conn{uc: uc, fd: fd}
	if err := enableRXTimestamps(fd); err != nil {
		uc.Close()
		return nil, fmt.Errorf("udpio: enable RX timestamps: %w", err)
	}
	return c, nil
}

// Close closes the underlying socket.
func (c *Conn) Close() error {
	return c.uc.Close()
}

// LocalAddr returns the socket's local address.
func (c *Conn) LocalAddr() net.Addr {
	return c.uc.LocalAddr()
}

// Send writes buf to addr.
func (c *Conn) Send(buf []byte, addr *net.UDPAddr) error {
	_, err := c.uc.WriteToUDP(buf, addr)
	return err
}

// Reply is one received datagram plus its kernel (or software
// fallback) receive timestamp.
type Reply struct {
	Data []byte
	From *net.UDPAddr
	Rx   tstamp.Timestamp
}
