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

package udpio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/bsdphk/ntimed/internal/tstamp"
)

// oobSize is generous enough for a SO_TIMESTAMPNS control message.
const oobSize = 128

var cmsgHdrSize = binary.Size(unix.Cmsghdr{})

func enableRXTimestamps(fd int) error {
	// nanosecond preferred, falling back to microsecond if unsupported.
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_TIMESTAMPNS, 1); err == nil {
		return nil
	}
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_TIMESTAMP, 1)
}

// cmsgTimestamp parses the kernel RX timestamp out of a control
// message buffer, preferring SO_TIMESTAMPNS (nanosecond struct
// timespec) and falling back to SO_TIMESTAMP (microsecond timeval).
func cmsgTimestamp(oob []byte, oobn int) (tstamp.Timestamp, error) {
	mlen := 0
	for i := 0; i < oobn; i += unix.CmsgSpace(mlen - unix.SizeofCmsghdr) {
		h := (*unix.Cmsghdr)(unsafe.Pointer(&oob[i]))
		mlen = int(h.Len)
		if mlen == 0 {
			break
		}
		if h.Level != unix.SOL_SOCKET {
			continue
		}
		data := oob[i+cmsgHdrSize : i+mlen]
		switch h.Type {
		case unix.SO_TIMESTAMPNS:
			sec := *(*int64)(unsafe.Pointer(&data[0]))
			nsec := *(*int64)(unsafe.Pointer(&data[8]))
			return tstamp.FromNanosec(uint64(sec), nsec), nil
		case unix.SO_TIMESTAMP:
			tv := (*unix.Timeval)(unsafe.Pointer(&data[0]))
			return tstamp.FromNanosec(uint64(tv.Sec), tv.Usec*1000), nil
		}
	}
	return tstamp.Timestamp{}, errors.New("udpio: no kernel timestamp in control message")
}

// ReadTimed blocks until a datagram arrives or deadline passes,
// returning it with its kernel receive timestamp.
func (c *Conn) ReadTimed(deadline time.Time) (*Reply, error) {
	if err := c.uc.SetReadDeadline(deadline); err != nil {
		return nil, fmt.Errorf("udpio: set deadline: %w", err)
	}
	buf := make([]byte, MaxPacket)
	oob := make([]byte, oobSize)
	n, oobn, _, from, err := c.uc.ReadMsgUDP(buf, oob)
	if err != nil {
		return nil, err
	}
	rx, err := cmsgTimestamp(oob, oobn)
	if err != nil {
		rx = tstamp.FromNanosec(uint64(time.Now().Unix()), int64(time.Now().Nanosecond()))
	}
	return &Reply{Data: buf[:n], From: from, Rx: rx}, nil
}
