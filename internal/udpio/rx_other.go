//go:build !linux

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
	"fmt"
	"time"

	"github.com/bsdphk/ntimed/internal/tstamp"
)

// enableRXTimestamps is a no-op outside Linux; kernel RX timestamping
// falls back to a userland read of time.Now() in ReadTimed.
func enableRXTimestamps(int) error { return nil }

// ReadTimed blocks until a datagram arrives or deadline passes. The
// receive timestamp is a userland time.Now() read rather than a
// kernel-attached one, since this platform has no cmsg equivalent
// wired up here.
func (c *Conn) ReadTimed(deadline time.Time) (*Reply, error) {
	if err := c.uc.SetReadDeadline(deadline); err != nil {
		return nil, fmt.Errorf("udpio: set deadline: %w", err)
	}
	buf := make([]byte, MaxPacket)
	n, from, err := c.uc.ReadFromUDP(buf)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	return &Reply{
		Data: buf[:n],
		From: from,
		Rx:   tstamp.FromNanosec(uint64(now.Unix()), int64(now.Nanosecond())),
	}, nil
}
