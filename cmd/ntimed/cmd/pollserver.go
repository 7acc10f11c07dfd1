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

package cmd

import (
	"context"
	"net"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/bsdphk/ntimed/internal/combiner"
	"github.com/bsdphk/ntimed/internal/driver"
	"github.com/bsdphk/ntimed/internal/peer"
	"github.com/bsdphk/ntimed/internal/timebase"
	"github.com/bsdphk/ntimed/internal/trace"
	"github.com/bsdphk/ntimed/internal/udpio"
)

// pollServerTimeout bounds how long a single round waits for a reply
// before moving to the next peer.
const pollServerTimeout = 2 * time.Second

// runPollServer passively polls every server in turn, in round-robin
// order, and records the raw request/reply pair as a trace, without
// touching the local clock: it uses the read-only passive backend, so
// a Step or Adjust call anywhere in this path would be a bug, not a
// runtime condition.
func runPollServer(servers []string, duration float64, monitor string, traceFile string) error {
	if len(servers) == 0 {
		driver.Fail("poll-server: no servers given")
	}

	backend := timebase.NewUnixPassiveBackend()
	conn, err := udpio.Listen(&net.UDPAddr{Port: 0})
	if err != nil {
		driver.Fail("poll-server: %v", err)
	}
	defer conn.Close()

	set := peer.NewSet(combiner.New())
	ctx := context.Background()
	for _, s := range servers {
		if _, err := set.Add(ctx, s); err != nil {
			driver.Fail("poll-server: %v", err)
		}
	}

	w, closeTrace, err := openTraceWriter(traceFile)
	if err != nil {
		driver.Fail("poll-server: %v", err)
	}
	defer closeTrace()

	var peerIDs []trace.PeerID
	for _, p := range set.Peers() {
		peerIDs = append(peerIDs, trace.PeerID{Hostname: p.Hostname, IP: p.IP})
	}
	w.Header("poll-server", peerIDs)
	w.Flush()

	if monitor != "" {
		exp := driver.NewPrometheusExporter(monitor, driver.NewStats())
		go func() {
			if err := exp.Start(); err != nil {
				log.Warningf("poll-server: monitor listener: %v", err)
			}
		}()
	}

	deadline := time.Time{}
	if duration > 0 {
		deadline = time.Now().Add(time.Duration(duration * float64(time.Second)))
	}

	cursor := 0
	peers := set.Peers()
	for !deadline.IsZero() && time.Now().Before(deadline) || deadline.IsZero() {
		p := peers[cursor%len(peers)]
		cursor++
		if p.State == peer.StateDuplicate {
			continue
		}

		w.Now(backend.Now(), "poll")
		rxp, err := p.Poll(conn, backend, pollServerTimeout)
		req := p.Request()
		w.Poll("NTP_Packet", p.Hostname, p.IP, trace.FieldsFromPacket(&req, req.Transmit))
		if err != nil {
			log.Debugf("poll-server: %s %s: %v", p.Hostname, p.IP, err)
		} else {
			w.Poll("Poll", p.Hostname, p.IP, trace.FieldsFromPacket(rxp, rxp.RxTime))
		}
		w.Flush()

		if backend.Sleep(1.0) {
			break
		}
	}
	return nil
}
