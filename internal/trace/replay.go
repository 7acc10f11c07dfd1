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

package trace

import (
	"fmt"
	"io"
)

// Injector is the driver-side hook the Player calls for every
// recognised record. Implementations typically wrap a peer set and a
// PLL so that a "Poll" line synthesises a reply as though it had
// arrived over the wire.
type Injector interface {
	// AdvanceTo is called for every "Now" line; t is the line's
	// first field (a "<sec>.<nsec>" string) and label is whatever
	// follows it.
	AdvanceTo(t, label string) error
	// InjectPoll is called for every "Poll" line, identifying the
	// peer by hostname+ip and passing the remaining fields verbatim
	// for the injector to decode into a synthesized reply.
	InjectPoll(hostname, ip string, fields []string) error
}

// Player drives an Injector from a trace file, one record at a time.
type Player struct {
	r   *Reader
	inj Injector
}

// NewPlayer parses src's header and returns a Player ready to Step
// through its records.
func NewPlayer(src io.Reader, inj Injector) (*Player, error) {
	r, err := NewReader(src)
	if err != nil {
		return nil, err
	}
	return &Player{r: r, inj: inj}, nil
}

// Step consumes and applies exactly one record, returning io.EOF once
// the trace is exhausted. Lines whose Kind the Injector doesn't
// recognise (NTP_Packet, NTP_Filter, PLL — diagnostics, not replay
// input) are skipped.
func (p *Player) Step() error {
	line, err := p.r.Next()
	if err != nil {
		return err
	}
	switch line.Kind {
	case "Now":
		if len(line.Fields) < 1 {
			return fmt.Errorf("trace: malformed Now line")
		}
		label := ""
		if len(line.Fields) > 1 {
			label = line.Fields[1]
		}
		return p.inj.AdvanceTo(line.Fields[0], label)
	case "Poll":
		if len(line.Fields) < 2 {
			return fmt.Errorf("trace: malformed Poll line")
		}
		return p.inj.InjectPoll(line.Fields[0], line.Fields[1], line.Fields[2:])
	default:
		return nil
	}
}

// Run steps through the whole trace until EOF.
func (p *Player) Run() error {
	for {
		if err := p.Step(); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}
