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
	"bytes"
	"fmt"
	"math"

	"github.com/fatih/color"

	"github.com/bsdphk/ntimed/internal/tstamp"
	"github.com/bsdphk/ntimed/internal/wire"
)

var (
	okString   = color.GreenString("[OK]")
	failString = color.RedString("[FAIL]")
)

// runSelfTest exercises the timestamp arithmetic and wire codec
// directly, independent of the testify suite, so a deployed binary
// can prove its own arithmetic is sound without a Go toolchain on
// hand.
func runSelfTest() error {
	if err := selfTestTimestamps(); err != nil {
		fmt.Println(failString, "timestamp arithmetic")
		return fmt.Errorf("self-test: timestamps: %w", err)
	}
	fmt.Println(okString, "timestamp arithmetic")

	if err := selfTestCodec(); err != nil {
		fmt.Println(failString, "wire codec")
		return fmt.Errorf("self-test: codec: %w", err)
	}
	fmt.Println(okString, "wire codec")
	return nil
}

func selfTestTimestamps() error {
	deltas := []float64{1, -1, 0.1, -0.1, 1e-3, -1e-3, 1e-6, -1e-6, 1e-9, -1e-9, 2, -2}
	base := tstamp.FromDouble(1_700_000_000.25)
	for _, d := range deltas {
		got := tstamp.Diff(tstamp.Add(base, d), base)
		if math.Abs(got-d) >= 5e-10 {
			return fmt.Errorf("add/diff round trip: delta %v got %v", d, got)
		}
	}
	return nil
}

func selfTestCodec() error {
	pkt := &wire.Packet{
		Leap:           wire.LeapNoWarning,
		Version:        4,
		Mode:           wire.ModeServer,
		Stratum:        2,
		Poll:           6,
		Precision:      -20,
		RootDelay:      tstamp.FromDouble(0.01),
		RootDispersion: tstamp.FromDouble(0.02),
		RefID:          [4]byte{'G', 'P', 'S', 0},
		Reference:      tstamp.FromDouble(1_700_000_000),
		Origin:         tstamp.FromDouble(1_700_000_001),
		Receive:        tstamp.FromDouble(1_700_000_002),
	}

	buf := make([]byte, wire.Size)
	stub := tstamp.FromDouble(1_700_000_003)
	if err := pkt.Pack(buf, stub); err != nil {
		return fmt.Errorf("pack: %w", err)
	}

	back, err := wire.Unpack(buf)
	if err != nil {
		return fmt.Errorf("unpack: %w", err)
	}

	buf2 := make([]byte, wire.Size)
	if err := back.Pack(buf2, stub); err != nil {
		return fmt.Errorf("re-pack: %w", err)
	}
	if !bytes.Equal(buf, buf2) {
		return fmt.Errorf("re-packed bytes differ from the original encoding")
	}
	return nil
}
