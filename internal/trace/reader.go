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
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Line is one parsed trace record: its leading token (Kind) and the
// remaining whitespace-separated fields, verbatim. Consumers that
// need typed access (Now's timestamp, Poll's packet fields) parse
// Fields themselves; unrecognised Kinds are passed through so callers
// can ignore them, matching the format's "unrecognised prefixes are
// ignored" rule.
type Line struct {
	Kind   string
	Fields []string
}

// Reader scans a trace file line by line.
type Reader struct {
	sc      *bufio.Scanner
	Format  string
	PeerIDs []PeerID
}

// NewReader parses the fixed three-part header off r and returns a
// Reader positioned at the first record line.
func NewReader(r io.Reader) (*Reader, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), 1<<20)

	tr := &Reader{sc: sc}
	if !sc.Scan() {
		return nil, fmt.Errorf("trace: empty file, expected format header")
	}
	var name, version string
	if _, err := fmt.Sscanf(sc.Text(), "# NTIMED Format %s %s", &name, &version); err != nil {
		return nil, fmt.Errorf("trace: bad format header %q: %w", sc.Text(), err)
	}
	tr.Format = name

	if !sc.Scan() {
		return nil, fmt.Errorf("trace: premature EOF after format header")
	}
	var n int
	if _, err := fmt.Sscanf(sc.Text(), "# Found %d peers", &n); err != nil {
		return nil, fmt.Errorf("trace: bad peer-count header %q: %w", sc.Text(), err)
	}
	for i := 0; i < n; i++ {
		if !sc.Scan() {
			return nil, fmt.Errorf("trace: premature EOF reading peer %d/%d", i+1, n)
		}
		fields := strings.Fields(sc.Text())
		if len(fields) != 4 || fields[0] != "#" || fields[1] != "Peer" {
			return nil, fmt.Errorf("trace: bad peer header line %q", sc.Text())
		}
		tr.PeerIDs = append(tr.PeerIDs, PeerID{Hostname: fields[2], IP: fields[3]})
	}
	return tr, nil
}

// Next returns the next record line, or io.EOF once the file is
// exhausted.
func (tr *Reader) Next() (Line, error) {
	if !tr.sc.Scan() {
		if err := tr.sc.Err(); err != nil {
			return Line{}, err
		}
		return Line{}, io.EOF
	}
	fields := strings.Fields(tr.sc.Text())
	if len(fields) == 0 {
		return tr.Next()
	}
	return Line{Kind: fields[0], Fields: fields[1:]}, nil
}
