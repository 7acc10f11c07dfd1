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
	"fmt"
	"io"
	"os"

	"github.com/bsdphk/ntimed/internal/trace"
)

// openTraceWriter opens path for trace output. "" discards the trace
// (an unused but harmless writer); "-" writes to stdout; anything
// else is created/truncated as a regular file. The returned close
// func flushes and, for a real file, closes it; call it before
// returning from the caller.
func openTraceWriter(path string) (*trace.Writer, func(), error) {
	var w io.Writer
	var closer func() error

	switch path {
	case "":
		w = io.Discard
		closer = func() error { return nil }
	case "-":
		w = os.Stdout
		closer = func() error { return nil }
	default:
		f, err := os.Create(path)
		if err != nil {
			return nil, nil, fmt.Errorf("open trace file %q: %w", path, err)
		}
		w = f
		closer = f.Close
	}

	tw := trace.NewWriter(w)
	return tw, func() {
		tw.Flush()
		closer()
	}, nil
}
