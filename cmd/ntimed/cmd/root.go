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

// Package cmd implements the ntimed command-line surface: the default
// steering client, plus the --poll-server, --sim-client and
// --run-tests alternate modes.
package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/bsdphk/ntimed/internal/params"
)

var (
	verbose      bool
	pollServer   bool
	simClient    string
	runTests     bool
	paramTweaks  []string
	traceFile    string
	pollDuration float64
	monitorAddr  string
	bumpSpec     string
)

// RootCmd is ntimed's single entry point; which mode it runs is
// selected by flags rather than a cobra sub-command tree, matching
// the original "first arg picks the mode" CLI.
var RootCmd = &cobra.Command{
	Use:   "ntimed [servers...]",
	Short: "A from-scratch NTP client: poller, simulator and steering daemon",
	RunE: func(c *cobra.Command, args []string) error {
		ConfigureVerbosity()
		table, defaults := params.NewDefaultTable()
		for _, kv := range paramTweaks {
			if kv == "?" {
				fmt.Println(table.List())
				return nil
			}
			if !strings.Contains(kv, "=") {
				desc, err := table.Describe(kv)
				if err != nil {
					return fmt.Errorf("-p %s: %w", kv, err)
				}
				fmt.Print(desc)
				return nil
			}
			if _, _, err := table.Tweak(kv); err != nil {
				return fmt.Errorf("-p %s: %w", kv, err)
			}
		}

		switch {
		case runTests:
			return runSelfTest()
		case pollServer:
			return runPollServer(args, pollDuration, monitorAddr, traceFile)
		case simClient != "":
			return runSimClientMode(simClient, traceFile, bumpSpec, defaults)
		default:
			return runSteeringClient(args, traceFile, table, defaults)
		}
	},
}

func init() {
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	RootCmd.Flags().BoolVar(&pollServer, "poll-server", false, "passive poller: record peer replies to a trace")
	RootCmd.Flags().StringVar(&simClient, "sim-client", "", "replay a recorded trace against a simulated clock")
	RootCmd.Flags().BoolVar(&runTests, "run-tests", false, "run the internal arithmetic self-test and exit")
	RootCmd.Flags().StringArrayVarP(&paramTweaks, "param", "p", nil, "parameter tweak key=value, or ? to list")
	RootCmd.Flags().StringVarP(&traceFile, "trace", "t", "", "trace file to write ('-' for stdout)")
	RootCmd.Flags().Float64VarP(&pollDuration, "duration", "d", 0, "poll-server run duration in seconds (0 = forever)")
	RootCmd.Flags().StringVarP(&monitorAddr, "monitor", "m", "", "poll-server monitor address")
	RootCmd.Flags().StringVarP(&bumpSpec, "bump", "B", "", "sim-client perturbation: when,freq,phase")
}

// ConfigureVerbosity sets the log level from the --verbose flag.
func ConfigureVerbosity() {
	log.SetLevel(log.InfoLevel)
	if verbose {
		log.SetLevel(log.DebugLevel)
	}
}

// Execute runs RootCmd, exiting 1 on error as the original CLI's
// Fail() boundary does.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// notifyHUP installs a SIGHUP handler that invokes repoll at the next
// scheduler turn, matching the "SIGHUP triggers re-poll" contract.
func notifyHUP(repoll func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGHUP)
	go func() {
		for range ch {
			repoll()
		}
	}()
}
