package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"eeprobe-go/errcode"
	"eeprobe-go/scan"
)

var (
	// Rig selection flags
	flagSim    bool
	flagDevs   []int
	flagConfig string

	// Tuning flags
	flagProbeTimeout time.Duration
	flagSettle       time.Duration
	flagAckPoll      bool

	flagVerbose bool
)

var rootCmd = &cobra.Command{
	Use:   "eeprobe",
	Short: "Discover and exercise serial EEPROMs on two-wire buses",
	Long: `eeprobe finds a serial EEPROM across one or more two-wire bus
controllers, optionally behind a 4-channel multiplexer, determines its
write page size empirically, and moves data in and out of it page by page.

Rig selection:
  Hardware:  --dev 0 [--dev 1 ...]   scan /dev/i2c-N adapters (linux)
  Simulated: --sim                   built-in rig with a mux and an EEPROM

Candidate addresses and timeouts come from the built-in eval profile and
can be overridden with a JSON rig file (--config).

Exit codes:
  0 - success
  1 - no device found, or verify mismatch
  2 - transport or usage failure`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&flagSim, "sim", false, "use the built-in simulated rig")
	rootCmd.PersistentFlags().IntSliceVar(&flagDevs, "dev", nil, "i2c-dev adapter numbers to scan, in order")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "JSON rig file overriding the built-in profile")
	rootCmd.PersistentFlags().DurationVar(&flagProbeTimeout, "probe-timeout", 0, "presence probe deadline (default 500ms)")
	rootCmd.PersistentFlags().DurationVar(&flagSettle, "settle", 0, "post-write quiescence (default 250ms)")
	rootCmd.PersistentFlags().BoolVar(&flagAckPoll, "ack-poll", false, "poll for the device acknowledge instead of a fixed settle")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging")
}

// exitFor maps a command error onto the documented exit codes.
func exitFor(err error) int {
	if err == nil {
		return 0
	}
	if errors.Is(err, scan.ErrNoDevice) || errors.Is(err, scan.ErrVerify) {
		return 1
	}
	return 2
}

func run() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "eeprobe: %v (%s)\n", err, errcode.Of(err))
		return exitFor(err)
	}
	return 0
}
