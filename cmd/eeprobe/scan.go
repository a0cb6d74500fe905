package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"eeprobe-go/scan"
)

var flagScanJSON bool

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Find the EEPROM and report where it answers",
	Long: `Walk the configured controllers and candidate addresses until an
EEPROM acknowledges, probing the write page size when the part sits
behind a multiplexer.

Exit codes:
  0 - device found
  1 - nothing answered
  2 - transport failure`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().BoolVar(&flagScanJSON, "json", false, "machine-readable result")
}

func runScan(cmd *cobra.Command, args []string) error {
	r, err := buildRig()
	if err != nil {
		return err
	}
	defer r.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	found, err := scan.Find(ctx, r.cfg)
	if err != nil {
		return err
	}

	if flagScanJSON {
		out, err := json.Marshal(found.Result)
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}

	fmt.Printf("Controller: %d\n", found.Controller)
	fmt.Printf("Address:    %#02x\n", found.Addr)
	fmt.Printf("Page size:  %d\n", found.PageSize)
	if found.ViaMux {
		fmt.Printf("Mux:        %#02x, channel mask %#02x\n", found.MuxAddr, found.Channel)
	} else {
		fmt.Printf("Mux:        none (direct, page size assumed)\n")
	}
	return nil
}
