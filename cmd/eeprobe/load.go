package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"eeprobe-go/scan"
)

var (
	flagLoadVerify bool
	flagLoadStart  int
)

var loadCmd = &cobra.Command{
	Use:   "load IN",
	Short: "Write a file into the EEPROM",
	Long: `Find the EEPROM and write the contents of IN starting at a page
boundary. With --verify the data is read back and compared.

Exit codes:
  0 - load complete
  1 - no device, or verification mismatch
  2 - transport or file failure`,
	Args: cobra.ExactArgs(1),
	RunE: runLoad,
}

func init() {
	rootCmd.AddCommand(loadCmd)
	loadCmd.Flags().BoolVar(&flagLoadVerify, "verify", true, "read back and compare after writing")
	loadCmd.Flags().IntVar(&flagLoadStart, "start-page", 0, "first page to write")
}

func runLoad(cmd *cobra.Command, args []string) error {
	r, err := buildRig()
	if err != nil {
		return err
	}
	defer r.close()

	fs := afero.NewOsFs()
	data, err := afero.ReadFile(fs, args[0])
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return fmt.Errorf("load: %s is empty", args[0])
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	found, err := scan.Find(ctx, r.cfg)
	if err != nil {
		return err
	}

	off := flagLoadStart * found.PageSize
	if err := found.Device.Write(off, data); err != nil {
		return err
	}
	fmt.Printf("Wrote %d bytes to %#02x at offset %#04x\n", len(data), found.Addr, off)

	if flagLoadVerify {
		back := make([]byte, len(data))
		if err := found.Device.Read(off, back); err != nil {
			return err
		}
		if !bytes.Equal(data, back) {
			return fmt.Errorf("load: %w: read-back differs from %s", scan.ErrVerify, args[0])
		}
		fmt.Println("Verified")
	}
	return nil
}
