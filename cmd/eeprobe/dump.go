package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"eeprobe-go/scan"
)

var (
	flagDumpPages int
	flagDumpStart int
)

var dumpCmd = &cobra.Command{
	Use:   "dump OUT",
	Short: "Copy EEPROM contents to a file",
	Long: `Find the EEPROM and read a run of pages into OUT as raw bytes.

Exit codes:
  0 - dump written
  1 - no device answered
  2 - transport or file failure`,
	Args: cobra.ExactArgs(1),
	RunE: runDump,
}

func init() {
	rootCmd.AddCommand(dumpCmd)
	dumpCmd.Flags().IntVar(&flagDumpPages, "pages", scan.DefaultExercisePages, "number of pages to read")
	dumpCmd.Flags().IntVar(&flagDumpStart, "start-page", 0, "first page to read")
}

func runDump(cmd *cobra.Command, args []string) error {
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

	size := found.PageSize
	buf := make([]byte, flagDumpPages*size)
	if err := found.Device.Read(flagDumpStart*size, buf); err != nil {
		return err
	}

	fs := afero.NewOsFs()
	if err := afero.WriteFile(fs, args[0], buf, 0o644); err != nil {
		return err
	}
	fmt.Printf("Dumped %d bytes (%d pages of %d) from %#02x to %s\n",
		len(buf), flagDumpPages, size, found.Addr, args[0])
	return nil
}
