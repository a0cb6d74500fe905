package main

import (
	"bufio"
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"strconv"

	"github.com/google/shlex"
	"github.com/spf13/cobra"

	"eeprobe-go/drivers/pca9546"
	"eeprobe-go/drivers/seeprom"
	"eeprobe-go/iic"
	"eeprobe-go/scan"
)

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Interactive bus console",
	Long: `Open an interactive console on the configured bus. Commands:

  open <ctl>             open controller <ctl> and make it current
  scan                   run discovery and adopt the result
  probe <addr>           check whether <addr> acknowledges
  select <mask>          set the mux channel mask
  page <size>            set the page size for r/w (16, 32 or 64)
  r <addr> <off> <len>   read <len> bytes from <addr> at <off>
  w <addr> <off> <b...>  write bytes to <addr> at <off>
  quit                   leave the shell

Numbers accept 0x prefixes. Errors are printed and the shell keeps
going; the exit code reflects the last failure.`,
	Args: cobra.NoArgs,
	RunE: runShell,
}

func init() {
	rootCmd.AddCommand(shellCmd)
}

type shellState struct {
	r    *rig
	ctl  iic.Controller
	port *iic.Port
	mux  *pca9546.Device
	page int
}

func runShell(cmd *cobra.Command, args []string) error {
	r, err := buildRig()
	if err != nil {
		return err
	}
	defer r.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	st := &shellState{r: r, page: int(scan.FallbackPageSize)}
	if len(r.cfg.Controllers) > 0 {
		if err := st.open(r.cfg.Controllers[0]); err != nil {
			fmt.Fprintf(os.Stderr, "eeprobe: %v\n", err)
		}
	}

	var lastErr error
	sc := bufio.NewScanner(os.Stdin)
	fmt.Print("eeprobe> ")
	for sc.Scan() {
		if ctx.Err() != nil {
			break
		}
		words, err := shlex.Split(sc.Text())
		if err != nil {
			fmt.Fprintf(os.Stderr, "eeprobe: %v\n", err)
			fmt.Print("eeprobe> ")
			continue
		}
		if len(words) == 0 {
			fmt.Print("eeprobe> ")
			continue
		}
		if words[0] == "quit" || words[0] == "exit" {
			break
		}
		if err := st.dispatch(ctx, words); err != nil {
			lastErr = err
			fmt.Fprintf(os.Stderr, "eeprobe: %v\n", err)
		}
		fmt.Print("eeprobe> ")
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return lastErr
}

func (st *shellState) dispatch(ctx context.Context, words []string) error {
	switch words[0] {
	case "open":
		if len(words) != 2 {
			return fmt.Errorf("usage: open <ctl>")
		}
		n, err := strconv.Atoi(words[1])
		if err != nil {
			return err
		}
		return st.open(n)
	case "scan":
		found, err := scan.Find(ctx, st.r.cfg)
		if err != nil {
			return err
		}
		st.ctl = found.Port.Controller()
		st.port = found.Port
		st.page = found.PageSize
		st.mux = nil
		fmt.Printf("found %#02x on controller %d, page size %d\n",
			found.Addr, found.Controller, found.PageSize)
		return nil
	case "probe":
		if len(words) != 2 {
			return fmt.Errorf("usage: probe <addr>")
		}
		if st.ctl == nil {
			return fmt.Errorf("no controller open")
		}
		addr, err := parseHexAddr(words[1])
		if err != nil {
			return err
		}
		ok, err := iic.Probe(st.r.cfg.Clock, st.ctl, addr, iic.ProbeConfig{Timeout: st.r.cfg.ProbeTimeout})
		if err != nil {
			return err
		}
		if ok {
			fmt.Printf("%#02x: ack\n", addr)
		} else {
			fmt.Printf("%#02x: no response\n", addr)
		}
		return nil
	case "select":
		if len(words) != 2 {
			return fmt.Errorf("usage: select <mask>")
		}
		mask, err := strconv.ParseUint(words[1], 0, 8)
		if err != nil {
			return err
		}
		if err := st.needPort(); err != nil {
			return err
		}
		if st.mux == nil {
			if len(st.r.cfg.MuxAddrs) == 0 {
				return fmt.Errorf("no mux address configured")
			}
			st.mux = pca9546.New(st.port, st.r.cfg.MuxAddrs[0])
		}
		return st.mux.Select(byte(mask))
	case "page":
		if len(words) != 2 {
			return fmt.Errorf("usage: page <size>")
		}
		n, err := strconv.Atoi(words[1])
		if err != nil {
			return err
		}
		switch n {
		case seeprom.PageSize16, seeprom.PageSize32, seeprom.PageSize64:
			st.page = n
			return nil
		default:
			return fmt.Errorf("page size must be 16, 32 or 64")
		}
	case "r":
		if len(words) != 4 {
			return fmt.Errorf("usage: r <addr> <off> <len>")
		}
		dev, off, err := st.devAt(words[1], words[2])
		if err != nil {
			return err
		}
		n, err := strconv.Atoi(words[3])
		if err != nil {
			return err
		}
		buf := make([]byte, n)
		if err := dev.Read(off, buf); err != nil {
			return err
		}
		fmt.Print(hex.Dump(buf))
		return nil
	case "w":
		if len(words) < 4 {
			return fmt.Errorf("usage: w <addr> <off> <byte...>")
		}
		dev, off, err := st.devAt(words[1], words[2])
		if err != nil {
			return err
		}
		data := make([]byte, 0, len(words)-3)
		for _, s := range words[3:] {
			b, err := strconv.ParseUint(s, 0, 8)
			if err != nil {
				return err
			}
			data = append(data, byte(b))
		}
		return dev.Write(off, data)
	default:
		return fmt.Errorf("unknown command %q", words[0])
	}
}

func (st *shellState) open(n int) error {
	c, err := st.r.cfg.Provider.Controller(n)
	if err != nil {
		return err
	}
	hz := st.r.cfg.ClockHz
	if hz == 0 {
		hz = iic.DefaultClockHz
	}
	if cs, ok := c.(iic.ClockSetter); ok {
		if err := cs.SetClockHz(hz); err != nil {
			return err
		}
	}
	st.ctl = c
	st.port = iic.NewPort(c, st.r.cfg.Clock, iic.PortConfig{IdleTimeout: st.r.cfg.IdleTimeout})
	st.mux = nil
	fmt.Printf("controller %d open\n", n)
	return nil
}

func (st *shellState) needPort() error {
	if st.port == nil {
		return fmt.Errorf("no controller open (use: open <ctl>)")
	}
	return nil
}

// devAt builds a transfer handle for an ad-hoc address using the
// shell's current page size.
func (st *shellState) devAt(addrWord, offWord string) (*seeprom.Device, int, error) {
	if err := st.needPort(); err != nil {
		return nil, 0, err
	}
	addr, err := parseHexAddr(addrWord)
	if err != nil {
		return nil, 0, err
	}
	off, err := strconv.ParseUint(offWord, 0, 16)
	if err != nil {
		return nil, 0, err
	}
	cfg := seeprom.Config{
		Address:     addr,
		PageSize:    st.page,
		WriteSettle: st.r.cfg.WriteSettle,
	}
	if st.r.cfg.Ready != nil {
		cfg.Ready = st.r.cfg.Ready
	} else if st.r.cfg.AckPoll {
		cfg.Ready = &seeprom.AckPoll{Port: st.port}
	}
	return seeprom.New(st.port, cfg), int(off), nil
}

func parseHexAddr(s string) (uint16, error) {
	v, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return 0, err
	}
	addr := uint16(v)
	if !iic.ValidAddr(addr) {
		return 0, fmt.Errorf("address %#02x out of 7-bit range", addr)
	}
	return addr, nil
}
