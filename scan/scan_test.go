package scan

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/jmhodges/clock"

	"eeprobe-go/iic"
	"eeprobe-go/sim"
)

func TestFind_BehindMuxWithProbedPageSize(t *testing.T) {
	w := newWorld([]uint16{0x74}, []uint16{0x54, 0x55})
	mux := sim.NewMux(0x74)
	rom := sim.NewEEPROM(8192, 64, 2)
	mux.AttachChannel(2, 0x54, rom) // channel 2 answers mask 0x04, the first tried
	w.ctl.AttachMux(mux)

	found, err := Find(context.Background(), w.cfg)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	want := Result{Controller: 0, Addr: 0x54, PageSize: 64, ViaMux: true, MuxAddr: 0x74, Channel: 0x04}
	if found.Result != want {
		t.Fatalf("result = %+v, want %+v", found.Result, want)
	}

	// The session is live: a round trip reaches the part behind the mux.
	data := []byte{1, 2, 3, 4}
	if err := found.Device.Write(0, data); err != nil {
		t.Fatalf("write: %v", err)
	}
	got := make([]byte, len(data))
	if err := found.Device.Read(0, got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatal("round trip differs")
	}
}

func TestFind_WalksMasksInOrder(t *testing.T) {
	w := newWorld([]uint16{0x74}, []uint16{0x54})
	mux := sim.NewMux(0x74)
	mux.AttachChannel(1, 0x54, sim.NewEEPROM(4096, 32, 2)) // answers mask 0x02, tried second
	w.ctl.AttachMux(mux)

	found, err := Find(context.Background(), w.cfg)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if found.Channel != 0x02 {
		t.Fatalf("channel = %#02x, want 0x02", found.Channel)
	}
	if found.PageSize != 32 {
		t.Fatalf("page size = %d, want 32", found.PageSize)
	}
	if got := selects(w.ctl.Log(), 0x74); len(got) != 2 || got[0] != 0x04 || got[1] != 0x02 {
		t.Fatalf("selects = %#v, want the first two masks in order", got)
	}
}

func TestFind_EmptyCandidatesTouchNothing(t *testing.T) {
	w := newWorld(nil, nil)
	_, err := Find(context.Background(), w.cfg)
	if !errors.Is(err, ErrNoDevice) {
		t.Fatalf("err = %v, want ErrNoDevice", err)
	}
	if w.ctl.TxCount() != 0 {
		t.Fatalf("transactions = %d, want none", w.ctl.TxCount())
	}
	if w.ctl.Resets() != 0 {
		t.Fatalf("controller inits = %d, want none", w.ctl.Resets())
	}
}

func TestFind_DirectPartAssumesPageSize(t *testing.T) {
	w := newWorld([]uint16{0x74}, []uint16{0x54, 0x55})
	w.ctl.Attach(0x55, sim.NewEEPROM(4096, 64, 2)) // true page size differs on purpose

	found, err := Find(context.Background(), w.cfg)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	want := Result{Controller: 0, Addr: 0x55, PageSize: FallbackPageSize}
	if found.Result != want {
		t.Fatalf("result = %+v, want %+v", found.Result, want)
	}
	// Assumed, not probed: nothing has touched the wire yet.
	if w.ctl.TxCount() != 0 {
		t.Fatalf("transactions = %d before the first transfer, want none", w.ctl.TxCount())
	}
}

func TestFind_RespondingEmptyMuxStillFallsThrough(t *testing.T) {
	w := newWorld([]uint16{0x74}, []uint16{0x54, 0x55})
	w.ctl.AttachMux(sim.NewMux(0x74)) // mux answers, nothing behind it

	_, err := Find(context.Background(), w.cfg)
	if !errors.Is(err, ErrNoDevice) {
		t.Fatalf("err = %v, want ErrNoDevice", err)
	}
	// One init for the mux stage, one per direct candidate after it.
	if got := w.ctl.Resets(); got != 3 {
		t.Fatalf("controller inits = %d, want 3", got)
	}
	// Every mask was tried for both candidates before falling through.
	if got := selects(w.ctl.Log(), 0x74); len(got) != 6 {
		t.Fatalf("channel selects = %d, want 6", len(got))
	}
}

func TestFind_SelectFaultAbortsScan(t *testing.T) {
	w := newWorld([]uint16{0x74}, []uint16{0x54})
	mux := sim.NewMux(0x74)
	mux.AttachChannel(0, 0x54, sim.NewEEPROM(4096, 32, 2))
	w.ctl.AttachMux(mux)

	boom := errors.New("stuck scl")
	w.ctl.OnTx(func(n int, addr uint16, wr, r []byte) error {
		if addr == 0x74 {
			return boom
		}
		return nil
	})

	_, err := Find(context.Background(), w.cfg)
	if err == nil || errors.Is(err, ErrNoDevice) {
		t.Fatalf("err = %v, want an aborted scan", err)
	}
	var be *iic.BusError
	if !errors.As(err, &be) {
		t.Fatalf("err = %v, want the bus fault underneath", err)
	}
	if w.ctl.TxCount() != 1 {
		t.Fatalf("transactions = %d, want only the failed select", w.ctl.TxCount())
	}
	if w.ctl.Resets() != 1 {
		t.Fatal("scan moved on after a select fault")
	}
}

func TestFind_PageProbeFaultAbortsScan(t *testing.T) {
	w := newWorld([]uint16{0x74}, []uint16{0x54})
	mux := sim.NewMux(0x74)
	mux.AttachChannel(2, 0x54, sim.NewEEPROM(8192, 64, 2))
	w.ctl.AttachMux(mux)

	boom := errors.New("dropped ack")
	w.ctl.OnTx(func(n int, addr uint16, wr, r []byte) error {
		if addr == 0x54 && len(wr) > 2 {
			return boom
		}
		return nil
	})

	_, err := Find(context.Background(), w.cfg)
	if err == nil || errors.Is(err, ErrNoDevice) {
		t.Fatalf("err = %v, want an aborted scan", err)
	}
	if !errors.Is(err, boom) {
		t.Fatalf("cause missing from chain: %v", err)
	}
	if got := payloadWrites(w.ctl.Log(), 0x54); got != 1 {
		t.Fatalf("pattern writes = %d, want 1", got)
	}
	if w.ctl.Resets() != 1 {
		t.Fatal("fallback stage ran after an aborted probe")
	}
}

func TestFind_SecondControllerWins(t *testing.T) {
	clk := clock.NewFake()
	c0 := sim.NewController(clk)
	c1 := sim.NewController(clk)
	c1.Attach(0x54, sim.NewEEPROM(4096, 32, 2))

	cfg := Config{
		Provider:    sim.NewProvider(c0, c1),
		Controllers: []int{0, 1},
		MuxAddrs:    []uint16{0x74},
		EepromAddrs: []uint16{0x54},
		Clock:       clk,
	}
	found, err := Find(context.Background(), cfg)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if found.Controller != 1 || found.Addr != 0x54 {
		t.Fatalf("result = %+v, want the part on controller 1", found.Result)
	}
	// The first controller was walked in full: mux candidate plus direct.
	if c0.Resets() != 2 {
		t.Fatalf("controller 0 inits = %d, want 2", c0.Resets())
	}
}

func TestFind_NilProvider(t *testing.T) {
	_, err := Find(context.Background(), Config{Controllers: []int{0}})
	if err == nil || errors.Is(err, ErrNoDevice) {
		t.Fatalf("err = %v, want a configuration failure", err)
	}
}

func TestFind_CancelledContext(t *testing.T) {
	w := newWorld([]uint16{0x74}, []uint16{0x54})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Find(ctx, w.cfg)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

// -------- helpers --------

type world struct {
	clk clock.FakeClock
	ctl *sim.Controller
	cfg Config
}

// newWorld builds one fake-clocked controller and a config walking it with
// the given candidates.
func newWorld(muxAddrs, eepromAddrs []uint16) *world {
	clk := clock.NewFake()
	ctl := sim.NewController(clk)
	return &world{
		clk: clk,
		ctl: ctl,
		cfg: Config{
			Provider:    sim.NewProvider(ctl),
			Controllers: []int{0},
			MuxAddrs:    muxAddrs,
			EepromAddrs: eepromAddrs,
			Clock:       clk,
		},
	}
}

// selects returns the control register values written to the mux at addr.
func selects(log []sim.TxRecord, addr uint16) []byte {
	var out []byte
	for _, rec := range log {
		if rec.Addr == addr && len(rec.W) == 1 {
			out = append(out, rec.W[0])
		}
	}
	return out
}

// payloadWrites counts transactions to addr carrying data past a two-byte
// address frame.
func payloadWrites(log []sim.TxRecord, addr uint16) int {
	n := 0
	for _, rec := range log {
		if rec.Addr == addr && len(rec.W) > 2 {
			n++
		}
	}
	return n
}
