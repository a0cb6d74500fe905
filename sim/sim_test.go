package sim

import (
	"errors"
	"testing"

	"github.com/jmhodges/clock"

	"eeprobe-go/iic"
	"eeprobe-go/x/timex"
)

func TestEEPROM_SinglePointerByteWrap(t *testing.T) {
	e := NewEEPROM(64, 16, 1)

	// Pointer 14, four data bytes: the last two wrap to the page start.
	if err := e.Tx([]byte{14, 0xA0, 0xA1, 0xA2, 0xA3}, nil); err != nil {
		t.Fatalf("tx: %v", err)
	}
	mem := e.Bytes()
	if mem[14] != 0xA0 || mem[15] != 0xA1 {
		t.Fatalf("page tail = %#02x %#02x", mem[14], mem[15])
	}
	if mem[0] != 0xA2 || mem[1] != 0xA3 {
		t.Fatalf("wrap landed at %#02x %#02x, want the page start", mem[0], mem[1])
	}
	if mem[16] != 0 {
		t.Fatal("write crossed the page boundary")
	}
	if e.Writes() != 1 {
		t.Fatalf("write cycles = %d, want 1", e.Writes())
	}
}

func TestEEPROM_TwoPointerBytes(t *testing.T) {
	e := NewEEPROM(8192, 64, 2)
	if err := e.Tx([]byte{0x01, 0x23, 0x5A}, nil); err != nil {
		t.Fatalf("tx: %v", err)
	}
	if e.Bytes()[0x123] != 0x5A {
		t.Fatalf("byte at 0x123 = %#02x, want 0x5A", e.Bytes()[0x123])
	}
}

func TestEEPROM_ReadStreamsAcrossBoundaries(t *testing.T) {
	e := NewEEPROM(64, 16, 1)
	for i := range e.Bytes() {
		e.Bytes()[i] = byte(i)
	}

	// Position at 60 and read 8: past the array end the pointer wraps to 0.
	r := make([]byte, 8)
	if err := e.Tx([]byte{60}, r); err != nil {
		t.Fatalf("tx: %v", err)
	}
	want := []byte{60, 61, 62, 63, 0, 1, 2, 3}
	for i := range want {
		if r[i] != want[i] {
			t.Fatalf("read = %v, want %v", r, want)
		}
	}
	if e.Writes() != 0 {
		t.Fatal("pointer positioning counted as a write cycle")
	}
}

func TestEEPROM_WriteProtectAcksAndDiscards(t *testing.T) {
	e := NewEEPROM(64, 16, 1)
	e.SetWriteProtect(true)

	if err := e.Tx([]byte{0, 1, 2, 3}, nil); err != nil {
		t.Fatalf("tx: %v", err)
	}
	for i, b := range e.Bytes()[:4] {
		if b != 0 {
			t.Fatalf("byte %d = %#02x, want the write discarded", i, b)
		}
	}
	if e.Writes() != 1 {
		t.Fatalf("write cycles = %d, want 1 (acknowledged, not stored)", e.Writes())
	}
}

func TestMux_GatesChannelSegments(t *testing.T) {
	clk := clock.NewFake()
	c := NewController(clk)
	m := NewMux(0x74)
	e := NewEEPROM(64, 16, 1)
	m.AttachChannel(1, 0x54, e)
	c.AttachMux(m)

	// Nothing selected: the part does not answer.
	if err := c.Tx(0x54, []byte{0}, nil); !errors.Is(err, ErrNoAck) {
		t.Fatalf("err = %v, want ErrNoAck", err)
	}

	// Select channel 1 through the control register.
	if err := c.Tx(0x74, []byte{0x02}, nil); err != nil {
		t.Fatalf("select: %v", err)
	}
	if m.Selected() != 0x02 {
		t.Fatalf("register = %#02x, want 0x02", m.Selected())
	}
	if err := c.Tx(0x54, []byte{0}, nil); err != nil {
		t.Fatalf("part unreachable with its channel selected: %v", err)
	}

	// Readback returns the register.
	r := make([]byte, 1)
	if err := c.Tx(0x74, nil, r); err != nil {
		t.Fatalf("readback: %v", err)
	}
	if r[0] != 0x02 {
		t.Fatalf("readback = %#02x, want 0x02", r[0])
	}
}

func TestController_LogsEveryAttempt(t *testing.T) {
	c := NewController(clock.NewFake())
	c.Attach(0x54, NewEEPROM(64, 16, 1))

	_ = c.Tx(0x54, []byte{0, 1}, nil)
	_ = c.Tx(0x55, []byte{9}, nil) // nobody home

	log := c.Log()
	if len(log) != 2 {
		t.Fatalf("log length = %d, want 2", len(log))
	}
	if log[0].Addr != 0x54 || log[0].Err != nil || len(log[0].W) != 2 {
		t.Fatalf("first record = %+v", log[0])
	}
	if log[1].Addr != 0x55 || log[1].Err == nil {
		t.Fatal("missed attempt not recorded as failed")
	}
}

func TestController_FaultHookFailsTransaction(t *testing.T) {
	c := NewController(clock.NewFake())
	e := NewEEPROM(64, 16, 1)
	c.Attach(0x54, e)

	boom := errors.New("glitch")
	c.OnTx(func(n int, addr uint16, w, r []byte) error {
		if n == 2 {
			return boom
		}
		return nil
	})

	if err := c.Tx(0x54, []byte{0, 0xAA}, nil); err != nil {
		t.Fatalf("first tx: %v", err)
	}
	if err := c.Tx(0x54, []byte{1, 0xBB}, nil); !errors.Is(err, boom) {
		t.Fatalf("second tx: %v, want the scripted fault", err)
	}
	if e.Writes() != 1 {
		t.Fatalf("write cycles = %d: the failed transaction reached the part", e.Writes())
	}
	if log := c.Log(); log[1].Err == nil {
		t.Fatal("fault not recorded")
	}
}

func TestController_BusOccupancyFollowsClock(t *testing.T) {
	clk := clock.NewFake()
	c := NewController(clk)
	c.Attach(0x54, NewEEPROM(64, 16, 1))

	if err := c.Tx(0x54, []byte{0, 1, 2, 3}, nil); err != nil {
		t.Fatalf("tx: %v", err)
	}
	if !c.Busy() {
		t.Fatal("wire free immediately after a transaction")
	}
	clk.Add(timex.ByteTime(5, iic.DefaultClockHz))
	if c.Busy() {
		t.Fatal("wire still busy after the transfer time passed")
	}
}

func TestController_MonitorSeesWriteCycle(t *testing.T) {
	c := NewController(clock.NewFake())
	e := NewEEPROM(64, 16, 1)
	e.SetWriteCycle(2)
	c.Attach(0x54, e)

	if err := c.Tx(0x54, []byte{0, 0xAA}, nil); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := c.MonitorStart(0x54); err != nil {
		t.Fatalf("monitor start: %v", err)
	}
	for i := 0; i < 2; i++ {
		ready, err := c.MonitorReady()
		if err != nil {
			t.Fatalf("poll %d: %v", i+1, err)
		}
		if ready {
			t.Fatalf("poll %d acknowledged mid write cycle", i+1)
		}
	}
	ready, err := c.MonitorReady()
	if err != nil || !ready {
		t.Fatalf("ready=%v err=%v after the write cycle", ready, err)
	}
	if err := c.MonitorStop(); err != nil {
		t.Fatalf("monitor stop: %v", err)
	}
}

func TestController_MonitorLatencyAndAbsence(t *testing.T) {
	c := NewController(clock.NewFake())
	c.Attach(0x54, NewEEPROM(64, 16, 1))
	c.SetMonitorLatency(2)

	if _, err := c.MonitorReady(); !errors.Is(err, ErrMonitor) {
		t.Fatalf("unarmed poll: %v, want ErrMonitor", err)
	}

	_ = c.MonitorStart(0x54)
	for i := 0; i < 2; i++ {
		if ready, _ := c.MonitorReady(); ready {
			t.Fatalf("poll %d ready before the latency passed", i+1)
		}
	}
	if ready, _ := c.MonitorReady(); !ready {
		t.Fatal("present device never acknowledged")
	}
	_ = c.MonitorStop()

	_ = c.MonitorStart(0x31)
	c.SetMonitorLatency(0)
	if ready, err := c.MonitorReady(); err != nil || ready {
		t.Fatalf("empty address: ready=%v err=%v", ready, err)
	}
}

func TestProvider_ResetsControllerOnFetch(t *testing.T) {
	c := NewController(clock.NewFake())
	p := NewProvider(c)

	if _, err := p.Controller(1); err == nil {
		t.Fatal("out-of-range fetch succeeded")
	}
	got, err := p.Controller(0)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if got.(*Controller) != c {
		t.Fatal("provider handed out a different controller")
	}
	if c.Resets() != 1 {
		t.Fatalf("resets = %d, want 1", c.Resets())
	}
	if _, err := p.Controller(0); err != nil {
		t.Fatalf("refetch: %v", err)
	}
	if c.Resets() != 2 {
		t.Fatalf("resets = %d, want 2", c.Resets())
	}
}

func TestRig_DefaultTopology(t *testing.T) {
	r := NewRig(clock.NewFake())
	if r.Mux.Address() != 0x74 {
		t.Fatalf("mux at %#02x, want 0x74", r.Mux.Address())
	}
	if r.EEPROM.PageSize() != 64 {
		t.Fatalf("page size = %d, want 64", r.EEPROM.PageSize())
	}
	// The EEPROM answers once its channel is selected.
	if err := r.Controller.Tx(0x74, []byte{0x04}, nil); err != nil {
		t.Fatalf("select: %v", err)
	}
	if err := r.Controller.Tx(0x54, []byte{0, 0}, nil); err != nil {
		t.Fatalf("eeprom unreachable on channel 2: %v", err)
	}
}
