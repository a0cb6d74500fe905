// Package sim provides an in-memory two-wire rig: a bus controller, a
// 4-channel multiplexer and serial EEPROM parts with real pointer and page
// semantics. It backs the tools' --sim mode and the package tests.
package sim

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmhodges/clock"

	"eeprobe-go/iic"
	"eeprobe-go/x/timex"
)

var (
	ErrNoAck   = errors.New("sim: no acknowledge")
	ErrMonitor = errors.New("sim: monitor not armed")
)

// Device is one addressable bus slave. Tx handles a single transaction:
// w is what the master writes (may be empty), r is filled for the read leg.
type Device interface {
	Tx(w, r []byte) error
}

// ackReadier lets a device report a write cycle still in progress to the
// slave monitor.
type ackReadier interface {
	ackReady() bool
}

// TxRecord is one transaction attempt seen by the controller.
type TxRecord struct {
	Addr uint16
	W    []byte // copy of the written bytes, nil for pure reads
	RLen int
	Err  error
}

// Controller is a simulated bus master. Devices attach at fixed addresses;
// an attached multiplexer exposes its channel segments through the same
// address space. The controller keeps a log of every transaction attempt
// and models bus occupancy from the programmed serial clock rate.
type Controller struct {
	mu   sync.Mutex
	clk  clock.Clock
	root map[uint16]Device
	mux  *Mux

	hz        uint32
	busyUntil time.Time

	log  []TxRecord
	onTx func(n int, addr uint16, w, r []byte) error

	resets int

	mon struct {
		armed bool
		addr  uint16
		polls int
	}
	monLatency int
}

var (
	_ iic.Controller  = (*Controller)(nil)
	_ iic.ClockSetter = (*Controller)(nil)
)

// NewController returns an empty controller on clk. A nil clk selects the
// system clock.
func NewController(clk clock.Clock) *Controller {
	if clk == nil {
		clk = clock.New()
	}
	return &Controller{
		clk:  clk,
		root: make(map[uint16]Device),
		hz:   iic.DefaultClockHz,
	}
}

// Attach places d at addr on the root segment.
func (c *Controller) Attach(addr uint16, d Device) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.root[addr] = d
}

// AttachMux places m at its own address and routes lookups through its
// selected channels.
func (c *Controller) AttachMux(m *Mux) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.root[m.addr] = m
	c.mux = m
}

// OnTx installs a hook called before each transaction attempt with its
// 1-based sequence number. A non-nil return fails the transaction without
// reaching any device.
func (c *Controller) OnTx(fn func(n int, addr uint16, w, r []byte) error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onTx = fn
}

// SetMonitorLatency makes the slave monitor report not-ready for the first
// n polls after arming.
func (c *Controller) SetMonitorLatency(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.monLatency = n
}

// Log returns a copy of the transaction attempt log.
func (c *Controller) Log() []TxRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]TxRecord, len(c.log))
	copy(out, c.log)
	return out
}

// TxCount returns the number of transaction attempts so far.
func (c *Controller) TxCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.log)
}

// Resets returns how many times the controller has been reinitialised.
func (c *Controller) Resets() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resets
}

// Reset reinitialises the controller: the bus is released and the monitor
// disarmed. Attached devices and the transaction log survive.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.busyUntil = time.Time{}
	c.mon.armed = false
	c.mon.polls = 0
	c.resets++
}

// SetClockHz programs the serial clock rate used for bus occupancy.
func (c *Controller) SetClockHz(hz uint32) error {
	if hz == 0 {
		return errors.New("sim: zero clock rate")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hz = hz
	return nil
}

// Tx performs one transaction. The attempt is logged whether or not it
// reaches a device.
func (c *Controller) Tx(addr uint16, w, r []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec := TxRecord{Addr: addr, RLen: len(r)}
	if len(w) > 0 {
		rec.W = append([]byte(nil), w...)
	}
	err := c.dispatch(len(c.log)+1, addr, w, r)
	rec.Err = err
	c.log = append(c.log, rec)

	// The wire is occupied for the address byte plus every data byte, per
	// leg, at the programmed clock rate.
	n := 1 + len(w)
	if len(r) > 0 {
		n += 1 + len(r)
	}
	c.busyUntil = c.clk.Now().Add(timex.ByteTime(n, c.hz))
	return err
}

func (c *Controller) dispatch(n int, addr uint16, w, r []byte) error {
	if c.onTx != nil {
		if err := c.onTx(n, addr, w, r); err != nil {
			return err
		}
	}
	d := c.lookup(addr)
	if d == nil {
		return fmt.Errorf("%w from %#02x", ErrNoAck, addr)
	}
	return d.Tx(w, r)
}

// lookup resolves addr on the root segment, then through the mux's
// selected channels.
func (c *Controller) lookup(addr uint16) Device {
	if d, ok := c.root[addr]; ok {
		return d
	}
	if c.mux != nil {
		return c.mux.lookup(addr)
	}
	return nil
}

// Busy reports whether the last transaction is still occupying the wire.
func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clk.Now().Before(c.busyUntil)
}

func (c *Controller) MonitorStart(addr uint16) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mon.armed = true
	c.mon.addr = addr
	c.mon.polls = 0
	return nil
}

// MonitorReady reports whether the monitored address acknowledged. A
// device that is mid write cycle withholds its acknowledge.
func (c *Controller) MonitorReady() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.mon.armed {
		return false, ErrMonitor
	}
	c.mon.polls++
	if c.mon.polls <= c.monLatency {
		return false, nil
	}
	d := c.lookup(c.mon.addr)
	if d == nil {
		return false, nil
	}
	if ar, ok := d.(ackReadier); ok && !ar.ackReady() {
		return false, nil
	}
	return true, nil
}

func (c *Controller) MonitorStop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mon.armed = false
	c.mon.polls = 0
	return nil
}
