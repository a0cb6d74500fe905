package iic

import (
	"fmt"
	"sync"
	"time"

	"github.com/jmhodges/clock"
	"tinygo.org/x/drivers"
)

// PortConfig tunes a port's idle-wait behaviour. Zero values take the
// package defaults.
type PortConfig struct {
	IdleTimeout time.Duration // max wait for the bus to go idle
	IdlePoll    time.Duration // busy-poll interval
}

func (c PortConfig) withDefaults() PortConfig {
	if c.IdleTimeout == 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.IdlePoll == 0 {
		c.IdlePoll = DefaultIdlePoll
	}
	return c
}

// Port is a session over one controller. It serialises transactions and
// brackets each one with a bounded wait for bus idle, so a single
// transaction is on the wire at a time and the bus is quiet between them.
type Port struct {
	mu  sync.Mutex
	c   Controller
	clk clock.Clock
	cfg PortConfig
}

// A Port is itself usable wherever a plain transaction primitive is wanted.
var _ drivers.I2C = (*Port)(nil)

// NewPort wraps c. A nil clk selects the system clock.
func NewPort(c Controller, clk clock.Clock, cfg PortConfig) *Port {
	if clk == nil {
		clk = clock.New()
	}
	return &Port{c: c, clk: clk, cfg: cfg.withDefaults()}
}

// Controller returns the underlying controller.
func (p *Port) Controller() Controller { return p.c }

// Clock returns the session clock.
func (p *Port) Clock() clock.Clock { return p.clk }

// Send writes w to addr as one transaction.
func (p *Port) Send(addr uint16, w []byte) error {
	if len(w) == 0 {
		return ErrNoData
	}
	return p.Tx(addr, w, nil)
}

// Recv fills r from addr as one transaction.
func (p *Port) Recv(addr uint16, r []byte) error {
	if len(r) == 0 {
		return ErrNoData
	}
	return p.Tx(addr, nil, r)
}

// Tx performs a write then read transaction against addr, waiting for bus
// idle before and after.
func (p *Port) Tx(addr uint16, w, r []byte) error {
	if len(w) == 0 && len(r) == 0 {
		return ErrNoData
	}
	if !ValidAddr(addr) {
		return fmt.Errorf("%w: %#02x", ErrAddress, addr)
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.waitIdle(); err != nil {
		return err
	}
	if err := p.c.Tx(addr, w, r); err != nil {
		return &BusError{Op: "tx", Addr: addr, Err: err}
	}
	return p.waitIdle()
}

// waitIdle polls Busy until it clears or IdleTimeout elapses. Callers hold
// p.mu.
func (p *Port) waitIdle() error {
	deadline := p.clk.Now().Add(p.cfg.IdleTimeout)
	for p.c.Busy() {
		if p.clk.Now().After(deadline) {
			return ErrBusBusy
		}
		p.clk.Sleep(p.cfg.IdlePoll)
	}
	return nil
}
