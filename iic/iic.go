// Package iic provides the two-wire bus transport used by the EEPROM
// discovery and transfer tools.
//
// Design notes:
// • A Controller is one bus master port. Transactions go through the
//   drivers.I2C Tx primitive; Busy reports a transaction still on the wire.
// • Controllers with a hardware slave-monitor mode expose it through the
//   Monitor* operations; Probe builds a bounded presence check on top.
// • A Port wraps a controller into a session that enforces the bus-idle
//   discipline: the bus must be idle before a transaction starts and the
//   port waits for it to go idle again afterwards.
// • All waits run on an injected clock so tests drive them deterministically.
package iic

import (
	"errors"
	"time"

	"tinygo.org/x/drivers"

	"eeprobe-go/x/mathx"
)

const (
	// DefaultClockHz is the serial clock rate applied to a controller when
	// discovery (re)initialises it.
	DefaultClockHz uint32 = 100_000

	// DefaultIdleTimeout bounds the wait for the bus to go idle.
	DefaultIdleTimeout = time.Second

	// DefaultIdlePoll is the busy-poll interval while waiting for idle.
	DefaultIdlePoll = 100 * time.Microsecond

	// DefaultProbeTimeout bounds a slave presence probe.
	DefaultProbeTimeout = 500 * time.Millisecond

	// DefaultProbePoll is the monitor poll interval during a probe.
	DefaultProbePoll = 100 * time.Microsecond
)

// 7-bit address space with the reserved blocks at both ends excluded.
const (
	AddrMin uint16 = 0x08
	AddrMax uint16 = 0x77
)

var (
	ErrBusBusy = errors.New("iic: bus busy past deadline")
	ErrNoData  = errors.New("iic: empty transfer")
	ErrAddress = errors.New("iic: address outside 7-bit device range")
)

// Controller is one two-wire bus master port.
//
// Tx performs a blocking transaction: w written first, then r filled from
// a read with a repeated start. Either slice may be empty. Busy reports
// whether a transaction is still in flight; callers are expected to hold
// off until it clears.
type Controller interface {
	drivers.I2C

	Busy() bool

	// Slave-monitor mode: MonitorStart arms the monitor for addr,
	// MonitorReady polls whether the address has acknowledged, and
	// MonitorStop disarms the monitor and clears any latched state.
	MonitorStart(addr uint16) error
	MonitorReady() (bool, error)
	MonitorStop() error
}

// ClockSetter is implemented by controllers whose serial clock rate can be
// programmed. Discovery applies DefaultClockHz through it on (re)init.
type ClockSetter interface {
	SetClockHz(hz uint32) error
}

// Provider yields a ready-to-use controller for an integer identifier.
// Implementations may cache: a repeated id returns the same underlying
// port, reinitialised for a fresh probe.
type Provider interface {
	Controller(id int) (Controller, error)
}

// ValidAddr reports whether addr is an assignable 7-bit device address.
func ValidAddr(addr uint16) bool {
	return mathx.Between(addr, AddrMin, AddrMax)
}
