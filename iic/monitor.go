package iic

import (
	"fmt"
	"time"

	"github.com/jmhodges/clock"
)

// ProbeConfig bounds a presence probe. Zero values take the package
// defaults.
type ProbeConfig struct {
	Timeout time.Duration // overall deadline
	Poll    time.Duration // monitor poll interval
}

func (c ProbeConfig) withDefaults() ProbeConfig {
	if c.Timeout == 0 {
		c.Timeout = DefaultProbeTimeout
	}
	if c.Poll == 0 {
		c.Poll = DefaultProbePoll
	}
	return c
}

// Probe reports whether a slave at addr acknowledges its address, using
// the controller's slave-monitor mode. The monitor is polled until it
// reports the address acknowledged or the deadline passes; absence is a
// result, not an error. The monitor is always disarmed before returning.
func Probe(clk clock.Clock, c Controller, addr uint16, cfg ProbeConfig) (bool, error) {
	if !ValidAddr(addr) {
		return false, fmt.Errorf("%w: %#02x", ErrAddress, addr)
	}
	if clk == nil {
		clk = clock.New()
	}
	cfg = cfg.withDefaults()

	if err := c.MonitorStart(addr); err != nil {
		return false, &BusError{Op: "monitor", Addr: addr, Err: err}
	}

	deadline := clk.Now().Add(cfg.Timeout)
	for {
		ready, err := c.MonitorReady()
		if err != nil {
			_ = c.MonitorStop()
			return false, &BusError{Op: "monitor", Addr: addr, Err: err}
		}
		if ready {
			if err := c.MonitorStop(); err != nil {
				return false, &BusError{Op: "monitor stop", Addr: addr, Err: err}
			}
			return true, nil
		}
		if clk.Now().After(deadline) {
			if err := c.MonitorStop(); err != nil {
				return false, &BusError{Op: "monitor stop", Addr: addr, Err: err}
			}
			return false, nil
		}
		clk.Sleep(cfg.Poll)
	}
}
