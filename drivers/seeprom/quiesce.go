package seeprom

import (
	"fmt"
	"time"

	"github.com/jmhodges/clock"
	"github.com/jpillora/backoff"

	"eeprobe-go/iic"
)

// Ack-poll bounds.
const (
	DefaultAckTimeout = 100 * time.Millisecond
	defaultAckMin     = 500 * time.Microsecond
	defaultAckMax     = 5 * time.Millisecond
)

// ReadyWaiter blocks until the part has finished its internal write cycle
// and can accept the next transaction.
type ReadyWaiter interface {
	WaitReady(addr uint16) error
}

// FixedSettle waits a fixed duration on the clock after every write
// cycle. This is the default quiescence: unconditional, device-agnostic.
type FixedSettle struct {
	Clock  clock.Clock   // nil selects the system clock
	Settle time.Duration // 0 selects DefaultWriteSettle
}

var _ ReadyWaiter = (*FixedSettle)(nil)

func (f *FixedSettle) WaitReady(addr uint16) error {
	clk := f.Clock
	if clk == nil {
		clk = clock.New()
	}
	d := f.Settle
	if d == 0 {
		d = DefaultWriteSettle
	}
	clk.Sleep(d)
	return nil
}

// AckPoll waits by asking: it probes the part through the controller's
// slave monitor until the address acknowledges again, backing off between
// attempts. Parts typically finish a write cycle in single-digit
// milliseconds, so this is much quicker than a fixed settle.
type AckPoll struct {
	Port    *iic.Port
	Timeout time.Duration // overall deadline (0 selects DefaultAckTimeout)
	Min     time.Duration // first backoff interval
	Max     time.Duration // backoff ceiling
}

var _ ReadyWaiter = (*AckPoll)(nil)

func (a *AckPoll) WaitReady(addr uint16) error {
	clk := a.Port.Clock()
	c := a.Port.Controller()
	timeout := a.Timeout
	if timeout == 0 {
		timeout = DefaultAckTimeout
	}
	b := &backoff.Backoff{Min: a.Min, Max: a.Max, Factor: 2}
	if b.Min == 0 {
		b.Min = defaultAckMin
	}
	if b.Max == 0 {
		b.Max = defaultAckMax
	}

	deadline := clk.Now().Add(timeout)
	for {
		ready, err := probeOnce(c, addr)
		if err != nil {
			return fmt.Errorf("seeprom: ack poll %#02x: %w", addr, err)
		}
		if ready {
			return nil
		}
		if clk.Now().After(deadline) {
			return fmt.Errorf("%w: %#02x after %v", ErrNotReady, addr, timeout)
		}
		clk.Sleep(b.Duration())
	}
}

// probeOnce is a single arm-poll-disarm monitor cycle.
func probeOnce(c iic.Controller, addr uint16) (bool, error) {
	if err := c.MonitorStart(addr); err != nil {
		return false, err
	}
	ready, err := c.MonitorReady()
	if stopErr := c.MonitorStop(); err == nil {
		err = stopErr
	}
	if err != nil {
		return false, err
	}
	return ready, nil
}
