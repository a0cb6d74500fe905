// Package seeprom drives 24Cxx-class serial EEPROMs over a two-wire bus
// port: paged writes, pointer-positioned reads, empirical page-size
// detection and a configurable post-write quiescence wait.
//
// Design notes:
// • Byte address framing follows the page size: 16-byte-page parts take a
//   single low address byte, larger parts take high then low.
// • A write never crosses a page boundary; the multi-page helpers chunk on
//   page edges.
// • Every write cycle ends with a quiescence wait (default: a fixed 250ms
//   settle) before the next transaction reaches the part.
package seeprom

import (
	"errors"
	"fmt"
	"time"

	"eeprobe-go/iic"
)

const (
	// AddressDefault is the common ground-strapped device address.
	AddressDefault uint16 = 0x54

	PageSize16 = 16
	PageSize32 = 32
	PageSize64 = 64

	MaxPageSize = PageSize64

	// DefaultWriteSettle is the fixed post-write quiescence.
	DefaultWriteSettle = 250 * time.Millisecond
)

var (
	ErrPageSize = errors.New("seeprom: page size probe found no match")
	ErrBounds   = errors.New("seeprom: write crosses a page boundary")
	ErrNotReady = errors.New("seeprom: device busy past deadline")
)

// TransferError is a failed paged transfer. It wraps the bus-level cause.
type TransferError struct {
	Op   string // "write", "read", "set pointer"
	Addr uint16
	Off  int
	Err  error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("seeprom: %s %#02x at %#x: %v", e.Op, e.Addr, e.Off, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

// Config holds device parameters. Zero values take defaults: address 0x54,
// 32-byte pages, a fixed 250ms settle on the port's clock.
type Config struct {
	Address     uint16
	PageSize    int           // 16, 32 or 64
	WriteSettle time.Duration // fixed post-write wait
	Ready       ReadyWaiter   // overrides WriteSettle when set
}

// Device is one EEPROM behind a bus port.
type Device struct {
	port  *iic.Port
	addr  uint16
	page  int
	ready ReadyWaiter

	// Fixed transfer buffer: address frame plus one full page.
	w [2 + MaxPageSize]byte
}

// New returns a device on port. The page size is taken on trust; use
// DetectPageSize when it is unknown.
func New(port *iic.Port, cfg Config) *Device {
	addr := cfg.Address
	if addr == 0 {
		addr = AddressDefault
	}
	page := cfg.PageSize
	if page == 0 {
		page = PageSize32
	}
	ready := cfg.Ready
	if ready == nil {
		ready = &FixedSettle{Clock: port.Clock(), Settle: cfg.WriteSettle}
	}
	return &Device{port: port, addr: addr, page: page, ready: ready}
}

// Address returns the device's bus address.
func (d *Device) Address() uint16 { return d.addr }

// PageSize returns the configured write page size.
func (d *Device) PageSize() int { return d.page }

// frame writes the byte address for off into the transfer buffer and
// returns its length: one byte for 16-byte-page parts, high then low for
// the rest.
func (d *Device) frame(off int) int {
	if d.page == PageSize16 {
		d.w[0] = byte(off)
		return 1
	}
	d.w[0] = byte(off >> 8)
	d.w[1] = byte(off)
	return 2
}

func (d *Device) checkPage(off, n int) error {
	if off < 0 || n > d.page {
		return fmt.Errorf("%w: %d bytes at %#x (page %d)", ErrBounds, n, off, d.page)
	}
	if off/d.page != (off+n-1)/d.page {
		return fmt.Errorf("%w: %d bytes at %#x (page %d)", ErrBounds, n, off, d.page)
	}
	return nil
}

// WriteAt writes data as a single page write at off, then waits for the
// part's write cycle to quiesce. The data must lie within one page.
func (d *Device) WriteAt(off int, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if err := d.checkPage(off, len(data)); err != nil {
		return err
	}
	n := d.frame(off)
	n += copy(d.w[n:], data)
	if err := d.port.Send(d.addr, d.w[:n]); err != nil {
		return &TransferError{Op: "write", Addr: d.addr, Off: off, Err: err}
	}
	return d.waitReady()
}

// setPointer positions the part's internal address pointer with a
// frame-only write. The part treats it as a write cycle, so the same
// quiescence wait applies.
func (d *Device) setPointer(off int) error {
	n := d.frame(off)
	if err := d.port.Send(d.addr, d.w[:n]); err != nil {
		return &TransferError{Op: "set pointer", Addr: d.addr, Off: off, Err: err}
	}
	return d.waitReady()
}

// ReadAt positions the pointer at off and reads len(buf) bytes.
func (d *Device) ReadAt(off int, buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	if off < 0 {
		return fmt.Errorf("%w: read at %#x", ErrBounds, off)
	}
	if err := d.setPointer(off); err != nil {
		return err
	}
	if err := d.port.Recv(d.addr, buf); err != nil {
		return &TransferError{Op: "read", Addr: d.addr, Off: off, Err: err}
	}
	return nil
}

// Write chunks data on page boundaries and writes each chunk in turn.
// The first failure stops the transfer.
func (d *Device) Write(off int, data []byte) error {
	for len(data) > 0 {
		n := d.page - off%d.page
		if n > len(data) {
			n = len(data)
		}
		if err := d.WriteAt(off, data[:n]); err != nil {
			return err
		}
		off += n
		data = data[n:]
	}
	return nil
}

// Read fills buf starting at off, one page-sized transaction at a time.
func (d *Device) Read(off int, buf []byte) error {
	for len(buf) > 0 {
		n := d.page - off%d.page
		if n > len(buf) {
			n = len(buf)
		}
		if err := d.ReadAt(off, buf[:n]); err != nil {
			return err
		}
		off += n
		buf = buf[n:]
	}
	return nil
}

func (d *Device) waitReady() error {
	return d.ready.WaitReady(d.addr)
}
