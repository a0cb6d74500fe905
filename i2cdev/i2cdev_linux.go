//go:build linux

// Package i2cdev drives Linux /dev/i2c-N adapters through the I2C_RDWR
// ioctl and presents them as bus controllers.
//
// The kernel serialises transactions per adapter, so Busy is always false
// and the slave-monitor operations are emulated with a zero-length write
// probe: an acknowledged probe means the address is present.
package i2cdev

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"

	"eeprobe-go/iic"
)

// i2c-dev ABI.
const (
	ioctlFuncs = 0x0705 // I2C_FUNCS
	ioctlRdwr  = 0x0707 // I2C_RDWR

	funcI2C  = 0x00000001 // I2C_FUNC_I2C
	flagRead = 0x0001     // I2C_M_RD
)

type i2cMsg struct {
	addr  uint16
	flags uint16
	len   uint16
	buf   *byte
}

type rdwrData struct {
	msgs  *i2cMsg
	nmsgs uint32
}

var errMonitor = errors.New("i2cdev: monitor not armed")

// Bus is one /dev/i2c-N adapter.
type Bus struct {
	f   *os.File
	num int

	mon      uint16
	monArmed bool
}

var _ iic.Controller = (*Bus)(nil)

// Open opens /dev/i2c-num and checks the adapter speaks plain I2C.
func Open(num int) (*Bus, error) {
	path := fmt.Sprintf("/dev/i2c-%d", num)
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("i2cdev: %w", err)
	}
	var funcs uint64
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), ioctlFuncs,
		uintptr(unsafe.Pointer(&funcs))); errno != 0 {
		f.Close()
		return nil, fmt.Errorf("i2cdev: funcs %s: %w", path, errno)
	}
	if funcs&funcI2C == 0 {
		f.Close()
		return nil, fmt.Errorf("i2cdev: %s does not support plain i2c", path)
	}
	return &Bus{f: f, num: num}, nil
}

// Number returns the adapter number.
func (b *Bus) Number() int { return b.num }

// Close releases the device node.
func (b *Bus) Close() error { return b.f.Close() }

// Tx performs one transaction: w written first, then r filled from a read
// with a repeated start. With both empty it issues a zero-length write,
// which probes addr for an acknowledge.
func (b *Bus) Tx(addr uint16, w, r []byte) error {
	var msgs [2]i2cMsg
	n := 0
	if len(w) > 0 {
		msgs[n] = i2cMsg{addr: addr, len: uint16(len(w)), buf: &w[0]}
		n++
	}
	if len(r) > 0 {
		msgs[n] = i2cMsg{addr: addr, flags: flagRead, len: uint16(len(r)), buf: &r[0]}
		n++
	}
	if n == 0 {
		msgs[0] = i2cMsg{addr: addr}
		n = 1
	}
	data := rdwrData{msgs: &msgs[0], nmsgs: uint32(n)}
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, b.f.Fd(), ioctlRdwr,
		uintptr(unsafe.Pointer(&data)))
	runtime.KeepAlive(&msgs)
	runtime.KeepAlive(w)
	runtime.KeepAlive(r)
	if errno != 0 {
		return fmt.Errorf("i2cdev: rdwr %#02x: %w", addr, errno)
	}
	return nil
}

// Busy always reports false: userspace never observes the adapter mid
// transaction.
func (b *Bus) Busy() bool { return false }

func (b *Bus) MonitorStart(addr uint16) error {
	b.mon = addr
	b.monArmed = true
	return nil
}

func (b *Bus) MonitorReady() (bool, error) {
	if !b.monArmed {
		return false, errMonitor
	}
	err := b.Tx(b.mon, nil, nil)
	if err == nil {
		return true, nil
	}
	if nack(err) {
		return false, nil
	}
	return false, err
}

func (b *Bus) MonitorStop() error {
	b.monArmed = false
	return nil
}

// nack reports whether err is the adapter saying "nobody answered" rather
// than a real transport fault.
func nack(err error) bool {
	return errors.Is(err, unix.ENXIO) ||
		errors.Is(err, unix.EREMOTEIO) ||
		errors.Is(err, unix.EIO)
}

// Provider hands out adapters by scan index, opening each node once and
// reusing it across probes.
type Provider struct {
	mu    sync.Mutex
	buses []int
	open  map[int]*Bus
}

var _ iic.Provider = (*Provider)(nil)

// NewProvider indexes the given adapter numbers from 0.
func NewProvider(buses []int) *Provider {
	return &Provider{buses: buses, open: make(map[int]*Bus)}
}

func (p *Provider) Controller(id int) (iic.Controller, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if id < 0 || id >= len(p.buses) {
		return nil, fmt.Errorf("i2cdev: no controller %d", id)
	}
	if b, ok := p.open[id]; ok {
		return b, nil
	}
	b, err := Open(p.buses[id])
	if err != nil {
		return nil, err
	}
	p.open[id] = b
	return b, nil
}

// Close releases every opened adapter.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var first error
	for id, b := range p.open {
		if err := b.Close(); err != nil && first == nil {
			first = err
		}
		delete(p.open, id)
	}
	return first
}
