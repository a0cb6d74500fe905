// Package pca9546 selects channels on a PCA9546-class 4-channel two-wire
// bus multiplexer.
//
// A select writes the one-hot channel mask to the control register and
// reads the register back once. The readback is a liveness check only;
// its value is not validated.
package pca9546

import (
	"fmt"

	"eeprobe-go/iic"
)

const (
	// AddressDefault is the all-pins-low device address.
	AddressDefault uint16 = 0x74

	// MaxChannels is the number of downstream segments.
	MaxChannels = 4
)

// Masks returns the channel masks in probe order: one-hot, descending
// from MaxChannels.
func Masks() []byte {
	var masks []byte
	for ch := byte(MaxChannels); ch > 0; ch >>= 1 {
		masks = append(masks, ch)
	}
	return masks
}

// Device is one multiplexer behind a bus port.
type Device struct {
	port *iic.Port
	addr uint16
	w    [1]byte
	r    [1]byte
}

// New returns a device on port. A zero addr takes AddressDefault.
func New(port *iic.Port, addr uint16) *Device {
	if addr == 0 {
		addr = AddressDefault
	}
	return &Device{port: port, addr: addr}
}

// Address returns the mux's bus address.
func (d *Device) Address() uint16 { return d.addr }

// Select writes mask to the control register and reads it back once.
func (d *Device) Select(mask byte) error {
	d.w[0] = mask
	if err := d.port.Send(d.addr, d.w[:]); err != nil {
		return fmt.Errorf("pca9546: select %#02x: %w", mask, err)
	}
	if err := d.port.Recv(d.addr, d.r[:]); err != nil {
		return fmt.Errorf("pca9546: select %#02x readback: %w", mask, err)
	}
	return nil
}

// Read returns the current control register.
func (d *Device) Read() (byte, error) {
	if err := d.port.Recv(d.addr, d.r[:]); err != nil {
		return 0, fmt.Errorf("pca9546: read: %w", err)
	}
	return d.r[0], nil
}
