package sim

import (
	"fmt"

	"github.com/jmhodges/clock"

	"eeprobe-go/iic"
)

// Provider hands out simulated controllers by scan index. Fetching a
// controller reinitialises it, matching what a probe does to real
// hardware.
type Provider struct {
	controllers []*Controller
}

var _ iic.Provider = (*Provider)(nil)

// NewProvider indexes the given controllers from 0.
func NewProvider(cs ...*Controller) *Provider {
	return &Provider{controllers: cs}
}

func (p *Provider) Controller(id int) (iic.Controller, error) {
	if id < 0 || id >= len(p.controllers) {
		return nil, fmt.Errorf("sim: no controller %d", id)
	}
	c := p.controllers[id]
	c.Reset()
	return c, nil
}

// Rig is the default simulated topology: one controller with a 4-channel
// mux at 0x74 and a 64-byte-page EEPROM at 0x54 on channel 2, which is the
// first channel discovery tries.
type Rig struct {
	Controller *Controller
	Mux        *Mux
	EEPROM     *EEPROM
	Provider   *Provider
}

// NewRig assembles the default topology on clk.
func NewRig(clk clock.Clock) *Rig {
	c := NewController(clk)
	m := NewMux(0x74)
	e := NewEEPROM(8192, 64, 2)
	m.AttachChannel(2, 0x54, e)
	c.AttachMux(m)
	return &Rig{
		Controller: c,
		Mux:        m,
		EEPROM:     e,
		Provider:   NewProvider(c),
	}
}
