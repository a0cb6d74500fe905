package sim

import "fmt"

// Mux models a PCA9546-style 4-channel bus multiplexer. Writing selects
// channels through a one-hot control register; reading returns the
// register. Devices on a channel segment are only reachable while the
// channel's bit is set.
type Mux struct {
	addr uint16
	reg  byte
	segs [4]map[uint16]Device
}

var _ Device = (*Mux)(nil)

// NewMux returns a multiplexer answering at addr.
func NewMux(addr uint16) *Mux {
	return &Mux{addr: addr}
}

// Address returns the mux's own bus address.
func (m *Mux) Address() uint16 { return m.addr }

// Selected returns the current control register.
func (m *Mux) Selected() byte { return m.reg }

// AttachChannel places d at addr on channel ch (0..3; channel ch answers
// to mask 1<<ch).
func (m *Mux) AttachChannel(ch int, addr uint16, d Device) {
	if ch < 0 || ch >= len(m.segs) {
		panic(fmt.Sprintf("sim: mux channel %d out of range", ch))
	}
	if m.segs[ch] == nil {
		m.segs[ch] = make(map[uint16]Device)
	}
	m.segs[ch][addr] = d
}

func (m *Mux) Tx(w, r []byte) error {
	if len(w) > 0 {
		m.reg = w[0]
	}
	for i := range r {
		r[i] = m.reg
	}
	return nil
}

func (m *Mux) lookup(addr uint16) Device {
	for ch := 0; ch < len(m.segs); ch++ {
		if m.reg&(1<<ch) == 0 || m.segs[ch] == nil {
			continue
		}
		if d, ok := m.segs[ch][addr]; ok {
			return d
		}
	}
	return nil
}
