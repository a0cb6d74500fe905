package sim

import "fmt"

// EEPROM models a 24Cxx-class serial EEPROM:
//
// • A write transaction starts with the device's pointer bytes (one or
//   two, a property of the part, not of the master's framing), followed by
//   data. Data wraps within the addressed page, as the real parts do.
// • A read transaction streams from the current pointer, which advances
//   across page boundaries and wraps at the end of the array.
// • A write-protected part acknowledges writes but discards the data.
//
// The mismatch between a master's assumed framing and the part's actual
// pointer width is what the page-size probe exploits; this model keeps
// that behaviour intact.
type EEPROM struct {
	mem      []byte
	pageSize int
	addrLen  int
	ptr      int

	wp bool

	// Write-cycle modelling: after a data write the part withholds its
	// monitor acknowledge for writeCycle polls. Transactions themselves
	// are not gated, so fixed-settle transfers stay deterministic.
	writeCycle  int
	pendingBusy int

	writes int
}

var _ Device = (*EEPROM)(nil)

// NewEEPROM returns a part of size bytes with the given true page size and
// pointer width (1 or 2 address bytes).
func NewEEPROM(size, pageSize, addrLen int) *EEPROM {
	if size <= 0 || pageSize <= 0 || size%pageSize != 0 {
		panic(fmt.Sprintf("sim: bad eeprom geometry %d/%d", size, pageSize))
	}
	if addrLen != 1 && addrLen != 2 {
		panic(fmt.Sprintf("sim: bad eeprom pointer width %d", addrLen))
	}
	return &EEPROM{
		mem:      make([]byte, size),
		pageSize: pageSize,
		addrLen:  addrLen,
	}
}

// Bytes returns the backing array for direct inspection in tests.
func (e *EEPROM) Bytes() []byte { return e.mem }

// PageSize returns the part's true page size.
func (e *EEPROM) PageSize() int { return e.pageSize }

// Writes returns the number of completed data write cycles.
func (e *EEPROM) Writes() int { return e.writes }

// SetWriteProtect makes the part acknowledge and discard writes.
func (e *EEPROM) SetWriteProtect(on bool) { e.wp = on }

// SetWriteCycle sets how many monitor polls a write cycle withholds the
// acknowledge for.
func (e *EEPROM) SetWriteCycle(polls int) { e.writeCycle = polls }

func (e *EEPROM) ackReady() bool {
	if e.pendingBusy > 0 {
		e.pendingBusy--
		return false
	}
	return true
}

func (e *EEPROM) Tx(w, r []byte) error {
	if len(w) > 0 {
		e.write(w)
	}
	for i := range r {
		r[i] = e.mem[e.ptr]
		e.ptr = (e.ptr + 1) % len(e.mem)
	}
	return nil
}

func (e *EEPROM) write(w []byte) {
	// The part consumes its pointer bytes first, regardless of how many
	// the master thought it was sending.
	ptr := 0
	n := e.addrLen
	if n > len(w) {
		n = len(w)
	}
	for _, b := range w[:n] {
		ptr = ptr<<8 | int(b)
	}
	e.ptr = ptr % len(e.mem)

	data := w[n:]
	if len(data) == 0 {
		return
	}
	if !e.wp {
		base := e.ptr / e.pageSize * e.pageSize
		col := e.ptr % e.pageSize
		for _, b := range data {
			e.mem[base+col] = b
			col = (col + 1) % e.pageSize
		}
		e.ptr = base + col
	}
	e.writes++
	e.pendingBusy = e.writeCycle
}
