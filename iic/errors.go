package iic

import "fmt"

// BusError is a failed bus-level operation: a transaction that errored or
// a slave monitor that could not run. It wraps the controller's cause.
type BusError struct {
	Op   string // "tx", "monitor", "monitor stop"
	Addr uint16
	Err  error
}

func (e *BusError) Error() string {
	return fmt.Sprintf("iic: %s %#02x: %v", e.Op, e.Addr, e.Err)
}

func (e *BusError) Unwrap() error { return e.Err }
