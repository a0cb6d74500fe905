// Package errcode maps errors from the bus, discovery and transfer layers
// onto stable failure codes for report output and exit statuses.
package errcode

import (
	"errors"

	"eeprobe-go/drivers/seeprom"
	"eeprobe-go/iic"
	"eeprobe-go/scan"
)

// Code is a stable failure identifier.
// It is a string newtype, comparable, allocation-free, and implements error.
type Code string

func (c Code) Error() string { return string(c) }

// Canonical codes (short, stable).
const (
	OK        Code = "ok"
	Bus       Code = "bus_error"
	Discovery Code = "discovery_error"
	Transfer  Code = "transfer_error"

	Error Code = "error" // generic fallback
)

// Of classifies an error chain. Discovery outcomes win over the transfer
// context, which wins over the raw bus cause underneath it.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	if errors.Is(err, scan.ErrNoDevice) || errors.Is(err, seeprom.ErrPageSize) {
		return Discovery
	}
	var te *seeprom.TransferError
	if errors.As(err, &te) ||
		errors.Is(err, scan.ErrVerify) ||
		errors.Is(err, seeprom.ErrBounds) ||
		errors.Is(err, seeprom.ErrNotReady) {
		return Transfer
	}
	var be *iic.BusError
	if errors.As(err, &be) ||
		errors.Is(err, iic.ErrBusBusy) ||
		errors.Is(err, iic.ErrNoData) ||
		errors.Is(err, iic.ErrAddress) {
		return Bus
	}
	var c Code
	if errors.As(err, &c) {
		return c
	}
	return Error
}
