package seeprom

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"eeprobe-go/iic"
)

// Probe order: largest candidate first, first full match wins.
var pageSizeCandidates = [...]int{PageSize64, PageSize32, PageSize16}

// ProbeOptions tunes the page-size probe's transfers.
type ProbeOptions struct {
	WriteSettle time.Duration
	Ready       ReadyWaiter
	Log         *zap.Logger
}

// DetectPageSize determines the part's write page size empirically. Each
// candidate size is tried in turn with its own address framing: a full
// candidate-sized pattern is written at offset 0, read back, and compared
// byte for byte. The first candidate that reads back complete is the
// answer. A transport failure aborts the probe; candidates exhausted
// without a full match yield ErrPageSize.
//
// The pattern for the candidate at rank i is pattern[n] = byte(n + i), so
// a stale image from an earlier candidate never matches the next one.
func DetectPageSize(port *iic.Port, addr uint16, opts ProbeOptions) (int, error) {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}

	var pattern, readback [MaxPageSize]byte
	for rank, size := range pageSizeCandidates {
		dev := New(port, Config{
			Address:     addr,
			PageSize:    size,
			WriteSettle: opts.WriteSettle,
			Ready:       opts.Ready,
		})
		for i := 0; i < size; i++ {
			pattern[i] = byte(i + rank)
		}
		if err := dev.WriteAt(0, pattern[:size]); err != nil {
			return 0, fmt.Errorf("seeprom: page probe %d write: %w", size, err)
		}
		if err := dev.ReadAt(0, readback[:size]); err != nil {
			return 0, fmt.Errorf("seeprom: page probe %d read: %w", size, err)
		}
		matched := 0
		for i := 0; i < size; i++ {
			if readback[i] == pattern[i] {
				matched++
			}
		}
		log.Debug("page size probe",
			zap.Uint16("addr", addr),
			zap.Int("size", size),
			zap.Int("matched", matched))
		if matched == size {
			return size, nil
		}
	}
	return 0, ErrPageSize
}
