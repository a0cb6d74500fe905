package scan

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"eeprobe-go/drivers/seeprom"
	"eeprobe-go/x/mathx"
)

// ErrVerify means a read-back byte did not match what was written.
var ErrVerify = errors.New("scan: verify mismatch")

// DefaultExercisePages is the stock soak length.
const DefaultExercisePages = 256

// ExerciseConfig drives one write/verify run. A zero Pages takes
// DefaultExercisePages; a zero Pattern takes 0xFF.
type ExerciseConfig struct {
	Pages     int
	StartPage int
	Pattern   byte
	Log       *zap.Logger
}

func (c ExerciseConfig) withDefaults() ExerciseConfig {
	if c.Pages == 0 {
		c.Pages = DefaultExercisePages
	}
	c.Pages = mathx.Clamp(c.Pages, 1, 1<<16)
	if c.StartPage < 0 {
		c.StartPage = 0
	}
	if c.Pattern == 0 {
		c.Pattern = 0xFF
	}
	if c.Log == nil {
		c.Log = zap.NewNop()
	}
	return c
}

// Exercise soaks the device: it writes Pages consecutive pages of the
// pattern, then reads every page back and compares byte for byte. The
// write pass runs to completion before any read; the first failure of
// either pass aborts the run.
func Exercise(ctx context.Context, dev *seeprom.Device, cfg ExerciseConfig) error {
	cfg = cfg.withDefaults()
	size := dev.PageSize()

	page := make([]byte, size)
	for i := range page {
		page[i] = cfg.Pattern
	}

	cfg.Log.Info("exercise start",
		zap.Uint16("addr", dev.Address()),
		zap.Int("page_size", size),
		zap.Int("pages", cfg.Pages))

	for p := 0; p < cfg.Pages; p++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		off := (cfg.StartPage + p) * size
		if err := dev.WriteAt(off, page); err != nil {
			return fmt.Errorf("scan: exercise write page %d: %w", p, err)
		}
		cfg.Log.Debug("page written", zap.Int("page", p))
	}

	buf := make([]byte, size)
	for p := 0; p < cfg.Pages; p++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		off := (cfg.StartPage + p) * size
		if err := dev.ReadAt(off, buf); err != nil {
			return fmt.Errorf("scan: exercise read page %d: %w", p, err)
		}
		for i, b := range buf {
			if b != cfg.Pattern {
				return fmt.Errorf("%w: page %d byte %d: got %#02x want %#02x",
					ErrVerify, p, i, b, cfg.Pattern)
			}
		}
		cfg.Log.Debug("page verified", zap.Int("page", p))
	}

	cfg.Log.Info("exercise complete", zap.Int("pages", cfg.Pages))
	return nil
}
