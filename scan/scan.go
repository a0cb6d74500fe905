// Package scan finds a serial EEPROM across bus controllers and exercises
// it. Discovery walks controllers, multiplexer candidates and EEPROM
// address candidates in order, determines the write page size empirically
// when the part sits behind a mux, and returns a ready transfer session.
package scan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmhodges/clock"
	"go.uber.org/zap"

	"eeprobe-go/drivers/pca9546"
	"eeprobe-go/drivers/seeprom"
	"eeprobe-go/iic"
)

// ErrNoDevice means every controller and candidate was exhausted without
// an EEPROM acknowledging.
var ErrNoDevice = errors.New("scan: no eeprom found")

// FallbackPageSize is assumed, never probed, for a part found directly on
// a controller rather than behind a mux channel.
const FallbackPageSize = seeprom.PageSize32

// Config drives one discovery run. Candidate slices are walked in order;
// an empty slice skips its stage entirely.
type Config struct {
	Provider    iic.Provider
	Controllers []int
	MuxAddrs    []uint16
	EepromAddrs []uint16

	ClockHz      uint32        // serial clock applied on (re)init (default 100kHz)
	ProbeTimeout time.Duration // presence probe deadline
	IdleTimeout  time.Duration // bus idle deadline
	WriteSettle  time.Duration // post-write quiescence for probe and transfers
	AckPoll      bool          // poll for the acknowledge instead of a fixed settle
	Ready        seeprom.ReadyWaiter // overrides WriteSettle and AckPoll when set

	Clock clock.Clock
	Log   *zap.Logger
}

// readyFor picks the quiescence waiter for devices on port.
func (c Config) readyFor(port *iic.Port) seeprom.ReadyWaiter {
	if c.Ready != nil {
		return c.Ready
	}
	if c.AckPoll {
		return &seeprom.AckPoll{Port: port}
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.ClockHz == 0 {
		c.ClockHz = iic.DefaultClockHz
	}
	if c.ProbeTimeout == 0 {
		c.ProbeTimeout = iic.DefaultProbeTimeout
	}
	if c.Clock == nil {
		c.Clock = clock.New()
	}
	if c.Log == nil {
		c.Log = zap.NewNop()
	}
	return c
}

// Result records where the part was found and how to address it.
type Result struct {
	Controller int    `json:"controller"`
	Addr       uint16 `json:"addr"`
	PageSize   int    `json:"page_size"`
	ViaMux     bool   `json:"via_mux"`
	MuxAddr    uint16 `json:"mux_addr,omitempty"`
	Channel    byte   `json:"channel,omitempty"`
}

// Found is a successful discovery: the result plus a live session on the
// controller the part answered on. When the part is behind a mux, the
// channel is still selected.
type Found struct {
	Result
	Port   *iic.Port
	Device *seeprom.Device
}

// Find walks the configured controllers and candidates and returns the
// first EEPROM that answers.
//
// Per controller, every mux candidate is probed first (each probe
// reinitialises the controller). Behind a responding mux, each EEPROM
// candidate is tried on each channel, masks in descending one-hot order;
// the first part found gets its page size probed and wins. A channel
// select failure or a page probe failure aborts the whole scan. If the
// mux stage yields nothing, the EEPROM candidates are probed directly on
// the bare controller; a part found this way is assumed to have
// FallbackPageSize pages and is not probed.
func Find(ctx context.Context, cfg Config) (*Found, error) {
	cfg = cfg.withDefaults()
	if cfg.Provider == nil {
		return nil, errors.New("scan: no controller provider")
	}
	for _, id := range cfg.Controllers {
		f, err := findOnController(ctx, cfg, id)
		if err != nil {
			return nil, err
		}
		if f != nil {
			cfg.Log.Info("eeprom found",
				zap.Int("controller", f.Controller),
				zap.Uint16("addr", f.Addr),
				zap.Int("page_size", f.PageSize),
				zap.Bool("via_mux", f.ViaMux))
			return f, nil
		}
	}
	return nil, ErrNoDevice
}

func findOnController(ctx context.Context, cfg Config, id int) (*Found, error) {
	log := cfg.Log.With(zap.Int("controller", id))
	probeCfg := iic.ProbeConfig{Timeout: cfg.ProbeTimeout}
	portCfg := iic.PortConfig{IdleTimeout: cfg.IdleTimeout}

	// Mux stage: each candidate gets a freshly initialised controller.
	for _, muxAddr := range cfg.MuxAddrs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c, err := initController(cfg, id)
		if err != nil {
			return nil, err
		}
		present, err := iic.Probe(cfg.Clock, c, muxAddr, probeCfg)
		if err != nil {
			return nil, fmt.Errorf("scan: probe mux %#02x: %w", muxAddr, err)
		}
		if !present {
			log.Debug("no mux", zap.Uint16("addr", muxAddr))
			continue
		}
		log.Debug("mux present", zap.Uint16("addr", muxAddr))

		port := iic.NewPort(c, cfg.Clock, portCfg)
		mux := pca9546.New(port, muxAddr)
		for _, addr := range cfg.EepromAddrs {
			for _, mask := range pca9546.Masks() {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
				// A channel that cannot be selected fails the whole scan.
				if err := mux.Select(mask); err != nil {
					return nil, fmt.Errorf("scan: %w", err)
				}
				log.Debug("mux channel enabled", zap.Uint8("mask", mask))

				present, err := iic.Probe(cfg.Clock, c, addr, probeCfg)
				if err != nil {
					return nil, fmt.Errorf("scan: probe eeprom %#02x: %w", addr, err)
				}
				if !present {
					continue
				}
				size, err := seeprom.DetectPageSize(port, addr, seeprom.ProbeOptions{
					WriteSettle: cfg.WriteSettle,
					Ready:       cfg.readyFor(port),
					Log:         cfg.Log,
				})
				if err != nil {
					return nil, fmt.Errorf("scan: eeprom %#02x: %w", addr, err)
				}
				dev := seeprom.New(port, seeprom.Config{
					Address:     addr,
					PageSize:    size,
					WriteSettle: cfg.WriteSettle,
					Ready:       cfg.readyFor(port),
				})
				return &Found{
					Result: Result{
						Controller: id,
						Addr:       addr,
						PageSize:   size,
						ViaMux:     true,
						MuxAddr:    muxAddr,
						Channel:    mask,
					},
					Port:   port,
					Device: dev,
				}, nil
			}
		}
		log.Debug("nothing behind mux", zap.Uint16("addr", muxAddr))
	}

	// Direct stage: the part may sit on the bus itself. Its page size is
	// not probed; unmuxed parts are assumed 32-byte-page devices.
	for _, addr := range cfg.EepromAddrs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c, err := initController(cfg, id)
		if err != nil {
			return nil, err
		}
		present, err := iic.Probe(cfg.Clock, c, addr, probeCfg)
		if err != nil {
			return nil, fmt.Errorf("scan: probe eeprom %#02x: %w", addr, err)
		}
		if !present {
			log.Debug("no eeprom", zap.Uint16("addr", addr))
			continue
		}
		port := iic.NewPort(c, cfg.Clock, portCfg)
		dev := seeprom.New(port, seeprom.Config{
			Address:     addr,
			PageSize:    FallbackPageSize,
			WriteSettle: cfg.WriteSettle,
			Ready:       cfg.readyFor(port),
		})
		return &Found{
			Result: Result{
				Controller: id,
				Addr:       addr,
				PageSize:   FallbackPageSize,
			},
			Port:   port,
			Device: dev,
		}, nil
	}
	return nil, nil
}

// initController fetches a fresh controller from the provider and applies
// the serial clock rate where the hardware supports it.
func initController(cfg Config, id int) (iic.Controller, error) {
	c, err := cfg.Provider.Controller(id)
	if err != nil {
		return nil, fmt.Errorf("scan: controller %d: %w", id, err)
	}
	if cs, ok := c.(iic.ClockSetter); ok {
		if err := cs.SetClockHz(cfg.ClockHz); err != nil {
			return nil, fmt.Errorf("scan: controller %d clock: %w", id, err)
		}
	}
	return c, nil
}
