package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/jmhodges/clock"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"eeprobe-go/board"
	"eeprobe-go/scan"
	"eeprobe-go/sim"
)

// rigFile is the JSON override for the built-in profile. Addresses are
// strings so hex ("0x74") reads naturally.
type rigFile struct {
	Controllers    []int    `json:"controllers"`
	MuxAddrs       []string `json:"mux_addrs"`
	EepromAddrs    []string `json:"eeprom_addrs"`
	ProbeTimeoutMs int      `json:"probe_timeout_ms"`
	SettleMs       int      `json:"settle_ms"`
	AckPoll        bool     `json:"ack_poll"`
}

// rig is everything a command needs to talk to the bus.
type rig struct {
	cfg scan.Config
	log *zap.Logger

	sim     *sim.Rig // non-nil in --sim mode
	cleanup func()
}

func (r *rig) close() {
	if r.cleanup != nil {
		r.cleanup()
	}
	_ = r.log.Sync()
}

// buildRig assembles the scan configuration from the built-in profile,
// the optional rig file and the flags, then attaches the requested
// provider.
func buildRig() (*rig, error) {
	log := newLogger(flagVerbose)
	fs := afero.NewOsFs()

	prof := board.Default
	cfg := scan.Config{
		Controllers:  prof.Controllers,
		MuxAddrs:     prof.MuxAddrs,
		EepromAddrs:  prof.EepromAddrs,
		ProbeTimeout: flagProbeTimeout,
		WriteSettle:  flagSettle,
		AckPoll:      flagAckPoll,
		Clock:        clock.New(),
		Log:          log,
	}

	if flagConfig != "" {
		if err := applyRigFile(fs, flagConfig, &cfg); err != nil {
			return nil, err
		}
	}

	r := &rig{cfg: cfg, log: log}
	if flagSim {
		simRig := sim.NewRig(cfg.Clock)
		r.sim = simRig
		r.cfg.Provider = simRig.Provider
		r.cfg.Controllers = []int{0}
		log.Debug("simulated rig",
			zap.Uint16("mux", simRig.Mux.Address()),
			zap.Int("eeprom_page_size", simRig.EEPROM.PageSize()))
		return r, nil
	}

	devs := flagDevs
	if len(devs) == 0 {
		devs = []int{0}
	}
	provider, cleanup, err := newPlatformProvider(devs)
	if err != nil {
		return nil, err
	}
	r.cfg.Provider = provider
	r.cleanup = cleanup
	if flagDevs != nil || len(r.cfg.Controllers) == 0 {
		r.cfg.Controllers = make([]int, len(devs))
		for i := range devs {
			r.cfg.Controllers[i] = i
		}
	}
	return r, nil
}

func applyRigFile(fs afero.Fs, path string, cfg *scan.Config) error {
	raw, err := afero.ReadFile(fs, path)
	if err != nil {
		return fmt.Errorf("rig file: %w", err)
	}
	var rf rigFile
	if err := json.Unmarshal(raw, &rf); err != nil {
		return fmt.Errorf("rig file %s: %w", path, err)
	}
	if rf.Controllers != nil {
		cfg.Controllers = rf.Controllers
	}
	if rf.MuxAddrs != nil {
		if cfg.MuxAddrs, err = parseAddrs(rf.MuxAddrs); err != nil {
			return fmt.Errorf("rig file %s: mux_addrs: %w", path, err)
		}
	}
	if rf.EepromAddrs != nil {
		if cfg.EepromAddrs, err = parseAddrs(rf.EepromAddrs); err != nil {
			return fmt.Errorf("rig file %s: eeprom_addrs: %w", path, err)
		}
	}
	if rf.ProbeTimeoutMs > 0 && cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = time.Duration(rf.ProbeTimeoutMs) * time.Millisecond
	}
	if rf.SettleMs > 0 && cfg.WriteSettle == 0 {
		cfg.WriteSettle = time.Duration(rf.SettleMs) * time.Millisecond
	}
	if rf.AckPoll {
		cfg.AckPoll = true
	}
	return nil
}

// parseAddrs reads bus addresses in any strconv base-0 form ("0x54", "84").
func parseAddrs(in []string) ([]uint16, error) {
	out := make([]uint16, 0, len(in))
	for _, s := range in {
		v, err := strconv.ParseUint(s, 0, 16)
		if err != nil {
			return nil, fmt.Errorf("address %q: %w", s, err)
		}
		out = append(out, uint16(v))
	}
	return out, nil
}
