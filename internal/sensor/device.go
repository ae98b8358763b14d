// Package sensor implements the control core for the IMX258 CSI-2 camera
// sensor: mode and format negotiation, derived frame timing, the user
// control bank, and the streaming lifecycle. All register traffic goes
// through a regbus.Bus; nothing here talks to hardware directly.
package sensor

import (
	"context"
	"fmt"
	"sync"

	"github.com/davidplowman/imx258/internal/monitoring"
	"github.com/davidplowman/imx258/internal/regbus"
	"github.com/davidplowman/imx258/internal/timeutil"
)

// Config is the attach-time hardware description. The sensor supports
// exactly one bus configuration and refuses anything else.
type Config struct {
	// Lanes is the CSI-2 data lane count. Must be 2.
	Lanes int

	// LinkFreqsHz lists the link frequencies the receiver offers. Must
	// be exactly [450000000].
	LinkFreqsHz []int64

	// XClkFreqHz is the external clock. Must be 24000000.
	XClkFreqHz int64

	// LenientChipID logs an identity mismatch at attach instead of
	// failing, for early samples with unprogrammed ID registers.
	LenientChipID bool
}

// Device is the sensor control core. One mutex serializes every state
// mutation and all register traffic ordering; see the package tests for
// the guarantees that buys.
type Device struct {
	mu    sync.Mutex
	bus   regbus.Bus
	power regbus.PowerController
	clock timeutil.Clock

	lenientChipID bool

	mode      *Mode
	code      FormatCode
	tryFormat Format

	controls *controlBank

	state        StreamState
	streaming    bool
	resumeStream bool

	powered           bool
	commonRegsWritten bool
	longExpShift      uint
}

// New attaches to the sensor: validates the hardware description, powers
// the sensor up to probe its identity, and builds the default mode,
// format and control state. The device is left unpowered in standby.
func New(ctx context.Context, bus regbus.Bus, power regbus.PowerController, clock timeutil.Clock, cfg Config) (*Device, error) {
	if err := checkHardwareConfig(cfg); err != nil {
		return nil, err
	}
	if power == nil {
		power = regbus.NopPower{}
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}

	d := &Device{
		bus:           bus,
		power:         power,
		clock:         clock,
		lenientChipID: cfg.LenientChipID,
	}

	if err := d.powerOnLocked(ctx); err != nil {
		return nil, err
	}
	if err := d.identifyLocked(ctx); err != nil {
		d.powerOffLocked()
		return nil, err
	}
	d.powerOffLocked()

	d.mode = &supportedModes[0]
	d.code = FormatSRGGB10
	d.tryFormat = makeFormat(d.mode, d.code)

	// No bus traffic here: the device is unpowered, so the control
	// defaults are recorded and replayed on the first stream start.
	d.initControlsLocked(ctx)

	monitoring.Logf("sensor: attached imx258, default mode %dx%d",
		d.mode.Width, d.mode.Height)
	return d, nil
}

func checkHardwareConfig(cfg Config) error {
	if cfg.Lanes != DataLanes {
		return fmt.Errorf("%w: %d data lanes (need %d)",
			ErrConfigUnsupported, cfg.Lanes, DataLanes)
	}
	if len(cfg.LinkFreqsHz) != 1 || cfg.LinkFreqsHz[0] != LinkFrequency {
		return fmt.Errorf("%w: link frequencies %v (need exactly [%d])",
			ErrConfigUnsupported, cfg.LinkFreqsHz, LinkFrequency)
	}
	if cfg.XClkFreqHz != XClkFrequency {
		return fmt.Errorf("%w: external clock %dHz (need %d)",
			ErrConfigUnsupported, cfg.XClkFreqHz, XClkFrequency)
	}
	return nil
}

// identifyLocked reads and checks the chip identity register. Under the
// lenient policy failures are logged and attach continues; some early
// modules ship without the ID programmed.
func (d *Device) identifyLocked(ctx context.Context) error {
	val, err := d.bus.Read(ctx, regChipID, regbus.W16)
	if err != nil {
		if d.lenientChipID {
			monitoring.Logf("sensor: chip id unreadable (%v), continuing", err)
			return nil
		}
		return fmt.Errorf("%w: chip id unreadable: %v", ErrIdentityMismatch, err)
	}
	if val != chipID {
		if d.lenientChipID {
			monitoring.Logf("sensor: chip id %#06x, expected %#06x, continuing", val, chipID)
			return nil
		}
		return fmt.Errorf("%w: read %#06x, want %#06x", ErrIdentityMismatch, val, chipID)
	}
	return nil
}

// Info is a point-in-time snapshot of the device state.
type Info struct {
	State             string   `json:"state"`
	Streaming         bool     `json:"streaming"`
	Powered           bool     `json:"powered"`
	Mode              ModeInfo `json:"mode"`
	Format            Format   `json:"format"`
	LongExpShift      uint     `json:"long_exposure_shift"`
	CommonRegsWritten bool     `json:"common_regs_written"`
	PixelRate         int64    `json:"pixel_rate"`
	LinkFrequency     int64    `json:"link_frequency"`
}

// Info snapshots the device state for the API.
func (d *Device) Info() Info {
	d.mu.Lock()
	defer d.mu.Unlock()

	return Info{
		State:             d.state.String(),
		Streaming:         d.streaming,
		Powered:           d.powered,
		Mode:              modeInfo(modeIndex(d.mode), d.mode),
		Format:            makeFormat(d.mode, d.resolveCodeLocked(d.code)),
		LongExpShift:      d.longExpShift,
		CommonRegsWritten: d.commonRegsWritten,
		PixelRate:         PixelRate,
		LinkFrequency:     LinkFrequency,
	}
}

// Close stops any active stream and releases the bus.
func (d *Device) Close(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.streaming {
		d.stopStreamingLocked(ctx)
		d.controls.grab(CtrlHFlip, false)
		d.controls.grab(CtrlVFlip, false)
	}
	return d.bus.Close()
}
