package sensor

import (
	"context"
	"fmt"

	"github.com/davidplowman/imx258/internal/monitoring"
	"github.com/davidplowman/imx258/internal/regbus"
)

// StreamState is the streaming lifecycle state.
type StreamState int

const (
	StateStandby StreamState = iota
	StateStarting
	StateStreaming
	StateStopping
)

func (s StreamState) String() string {
	switch s {
	case StateStandby:
		return "standby"
	case StateStarting:
		return "starting"
	case StateStreaming:
		return "streaming"
	case StateStopping:
		return "stopping"
	default:
		return fmt.Sprintf("StreamState(%d)", int(s))
	}
}

// SetStreaming starts or stops the pixel stream. Requesting the state the
// sensor is already in is a no-op. While streaming the flip controls are
// locked: the bayer order was negotiated into the format and must not move
// under an active receiver.
func (d *Device) SetStreaming(ctx context.Context, enable bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.streaming == enable {
		return nil
	}

	if enable {
		if err := d.startStreamingLocked(ctx); err != nil {
			return err
		}
	} else {
		d.stopStreamingLocked(ctx)
	}

	d.controls.grab(CtrlHFlip, enable)
	d.controls.grab(CtrlVFlip, enable)
	return nil
}

// Streaming reports whether the sensor is streaming.
func (d *Device) Streaming() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.streaming
}

// State returns the current lifecycle state.
func (d *Device) State() StreamState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *Device) startStreamingLocked(ctx context.Context) error {
	d.state = StateStarting

	if err := d.powerOnLocked(ctx); err != nil {
		d.state = StateStandby
		return err
	}
	if err := d.writeStartSequenceLocked(ctx); err != nil {
		// No rollback of whatever was written: power off resets the
		// sensor, the next attempt starts from scratch.
		d.powerOffLocked()
		d.state = StateStandby
		return err
	}

	d.streaming = true
	d.state = StateStreaming
	return nil
}

// writeStartSequenceLocked programs the sensor for streaming: global setup
// once per power cycle, then the mode table, the accumulated control
// values, and finally the mode select.
func (d *Device) writeStartSequenceLocked(ctx context.Context) error {
	if !d.commonRegsWritten {
		if err := regbus.WriteSeq(ctx, d.bus, commonRegs); err != nil {
			return fmt.Errorf("common registers: %w", err)
		}
		d.commonRegsWritten = true
	}

	if err := regbus.WriteSeq(ctx, d.bus, d.mode.regs); err != nil {
		return fmt.Errorf("mode %dx%d registers: %w", d.mode.Width, d.mode.Height, err)
	}

	if err := d.commitControlsLocked(ctx); err != nil {
		return fmt.Errorf("control commit: %w", err)
	}

	return d.bus.Write(ctx, regModeSelect, regbus.W8, modeStreaming)
}

func (d *Device) stopStreamingLocked(ctx context.Context) {
	d.state = StateStopping

	// A failed standby write leaves nothing to recover: halting teardown
	// would keep the sensor streaming with no one consuming it.
	if err := d.bus.Write(ctx, regModeSelect, regbus.W8, modeStandby); err != nil {
		monitoring.Logf("sensor: stop streaming: %v", err)
	}

	d.powerOffLocked()
	d.streaming = false
	d.state = StateStandby
}

func (d *Device) powerOnLocked(ctx context.Context) error {
	if d.powered {
		return nil
	}
	if err := d.power.PowerOn(ctx); err != nil {
		return fmt.Errorf("power on: %w", err)
	}
	// XCLR deassert to first register transaction settle time.
	d.clock.Sleep(xclrSettleDelay)
	d.powered = true
	return nil
}

func (d *Device) powerOffLocked() {
	if !d.powered {
		return
	}
	d.power.PowerOff()
	d.powered = false
	// Global registers are lost with the power; force reprogramming on
	// the next power up.
	d.commonRegsWritten = false
}

// Suspend halts the stream ahead of a system sleep, remembering the
// streaming intent so Resume can restore it.
func (d *Device) Suspend(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.streaming {
		return
	}
	d.stopStreamingLocked(ctx)
	d.resumeStream = true
}

// Resume restarts the stream stopped by Suspend. A failed restart performs
// the stop sequence and drops the intent; the caller decides whether to
// try streaming again.
func (d *Device) Resume(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.resumeStream {
		return nil
	}
	d.resumeStream = false

	if err := d.startStreamingLocked(ctx); err != nil {
		d.stopStreamingLocked(ctx)
		return err
	}
	return nil
}

// PowerLost handles an external report that the sensor supply dropped. The
// stop sequence is attempted once (the standby write is expected to fail
// and is swallowed), and the power-cycle bookkeeping is reset so the next
// start reprograms everything.
func (d *Device) PowerLost(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.streaming {
		d.stopStreamingLocked(ctx)
		d.controls.grab(CtrlHFlip, false)
		d.controls.grab(CtrlVFlip, false)
		d.resumeStream = false
	}

	d.powered = false
	d.commonRegsWritten = false
}
