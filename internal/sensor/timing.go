package sensor

import (
	"context"
	"fmt"

	"github.com/davidplowman/imx258/internal/monitoring"
	"github.com/davidplowman/imx258/internal/regbus"
)

// frameLength converts a frame interval to a frame length in lines for the
// mode, clamped to the representable range. The computation never wraps: a
// request beyond the register maximum saturates at FrameLengthMax.
func frameLength(m *Mode, interval Fract) uint32 {
	fl := uint64(interval.Numerator) * PixelRate /
		(uint64(interval.Denominator) * uint64(m.LineLength))
	if fl > FrameLengthMax {
		fl = FrameLengthMax
	}
	if fl < uint64(m.Height) {
		fl = uint64(m.Height)
	}
	return uint32(fl)
}

// LongExposureShift reduces a frame length to fit the 16-bit frame length
// register, halving until it fits and counting the power-of-two shift. The
// reduction truncates: (reduced << shift) can be up to (1<<shift)-1 lines
// short of the request. Requests beyond the shift-7 ceiling saturate.
func LongExposureShift(fl uint32) (shift uint, reduced uint32) {
	for fl > FrameLengthMax && shift < LongExpShiftMax {
		shift++
		fl >>= 1
	}
	if fl > FrameLengthMax {
		fl = FrameLengthMax
	}
	return shift, fl
}

// setFrameLengthLocked programs a frame length, engaging the long exposure
// shift for values beyond the register range. The frame length register is
// written before the shift register: the shift scales the frame length the
// hardware already holds, so the reverse order would transiently program a
// frame 2^shift times longer than intended.
func (d *Device) setFrameLengthLocked(ctx context.Context, fl uint32) error {
	shift, reduced := LongExposureShift(fl)
	d.longExpShift = shift

	if err := d.bus.Write(ctx, regFrameLength, regbus.W16, reduced); err != nil {
		return err
	}
	return d.bus.Write(ctx, regLongExpShift, regbus.W8, uint32(shift))
}

// adjustExposureRangeLocked re-derives the exposure ceiling from the
// current VBLANK value and the long exposure shift, shrinking the stored
// exposure value if the new ceiling cuts it off.
func (d *Device) adjustExposureRangeLocked() {
	exp, _ := d.controls.get(CtrlExposure)
	vb, _ := d.controls.get(CtrlVBlank)

	max := int64(d.mode.Height) + vb.Value - int64(ExposureOffset<<d.longExpShift)
	exp.Max = max
	if exp.Default > max {
		exp.Default = max
	}
	if exp.Value > max {
		exp.Value = max
	}
}

// setFramingLimitsLocked recomputes the frame timing control ranges for
// the active mode and drives VBLANK to the mode default.
func (d *Device) setFramingLimitsLocked(ctx context.Context) {
	m := d.mode
	flMin := frameLength(m, m.MinFrameInterval)
	flDefault := frameLength(m, m.DefaultFrameInterval)

	// Default to no long exposure multiplier.
	d.longExpShift = 0

	vb, _ := d.controls.get(CtrlVBlank)
	vb.Min = int64(flMin) - int64(m.Height)
	vb.Max = (int64(1)<<LongExpShiftMax)*FrameLengthMax - int64(m.Height)
	vb.Default = int64(flDefault) - int64(m.Height)

	// Setting VBLANK through the control path adjusts the exposure
	// limits as well, and writes the frame length when powered. There is
	// no caller to hand a bus error to here; the commit on stream start
	// writes the value again.
	if err := d.setControlLocked(ctx, CtrlVBlank, vb.Default); err != nil {
		monitoring.Logf("sensor: apply default vblank: %v", err)
	}

	// The line length is fixed per mode, so HBLANK follows from the mode
	// width alone and stays pinned until the next mode change.
	hblank := int64(m.LineLength - m.Width)
	hb, _ := d.controls.get(CtrlHBlank)
	hb.Min = hblank
	hb.Max = hblank
	hb.Default = hblank
	hb.Value = hblank
}

// FrameInterval returns the frame interval implied by the active mode and
// the current VBLANK value.
func (d *Device) FrameInterval() Fract {
	d.mu.Lock()
	defer d.mu.Unlock()

	vb, _ := d.controls.get(CtrlVBlank)
	fl := uint64(d.mode.Height) + uint64(vb.Value)
	return reduceFract(fl*uint64(d.mode.LineLength), PixelRate)
}

// SetFrameInterval requests a frame interval by deriving the matching
// frame length and driving the VBLANK control. The request is clamped to
// what the mode and the long exposure shift can realize; read back the
// interval afterwards for the exact result.
func (d *Device) SetFrameInterval(ctx context.Context, interval Fract) error {
	if interval.Numerator == 0 || interval.Denominator == 0 {
		return fmt.Errorf("%w: zero frame interval term", ErrInvalidArgument)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	m := d.mode
	fl := uint64(interval.Numerator) * PixelRate /
		(uint64(interval.Denominator) * uint64(m.LineLength))
	if max := uint64(FrameLengthMax) << LongExpShiftMax; fl > max {
		fl = max
	}
	if fl < uint64(m.Height) {
		fl = uint64(m.Height)
	}

	vb, _ := d.controls.get(CtrlVBlank)
	vblank := int64(fl) - int64(m.Height)
	if vblank < vb.Min {
		vblank = vb.Min
	}
	if vblank > vb.Max {
		vblank = vb.Max
	}
	return d.setControlLocked(ctx, CtrlVBlank, vblank)
}

// reduceFract reduces num/den to lowest terms that fit the Fract fields.
func reduceFract(num, den uint64) Fract {
	g := gcd(num, den)
	return Fract{
		Numerator:   uint32(num / g),
		Denominator: uint32(den / g),
	}
}

func gcd(a, b uint64) uint64 {
	for b != 0 {
		a, b = b, a%b
	}
	if a == 0 {
		return 1
	}
	return a
}
