package sensor

import (
	"context"
	"fmt"

	"github.com/davidplowman/imx258/internal/monitoring"
	"github.com/davidplowman/imx258/internal/regbus"
)

// ControlID identifies one user-facing control.
type ControlID int

const (
	CtrlPixelRate ControlID = iota + 1
	CtrlVBlank
	CtrlHBlank
	CtrlExposure
	CtrlAnalogueGain
	CtrlDigitalGain
	CtrlHFlip
	CtrlVFlip
	CtrlTestPattern
	CtrlTestPatternRed
	CtrlTestPatternGreenR
	CtrlTestPatternBlue
	CtrlTestPatternGreenB
)

var controlNames = map[ControlID]string{
	CtrlPixelRate:         "pixel_rate",
	CtrlVBlank:            "vblank",
	CtrlHBlank:            "hblank",
	CtrlExposure:          "exposure",
	CtrlAnalogueGain:      "analogue_gain",
	CtrlDigitalGain:       "digital_gain",
	CtrlHFlip:             "hflip",
	CtrlVFlip:             "vflip",
	CtrlTestPattern:       "test_pattern",
	CtrlTestPatternRed:    "test_pattern_red",
	CtrlTestPatternGreenR: "test_pattern_greenr",
	CtrlTestPatternBlue:   "test_pattern_blue",
	CtrlTestPatternGreenB: "test_pattern_greenb",
}

func (id ControlID) String() string {
	if name, ok := controlNames[id]; ok {
		return name
	}
	return fmt.Sprintf("ControlID(%d)", int(id))
}

// ControlByName resolves a control name as used by the HTTP API.
func ControlByName(name string) (ControlID, bool) {
	for id, n := range controlNames {
		if n == name {
			return id, true
		}
	}
	return 0, false
}

// Control is one exposed sensor control with its range metadata. The
// VBLANK and exposure ranges are mutated in place as the mode and frame
// timing change; everything else is fixed at registration.
type Control struct {
	ID      ControlID
	Name    string
	Min     int64
	Max     int64
	Step    int64
	Default int64
	Value   int64

	// ReadOnly controls report state but reject writes.
	ReadOnly bool

	// Menu holds display names for menu controls; Value indexes it.
	Menu []string

	// grabWhileStreaming marks controls locked while the sensor streams.
	grabWhileStreaming bool
	grabbed            bool
}

// controlBank is the control registry. Registration order is also the
// commit order for the bulk write on stream start.
type controlBank struct {
	order []*Control
	byID  map[ControlID]*Control
}

func newControlBank() *controlBank {
	return &controlBank{byID: make(map[ControlID]*Control)}
}

func (b *controlBank) add(c *Control) *Control {
	c.Name = c.ID.String()
	b.order = append(b.order, c)
	b.byID[c.ID] = c
	return c
}

func (b *controlBank) get(id ControlID) (*Control, bool) {
	c, ok := b.byID[id]
	return c, ok
}

func (b *controlBank) grab(id ControlID, grabbed bool) {
	if c, ok := b.byID[id]; ok {
		c.grabbed = grabbed
	}
}

// Test pattern menu. The menu index is the control value; the register
// value differs and comes from testPatternValues.
var testPatternMenu = []string{
	"Disabled",
	"Color Bars",
	"Solid Color",
	"Grey Color Bars",
	"PN9",
}

var testPatternValues = []uint32{0, 2, 1, 3, 4}

// digitalGainRegs is the fan-out order for the per-channel digital gain.
var digitalGainRegs = []uint16{
	regGRDigitalGain,
	regRDigitalGain,
	regBDigitalGain,
	regGBDigitalGain,
}

// initControlsLocked registers the control set. Mode-specific limits are
// placeholders until setFramingLimits fixes them up.
func (d *Device) initControlsLocked(ctx context.Context) {
	b := newControlBank()

	b.add(&Control{ID: CtrlPixelRate, Min: PixelRate, Max: PixelRate,
		Step: 1, Default: PixelRate, Value: PixelRate, ReadOnly: true})
	b.add(&Control{ID: CtrlVBlank, Min: 0, Max: 0xffff, Step: 1})
	b.add(&Control{ID: CtrlHBlank, Min: 0, Max: 0xffff, Step: 1, ReadOnly: true})
	b.add(&Control{ID: CtrlExposure, Min: exposureMin, Max: exposureMax,
		Step: exposureStep, Default: exposureDefault, Value: exposureDefault})
	b.add(&Control{ID: CtrlAnalogueGain, Min: anaGainMin, Max: anaGainMax,
		Step: anaGainStep, Default: anaGainDefault, Value: anaGainDefault})
	b.add(&Control{ID: CtrlDigitalGain, Min: dgtlGainMin, Max: dgtlGainMax,
		Step: dgtlGainStep, Default: dgtlGainDefault, Value: dgtlGainDefault})
	b.add(&Control{ID: CtrlHFlip, Min: 0, Max: 1, Step: 1, grabWhileStreaming: true})
	b.add(&Control{ID: CtrlVFlip, Min: 0, Max: 1, Step: 1, grabWhileStreaming: true})
	b.add(&Control{ID: CtrlTestPattern, Min: 0, Max: int64(len(testPatternMenu) - 1),
		Step: 1, Menu: testPatternMenu})

	// The solid colour pattern is white by default.
	for _, id := range []ControlID{
		CtrlTestPatternRed,
		CtrlTestPatternGreenR,
		CtrlTestPatternBlue,
		CtrlTestPatternGreenB,
	} {
		b.add(&Control{ID: id, Min: testPatternColourMin, Max: testPatternColourMax,
			Step: testPatternColourStep, Default: testPatternColourMax,
			Value: testPatternColourMax})
	}

	d.controls = b
	d.setFramingLimitsLocked(ctx)
}

// ControlInfo is the API-facing snapshot of one control.
type ControlInfo struct {
	Name     string   `json:"name"`
	Min      int64    `json:"min"`
	Max      int64    `json:"max"`
	Step     int64    `json:"step"`
	Default  int64    `json:"default"`
	Value    int64    `json:"value"`
	ReadOnly bool     `json:"read_only"`
	Grabbed  bool     `json:"grabbed"`
	Menu     []string `json:"menu,omitempty"`
}

func controlInfo(c *Control) ControlInfo {
	return ControlInfo{
		Name:     c.Name,
		Min:      c.Min,
		Max:      c.Max,
		Step:     c.Step,
		Default:  c.Default,
		Value:    c.Value,
		ReadOnly: c.ReadOnly,
		Grabbed:  c.grabbed,
		Menu:     c.Menu,
	}
}

// Controls lists every control in registration order.
func (d *Device) Controls() []ControlInfo {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]ControlInfo, len(d.controls.order))
	for i, c := range d.controls.order {
		out[i] = controlInfo(c)
	}
	return out
}

// Control returns one control by name.
func (d *Device) Control(name string) (ControlInfo, error) {
	id, ok := ControlByName(name)
	if !ok {
		return ControlInfo{}, fmt.Errorf("%w: unknown control %q", ErrInvalidArgument, name)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.controls.get(id)
	if !ok {
		return ControlInfo{}, fmt.Errorf("%w: unknown control %q", ErrInvalidArgument, name)
	}
	return controlInfo(c), nil
}

// SetControl validates and applies one control value. While the device is
// unpowered the value is only recorded; the bulk commit on stream start
// replays it to hardware.
func (d *Device) SetControl(ctx context.Context, id ControlID, value int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.setControlLocked(ctx, id, value)
}

// SetControlByName is SetControl keyed by the API control name.
func (d *Device) SetControlByName(ctx context.Context, name string, value int64) error {
	id, ok := ControlByName(name)
	if !ok {
		return fmt.Errorf("%w: unknown control %q", ErrInvalidArgument, name)
	}
	return d.SetControl(ctx, id, value)
}

func (d *Device) setControlLocked(ctx context.Context, id ControlID, value int64) error {
	c, ok := d.controls.get(id)
	if !ok {
		monitoring.Logf("sensor: set of unknown control id %d", id)
		return fmt.Errorf("%w: unknown control id %d", ErrInvalidArgument, id)
	}
	if c.ReadOnly {
		return fmt.Errorf("%w: control %s is read-only", ErrInvalidArgument, c.Name)
	}
	if c.grabbed {
		return fmt.Errorf("%w: control %s is locked while streaming", ErrBusy, c.Name)
	}
	if value < c.Min || value > c.Max {
		return fmt.Errorf("%w: %s value %d outside [%d, %d]",
			ErrInvalidArgument, c.Name, value, c.Min, c.Max)
	}
	if c.Step > 1 && (value-c.Min)%c.Step != 0 {
		return fmt.Errorf("%w: %s value %d not a multiple of step %d",
			ErrInvalidArgument, c.Name, value, c.Step)
	}

	c.Value = value

	// A VBLANK change moves the exposure ceiling, powered or not.
	if id == CtrlVBlank {
		d.adjustExposureRangeLocked()
	}

	if !d.powered {
		return nil
	}
	return d.writeControlLocked(ctx, c)
}

// writeControlLocked pushes one control's current value to the hardware.
func (d *Device) writeControlLocked(ctx context.Context, c *Control) error {
	switch c.ID {
	case CtrlAnalogueGain:
		return d.bus.Write(ctx, regAnalogGain, regbus.W16, uint32(c.Value))

	case CtrlExposure:
		// The register holds exposure lines at the shifted scale.
		return d.bus.Write(ctx, regExposure, regbus.W16,
			uint32(c.Value>>d.longExpShift))

	case CtrlDigitalGain:
		// One logical gain fans out to the four bayer channels. A failed
		// write stops the fan-out; already-written channels keep the new
		// value until a retry succeeds.
		for _, reg := range digitalGainRegs {
			if err := d.bus.Write(ctx, reg, regbus.W16, uint32(c.Value)); err != nil {
				return fmt.Errorf("digital gain reg 0x%04x: %w", reg, err)
			}
		}
		return nil

	case CtrlTestPattern:
		return d.bus.Write(ctx, regTestPattern, regbus.W16,
			testPatternValues[c.Value])

	case CtrlTestPatternRed:
		return d.bus.Write(ctx, regTestPatternR, regbus.W16, uint32(c.Value))
	case CtrlTestPatternGreenR:
		return d.bus.Write(ctx, regTestPatternGR, regbus.W16, uint32(c.Value))
	case CtrlTestPatternBlue:
		return d.bus.Write(ctx, regTestPatternB, regbus.W16, uint32(c.Value))
	case CtrlTestPatternGreenB:
		return d.bus.Write(ctx, regTestPatternGB, regbus.W16, uint32(c.Value))

	case CtrlHFlip, CtrlVFlip:
		// Both flips live in one register.
		var v uint32
		if hf, ok := d.controls.get(CtrlHFlip); ok && hf.Value != 0 {
			v |= 0x01
		}
		if vf, ok := d.controls.get(CtrlVFlip); ok && vf.Value != 0 {
			v |= 0x02
		}
		return d.bus.Write(ctx, regOrientation, regbus.W8, v)

	case CtrlVBlank:
		return d.setFrameLengthLocked(ctx, uint32(int64(d.mode.Height)+c.Value))

	default:
		monitoring.Logf("sensor: control %s (id %d) has no hardware binding", c.Name, c.ID)
		return fmt.Errorf("%w: control %s not writable", ErrInvalidArgument, c.Name)
	}
}

// commitControlsLocked replays every writable control to the hardware in
// registration order, stopping at the first failure.
func (d *Device) commitControlsLocked(ctx context.Context) error {
	for _, c := range d.controls.order {
		if c.ReadOnly {
			continue
		}
		if c.ID == CtrlVBlank {
			d.adjustExposureRangeLocked()
		}
		if err := d.writeControlLocked(ctx, c); err != nil {
			return fmt.Errorf("apply %s: %w", c.Name, err)
		}
	}
	return nil
}
