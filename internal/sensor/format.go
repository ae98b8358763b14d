package sensor

import (
	"context"
	"fmt"
)

// FormatCode identifies a media bus pixel format. The values follow the
// MIPI CSI-2 media bus format numbering so traces line up with the
// datasheet and downstream receivers.
type FormatCode uint32

// 10-bit bayer variants, one per readout orientation, plus the embedded
// metadata format.
const (
	FormatSRGGB10 FormatCode = 0x300f
	FormatSGRBG10 FormatCode = 0x300a
	FormatSGBRG10 FormatCode = 0x300e
	FormatSBGGR10 FormatCode = 0x3007

	FormatSensorData FormatCode = 0x7002
)

// formatCodes is ordered so the low two bits of an index encode the
// readout orientation: bit 0 horizontal mirror, bit 1 vertical flip.
// Flip remapping relies on this layout.
var formatCodes = []FormatCode{
	FormatSRGGB10,
	FormatSGRBG10,
	FormatSGBRG10,
	FormatSBGGR10,
}

// String returns the conventional short name for the code.
func (c FormatCode) String() string {
	switch c {
	case FormatSRGGB10:
		return "SRGGB10"
	case FormatSGRBG10:
		return "SGRBG10"
	case FormatSGBRG10:
		return "SGBRG10"
	case FormatSBGGR10:
		return "SBGGR10"
	case FormatSensorData:
		return "SENSOR_DATA"
	default:
		return fmt.Sprintf("FormatCode(0x%04x)", uint32(c))
	}
}

// FormatCodeByName resolves a short name to its code.
func FormatCodeByName(name string) (FormatCode, bool) {
	switch name {
	case "SRGGB10":
		return FormatSRGGB10, true
	case "SGRBG10":
		return FormatSGRBG10, true
	case "SGBRG10":
		return FormatSGBRG10, true
	case "SBGGR10":
		return FormatSBGGR10, true
	case "SENSOR_DATA":
		return FormatSensorData, true
	default:
		return 0, false
	}
}

// Field orders and colorspaces. The sensor only produces progressive sRGB
// frames; these exist so format descriptors are explicit about it.
const (
	FieldNone      = "none"
	ColorspaceSRGB = "srgb"
)

// Format describes a negotiated frame format.
type Format struct {
	Width      int        `json:"width"`
	Height     int        `json:"height"`
	Code       FormatCode `json:"code"`
	CodeName   string     `json:"code_name"`
	Field      string     `json:"field"`
	Colorspace string     `json:"colorspace"`
}

// resolveCodeLocked maps a requested format code onto the code the sensor
// actually produces under the current flip controls. The bayer order moves
// with the readout direction, so the orientation bits of the code are
// owned by the flip controls, never by the caller. Unknown codes resolve
// as block 0.
func (d *Device) resolveCodeLocked(code FormatCode) FormatCode {
	i := len(formatCodes)
	for j, c := range formatCodes {
		if c == code {
			i = j
			break
		}
	}
	if i >= len(formatCodes) {
		i = 0
	}

	var hflip, vflip int64
	if c, ok := d.controls.get(CtrlHFlip); ok {
		hflip = c.Value
	}
	if c, ok := d.controls.get(CtrlVFlip); ok {
		vflip = c.Value
	}

	i = (i &^ 3) | int(vflip<<1) | int(hflip)
	return formatCodes[i]
}

func makeFormat(m *Mode, code FormatCode) Format {
	return Format{
		Width:      m.Width,
		Height:     m.Height,
		Code:       code,
		CodeName:   code.String(),
		Field:      FieldNone,
		Colorspace: ColorspaceSRGB,
	}
}

// SetFormat negotiates an image format. The request is adjusted to the
// nearest supported mode and the flip-aware format code, and the adjusted
// format is returned. With try set, the result lands in a scratch slot
// and the active configuration is untouched; otherwise the mode and code
// are committed and the frame timing limits recomputed for the new mode.
func (d *Device) SetFormat(ctx context.Context, code FormatCode, width, height int, try bool) Format {
	d.mu.Lock()
	defer d.mu.Unlock()

	resolved := d.resolveCodeLocked(code)
	mode := lookupMode(resolved, width, height)
	f := makeFormat(mode, resolved)

	if try {
		d.tryFormat = f
		return f
	}

	d.mode = mode
	d.code = resolved
	d.setFramingLimitsLocked(ctx)
	return f
}

// Format returns the active image format, or the scratch format from the
// last try negotiation when try is set. The code is refreshed against the
// current flip state in both cases.
func (d *Device) Format(try bool) Format {
	d.mu.Lock()
	defer d.mu.Unlock()

	if try {
		f := d.tryFormat
		f.Code = d.resolveCodeLocked(f.Code)
		f.CodeName = f.Code.String()
		return f
	}
	f := makeFormat(d.mode, d.resolveCodeLocked(d.code))
	return f
}

// EmbeddedDataFormat returns the fixed format of the embedded metadata
// stream: one very wide line of packed register data per frame.
func (d *Device) EmbeddedDataFormat() Format {
	return Format{
		Width:      EmbeddedLineWidth,
		Height:     NumEmbeddedLines,
		Code:       FormatSensorData,
		CodeName:   FormatSensorData.String(),
		Field:      FieldNone,
		Colorspace: ColorspaceSRGB,
	}
}

// EnumFormats lists the image format codes the sensor can currently
// produce: one per bayer block, remapped for the current flips.
func (d *Device) EnumFormats() []FormatCode {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]FormatCode, 0, len(formatCodes)/4)
	for i := 0; i < len(formatCodes); i += 4 {
		out = append(out, d.resolveCodeLocked(formatCodes[i]))
	}
	return out
}

// EnumFrameSizes lists the discrete frame sizes available for code. The
// code must be the flip-adjusted form of itself, meaning one of the values
// EnumFormats currently reports.
func (d *Device) EnumFrameSizes(code FormatCode) ([][2]int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.resolveCodeLocked(code) != code {
		return nil, fmt.Errorf("%w: format %s not produced under current flips", ErrInvalidArgument, code)
	}
	table := modeTableFor(code)
	sizes := make([][2]int, len(table))
	for i := range table {
		sizes[i] = [2]int{table[i].Width, table[i].Height}
	}
	return sizes, nil
}

// Selection targets.
const (
	SelectionCrop    = "crop"
	SelectionNative  = "native"
	SelectionDefault = "default"
	SelectionBounds  = "bounds"
)

// Selection returns the requested selection rectangle in active pixel
// array coordinates.
func (d *Device) Selection(target string) (Rect, error) {
	switch target {
	case SelectionCrop:
		d.mu.Lock()
		defer d.mu.Unlock()
		return d.mode.Crop, nil
	case SelectionNative:
		return Rect{Left: 0, Top: 0, Width: NativeWidth, Height: NativeHeight}, nil
	case SelectionDefault, SelectionBounds:
		return Rect{
			Left:   pixelArrayLeft,
			Top:    pixelArrayTop,
			Width:  NativeWidth,
			Height: NativeHeight,
		}, nil
	default:
		return Rect{}, fmt.Errorf("%w: unknown selection target %q", ErrInvalidArgument, target)
	}
}
