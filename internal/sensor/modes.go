package sensor

import "github.com/davidplowman/imx258/internal/regbus"

// Rect is a crop rectangle in active pixel array coordinates.
type Rect struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Fract is a frame interval as a rational number of seconds.
type Fract struct {
	Numerator   uint32 `json:"numerator"`
	Denominator uint32 `json:"denominator"`
}

// Mode is one fixed readout configuration of the sensor.
type Mode struct {
	// Width and Height are the output frame size in pixels.
	Width  int
	Height int

	// LineLength is the total line length in pixels, including blanking.
	// It is fixed per mode; HBLANK follows from it and Width.
	LineLength int

	// Crop is the analog crop rectangle the mode reads out.
	Crop Rect

	// MinFrameInterval and DefaultFrameInterval bound and seed the
	// frame timing for the mode.
	MinFrameInterval     Fract
	DefaultFrameInterval Fract

	// regs is the setup sequence selecting this mode, written after the
	// common sequence on every stream start.
	regs []regbus.RegWrite
}

// commonRegs is written once per power cycle, before any mode table.
var commonRegs = []regbus.RegWrite{
	// External clock setting (24MHz).
	{Addr: 0x0136, Val: 0x18},
	{Addr: 0x0137, Val: 0x00},

	// Global settings.
	{Addr: 0x3051, Val: 0x00},
	{Addr: 0x6B11, Val: 0xCF},
	{Addr: 0x7FF0, Val: 0x08},
	{Addr: 0x7FF1, Val: 0x0F},
	{Addr: 0x7FF2, Val: 0x08},
	{Addr: 0x7FF3, Val: 0x1B},
	{Addr: 0x7FF4, Val: 0x23},
	{Addr: 0x7FF5, Val: 0x60},
	{Addr: 0x7FF6, Val: 0x00},
	{Addr: 0x7FF7, Val: 0x01},
	{Addr: 0x7FF8, Val: 0x00},
	{Addr: 0x7FF9, Val: 0x78},
	{Addr: 0x7FFA, Val: 0x01},
	{Addr: 0x7FFB, Val: 0x00},
	{Addr: 0x7FFC, Val: 0x00},
	{Addr: 0x7FFD, Val: 0x00},
	{Addr: 0x7FFE, Val: 0x00},
	{Addr: 0x7FFF, Val: 0x03},
	{Addr: 0x7F76, Val: 0x03},
	{Addr: 0x7F77, Val: 0xFE},
	{Addr: 0x7FA8, Val: 0x03},
	{Addr: 0x7FA9, Val: 0xFE},
	{Addr: 0x7B24, Val: 0x81},
	{Addr: 0x7B25, Val: 0x01},
	{Addr: 0x6564, Val: 0x07},
	{Addr: 0x6B0D, Val: 0x41},
	{Addr: 0x653D, Val: 0x04},
	{Addr: 0x6B05, Val: 0x8C},
	{Addr: 0x6B06, Val: 0xF9},
	{Addr: 0x6B08, Val: 0x65},
	{Addr: 0x6B09, Val: 0xFC},
	{Addr: 0x6B0A, Val: 0xCF},
	{Addr: 0x6B0B, Val: 0xD2},
	{Addr: 0x6700, Val: 0x0E},
	{Addr: 0x6707, Val: 0x0E},
	{Addr: 0x5F04, Val: 0x00},
	{Addr: 0x5F05, Val: 0xED},
}

// Full resolution readout. Frame length and exposure are deliberately
// absent from all mode tables: the control commit sets them.
var mode4208x3120Regs = []regbus.RegWrite{
	// Output format: RAW10.
	{Addr: 0x0112, Val: 0x0A},
	{Addr: 0x0113, Val: 0x0A},
	{Addr: 0x0114, Val: 0x01},

	// Clock setting: 1296MHz PLL.
	{Addr: 0x0301, Val: 0x05},
	{Addr: 0x0303, Val: 0x04},
	{Addr: 0x0305, Val: 0x04},
	{Addr: 0x0306, Val: 0x00},
	{Addr: 0x0307, Val: 0xD8},
	{Addr: 0x0309, Val: 0x0A},
	{Addr: 0x030B, Val: 0x01},
	{Addr: 0x030D, Val: 0x02},
	{Addr: 0x030E, Val: 0x00},
	{Addr: 0x030F, Val: 0xD8},
	{Addr: 0x0310, Val: 0x00},
	{Addr: 0x0820, Val: 0x0A},
	{Addr: 0x0821, Val: 0x20},
	{Addr: 0x0822, Val: 0x00},
	{Addr: 0x0823, Val: 0x00},

	// Clock adjustment.
	{Addr: 0x4648, Val: 0x7F},
	{Addr: 0x9104, Val: 0x04},

	// Line length: 5352.
	{Addr: 0x0342, Val: 0x14},
	{Addr: 0x0343, Val: 0xE8},

	// ROI: full array.
	{Addr: 0x0344, Val: 0x00},
	{Addr: 0x0345, Val: 0x00},
	{Addr: 0x0346, Val: 0x00},
	{Addr: 0x0347, Val: 0x00},
	{Addr: 0x0348, Val: 0x10},
	{Addr: 0x0349, Val: 0x6F},
	{Addr: 0x034A, Val: 0x0C},
	{Addr: 0x034B, Val: 0x2F},

	// Analog image size: no binning.
	{Addr: 0x0381, Val: 0x01},
	{Addr: 0x0383, Val: 0x01},
	{Addr: 0x0385, Val: 0x01},
	{Addr: 0x0387, Val: 0x01},
	{Addr: 0x0900, Val: 0x00},
	{Addr: 0x0901, Val: 0x11},

	// Digital image size: no scaling, 4208x3120 out.
	{Addr: 0x0401, Val: 0x00},
	{Addr: 0x0404, Val: 0x00},
	{Addr: 0x0405, Val: 0x10},
	{Addr: 0x0408, Val: 0x00},
	{Addr: 0x0409, Val: 0x00},
	{Addr: 0x040A, Val: 0x00},
	{Addr: 0x040B, Val: 0x00},
	{Addr: 0x040C, Val: 0x10},
	{Addr: 0x040D, Val: 0x70},
	{Addr: 0x040E, Val: 0x0C},
	{Addr: 0x040F, Val: 0x30},
	{Addr: 0x3038, Val: 0x00},
	{Addr: 0x303A, Val: 0x00},
	{Addr: 0x303B, Val: 0x10},
	{Addr: 0x300D, Val: 0x00},

	// Output size.
	{Addr: 0x034C, Val: 0x10},
	{Addr: 0x034D, Val: 0x70},
	{Addr: 0x034E, Val: 0x0C},
	{Addr: 0x034F, Val: 0x30},

	// Per-channel digital gain x1.0.
	{Addr: 0x020E, Val: 0x01},
	{Addr: 0x020F, Val: 0x00},
	{Addr: 0x0210, Val: 0x01},
	{Addr: 0x0211, Val: 0x00},
	{Addr: 0x0212, Val: 0x01},
	{Addr: 0x0213, Val: 0x00},
	{Addr: 0x0214, Val: 0x01},
	{Addr: 0x0215, Val: 0x00},

	// AF assist off.
	{Addr: 0x7BCD, Val: 0x00},

	// IQ tuning.
	{Addr: 0x94DC, Val: 0x20},
	{Addr: 0x94DD, Val: 0x20},
	{Addr: 0x94DE, Val: 0x20},
	{Addr: 0x95DC, Val: 0x20},
	{Addr: 0x95DD, Val: 0x20},
	{Addr: 0x95DE, Val: 0x20},
	{Addr: 0x7FB0, Val: 0x00},
	{Addr: 0x9010, Val: 0x3E},
	{Addr: 0x9419, Val: 0x50},
	{Addr: 0x941B, Val: 0x50},
	{Addr: 0x9519, Val: 0x50},
	{Addr: 0x951B, Val: 0x50},

	// Mode.
	{Addr: 0x3030, Val: 0x01},
	{Addr: 0x3032, Val: 0x01},
	{Addr: 0x0220, Val: 0x00},
}

// 2x2 binned readout.
var mode2048x1560Regs = []regbus.RegWrite{
	// Output format: RAW10.
	{Addr: 0x0112, Val: 0x0A},
	{Addr: 0x0113, Val: 0x0A},
	{Addr: 0x0114, Val: 0x01},

	// Clock setting.
	{Addr: 0x0301, Val: 0x05},
	{Addr: 0x0303, Val: 0x02},
	{Addr: 0x0305, Val: 0x04},
	{Addr: 0x0306, Val: 0x00},
	{Addr: 0x0307, Val: 0xD8},
	{Addr: 0x0309, Val: 0x0A},
	{Addr: 0x030B, Val: 0x01},
	{Addr: 0x030D, Val: 0x02},
	{Addr: 0x030E, Val: 0x00},
	{Addr: 0x030F, Val: 0xD8},
	{Addr: 0x0310, Val: 0x00},
	{Addr: 0x0820, Val: 0x0A},
	{Addr: 0x0821, Val: 0x20},
	{Addr: 0x0822, Val: 0x00},
	{Addr: 0x0823, Val: 0x00},

	// Clock adjustment.
	{Addr: 0x4648, Val: 0x7F},
	{Addr: 0x9104, Val: 0x00},

	// Line length: 5352.
	{Addr: 0x0342, Val: 0x14},
	{Addr: 0x0343, Val: 0xE8},

	// ROI: full array.
	{Addr: 0x0344, Val: 0x00},
	{Addr: 0x0345, Val: 0x00},
	{Addr: 0x0346, Val: 0x00},
	{Addr: 0x0347, Val: 0x00},
	{Addr: 0x0348, Val: 0x10},
	{Addr: 0x0349, Val: 0x6F},
	{Addr: 0x034A, Val: 0x0C},
	{Addr: 0x034B, Val: 0x2F},

	// Analog image size: 2x2 binning.
	{Addr: 0x0381, Val: 0x01},
	{Addr: 0x0383, Val: 0x01},
	{Addr: 0x0385, Val: 0x01},
	{Addr: 0x0387, Val: 0x01},
	{Addr: 0x0900, Val: 0x01},
	{Addr: 0x0901, Val: 0x12},

	// Digital image size: scale to 2048x1560.
	{Addr: 0x0401, Val: 0x01},
	{Addr: 0x0404, Val: 0x00},
	{Addr: 0x0405, Val: 0x20},
	{Addr: 0x0408, Val: 0x00},
	{Addr: 0x0409, Val: 0x02},
	{Addr: 0x040A, Val: 0x00},
	{Addr: 0x040B, Val: 0x00},
	{Addr: 0x040C, Val: 0x10},
	{Addr: 0x040D, Val: 0x68},
	{Addr: 0x040E, Val: 0x06},
	{Addr: 0x040F, Val: 0x18},
	{Addr: 0x3038, Val: 0x00},
	{Addr: 0x303A, Val: 0x00},
	{Addr: 0x303B, Val: 0x10},
	{Addr: 0x300D, Val: 0x00},

	// Output size.
	{Addr: 0x034C, Val: 0x08},
	{Addr: 0x034D, Val: 0x34},
	{Addr: 0x034E, Val: 0x06},
	{Addr: 0x034F, Val: 0x18},

	// Per-channel digital gain x1.0.
	{Addr: 0x020E, Val: 0x01},
	{Addr: 0x020F, Val: 0x00},
	{Addr: 0x0210, Val: 0x01},
	{Addr: 0x0211, Val: 0x00},
	{Addr: 0x0212, Val: 0x01},
	{Addr: 0x0213, Val: 0x00},
	{Addr: 0x0214, Val: 0x01},
	{Addr: 0x0215, Val: 0x00},

	// AF assist on.
	{Addr: 0x7BCD, Val: 0x01},

	// IQ tuning.
	{Addr: 0x94DC, Val: 0x20},
	{Addr: 0x94DD, Val: 0x20},
	{Addr: 0x94DE, Val: 0x20},
	{Addr: 0x95DC, Val: 0x20},
	{Addr: 0x95DD, Val: 0x20},
	{Addr: 0x95DE, Val: 0x20},
	{Addr: 0x7FB0, Val: 0x00},
	{Addr: 0x9010, Val: 0x3E},
	{Addr: 0x9419, Val: 0x50},
	{Addr: 0x941B, Val: 0x50},
	{Addr: 0x9519, Val: 0x50},
	{Addr: 0x951B, Val: 0x50},

	// Mode.
	{Addr: 0x3030, Val: 0x00},
	{Addr: 0x3032, Val: 0x00},
	{Addr: 0x0220, Val: 0x00},
}

// 2x2 binned and cropped 1080p readout.
var mode1920x1080Regs = []regbus.RegWrite{
	// Output format: RAW10.
	{Addr: 0x0112, Val: 0x0A},
	{Addr: 0x0113, Val: 0x0A},
	{Addr: 0x0114, Val: 0x01},

	// Clock setting.
	{Addr: 0x0301, Val: 0x05},
	{Addr: 0x0303, Val: 0x02},
	{Addr: 0x0305, Val: 0x04},
	{Addr: 0x0306, Val: 0x00},
	{Addr: 0x0307, Val: 0xD8},
	{Addr: 0x0309, Val: 0x0A},
	{Addr: 0x030B, Val: 0x01},
	{Addr: 0x030D, Val: 0x02},
	{Addr: 0x030E, Val: 0x00},
	{Addr: 0x030F, Val: 0xD8},
	{Addr: 0x0310, Val: 0x00},
	{Addr: 0x0820, Val: 0x0A},
	{Addr: 0x0821, Val: 0x20},
	{Addr: 0x0822, Val: 0x00},
	{Addr: 0x0823, Val: 0x00},

	// Clock adjustment.
	{Addr: 0x4648, Val: 0x7F},
	{Addr: 0x9104, Val: 0x00},

	// Line length: 5352.
	{Addr: 0x0342, Val: 0x14},
	{Addr: 0x0343, Val: 0xE8},

	// ROI: full array.
	{Addr: 0x0344, Val: 0x00},
	{Addr: 0x0345, Val: 0x00},
	{Addr: 0x0346, Val: 0x00},
	{Addr: 0x0347, Val: 0x00},
	{Addr: 0x0348, Val: 0x10},
	{Addr: 0x0349, Val: 0x6F},
	{Addr: 0x034A, Val: 0x0C},
	{Addr: 0x034B, Val: 0x2F},

	// Analog image size: 2x2 binning.
	{Addr: 0x0381, Val: 0x01},
	{Addr: 0x0383, Val: 0x01},
	{Addr: 0x0385, Val: 0x01},
	{Addr: 0x0387, Val: 0x01},
	{Addr: 0x0900, Val: 0x01},
	{Addr: 0x0901, Val: 0x12},

	// Digital image size: crop the binned image to 1920x1080.
	{Addr: 0x0401, Val: 0x01},
	{Addr: 0x0404, Val: 0x00},
	{Addr: 0x0405, Val: 0x20},
	{Addr: 0x0408, Val: 0x00},
	{Addr: 0x0409, Val: 0x5C},
	{Addr: 0x040A, Val: 0x00},
	{Addr: 0x040B, Val: 0xF0},
	{Addr: 0x040C, Val: 0x0F},
	{Addr: 0x040D, Val: 0x00},
	{Addr: 0x040E, Val: 0x04},
	{Addr: 0x040F, Val: 0x38},
	{Addr: 0x3038, Val: 0x00},
	{Addr: 0x303A, Val: 0x00},
	{Addr: 0x303B, Val: 0x10},
	{Addr: 0x300D, Val: 0x00},

	// Output size.
	{Addr: 0x034C, Val: 0x07},
	{Addr: 0x034D, Val: 0x80},
	{Addr: 0x034E, Val: 0x04},
	{Addr: 0x034F, Val: 0x38},

	// Per-channel digital gain x1.94.
	{Addr: 0x020E, Val: 0x01},
	{Addr: 0x020F, Val: 0xF0},
	{Addr: 0x0210, Val: 0x01},
	{Addr: 0x0211, Val: 0xF0},
	{Addr: 0x0212, Val: 0x01},
	{Addr: 0x0213, Val: 0xF0},
	{Addr: 0x0214, Val: 0x01},
	{Addr: 0x0215, Val: 0xF0},

	// AF assist on.
	{Addr: 0x7BCD, Val: 0x01},

	// IQ tuning.
	{Addr: 0x94DC, Val: 0x20},
	{Addr: 0x94DD, Val: 0x20},
	{Addr: 0x94DE, Val: 0x20},
	{Addr: 0x95DC, Val: 0x20},
	{Addr: 0x95DD, Val: 0x20},
	{Addr: 0x95DE, Val: 0x20},
	{Addr: 0x7FB0, Val: 0x00},
	{Addr: 0x9010, Val: 0x3E},
	{Addr: 0x9419, Val: 0x50},
	{Addr: 0x941B, Val: 0x50},
	{Addr: 0x9519, Val: 0x50},
	{Addr: 0x951B, Val: 0x50},

	// Mode.
	{Addr: 0x3030, Val: 0x00},
	{Addr: 0x3032, Val: 0x00},
	{Addr: 0x0220, Val: 0x00},
}

// supportedModes holds every 10-bit readout mode, largest first. All the
// supported bayer codes share this one table.
var supportedModes = []Mode{
	{
		// 12MPix.
		Width:      4208,
		Height:     3120,
		LineLength: 5352,
		Crop: Rect{
			Left:   pixelArrayLeft,
			Top:    pixelArrayTop,
			Width:  4096,
			Height: 3120,
		},
		MinFrameInterval:     Fract{Numerator: 100, Denominator: 1000},
		DefaultFrameInterval: Fract{Numerator: 100, Denominator: 1000},
		regs:                 mode4208x3120Regs,
	},
	{
		// 2x2 binned.
		Width:      2048,
		Height:     1560,
		LineLength: 5352,
		Crop: Rect{
			Left:   pixelArrayLeft,
			Top:    pixelArrayTop,
			Width:  2048,
			Height: 1560,
		},
		MinFrameInterval:     Fract{Numerator: 100, Denominator: 4000},
		DefaultFrameInterval: Fract{Numerator: 100, Denominator: 3000},
		regs:                 mode2048x1560Regs,
	},
	{
		// 1080p cropped.
		Width:      1920,
		Height:     1080,
		LineLength: 5352,
		Crop: Rect{
			Left:   pixelArrayLeft,
			Top:    pixelArrayTop + 440,
			Width:  1920,
			Height: 1080,
		},
		MinFrameInterval:     Fract{Numerator: 100, Denominator: 4000},
		DefaultFrameInterval: Fract{Numerator: 100, Denominator: 3000},
		regs:                 mode1920x1080Regs,
	},
}

// modeTableFor returns the mode list serving the given format code. Every
// recognized code is a 10-bit bayer variant and they all share one table;
// unrecognized codes fall back to it as well.
func modeTableFor(code FormatCode) []Mode {
	return supportedModes
}

// lookupMode picks the mode for a requested output size: the smallest mode
// that covers the request in both dimensions, or the largest mode when
// nothing covers it. Ties go to the earlier table entry.
func lookupMode(code FormatCode, width, height int) *Mode {
	table := modeTableFor(code)

	var best *Mode
	for i := range table {
		m := &table[i]
		if m.Width < width || m.Height < height {
			continue
		}
		if best == nil || m.Width*m.Height < best.Width*best.Height {
			best = m
		}
	}
	if best != nil {
		return best
	}

	largest := &table[0]
	for i := range table {
		m := &table[i]
		if m.Width*m.Height > largest.Width*largest.Height {
			largest = m
		}
	}
	return largest
}

// ModeInfo is the API-facing view of a mode.
type ModeInfo struct {
	Index                int   `json:"index"`
	Width                int   `json:"width"`
	Height               int   `json:"height"`
	LineLength           int   `json:"line_length"`
	Crop                 Rect  `json:"crop"`
	MinFrameInterval     Fract `json:"min_frame_interval"`
	DefaultFrameInterval Fract `json:"default_frame_interval"`
}

// Modes lists every supported mode.
func Modes() []ModeInfo {
	out := make([]ModeInfo, len(supportedModes))
	for i := range supportedModes {
		out[i] = modeInfo(i, &supportedModes[i])
	}
	return out
}

func modeInfo(index int, m *Mode) ModeInfo {
	return ModeInfo{
		Index:                index,
		Width:                m.Width,
		Height:               m.Height,
		LineLength:           m.LineLength,
		Crop:                 m.Crop,
		MinFrameInterval:     m.MinFrameInterval,
		DefaultFrameInterval: m.DefaultFrameInterval,
	}
}

func modeIndex(m *Mode) int {
	for i := range supportedModes {
		if &supportedModes[i] == m {
			return i
		}
	}
	return -1
}
