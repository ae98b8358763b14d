package sensor

import "time"

// IMX258 register map, limits and fixed hardware parameters. All registers
// are big-endian; 16-bit values span two consecutive byte addresses.

// Chip identity.
const (
	regChipID = 0x0016 // R, 16-bit
	chipID    = 0x0258
)

// Streaming control.
const (
	regModeSelect = 0x0100 // R/W, 8-bit
	modeStandby   = 0x00
	modeStreaming = 0x01
)

// Orientation: bit 0 horizontal mirror, bit 1 vertical flip. Changing
// either swaps the bayer order on the wire.
const regOrientation = 0x0101 // R/W, 8-bit

// Vertical timing.
const (
	regFrameLength = 0x0340 // R/W, 16-bit, total lines per frame

	// FrameLengthMax is the largest frame length the 16-bit register
	// accepts. Longer frames use the long exposure shift.
	FrameLengthMax = 0xffdc

	// regLongExpShift is the power-of-two frame length multiplier used
	// for long exposures. The value written to regFrameLength is the
	// true frame length right-shifted by this amount.
	regLongExpShift = 0x3100 // R/W, 8-bit

	// LongExpShiftMax is the hardware limit on the shift.
	LongExpShiftMax = 7
)

// Exposure.
const (
	regExposure = 0x0202 // R/W, 16-bit, coarse integration time in lines

	// ExposureOffset is the number of lines the hardware reserves below
	// the frame length: max exposure = frame length - ExposureOffset.
	ExposureOffset = 22

	exposureMin     = 20
	exposureStep    = 1
	exposureDefault = 0x640
	exposureMax     = FrameLengthMax - ExposureOffset
)

// Analogue gain, in sensor-specific units.
const (
	regAnalogGain  = 0x0204 // R/W, 16-bit
	anaGainMin     = 0
	anaGainMax     = 978
	anaGainStep    = 1
	anaGainDefault = 0
)

// Digital gain, 8.8 fixed point, fanned out per bayer channel.
const (
	regGRDigitalGain = 0x020e // R/W, 16-bit
	regRDigitalGain  = 0x0210 // R/W, 16-bit
	regBDigitalGain  = 0x0212 // R/W, 16-bit
	regGBDigitalGain = 0x0214 // R/W, 16-bit

	dgtlGainMin     = 0x0100 // x1.0
	dgtlGainMax     = 0x1000 // x16.0
	dgtlGainStep    = 1
	dgtlGainDefault = 0x0400 // x4.0
)

// Test pattern generator.
const (
	regTestPattern = 0x0600 // R/W, 16-bit

	// Solid colour components, 12-bit, applied when the solid colour
	// pattern is selected.
	regTestPatternR  = 0x0602 // R/W, 16-bit
	regTestPatternGR = 0x0604 // R/W, 16-bit
	regTestPatternB  = 0x0606 // R/W, 16-bit
	regTestPatternGB = 0x0608 // R/W, 16-bit

	testPatternColourMin  = 0
	testPatternColourMax  = 0x0fff
	testPatternColourStep = 1
)

// Pixel array geometry. The active array is inset in a slightly larger
// physical array; all mode crops are expressed in active array coordinates.
const (
	// NativeWidth and NativeHeight are the active pixel array bounds.
	NativeWidth  = 4208
	NativeHeight = 3120

	pixelArrayLeft = 0
	pixelArrayTop  = 0
)

// Fixed bus parameters. The supported configuration is exactly two CSI-2
// data lanes at a 450MHz link frequency from a 24MHz external clock.
const (
	// DataLanes is the number of CSI-2 data lanes driven.
	DataLanes = 2

	// LinkFrequency is the only supported CSI-2 link frequency in Hz.
	LinkFrequency = 450000000

	// XClkFrequency is the required external clock in Hz.
	XClkFrequency = 24000000

	// PixelRate is the internal pixel rate in pixels per second. It is
	// the same for every mode; frame timing follows from it together
	// with the line length and frame length.
	PixelRate = 259200000
)

// Embedded data stream: two lines of register metadata packed into a
// single very wide line per frame.
const (
	// EmbeddedLineWidth is the embedded data width in bytes.
	EmbeddedLineWidth = 16384

	// NumEmbeddedLines is the embedded data height.
	NumEmbeddedLines = 1
)

// xclrSettleDelay is the wait between power-on (XCLR deassert) and the
// first register transaction, per the power-up sequence timing.
const xclrSettleDelay = 8 * time.Millisecond
