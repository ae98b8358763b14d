package sensor

import "errors"

// Sentinel errors callers classify with errors.Is. Transport failures are
// not listed here: they wrap regbus.ErrTransport and bubble up unchanged.
var (
	// ErrIdentityMismatch means the chip identity register did not read
	// back the expected product ID at attach.
	ErrIdentityMismatch = errors.New("sensor: chip identity mismatch")

	// ErrConfigUnsupported means the attach-time hardware description
	// (lane count, link frequency, external clock) is not one the sensor
	// can run.
	ErrConfigUnsupported = errors.New("sensor: unsupported hardware configuration")

	// ErrInvalidArgument covers unknown controls, out-of-range values and
	// unrecognized format requests.
	ErrInvalidArgument = errors.New("sensor: invalid argument")

	// ErrBusy means the operation conflicts with the streaming state,
	// such as changing a flip control while the sensor streams.
	ErrBusy = errors.New("sensor: busy")
)
