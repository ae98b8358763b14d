// Package units provides shared constants and validation for frame interval units
package units

import (
	"fmt"
	"math"
)

// Unit constants
const (
	FPS = "fps"
	MS  = "ms"
	US  = "us"
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{FPS, MS, US}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return "fps, ms, us"
}

// ConvertInterval converts a frame interval, expressed as a numerator and
// denominator in seconds, to the target units. Sensor modes store intervals
// as fractions (e.g. 100/3000 for 30fps).
func ConvertInterval(numerator, denominator uint32, targetUnits string) (float64, error) {
	if numerator == 0 || denominator == 0 {
		return 0, fmt.Errorf("invalid frame interval %d/%d", numerator, denominator)
	}
	seconds := float64(numerator) / float64(denominator)
	switch targetUnits {
	case FPS:
		return 1 / seconds, nil
	case MS:
		return seconds * 1e3, nil
	case US:
		return seconds * 1e6, nil
	default:
		return 0, fmt.Errorf("unknown units %q (valid: %s)", targetUnits, GetValidUnitsString())
	}
}

// ToFract converts a frame interval expressed in the given units to a
// numerator/denominator pair in seconds, the form the sensor's frame
// interval negotiation works in. Fractional inputs are kept rational at
// millisecond-of-rate or microsecond-of-interval resolution.
func ToFract(value float64, sourceUnits string) (numerator, denominator uint32, err error) {
	if value <= 0 || math.IsInf(value, 0) || math.IsNaN(value) {
		return 0, 0, fmt.Errorf("interval value must be positive, got %g", value)
	}

	switch sourceUnits {
	case FPS:
		den := math.Round(value * 1000)
		if den < 1 || den > math.MaxUint32 {
			return 0, 0, fmt.Errorf("frame rate %g out of range", value)
		}
		return 1000, uint32(den), nil
	case MS:
		num := math.Round(value * 1000)
		if num < 1 || num > math.MaxUint32 {
			return 0, 0, fmt.Errorf("interval %gms out of range", value)
		}
		return uint32(num), 1000000, nil
	case US:
		num := math.Round(value)
		if num < 1 || num > math.MaxUint32 {
			return 0, 0, fmt.Errorf("interval %gus out of range", value)
		}
		return uint32(num), 1000000, nil
	default:
		return 0, 0, fmt.Errorf("unknown units %q (valid: %s)", sourceUnits, GetValidUnitsString())
	}
}
