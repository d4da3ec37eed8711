// Package units provides shared constants and conversions for speed units.
// The engine stores and computes every speed in m/s; anti-cheat thresholds are
// configured in km/h and API consumers pick their display unit.
package units

// Unit constants
const (
	MPS  = "mps"
	MPH  = "mph"
	KMPH = "kmph"
	KPH  = "kph"
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{MPS, MPH, KMPH, KPH}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// ConvertSpeed converts a speed from meters per second to the target units
func ConvertSpeed(speedMPS float64, targetUnits string) float64 {
	switch targetUnits {
	case MPH:
		return speedMPS * 2.23694
	case KMPH, KPH:
		return speedMPS * 3.6
	case MPS:
		return speedMPS
	default:
		return speedMPS
	}
}

// KmhToMps converts a km/h threshold to m/s for internal comparison.
func KmhToMps(kmh float64) float64 {
	return kmh / 3.6
}

// MpsToKmh converts an internal m/s speed to km/h for messages and display.
func MpsToKmh(mps float64) float64 {
	return mps * 3.6
}
