package claim

import (
	"time"

	"github.com/banshee-data/terraclaim/internal/geo"
)

// RejectReason identifies which filter rule rejected a fix. Rejections are
// expected outcomes of noisy sensors, reported for diagnostics, never errors.
type RejectReason string

const (
	RejectNone     RejectReason = ""
	RejectAccuracy RejectReason = "accuracy" // horizontal accuracy worse than the limit
	RejectInterval RejectReason = "interval" // too soon after the last accepted fix
	RejectJump     RejectReason = "jump"     // teleport-scale distance from the last accepted fix
)

// Decision is the outcome of filtering one fix. When accepted, DistanceM and
// SpeedMps carry the synthesized movement values for downstream use.
type Decision struct {
	Accepted  bool         `json:"accepted"`
	Reason    RejectReason `json:"reason,omitempty"`
	DistanceM float64      `json:"distance_m"` // from the last accepted fix; 0 for the first fix
	SpeedMps  float64      `json:"speed_mps"`  // sensor speed when valid, else distance/time
}

// FilterConfig holds the sample filter thresholds.
type FilterConfig struct {
	AccuracyLimitM float64       // reject fixes with worse horizontal accuracy
	MinInterval    time.Duration // reject fixes arriving sooner than this after the last accepted one
	JumpLimitM     float64       // reject fixes farther than this from the last accepted one
}

// DefaultFilterConfig returns the production filter thresholds.
func DefaultFilterConfig() FilterConfig {
	return FilterConfig{
		AccuracyLimitM: 50.0,
		MinInterval:    time.Second,
		JumpLimitM:     100.0,
	}
}

// SampleFilter decides, per fix, whether it is trustworthy enough to extend
// the path. It is a pure predicate: no state, no side effects.
type SampleFilter struct {
	cfg FilterConfig
}

// NewSampleFilter creates a filter with the given thresholds.
func NewSampleFilter(cfg FilterConfig) *SampleFilter {
	return &SampleFilter{cfg: cfg}
}

// Evaluate applies the reject rules in order against the last accepted fix
// (nil if none). Each rule is a fast reject; the first hit wins.
func (f *SampleFilter) Evaluate(fix LocationFix, last *LocationFix) Decision {
	// Rule 1: accuracy gate. The limit itself is acceptable.
	if fix.AccuracyM > f.cfg.AccuracyLimitM {
		return Decision{Reason: RejectAccuracy}
	}

	if last == nil {
		speed := sensorSpeed(fix)
		if speed < 0 {
			speed = 0
		}
		return Decision{Accepted: true, SpeedMps: speed}
	}

	// Rule 2: minimum time interval between accepted fixes.
	dt := fix.Time.Sub(last.Time)
	if dt < f.cfg.MinInterval {
		return Decision{Reason: RejectInterval}
	}

	// Rule 3: jump gate. A hop beyond the limit is a sensor glitch, not
	// movement.
	dist := geo.DistanceMeters(last.Point(), fix.Point())
	if dist > f.cfg.JumpLimitM {
		return Decision{Reason: RejectJump, DistanceM: dist}
	}

	speed := sensorSpeed(fix)
	if speed < 0 && dt > 0 {
		speed = dist / dt.Seconds()
	}
	if speed < 0 {
		speed = 0
	}
	return Decision{Accepted: true, DistanceM: dist, SpeedMps: speed}
}

// sensorSpeed returns the sensor-reported speed, or -1 when invalid.
func sensorSpeed(fix LocationFix) float64 {
	if fix.HasSpeed() {
		return fix.SpeedMps
	}
	return -1
}
