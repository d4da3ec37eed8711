package claim

import (
	"math"
	"testing"
	"time"
)

var t0 = time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC)

func TestFilterAccuracyBoundary(t *testing.T) {
	f := NewSampleFilter(DefaultFilterConfig())

	tests := []struct {
		accuracyM float64
		accepted  bool
	}{
		{10, true},
		{49.9, true},
		{50, true}, // the limit itself is acceptable
		{50.1, false},
		{120, false},
	}
	for _, tt := range tests {
		fix := fixAt(testOrigin, t0)
		fix.AccuracyM = tt.accuracyM
		d := f.Evaluate(fix, nil)
		if d.Accepted != tt.accepted {
			t.Errorf("accuracy %.1f: accepted = %v, want %v", tt.accuracyM, d.Accepted, tt.accepted)
		}
		if !tt.accepted && d.Reason != RejectAccuracy {
			t.Errorf("accuracy %.1f: reason = %q, want %q", tt.accuracyM, d.Reason, RejectAccuracy)
		}
	}
}

func TestFilterFirstFix(t *testing.T) {
	f := NewSampleFilter(DefaultFilterConfig())

	d := f.Evaluate(fixAt(testOrigin, t0), nil)
	if !d.Accepted {
		t.Fatalf("first fix rejected: %+v", d)
	}
	if d.DistanceM != 0 {
		t.Errorf("first fix DistanceM = %v, want 0", d.DistanceM)
	}
	if d.SpeedMps != 0 {
		t.Errorf("first fix without sensor speed: SpeedMps = %v, want 0", d.SpeedMps)
	}

	fix := fixAt(testOrigin, t0)
	fix.SpeedMps = 2.5
	d = f.Evaluate(fix, nil)
	if d.SpeedMps != 2.5 {
		t.Errorf("first fix with sensor speed: SpeedMps = %v, want 2.5", d.SpeedMps)
	}
}

func TestFilterMinInterval(t *testing.T) {
	f := NewSampleFilter(DefaultFilterConfig())
	last := fixAt(testOrigin, t0)

	d := f.Evaluate(fixAt(offsetPoint(testOrigin, 2, 0), t0.Add(500*time.Millisecond)), &last)
	if d.Accepted || d.Reason != RejectInterval {
		t.Errorf("fix 0.5s after last: got %+v, want interval reject", d)
	}

	d = f.Evaluate(fixAt(offsetPoint(testOrigin, 2, 0), t0.Add(time.Second)), &last)
	if !d.Accepted {
		t.Errorf("fix exactly 1s after last rejected: %+v", d)
	}
}

func TestFilterJumpGate(t *testing.T) {
	f := NewSampleFilter(DefaultFilterConfig())
	last := fixAt(testOrigin, t0)

	d := f.Evaluate(fixAt(offsetPoint(testOrigin, 150, 0), t0.Add(2*time.Second)), &last)
	if d.Accepted || d.Reason != RejectJump {
		t.Errorf("150m hop: got %+v, want jump reject", d)
	}

	d = f.Evaluate(fixAt(offsetPoint(testOrigin, 90, 0), t0.Add(30*time.Second)), &last)
	if !d.Accepted {
		t.Fatalf("90m move rejected: %+v", d)
	}
	if math.Abs(d.DistanceM-90) > 1 {
		t.Errorf("DistanceM = %.2f, want ~90", d.DistanceM)
	}
}

func TestFilterSynthesizedSpeed(t *testing.T) {
	f := NewSampleFilter(DefaultFilterConfig())
	last := fixAt(testOrigin, t0)

	// No valid sensor speed: 20m in 10s is 2 m/s.
	d := f.Evaluate(fixAt(offsetPoint(testOrigin, 20, 0), t0.Add(10*time.Second)), &last)
	if !d.Accepted {
		t.Fatalf("fix rejected: %+v", d)
	}
	if math.Abs(d.SpeedMps-2.0) > 0.05 {
		t.Errorf("synthesized SpeedMps = %.3f, want ~2.0", d.SpeedMps)
	}
}

func TestFilterSensorSpeedPreferred(t *testing.T) {
	f := NewSampleFilter(DefaultFilterConfig())
	last := fixAt(testOrigin, t0)

	fix := fixAt(offsetPoint(testOrigin, 20, 0), t0.Add(10*time.Second))
	fix.SpeedMps = 3.0
	d := f.Evaluate(fix, &last)
	if !d.Accepted {
		t.Fatalf("fix rejected: %+v", d)
	}
	if d.SpeedMps != 3.0 {
		t.Errorf("SpeedMps = %v, want sensor value 3.0", d.SpeedMps)
	}
}
