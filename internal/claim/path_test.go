package claim

import (
	"math"
	"testing"
	"time"

	"github.com/banshee-data/terraclaim/internal/geo"
)

// squareWalk is a 100m square walk in (north, east) meter offsets from the
// start; the last point lands about 5m from the first.
var squareWalk = [][2]float64{
	{0, 0}, {0, 50}, {0, 100},
	{50, 100}, {100, 100},
	{100, 50}, {100, 0},
	{50, 0}, {10, 0}, {5, 0},
}

func appendWalk(t *testing.T, tracker *PathTracker, walk [][2]float64) (closedAt int) {
	t.Helper()
	closedAt = -1
	for i, o := range walk {
		p := offsetPoint(testOrigin, o[0], o[1])
		if tracker.Append(p, t0.Add(time.Duration(i)*5*time.Second)) {
			closedAt = i
		}
	}
	return closedAt
}

func TestPathClosureRequiresMinPoints(t *testing.T) {
	tracker := NewPathTracker(DefaultTrackerConfig())
	tracker.Start(t0)

	// A tight cluster: every point is within 30m of the first, but the loop
	// must not close before the tenth point.
	for i := 0; i < 9; i++ {
		p := offsetPoint(testOrigin, float64(i)*2, 0)
		if tracker.Append(p, t0.Add(time.Duration(i)*time.Second)) {
			t.Fatalf("closed at point %d, want no closure before 10 points", i+1)
		}
	}
	if tracker.Closed() {
		t.Fatal("closed with 9 points")
	}
	if !tracker.Append(offsetPoint(testOrigin, 5, 0), t0.Add(9*time.Second)) {
		t.Error("10th point within closure distance did not close the loop")
	}
}

// pointNorthOf returns the point due north of p along the meridian, at a
// great-circle distance of exactly d meters. Unlike offsetPoint's flat-earth
// shift, the haversine distance back to p matches d to machine precision, so
// the closure boundary can be tested exactly.
func pointNorthOf(p geo.Point, d float64) geo.Point {
	return geo.Point{Lat: p.Lat + (d/geo.EarthRadiusMeters)*180/math.Pi, Lng: p.Lng}
}

func TestPathClosureDistanceBoundary(t *testing.T) {
	tests := []struct {
		name      string
		lastM     float64
		wantClose bool
	}{
		{"well inside", 5, true},
		{"just inside", 29, true},
		// A nanometre under the limit keeps the inclusive case clear of
		// float roundoff in the distance computation.
		{"at the threshold", 30.0 - 1e-9, true},
		{"just outside", 30.1, false},
		{"outside", 35, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker := NewPathTracker(DefaultTrackerConfig())
			tracker.Start(t0)
			// Nine points of the square; none can close below the minimum
			// point count.
			if closedAt := appendWalk(t, tracker, squareWalk[:len(squareWalk)-1]); closedAt != -1 {
				t.Fatalf("closed at %d before the final point", closedAt)
			}

			last := pointNorthOf(testOrigin, tt.lastM)
			if d := geo.DistanceMeters(testOrigin, last); math.Abs(d-tt.lastM) > 0.001 {
				t.Fatalf("constructed point is %.6fm from start, want %.6fm", d, tt.lastM)
			}
			if got := tracker.Append(last, t0.Add(time.Minute)); got != tt.wantClose {
				t.Errorf("last point %gm from start: closed = %v, want %v", tt.lastM, got, tt.wantClose)
			}
		})
	}
}

func TestPathVersionMonotonic(t *testing.T) {
	tracker := NewPathTracker(DefaultTrackerConfig())
	tracker.Start(t0)

	var last uint64
	for i, o := range squareWalk {
		p := offsetPoint(testOrigin, o[0], o[1])
		tracker.Append(p, t0.Add(time.Duration(i)*5*time.Second))
		snap := tracker.Snapshot()
		if snap.Version <= last {
			t.Fatalf("version %d after append %d, not greater than previous %d", snap.Version, i+1, last)
		}
		last = snap.Version
	}

	// Ten appends plus one extra bump for the closure itself.
	if last != uint64(len(squareWalk))+1 {
		t.Errorf("final version = %d, want %d", last, len(squareWalk)+1)
	}
}

func TestPathAreaOnClosure(t *testing.T) {
	tracker := NewPathTracker(DefaultTrackerConfig())
	tracker.Start(t0)
	if closedAt := appendWalk(t, tracker, squareWalk); closedAt != len(squareWalk)-1 {
		t.Fatalf("closedAt = %d, want %d", closedAt, len(squareWalk)-1)
	}

	snap := tracker.Snapshot()
	if !snap.Closed || !snap.AreaValid {
		t.Fatalf("closed = %v, areaValid = %v, want both true", snap.Closed, snap.AreaValid)
	}
	want := 100.0 * 100.0
	if math.Abs(snap.AreaM2-want)/want > 0.01 {
		t.Errorf("area = %.1f m2, want within 1%% of %.0f", snap.AreaM2, want)
	}
}

func TestPathExtendAfterClosure(t *testing.T) {
	tracker := NewPathTracker(DefaultTrackerConfig())
	tracker.Start(t0)
	appendWalk(t, tracker, squareWalk)
	before := tracker.Snapshot()

	// Extending a closed loop must keep it closed and refresh the area.
	if tracker.Append(offsetPoint(testOrigin, 2, -20), t0.Add(time.Minute)) {
		t.Error("extension reported as a new closure")
	}
	after := tracker.Snapshot()
	if !after.Closed {
		t.Error("loop no longer closed after extension")
	}
	if after.Version <= before.Version {
		t.Error("version did not advance on extension")
	}
	if after.AreaM2 == before.AreaM2 {
		t.Error("area not recomputed after extension")
	}
}

func TestPathStopClears(t *testing.T) {
	tracker := NewPathTracker(DefaultTrackerConfig())
	tracker.Start(t0)
	appendWalk(t, tracker, squareWalk)

	final := tracker.Stop()
	if len(final.Points) != len(squareWalk) {
		t.Errorf("final snapshot has %d points, want %d", len(final.Points), len(squareWalk))
	}
	if tracker.Len() != 0 {
		t.Errorf("tracker retains %d points after stop", tracker.Len())
	}

	// Appends after stop are no-ops until the next Start.
	tracker.Append(geo.Point{Lat: testOrigin.Lat, Lng: testOrigin.Lng}, t0)
	if tracker.Len() != 0 {
		t.Error("append after stop modified the tracker")
	}
}

func TestPathSnapshotIsolation(t *testing.T) {
	tracker := NewPathTracker(DefaultTrackerConfig())
	tracker.Start(t0)
	tracker.Append(testOrigin, t0)

	snap := tracker.Snapshot()
	snap.Points[0] = offsetPoint(testOrigin, 1000, 1000)

	if got := tracker.Snapshot().Points[0]; got != testOrigin {
		t.Errorf("mutating a snapshot leaked into the tracker: %+v", got)
	}
}
