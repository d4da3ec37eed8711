package claim

import (
	"math"
	"runtime"
	"testing"
	"time"

	"github.com/banshee-data/terraclaim/internal/timeutil"
	"github.com/banshee-data/terraclaim/internal/units"
)

func TestExploreAccumulatesDistance(t *testing.T) {
	clock := timeutil.NewMockClock(t0)
	tr := NewExplorationTracker("p1", DefaultExploreConfig(), clock, nil)

	for i := 0; i < 3; i++ {
		fix := walkingFixAt(offsetPoint(testOrigin, float64(i)*20, 0), t0.Add(time.Duration(i)*10*time.Second))
		clock.Advance(10 * time.Second)
		if d, _ := tr.Push(fix); !d.Accepted {
			t.Fatalf("fix %d rejected: %+v", i, d)
		}
	}

	state := tr.State()
	if !state.Tracking {
		t.Fatal("tracker stopped during a normal walk")
	}
	if math.Abs(state.DistanceM-40) > 1 {
		t.Errorf("DistanceM = %.1f, want ~40", state.DistanceM)
	}
	if state.FixesAccepted != 3 {
		t.Errorf("FixesAccepted = %d, want 3", state.FixesAccepted)
	}
}

func TestExploreCountsRejects(t *testing.T) {
	clock := timeutil.NewMockClock(t0)
	tr := NewExplorationTracker("p1", DefaultExploreConfig(), clock, nil)

	tr.Push(walkingFixAt(testOrigin, t0))
	bad := walkingFixAt(offsetPoint(testOrigin, 20, 0), t0.Add(10*time.Second))
	bad.AccuracyM = 80
	if d, _ := tr.Push(bad); d.Accepted {
		t.Fatal("80m-accuracy fix accepted")
	}

	state := tr.State()
	if state.FixesRejected != 1 {
		t.Errorf("FixesRejected = %d, want 1", state.FixesRejected)
	}
	if state.DistanceM != 0 {
		t.Errorf("rejected fix added distance: %.1f", state.DistanceM)
	}
}

func fastFixAt(tr *ExplorationTracker, northM float64, at time.Time) (Decision, ExploreState) {
	fix := fixAt(offsetPoint(testOrigin, northM, 0), at)
	fix.SpeedMps = units.KmhToMps(31)
	return tr.Push(fix)
}

func TestExploreSpeedWarnsThenStops(t *testing.T) {
	clock := timeutil.NewMockClock(t0)
	tr := NewExplorationTracker("p1", DefaultExploreConfig(), clock, nil)

	// In exploration mode a burst over the severe threshold warns first.
	_, state := fastFixAt(tr, 0, t0)
	if state.Speed.State != SpeedWarning {
		t.Fatalf("31 km/h: speed state = %q, want warning", state.Speed.State)
	}
	if !state.Tracking {
		t.Fatal("tracking stopped before the grace window elapsed")
	}

	// Still speeding past the 10s grace: stop.
	clock.Advance(11 * time.Second)
	_, state = fastFixAt(tr, 50, t0.Add(11*time.Second))
	if state.Tracking {
		t.Error("still tracking after the grace window elapsed at speed")
	}
	if state.Speed.State != SpeedStopped {
		t.Errorf("speed state = %q, want stopped", state.Speed.State)
	}
}

func TestExploreGraceExpiresWithoutFixes(t *testing.T) {
	clock := timeutil.NewMockClock(t0)
	tr := NewExplorationTracker("p1", DefaultExploreConfig(), clock, nil)

	fastFixAt(tr, 0, t0)

	// No further fixes arrive; the deferred expiry still fires.
	clock.Advance(11 * time.Second)
	state := tr.State()
	if state.Tracking {
		t.Error("still tracking 11s into the warning window with no fixes")
	}
}

func TestExploreRecoveryCancelsGrace(t *testing.T) {
	clock := timeutil.NewMockClock(t0)
	tr := NewExplorationTracker("p1", DefaultExploreConfig(), clock, nil)

	fastFixAt(tr, 0, t0)
	clock.Advance(5 * time.Second)
	_, state := tr.Push(walkingFixAt(offsetPoint(testOrigin, 7, 0), t0.Add(5*time.Second)))
	if state.Speed.State != SpeedClear {
		t.Fatalf("after slowing down: speed state = %q, want clear", state.Speed.State)
	}

	clock.Advance(30 * time.Second)
	if state := tr.State(); !state.Tracking {
		t.Error("tracking stopped after the player slowed down in time")
	}
}

func TestExploreRecoveryReleasesGraceWatcher(t *testing.T) {
	clock := timeutil.NewMockClock(t0)
	tr := NewExplorationTracker("p1", DefaultExploreConfig(), clock, nil)
	before := runtime.NumGoroutine()

	// Repeated warn/recover cycles must not accumulate parked goroutines.
	at := t0
	north := 0.0
	for i := 0; i < 50; i++ {
		at = at.Add(2 * time.Second)
		north += 10
		fix := fixAt(offsetPoint(testOrigin, north, 0), at)
		fix.SpeedMps = units.KmhToMps(31)
		if d, _ := tr.Push(fix); !d.Accepted {
			t.Fatalf("fast fix %d rejected: %+v", i, d)
		}

		at = at.Add(2 * time.Second)
		north += 2
		if d, state := tr.Push(walkingFixAt(offsetPoint(testOrigin, north, 0), at)); !d.Accepted || state.Speed.State != SpeedClear {
			t.Fatalf("recovery fix %d: %+v / %q", i, d, state.Speed.State)
		}
	}

	waitFor(t, "grace watchers released", func() bool {
		runtime.Gosched()
		return runtime.NumGoroutine() <= before+3
	})
}

func TestExploreStopIsFinal(t *testing.T) {
	clock := timeutil.NewMockClock(t0)
	tr := NewExplorationTracker("p1", DefaultExploreConfig(), clock, nil)

	tr.Push(walkingFixAt(testOrigin, t0))
	state := tr.Stop()
	if state.Tracking {
		t.Fatal("Stop returned a tracking state")
	}

	if d, _ := tr.Push(walkingFixAt(offsetPoint(testOrigin, 20, 0), t0.Add(10*time.Second))); d.Accepted {
		t.Error("fix accepted after Stop")
	}
}
