package claim

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/banshee-data/terraclaim/internal/timeutil"
)

func newTestManager(t *testing.T, store *fakeStore) *Manager {
	t.Helper()
	m := NewManager(DefaultSessionConfig(), store, timeutil.NewMockClock(t0), nil)
	t.Cleanup(m.Shutdown)
	return m
}

// pushWalk starts a claim at walk[0] and feeds the remaining points as
// walking-pace fixes, waiting until the session has processed them.
func pushWalk(t *testing.T, m *Manager, player string, walk [][2]float64) {
	t.Helper()
	start := walkingFixAt(offsetPoint(testOrigin, walk[0][0], walk[0][1]), t0)
	res, state, err := m.StartClaim(context.Background(), player, start)
	if err != nil {
		t.Fatalf("StartClaim: %v", err)
	}
	if res.Level == LevelViolation || state == nil {
		t.Fatalf("StartClaim blocked: %+v", res)
	}
	for i, o := range walk[1:] {
		fix := walkingFixAt(offsetPoint(testOrigin, o[0], o[1]), t0.Add(time.Duration(i+1)*10*time.Second))
		if ok, err := m.PushFix(player, fix); err != nil || !ok {
			t.Fatalf("PushFix %d: ok=%v err=%v", i+1, ok, err)
		}
	}
	waitFor(t, "walk processed", func() bool {
		st, err := m.State(player)
		return err == nil && st.FixesAccepted == len(walk)
	})
}

func TestManagerStartBlockedInsideForeignTerritory(t *testing.T) {
	store := &fakeStore{}
	store.territories = append(store.territories, squareTerritory("t-rival", "rival", testOrigin, 200))
	m := newTestManager(t, store)

	res, state, err := m.StartClaim(context.Background(), "me", walkingFixAt(testOrigin, t0))
	if err != nil {
		t.Fatalf("StartClaim: %v", err)
	}
	if res.Level != LevelViolation {
		t.Errorf("level = %v, want violation", res.Level)
	}
	if state != nil {
		t.Error("session started despite the violation")
	}
	if _, err := m.State("me"); !errors.Is(err, ErrNotTracking) {
		t.Errorf("State after blocked start: err = %v, want ErrNotTracking", err)
	}
}

func TestManagerStartBlockedOnStoreError(t *testing.T) {
	store := &fakeStore{}
	store.setListErr(errors.New("db locked"))
	m := newTestManager(t, store)

	if _, _, err := m.StartClaim(context.Background(), "me", walkingFixAt(testOrigin, t0)); err == nil {
		t.Error("StartClaim succeeded without a readable territory snapshot")
	}
}

func TestManagerOneSessionPerPlayer(t *testing.T) {
	m := newTestManager(t, &fakeStore{})

	if _, _, err := m.StartClaim(context.Background(), "me", walkingFixAt(testOrigin, t0)); err != nil {
		t.Fatalf("first StartClaim: %v", err)
	}
	_, _, err := m.StartClaim(context.Background(), "me", walkingFixAt(testOrigin, t0))
	if !errors.Is(err, ErrAlreadyTracking) {
		t.Errorf("second StartClaim: err = %v, want ErrAlreadyTracking", err)
	}

	// A different player is unaffected.
	if _, _, err := m.StartClaim(context.Background(), "other", walkingFixAt(offsetPoint(testOrigin, 500, 0), t0)); err != nil {
		t.Errorf("other player's StartClaim: %v", err)
	}
}

func TestManagerStopKeepsStateReadable(t *testing.T) {
	m := newTestManager(t, &fakeStore{})
	if _, _, err := m.StartClaim(context.Background(), "me", walkingFixAt(testOrigin, t0)); err != nil {
		t.Fatalf("StartClaim: %v", err)
	}

	state, err := m.StopClaim("me")
	if err != nil {
		t.Fatalf("StopClaim: %v", err)
	}
	if state.Tracking || state.StopReason != StopManual {
		t.Errorf("stop state = tracking %v reason %q", state.Tracking, state.StopReason)
	}

	// The finalized session stays readable until replaced.
	got, err := m.State("me")
	if err != nil {
		t.Fatalf("State after stop: %v", err)
	}
	if got.Result == nil {
		t.Error("no result retained after stop")
	}
}

func TestManagerSubmitRejectsOpenPath(t *testing.T) {
	m := newTestManager(t, &fakeStore{})
	// A short straight walk: never closes.
	pushWalk(t, m, "me", [][2]float64{{0, 0}, {20, 0}, {40, 0}, {60, 0}})

	if _, err := m.Submit(context.Background(), "me"); !errors.Is(err, ErrNotClosed) {
		t.Fatalf("Submit open path: err = %v, want ErrNotClosed", err)
	}

	// A mis-tapped submit must not end the walk: the session keeps tracking
	// with the path intact and further fixes still land.
	st, err := m.State("me")
	if err != nil {
		t.Fatalf("State after failed submit: %v", err)
	}
	if !st.Tracking {
		t.Fatalf("session stopped by a rejected submit (reason %q)", st.StopReason)
	}
	if len(st.Path.Points) != 4 {
		t.Errorf("path has %d points after failed submit, want 4", len(st.Path.Points))
	}

	next := walkingFixAt(offsetPoint(testOrigin, 80, 0), t0.Add(40*time.Second))
	if ok, err := m.PushFix("me", next); err != nil || !ok {
		t.Fatalf("PushFix after failed submit: ok=%v err=%v", ok, err)
	}
	waitFor(t, "walk continues", func() bool {
		st, err := m.State("me")
		return err == nil && st.FixesAccepted == 5
	})
}

func TestManagerSubmitPersistsClosedLoop(t *testing.T) {
	store := &fakeStore{}
	m := newTestManager(t, store)
	pushWalk(t, m, "me", squareWalk)

	waitFor(t, "loop closed", func() bool {
		st, err := m.State("me")
		return err == nil && st.Path.Closed
	})

	claimed, err := m.Submit(context.Background(), "me")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if claimed.ID == "" {
		t.Error("territory has no ID")
	}
	if claimed.OwnerID != "me" || !claimed.Active {
		t.Errorf("territory = owner %q active %v", claimed.OwnerID, claimed.Active)
	}
	want := 100.0 * 100.0
	if math.Abs(claimed.AreaM2-want)/want > 0.01 {
		t.Errorf("AreaM2 = %.1f, want ~%.0f", claimed.AreaM2, want)
	}
	if len(store.inserted) != 1 {
		t.Fatalf("store has %d inserts, want 1", len(store.inserted))
	}

	// The session is consumed; the player can start a fresh claim.
	if _, err := m.State("me"); !errors.Is(err, ErrNotTracking) {
		t.Errorf("State after submit: err = %v, want ErrNotTracking", err)
	}
	if _, _, err := m.StartClaim(context.Background(), "me", walkingFixAt(offsetPoint(testOrigin, 500, 0), t0.Add(time.Hour))); err != nil {
		t.Errorf("StartClaim after submit: %v", err)
	}
}

func TestManagerSubmitRetriesAfterStoreFailure(t *testing.T) {
	store := &fakeStore{}
	m := newTestManager(t, store)
	pushWalk(t, m, "me", squareWalk)
	waitFor(t, "loop closed", func() bool {
		st, err := m.State("me")
		return err == nil && st.Path.Closed
	})

	store.setInsertErr(errors.New("disk full"))
	if _, err := m.Submit(context.Background(), "me"); err == nil {
		t.Fatal("Submit succeeded despite insert failure")
	}

	store.setInsertErr(nil)
	if _, err := m.Submit(context.Background(), "me"); err != nil {
		t.Fatalf("retry after insert failure: %v", err)
	}
	if len(store.inserted) != 1 {
		t.Errorf("store has %d inserts, want 1", len(store.inserted))
	}
}

func TestManagerSubmitRejectsSelfIntersectingLoop(t *testing.T) {
	m := newTestManager(t, &fakeStore{})
	// A square walk with a detour that cuts back across the first side
	// before closing.
	crossing := [][2]float64{
		{0, 0}, {0, 50}, {0, 100},
		{50, 100}, {100, 100},
		{100, 50}, {100, 0},
		{50, 0}, {-20, 25}, {5, 5},
	}
	pushWalk(t, m, "me", crossing)
	waitFor(t, "loop closed", func() bool {
		st, err := m.State("me")
		return err == nil && st.Path.Closed
	})

	if _, err := m.Submit(context.Background(), "me"); !errors.Is(err, ErrSelfIntersecting) {
		t.Errorf("Submit: err = %v, want ErrSelfIntersecting", err)
	}
	if st, err := m.State("me"); err != nil || !st.Tracking {
		t.Errorf("rejected submit ended the walk: err=%v tracking=%v", err, st.Tracking)
	}
}

func TestManagerPushFixWithoutSession(t *testing.T) {
	m := newTestManager(t, &fakeStore{})
	if _, err := m.PushFix("ghost", walkingFixAt(testOrigin, t0)); !errors.Is(err, ErrNotTracking) {
		t.Errorf("PushFix: err = %v, want ErrNotTracking", err)
	}
}

func TestManagerShutdownCancelsSessions(t *testing.T) {
	m := newTestManager(t, &fakeStore{})
	if _, _, err := m.StartClaim(context.Background(), "me", walkingFixAt(testOrigin, t0)); err != nil {
		t.Fatalf("StartClaim: %v", err)
	}

	m.Shutdown()
	if _, err := m.State("me"); !errors.Is(err, ErrNotTracking) {
		t.Errorf("State after shutdown: err = %v, want ErrNotTracking", err)
	}
}
