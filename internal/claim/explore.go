package claim

import (
	"sync"
	"time"

	"github.com/banshee-data/terraclaim/internal/monitoring"
	"github.com/banshee-data/terraclaim/internal/timeutil"
)

// ExploreState is a snapshot of a player's exploration tracking.
type ExploreState struct {
	PlayerID      string      `json:"player_id"`
	Tracking      bool        `json:"tracking"`
	DistanceM     float64     `json:"distance_m"`
	FixesAccepted int         `json:"fixes_accepted"`
	FixesRejected int         `json:"fixes_rejected"`
	Speed         SpeedStatus `json:"speed"`
	StartedAt     time.Time   `json:"started_at"`
	UpdatedAt     time.Time   `json:"updated_at,omitzero"`
}

// ExploreConfig holds the filter and guard settings for exploration tracking.
type ExploreConfig struct {
	Filter FilterConfig
	Guard  SpeedGuardConfig
}

// DefaultExploreConfig returns the exploration-mode defaults. Only the severe
// threshold applies, with a grace window before the stop.
func DefaultExploreConfig() ExploreConfig {
	guard := DefaultSpeedGuardConfig()
	guard.Mode = ModeExplore
	return ExploreConfig{
		Filter: DefaultFilterConfig(),
		Guard:  guard,
	}
}

// ExplorationTracker accumulates distance walked in exploration mode. It runs
// the same fix filter as claim tracking, but the speed guard only escalates
// above the severe threshold and allows a grace window before stopping.
//
// Unlike a claim session there is no path or collision state, so a mutex
// around the accumulator is enough; no dedicated goroutine is needed beyond
// the grace timer.
type ExplorationTracker struct {
	cfg     ExploreConfig
	clock   timeutil.Clock
	metrics *monitoring.EngineCollector

	mu        sync.Mutex
	playerID  string
	filter    *SampleFilter
	guard     *SpeedGuard
	last      *LocationFix
	distanceM float64
	accepted  int
	rejected  int
	tracking  bool
	startedAt time.Time
	updatedAt time.Time

	graceTimer timeutil.Timer
	graceStop  chan struct{}
	timerGen   int
}

// NewExplorationTracker starts exploration tracking for a player. clock and
// metrics may be nil.
func NewExplorationTracker(playerID string, cfg ExploreConfig, clock timeutil.Clock, metrics *monitoring.EngineCollector) *ExplorationTracker {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	cfg.Guard.Mode = ModeExplore
	return &ExplorationTracker{
		cfg:       cfg,
		clock:     clock,
		metrics:   metrics,
		playerID:  playerID,
		filter:    NewSampleFilter(cfg.Filter),
		guard:     NewSpeedGuard(cfg.Guard, clock),
		tracking:  true,
		startedAt: clock.Now(),
	}
}

// Push feeds one fix through the filter and guard, accumulating distance for
// accepted fixes. Returns the decision and the state after the fix.
func (t *ExplorationTracker) Push(fix LocationFix) (Decision, ExploreState) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.expireIfOverdue()
	if !t.tracking {
		return Decision{Accepted: false}, t.stateLocked()
	}

	decision := t.filter.Evaluate(fix, t.last)
	if !decision.Accepted {
		t.rejected++
		if t.metrics != nil {
			t.metrics.FixesRejected.WithLabelValues(string(decision.Reason)).Inc()
		}
		return decision, t.stateLocked()
	}

	t.accepted++
	if t.metrics != nil {
		t.metrics.FixesAccepted.Inc()
	}
	t.distanceM += decision.DistanceM
	t.updatedAt = t.clock.Now()
	f := fix
	t.last = &f

	status := t.guard.Evaluate(decision.SpeedMps)
	switch status.State {
	case SpeedWarning:
		t.armGraceTimer()
	case SpeedClear:
		t.cancelGraceTimer()
	case SpeedStopped:
		t.stopLocked()
	}
	return decision, t.stateLocked()
}

// State returns the current snapshot, applying any overdue grace expiry.
func (t *ExplorationTracker) State() ExploreState {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.expireIfOverdue()
	return t.stateLocked()
}

// Stop ends tracking and returns the final snapshot.
func (t *ExplorationTracker) Stop() ExploreState {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
	return t.stateLocked()
}

// armGraceTimer schedules the deferred stop for the case where the player
// keeps speeding but stops sending fixes. Idempotent while a timer is armed.
func (t *ExplorationTracker) armGraceTimer() {
	if t.graceTimer != nil {
		return
	}
	t.timerGen++
	gen := t.timerGen
	timer := t.clock.NewTimer(t.cfg.Guard.Grace)
	stop := make(chan struct{})
	t.graceTimer = timer
	t.graceStop = stop
	go func() {
		select {
		case <-timer.C():
			t.onGraceTimer(gen)
		case <-stop:
		}
	}()
}

// cancelGraceTimer stops the timer and releases the watcher goroutine;
// Timer.Stop alone would leave it parked on a channel that never fires.
func (t *ExplorationTracker) cancelGraceTimer() {
	if t.graceTimer != nil {
		t.graceTimer.Stop()
		close(t.graceStop)
		t.graceTimer = nil
		t.graceStop = nil
		t.timerGen++
	}
}

func (t *ExplorationTracker) onGraceTimer(gen int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if gen != t.timerGen || !t.tracking {
		return
	}
	// The watcher goroutine has exited; drop the spent timer.
	t.graceTimer = nil
	t.graceStop = nil
	if t.guard.ExpireGrace().State == SpeedStopped {
		t.stopLocked()
	}
}

// expireIfOverdue applies the grace expiry on the read path, so the state
// machine is deterministic even before the timer goroutine has run.
func (t *ExplorationTracker) expireIfOverdue() {
	if !t.tracking {
		return
	}
	status := t.guard.Status()
	if status.State == SpeedWarning && t.clock.Since(status.WindowOpenedAt) >= t.cfg.Guard.Grace {
		t.guard.ExpireGrace()
		t.stopLocked()
	}
}

func (t *ExplorationTracker) stopLocked() {
	if !t.tracking {
		return
	}
	t.tracking = false
	t.updatedAt = t.clock.Now()
	t.cancelGraceTimer()
}

func (t *ExplorationTracker) stateLocked() ExploreState {
	return ExploreState{
		PlayerID:      t.playerID,
		Tracking:      t.tracking,
		DistanceM:     t.distanceM,
		FixesAccepted: t.accepted,
		FixesRejected: t.rejected,
		Speed:         t.guard.Status(),
		StartedAt:     t.startedAt,
		UpdatedAt:     t.updatedAt,
	}
}
