package claim

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/terraclaim/internal/config"
	"github.com/banshee-data/terraclaim/internal/geo"
	"github.com/banshee-data/terraclaim/internal/monitoring"
	"github.com/banshee-data/terraclaim/internal/timeutil"
)

// StopReason records why a claim session ended.
type StopReason string

const (
	StopNone               StopReason = ""
	StopManual             StopReason = "manual"
	StopSpeedViolation     StopReason = "speed_violation"
	StopCollisionViolation StopReason = "collision_violation"
	StopCancelled          StopReason = "cancelled"
	StopSubmitted          StopReason = "submitted"
)

// SessionConfig bundles the engine tuning for one claim session.
type SessionConfig struct {
	Filter            FilterConfig
	Guard             SpeedGuardConfig
	Tracker           TrackerConfig
	Collision         CollisionConfig
	CollisionInterval time.Duration
	ViolationHold     time.Duration // how long a violation banner is retained after stop
	FixBuffer         int
}

// DefaultSessionConfig returns the production tuning.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Filter:            DefaultFilterConfig(),
		Guard:             DefaultSpeedGuardConfig(),
		Tracker:           DefaultTrackerConfig(),
		Collision:         DefaultCollisionConfig(),
		CollisionInterval: 10 * time.Second,
		ViolationHold:     5 * time.Second,
		FixBuffer:         64,
	}
}

// SessionConfigFromTuning builds a SessionConfig from the loaded tuning file.
func SessionConfigFromTuning(t *config.TuningConfig) SessionConfig {
	return SessionConfig{
		Filter: FilterConfig{
			AccuracyLimitM: t.GetAccuracyLimitM(),
			MinInterval:    t.GetMinFixInterval(),
			JumpLimitM:     t.GetJumpLimitM(),
		},
		Guard: SpeedGuardConfig{
			MildKmh:   t.GetSpeedMildKmh(),
			SevereKmh: t.GetSpeedSevereKmh(),
			Grace:     t.GetSpeedGrace(),
			Mode:      ModeClaim,
		},
		Tracker: TrackerConfig{
			MinClosurePoints: t.GetMinClosurePoints(),
			ClosureDistanceM: t.GetClosureDistanceM(),
		},
		Collision: CollisionConfig{
			CautionM: t.GetProximityCautionM(),
			WarningM: t.GetProximityWarningM(),
			DangerM:  t.GetProximityDangerM(),
		},
		CollisionInterval: t.GetCollisionInterval(),
		ViolationHold:     t.GetViolationHold(),
		FixBuffer:         t.GetFixBuffer(),
	}
}

// ClaimResult is the finalized bundle produced when a session stops, suitable
// for serialization or submission as a territory.
type ClaimResult struct {
	SessionID  string          `json:"session_id"`
	PlayerID   string          `json:"player_id"`
	Points     []geo.Point     `json:"points"`
	Closed     bool            `json:"closed"`
	AreaM2     float64         `json:"area_m2"`
	AreaValid  bool            `json:"area_valid"`
	StartedAt  time.Time       `json:"started_at"`
	EndedAt    time.Time       `json:"ended_at"`
	Bounds     geo.BoundingBox `json:"bounds"`
	Speeds     SpeedStats      `json:"speeds"`
	StopReason StopReason      `json:"stop_reason"`
}

// SessionState is the immutable snapshot published to readers: the live path,
// current collision and speed status, and (once stopped) the final result.
type SessionState struct {
	SessionID     string           `json:"session_id"`
	PlayerID      string           `json:"player_id"`
	Tracking      bool             `json:"tracking"`
	StopReason    StopReason       `json:"stop_reason,omitempty"`
	Path          PathSnapshot     `json:"path"`
	Collision     *CollisionResult `json:"collision,omitempty"`
	Speed         SpeedStatus      `json:"speed"`
	LastDecision  *Decision        `json:"last_decision,omitempty"`
	FixesAccepted int              `json:"fixes_accepted"`
	FixesRejected int              `json:"fixes_rejected"`
	ChecksSkipped int              `json:"checks_skipped"`
	Result        *ClaimResult     `json:"result,omitempty"`
}

type stopRequest struct {
	reason StopReason
	reply  chan SessionState
}

// Session owns one claim attempt. A single goroutine (Run) serializes fix
// acceptance, closure, and the periodic collision checks; everything external
// sees are immutable snapshots.
type Session struct {
	ID       string
	PlayerID string

	cfg      SessionConfig
	clock    timeutil.Clock
	filter   *SampleFilter
	guard    *SpeedGuard
	tracker  *PathTracker
	detector *CollisionDetector
	source   TerritorySource
	metrics  *monitoring.EngineCollector // optional

	fixCh  chan LocationFix
	stopCh chan stopRequest
	done   chan struct{}

	mu    sync.RWMutex
	state SessionState

	// run-loop private state
	lastAccepted *LocationFix
	speedsMps    []float64
	graceTimer   timeutil.Timer
	graceC       <-chan time.Time
}

// NewSession creates a session and seeds the path with the validated start
// fix. The caller must have already passed the start-point collision check.
func NewSession(playerID string, start LocationFix, cfg SessionConfig, source TerritorySource, clock timeutil.Clock, metrics *monitoring.EngineCollector) *Session {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	s := &Session{
		ID:       uuid.NewString(),
		PlayerID: playerID,
		cfg:      cfg,
		clock:    clock,
		filter:   NewSampleFilter(cfg.Filter),
		guard:    NewSpeedGuard(cfg.Guard, clock),
		tracker:  NewPathTracker(cfg.Tracker),
		detector: NewCollisionDetector(cfg.Collision),
		source:   source,
		metrics:  metrics,
		fixCh:    make(chan LocationFix, cfg.FixBuffer),
		stopCh:   make(chan stopRequest),
		done:     make(chan struct{}),
	}

	now := clock.Now()
	s.tracker.Start(now)
	s.tracker.Append(start.Point(), start.Time)
	startCopy := start
	s.lastAccepted = &startCopy

	s.state = SessionState{
		SessionID:     s.ID,
		PlayerID:      playerID,
		Tracking:      true,
		Path:          s.tracker.Snapshot(),
		Speed:         s.guard.Status(),
		FixesAccepted: 1,
	}
	if metrics != nil {
		metrics.SessionsStarted.Inc()
		metrics.FixesAccepted.Inc()
	}
	return s
}

// Run drains fixes and ticks until the session stops. It must be called
// exactly once, typically on its own goroutine. No collision check runs and
// no stale result is delivered after Run returns.
func (s *Session) Run(ctx context.Context) {
	defer close(s.done)

	ticker := s.clock.NewTicker(s.cfg.CollisionInterval)
	defer ticker.Stop()
	defer s.disarmGraceTimer()

	for {
		select {
		case <-ctx.Done():
			s.finalize(StopCancelled)
			return
		case req := <-s.stopCh:
			s.finalize(req.reason)
			req.reply <- s.State()
			return
		case fix := <-s.fixCh:
			if s.handleFix(fix) {
				return
			}
		case <-s.graceC:
			// The warning window outlived the grace period with no fix
			// resolving it either way.
			s.graceTimer = nil
			s.graceC = nil
			if s.guard.ExpireGrace().State == SpeedStopped {
				monitoring.Logf("session %s: speed warning unresolved after %s", s.ID, s.cfg.Guard.Grace)
				s.finalize(StopSpeedViolation)
				return
			}
		case <-ticker.C():
			if s.runCollisionCheck(ctx) {
				// Violation: tracking already stopped, keep the banner up
				// briefly so the player sees why, then clear it.
				s.holdViolationBanner(ctx)
				return
			}
		}
	}
}

// Offer pushes a fix into the session without blocking. Reports false if the
// session has stopped or the buffer is full (the fix is dropped; the sensor
// will produce another shortly).
func (s *Session) Offer(fix LocationFix) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.fixCh <- fix:
		return true
	default:
		monitoring.Logf("session %s: fix buffer full, dropping fix", s.ID)
		return false
	}
}

// Stop ends the session with the given reason and returns the final state.
// Safe to call from any goroutine; returns immediately if already stopped.
func (s *Session) Stop(reason StopReason) SessionState {
	req := stopRequest{reason: reason, reply: make(chan SessionState, 1)}
	select {
	case s.stopCh <- req:
		return <-req.reply
	case <-s.done:
		return s.State()
	}
}

// Done returns a channel closed when the session loop has exited.
func (s *Session) Done() <-chan struct{} { return s.done }

// State returns the current immutable snapshot.
func (s *Session) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// handleFix runs the filter → guard → append pipeline for one fix. Reports
// whether the session stopped (speed violation).
func (s *Session) handleFix(fix LocationFix) bool {
	decision := s.filter.Evaluate(fix, s.lastAccepted)

	if !decision.Accepted {
		if s.metrics != nil {
			s.metrics.FixesRejected.WithLabelValues(string(decision.Reason)).Inc()
		}
		d := decision
		s.mu.Lock()
		s.state.FixesRejected++
		s.state.LastDecision = &d
		s.mu.Unlock()
		return false
	}

	status := s.guard.Evaluate(decision.SpeedMps)
	if status.State == SpeedStopped {
		monitoring.Logf("session %s: speed violation at %.1f km/h", s.ID, status.SpeedKmh)
		s.finalize(StopSpeedViolation)
		return true
	}
	if status.State == SpeedWarning {
		s.armGraceTimer()
	} else {
		s.disarmGraceTimer()
	}

	s.tracker.Append(fix.Point(), fix.Time)
	fixCopy := fix
	s.lastAccepted = &fixCopy
	s.speedsMps = append(s.speedsMps, decision.SpeedMps)
	if s.metrics != nil {
		s.metrics.FixesAccepted.Inc()
	}

	d := decision
	s.mu.Lock()
	s.state.FixesAccepted++
	s.state.LastDecision = &d
	s.state.Speed = status
	s.state.Path = s.tracker.Snapshot()
	s.mu.Unlock()
	return false
}

// runCollisionCheck refreshes the territory snapshot and grades the path.
// Reports whether a violation stopped the session. A failed snapshot read
// skips the check: skipped is not the same as safe, and the previous result
// is retained.
func (s *Session) runCollisionCheck(ctx context.Context) bool {
	territories, err := s.source.ActiveTerritories(ctx)
	if err != nil {
		monitoring.Logf("session %s: collision check skipped: %v", s.ID, err)
		s.mu.Lock()
		s.state.ChecksSkipped++
		s.mu.Unlock()
		return false
	}

	snap := s.tracker.Snapshot()
	result := s.detector.CheckPath(snap.Points, s.PlayerID, territories)
	if s.metrics != nil {
		s.metrics.CollisionChecks.Inc()
		s.metrics.WarningLevel.Set(float64(result.Level))
	}

	s.mu.Lock()
	if result.Level == LevelSafe {
		s.state.Collision = nil // clear any banner
	} else {
		s.state.Collision = &result
	}
	s.mu.Unlock()

	if result.Level == LevelViolation {
		monitoring.Logf("session %s: collision violation (%s)", s.ID, result.Message)
		s.finalize(StopCollisionViolation)
		return true
	}
	return false
}

// armGraceTimer schedules the one-shot stop for an open warning window, so
// the window expires even if the player stops sending fixes. Only the run
// loop touches the timer, no locking needed.
func (s *Session) armGraceTimer() {
	if s.graceTimer != nil {
		return
	}
	s.graceTimer = s.clock.NewTimer(s.cfg.Guard.Grace)
	s.graceC = s.graceTimer.C()
}

func (s *Session) disarmGraceTimer() {
	if s.graceTimer == nil {
		return
	}
	s.graceTimer.Stop()
	s.graceTimer = nil
	s.graceC = nil
}

// holdViolationBanner keeps the violation result visible for the configured
// hold after tracking stopped, then clears it. A Stop call or context
// cancellation cuts the hold short.
func (s *Session) holdViolationBanner(ctx context.Context) {
	timer := s.clock.NewTimer(s.cfg.ViolationHold)
	defer timer.Stop()

	select {
	case <-timer.C():
	case <-ctx.Done():
	case req := <-s.stopCh:
		req.reply <- s.State()
	}

	s.mu.Lock()
	s.state.Collision = nil
	s.mu.Unlock()
}

// finalize stops the tracker, builds the claim result, and publishes the
// terminal state.
func (s *Session) finalize(reason StopReason) {
	final := s.tracker.Stop()
	result := &ClaimResult{
		SessionID:  s.ID,
		PlayerID:   s.PlayerID,
		Points:     final.Points,
		Closed:     final.Closed,
		AreaM2:     final.AreaM2,
		AreaValid:  final.AreaValid,
		StartedAt:  final.StartedAt,
		EndedAt:    s.clock.Now(),
		Bounds:     geo.Bounds(final.Points),
		Speeds:     ComputeSpeedStats(s.speedsMps),
		StopReason: reason,
	}

	if s.metrics != nil {
		s.metrics.SessionsStopped.WithLabelValues(string(reason)).Inc()
	}

	s.mu.Lock()
	s.state.Tracking = false
	s.state.StopReason = reason
	s.state.Path = final
	s.state.Speed = s.guard.Status()
	s.state.Result = result
	s.mu.Unlock()
}
