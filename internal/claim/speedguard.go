package claim

import (
	"fmt"
	"time"

	"github.com/banshee-data/terraclaim/internal/timeutil"
	"github.com/banshee-data/terraclaim/internal/units"
)

// SpeedState is the anti-cheat state for a tracked player's movement.
type SpeedState string

const (
	SpeedClear   SpeedState = "clear"   // moving at a plausible walking pace
	SpeedWarning SpeedState = "warning" // over the soft threshold, warning window open
	SpeedStopped SpeedState = "stopped" // violation, tracking must terminate
)

// GuardMode selects which escalation ladder applies.
type GuardMode int

const (
	// ModeClaim is used while drawing a territory path: a warning window
	// opens between the mild and severe thresholds, and anything over the
	// severe threshold stops tracking immediately. A window left open for
	// the full grace period stops tracking too.
	ModeClaim GuardMode = iota

	// ModeExplore is the lighter ladder for exploration movement tracking:
	// only the severe threshold opens a warning window, and the window must
	// stay open for the grace period before tracking is stopped.
	ModeExplore
)

// SpeedStatus is the current guard output, re-derived on every accepted fix.
type SpeedStatus struct {
	State          SpeedState `json:"state"`
	SpeedKmh       float64    `json:"speed_kmh"`
	Message        string     `json:"message,omitempty"`
	WindowOpenedAt time.Time  `json:"window_opened_at,omitzero"`
}

// SpeedGuardConfig holds the guard thresholds.
type SpeedGuardConfig struct {
	MildKmh   float64       // warn above this (claim mode only)
	SevereKmh float64       // hard stop (claim) or warning window (explore) above this
	Grace     time.Duration // stop if a warning window stays open this long
	Mode      GuardMode
}

// DefaultSpeedGuardConfig returns the claim-mode thresholds.
func DefaultSpeedGuardConfig() SpeedGuardConfig {
	return SpeedGuardConfig{
		MildKmh:   15.0,
		SevereKmh: 30.0,
		Grace:     10 * time.Second,
		Mode:      ModeClaim,
	}
}

// SpeedGuard inspects instantaneous speed and escalates:
// Clear → Warning → {Clear (speed drops) | Stopped (timeout or hard threshold)}.
//
// The guard is not safe for concurrent use; the owning session serializes all
// calls.
type SpeedGuard struct {
	cfg   SpeedGuardConfig
	clock timeutil.Clock

	state       SpeedState
	windowStart time.Time
	lastKmh     float64
}

// NewSpeedGuard creates a guard in the Clear state.
func NewSpeedGuard(cfg SpeedGuardConfig, clock timeutil.Clock) *SpeedGuard {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &SpeedGuard{cfg: cfg, clock: clock, state: SpeedClear}
}

// Evaluate feeds one instantaneous speed (m/s) through the state machine and
// returns the resulting status. Once stopped, the guard stays stopped.
func (g *SpeedGuard) Evaluate(speedMps float64) SpeedStatus {
	kmh := units.MpsToKmh(speedMps)
	g.lastKmh = kmh

	if g.state == SpeedStopped {
		return g.status()
	}

	warnAbove := g.cfg.MildKmh
	if g.cfg.Mode == ModeExplore {
		warnAbove = g.cfg.SevereKmh
	}
	switch {
	case kmh <= warnAbove:
		g.clearWindow()
	case g.cfg.Mode == ModeClaim && kmh > g.cfg.SevereKmh:
		// Hard fail: past the severe threshold there is no grace.
		g.state = SpeedStopped
	default:
		g.openWindow()
		// Fix-driven expiry: the deferred timer covers the case where no
		// further fixes arrive.
		if g.clock.Since(g.windowStart) >= g.cfg.Grace {
			g.state = SpeedStopped
		}
	}
	return g.status()
}

// ExpireGrace forces the Warning → Stopped transition when the deferred grace
// timer fires with the window still open. A no-op in any other state.
func (g *SpeedGuard) ExpireGrace() SpeedStatus {
	if g.state == SpeedWarning {
		g.state = SpeedStopped
	}
	return g.status()
}

// State returns the current guard state.
func (g *SpeedGuard) State() SpeedState { return g.state }

// Status returns the current status without feeding a new speed.
func (g *SpeedGuard) Status() SpeedStatus { return g.status() }

func (g *SpeedGuard) openWindow() {
	if g.state != SpeedWarning {
		g.state = SpeedWarning
		g.windowStart = g.clock.Now()
	}
}

func (g *SpeedGuard) clearWindow() {
	g.state = SpeedClear
	g.windowStart = time.Time{}
}

func (g *SpeedGuard) status() SpeedStatus {
	s := SpeedStatus{
		State:          g.state,
		SpeedKmh:       g.lastKmh,
		WindowOpenedAt: g.windowStart,
	}
	switch g.state {
	case SpeedWarning:
		s.Message = fmt.Sprintf("moving too fast (%.1f km/h), slow down to keep tracking", g.lastKmh)
	case SpeedStopped:
		s.Message = fmt.Sprintf("speed violation at %.1f km/h, tracking stopped", g.lastKmh)
	}
	return s
}
