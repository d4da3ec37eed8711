package claim

import (
	"sync"
	"time"

	"github.com/banshee-data/terraclaim/internal/geo"
)

// TrackerConfig holds the closure thresholds for a claim path.
type TrackerConfig struct {
	MinClosurePoints int     // no closure check before this many points
	ClosureDistanceM float64 // first-to-last distance at or under this closes the loop
}

// DefaultTrackerConfig returns the production closure thresholds.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		MinClosurePoints: 10,
		ClosureDistanceM: 30.0,
	}
}

// PathSnapshot is an immutable view of the current path. The version counter
// strictly increases on every observable change (append and closure), so
// consumers can cheaply detect "nothing changed since last check".
type PathSnapshot struct {
	Points    []geo.Point `json:"points"`
	Version   uint64      `json:"version"`
	Closed    bool        `json:"closed"`
	AreaM2    float64     `json:"area_m2"`
	AreaValid bool        `json:"area_valid"`
	StartedAt time.Time   `json:"started_at,omitzero"`
	UpdatedAt time.Time   `json:"updated_at,omitzero"`
}

// PathTracker owns the ordered sequence of accepted points for the active
// claim attempt. Points are only appended (never removed except by full
// reset), and append order is temporal: callers must only pass
// SampleFilter-accepted fixes.
type PathTracker struct {
	cfg TrackerConfig

	mu        sync.RWMutex
	points    []geo.Point
	version   uint64
	closed    bool
	areaM2    float64
	areaValid bool
	startedAt time.Time
	updatedAt time.Time
	active    bool
}

// NewPathTracker creates an empty, inactive tracker.
func NewPathTracker(cfg TrackerConfig) *PathTracker {
	return &PathTracker{cfg: cfg}
}

// Start resets to an empty, open path and records the start time.
func (t *PathTracker) Start(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.points = nil
	t.version = 0
	t.closed = false
	t.areaM2 = 0
	t.areaValid = false
	t.startedAt = now
	t.updatedAt = now
	t.active = true
}

// Append adds an accepted point, bumps the version, and runs the closure
// check. Reports whether this append closed the loop. Appending to an already
// closed path extends the ring and recomputes its area; closure itself is
// idempotent, once closed the path stays closed for the session.
func (t *PathTracker) Append(p geo.Point, now time.Time) (closedNow bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.active {
		return false
	}

	t.points = append(t.points, p)
	t.version++
	t.updatedAt = now

	if t.closed {
		// Path extended after closure: area is stale, recompute.
		t.recomputeArea()
		return false
	}

	// Closure check: cheap early exit below the minimum point count.
	if len(t.points) < t.cfg.MinClosurePoints {
		return false
	}
	if geo.DistanceMeters(t.points[0], p) <= t.cfg.ClosureDistanceM {
		t.closed = true
		t.version++ // extra bump so observers can react to closure exactly once
		t.recomputeArea()
		return true
	}
	return false
}

// recomputeArea computes the enclosed area. Degenerate geometry yields zero
// with the valid flag unset rather than an error; the caller must reject such
// a path at submission time. Caller holds the lock.
func (t *PathTracker) recomputeArea() {
	if !t.closed || len(t.points) < 3 {
		t.areaM2 = 0
		t.areaValid = false
		return
	}
	t.areaM2 = geo.Ring(t.points).Area()
	t.areaValid = t.areaM2 > 0
}

// Snapshot returns an immutable copy of the current path state.
func (t *PathTracker) Snapshot() PathSnapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snapshotLocked()
}

func (t *PathTracker) snapshotLocked() PathSnapshot {
	points := make([]geo.Point, len(t.points))
	copy(points, t.points)
	return PathSnapshot{
		Points:    points,
		Version:   t.version,
		Closed:    t.closed,
		AreaM2:    t.areaM2,
		AreaValid: t.areaValid,
		StartedAt: t.startedAt,
		UpdatedAt: t.updatedAt,
	}
}

// Stop finalizes the path, returning the last snapshot, then clears all
// internal state.
func (t *PathTracker) Stop() PathSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	final := t.snapshotLocked()
	t.points = nil
	t.version = 0
	t.closed = false
	t.areaM2 = 0
	t.areaValid = false
	t.startedAt = time.Time{}
	t.updatedAt = time.Time{}
	t.active = false
	return final
}

// Len returns the current point count.
func (t *PathTracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.points)
}

// Closed reports whether the path has looped back to its start.
func (t *PathTracker) Closed() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.closed
}
