package claim

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/banshee-data/terraclaim/internal/geo"
	"github.com/banshee-data/terraclaim/internal/monitoring"
	"github.com/banshee-data/terraclaim/internal/territory"
	"github.com/banshee-data/terraclaim/internal/timeutil"
)

var (
	// ErrAlreadyTracking is returned when a player starts a claim while one
	// is still active.
	ErrAlreadyTracking = errors.New("a claim session is already active for this player")

	// ErrNotTracking is returned when no session exists for the player.
	ErrNotTracking = errors.New("no claim session for this player")

	// ErrNotClosed is returned when submitting a path that never looped back
	// to its start.
	ErrNotClosed = errors.New("path is not closed")

	// ErrDegenerateArea is returned when submitting a closed path whose area
	// could not be computed.
	ErrDegenerateArea = errors.New("path has no valid enclosed area")

	// ErrSelfIntersecting is returned when the submitted boundary crosses
	// itself.
	ErrSelfIntersecting = errors.New("path boundary self-intersects")
)

type sessionHandle struct {
	session *Session
	cancel  context.CancelFunc
}

// Manager runs at most one claim session per player, gates session start on
// the start-point collision check, and hands successful claims to the
// territory store.
type Manager struct {
	cfg      SessionConfig
	store    territory.Store
	clock    timeutil.Clock
	metrics  *monitoring.EngineCollector
	detector *CollisionDetector

	mu       sync.Mutex
	sessions map[string]*sessionHandle
}

// NewManager creates a manager. clock and metrics may be nil.
func NewManager(cfg SessionConfig, store territory.Store, clock timeutil.Clock, metrics *monitoring.EngineCollector) *Manager {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Manager{
		cfg:      cfg,
		store:    store,
		clock:    clock,
		metrics:  metrics,
		detector: NewCollisionDetector(cfg.Collision),
		sessions: make(map[string]*sessionHandle),
	}
}

// StartClaim refreshes the territory snapshot, runs the start-point check,
// and on a Safe result starts a new session seeded with the start fix. A
// Violation result blocks tracking and returns a nil state. A snapshot read
// failure blocks the start too: "check skipped" is not "guaranteed safe".
func (m *Manager) StartClaim(ctx context.Context, playerID string, start LocationFix) (CollisionResult, *SessionState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if h, ok := m.sessions[playerID]; ok {
		select {
		case <-h.session.Done():
			// previous session finished; replace it
		default:
			return CollisionResult{}, nil, ErrAlreadyTracking
		}
	}

	territories, err := m.store.ActiveTerritories(ctx)
	if err != nil {
		return CollisionResult{}, nil, fmt.Errorf("cannot verify start point: %w", err)
	}

	result := m.detector.CheckStartPoint(start.Point(), playerID, territories)
	if result.Level == LevelViolation {
		return result, nil, nil
	}

	session := NewSession(playerID, start, m.cfg, m.store, m.clock, m.metrics)
	// The session outlives the HTTP request that started it; Shutdown
	// cancels all of them.
	runCtx, cancel := context.WithCancel(context.Background())
	m.sessions[playerID] = &sessionHandle{session: session, cancel: cancel}
	go session.Run(runCtx)

	state := session.State()
	return result, &state, nil
}

// PushFix forwards a fix to the player's active session. Reports whether the
// fix was queued.
func (m *Manager) PushFix(playerID string, fix LocationFix) (bool, error) {
	h, err := m.handle(playerID)
	if err != nil {
		return false, err
	}
	return h.session.Offer(fix), nil
}

// State returns the current snapshot for the player's session (active or
// recently stopped).
func (m *Manager) State(playerID string) (SessionState, error) {
	h, err := m.handle(playerID)
	if err != nil {
		return SessionState{}, err
	}
	return h.session.State(), nil
}

// StopClaim manually stops the player's session and returns the finalized
// state. The finalized path stays available for Submit until a new session
// replaces it.
func (m *Manager) StopClaim(playerID string) (SessionState, error) {
	h, err := m.handle(playerID)
	if err != nil {
		return SessionState{}, err
	}
	state := h.session.Stop(StopManual)
	h.cancel()
	return state, nil
}

// Submit validates the player's path and persists it as a new territory.
// Validation runs against the live snapshot before the session is stopped, so
// a premature submit on an open path is rejected without ending the walk. The
// local path is discarded only on success; any failure after the stop leaves
// it in place so the caller can retry.
func (m *Manager) Submit(ctx context.Context, playerID string) (territory.Territory, error) {
	h, err := m.handle(playerID)
	if err != nil {
		return territory.Territory{}, err
	}

	if err := validateBoundary(h.session.State().Path); err != nil {
		return territory.Territory{}, err
	}

	state := h.session.Stop(StopSubmitted)
	if state.Result == nil {
		return territory.Territory{}, ErrNotTracking
	}
	result := state.Result

	// Fixes may have landed between the snapshot and the stop; the finalized
	// path is the one that gets persisted, so check it again.
	if err := validateBoundary(state.Path); err != nil {
		return territory.Territory{}, err
	}
	ring := geo.Ring(result.Points)

	t := territory.Territory{
		ID:        uuid.NewString(),
		OwnerID:   playerID,
		Boundary:  ring,
		AreaM2:    result.AreaM2,
		Active:    true,
		ClaimedAt: result.EndedAt,
	}
	if err := m.store.Insert(ctx, t); err != nil {
		return territory.Territory{}, fmt.Errorf("submission failed, claim retained for retry: %w", err)
	}

	if m.metrics != nil {
		m.metrics.ClaimsSubmitted.Inc()
	}

	m.mu.Lock()
	if cur, ok := m.sessions[playerID]; ok && cur.session == h.session {
		cur.cancel()
		delete(m.sessions, playerID)
	}
	m.mu.Unlock()

	return t, nil
}

// validateBoundary checks that a path snapshot is fit to become a territory
// boundary.
func validateBoundary(snap PathSnapshot) error {
	if !snap.Closed {
		return ErrNotClosed
	}
	if !snap.AreaValid {
		return ErrDegenerateArea
	}
	if geo.Ring(snap.Points).SelfIntersects() {
		return ErrSelfIntersecting
	}
	return nil
}

// Shutdown cancels every active session.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, h := range m.sessions {
		h.cancel()
		delete(m.sessions, id)
	}
}

func (m *Manager) handle(playerID string) (*sessionHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.sessions[playerID]
	if !ok {
		return nil, ErrNotTracking
	}
	return h, nil
}
