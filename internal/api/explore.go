package api

import (
	"net/http"

	"github.com/banshee-data/terraclaim/internal/claim"
	"github.com/banshee-data/terraclaim/internal/httputil"
)

// explorer returns the player's exploration tracker. A first fix, or a fix
// after a stop, starts a fresh tracker.
func (s *Server) explorer(playerID string) *claim.ExplorationTracker {
	s.mu.Lock()
	defer s.mu.Unlock()
	tr, ok := s.explorers[playerID]
	if !ok || !tr.State().Tracking {
		tr = claim.NewExplorationTracker(playerID, s.explore, s.clock, s.metrics)
		s.explorers[playerID] = tr
	}
	return tr
}

type exploreResponse struct {
	Decision claim.Decision     `json:"decision"`
	State    claim.ExploreState `json:"state"`
}

type exploreStateResponse struct {
	claim.ExploreState
	SpeedDisplay speedDisplay `json:"speed_display"`
}

func (s *Server) handleExploreFix(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	req, ok := readFixRequest(w, r)
	if !ok {
		return
	}

	decision, state := s.explorer(req.PlayerID).Push(req.Fix.toFix(s.clock.Now()))
	httputil.WriteJSONOK(w, exploreResponse{Decision: decision, State: state})
}

func (s *Server) handleExploreState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	playerID := r.URL.Query().Get("player_id")
	if playerID == "" {
		httputil.BadRequest(w, "player_id is required")
		return
	}
	unit, ok := displayUnit(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	tr, found := s.explorers[playerID]
	s.mu.Unlock()
	if !found {
		httputil.NotFound(w, "no exploration tracking for this player")
		return
	}
	state := tr.State()
	if unit != "" {
		httputil.WriteJSONOK(w, exploreStateResponse{
			ExploreState: state,
			SpeedDisplay: displaySpeed(state.Speed.SpeedKmh, unit),
		})
		return
	}
	httputil.WriteJSONOK(w, state)
}
