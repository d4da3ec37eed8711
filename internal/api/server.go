// Package api exposes the claim engine over HTTP: session lifecycle, live
// state, territory listing, and exploration tracking.
package api

import (
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/banshee-data/terraclaim/internal/claim"
	"github.com/banshee-data/terraclaim/internal/geo"
	"github.com/banshee-data/terraclaim/internal/httputil"
	"github.com/banshee-data/terraclaim/internal/monitoring"
	"github.com/banshee-data/terraclaim/internal/territory"
	"github.com/banshee-data/terraclaim/internal/timeutil"
	"github.com/banshee-data/terraclaim/internal/units"
)

// ANSI escape codes for request logging
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Server wires the claim manager, territory store, and exploration trackers
// into HTTP handlers.
type Server struct {
	manager *claim.Manager
	store   territory.Store
	cfg     claim.SessionConfig
	explore claim.ExploreConfig
	clock   timeutil.Clock
	metrics *monitoring.EngineCollector

	// liveInterval is how often the websocket stream polls for changes.
	liveInterval time.Duration

	mu        sync.Mutex
	explorers map[string]*claim.ExplorationTracker
}

// NewServer creates an API server. clock and metrics may be nil.
func NewServer(manager *claim.Manager, store territory.Store, cfg claim.SessionConfig, explore claim.ExploreConfig, clock timeutil.Clock, metrics *monitoring.EngineCollector) *Server {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Server{
		manager:      manager,
		store:        store,
		cfg:          cfg,
		explore:      explore,
		clock:        clock,
		metrics:      metrics,
		liveInterval: 500 * time.Millisecond,
		explorers:    make(map[string]*claim.ExplorationTracker),
	}
}

// ServeMux returns the API routes. Paths are relative so the caller can mount
// them under a prefix.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/claim/start", s.handleStart)
	mux.HandleFunc("/claim/fix", s.handleFix)
	mux.HandleFunc("/claim/state", s.handleState)
	mux.HandleFunc("/claim/stop", s.handleStop)
	mux.HandleFunc("/claim/submit", s.handleSubmit)
	mux.HandleFunc("/claim/live", s.handleLive)
	mux.HandleFunc("/territories", s.handleTerritories)
	mux.HandleFunc("/explore/fix", s.handleExploreFix)
	mux.HandleFunc("/explore/state", s.handleExploreState)
	mux.HandleFunc("/config", s.handleConfig)
	return mux
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// fixPayload is the wire form of a location fix. The timestamp defaults to
// server time and a missing speed means "sensor gave none". Clients sitting
// on GCJ-02 map tiles may send coordinates in that datum by setting datum to
// "gcj02"; the engine itself only ever sees WGS-84.
type fixPayload struct {
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	AccuracyM float64   `json:"accuracy_m"`
	SpeedMps  *float64  `json:"speed_mps"`
	Time      time.Time `json:"time"`
	Datum     string    `json:"datum,omitempty"`
}

func (p fixPayload) validate() error {
	if p.Lat < -90 || p.Lat > 90 {
		return errors.New("lat out of range")
	}
	if p.Lng < -180 || p.Lng > 180 {
		return errors.New("lng out of range")
	}
	if p.AccuracyM < 0 {
		return errors.New("accuracy_m must not be negative")
	}
	switch p.Datum {
	case "", "wgs84", "gcj02":
	default:
		return errors.New("unknown datum " + strconv.Quote(p.Datum))
	}
	return nil
}

func (p fixPayload) toFix(now time.Time) claim.LocationFix {
	pt := geo.Point{Lat: p.Lat, Lng: p.Lng}
	if p.Datum == "gcj02" {
		pt = geo.GCJ02ToWGS84(pt)
	}
	speed := -1.0
	if p.SpeedMps != nil {
		speed = *p.SpeedMps
	}
	ts := p.Time
	if ts.IsZero() {
		ts = now
	}
	return claim.LocationFix{
		Lat:       pt.Lat,
		Lng:       pt.Lng,
		AccuracyM: p.AccuracyM,
		SpeedMps:  speed,
		Time:      ts,
	}
}

type fixRequest struct {
	PlayerID string     `json:"player_id"`
	Fix      fixPayload `json:"fix"`
}

type playerRequest struct {
	PlayerID string `json:"player_id"`
}

func readFixRequest(w http.ResponseWriter, r *http.Request) (fixRequest, bool) {
	var req fixRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return req, false
	}
	if req.PlayerID == "" {
		httputil.BadRequest(w, "player_id is required")
		return req, false
	}
	if err := req.Fix.validate(); err != nil {
		httputil.BadRequest(w, err.Error())
		return req, false
	}
	return req, true
}

type startResponse struct {
	Started   bool                  `json:"started"`
	Collision claim.CollisionResult `json:"collision"`
	State     *claim.SessionState   `json:"state,omitempty"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	req, ok := readFixRequest(w, r)
	if !ok {
		return
	}

	res, state, err := s.manager.StartClaim(r.Context(), req.PlayerID, req.Fix.toFix(s.clock.Now()))
	switch {
	case errors.Is(err, claim.ErrAlreadyTracking):
		httputil.Conflict(w, err.Error())
	case err != nil:
		httputil.InternalServerError(w, err.Error())
	case state == nil:
		// Start point inside foreign ground: refused, with the violation
		// details in the body.
		httputil.WriteJSON(w, http.StatusConflict, startResponse{Started: false, Collision: res})
	default:
		httputil.WriteJSONOK(w, startResponse{Started: true, Collision: res, State: state})
	}
}

func (s *Server) handleFix(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	req, ok := readFixRequest(w, r)
	if !ok {
		return
	}

	queued, err := s.manager.PushFix(req.PlayerID, req.Fix.toFix(s.clock.Now()))
	if errors.Is(err, claim.ErrNotTracking) {
		httputil.NotFound(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, map[string]bool{"queued": queued})
}

// speedDisplay re-expresses the current speed in the caller's unit of choice.
type speedDisplay struct {
	Speed float64 `json:"speed"`
	Units string  `json:"units"`
}

func displaySpeed(kmh float64, unit string) speedDisplay {
	return speedDisplay{
		Speed: units.ConvertSpeed(units.KmhToMps(kmh), unit),
		Units: unit,
	}
}

// displayUnit reads and validates the optional ?units= parameter. Reports
// false after writing the error response if the unit is unknown.
func displayUnit(w http.ResponseWriter, r *http.Request) (string, bool) {
	unit := r.URL.Query().Get("units")
	if unit != "" && !units.IsValid(unit) {
		httputil.BadRequest(w, "unknown units "+strconv.Quote(unit))
		return "", false
	}
	return unit, true
}

type stateResponse struct {
	claim.SessionState
	SpeedDisplay speedDisplay `json:"speed_display"`
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
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

	state, err := s.manager.State(playerID)
	if errors.Is(err, claim.ErrNotTracking) {
		httputil.NotFound(w, err.Error())
		return
	}
	if datum := r.URL.Query().Get("datum"); datum != "" {
		converted, err := convertPath(state.Path.Points, datum)
		if err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		state.Path.Points = converted
	}
	if unit != "" {
		httputil.WriteJSONOK(w, stateResponse{
			SessionState: state,
			SpeedDisplay: displaySpeed(state.Speed.SpeedKmh, unit),
		})
		return
	}
	httputil.WriteJSONOK(w, state)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	var req playerRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if req.PlayerID == "" {
		httputil.BadRequest(w, "player_id is required")
		return
	}

	state, err := s.manager.StopClaim(req.PlayerID)
	if errors.Is(err, claim.ErrNotTracking) {
		httputil.NotFound(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, state)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	var req playerRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if req.PlayerID == "" {
		httputil.BadRequest(w, "player_id is required")
		return
	}

	claimed, err := s.manager.Submit(r.Context(), req.PlayerID)
	switch {
	case errors.Is(err, claim.ErrNotTracking):
		httputil.NotFound(w, err.Error())
	case errors.Is(err, claim.ErrNotClosed),
		errors.Is(err, claim.ErrDegenerateArea),
		errors.Is(err, claim.ErrSelfIntersecting):
		httputil.WriteJSONError(w, http.StatusUnprocessableEntity, err.Error())
	case err != nil:
		httputil.InternalServerError(w, err.Error())
	default:
		httputil.WriteJSONOK(w, claimed)
	}
}

func (s *Server) handleTerritories(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	territories, err := s.store.ActiveTerritories(r.Context())
	if err != nil {
		httputil.InternalServerError(w, "failed to read territories: "+err.Error())
		return
	}

	datum := r.URL.Query().Get("datum")
	if datum != "" && datum != "wgs84" {
		for i := range territories {
			converted, err := convertPath(territories[i].Boundary, datum)
			if err != nil {
				httputil.BadRequest(w, err.Error())
				return
			}
			territories[i].Boundary = converted
		}
	}
	httputil.WriteJSONOK(w, territories)
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, map[string]any{
		"accuracy_limit_m":   s.cfg.Filter.AccuracyLimitM,
		"min_fix_interval":   s.cfg.Filter.MinInterval.String(),
		"jump_limit_m":       s.cfg.Filter.JumpLimitM,
		"min_closure_points": s.cfg.Tracker.MinClosurePoints,
		"closure_distance_m": s.cfg.Tracker.ClosureDistanceM,
		"speed_mild_kmh":     s.cfg.Guard.MildKmh,
		"speed_severe_kmh":   s.cfg.Guard.SevereKmh,
		"speed_grace":        s.cfg.Guard.Grace.String(),
		"collision_interval": s.cfg.CollisionInterval.String(),
	})
}

// convertPath maps a WGS-84 path into the requested display datum.
func convertPath(points []geo.Point, datum string) ([]geo.Point, error) {
	switch datum {
	case "", "wgs84":
		return points, nil
	case "gcj02":
		return geo.WGS84ToGCJ02Path(points), nil
	default:
		return nil, errors.New("unknown datum " + strconv.Quote(datum))
	}
}
