package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/banshee-data/terraclaim/internal/claim"
	"github.com/banshee-data/terraclaim/internal/httputil"
	"github.com/banshee-data/terraclaim/internal/monitoring"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The API is same-host or app-embedded; cross-origin policy is handled
	// at the reverse proxy.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// liveKey captures the parts of the session state whose change should push a
// new frame. The path version covers appends and closure in one counter.
type liveKey struct {
	version   uint64
	tracking  bool
	collision claim.WarningLevel
	hasBanner bool
	speed     claim.SpeedState
	rejected  int
}

func keyFor(state claim.SessionState) liveKey {
	k := liveKey{
		version:  state.Path.Version,
		tracking: state.Tracking,
		speed:    state.Speed.State,
		rejected: state.FixesRejected,
	}
	if state.Collision != nil {
		k.hasBanner = true
		k.collision = state.Collision.Level
	}
	return k
}

// handleLive streams session state frames over a websocket. A frame is pushed
// only when the state changed since the last one, so an idle session costs no
// bandwidth. The final frame after the session stops carries the result; the
// connection closes after it.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	playerID := r.URL.Query().Get("player_id")
	if playerID == "" {
		httputil.BadRequest(w, "player_id is required")
		return
	}
	if _, err := s.manager.State(playerID); errors.Is(err, claim.ErrNotTracking) {
		httputil.NotFound(w, err.Error())
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		monitoring.Logf("live: upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	// Reader goroutine: we never expect client frames, but reading is what
	// surfaces the close handshake.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.liveInterval)
	defer ticker.Stop()

	var last liveKey
	first := true
	for {
		select {
		case <-closed:
			return
		case <-ticker.C:
		}

		state, err := s.manager.State(playerID)
		if err != nil {
			// Session consumed by a submit, or the manager shut down.
			writeClose(conn, websocket.CloseNormalClosure, "session gone")
			return
		}
		key := keyFor(state)
		if !first && key == last {
			continue
		}
		first = false
		last = key

		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteJSON(state); err != nil {
			return
		}
		if !state.Tracking && state.Collision == nil {
			// Terminal frame delivered and any violation banner has cleared.
			writeClose(conn, websocket.CloseNormalClosure, "session stopped")
			return
		}
	}
}

func writeClose(conn *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(time.Second)
	conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
}
