package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/banshee-data/terraclaim/internal/claim"
)

func dialLive(t *testing.T, ts *httptest.Server, player string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/claim/live?player_id=" + player
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v (resp %v)", url, err, resp)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) claim.SessionState {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var state claim.SessionState
	if err := conn.ReadJSON(&state); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return state
}

func TestLiveStreamsStateChanges(t *testing.T) {
	srv := newTestServer(&memStore{})
	srv.liveInterval = 5 * time.Millisecond
	ts := httptest.NewServer(srv.ServeMux())
	defer ts.Close()

	mux := srv.ServeMux()
	doJSON(t, mux, http.MethodPost, "/claim/start", fixBody("p1", testOrigin, testStart, 1.4))

	conn := dialLive(t, ts, "p1")

	first := readFrame(t, conn)
	if !first.Tracking || first.Path.Version == 0 {
		t.Fatalf("first frame = %+v", first)
	}

	// A new accepted fix bumps the path version and triggers a frame.
	doJSON(t, mux, http.MethodPost, "/claim/fix",
		fixBody("p1", offsetPoint(testOrigin, 20, 0), testStart.Add(10*time.Second), 1.4))

	next := readFrame(t, conn)
	if next.Path.Version <= first.Path.Version {
		t.Errorf("version did not advance: %d -> %d", first.Path.Version, next.Path.Version)
	}

	// Stopping produces a terminal frame and a clean close.
	doJSON(t, mux, http.MethodPost, "/claim/stop", map[string]any{"player_id": "p1"})
	final := readFrame(t, conn)
	if final.Tracking {
		t.Error("terminal frame still tracking")
	}
	if final.Result == nil {
		t.Error("terminal frame has no result")
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("connection stayed open after the terminal frame")
	}
}

func TestLiveRequiresActiveSession(t *testing.T) {
	srv := newTestServer(&memStore{})
	ts := httptest.NewServer(srv.ServeMux())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/claim/live?player_id=ghost")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/claim/live")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}
