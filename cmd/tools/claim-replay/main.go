// claim-replay feeds a recorded walk through the claim engine and renders an
// HTML report of the path, filter decisions, and speed profile.
//
// By default the replay runs in-process against a throwaway in-memory store.
// With -server it drives a running terraclaim instance over HTTP instead.
//
// Usage:
//
//	claim-replay -fixes walk.json -out report.html
//	claim-replay -fixes walk.json -server http://localhost:8080
//
// The fixture file is a JSON array of location fixes:
//
//	[{"lat":37.77,"lng":-122.41,"accuracy_m":8,"speed_mps":1.3,"time":"2026-03-15T09:00:00Z"}, ...]
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"os"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/terraclaim/internal/claim"
	"github.com/banshee-data/terraclaim/internal/geo"
	"github.com/banshee-data/terraclaim/internal/httputil"
	"github.com/banshee-data/terraclaim/internal/territory"
	"github.com/banshee-data/terraclaim/internal/units"
)

var (
	fixesFile = flag.String("fixes", "", "Path to the JSON fixture file of location fixes (required)")
	outFile   = flag.String("out", "claim-report.html", "Output HTML report path")
	playerID  = flag.String("player", "replay", "Player ID to run the claim as")
	serverURL = flag.String("server", "", "Base URL of a running server; empty runs the engine in-process")
)

type fixtureFix struct {
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	AccuracyM float64   `json:"accuracy_m"`
	SpeedMps  *float64  `json:"speed_mps"`
	Time      time.Time `json:"time"`
}

func (f fixtureFix) toFix() claim.LocationFix {
	speed := -1.0
	if f.SpeedMps != nil {
		speed = *f.SpeedMps
	}
	return claim.LocationFix{Lat: f.Lat, Lng: f.Lng, AccuracyM: f.AccuracyM, SpeedMps: speed, Time: f.Time}
}

func main() {
	flag.Parse()
	if *fixesFile == "" {
		flag.Usage()
		log.Fatal("-fixes is required")
	}

	fixes, err := loadFixes(*fixesFile)
	if err != nil {
		log.Fatalf("failed to load fixes: %v", err)
	}
	if len(fixes) == 0 {
		log.Fatal("fixture file contains no fixes")
	}
	log.Printf("loaded %d fixes from %s", len(fixes), *fixesFile)

	var state claim.SessionState
	if *serverURL != "" {
		state, err = replayRemote(fixes)
	} else {
		state, err = replayLocal(fixes)
	}
	if err != nil {
		log.Fatalf("replay failed: %v", err)
	}
	if state.Result == nil {
		log.Fatal("replay produced no result")
	}

	printSummary(state)
	if err := writeReport(*outFile, fixes, state); err != nil {
		log.Fatalf("failed to write report: %v", err)
	}
	log.Printf("report written to %s", *outFile)
}

func loadFixes(path string) ([]fixtureFix, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var fixes []fixtureFix
	if err := json.Unmarshal(data, &fixes); err != nil {
		return nil, fmt.Errorf("invalid fixture json: %w", err)
	}
	return fixes, nil
}

// replayLocal drives the engine directly with no persistence.
func replayLocal(fixes []fixtureFix) (claim.SessionState, error) {
	manager := claim.NewManager(claim.DefaultSessionConfig(), emptySource{}, nil, nil)
	defer manager.Shutdown()

	_, state, err := manager.StartClaim(context.Background(), *playerID, fixes[0].toFix())
	if err != nil {
		return claim.SessionState{}, err
	}
	if state == nil {
		return claim.SessionState{}, fmt.Errorf("start refused")
	}

	for _, f := range fixes[1:] {
		if _, err := manager.PushFix(*playerID, f.toFix()); err != nil {
			return claim.SessionState{}, err
		}
	}

	// Wait for the session goroutine to drain the queue.
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		st, err := manager.State(*playerID)
		if err != nil {
			return claim.SessionState{}, err
		}
		if !st.Tracking || st.FixesAccepted+st.FixesRejected >= len(fixes) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	return manager.StopClaim(*playerID)
}

// replayRemote drives a running server through its HTTP API.
func replayRemote(fixes []fixtureFix) (claim.SessionState, error) {
	client := httputil.NewStandardClient(nil)

	post := func(path string, body any, out any) error {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		resp, err := client.Post(*serverURL+path, "application/json", bytes.NewReader(data))
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		raw, _ := io.ReadAll(resp.Body)
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("%s: status %d: %s", path, resp.StatusCode, raw)
		}
		if out != nil {
			return json.Unmarshal(raw, out)
		}
		return nil
	}

	fixBody := func(f fixtureFix) map[string]any {
		return map[string]any{"player_id": *playerID, "fix": f}
	}

	if err := post("/api/claim/start", fixBody(fixes[0]), nil); err != nil {
		return claim.SessionState{}, err
	}
	for _, f := range fixes[1:] {
		if err := post("/api/claim/fix", fixBody(f), nil); err != nil {
			return claim.SessionState{}, err
		}
	}

	var state claim.SessionState
	if err := post("/api/claim/stop", map[string]any{"player_id": *playerID}, &state); err != nil {
		return claim.SessionState{}, err
	}
	return state, nil
}

// emptySource is a territory store with no territories, so local replays are
// never blocked by collisions.
type emptySource struct{}

func (emptySource) ActiveTerritories(ctx context.Context) ([]territory.Territory, error) {
	return nil, nil
}

func (emptySource) Insert(ctx context.Context, t territory.Territory) error { return nil }

func (emptySource) Deactivate(ctx context.Context, id string) error { return nil }

func printSummary(state claim.SessionState) {
	r := state.Result
	log.Printf("session %s: %d accepted, %d rejected, stop reason %q",
		r.SessionID, state.FixesAccepted, state.FixesRejected, r.StopReason)
	log.Printf("path: %d points, closed=%v, area=%.1f m2 (valid=%v), length=%.1f m",
		len(r.Points), r.Closed, r.AreaM2, r.AreaValid, geo.PathLengthMeters(r.Points))
	log.Printf("speed: mean %.1f km/h, p95 %.1f km/h, max %.1f km/h",
		r.Speeds.MeanKmh, r.Speeds.P95Kmh, r.Speeds.MaxKmh)
}

// writeReport renders the path scatter and the speed profile into one HTML
// page.
func writeReport(path string, fixes []fixtureFix, state claim.SessionState) error {
	page := components.NewPage()
	page.AddCharts(pathChart(state), speedChart(fixes))

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return page.Render(f)
}

// pathChart plots the accepted path in local meters around the start point.
func pathChart(state claim.SessionState) components.Charter {
	points := state.Result.Points
	data := make([]opts.ScatterData, 0, len(points))
	maxAbs := 1.0
	if len(points) > 0 {
		origin := points[0]
		cosLat := math.Cos(origin.Lat * math.Pi / 180)
		for _, p := range points {
			x := (p.Lng - origin.Lng) * 111320.0 * cosLat
			y := (p.Lat - origin.Lat) * 111320.0
			maxAbs = math.Max(maxAbs, math.Max(math.Abs(x), math.Abs(y)))
			data = append(data, opts.ScatterData{Value: []interface{}{x, y}})
		}
	}
	pad := maxAbs * 1.1

	subtitle := fmt.Sprintf("points=%d closed=%v area=%.0fm2 stop=%s",
		len(points), state.Result.Closed, state.Result.AreaM2, state.Result.StopReason)

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Claim Replay", Width: "700px", Height: "700px"}),
		charts.WithTitleOpts(opts.Title{Title: "Claim Path", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: -pad, Max: pad, Name: "East (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: -pad, Max: pad, Name: "North (m)", NameLocation: "middle", NameGap: 30}),
	)
	scatter.AddSeries("path", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 6}))
	return scatter
}

// speedChart plots the sensor speed of every fix in the fixture, including
// ones the filter rejected.
func speedChart(fixes []fixtureFix) components.Charter {
	labels := make([]string, 0, len(fixes))
	data := make([]opts.LineData, 0, len(fixes))
	for _, f := range fixes {
		labels = append(labels, f.Time.Format("15:04:05"))
		speed := 0.0
		if f.SpeedMps != nil {
			speed = units.MpsToKmh(*f.SpeedMps)
		}
		data = append(data, opts.LineData{Value: speed})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "400px"}),
		charts.WithTitleOpts(opts.Title{Title: "Speed Profile", Subtitle: "sensor speed per fix, km/h"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "km/h"}),
	)
	line.SetXAxis(labels)
	line.AddSeries("speed", data)
	return line
}
