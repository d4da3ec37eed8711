package claim

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/banshee-data/terraclaim/internal/geo"
	"github.com/banshee-data/terraclaim/internal/territory"
)

// testOrigin is an arbitrary urban coordinate; all test geometry is laid out
// in meters relative to it.
var testOrigin = geo.Point{Lat: 37.7749, Lng: -122.4194}

// offsetPoint shifts p by the given meters north and east using a local
// flat-earth approximation. Error at test scales (under a kilometer) is far
// below the assertion tolerances.
func offsetPoint(p geo.Point, northM, eastM float64) geo.Point {
	const metersPerDegLat = 111320.0
	return geo.Point{
		Lat: p.Lat + northM/metersPerDegLat,
		Lng: p.Lng + eastM/(metersPerDegLat*math.Cos(p.Lat*math.Pi/180)),
	}
}

// fixAt builds a good-accuracy fix with no sensor speed.
func fixAt(p geo.Point, at time.Time) LocationFix {
	return LocationFix{Lat: p.Lat, Lng: p.Lng, AccuracyM: 10, SpeedMps: -1, Time: at}
}

// walkingFixAt builds a fix with a plausible walking-pace sensor speed.
func walkingFixAt(p geo.Point, at time.Time) LocationFix {
	f := fixAt(p, at)
	f.SpeedMps = 1.4
	return f
}

// squareTerritory builds an active square territory of the given side length
// centered on centre.
func squareTerritory(id, owner string, centre geo.Point, sideM float64) territory.Territory {
	h := sideM / 2
	return territory.Territory{
		ID:      id,
		OwnerID: owner,
		Boundary: geo.Ring{
			offsetPoint(centre, -h, -h),
			offsetPoint(centre, -h, h),
			offsetPoint(centre, h, h),
			offsetPoint(centre, h, -h),
		},
		AreaM2:    sideM * sideM,
		Active:    true,
		ClaimedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// fakeStore is an in-memory territory.Store for session and manager tests.
type fakeStore struct {
	mu          sync.Mutex
	territories []territory.Territory
	inserted    []territory.Territory
	listErr     error
	insertErr   error
	calls       int
}

func (s *fakeStore) ActiveTerritories(ctx context.Context) ([]territory.Territory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := make([]territory.Territory, 0, len(s.territories))
	for _, t := range s.territories {
		if t.Active {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *fakeStore) Insert(ctx context.Context, t territory.Territory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return s.insertErr
	}
	s.inserted = append(s.inserted, t)
	s.territories = append(s.territories, t)
	return nil
}

func (s *fakeStore) Deactivate(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.territories {
		if s.territories[i].ID == id {
			s.territories[i].Active = false
			return nil
		}
	}
	return errors.New("territory not found")
}

func (s *fakeStore) listCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *fakeStore) setListErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listErr = err
}

func (s *fakeStore) setInsertErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertErr = err
}

// waitFor polls cond until it holds or the deadline passes. Session internals
// run on their own goroutine, so observable state changes are asynchronous.
func waitFor(t *testing.T, desc string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", desc)
}
