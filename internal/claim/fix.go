// Package claim implements the territory-claiming engine: GPS sample
// filtering, path accumulation and loop closure, enclosed-area computation,
// speed-based anti-cheat, and proximity/collision checks against other
// players' territories.
//
// A Session goroutine owns all mutable tracking state; fixes arrive on a
// channel and periodic collision checks run on a clock ticker drained by the
// same loop, so there is never concurrent mutation of a path.
package claim

import (
	"time"

	"github.com/banshee-data/terraclaim/internal/geo"
)

// LocationFix is one raw position reading from the location sensor. Produced
// externally; immutable once received.
type LocationFix struct {
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	AccuracyM float64   `json:"accuracy_m"`
	SpeedMps  float64   `json:"speed_mps"` // negative means the sensor had no speed estimate
	Time      time.Time `json:"time"`
}

// Point returns the fix position as a geo.Point.
func (f LocationFix) Point() geo.Point {
	return geo.Point{Lat: f.Lat, Lng: f.Lng}
}

// HasSpeed reports whether the sensor supplied a usable speed estimate.
func (f LocationFix) HasSpeed() bool {
	return f.SpeedMps >= 0
}
