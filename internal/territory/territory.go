// Package territory defines claimed-territory records and their sqlite-backed
// store. The claim engine reads territories as immutable snapshots for
// collision checks and hands successfully submitted claims back as new rows;
// it never mutates a territory in place.
package territory

import (
	"context"
	"time"

	"github.com/banshee-data/terraclaim/internal/geo"
)

// Territory is one claimed polygon. Boundary is a closed ring; the closing
// edge last-to-first is implied.
type Territory struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Boundary  geo.Ring  `json:"boundary"`
	AreaM2    float64   `json:"area_m2"`
	Active    bool      `json:"active"`
	ClaimedAt time.Time `json:"claimed_at"`
}

// Bounds returns the bounding box of the territory boundary.
func (t Territory) Bounds() geo.BoundingBox {
	return geo.Bounds(t.Boundary)
}

// Store is the persistence interface the engine depends on. Implementations
// must return boundary snapshots the caller is free to retain.
type Store interface {
	// ActiveTerritories returns all territories with the active flag set.
	ActiveTerritories(ctx context.Context) ([]Territory, error)

	// Insert persists a new territory record.
	Insert(ctx context.Context, t Territory) error

	// Deactivate clears the active flag on a territory.
	Deactivate(ctx context.Context, id string) error
}
