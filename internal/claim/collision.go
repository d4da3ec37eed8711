package claim

import (
	"context"
	"fmt"
	"math"

	"github.com/banshee-data/terraclaim/internal/geo"
	"github.com/banshee-data/terraclaim/internal/territory"
)

// WarningLevel is the graduated proximity risk classification, totally
// ordered by increasing severity.
type WarningLevel int

const (
	LevelSafe WarningLevel = iota
	LevelCaution
	LevelWarning
	LevelDanger
	LevelViolation
)

var warningLevelNames = [...]string{"safe", "caution", "warning", "danger", "violation"}

func (l WarningLevel) String() string {
	if l < LevelSafe || l > LevelViolation {
		return fmt.Sprintf("WarningLevel(%d)", int(l))
	}
	return warningLevelNames[l]
}

// MarshalJSON encodes the level as its lowercase name.
func (l WarningLevel) MarshalJSON() ([]byte, error) {
	return []byte(`"` + l.String() + `"`), nil
}

// UnmarshalJSON decodes a lowercase level name.
func (l *WarningLevel) UnmarshalJSON(data []byte) error {
	s := string(data)
	for i, name := range warningLevelNames {
		if s == `"`+name+`"` {
			*l = WarningLevel(i)
			return nil
		}
	}
	return fmt.Errorf("unknown warning level %s", s)
}

// CollisionResult is the outcome of one start-point or path proximity check.
type CollisionResult struct {
	Level        WarningLevel `json:"level"`
	Message      string       `json:"message,omitempty"`
	MinDistanceM *float64     `json:"min_distance_m,omitempty"`
	TerritoryID  string       `json:"territory_id,omitempty"` // nearest or violated territory
}

// CollisionConfig holds the descending proximity thresholds in meters.
type CollisionConfig struct {
	CautionM float64 // below this: Caution
	WarningM float64 // below this: Warning
	DangerM  float64 // below this: Danger
}

// DefaultCollisionConfig returns the production proximity thresholds.
func DefaultCollisionConfig() CollisionConfig {
	return CollisionConfig{
		CautionM: 100.0,
		WarningM: 50.0,
		DangerM:  25.0,
	}
}

// TerritorySource supplies the current active-territory snapshot for checks.
// *territory.DB satisfies it.
type TerritorySource interface {
	ActiveTerritories(ctx context.Context) ([]territory.Territory, error)
}

// CollisionDetector tests candidate start points and growing paths against
// the set of territories owned by other players.
type CollisionDetector struct {
	cfg CollisionConfig
}

// NewCollisionDetector creates a detector with the given thresholds.
func NewCollisionDetector(cfg CollisionConfig) *CollisionDetector {
	return &CollisionDetector{cfg: cfg}
}

// LevelForDistance maps a distance to the nearest foreign boundary onto a
// warning level. Pure and monotonic: a smaller distance never yields a less
// severe level.
func (d *CollisionDetector) LevelForDistance(distanceM float64) WarningLevel {
	switch {
	case distanceM < d.cfg.DangerM:
		return LevelDanger
	case distanceM < d.cfg.WarningM:
		return LevelWarning
	case distanceM <= d.cfg.CautionM:
		return LevelCaution
	default:
		return LevelSafe
	}
}

// CheckStartPoint runs the point-in-polygon test of a candidate start
// coordinate against every foreign territory. Containment is a Violation and
// tracking must not start.
func (d *CollisionDetector) CheckStartPoint(start geo.Point, ownerID string, territories []territory.Territory) CollisionResult {
	for _, t := range foreign(ownerID, territories) {
		if t.Boundary.ContainsPoint(start) {
			return CollisionResult{
				Level:       LevelViolation,
				Message:     "start point is inside another player's territory",
				TerritoryID: t.ID,
			}
		}
	}
	return CollisionResult{Level: LevelSafe}
}

// CheckPath computes the minimum distance from the path to every foreign
// boundary and grades it. Any path point inside a foreign territory, or any
// path segment crossing a foreign boundary, is a Violation.
func (d *CollisionDetector) CheckPath(points []geo.Point, ownerID string, territories []territory.Territory) CollisionResult {
	if len(points) == 0 {
		return CollisionResult{Level: LevelSafe}
	}

	minDist := math.Inf(1)
	nearestID := ""
	for _, t := range foreign(ownerID, territories) {
		for _, p := range points {
			if t.Boundary.ContainsPoint(p) {
				return CollisionResult{
					Level:       LevelViolation,
					Message:     "path entered another player's territory",
					TerritoryID: t.ID,
				}
			}
		}
		for i := 1; i < len(points); i++ {
			if geo.SegmentCrossesRing(points[i-1], points[i], t.Boundary) {
				return CollisionResult{
					Level:       LevelViolation,
					Message:     "path crossed another player's boundary",
					TerritoryID: t.ID,
				}
			}
		}
		for _, p := range points {
			if dist := t.Boundary.DistanceToPoint(p); dist < minDist {
				minDist = dist
				nearestID = t.ID
			}
		}
	}

	if math.IsInf(minDist, 1) {
		// No foreign territories at all.
		return CollisionResult{Level: LevelSafe}
	}

	level := d.LevelForDistance(minDist)
	res := CollisionResult{
		Level:        level,
		MinDistanceM: &minDist,
		TerritoryID:  nearestID,
	}
	switch level {
	case LevelCaution:
		res.Message = fmt.Sprintf("another territory is %.0f m away", minDist)
	case LevelWarning:
		res.Message = fmt.Sprintf("approaching another territory, %.0f m away", minDist)
	case LevelDanger:
		res.Message = fmt.Sprintf("very close to another territory, %.0f m away", minDist)
	}
	return res
}

// foreign filters to active territories not owned by ownerID.
func foreign(ownerID string, territories []territory.Territory) []territory.Territory {
	out := make([]territory.Territory, 0, len(territories))
	for _, t := range territories {
		if t.Active && t.OwnerID != ownerID {
			out = append(out, t)
		}
	}
	return out
}
