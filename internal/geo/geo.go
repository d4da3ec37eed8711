// Package geo provides the geographic primitives used by the claim engine:
// great-circle distance, local planar projection, polygon containment and
// minimum-distance queries, and enclosed-area computation.
//
// All math operates on WGS-84 latitude/longitude in degrees. Positions are
// never stored in a projected frame; projection happens transiently inside
// area and distance computations.
package geo

import "math"

// EarthRadiusMeters is the mean Earth radius used for all spherical math.
const EarthRadiusMeters = 6371000.0

// Point is a geographic coordinate in degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func radians(deg float64) float64 { return deg * math.Pi / 180.0 }

// DistanceMeters returns the great-circle (haversine) distance between two
// points in meters.
func DistanceMeters(a, b Point) float64 {
	lat1 := radians(a.Lat)
	lat2 := radians(b.Lat)
	dLat := radians(b.Lat - a.Lat)
	dLng := radians(b.Lng - a.Lng)

	s := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(s), math.Sqrt(1-s))
	return EarthRadiusMeters * c
}

// PathLengthMeters returns the cumulative great-circle length of an ordered
// point sequence. Fewer than two points is zero.
func PathLengthMeters(points []Point) float64 {
	var total float64
	for i := 1; i < len(points); i++ {
		total += DistanceMeters(points[i-1], points[i])
	}
	return total
}

// planarPoint is a point projected to a local tangent plane, in meters.
type planarPoint struct {
	x float64
	y float64
}

// projectPlanar maps points to a local equirectangular plane centred on the
// mean latitude of the input. Accurate to well under 1% for the path sizes the
// engine sees (a few hundred meters across).
func projectPlanar(points []Point) []planarPoint {
	if len(points) == 0 {
		return nil
	}
	var meanLat float64
	for _, p := range points {
		meanLat += p.Lat
	}
	meanLat /= float64(len(points))
	cosLat := math.Cos(radians(meanLat))

	metersPerDegLat := radians(1) * EarthRadiusMeters
	metersPerDegLng := metersPerDegLat * cosLat

	origin := points[0]
	out := make([]planarPoint, len(points))
	for i, p := range points {
		out[i] = planarPoint{
			x: (p.Lng - origin.Lng) * metersPerDegLng,
			y: (p.Lat - origin.Lat) * metersPerDegLat,
		}
	}
	return out
}

// BoundingBox is an axis-aligned lat/lng extent.
type BoundingBox struct {
	MinLat float64 `json:"min_lat"`
	MinLng float64 `json:"min_lng"`
	MaxLat float64 `json:"max_lat"`
	MaxLng float64 `json:"max_lng"`
}

// Bounds returns the bounding box of a point set. An empty input returns the
// zero box.
func Bounds(points []Point) BoundingBox {
	if len(points) == 0 {
		return BoundingBox{}
	}
	b := BoundingBox{
		MinLat: points[0].Lat, MaxLat: points[0].Lat,
		MinLng: points[0].Lng, MaxLng: points[0].Lng,
	}
	for _, p := range points[1:] {
		b.MinLat = math.Min(b.MinLat, p.Lat)
		b.MaxLat = math.Max(b.MaxLat, p.Lat)
		b.MinLng = math.Min(b.MinLng, p.Lng)
		b.MaxLng = math.Max(b.MaxLng, p.Lng)
	}
	return b
}

// Contains reports whether the box contains the point (inclusive edges).
func (b BoundingBox) Contains(p Point) bool {
	return p.Lat >= b.MinLat && p.Lat <= b.MaxLat &&
		p.Lng >= b.MinLng && p.Lng <= b.MaxLng
}
