package geo

import "math"

// Map tiles served inside mainland China use the GCJ-02 shifted datum, while
// the location sensor and the territory store both speak WGS-84. These
// conversions exist purely for display; collision and area math always runs
// on the WGS-84 coordinates.

const (
	krasovskyA  = 6378245.0              // Krasovsky 1940 semi-major axis
	krasovskyEE = 0.00669342162296594323 // first eccentricity squared
)

// inChinaRegion reports whether the point falls inside the rough bounding box
// where the GCJ-02 offset applies. Outside it the datums are identical.
func inChinaRegion(p Point) bool {
	return p.Lng >= 72.004 && p.Lng <= 137.8347 &&
		p.Lat >= 0.8293 && p.Lat <= 55.8271
}

// WGS84ToGCJ02 converts a sensor-frame point to the display frame used by
// map tiles in the affected region. Points outside the region pass through
// unchanged.
func WGS84ToGCJ02(p Point) Point {
	if !inChinaRegion(p) {
		return p
	}
	dLat, dLng := gcjDelta(p.Lat, p.Lng)
	return Point{Lat: p.Lat + dLat, Lng: p.Lng + dLng}
}

// GCJ02ToWGS84 converts a display-frame point back to the sensor frame. Uses
// the single-step inverse approximation, accurate to a couple of meters,
// which is below the engine's filtering thresholds.
func GCJ02ToWGS84(p Point) Point {
	if !inChinaRegion(p) {
		return p
	}
	dLat, dLng := gcjDelta(p.Lat, p.Lng)
	return Point{Lat: p.Lat - dLat, Lng: p.Lng - dLng}
}

// WGS84ToGCJ02Path converts a whole path for display.
func WGS84ToGCJ02Path(points []Point) []Point {
	if points == nil {
		return nil
	}
	out := make([]Point, len(points))
	for i, p := range points {
		out[i] = WGS84ToGCJ02(p)
	}
	return out
}

func gcjDelta(lat, lng float64) (dLat, dLng float64) {
	x := lng - 105.0
	y := lat - 35.0
	dLat = transformLat(x, y)
	dLng = transformLng(x, y)

	radLat := radians(lat)
	magic := math.Sin(radLat)
	magic = 1 - krasovskyEE*magic*magic
	sqrtMagic := math.Sqrt(magic)

	dLat = (dLat * 180.0) / ((krasovskyA * (1 - krasovskyEE)) / (magic * sqrtMagic) * math.Pi)
	dLng = (dLng * 180.0) / (krasovskyA / sqrtMagic * math.Cos(radLat) * math.Pi)
	return dLat, dLng
}

func transformLat(x, y float64) float64 {
	ret := -100.0 + 2.0*x + 3.0*y + 0.2*y*y + 0.1*x*y + 0.2*math.Sqrt(math.Abs(x))
	ret += (20.0*math.Sin(6.0*x*math.Pi) + 20.0*math.Sin(2.0*x*math.Pi)) * 2.0 / 3.0
	ret += (20.0*math.Sin(y*math.Pi) + 40.0*math.Sin(y/3.0*math.Pi)) * 2.0 / 3.0
	ret += (160.0*math.Sin(y/12.0*math.Pi) + 320*math.Sin(y*math.Pi/30.0)) * 2.0 / 3.0
	return ret
}

func transformLng(x, y float64) float64 {
	ret := 300.0 + x + 2.0*y + 0.1*x*x + 0.1*x*y + 0.1*math.Sqrt(math.Abs(x))
	ret += (20.0*math.Sin(6.0*x*math.Pi) + 20.0*math.Sin(2.0*x*math.Pi)) * 2.0 / 3.0
	ret += (20.0*math.Sin(x*math.Pi) + 40.0*math.Sin(x/3.0*math.Pi)) * 2.0 / 3.0
	ret += (150.0*math.Sin(x/12.0*math.Pi) + 300.0*math.Sin(x/30.0*math.Pi)) * 2.0 / 3.0
	return ret
}
