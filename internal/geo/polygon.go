package geo

import "math"

// Ring is an ordered closed polygon boundary. The first point is not required
// to be repeated at the end; the closing edge last→first is implied.
type Ring []Point

// ContainsPoint reports whether p lies strictly inside the ring, using the
// crossing-number (ray casting) test on raw lat/lng. At the scales territories
// occupy the equirectangular distortion does not change crossing parity.
func (r Ring) ContainsPoint(p Point) bool {
	if len(r) < 3 {
		return false
	}
	inside := false
	j := len(r) - 1
	for i := 0; i < len(r); i++ {
		vi := r[i]
		vj := r[j]
		if (vi.Lng > p.Lng) != (vj.Lng > p.Lng) {
			crossLat := (vj.Lat-vi.Lat)*(p.Lng-vi.Lng)/(vj.Lng-vi.Lng) + vi.Lat
			if p.Lat < crossLat {
				inside = !inside
			}
		}
		j = i
	}
	return inside
}

// DistanceToPoint returns the minimum distance in meters from p to the ring
// boundary. Inside or outside makes no difference; this is distance to the
// boundary itself. Returns +Inf for rings with fewer than 2 points.
func (r Ring) DistanceToPoint(p Point) float64 {
	if len(r) < 2 {
		return math.Inf(1)
	}
	// Project the ring and the query point into one shared plane so segment
	// distances are consistent.
	all := make([]Point, 0, len(r)+1)
	all = append(all, r...)
	all = append(all, p)
	plane := projectPlanar(all)
	rp := plane[:len(r)]
	pp := plane[len(r)]

	best := math.Inf(1)
	j := len(rp) - 1
	for i := 0; i < len(rp); i++ {
		if d := pointToSegment(pp, rp[j], rp[i]); d < best {
			best = d
		}
		j = i
	}
	return best
}

// pointToSegment returns the planar distance from p to segment ab in meters.
func pointToSegment(p, a, b planarPoint) float64 {
	abx := b.x - a.x
	aby := b.y - a.y
	apx := p.x - a.x
	apy := p.y - a.y

	lenSq := abx*abx + aby*aby
	if lenSq == 0 {
		return math.Hypot(apx, apy)
	}
	t := (apx*abx + apy*aby) / lenSq
	t = math.Max(0, math.Min(1, t))
	dx := p.x - (a.x + t*abx)
	dy := p.y - (a.y + t*aby)
	return math.Hypot(dx, dy)
}

// Area returns the enclosed area of the ring in square meters via the
// shoelace formula on a local equirectangular projection. Rings with fewer
// than 3 points have zero area.
func (r Ring) Area() float64 {
	if len(r) < 3 {
		return 0
	}
	plane := projectPlanar(r)
	var sum float64
	j := len(plane) - 1
	for i := 0; i < len(plane); i++ {
		sum += plane[j].x*plane[i].y - plane[i].x*plane[j].y
		j = i
	}
	return math.Abs(sum) / 2
}

// SelfIntersects reports whether any two non-adjacent edges of the ring cross.
// O(n²) segment pair test; ring sizes here are a few hundred points at most.
func (r Ring) SelfIntersects() bool {
	n := len(r)
	if n < 4 {
		return false
	}
	plane := projectPlanar(r)
	seg := func(i int) (planarPoint, planarPoint) {
		return plane[i], plane[(i+1)%n]
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			// Skip adjacent edges (shared endpoint), including the
			// first/last wrap pair.
			if j == i || j == (i+1)%n || (j+1)%n == i {
				continue
			}
			a1, a2 := seg(i)
			b1, b2 := seg(j)
			if segmentsCross(a1, a2, b1, b2) {
				return true
			}
		}
	}
	return false
}

// SegmentCrossesRing reports whether the segment ab crosses any edge of the
// ring. Touching a vertex without crossing does not count.
func SegmentCrossesRing(a, b Point, r Ring) bool {
	if len(r) < 2 {
		return false
	}
	all := make([]Point, 0, len(r)+2)
	all = append(all, r...)
	all = append(all, a, b)
	plane := projectPlanar(all)
	rp := plane[:len(r)]
	pa := plane[len(r)]
	pb := plane[len(r)+1]

	j := len(rp) - 1
	for i := 0; i < len(rp); i++ {
		if segmentsCross(pa, pb, rp[j], rp[i]) {
			return true
		}
		j = i
	}
	return false
}

func segmentsCross(a1, a2, b1, b2 planarPoint) bool {
	d1 := cross(b1, b2, a1)
	d2 := cross(b1, b2, a2)
	d3 := cross(a1, a2, b1)
	d4 := cross(a1, a2, b2)
	return ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0))
}

func cross(o, a, b planarPoint) float64 {
	return (a.x-o.x)*(b.y-o.y) - (a.y-o.y)*(b.x-o.x)
}
