package geometry

import "math"

// Distance is the euclidean distance between two points, ignoring pressure.
func Distance(a, b Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// DistanceToSegment is the distance from p to the closest point of the
// segment a-b. A zero-length segment degrades to a point distance.
func DistanceToSegment(p, a, b Point) float64 {
	cx, cy := b.X-a.X, b.Y-a.Y
	lenSq := cx*cx + cy*cy

	t := -1.0
	if lenSq != 0 {
		t = ((p.X-a.X)*cx + (p.Y-a.Y)*cy) / lenSq
	}

	var nx, ny float64
	switch {
	case t < 0:
		nx, ny = a.X, a.Y
	case t > 1:
		nx, ny = b.X, b.Y
	default:
		nx, ny = a.X+t*cx, a.Y+t*cy
	}
	return math.Hypot(p.X-nx, p.Y-ny)
}

// AnyWithin reports whether any of points lies within radius of c.
func AnyWithin(points []Point, c Point, radius float64) bool {
	for _, p := range points {
		if Distance(p, c) <= radius {
			return true
		}
	}
	return false
}

// AnyWithinSegment reports whether any of points lies within radius of the
// segment a-b.
func AnyWithinSegment(points []Point, a, b Point, radius float64) bool {
	for _, p := range points {
		if DistanceToSegment(p, a, b) <= radius {
			return true
		}
	}
	return false
}
