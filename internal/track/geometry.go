package track

import "math"

// Point is an image-plane coordinate in pixels. Centroids are kept in
// floating point even though detections arrive as integer boxes, so
// sub-pixel velocity estimates survive repeated averaging.
type Point struct {
	X float64
	Y float64
}

// Dist returns the Euclidean distance to q.
func (p Point) Dist(q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// Rect is an axis-aligned bounding box in integer pixel coordinates,
// (X1,Y1) top-left inclusive, (X2,Y2) bottom-right exclusive.
type Rect struct {
	X1, Y1, X2, Y2 int
}

// Width returns the box width in pixels.
func (r Rect) Width() int { return r.X2 - r.X1 }

// Height returns the box height in pixels.
func (r Rect) Height() int { return r.Y2 - r.Y1 }

// Area returns the box area in square pixels, zero for degenerate boxes.
func (r Rect) Area() int {
	w, h := r.Width(), r.Height()
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// Center returns the box centroid.
func (r Rect) Center() Point {
	return Point{
		X: 0.5 * float64(r.X1+r.X2),
		Y: 0.5 * float64(r.Y1+r.Y2),
	}
}

// Translate returns the box shifted by (dx, dy), rounded to pixels.
func (r Rect) Translate(dx, dy float64) Rect {
	rx := int(math.Round(dx))
	ry := int(math.Round(dy))
	return Rect{X1: r.X1 + rx, Y1: r.Y1 + ry, X2: r.X2 + rx, Y2: r.Y2 + ry}
}

// Union returns the smallest box containing both a and b.
func Union(a, b Rect) Rect {
	return Rect{
		X1: min(a.X1, b.X1),
		Y1: min(a.Y1, b.Y1),
		X2: max(a.X2, b.X2),
		Y2: max(a.Y2, b.Y2),
	}
}

// IoU returns the intersection-over-union of two boxes in [0, 1].
// Non-overlapping or degenerate boxes score zero.
func IoU(a, b Rect) float64 {
	ix1 := max(a.X1, b.X1)
	iy1 := max(a.Y1, b.Y1)
	ix2 := min(a.X2, b.X2)
	iy2 := min(a.Y2, b.Y2)

	iw := ix2 - ix1
	ih := iy2 - iy1
	if iw <= 0 || ih <= 0 {
		return 0
	}
	inter := float64(iw * ih)
	union := float64(a.Area()+b.Area()) - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}
