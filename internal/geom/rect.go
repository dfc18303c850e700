package geom

import "math"

// Point is a 2-D coordinate.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Size is a 2-D extent.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// IsEmpty reports whether either dimension is not strictly positive.
func (s Size) IsEmpty() bool {
	return s.Width <= 0 || s.Height <= 0
}

// Aspect returns Width/Height, or 0 for an empty size.
func (s Size) Aspect() float64 {
	if s.IsEmpty() {
		return 0
	}
	return s.Width / s.Height
}

// Rect is an axis-aligned rectangle given by its origin and size.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// RectFromCorners returns the smallest rectangle containing both points.
func RectFromCorners(p, q Point) Rect {
	minX, maxX := math.Min(p.X, q.X), math.Max(p.X, q.X)
	minY, maxY := math.Min(p.Y, q.Y), math.Max(p.Y, q.Y)
	return Rect{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}

// Standardized returns an equivalent rectangle with non-negative width and height.
func (r Rect) Standardized() Rect {
	return RectFromCorners(Point{r.X, r.Y}, Point{r.X + r.Width, r.Y + r.Height})
}

func (r Rect) MinX() float64 { return r.Standardized().X }
func (r Rect) MinY() float64 { return r.Standardized().Y }
func (r Rect) MaxX() float64 { s := r.Standardized(); return s.X + s.Width }
func (r Rect) MaxY() float64 { s := r.Standardized(); return s.Y + s.Height }
func (r Rect) MidX() float64 { return r.X + r.Width/2 }
func (r Rect) MidY() float64 { return r.Y + r.Height/2 }

// Center returns the midpoint of the rectangle.
func (r Rect) Center() Point {
	return Point{X: r.MidX(), Y: r.MidY()}
}

// IsUnitBounded reports whether the rectangle lies within [0,1]x[0,1].
func (r Rect) IsUnitBounded() bool {
	s := r.Standardized()
	return s.X >= 0 && s.Y >= 0 && s.X+s.Width <= 1 && s.Y+s.Height <= 1
}

// Applying returns the bounding box of r's corners after transform t.
func (r Rect) Applying(t Affine) Rect {
	s := r.Standardized()
	if t.IsIdentity() {
		return s
	}
	corners := [4]Point{
		{s.X, s.Y},
		{s.X + s.Width, s.Y},
		{s.X, s.Y + s.Height},
		{s.X + s.Width, s.Y + s.Height},
	}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, c := range corners {
		p := t.ApplyPoint(c)
		minX = math.Min(minX, p.X)
		minY = math.Min(minY, p.Y)
		maxX = math.Max(maxX, p.X)
		maxY = math.Max(maxY, p.Y)
	}
	return Rect{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}
