package lineage

import "math"

// Rectangle is an axis-aligned box in pixel coordinates.
type Rectangle struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

func NewRect(x, y, width, height float64) Rectangle {
	return Rectangle{
		X:      x,
		Y:      y,
		Width:  width,
		Height: height,
	}
}

// Center returns the middle of the rectangle
func (r Rectangle) Center() Point {
	return Point{X: r.X + r.Width/2.0, Y: r.Y + r.Height/2.0}
}

// Diagonal returns length of the rectangle's diagonal
func (r Rectangle) Diagonal() float64 {
	return math.Hypot(r.Width, r.Height)
}

// Point is a sub-pixel position. X is the column, Y is the row.
type Point struct {
	X float64
	Y float64
}

// Distance returns euclidean distance between two points
func Distance(p1, p2 Point) float64 {
	return math.Hypot(p1.X-p2.X, p1.Y-p2.Y)
}

// IoU calculates Intersection over Union between two rectangles.
func IoU(r1, r2 Rectangle) float64 {
	xA := math.Max(r1.X, r2.X)
	yA := math.Max(r1.Y, r2.Y)
	xB := math.Min(r1.X+r1.Width, r2.X+r2.Width)
	yB := math.Min(r1.Y+r1.Height, r2.Y+r2.Height)

	interArea := math.Max(0, xB-xA) * math.Max(0, yB-yA)
	if interArea == 0 {
		return 0.0
	}
	union := r1.Width*r1.Height + r2.Width*r2.Height - interArea
	if union <= 0 {
		return 0.0
	}
	return interArea / union
}
