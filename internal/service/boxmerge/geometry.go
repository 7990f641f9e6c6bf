package boxmerge

import "math"

// minAreaFloor keeps the containment ratio finite for zero-area boxes.
const minAreaFloor = 1e-9

// Area returns the pixel area of d, zero for degenerate or inverted rectangles.
func Area(d Detection) float64 {
	return math.Max(0, d.X2-d.X1) * math.Max(0, d.Y2-d.Y1)
}

// Intersection returns the overlapping area of a and b.
func Intersection(a, b Detection) float64 {
	w := math.Min(a.X2, b.X2) - math.Max(a.X1, b.X1)
	h := math.Min(a.Y2, b.Y2) - math.Max(a.Y1, b.Y1)
	return math.Max(0, w) * math.Max(0, h)
}

// Containment returns the intersection of a and b divided by the area of the
// smaller box. A box fully inside the other yields 1.
func Containment(a, b Detection) float64 {
	minArea := math.Max(math.Min(Area(a), Area(b)), minAreaFloor)
	return Intersection(a, b) / minArea
}

// Union returns the bounding rectangle of a and b carrying the higher confidence.
// Normalized fields are left for Normalize to fill in.
func Union(a, b Detection) Detection {
	return Detection{
		Confidence: math.Max(a.Confidence, b.Confidence),
		X1:         math.Min(a.X1, b.X1),
		Y1:         math.Min(a.Y1, b.Y1),
		X2:         math.Max(a.X2, b.X2),
		Y2:         math.Max(a.Y2, b.Y2),
	}
}
