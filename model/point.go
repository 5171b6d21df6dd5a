package model

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Point is a position on the road graph in planar distance units.
type Point = orb.Point

// Distance returns the straight-line distance between two positions.
func Distance(a, b Point) float64 {
	return planar.Distance(a, b)
}

// Lerp returns the point a fraction f of the way from a to b. f is clamped
// to [0, 1].
func Lerp(a, b Point, f float64) Point {
	if f <= 0 {
		return a
	}
	if f >= 1 {
		return b
	}
	return Point{a[0] + (b[0]-a[0])*f, a[1] + (b[1]-a[1])*f}
}
