// Package physics holds the stateless 2-D geometry and the Verlet
// integrator the simulation is built on. The plane is X/Z; height is
// cosmetic and never enters these functions.
package physics

import (
	"math"
)

// Epsilon treats near-coincident points as equal.
const Epsilon = 0.01

// Point is a position on the arena plane.
type Point struct {
	X float64 `json:"x" msgpack:"x"`
	Z float64 `json:"z" msgpack:"z"`
}

// Segment is a wall piece between two points.
type Segment struct {
	A Point
	B Point
}

// Seg builds a segment from coordinates.
func Seg(x1, z1, x2, z2 float64) Segment {
	return Segment{A: Point{x1, z1}, B: Point{x2, z2}}
}

// Length returns the segment length.
func (s Segment) Length() float64 {
	return math.Hypot(s.B.X-s.A.X, s.B.Z-s.A.Z)
}

// Dist returns the distance between two points.
func Dist(a, b Point) float64 {
	return math.Hypot(b.X-a.X, b.Z-a.Z)
}

// Lerp interpolates from a to b.
func Lerp(a, b Point, t float64) Point {
	return Point{a.X + (b.X-a.X)*t, a.Z + (b.Z-a.Z)*t}
}

// Normalize returns the unit vector of (x, z). Degenerate or non-finite
// input falls back to (1, 0).
func Normalize(x, z float64) (float64, float64) {
	l := math.Hypot(x, z)
	if l < 1e-12 || !IsFinite(x, z, l) {
		return 1, 0
	}
	return x / l, z / l
}

// Rotate turns (x, z) by angle radians, counter-clockwise seen from above.
func Rotate(x, z, angle float64) (float64, float64) {
	sin, cos := math.Sincos(angle)
	return x*cos - z*sin, x*sin + z*cos
}

// Heading returns the angle of a direction vector.
func Heading(x, z float64) float64 {
	return math.Atan2(z, x)
}

// NormalizeAngle wraps an angle to [-π, π].
func NormalizeAngle(angle float64) float64 {
	const twoPi = 2 * math.Pi
	angle = math.Mod(angle, twoPi)
	if angle < 0 {
		angle += twoPi
	}
	if angle > math.Pi {
		angle -= twoPi
	}
	return angle
}

// IsFinite reports whether every value is neither NaN nor infinite.
func IsFinite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Clamp limits v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
