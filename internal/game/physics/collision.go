package physics

import (
	"math"
)

// SegmentDistance is the result of projecting a point onto a segment.
type SegmentDistance struct {
	Distance float64
	ClosestX float64
	ClosestZ float64
	T        float64 // parameter of the closest point, in [0,1]
}

// DistanceToSegment projects (px, pz) onto the segment and returns the
// distance to the closest point. Segments shorter than Epsilon are treated
// as their first endpoint.
func DistanceToSegment(px, pz, x1, z1, x2, z2 float64) SegmentDistance {
	cx, cz, t := ClosestPointOnSegment(px, pz, x1, z1, x2, z2)
	return SegmentDistance{
		Distance: math.Hypot(px-cx, pz-cz),
		ClosestX: cx,
		ClosestZ: cz,
		T:        t,
	}
}

// ClosestPointOnSegment returns the closest point on the segment and its
// parameter t ∈ [0,1].
func ClosestPointOnSegment(px, pz, x1, z1, x2, z2 float64) (float64, float64, float64) {
	dx, dz := x2-x1, z2-z1
	lenSq := dx*dx + dz*dz
	if lenSq < Epsilon*Epsilon {
		return x1, z1, 0
	}
	t := Clamp(((px-x1)*dx+(pz-z1)*dz)/lenSq, 0, 1)
	return x1 + t*dx, z1 + t*dz, t
}

// PointSegmentDistance is DistanceToSegment for Point/Segment values.
func PointSegmentDistance(p Point, s Segment) float64 {
	return DistanceToSegment(p.X, p.Z, s.A.X, s.A.Z, s.B.X, s.B.Z).Distance
}

// SegmentIntersect returns the intersection point of a and b. Parallel and
// collinear segments report no intersection.
func SegmentIntersect(a, b Segment) (Point, bool) {
	t, u, ok := intersectParams(a, b)
	if !ok || t < 0 || t > 1 || u < 0 || u > 1 {
		return Point{}, false
	}
	return Lerp(a.A, a.B, t), true
}

// intersectParams solves a.A + t·(a.B−a.A) = b.A + u·(b.B−b.A).
func intersectParams(a, b Segment) (t, u float64, ok bool) {
	rx, rz := a.B.X-a.A.X, a.B.Z-a.A.Z
	sx, sz := b.B.X-b.A.X, b.B.Z-b.A.Z
	denom := rx*sz - rz*sx
	// Scale-aware parallel test: |r×s| relative to |r||s|.
	if math.Abs(denom) <= 1e-9*math.Hypot(rx, rz)*math.Hypot(sx, sz) || denom == 0 {
		return 0, 0, false
	}
	qx, qz := b.A.X-a.A.X, b.A.Z-a.A.Z
	t = (qx*sz - qz*sx) / denom
	u = (qx*rz - qz*rx) / denom
	return t, u, true
}

// ContinuousCollisionCheck treats the motion prev→next as a segment and
// reports whether it touches seg within radius: either the paths cross, or
// an endpoint of one lies within radius of the other.
func ContinuousCollisionCheck(prev, next Point, seg Segment, radius float64) bool {
	_, hit := SweptHit(prev, next, seg, radius)
	return hit
}

// SweptHit returns the earliest fraction of the motion prev→next at which
// the mover comes within radius of seg. A mover already within radius at
// prev reports t = 0. With radius 0 this is a pure crossing test.
func SweptHit(prev, next Point, seg Segment, radius float64) (float64, bool) {
	if radius < 0 {
		radius = 0
	}
	if PointSegmentDistance(prev, seg) <= radius {
		return 0, true
	}
	if Dist(prev, next) < Epsilon {
		return 0, false
	}

	best, hit := math.Inf(1), false
	capRadius := radius

	segLen := seg.Length()
	if segLen >= Epsilon {
		// Face contact: entering the band |signed distance| <= radius
		// while projecting inside the segment span.
		ux, uz := (seg.B.X-seg.A.X)/segLen, (seg.B.Z-seg.A.Z)/segLen
		nx, nz := -uz, ux
		d0 := (prev.X-seg.A.X)*nx + (prev.Z-seg.A.Z)*nz
		d1 := (next.X-seg.A.X)*nx + (next.Z-seg.A.Z)*nz
		if d0 != d1 {
			target := radius
			if d0 < 0 {
				target = -radius
			}
			t := (d0 - target) / (d0 - d1)
			if t >= 0 && t <= 1 {
				p := Lerp(prev, next, t)
				u := (p.X-seg.A.X)*ux + (p.Z-seg.A.Z)*uz
				if u >= 0 && u <= segLen {
					best, hit = t, true
				}
			}
		}
	} else {
		capRadius = math.Max(radius, Epsilon)
	}

	// Rounded caps at the wall endpoints.
	for _, c := range [2]Point{seg.A, seg.B} {
		if t, ok := circleHitAlong(prev, next, c, capRadius); ok && t < best {
			best, hit = t, true
		}
	}
	if !hit {
		return 0, false
	}
	return best, true
}

// circleHitAlong returns the first t ∈ [0,1] at which prev→next enters the
// circle of radius r around c.
func circleHitAlong(prev, next, c Point, r float64) (float64, bool) {
	dx, dz := next.X-prev.X, next.Z-prev.Z
	fx, fz := prev.X-c.X, prev.Z-c.Z
	a := dx*dx + dz*dz
	if a < Epsilon*Epsilon {
		return 0, false
	}
	b := 2 * (fx*dx + fz*dz)
	cc := fx*fx + fz*fz - r*r
	disc := b*b - 4*a*cc
	if disc < 0 {
		return 0, false
	}
	t := (-b - math.Sqrt(disc)) / (2 * a)
	if t < 0 || t > 1 {
		return 0, false
	}
	return t, true
}

// CheckArenaBounds reports whether (x, z) lies inside the square arena
// [-halfExtent, halfExtent]².
func CheckArenaBounds(x, z, halfExtent float64) bool {
	return x >= -halfExtent && x <= halfExtent && z >= -halfExtent && z <= halfExtent
}

// ArenaWalls returns the four border segments of the square arena in
// counter-clockwise order.
func ArenaWalls(halfExtent float64) [4]Segment {
	h := halfExtent
	return [4]Segment{
		Seg(-h, -h, h, -h),
		Seg(h, -h, h, h),
		Seg(h, h, -h, h),
		Seg(-h, h, -h, -h),
	}
}

// CirclesOverlap reports whether two centres are closer than radius.
func CirclesOverlap(ax, az, bx, bz, radius float64) bool {
	dx, dz := bx-ax, bz-az
	return dx*dx+dz*dz < radius*radius
}
