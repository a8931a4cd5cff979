package physics

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistanceToSegment(t *testing.T) {
	tests := []struct {
		name         string
		px, pz       float64
		seg          Segment
		wantDist     float64
		wantX, wantZ float64
		wantT        float64
	}{
		{"above middle", 0, 3, Seg(-5, 0, 5, 0), 3, 0, 0, 0.5},
		{"past end clamps", 10, 0, Seg(-5, 0, 5, 0), 5, 5, 0, 1},
		{"before start clamps", -8, 4, Seg(-5, 0, 5, 0), 5, -5, 0, 0},
		{"on segment", 2, 0, Seg(-5, 0, 5, 0), 0, 2, 0, 0.7},
		{"zero length", 3, 4, Seg(0, 0, 0, 0), 5, 0, 0, 0},
		{"shorter than epsilon", 3, 4, Seg(0, 0, 0.001, 0), 5, 0, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DistanceToSegment(tt.px, tt.pz, tt.seg.A.X, tt.seg.A.Z, tt.seg.B.X, tt.seg.B.Z)
			assert.InDelta(t, tt.wantDist, got.Distance, 1e-9)
			assert.InDelta(t, tt.wantX, got.ClosestX, 1e-9)
			assert.InDelta(t, tt.wantZ, got.ClosestZ, 1e-9)
			assert.InDelta(t, tt.wantT, got.T, 1e-9)
		})
	}
}

func TestDistanceToSegmentProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for i := 0; i < 2000; i++ {
		x1, z1 := rng.Float64()*100-50, rng.Float64()*100-50
		x2, z2 := rng.Float64()*100-50, rng.Float64()*100-50
		px, pz := rng.Float64()*100-50, rng.Float64()*100-50

		d := DistanceToSegment(px, pz, x1, z1, x2, z2)
		require.GreaterOrEqual(t, d.Distance, 0.0)
		require.GreaterOrEqual(t, d.T, 0.0)
		require.LessOrEqual(t, d.T, 1.0)

		// A point sampled on the segment is at distance zero.
		s := rng.Float64()
		on := DistanceToSegment(x1+(x2-x1)*s, z1+(z2-z1)*s, x1, z1, x2, z2)
		require.InDelta(t, 0, on.Distance, 1e-9)

		// The closest point is never farther than either endpoint.
		require.LessOrEqual(t, d.Distance, math.Hypot(px-x1, pz-z1)+1e-9)
		require.LessOrEqual(t, d.Distance, math.Hypot(px-x2, pz-z2)+1e-9)
	}
}

func TestDistanceZeroOnlyOnSegment(t *testing.T) {
	seg := Seg(0, 0, 10, 0)
	assert.Greater(t, PointSegmentDistance(Point{5, 0.001}, seg), 0.0)
	assert.Greater(t, PointSegmentDistance(Point{10.001, 0}, seg), 0.0)
	assert.Equal(t, 0.0, PointSegmentDistance(Point{10, 0}, seg))
}

func TestSegmentIntersect(t *testing.T) {
	tests := []struct {
		name string
		a, b Segment
		want Point
		hit  bool
	}{
		{"cross", Seg(-1, 0, 1, 0), Seg(0, -1, 0, 1), Point{0, 0}, true},
		{"touch endpoint", Seg(0, 0, 2, 0), Seg(2, -1, 2, 1), Point{2, 0}, true},
		{"miss", Seg(0, 0, 1, 0), Seg(2, -1, 2, 1), Point{}, false},
		{"parallel", Seg(0, 0, 10, 0), Seg(0, 1, 10, 1), Point{}, false},
		{"collinear overlap", Seg(0, 0, 10, 0), Seg(5, 0, 15, 0), Point{}, false},
		{"degenerate", Seg(0, 0, 0, 0), Seg(-1, 0, 1, 0), Point{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := SegmentIntersect(tt.a, tt.b)
			require.Equal(t, tt.hit, ok)
			if ok {
				assert.InDelta(t, tt.want.X, got.X, 1e-9)
				assert.InDelta(t, tt.want.Z, got.Z, 1e-9)
			}
		})
	}
}

func TestContinuousCollisionPreventsTunneling(t *testing.T) {
	wall := Seg(5, -10, 5, 10)

	// 10 units per tick jumps clean over a zero-thickness wall.
	prev, next := Point{0, 0}, Point{10, 0}
	assert.Greater(t, PointSegmentDistance(prev, wall), 1.0)
	assert.Greater(t, PointSegmentDistance(next, wall), 1.0)
	assert.True(t, ContinuousCollisionCheck(prev, next, wall, 0))

	frac, hit := SweptHit(prev, next, wall, 0)
	require.True(t, hit)
	assert.InDelta(t, 0.5, frac, 1e-9)

	frac, hit = SweptHit(prev, next, wall, 1)
	require.True(t, hit)
	assert.InDelta(t, 0.4, frac, 1e-9)

	// Parallel motion beside the wall never touches it.
	assert.False(t, ContinuousCollisionCheck(Point{0, 0}, Point{0, 5}, wall, 1))
}

func TestSweptHitGrazesEndpoint(t *testing.T) {
	wall := Seg(0, 0, 0, 10)
	// Passes just below the wall's lower end.
	frac, hit := SweptHit(Point{-5, -0.5}, Point{5, -0.5}, wall, 1)
	require.True(t, hit)
	assert.Greater(t, frac, 0.0)
	assert.Less(t, frac, 0.5)

	_, hit = SweptHit(Point{-5, -2}, Point{5, -2}, wall, 1)
	assert.False(t, hit)
}

func TestSweptHitStartingInside(t *testing.T) {
	frac, hit := SweptHit(Point{0, 0.5}, Point{1, 0.5}, Seg(-10, 0, 10, 0), 1)
	require.True(t, hit)
	assert.Equal(t, 0.0, frac)
}

func TestCheckArenaBounds(t *testing.T) {
	assert.True(t, CheckArenaBounds(0, 0, 100))
	assert.True(t, CheckArenaBounds(100, -100, 100))
	assert.False(t, CheckArenaBounds(100.01, 0, 100))
	assert.False(t, CheckArenaBounds(0, -150, 100))
	assert.False(t, CheckArenaBounds(math.NaN(), 0, 100))
}

func TestArenaWallsEncloseArena(t *testing.T) {
	walls := ArenaWalls(50)
	for _, w := range walls {
		assert.InDelta(t, 100, w.Length(), 1e-9)
		assert.InDelta(t, 50, PointSegmentDistance(Point{0, 0}, w), 1e-9)
	}
}

func TestCirclesOverlap(t *testing.T) {
	assert.True(t, CirclesOverlap(0, 0, 3.9, 0, 4))
	assert.False(t, CirclesOverlap(0, 0, 4, 0, 4))
	assert.False(t, CirclesOverlap(0, 0, 3, 3, 4))
}

func TestNormalizeAndRotate(t *testing.T) {
	x, z := Normalize(3, 4)
	assert.InDelta(t, 0.6, x, 1e-12)
	assert.InDelta(t, 0.8, z, 1e-12)

	x, z = Normalize(0, 0)
	assert.Equal(t, 1.0, x)
	assert.Equal(t, 0.0, z)

	x, z = Normalize(math.NaN(), 1)
	assert.Equal(t, 1.0, x)
	assert.Equal(t, 0.0, z)

	x, z = Rotate(1, 0, math.Pi/2)
	assert.InDelta(t, 0, x, 1e-12)
	assert.InDelta(t, 1, z, 1e-12)

	assert.InDelta(t, -math.Pi/2, NormalizeAngle(3*math.Pi/2), 1e-12)
}

func BenchmarkDistanceToSegment(b *testing.B) {
	for i := 0; i < b.N; i++ {
		DistanceToSegment(1, 2, -5, -5, 5, 5)
	}
}
