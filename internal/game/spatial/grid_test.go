package spatial

import (
	"math"
	"math/rand"
	"sort"
	"testing"
)

func sorted(ids []uint32) []uint32 {
	out := append([]uint32(nil), ids...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// TestQueryRangeCellGranularity covers the 5-unit cell example: a radius-5
// query at the origin reaches cells -1..1 only, so an entry at x=12 (cell 2)
// is out of range until the radius grows.
func TestQueryRangeCellGranularity(t *testing.T) {
	h := NewHash(5, 16)
	h.Insert(1, 0, 0)
	h.Insert(2, 12, 0)

	got := sorted(h.QueryRange(0, 0, 5))
	if len(got) != 1 || got[0] != 1 {
		t.Errorf("QueryRange(0,0,5) = %v, want [1]", got)
	}

	got = sorted(h.QueryRange(0, 0, 15))
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("QueryRange(0,0,15) = %v, want [1 2]", got)
	}
}

func TestQueryEmptyIndex(t *testing.T) {
	h := NewHash(5, 0)
	if got := h.QueryRange(10, 10, 100); len(got) != 0 {
		t.Errorf("expected empty result, got %v", got)
	}
}

func TestNegativeCoordinates(t *testing.T) {
	h := NewHash(5, 16)
	h.Insert(7, -0.5, -0.5)
	h.Insert(8, 0.5, 0.5)

	// floor(-0.1) = -1, so (-0.5,-0.5) lives in cell (-1,-1), not (0,0).
	if got := h.QueryCell(-0.1, -0.1); len(got) != 1 || got[0] != 7 {
		t.Errorf("QueryCell(-0.1,-0.1) = %v, want [7]", got)
	}
	if got := h.QueryCell(0.1, 0.1); len(got) != 1 || got[0] != 8 {
		t.Errorf("QueryCell(0.1,0.1) = %v, want [8]", got)
	}
}

func TestRemoveAndUpdate(t *testing.T) {
	h := NewHash(5, 16)
	h.Insert(1, 0, 0)
	h.Insert(2, 1, 1)

	if !h.Remove(1) {
		t.Fatal("Remove(1) reported missing entry")
	}
	if h.Remove(1) {
		t.Error("second Remove(1) should report false")
	}
	if got := h.QueryRange(0, 0, 1); len(got) != 1 || got[0] != 2 {
		t.Errorf("after remove got %v, want [2]", got)
	}

	h.Update(2, 100, 100)
	if got := h.QueryRange(0, 0, 1); len(got) != 0 {
		t.Errorf("moved entry still found at origin: %v", got)
	}
	if got := h.QueryRange(100, 100, 1); len(got) != 1 {
		t.Errorf("moved entry not found at destination: %v", got)
	}
	if h.Len() != 1 {
		t.Errorf("Len() = %d, want 1", h.Len())
	}
}

func TestNonFiniteRejected(t *testing.T) {
	h := NewHash(5, 16)
	if h.Insert(1, math.NaN(), 0) {
		t.Error("NaN insert accepted")
	}
	if h.InsertSegment(2, 0, 0, math.Inf(1), 0) {
		t.Error("Inf segment accepted")
	}

	h.Insert(3, 1, 1)
	if h.Update(3, math.NaN(), 1) {
		t.Error("NaN update accepted")
	}
	if h.Len() != 0 {
		t.Errorf("non-finite entries should drop out of the index, Len() = %d", h.Len())
	}
	if got := h.QueryRange(math.NaN(), 0, 10); len(got) != 0 {
		t.Errorf("NaN query returned %v", got)
	}
}

func TestSegmentSpansCells(t *testing.T) {
	h := NewHash(5, 16)
	h.InsertSegment(9, -50, 0, 50, 0)

	for _, x := range []float64{-48, -20, 0, 33, 49} {
		got := h.QueryRange(x, 1, 1)
		if len(got) != 1 || got[0] != 9 {
			t.Errorf("segment not found near x=%.0f: %v", x, got)
		}
	}

	// Multi-cell entries are reported once.
	if got := h.QueryRange(0, 0, 100); len(got) != 1 {
		t.Errorf("segment reported %d times", len(got))
	}

	h.Remove(9)
	if got := h.QueryRange(0, 0, 100); len(got) != 0 {
		t.Errorf("removed segment still indexed: %v", got)
	}
}

func TestDiagonalSegmentCostsItsLength(t *testing.T) {
	h := NewHash(5, 16)
	h.InsertSegment(1, -2000, -2000, 2000, 2000)

	// 800 cells per axis; a bounding-box fill would touch 640,000.
	st := h.Stats()
	if st.CellRefs > 1601 || st.CellRefs < 800 {
		t.Fatalf("diagonal segment registered %d cells, want about 1600", st.CellRefs)
	}

	for _, v := range []float64{-1999, -733.3, 0, 12.5, 1444, 1999} {
		if got := h.QueryRange(v, v, 0.5); len(got) != 1 {
			t.Errorf("segment not found at (%.1f, %.1f): %v", v, v, got)
		}
	}
	if got := h.QueryRange(1000, -1000, 5); len(got) != 0 {
		t.Errorf("segment reported far off its path: %v", got)
	}
}

func TestSegmentWalkCoversEveryPoint(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	h := NewHash(5, 64)
	segs := make([][4]float64, 64)
	for i := range segs {
		segs[i] = [4]float64{
			rng.Float64()*300 - 150, rng.Float64()*300 - 150,
			rng.Float64()*300 - 150, rng.Float64()*300 - 150,
		}
		h.InsertSegment(uint32(i), segs[i][0], segs[i][1], segs[i][2], segs[i][3])
	}

	for i, s := range segs {
		for k := 0; k <= 100; k++ {
			f := float64(k) / 100
			x, z := s[0]+(s[2]-s[0])*f, s[1]+(s[3]-s[1])*f
			found := false
			for _, id := range h.QueryRange(x, z, 0.01) {
				if id == uint32(i) {
					found = true
					break
				}
			}
			if !found {
				t.Fatalf("segment %d missing at (%.3f, %.3f)", i, x, z)
			}
		}
	}
}

func TestRebuildDoesNotAllocate(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	segs := make([][4]float64, 500)
	for i := range segs {
		x, z := rng.Float64()*400-200, rng.Float64()*400-200
		segs[i] = [4]float64{x, z, x + rng.Float64()*20 - 10, z + rng.Float64()*20 - 10}
	}
	h := NewHash(5, len(segs))
	rebuild := func() {
		h.Clear()
		for id, s := range segs {
			h.InsertSegment(uint32(id), s[0], s[1], s[2], s[3])
		}
		h.QueryRange(0, 0, 10)
	}
	rebuild()

	if allocs := testing.AllocsPerRun(20, rebuild); allocs != 0 {
		t.Errorf("steady-state rebuild allocated %.1f times", allocs)
	}
}

func TestReinsertWithoutClearStaysBounded(t *testing.T) {
	h := NewHash(5, 16)
	for round := 0; round < 200; round++ {
		for id := uint32(0); id < 50; id++ {
			h.InsertSegment(id, float64(round), 0, float64(round)+30, 10)
		}
	}
	if h.Len() != 50 {
		t.Fatalf("Len() = %d, want 50", h.Len())
	}
	if len(h.keys) > 4*h.live+1024 {
		t.Errorf("key storage grew to %d for %d live keys", len(h.keys), h.live)
	}
	if got := h.QueryRange(199, 0, 1); len(got) != 50 {
		t.Errorf("moved segments not found: %d", len(got))
	}
	if got := h.QueryRange(0, 0, 1); len(got) != 0 {
		t.Errorf("stale cells still report segments: %v", got)
	}
}

func TestQueryIsConservative(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	h := NewHash(5, 256)
	pts := make([][2]float64, 256)
	for i := range pts {
		pts[i] = [2]float64{rng.Float64()*200 - 100, rng.Float64()*200 - 100}
		h.Insert(uint32(i), pts[i][0], pts[i][1])
	}

	for q := 0; q < 50; q++ {
		qx, qz, r := rng.Float64()*200-100, rng.Float64()*200-100, rng.Float64()*20
		found := make(map[uint32]bool)
		for _, id := range h.QueryRange(qx, qz, r) {
			found[id] = true
		}
		for i, p := range pts {
			if math.Hypot(p[0]-qx, p[1]-qz) <= r && !found[uint32(i)] {
				t.Fatalf("point %d within radius but missing from query", i)
			}
		}
	}
}

func TestClearKeepsWorking(t *testing.T) {
	h := NewHash(5, 16)
	for i := 0; i < 100; i++ {
		h.Insert(uint32(i), float64(i), 0)
	}
	h.Clear()
	if h.Len() != 0 {
		t.Fatalf("Len() after Clear = %d", h.Len())
	}
	if got := h.QueryRange(50, 0, 10); len(got) != 0 {
		t.Errorf("cleared hash returned %v", got)
	}
	h.Insert(1, 50, 0)
	if got := h.QueryRange(50, 0, 1); len(got) != 1 {
		t.Errorf("insert after clear not found: %v", got)
	}
	if st := h.Stats(); st.Entries != 1 || st.CellRefs != 1 {
		t.Errorf("unexpected stats after clear: %+v", st)
	}
}

func BenchmarkHashRebuild_1000Segments(b *testing.B) { benchmarkHashRebuild(b, 1000) }
func BenchmarkHashRebuild_5000Segments(b *testing.B) { benchmarkHashRebuild(b, 5000) }

func benchmarkHashRebuild(b *testing.B, n int) {
	rng := rand.New(rand.NewSource(1))
	segs := make([][4]float64, n)
	for i := range segs {
		x, z := rng.Float64()*400-200, rng.Float64()*400-200
		segs[i] = [4]float64{x, z, x + rng.Float64()*4 - 2, z + rng.Float64()*4 - 2}
	}
	h := NewHash(5, n)

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		h.Clear()
		for id, s := range segs {
			h.InsertSegment(uint32(id), s[0], s[1], s[2], s[3])
		}
		h.QueryRange(0, 0, 10)
	}
}
