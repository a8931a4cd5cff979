// Package spatial provides cache-efficient spatial data structures for
// broad-phase collision detection and neighbor queries.
//
// Ids are plain uint32 handles (indices into the caller's slices) so the
// structures never hold pointers into simulation state.
package spatial

import (
	"math"
)

// Hash is an unbounded uniform grid keyed by integer cell coordinates.
// Cells are created on demand, so negative coordinates and arenas of any
// size are supported without preallocation.
//
// A point entry occupies one cell. A segment entry occupies every cell the
// segment passes through, so a long wall is found from any cell it crosses
// and costs cells in proportion to its length.
type Hash struct {
	cellSize    float64
	invCellSize float64
	cells       map[cellKey][]uint32
	entries     map[uint32]entrySpan
	keys        []cellKey           // cell lists of all entries, back to back
	live        int                 // keys still referenced by entries
	scratch     []uint32            // reusable buffer for query results
	seen        map[uint32]struct{} // dedup for multi-cell entries
}

type cellKey int64

// entrySpan locates an entry's cells in Hash.keys.
type entrySpan struct {
	off, n int
}

func packKey(cx, cz int32) cellKey {
	return cellKey(int64(cx)<<32 | int64(uint32(cz)))
}

// NewHash creates an empty hash. expected is used to presize the maps.
func NewHash(cellSize float64, expected int) *Hash {
	if cellSize <= 0 || math.IsNaN(cellSize) || math.IsInf(cellSize, 0) {
		cellSize = 5
	}
	if expected < 16 {
		expected = 16
	}
	return &Hash{
		cellSize:    cellSize,
		invCellSize: 1.0 / cellSize,
		cells:       make(map[cellKey][]uint32, expected),
		entries:     make(map[uint32]entrySpan, expected),
		keys:        make([]cellKey, 0, expected*4),
		scratch:     make([]uint32, 0, 64),
		seen:        make(map[uint32]struct{}, 64),
	}
}

// CellSize returns the cell edge length.
func (h *Hash) CellSize() float64 { return h.cellSize }

// Len returns the number of entries (points and segments).
func (h *Hash) Len() int { return len(h.entries) }

// cellCoord maps a world coordinate to its cell index along one axis.
func (h *Hash) cellCoord(v float64) int32 {
	c := math.Floor(v * h.invCellSize)
	if c > math.MaxInt32 {
		return math.MaxInt32
	}
	if c < math.MinInt32 {
		return math.MinInt32
	}
	return int32(c)
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Clear empties every cell but keeps bucket and key capacity for the next
// rebuild, so a steady-state rebuild does not allocate.
func (h *Hash) Clear() {
	// Buckets for cells nothing visits anymore would otherwise accumulate.
	if len(h.cells) > 4096 && len(h.cells) > 8*h.live {
		h.cells = make(map[cellKey][]uint32, h.live)
	} else {
		for k, ids := range h.cells {
			h.cells[k] = ids[:0]
		}
	}
	clear(h.entries)
	h.keys = h.keys[:0]
	h.live = 0
}

// Insert adds a point entry. Non-finite coordinates are rejected and the
// id is left out of the index. Re-inserting an existing id moves it.
func (h *Hash) Insert(id uint32, x, z float64) bool {
	if !finite(x, z) {
		h.Remove(id)
		return false
	}
	if _, ok := h.entries[id]; ok {
		h.Remove(id)
	}
	key := packKey(h.cellCoord(x), h.cellCoord(z))
	h.cells[key] = append(h.cells[key], id)
	h.entries[id] = entrySpan{off: len(h.keys), n: 1}
	h.keys = append(h.keys, key)
	h.live++
	return true
}

// InsertSegment adds a segment entry to every cell the segment passes
// through.
func (h *Hash) InsertSegment(id uint32, x1, z1, x2, z2 float64) bool {
	if !finite(x1, z1, x2, z2) {
		h.Remove(id)
		return false
	}
	if _, ok := h.entries[id]; ok {
		h.Remove(id)
	}

	off := len(h.keys)
	n := h.walkSegment(x1, z1, x2, z2)
	for _, key := range h.keys[off : off+n] {
		h.cells[key] = append(h.cells[key], id)
	}
	h.entries[id] = entrySpan{off: off, n: n}
	h.live += n
	return true
}

// walkSegment appends the keys of the cells crossed by the segment, in
// order from (x1, z1), and returns how many it appended. It visits
// |dcx|+|dcz|+1 cells.
func (h *Hash) walkSegment(x1, z1, x2, z2 float64) int {
	cx, cz := h.cellCoord(x1), h.cellCoord(z1)
	ex, ez := h.cellCoord(x2), h.cellCoord(z2)

	stepX, tMaxX, tDeltaX := h.axisStep(cx, x1, x2-x1)
	stepZ, tMaxZ, tDeltaZ := h.axisStep(cz, z1, z2-z1)

	steps := absDiff(ex, cx) + absDiff(ez, cz)
	h.keys = append(h.keys, packKey(cx, cz))
	for i := int64(0); i < steps; i++ {
		// Once an axis has reached its end cell only the other may move.
		switch {
		case cx == ex:
			cz += stepZ
			tMaxZ += tDeltaZ
		case cz == ez:
			cx += stepX
			tMaxX += tDeltaX
		case tMaxX < tMaxZ:
			cx += stepX
			tMaxX += tDeltaX
		default:
			cz += stepZ
			tMaxZ += tDeltaZ
		}
		h.keys = append(h.keys, packKey(cx, cz))
	}
	return int(steps) + 1
}

// axisStep returns the walk direction along one axis, the segment
// parameter at which the first cell boundary is crossed, and the parameter
// width of one cell.
func (h *Hash) axisStep(c int32, from, delta float64) (int32, float64, float64) {
	switch {
	case delta > 0:
		return 1, ((float64(c)+1)*h.cellSize - from) / delta, h.cellSize / delta
	case delta < 0:
		return -1, (float64(c)*h.cellSize - from) / delta, -h.cellSize / delta
	default:
		return 0, math.Inf(1), math.Inf(1)
	}
}

func absDiff(a, b int32) int64 {
	d := int64(a) - int64(b)
	if d < 0 {
		return -d
	}
	return d
}

// Remove deletes an entry. Returns false if the id was not indexed.
func (h *Hash) Remove(id uint32) bool {
	span, ok := h.entries[id]
	if !ok {
		return false
	}
	for _, key := range h.keys[span.off : span.off+span.n] {
		ids := h.cells[key]
		for i, other := range ids {
			if other == id {
				ids[i] = ids[len(ids)-1]
				h.cells[key] = ids[:len(ids)-1]
				break
			}
		}
	}
	delete(h.entries, id)
	h.live -= span.n
	h.compact()
	return true
}

// compact drops key runs left behind by removed entries once they make up
// most of the key storage.
func (h *Hash) compact() {
	if len(h.keys) < 1024 || len(h.keys) < 2*h.live {
		return
	}
	keys := make([]cellKey, 0, 2*h.live)
	for id, span := range h.entries {
		off := len(keys)
		keys = append(keys, h.keys[span.off:span.off+span.n]...)
		h.entries[id] = entrySpan{off: off, n: span.n}
	}
	h.keys = keys
}

// Update moves a point entry. Non-finite coordinates remove it.
func (h *Hash) Update(id uint32, x, z float64) bool {
	if !finite(x, z) {
		h.Remove(id)
		return false
	}
	if span, ok := h.entries[id]; ok && span.n == 1 {
		if h.keys[span.off] == packKey(h.cellCoord(x), h.cellCoord(z)) {
			return true
		}
	}
	return h.Insert(id, x, z)
}

// QueryRange returns all ids whose cell overlaps the bounding square of the
// circle at (x, z). Each id appears at most once.
//
// IMPORTANT: The returned slice is reused on subsequent calls.
// Copy the results if you need to persist them.
//
// The result is conservative: callers must run a precise narrow phase.
func (h *Hash) QueryRange(x, z, radius float64) []uint32 {
	h.scratch = h.scratch[:0]
	if len(h.entries) == 0 || !finite(x, z, radius) {
		return h.scratch
	}
	if radius < 0 {
		radius = -radius
	}

	minCX, maxCX := h.cellCoord(x-radius), h.cellCoord(x+radius)
	minCZ, maxCZ := h.cellCoord(z-radius), h.cellCoord(z+radius)

	// Very large queries cost less as a scan over the occupied cells.
	span := (int64(maxCX) - int64(minCX) + 1) * (int64(maxCZ) - int64(minCZ) + 1)
	clear(h.seen)
	if span > int64(len(h.cells)) {
		for key, ids := range h.cells {
			cx, cz := int32(int64(key)>>32), int32(uint32(int64(key)))
			if cx < minCX || cx > maxCX || cz < minCZ || cz > maxCZ {
				continue
			}
			h.collect(ids)
		}
		return h.scratch
	}

	for cx := minCX; cx <= maxCX; cx++ {
		for cz := minCZ; cz <= maxCZ; cz++ {
			h.collect(h.cells[packKey(cx, cz)])
			if cz == math.MaxInt32 {
				break
			}
		}
		if cx == math.MaxInt32 {
			break
		}
	}
	return h.scratch
}

func (h *Hash) collect(ids []uint32) {
	for _, id := range ids {
		if _, dup := h.seen[id]; dup {
			continue
		}
		h.seen[id] = struct{}{}
		h.scratch = append(h.scratch, id)
	}
}

// QueryCell returns the ids stored in the cell containing (x, z).
func (h *Hash) QueryCell(x, z float64) []uint32 {
	if !finite(x, z) {
		return nil
	}
	return h.cells[packKey(h.cellCoord(x), h.cellCoord(z))]
}

// Stats returns hash statistics for debugging/profiling.
func (h *Hash) Stats() HashStats {
	var refs, maxInCell, nonEmpty int
	for _, ids := range h.cells {
		count := len(ids)
		refs += count
		if count > maxInCell {
			maxInCell = count
		}
		if count > 0 {
			nonEmpty++
		}
	}

	avg := 0.0
	if nonEmpty > 0 {
		avg = float64(refs) / float64(nonEmpty)
	}

	return HashStats{
		Buckets:        len(h.cells),
		NonEmptyCells:  nonEmpty,
		Entries:        len(h.entries),
		CellRefs:       refs,
		MaxInCell:      maxInCell,
		AvgPerNonEmpty: avg,
	}
}

// HashStats contains hash statistics for debugging.
type HashStats struct {
	Buckets        int     `json:"buckets"`
	NonEmptyCells  int     `json:"nonEmptyCells"`
	Entries        int     `json:"entries"`
	CellRefs       int     `json:"cellRefs"`
	MaxInCell      int     `json:"maxInCell"`
	AvgPerNonEmpty float64 `json:"avgPerNonEmpty"`
}
