package game

import (
	"github.com/PropertySightlines/cyber-cycles-sub001/internal/config"
	"github.com/PropertySightlines/cyber-cycles-sub001/internal/game/physics"
)

// lengthTolerance absorbs float drift when a trail is rebuilt point by point.
const lengthTolerance = 1e-9

// Segment is a trail wall piece with cached metadata.
type Segment struct {
	physics.Segment
	Length       float64
	OwnerID      string
	HeadDistance float64 // trail length from B to the newest point
}

// Trail is the ordered wall a cycle leaves behind, oldest point first.
type Trail struct {
	ownerID    string
	points     []physics.Point
	segments   []Segment
	length     float64
	maxLength  float64
	minSpacing float64
	dirty      bool
}

// NewTrail creates an empty trail.
func NewTrail(ownerID string, cfg config.Trail) *Trail {
	return &Trail{
		ownerID:    ownerID,
		points:     make([]physics.Point, 0, 128),
		maxLength:  cfg.MaxLength,
		minSpacing: cfg.MinPointSpacing,
	}
}

// OwnerID returns the owning cycle id.
func (t *Trail) OwnerID() string { return t.ownerID }

// Len returns the number of points.
func (t *Trail) Len() int { return len(t.points) }

// Length returns the total length of the trail.
func (t *Trail) Length() float64 { return t.length }

// Points returns the ordered points. The slice is owned by the trail.
func (t *Trail) Points() []physics.Point { return t.points }

// Last returns the newest point.
func (t *Trail) Last() (physics.Point, bool) {
	if len(t.points) == 0 {
		return physics.Point{}, false
	}
	return t.points[len(t.points)-1], true
}

// Reset clears the trail and starts it at p.
func (t *Trail) Reset(p physics.Point) {
	t.points = t.points[:0]
	t.length = 0
	t.dirty = true
	if physics.IsFinite(p.X, p.Z) {
		t.points = append(t.points, p)
	}
}

// Clear removes every point.
func (t *Trail) Clear() {
	t.points = t.points[:0]
	t.length = 0
	t.dirty = true
}

// Add appends p. Points closer than the minimum spacing to the newest point,
// or with non-finite coordinates, are rejected.
func (t *Trail) Add(p physics.Point) bool {
	if !physics.IsFinite(p.X, p.Z) {
		return false
	}
	if last, ok := t.Last(); ok {
		d := physics.Dist(last, p)
		if d < t.minSpacing || d < physics.Epsilon {
			return false
		}
		t.length += d
	}
	t.points = append(t.points, p)
	t.dirty = true
	t.trim()
	return true
}

// SetPoints replaces the trail, applying the same spacing and length rules
// as Add.
func (t *Trail) SetPoints(points []physics.Point) {
	t.Clear()
	for _, p := range points {
		t.Add(p)
	}
}

// trim drops the oldest points until the length fits, sliding the oldest
// survivor along its segment so the trail is exactly maxLength long.
func (t *Trail) trim() {
	if t.maxLength <= 0 {
		return
	}
	excess := t.length - t.maxLength
	drop := 0
	for excess > lengthTolerance && len(t.points)-drop >= 2 {
		a, b := t.points[drop], t.points[drop+1]
		segLen := physics.Dist(a, b)
		remaining := segLen - excess
		if remaining < t.minSpacing || remaining < physics.Epsilon {
			drop++
			t.length -= segLen
			excess -= segLen
			continue
		}
		t.points[drop] = physics.Lerp(a, b, excess/segLen)
		t.length = t.maxLength
		excess = 0
	}
	if drop > 0 {
		t.points = append(t.points[:0], t.points[drop:]...)
		t.dirty = true
	}
	if t.length < 0 || len(t.points) < 2 {
		t.length = 0
		if len(t.points) >= 2 {
			t.length = t.recomputeLength()
		}
	}
}

func (t *Trail) recomputeLength() float64 {
	total := 0.0
	for i := 1; i < len(t.points); i++ {
		total += physics.Dist(t.points[i-1], t.points[i])
	}
	return total
}

// Segments returns consecutive point pairs, oldest first. The slice is
// cached until the trail changes.
func (t *Trail) Segments() []Segment {
	if !t.dirty && t.segments != nil {
		return t.segments
	}
	t.segments = t.segments[:0]
	for i := 1; i < len(t.points); i++ {
		s := physics.Segment{A: t.points[i-1], B: t.points[i]}
		t.segments = append(t.segments, Segment{
			Segment: s,
			Length:  s.Length(),
			OwnerID: t.ownerID,
		})
	}
	head := 0.0
	for i := len(t.segments) - 1; i >= 0; i-- {
		t.segments[i].HeadDistance = head
		head += t.segments[i].Length
	}
	t.dirty = false
	return t.segments
}

// Copy returns a detached copy of the points.
func (t *Trail) Copy() []physics.Point {
	out := make([]physics.Point, len(t.points))
	copy(out, t.points)
	return out
}
