package game

import (
	"math"

	"github.com/PropertySightlines/cyber-cycles-sub001/internal/game/physics"
)

// stopBackoff is how far short of a wall a crossing cycle is stopped.
const stopBackoff = physics.Epsilon

// wallHit is the narrow-phase result for one cycle's motion this tick.
type wallHit struct {
	distance float64 // nearest wall distance at the end of the motion
	owner    string  // owner of the responsible wall ("" for static)
	crossed  bool
	stop     physics.Point // where the cycle stops when crossed
}

// ignores reports whether a wall is the cycle's own recent trail, which is
// never lethal to it.
func (e *Engine) ignores(c *Cycle, w *wall, headLen float64) bool {
	return w.owner == c.ID && w.headDistance+headLen < e.phys.Trail.SelfGraceDistance
}

// probe queries the index around the motion prev→next and returns the
// nearest wall and the first wall crossed, if any.
func (e *Engine) probe(c *Cycle, prev, next physics.Point) wallHit {
	hit := wallHit{distance: math.Inf(1)}

	moveLen := physics.Dist(prev, next)
	mid := physics.Lerp(prev, next, 0.5)
	reach := moveLen/2 + e.phys.Rubber.DetectionRadius
	headLen := 0.0
	if last, ok := c.Trail.Last(); ok {
		headLen = physics.Dist(last, next)
	}

	crossT := math.Inf(1)
	crossOwner := ""
	nearestOwner := ""
	for _, id := range e.hash.QueryRange(mid.X, mid.Z, reach) {
		w := &e.walls[id]
		if e.ignores(c, w, headLen) {
			continue
		}
		if t, ok := physics.SweptHit(prev, next, w.seg, 0); ok && t < crossT {
			crossT, crossOwner = t, w.owner
		}
		if d := physics.PointSegmentDistance(next, w.seg); d < hit.distance {
			hit.distance, nearestOwner = d, w.owner
		}
	}

	if !math.IsInf(crossT, 1) {
		hit.crossed = true
		hit.owner = crossOwner
		travel := math.Max(0, crossT*moveLen-stopBackoff)
		if moveLen > 0 {
			hit.stop = physics.Lerp(prev, next, travel/moveLen)
		} else {
			hit.stop = prev
		}
		hit.distance = 0
		return hit
	}
	hit.owner = nearestOwner
	return hit
}

// inSlipstream reports whether the cycle rides close behind another
// cycle's trail, heading the same way.
func (e *Engine) inSlipstream(c *Cycle) bool {
	cfg := e.phys.Slipstream
	if cfg.Radius <= 0 || cfg.BoostMultiplier <= 1 {
		return false
	}
	p := c.Position()
	for _, id := range e.hash.QueryRange(p.X, p.Z, cfg.Radius) {
		w := &e.walls[id]
		if w.owner == "" || w.owner == c.ID {
			continue
		}
		d := physics.PointSegmentDistance(p, w.seg)
		if d <= e.phys.Rubber.MinDistance || d > cfg.Radius {
			continue
		}
		sx, sz := w.seg.B.X-w.seg.A.X, w.seg.B.Z-w.seg.A.Z
		if math.Hypot(sx, sz) < physics.Epsilon {
			continue
		}
		diff := physics.NormalizeAngle(physics.Heading(c.DirX, c.DirZ) - physics.Heading(sx, sz))
		if math.Abs(diff) <= cfg.MaxAngle {
			return true
		}
	}
	return false
}

// resolveCycleContacts runs the cycle-to-cycle pass over every cycle that
// was active at the start of the tick. Every overlapping pair is found
// first; deaths are committed afterwards so both cycles of a pair die
// regardless of update order.
func (e *Engine) resolveCycleContacts(out *TickOutcome) {
	if len(e.active) < 2 {
		return
	}
	radius := e.phys.Cycle.CollisionRadius

	e.positions = e.positions[:0]
	for _, c := range e.active {
		e.positions = append(e.positions, [2]float64{c.Body.X, c.Body.Z})
	}

	type contact struct{ victim, partner *Cycle }
	var contacts []contact
	for _, pair := range e.sap.Update(e.positions, radius/2, nil) {
		a, b := e.active[pair.A], e.active[pair.B]
		if !physics.CirclesOverlap(a.Body.X, a.Body.Z, b.Body.X, b.Body.Z, radius) {
			continue
		}
		contacts = append(contacts, contact{a, b}, contact{b, a})
	}

	for _, ct := range contacts {
		if !ct.victim.Alive() {
			continue
		}
		e.kill(ct.victim, CauseCycle, ct.partner.ID, out)
	}
}

// Clearance returns the free distance ahead of a cycle along its heading,
// up to maxDist. AI controllers consume it.
func (e *Engine) Clearance(cycleID string, maxDist float64) (float64, bool) {
	return e.ClearanceAt(cycleID, 0, maxDist)
}

// ClearanceAt is Clearance along the heading rotated by angle radians,
// counter-clockwise seen from above.
func (e *Engine) ClearanceAt(cycleID string, angle, maxDist float64) (float64, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	c, ok := e.dir.Cycle(cycleID)
	if !ok || !c.Alive() {
		return 0, false
	}
	dx, dz := c.DirX, c.DirZ
	if angle != 0 {
		dx, dz = physics.Rotate(dx, dz, angle)
	}
	start := c.Position()
	end := physics.Point{X: start.X + dx*maxDist, Z: start.Z + dz*maxDist}
	ray := physics.Segment{A: start, B: end}

	best := maxDist
	headLen := c.headLength()
	for _, seg := range e.obstacles {
		best = clearanceAlong(ray, seg, maxDist, best)
	}
	for _, other := range e.order {
		for _, s := range other.Trail.Segments() {
			if other == c && s.HeadDistance+headLen < e.phys.Trail.SelfGraceDistance {
				continue
			}
			best = clearanceAlong(ray, s.Segment, maxDist, best)
		}
		if other != c && other.Alive() {
			if last, ok := other.Trail.Last(); ok {
				best = clearanceAlong(ray, physics.Segment{A: last, B: other.Position()}, maxDist, best)
			}
		}
	}
	return best, true
}

func clearanceAlong(ray, seg physics.Segment, maxDist, best float64) float64 {
	if p, ok := physics.SegmentIntersect(ray, seg); ok {
		if d := physics.Dist(ray.A, p); d < best {
			return d
		}
	}
	return math.Min(best, maxDist)
}
