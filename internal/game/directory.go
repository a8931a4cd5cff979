package game

import (
	"sort"

	"github.com/mlange-42/ark/ecs"

	"github.com/PropertySightlines/cyber-cycles-sub001/internal/game/physics"
)

// Kind is the entity type stored in the directory.
type Kind uint8

const (
	KindCycle Kind = iota
	KindObstacle
)

// Identity is attached to every directory entity.
type Identity struct {
	ID   string
	Kind Kind
}

// Control marks who drives a cycle entity.
type Control struct {
	Controller Controller
}

// CycleRef points at the cycle owned by the engine.
type CycleRef struct {
	Cycle *Cycle
}

// Obstacle is a static wall segment.
type Obstacle struct {
	Segment physics.Segment
}

// Directory maps entity ids to their component sets so the engine can run
// batched queries by type or component (all AI cycles, all obstacles).
type Directory struct {
	world *ecs.World

	cycleMapper    *ecs.Map3[Identity, Control, CycleRef]
	obstacleMapper *ecs.Map2[Identity, Obstacle]

	identityMap *ecs.Map[Identity]
	controlMap  *ecs.Map[Control]
	cycleMap    *ecs.Map[CycleRef]
	obstacleMap *ecs.Map[Obstacle]

	cycleFilter    *ecs.Filter3[Identity, Control, CycleRef]
	obstacleFilter *ecs.Filter2[Identity, Obstacle]

	byID map[string]ecs.Entity
}

// NewDirectory creates an empty directory.
func NewDirectory() *Directory {
	world := ecs.NewWorld()
	w := &world
	return &Directory{
		world:          w,
		cycleMapper:    ecs.NewMap3[Identity, Control, CycleRef](w),
		obstacleMapper: ecs.NewMap2[Identity, Obstacle](w),
		identityMap:    ecs.NewMap[Identity](w),
		controlMap:     ecs.NewMap[Control](w),
		cycleMap:       ecs.NewMap[CycleRef](w),
		obstacleMap:    ecs.NewMap[Obstacle](w),
		cycleFilter:    ecs.NewFilter3[Identity, Control, CycleRef](w),
		obstacleFilter: ecs.NewFilter2[Identity, Obstacle](w),
		byID:           make(map[string]ecs.Entity),
	}
}

// AddCycle registers a cycle. Returns false if the id is taken.
func (d *Directory) AddCycle(c *Cycle) bool {
	if _, exists := d.byID[c.ID]; exists {
		return false
	}
	e := d.cycleMapper.NewEntity(
		&Identity{ID: c.ID, Kind: KindCycle},
		&Control{Controller: c.Controller},
		&CycleRef{Cycle: c},
	)
	d.byID[c.ID] = e
	return true
}

// AddObstacle registers a static wall. Returns false if the id is taken.
func (d *Directory) AddObstacle(id string, seg physics.Segment) bool {
	if _, exists := d.byID[id]; exists {
		return false
	}
	e := d.obstacleMapper.NewEntity(
		&Identity{ID: id, Kind: KindObstacle},
		&Obstacle{Segment: seg},
	)
	d.byID[id] = e
	return true
}

// Remove deletes any entity by id.
func (d *Directory) Remove(id string) bool {
	e, ok := d.byID[id]
	if !ok {
		return false
	}
	d.world.RemoveEntity(e)
	delete(d.byID, id)
	return true
}

// Kind returns the type of an entity.
func (d *Directory) Kind(id string) (Kind, bool) {
	e, ok := d.byID[id]
	if !ok || !d.identityMap.Has(e) {
		return 0, false
	}
	return d.identityMap.Get(e).Kind, true
}

// Cycle returns the cycle registered under id.
func (d *Directory) Cycle(id string) (*Cycle, bool) {
	e, ok := d.byID[id]
	if !ok || !d.cycleMap.Has(e) {
		return nil, false
	}
	return d.cycleMap.Get(e).Cycle, true
}

// SetController changes who drives a cycle.
func (d *Directory) SetController(id string, ctl Controller) bool {
	e, ok := d.byID[id]
	if !ok || !d.controlMap.Has(e) {
		return false
	}
	d.controlMap.Get(e).Controller = ctl
	d.cycleMap.Get(e).Cycle.Controller = ctl
	return true
}

// Cycles returns every registered cycle sorted by id.
func (d *Directory) Cycles() []*Cycle {
	var out []*Cycle
	query := d.cycleFilter.Query()
	for query.Next() {
		_, _, ref := query.Get()
		out = append(out, ref.Cycle)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// IDsByController returns the ids of cycles driven by ctl, sorted.
func (d *Directory) IDsByController(ctl Controller) []string {
	var out []string
	query := d.cycleFilter.Query()
	for query.Next() {
		ident, control, _ := query.Get()
		if control.Controller == ctl {
			out = append(out, ident.ID)
		}
	}
	sort.Strings(out)
	return out
}

// Obstacles returns every static wall sorted by id.
func (d *Directory) Obstacles() []physics.Segment {
	type entry struct {
		id  string
		seg physics.Segment
	}
	var entries []entry
	query := d.obstacleFilter.Query()
	for query.Next() {
		ident, obs := query.Get()
		entries = append(entries, entry{ident.ID, obs.Segment})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].id < entries[j].id })

	out := make([]physics.Segment, len(entries))
	for i, en := range entries {
		out[i] = en.seg
	}
	return out
}

// Count returns the number of entities of the given kind.
func (d *Directory) Count(kind Kind) int {
	n := 0
	switch kind {
	case KindCycle:
		query := d.cycleFilter.Query()
		n = query.Count()
		query.Close()
	case KindObstacle:
		query := d.obstacleFilter.Query()
		n = query.Count()
		query.Close()
	}
	return n
}

// IDsByKind returns the ids of every entity of the given kind, sorted.
func (d *Directory) IDsByKind(kind Kind) []string {
	var out []string
	switch kind {
	case KindCycle:
		query := d.cycleFilter.Query()
		for query.Next() {
			ident, _, _ := query.Get()
			out = append(out, ident.ID)
		}
	case KindObstacle:
		query := d.obstacleFilter.Query()
		for query.Next() {
			ident, _ := query.Get()
			out = append(out, ident.ID)
		}
	}
	sort.Strings(out)
	return out
}

// Each calls fn for every cycle in id order until fn returns false.
func (d *Directory) Each(fn func(c *Cycle, ctl Controller) bool) {
	for _, c := range d.Cycles() {
		if !fn(c, c.Controller) {
			return
		}
	}
}
