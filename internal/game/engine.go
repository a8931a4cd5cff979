package game

import (
	"errors"
	"fmt"
	"log"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/PropertySightlines/cyber-cycles-sub001/internal/config"
	"github.com/PropertySightlines/cyber-cycles-sub001/internal/game/physics"
	"github.com/PropertySightlines/cyber-cycles-sub001/internal/game/rubber"
	"github.com/PropertySightlines/cyber-cycles-sub001/internal/game/spatial"
)

var (
	// ErrUnknownCycle is returned for ids the engine does not know.
	ErrUnknownCycle = errors.New("unknown cycle")
	// ErrCapacity is returned when the arena is full.
	ErrCapacity = errors.New("arena full")
	// ErrDuplicateID is returned when a cycle id is already taken.
	ErrDuplicateID = errors.New("duplicate cycle id")
)

// EngineConfig bundles everything the engine is built from.
type EngineConfig struct {
	Physics config.Physics
	Spatial config.SpatialConfig
	Limits  config.ResourceLimits
	Seed    int64 // 0 picks a time-based seed
}

// DefaultEngineConfig returns the classic physics with default limits.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Physics: config.DefaultPhysics(),
		Spatial: config.DefaultSpatial(),
		Limits:  config.DefaultLimits(),
	}
}

// InputCommand is an input intent addressed to one cycle.
type InputCommand struct {
	CycleID string
	Input   Input
}

// CycleOptions describes a cycle to add. A nil Spawn picks a spawn slot.
type CycleOptions struct {
	ID         string
	Owner      string
	Color      string
	Controller Controller
	Spawn      *physics.Point
	DirX, DirZ float64
}

// wall is one entry of the per-tick segment set.
type wall struct {
	seg          physics.Segment
	owner        string  // "" for static walls
	headDistance float64 // trail length from seg.B to the owner's newest point
}

// Engine runs the deterministic per-tick simulation. Step is the only
// mutator of cycle state during play; everything else either queues input
// or overwrites state between ticks.
type Engine struct {
	mu sync.RWMutex

	phys   config.Physics
	limits config.ResourceLimits
	rubber *rubber.Engine

	dir       *Directory
	order     []*Cycle // sorted by id; the update order
	obstacles []physics.Segment

	// Per-tick spatial state, rebuilt before any collision query.
	hash      *spatial.Hash
	walls     []wall
	sap       *spatial.SweepAndPrune
	positions [][2]float64
	active    []*Cycle

	inputs  *spatial.Queue[InputCommand]
	drained []InputCommand

	tick    uint64
	round   roundState
	rng     *rand.Rand
	seed    int64
	pending []Event

	snapshots   *SnapshotPool
	eventLog    *EventLog
	leaderboard *Leaderboard
}

// NewEngine creates an engine with the arena border registered as static
// walls.
func NewEngine(cfg EngineConfig) *Engine {
	if cfg.Limits.MaxCycles <= 0 {
		cfg.Limits = config.DefaultLimits()
	}
	if cfg.Spatial.CellSize <= 0 {
		cfg.Spatial = config.DefaultSpatial()
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	e := &Engine{
		phys:        cfg.Physics,
		limits:      cfg.Limits,
		rubber:      rubber.NewEngine(cfg.Physics.Rubber),
		dir:         NewDirectory(),
		hash:        spatial.NewHash(cfg.Spatial.CellSize, 1024),
		sap:         spatial.NewSweepAndPrune(cfg.Limits.MaxCycles),
		inputs:      spatial.NewQueue[InputCommand](cfg.Limits.InputQueueSize),
		rng:         rand.New(rand.NewSource(seed)),
		seed:        seed,
		snapshots:   NewSnapshotPool(cfg.Limits.MaxCycles),
		eventLog:    NewEventLog(),
		leaderboard: NewLeaderboard(),
	}

	if h := cfg.Physics.Arena.HalfExtent; h > 0 {
		for i, seg := range physics.ArenaWalls(h) {
			e.addObstacleLocked(fmt.Sprintf("arena-%d", i), seg)
		}
	}
	return e
}

// Physics returns the engine's configuration.
func (e *Engine) Physics() config.Physics { return e.phys }

// Seed returns the RNG seed used for spawn placement.
func (e *Engine) Seed() int64 { return e.seed }

// Tick returns the number of completed steps.
func (e *Engine) Tick() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.tick
}

// AddObstacle registers a static wall segment.
func (e *Engine) AddObstacle(id string, seg physics.Segment) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !physics.IsFinite(seg.A.X, seg.A.Z, seg.B.X, seg.B.Z) {
		return fmt.Errorf("obstacle %s: non-finite coordinates", id)
	}
	if !e.addObstacleLocked(id, seg) {
		return fmt.Errorf("obstacle %s: %w", id, ErrDuplicateID)
	}
	return nil
}

func (e *Engine) addObstacleLocked(id string, seg physics.Segment) bool {
	if !e.dir.AddObstacle(id, seg) {
		return false
	}
	e.obstacles = e.dir.Obstacles()
	return true
}

// Join adds a cycle with a fresh uuid at a spawn slot.
func (e *Engine) Join(owner, color string, ctl Controller) (CycleState, error) {
	return e.AddCycle(CycleOptions{
		ID:         uuid.NewString(),
		Owner:      owner,
		Color:      color,
		Controller: ctl,
	})
}

// AddCycle adds a cycle. It spawns alive; its trail starts at the spawn point.
func (e *Engine) AddCycle(opts CycleOptions) (CycleState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	if _, exists := e.dir.Cycle(opts.ID); exists {
		return CycleState{}, fmt.Errorf("add cycle %s: %w", opts.ID, ErrDuplicateID)
	}
	if len(e.order) >= e.limits.MaxCycles {
		return CycleState{}, fmt.Errorf("add cycle %s: %w", opts.ID, ErrCapacity)
	}

	c := newCycle(opts.ID, opts.Owner, opts.Color, opts.Controller, e.phys, e.rubber.NewState())
	if opts.Spawn != nil && physics.IsFinite(opts.Spawn.X, opts.Spawn.Z) {
		dx, dz := opts.DirX, opts.DirZ
		if dx == 0 && dz == 0 {
			dx = 1
		}
		c.place(*opts.Spawn, dx, dz)
	} else {
		p, dx, dz := e.spawnSlot()
		c.place(p, dx, dz)
	}

	e.dir.AddCycle(c)
	e.order = e.dir.Cycles()
	e.leaderboard.Update(c)
	e.pending = append(e.pending, Event{
		Type:    EventTypeJoin,
		CycleID: c.ID,
		X:       c.Body.X,
		Z:       c.Body.Z,
		Detail:  c.Owner,
	})
	log.Printf("🏍️ Cycle %s joined (owner=%s, %s)", c.ID, c.Owner, c.Controller)
	return ToState(c), nil
}

// RemoveCycle takes a cycle out of the arena together with its trail.
func (e *Engine) RemoveCycle(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.removeCycleLocked(id)
}

func (e *Engine) removeCycleLocked(id string) error {
	c, ok := e.dir.Cycle(id)
	if !ok {
		return fmt.Errorf("remove cycle %s: %w", id, ErrUnknownCycle)
	}
	e.dir.Remove(id)
	e.order = e.dir.Cycles()
	e.leaderboard.Remove(id)
	e.pending = append(e.pending, Event{Type: EventTypeLeave, CycleID: id, X: c.Body.X, Z: c.Body.Z})
	return nil
}

// SubmitInput queues an input intent for the next tick. Safe to call from
// any goroutine; returns false when the queue is full.
func (e *Engine) SubmitInput(cycleID string, in Input) bool {
	return e.inputs.TryPush(InputCommand{CycleID: cycleID, Input: in})
}

// SetInput applies an input immediately (same goroutine as Step).
func (e *Engine) SetInput(cycleID string, in Input) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.dir.Cycle(cycleID)
	if !ok {
		return fmt.Errorf("set input %s: %w", cycleID, ErrUnknownCycle)
	}
	c.SetInput(in)
	return nil
}

// SetController changes who drives a cycle.
func (e *Engine) SetController(cycleID string, ctl Controller) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.dir.SetController(cycleID, ctl) {
		return fmt.Errorf("set controller %s: %w", cycleID, ErrUnknownCycle)
	}
	return nil
}

// CycleIDs returns the ids of cycles driven by ctl.
func (e *Engine) CycleIDs(ctl Controller) []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.dir.IDsByController(ctl)
}

// Respawn requests a respawn for a dead cycle. It is placed at a spawn slot
// now and becomes alive on the next tick.
func (e *Engine) Respawn(cycleID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.dir.Cycle(cycleID)
	if !ok {
		return fmt.Errorf("respawn %s: %w", cycleID, ErrUnknownCycle)
	}
	if err := e.beginRespawn(c); err != nil {
		e.pending = append(e.pending, Event{
			Type:    EventTypeTransitionRejected,
			CycleID: c.ID,
			Detail:  err.Error(),
		})
		return fmt.Errorf("respawn %s: %w", cycleID, err)
	}
	return nil
}

// Step advances the simulation by dt seconds and reports what happened.
// A step always runs to completion.
func (e *Engine) Step(dt float64) TickOutcome {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.step(dt)
}

func (e *Engine) step(dt float64) TickOutcome {
	e.tick++
	out := TickOutcome{Tick: e.tick}
	if len(e.pending) > 0 {
		for _, ev := range e.pending {
			ev.Tick = e.tick
			out.Events = append(out.Events, ev)
		}
		e.pending = e.pending[:0]
	}
	if !(dt > 0) || math.IsInf(dt, 0) {
		e.produceSnapshot()
		return out
	}

	e.applyInputs()
	e.finishRespawns(&out)

	// Committed pose before this tick, for interpolation.
	for _, c := range e.order {
		c.commitPrev()
	}

	e.rebuildIndex()

	e.active = e.active[:0]
	for _, c := range e.order {
		if c.Alive() && !c.excluded {
			e.active = append(e.active, c)
		}
	}

	for _, c := range e.order {
		if !c.Alive() {
			c.statusTime += dt
			continue
		}
		if c.excluded {
			continue
		}
		c.statusTime += dt
		e.updateCycle(c, dt, &out)
	}

	e.resolveCycleContacts(&out)
	e.updateRound(dt, &out)

	e.eventLog.EmitOutcome(out)
	e.produceSnapshot()
	return out
}

// applyInputs drains queued intents; the latest intent per cycle wins.
func (e *Engine) applyInputs() {
	e.drained = e.inputs.DrainTo(e.drained[:0])
	for _, cmd := range e.drained {
		if c, ok := e.dir.Cycle(cmd.CycleID); ok {
			c.SetInput(cmd.Input)
		}
	}
}

// rebuildIndex builds this tick's segment set: static walls, every trail,
// and the live head segment from each active cycle's newest trail point to
// its position. Cycles with non-finite state are restored to their last
// committed pose and sit out the tick.
func (e *Engine) rebuildIndex() {
	e.hash.Clear()
	e.walls = e.walls[:0]

	for _, seg := range e.obstacles {
		e.walls = append(e.walls, wall{seg: seg})
	}

	for _, c := range e.order {
		c.excluded = false
		if !physics.IsFinite(c.Body.X, c.Body.Z, c.DirX, c.DirZ, c.Speed) {
			c.excluded = true
			log.Printf("⚠️ Cycle %s has non-finite state; skipping this tick", c.ID)
			e.repairCycle(c)
			continue
		}
		for _, s := range c.Trail.Segments() {
			e.walls = append(e.walls, wall{seg: s.Segment, owner: c.ID, headDistance: s.HeadDistance})
		}
		if !c.Alive() {
			continue
		}
		if last, ok := c.Trail.Last(); ok && physics.Dist(last, c.Position()) >= physics.Epsilon {
			e.walls = append(e.walls, wall{
				seg:   physics.Segment{A: last, B: c.Position()},
				owner: c.ID,
			})
		}
	}

	for i, w := range e.walls {
		e.hash.InsertSegment(uint32(i), w.seg.A.X, w.seg.A.Z, w.seg.B.X, w.seg.B.Z)
	}
}

// repairCycle puts a cycle with corrupted numbers back on its last
// finite pose.
func (e *Engine) repairCycle(c *Cycle) {
	x, z := c.prevX, c.prevZ
	if !physics.IsFinite(x, z) {
		if last, ok := c.Trail.Last(); ok {
			x, z = last.X, last.Z
		} else {
			x, z = 0, 0
		}
	}
	c.Body.Teleport(x, z)
	if !physics.IsFinite(c.DirX, c.DirZ) {
		c.DirX, c.DirZ = physics.Normalize(c.prevDirX, c.prevDirZ)
	}
	if !physics.IsFinite(c.Speed) {
		c.Speed = e.phys.Cycle.BaseSpeed
	}
}

// updateCycle runs the per-tick pipeline for one active cycle: steer,
// speed, integrate, query, collide, rubber, commit, trail.
func (e *Engine) updateCycle(c *Cycle, dt float64, out *TickOutcome) {
	turnStarted := c.steer(dt, e.phys.Cycle.TurnSpeed)

	boost := 1.0
	slip := e.inSlipstream(c)
	switch {
	case slip && c.Status == StatusAlive:
		if c.Transition(StatusBoosting) == nil {
			out.Events = append(out.Events, Event{Type: EventTypeBoostStart, Tick: e.tick, CycleID: c.ID, X: c.Body.X, Z: c.Body.Z})
		}
	case !slip && c.Status == StatusBoosting:
		if c.Transition(StatusAlive) == nil {
			out.Events = append(out.Events, Event{Type: EventTypeBoostEnd, Tick: e.tick, CycleID: c.ID, X: c.Body.X, Z: c.Body.Z})
		}
	}
	if c.Status == StatusBoosting && e.phys.Slipstream.BoostMultiplier > 0 {
		boost = e.phys.Slipstream.BoostMultiplier
	}
	c.updateSpeed(dt, e.phys.Cycle, boost)

	prev := c.Position()
	c.Body.ApplyVelocity(c.DirX*c.Speed, c.DirZ*c.Speed, dt)
	c.Body.Step(0, 0, dt)
	next := c.Position()
	if !physics.IsFinite(next.X, next.Z) {
		c.Body.Teleport(prev.X, prev.Z)
		c.excluded = true
		return
	}

	hit := e.probe(c, prev, next)
	if hit.crossed {
		next = hit.stop
		c.Body.X, c.Body.Z = next.X, next.Z
	}

	wasGrinding := c.Rubber.Grinding
	res := e.rubber.Resolve(&c.Rubber, rubber.Contact{
		Distance:    hit.distance,
		Crossed:     hit.crossed,
		TurnStarted: turnStarted,
	}, dt)
	c.LastRubber = res

	if res.IsGrinding && !wasGrinding {
		out.Events = append(out.Events, Event{
			Type: EventTypeGrind, Tick: e.tick, CycleID: c.ID,
			OtherID: hit.owner, X: next.X, Z: next.Z, Rubber: c.Rubber.Rubber,
		})
	}

	if !res.Survived {
		e.kill(c, e.causeFor(c, hit.owner), hit.owner, out)
		return
	}
	c.SetSpeed(c.Speed*res.SpeedFactor, e.phys.Cycle.MaxSpeed)

	if !physics.CheckArenaBounds(next.X, next.Z, e.phys.Arena.HalfExtent) && e.phys.Arena.HalfExtent > 0 {
		e.kill(c, CauseArena, "", out)
		return
	}

	c.emitTrail(physics.Dist(prev, next), e.phys.Trail.Spacing)
}

func (e *Engine) causeFor(c *Cycle, owner string) DeathCause {
	switch owner {
	case "":
		return CauseWall
	case c.ID:
		return CauseSelf
	default:
		return CauseTrail
	}
}

// kill commits a death and credits the killer.
func (e *Engine) kill(c *Cycle, cause DeathCause, killerID string, out *TickOutcome) {
	if c.Transition(StatusDead) != nil {
		return
	}
	c.Speed = 0
	c.Input = Input{}
	c.wasTurning = false
	c.Deaths++
	e.leaderboard.Update(c)

	if killerID != "" && killerID != c.ID {
		if killer, ok := e.dir.Cycle(killerID); ok {
			killer.Kills++
			e.leaderboard.Update(killer)
		}
	}

	out.Events = append(out.Events, Event{
		Type:    EventTypeDeath,
		Tick:    e.tick,
		CycleID: c.ID,
		OtherID: killerID,
		Cause:   cause,
		X:       c.Body.X,
		Z:       c.Body.Z,
		Rubber:  c.Rubber.Rubber,
	})
}

// Cycle returns the serialized state of one cycle.
func (e *Engine) Cycle(id string) (CycleState, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	c, ok := e.dir.Cycle(id)
	if !ok {
		return CycleState{}, false
	}
	return ToState(c), true
}

// States returns every cycle's serialized state in update order.
func (e *Engine) States() []CycleState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]CycleState, len(e.order))
	for i, c := range e.order {
		out[i] = ToState(c)
	}
	return out
}

// RubberResult returns the last rubber outcome of a cycle.
func (e *Engine) RubberResult(id string) (rubber.Result, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	c, ok := e.dir.Cycle(id)
	if !ok {
		return rubber.Result{}, false
	}
	return c.LastRubber, true
}

// produceSnapshot copies committed state into the triple buffer.
func (e *Engine) produceSnapshot() {
	snap := e.snapshots.AcquireWrite()
	snap.Tick = e.tick
	snap.Round = e.round.number
	snap.RoundActive = e.round.active
	snap.HalfExtent = e.phys.Arena.HalfExtent
	for _, c := range e.order {
		snap.appendCycle(c)
	}
	e.snapshots.PublishWrite()
}

// Snapshot returns a detached copy of the latest published snapshot (nil
// before the first tick).
func (e *Engine) Snapshot() *GameSnapshot {
	var snap *GameSnapshot
	e.snapshots.Read(func(s *GameSnapshot) {
		snap = s.Clone()
	})
	return snap
}

// Snapshots returns the snapshot pool.
func (e *Engine) Snapshots() *SnapshotPool {
	return e.snapshots
}

// Leaderboard returns the leaderboard.
func (e *Engine) Leaderboard() *Leaderboard {
	return e.leaderboard
}

// EventLog returns the engine's event log.
func (e *Engine) EventLog() *EventLog {
	return e.eventLog
}

// StartEventLog begins writing tick outcomes to filePath.
func (e *Engine) StartEventLog(filePath string) error {
	return e.eventLog.Start(filePath)
}

// StopEventLog flushes and closes the event log.
func (e *Engine) StopEventLog() {
	e.eventLog.Stop()
}

// EngineStats is a point-in-time summary for monitoring.
type EngineStats struct {
	Tick        uint64            `json:"tick"`
	Cycles      int               `json:"cycles"`
	Alive       int               `json:"alive"`
	Obstacles   int               `json:"obstacles"`
	Walls       int               `json:"walls"`
	Round       int               `json:"round"`
	RoundActive bool              `json:"roundActive"`
	Preset      string            `json:"preset"`
	InputQueue  int               `json:"inputQueue"`
	InputDrops  uint64            `json:"inputDrops"`
	Spatial     spatial.HashStats `json:"spatial"`
	EventLog    EventLogStats     `json:"eventLog"`
}

// Stats returns engine statistics.
func (e *Engine) Stats() EngineStats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	alive := 0
	for _, c := range e.order {
		if c.Alive() {
			alive++
		}
	}
	return EngineStats{
		Tick:        e.tick,
		Cycles:      len(e.order),
		Alive:       alive,
		Obstacles:   e.dir.Count(KindObstacle),
		Walls:       len(e.walls),
		Round:       e.round.number,
		RoundActive: e.round.active,
		Preset:      e.phys.Name,
		InputQueue:  e.inputs.Len(),
		InputDrops:  e.inputs.Dropped(),
		Spatial:     e.hash.Stats(),
		EventLog:    e.eventLog.Stats(),
	}
}
