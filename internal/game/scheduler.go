package game

import (
	"math"

	"github.com/PropertySightlines/cyber-cycles-sub001/internal/config"
	"github.com/PropertySightlines/cyber-cycles-sub001/internal/game/physics"
)

// Stepper advances a simulation by one fixed step.
type Stepper interface {
	Step(dt float64) TickOutcome
}

// Frame reports what one Advance call did.
type Frame struct {
	Ticks    int           `json:"ticks"`
	Dropped  int           `json:"dropped"`
	Alpha    float64       `json:"alpha"`
	Outcomes []TickOutcome `json:"-"`
}

// SchedulerStats are cumulative counters.
type SchedulerStats struct {
	FixedDt     float64 `json:"fixedDt"`
	MaxCatchUp  int     `json:"maxCatchUp"`
	Ticks       uint64  `json:"ticks"`
	Dropped     uint64  `json:"dropped"`
	Accumulator float64 `json:"accumulator"`
}

// Scheduler decouples variable frame time from the fixed simulation step.
// Not safe for concurrent use; the Runner owns it.
type Scheduler struct {
	sim        Stepper
	pool       *SnapshotPool
	fixedDt    float64
	maxCatchUp int

	accumulator float64
	ticks       uint64
	dropped     uint64
}

// NewScheduler creates a scheduler driving sim. pool may be nil; when set,
// every Advance stores its alpha there for renderers.
func NewScheduler(sim Stepper, cfg config.Scheduler, pool *SnapshotPool) *Scheduler {
	maxCatchUp := cfg.MaxCatchUpTicks
	if maxCatchUp < 1 {
		maxCatchUp = 1
	}
	return &Scheduler{
		sim:        sim,
		pool:       pool,
		fixedDt:    cfg.FixedDt(),
		maxCatchUp: maxCatchUp,
	}
}

// FixedDt returns the simulation step in seconds.
func (s *Scheduler) FixedDt() float64 { return s.fixedDt }

// Advance adds elapsed seconds of real time and runs as many fixed steps as
// fit, at most MaxCatchUpTicks. Whole steps beyond the cap are dropped so
// the simulation never spirals. Negative or non-finite elapsed is ignored.
func (s *Scheduler) Advance(elapsed float64) Frame {
	if elapsed > 0 && !math.IsInf(elapsed, 0) {
		s.accumulator += elapsed
	}

	var frame Frame
	for s.accumulator >= s.fixedDt && frame.Ticks < s.maxCatchUp {
		frame.Outcomes = append(frame.Outcomes, s.sim.Step(s.fixedDt))
		s.accumulator -= s.fixedDt
		frame.Ticks++
	}

	if s.accumulator >= s.fixedDt {
		excess := math.Floor(s.accumulator / s.fixedDt)
		frame.Dropped = int(excess)
		s.accumulator -= excess * s.fixedDt
		// Float residue can leave the accumulator a hair at or above one step.
		if s.accumulator >= s.fixedDt {
			s.accumulator = math.Nextafter(s.fixedDt, 0)
		}
	}
	if s.accumulator < 0 {
		s.accumulator = 0
	}

	s.ticks += uint64(frame.Ticks)
	s.dropped += uint64(frame.Dropped)

	frame.Alpha = s.accumulator / s.fixedDt
	if frame.Alpha >= 1 {
		frame.Alpha = math.Nextafter(1, 0)
	}
	if s.pool != nil {
		s.pool.SetAlpha(frame.Alpha)
	}
	return frame
}

// Stats returns cumulative counters.
func (s *Scheduler) Stats() SchedulerStats {
	return SchedulerStats{
		FixedDt:     s.fixedDt,
		MaxCatchUp:  s.maxCatchUp,
		Ticks:       s.ticks,
		Dropped:     s.dropped,
		Accumulator: s.accumulator,
	}
}

// RenderCycle is one cycle as a renderer draws it.
type RenderCycle struct {
	ID       string
	Color    string
	PrevX    float64
	PrevZ    float64
	X        float64
	Z        float64
	PrevDirX float64
	PrevDirZ float64
	DirX     float64
	DirZ     float64
	Alive    bool
	State    string
	Trail    []physics.Point
}

// RenderFrame is the renderer's view of the latest snapshot.
type RenderFrame struct {
	Tick   uint64
	Alpha  float64
	Cycles []RenderCycle
}

// RenderFrame builds a render frame from the latest snapshot and alpha.
// ok is false before the first tick. The frame is a copy and safe to keep.
func (p *SnapshotPool) RenderFrame() (RenderFrame, bool) {
	var frame RenderFrame
	ok := p.Read(func(snap *GameSnapshot) {
		frame = RenderFrame{
			Tick:   snap.Tick,
			Alpha:  p.Alpha(),
			Cycles: make([]RenderCycle, len(snap.Cycles)),
		}
		for i := range snap.Cycles {
			c := &snap.Cycles[i]
			trail := make([]physics.Point, len(c.Trail))
			copy(trail, c.Trail)
			frame.Cycles[i] = RenderCycle{
				ID:       c.ID,
				Color:    c.Color,
				PrevX:    c.PrevX,
				PrevZ:    c.PrevZ,
				X:        c.X,
				Z:        c.Z,
				PrevDirX: c.PrevDirX,
				PrevDirZ: c.PrevDirZ,
				DirX:     c.DirX,
				DirZ:     c.DirZ,
				Alive:    c.Alive,
				State:    c.Status,
				Trail:    trail,
			}
		}
	})
	return frame, ok
}
