// Package rubber converts wall proximity into a survive/die decision and a
// speed penalty through a continuous per-cycle budget.
//
// Each tick the caller reports the distance to the nearest wall. Inside
// DetectionRadius the budget decays exponentially (faster the closer the
// wall); inside MinDistance the cycle must pay for its penetration or die.
// Clear of walls the budget regenerates, slowed by the malus that a turn
// started mid-grind applies.
package rubber

import (
	"math"

	"github.com/PropertySightlines/cyber-cycles-sub001/internal/config"
)

// State is the per-cycle rubber budget.
type State struct {
	Rubber     float64 `json:"rubber" msgpack:"rubber"`
	Malus      float64 `json:"malus" msgpack:"malus"`
	MalusTimer float64 `json:"malusTimer" msgpack:"malusTimer"`
	Ceiling    float64 `json:"ceiling" msgpack:"ceiling"` // server-side acceptance ceiling
	Grinding   bool    `json:"grinding" msgpack:"grinding"`
}

// Contact describes one tick of wall proximity for a cycle.
type Contact struct {
	Distance    float64 // distance to the nearest wall; +Inf when none is near
	Crossed     bool    // the swept path reached a wall this tick
	TurnStarted bool    // a turn began this tick
}

// Result is the outcome of resolving one tick.
type Result struct {
	Distance      float64
	IsGrinding    bool
	Collided      bool
	Survived      bool
	Consumed      float64 // rubber spent on decay and penetration
	Required      float64 // rubber the penetration demanded
	SpeedFactor   float64 // multiply speed by this
	Effectiveness float64
	MalusApplied  bool
}

// Engine applies an immutable rubber configuration.
type Engine struct {
	cfg config.Rubber
}

// NewEngine creates an engine. A server ceiling below the client maximum is
// raised to it.
func NewEngine(cfg config.Rubber) *Engine {
	if cfg.MaxRubber < 0 {
		cfg.MaxRubber = 0
	}
	if cfg.ServerCeiling < cfg.MaxRubber {
		cfg.ServerCeiling = cfg.MaxRubber
	}
	if cfg.MalusFactor <= 0 || cfg.MalusFactor > 1 {
		cfg.MalusFactor = 1
	}
	return &Engine{cfg: cfg}
}

// Config returns the engine configuration.
func (e *Engine) Config() config.Rubber {
	return e.cfg
}

// NewState returns a full budget.
func (e *Engine) NewState() State {
	return State{
		Rubber:  e.cfg.MaxRubber,
		Malus:   1,
		Ceiling: e.cfg.ServerCeiling,
	}
}

// Effectiveness is rubber/max clamped to [0,1].
func (e *Engine) Effectiveness(s *State) float64 {
	if e.cfg.MaxRubber <= 0 {
		return 0
	}
	return clamp01(s.Rubber / e.cfg.MaxRubber)
}

// DecayFactor is the fraction of rubber lost to proximity over dt.
// Zero outside DetectionRadius, approaching 1 − e^(−ProximityFactor·RubberSpeed·dt)
// at contact.
func (e *Engine) DecayFactor(distance, dt float64) float64 {
	if e.cfg.DetectionRadius <= 0 || distance >= e.cfg.DetectionRadius || dt <= 0 {
		return 0
	}
	proximity := clamp01(1 - math.Max(distance, 0)/e.cfg.DetectionRadius)
	return 1 - math.Exp(-e.cfg.ProximityFactor*proximity*e.cfg.RubberSpeed*dt)
}

// RequiredRubber is the penetration cost over dt. Zero at MinDistance and
// ConsumptionRate·dt at contact.
func (e *Engine) RequiredRubber(distance, dt float64) float64 {
	if e.cfg.MinDistance <= 0 || distance >= e.cfg.MinDistance {
		return 0
	}
	depth := clamp01((e.cfg.MinDistance - math.Max(distance, 0)) / e.cfg.MinDistance)
	return depth * e.cfg.ConsumptionRate * dt
}

// Resolve advances the state by one tick.
func (e *Engine) Resolve(s *State, c Contact, dt float64) Result {
	e.sanitize(s)

	res := Result{
		Distance:    c.Distance,
		Survived:    true,
		SpeedFactor: 1,
	}
	if dt <= 0 || math.IsNaN(dt) {
		res.Effectiveness = e.Effectiveness(s)
		res.IsGrinding = s.Grinding
		return res
	}

	dist := c.Distance
	if c.Crossed || math.IsNaN(dist) {
		dist = 0
	}
	wasGrinding := s.Grinding

	// Malus countdown, then a fresh malus for a turn started mid-grind.
	if s.MalusTimer > 0 {
		s.MalusTimer -= dt
		if s.MalusTimer <= 0 {
			s.MalusTimer = 0
			s.Malus = 1
		}
	}
	near := dist < e.cfg.DetectionRadius
	if c.TurnStarted && (wasGrinding || near) {
		s.Malus = e.cfg.MalusFactor
		s.MalusTimer = e.cfg.MalusDuration
		res.MalusApplied = true
	}

	before := s.Rubber
	if near {
		s.Rubber -= s.Rubber * e.DecayFactor(dist, dt)
		res.IsGrinding = true
	}

	if dist < e.cfg.MinDistance {
		res.Collided = true
		res.Required = e.RequiredRubber(dist, dt)
		if res.Required > s.Rubber {
			res.Survived = false
			s.Rubber = 0
		} else {
			s.Rubber -= res.Required
			eff := e.Effectiveness(s)
			res.SpeedFactor = 1 - clamp01((1-eff)*e.cfg.GrindSlowdown*dt)
		}
	}

	if !near {
		s.Rubber += e.cfg.RegenRate * s.Malus * dt
	}

	s.Rubber = math.Max(0, math.Min(s.Rubber, e.cfg.MaxRubber))
	s.Grinding = res.IsGrinding
	res.Consumed = math.Max(0, before-s.Rubber)
	res.Effectiveness = e.Effectiveness(s)
	return res
}

// Reset refills the budget and clears the malus.
func (e *Engine) Reset(s *State) {
	*s = e.NewState()
}

// Clamp forces a state back inside its invariants. Used when a value arrives
// from outside the simulation.
func (e *Engine) Clamp(s *State) {
	e.sanitize(s)
}

// AcceptReported reports whether a client-claimed rubber value is within
// what the server will honour.
func (e *Engine) AcceptReported(value float64) bool {
	return !math.IsNaN(value) && value >= 0 && value <= e.cfg.ServerCeiling
}

func (e *Engine) sanitize(s *State) {
	if math.IsNaN(s.Rubber) || s.Rubber < 0 {
		s.Rubber = 0
	}
	if s.Rubber > e.cfg.MaxRubber {
		s.Rubber = e.cfg.MaxRubber
	}
	if math.IsNaN(s.Malus) || s.Malus <= 0 || s.Malus > 1 {
		s.Malus = 1
	}
	if math.IsNaN(s.MalusTimer) || s.MalusTimer < 0 {
		s.MalusTimer = 0
	}
	if s.MalusTimer == 0 {
		s.Malus = 1
	}
	if s.Ceiling < e.cfg.ServerCeiling {
		s.Ceiling = e.cfg.ServerCeiling
	}
}

func clamp01(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
