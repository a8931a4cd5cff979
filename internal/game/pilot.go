package game

import (
	"math"
	"math/rand"
)

// PilotConfig tunes the AI controller.
type PilotConfig struct {
	Lookahead  float64 // Free distance below which the pilot turns away
	ProbeAngle float64 // Side probe angle in radians
	WanderRate float64 // Chance per decision of a random turn in open space
}

// DefaultPilotConfig returns settings that survive the classic arena.
func DefaultPilotConfig() PilotConfig {
	return PilotConfig{
		Lookahead:  25,
		ProbeAngle: math.Pi / 4,
		WanderRate: 0.01,
	}
}

// Pilot steers every ControllerAI cycle through the input queue, exactly as
// a remote player would. It reads the engine under its read lock, so Drive
// may run concurrently with a Runner. Drive itself is not reentrant.
type Pilot struct {
	engine *Engine
	cfg    PilotConfig
	rng    *rand.Rand
	held   map[string]Input
	wander map[string]int // decisions left in a wander turn
}

// NewPilot creates a pilot. The same seed and engine history give the same
// decisions.
func NewPilot(e *Engine, cfg PilotConfig, seed int64) *Pilot {
	if cfg.Lookahead <= 0 {
		cfg = DefaultPilotConfig()
	}
	return &Pilot{
		engine: e,
		cfg:    cfg,
		rng:    rand.New(rand.NewSource(seed)),
		held:   make(map[string]Input),
		wander: make(map[string]int),
	}
}

// Drive makes one decision per AI cycle and returns how many inputs changed.
func (p *Pilot) Drive() int {
	changed := 0
	seen := make(map[string]struct{}, len(p.held))

	for _, id := range p.engine.CycleIDs(ControllerAI) {
		ahead, ok := p.engine.Clearance(id, p.cfg.Lookahead)
		if !ok {
			continue
		}
		seen[id] = struct{}{}

		in := p.decide(id, ahead)
		if in == p.held[id] {
			continue
		}
		if p.engine.SubmitInput(id, in) {
			p.held[id] = in
			changed++
		}
	}

	for id := range p.held {
		if _, ok := seen[id]; !ok {
			delete(p.held, id)
			delete(p.wander, id)
		}
	}
	return changed
}

func (p *Pilot) decide(id string, ahead float64) Input {
	prev := p.held[id]

	if ahead < p.cfg.Lookahead {
		p.wander[id] = 0
		in := Input{TurnLeft: prev.TurnLeft, TurnRight: prev.TurnRight}
		if !prev.Turning() {
			// Pick the open side once and hold it until the way is clear.
			left, _ := p.engine.ClearanceAt(id, p.cfg.ProbeAngle, 2*p.cfg.Lookahead)
			right, _ := p.engine.ClearanceAt(id, -p.cfg.ProbeAngle, 2*p.cfg.Lookahead)
			in = Input{TurnLeft: left >= right, TurnRight: left < right}
		}
		in.Brake = ahead < p.cfg.Lookahead/3
		return in
	}

	if n := p.wander[id]; n > 0 {
		p.wander[id] = n - 1
		return Input{TurnLeft: prev.TurnLeft, TurnRight: prev.TurnRight}
	}

	if p.rng.Float64() < p.cfg.WanderRate {
		p.wander[id] = 5 + p.rng.Intn(20)
		left := p.rng.Intn(2) == 0
		return Input{TurnLeft: left, TurnRight: !left}
	}
	return Input{}
}
