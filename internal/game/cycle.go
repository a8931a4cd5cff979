package game

import (
	"log"
	"math"

	"github.com/PropertySightlines/cyber-cycles-sub001/internal/config"
	"github.com/PropertySightlines/cyber-cycles-sub001/internal/game/physics"
	"github.com/PropertySightlines/cyber-cycles-sub001/internal/game/rubber"
)

// Controller says who drives a cycle.
type Controller uint8

const (
	ControllerLocal Controller = iota
	ControllerRemote
	ControllerAI
)

// String returns the controller name.
func (c Controller) String() string {
	switch c {
	case ControllerLocal:
		return "local"
	case ControllerRemote:
		return "remote"
	case ControllerAI:
		return "ai"
	default:
		return "unknown"
	}
}

// Input holds the three per-tick intents of a cycle.
type Input struct {
	TurnLeft  bool `json:"turnLeft" msgpack:"turnLeft"`
	TurnRight bool `json:"turnRight" msgpack:"turnRight"`
	Brake     bool `json:"brake" msgpack:"brake"`
}

// Normalized drops both turn flags when both are held.
func (in Input) Normalized() Input {
	if in.TurnLeft && in.TurnRight {
		in.TurnLeft, in.TurnRight = false, false
	}
	return in
}

// Turning reports whether either turn flag is held.
func (in Input) Turning() bool {
	return in.TurnLeft || in.TurnRight
}

// Cycle is a light-cycle and everything it owns.
type Cycle struct {
	ID         string
	Owner      string
	Color      string
	Controller Controller

	Body       physics.Verlet
	DirX, DirZ float64
	Speed      float64
	Status     Status
	Input      Input
	Rubber     rubber.State
	Trail      *Trail
	LastRubber rubber.Result

	Kills  int
	Deaths int
	Wins   int

	// committed state before the last tick, for render interpolation
	prevX, prevZ       float64
	prevDirX, prevDirZ float64

	wasTurning     bool
	sinceLastPoint float64
	statusTime     float64 // seconds spent in the current status
	excluded       bool    // dropped from spatial queries this tick
}

func newCycle(id, owner, color string, ctl Controller, phys config.Physics, rub rubber.State) *Cycle {
	if owner == "" {
		owner = "AI"
	}
	return &Cycle{
		ID:         id,
		Owner:      owner,
		Color:      color,
		Controller: ctl,
		Body:       physics.NewVerlet(0, 0, 0),
		DirX:       1,
		Speed:      phys.Cycle.BaseSpeed,
		Status:     StatusAlive,
		Rubber:     rub,
		Trail:      NewTrail(id, phys.Trail),
	}
}

// Alive reports whether the cycle is moving and collidable.
func (c *Cycle) Alive() bool { return c.Status.Active() }

// Position returns the committed position.
func (c *Cycle) Position() physics.Point { return c.Body.Position() }

// PrevPosition returns the position committed by the tick before last.
func (c *Cycle) PrevPosition() physics.Point { return physics.Point{X: c.prevX, Z: c.prevZ} }

// Direction returns the unit heading.
func (c *Cycle) Direction() (float64, float64) { return c.DirX, c.DirZ }

// SetDirection normalizes and stores a heading.
func (c *Cycle) SetDirection(x, z float64) {
	c.DirX, c.DirZ = physics.Normalize(x, z)
}

// SetSpeed stores a speed clamped to [0, max].
func (c *Cycle) SetSpeed(v, max float64) {
	if math.IsNaN(v) {
		v = 0
	}
	c.Speed = physics.Clamp(v, 0, max)
}

// SetInput replaces the held intents. Both turn flags together cancel out.
func (c *Cycle) SetInput(in Input) {
	c.Input = in.Normalized()
}

// Transition moves the cycle to another status. Disallowed transitions are
// rejected with ErrInvalidTransition and leave the status unchanged.
func (c *Cycle) Transition(to Status) error {
	if !CanTransition(c.Status, to) {
		err := transitionError(c.Status, to)
		log.Printf("⚠️ Cycle %s: %v", c.ID, err)
		return err
	}
	c.Status = to
	c.statusTime = 0
	return nil
}

// steer rotates the heading toward the held side. Left is counter-clockwise
// seen from above. Returns true on the tick a turn begins.
func (c *Cycle) steer(dt, turnSpeed float64) bool {
	turning := c.Input.Turning()
	started := turning && !c.wasTurning
	c.wasTurning = turning
	if !turning {
		return false
	}

	angle := turnSpeed * dt
	if c.Input.TurnRight {
		angle = -angle
	}
	x, z := physics.Rotate(c.DirX, c.DirZ, angle)
	c.DirX, c.DirZ = physics.Normalize(x, z)
	return started
}

// updateSpeed brakes toward MinSpeed or recovers toward the cruise target.
func (c *Cycle) updateSpeed(dt float64, cfg config.Cycle, boost float64) {
	target := cfg.BaseSpeed * boost
	switch {
	case c.Input.Brake:
		floor := math.Min(cfg.MinSpeed, c.Speed)
		c.Speed = math.Max(floor, c.Speed-cfg.BrakeDecel*dt)
	case c.Speed < target:
		c.Speed = math.Min(target, c.Speed+cfg.Acceleration*dt)
	case c.Speed > target:
		c.Speed = math.Max(target, c.Speed-cfg.Acceleration*dt)
	}
	c.SetSpeed(c.Speed, cfg.MaxSpeed)
}

// commitPrev records the committed state before the tick moves the cycle.
// Non-finite values are not committed so repair can fall back to them.
func (c *Cycle) commitPrev() {
	if physics.IsFinite(c.Body.X, c.Body.Z) {
		c.prevX, c.prevZ = c.Body.X, c.Body.Z
	}
	if physics.IsFinite(c.DirX, c.DirZ) {
		c.prevDirX, c.prevDirZ = c.DirX, c.DirZ
	}
}

// place puts the cycle at p facing (dx, dz) with a fresh trail.
func (c *Cycle) place(p physics.Point, dx, dz float64) {
	c.Body.Teleport(p.X, p.Z)
	c.SetDirection(dx, dz)
	c.prevX, c.prevZ = p.X, p.Z
	c.prevDirX, c.prevDirZ = c.DirX, c.DirZ
	c.Trail.Reset(p)
	c.sinceLastPoint = 0
	c.wasTurning = false
	c.excluded = false
}

// emitTrail adds a trail point once the cycle has travelled far enough.
func (c *Cycle) emitTrail(travelled, spacing float64) {
	c.sinceLastPoint += travelled
	if c.sinceLastPoint < spacing {
		return
	}
	if c.Trail.Add(c.Position()) {
		c.sinceLastPoint = 0
	}
}

// headLength is the distance from the newest trail point to the cycle.
func (c *Cycle) headLength() float64 {
	last, ok := c.Trail.Last()
	if !ok {
		return 0
	}
	return physics.Dist(last, c.Position())
}
