package game

import (
	"fmt"
	"log"
	"math"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/PropertySightlines/cyber-cycles-sub001/internal/config"
	"github.com/PropertySightlines/cyber-cycles-sub001/internal/game/physics"
	"github.com/PropertySightlines/cyber-cycles-sub001/internal/game/rubber"
)

// CycleState is the flat network record of a cycle. ToState and FromState
// round-trip position, direction, speed, alive and trail exactly.
type CycleState struct {
	ID         string          `json:"id" msgpack:"id"`
	Owner      string          `json:"owner" msgpack:"owner"`
	Color      string          `json:"color" msgpack:"color"`
	Controller string          `json:"controller" msgpack:"controller"`
	X          float64         `json:"x" msgpack:"x"`
	Z          float64         `json:"z" msgpack:"z"`
	DirX       float64         `json:"dirX" msgpack:"dirX"`
	DirZ       float64         `json:"dirZ" msgpack:"dirZ"`
	Speed      float64         `json:"speed" msgpack:"speed"`
	Alive      bool            `json:"alive" msgpack:"alive"`
	Status     string          `json:"status" msgpack:"status"`
	Rubber     float64         `json:"rubber" msgpack:"rubber"`
	Malus      float64         `json:"malus" msgpack:"malus"`
	MalusTimer float64         `json:"malusTimer" msgpack:"malusTimer"`
	Kills      int             `json:"kills" msgpack:"kills"`
	Deaths     int             `json:"deaths" msgpack:"deaths"`
	Wins       int             `json:"wins" msgpack:"wins"`
	Trail      []physics.Point `json:"trail" msgpack:"trail"`
}

// ToState flattens a cycle. The trail is copied.
func ToState(c *Cycle) CycleState {
	return CycleState{
		ID:         c.ID,
		Owner:      c.Owner,
		Color:      c.Color,
		Controller: c.Controller.String(),
		X:          c.Body.X,
		Z:          c.Body.Z,
		DirX:       c.DirX,
		DirZ:       c.DirZ,
		Speed:      c.Speed,
		Alive:      c.Alive(),
		Status:     c.Status.String(),
		Rubber:     c.Rubber.Rubber,
		Malus:      c.Rubber.Malus,
		MalusTimer: c.Rubber.MalusTimer,
		Kills:      c.Kills,
		Deaths:     c.Deaths,
		Wins:       c.Wins,
		Trail:      c.Trail.Copy(),
	}
}

// FromState builds a detached cycle from a record.
func FromState(s CycleState, phys config.Physics) *Cycle {
	rub := rubber.NewEngine(phys.Rubber)
	c := newCycle(s.ID, s.Owner, s.Color, parseController(s.Controller), phys, rub.NewState())
	applyState(c, s, phys, rub)
	return c
}

// applyState overwrites a cycle with an absolute record. Out-of-range values
// are clamped rather than rejected; applying the same record twice has the
// same effect as applying it once.
func applyState(c *Cycle, s CycleState, phys config.Physics, rub *rubber.Engine) {
	if physics.IsFinite(s.X, s.Z) {
		c.Body.Teleport(s.X, s.Z)
	}
	c.prevX, c.prevZ = c.Body.X, c.Body.Z

	// Only renormalize when needed so unit vectors survive bit-for-bit.
	if l := math.Hypot(s.DirX, s.DirZ); physics.IsFinite(l) && math.Abs(l-1) <= 1e-9 {
		c.DirX, c.DirZ = s.DirX, s.DirZ
	} else {
		c.SetDirection(s.DirX, s.DirZ)
	}
	c.prevDirX, c.prevDirZ = c.DirX, c.DirZ

	if math.IsNaN(s.Speed) || s.Speed < 0 || s.Speed > phys.Cycle.MaxSpeed {
		c.SetSpeed(s.Speed, phys.Cycle.MaxSpeed)
	} else {
		c.Speed = s.Speed
	}

	status, ok := ParseStatus(s.Status)
	switch {
	case !ok && s.Alive:
		status = StatusAlive
	case !ok:
		status = StatusDead
	case status.Active() && !s.Alive:
		status = StatusDead
	case !status.Active() && s.Alive:
		status = StatusAlive
	}
	c.Status = status

	if !rub.AcceptReported(s.Rubber) {
		log.Printf("⚠️ Cycle %s: reported rubber %.3f outside [0, %.3f], clamping", s.ID, s.Rubber, rub.Config().ServerCeiling)
	}
	c.Rubber.Rubber = s.Rubber
	if s.Malus > 0 {
		c.Rubber.Malus = s.Malus
	}
	c.Rubber.MalusTimer = s.MalusTimer
	rub.Clamp(&c.Rubber)

	c.Kills, c.Deaths, c.Wins = s.Kills, s.Deaths, s.Wins
	if s.Owner != "" {
		c.Owner = s.Owner
	}
	if s.Color != "" {
		c.Color = s.Color
	}
	if s.Trail != nil {
		c.Trail.SetPoints(s.Trail)
		c.sinceLastPoint = c.headLength()
	}
	c.excluded = false
}

// ApplyState overwrites (or creates) a cycle from an authoritative record.
// The write is absolute and never queued.
func (e *Engine) ApplyState(s CycleState) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.applyStateLocked(s)
}

func (e *Engine) applyStateLocked(s CycleState) error {
	if s.ID == "" {
		return fmt.Errorf("apply state: empty id")
	}
	c, ok := e.dir.Cycle(s.ID)
	if !ok {
		if len(e.order) >= e.limits.MaxCycles {
			return fmt.Errorf("apply state %s: %w", s.ID, ErrCapacity)
		}
		c = newCycle(s.ID, s.Owner, s.Color, ControllerRemote, e.phys, e.rubber.NewState())
		c.Trail.Reset(physics.Point{X: s.X, Z: s.Z})
		e.dir.AddCycle(c)
		e.order = e.dir.Cycles()
	}
	applyState(c, s, e.phys, e.rubber)
	e.leaderboard.Update(c)
	return nil
}

// ApplyStates applies a batch of records, stopping at the first error.
// No step runs while the batch is applied.
func (e *Engine) ApplyStates(states []CycleState) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, s := range states {
		if err := e.applyStateLocked(s); err != nil {
			return err
		}
	}
	return nil
}

// ReplaceStates makes the engine match a full authoritative record set:
// cycles not listed are removed, then every record is applied. The whole
// replacement happens between two steps.
func (e *Engine) ReplaceStates(states []CycleState) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	keep := make(map[string]struct{}, len(states))
	for i := range states {
		keep[states[i].ID] = struct{}{}
	}
	// Removals go first so stale cycles never hold capacity.
	for _, c := range append([]*Cycle(nil), e.order...) {
		if _, ok := keep[c.ID]; ok {
			continue
		}
		if err := e.removeCycleLocked(c.ID); err != nil {
			return err
		}
	}
	for _, s := range states {
		if err := e.applyStateLocked(s); err != nil {
			return err
		}
	}
	return nil
}

func parseController(s string) Controller {
	switch s {
	case "remote":
		return ControllerRemote
	case "ai":
		return ControllerAI
	default:
		return ControllerLocal
	}
}

// EncodeStates packs records with msgpack.
func EncodeStates(states []CycleState) ([]byte, error) {
	data, err := msgpack.Marshal(states)
	if err != nil {
		return nil, fmt.Errorf("encode cycle states: %w", err)
	}
	return data, nil
}

// DecodeStates unpacks records produced by EncodeStates.
func DecodeStates(data []byte) ([]CycleState, error) {
	var states []CycleState
	if err := msgpack.Unmarshal(data, &states); err != nil {
		return nil, fmt.Errorf("decode cycle states: %w", err)
	}
	return states, nil
}
