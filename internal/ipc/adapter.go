package ipc

import (
	"fmt"
	"math"

	"github.com/PropertySightlines/cyber-cycles-sub001/internal/config"
	"github.com/PropertySightlines/cyber-cycles-sub001/internal/game"
)

// SnapshotFromEngine captures the engine's current state for publishing.
func SnapshotFromEngine(e *game.Engine, alpha float64) WorldSnapshot {
	round, _ := e.Round()
	return WorldSnapshot{
		Tick:   e.Tick(),
		Alpha:  alpha,
		Round:  round,
		Cycles: e.States(),
	}
}

// HelloFromEngine describes the engine's physics to a new mirror.
func HelloFromEngine(e *game.Engine, tickRate int) HelloMessage {
	phys := e.Physics()
	return HelloMessage{
		Preset:     phys.Name,
		TickRate:   tickRate,
		HalfExtent: phys.Arena.HalfExtent,
		Seed:       e.Seed(),
	}
}

// Physics rebuilds the publisher's physics from the hello. Unknown presets
// fall back to the default with the advertised arena size.
func (h HelloMessage) Physics() config.Physics {
	phys, ok := config.Preset(h.Preset)
	if !ok {
		phys = config.DefaultPhysics()
	}
	if h.HalfExtent > 0 {
		phys.Arena.HalfExtent = h.HalfExtent
	}
	return phys
}

// Apply makes e match the snapshot: every listed cycle is overwritten and
// cycles the snapshot does not list are removed, all between two steps.
func (ws *WorldSnapshot) Apply(e *game.Engine) error {
	if err := e.ReplaceStates(ws.Cycles); err != nil {
		return fmt.Errorf("apply snapshot %d: %w", ws.Sequence, err)
	}
	return nil
}

// Divergence compares a predicting engine against an authoritative snapshot.
type Divergence struct {
	Compared  int     `json:"compared"`
	Missing   int     `json:"missing"`   // in the snapshot, not in the engine
	Mismatch  int     `json:"mismatch"`  // alive flag differs
	MaxError  float64 `json:"maxError"`  // largest position error
	MeanError float64 `json:"meanError"` // mean position error over compared cycles
	WorstID   string  `json:"worstId,omitempty"`
}

// Measure reports how far e has drifted from the snapshot.
func (ws *WorldSnapshot) Measure(e *game.Engine) Divergence {
	var d Divergence
	var sum float64

	for i := range ws.Cycles {
		want := &ws.Cycles[i]
		got, ok := e.Cycle(want.ID)
		if !ok {
			d.Missing++
			continue
		}
		if got.Alive != want.Alive {
			d.Mismatch++
		}

		dist := math.Hypot(got.X-want.X, got.Z-want.Z)
		d.Compared++
		sum += dist
		if dist > d.MaxError {
			d.MaxError = dist
			d.WorstID = want.ID
		}
	}

	if d.Compared > 0 {
		d.MeanError = sum / float64(d.Compared)
	}
	return d
}
