package game

import (
	"log"
	"math"

	"github.com/PropertySightlines/cyber-cycles-sub001/internal/game/physics"
	"github.com/PropertySightlines/cyber-cycles-sub001/internal/game/rubber"
)

// spawnCandidates is how many ring positions are scored per spawn.
const spawnCandidates = 8

// roundState tracks the last-cycle-standing match flow.
type roundState struct {
	number       int
	active       bool
	participants int
	restartIn    float64 // seconds until everyone respawns; 0 when idle
	restarting   bool
}

// Round returns the current round number and whether it is in progress.
func (e *Engine) Round() (int, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.round.number, e.round.active
}

// updateRound starts rounds, ends them when one cycle (or none) is left,
// and drives respawns.
func (e *Engine) updateRound(dt float64, out *TickOutcome) {
	cfg := e.phys.Round

	alive := 0
	var last *Cycle
	for _, c := range e.order {
		if c.Alive() {
			alive++
			last = c
		}
	}

	switch {
	case e.round.active && alive <= 1:
		e.round.active = false
		winner := ""
		if last != nil {
			winner = last.ID
			last.Wins++
			e.leaderboard.Update(last)
		}
		out.Events = append(out.Events, Event{
			Type:   EventTypeRoundEnd,
			Tick:   e.tick,
			Round:  e.round.number,
			Winner: winner,
		})
		if winner == "" {
			log.Printf("🏁 Round %d ended in a draw", e.round.number)
		} else {
			log.Printf("🏁 Round %d won by %s", e.round.number, winner)
		}
		e.round.restarting = true
		e.round.restartIn = cfg.RestartDelay

	case !e.round.active && !e.round.restarting && alive >= max(cfg.MinPlayers, 2) && alive == len(e.order):
		e.round.number++
		e.round.active = true
		e.round.participants = alive
		out.Events = append(out.Events, Event{Type: EventTypeRoundStart, Tick: e.tick, Round: e.round.number})
	}

	if e.round.restarting {
		e.round.restartIn -= dt
		if e.round.restartIn <= 0 {
			e.round.restarting = false
			e.round.restartIn = 0
			for _, c := range e.order {
				if c.Status == StatusDead {
					e.beginRespawn(c)
				} else if c.Alive() {
					// Survivors start the new round on a clean slate too.
					p, dx, dz := e.spawnSlot()
					c.place(p, dx, dz)
					e.rubber.Reset(&c.Rubber)
				}
			}
		}
	}

	if cfg.AutoRespawn {
		for _, c := range e.order {
			if c.Status == StatusDead && c.statusTime >= cfg.RespawnDelay {
				e.beginRespawn(c)
			}
		}
	}
}

// beginRespawn moves a dead cycle to RESPAWNING at a spawn slot with a
// fresh trail and full rubber. It becomes alive on the next tick.
func (e *Engine) beginRespawn(c *Cycle) error {
	if err := c.Transition(StatusRespawning); err != nil {
		return err
	}
	p, dx, dz := e.spawnSlot()
	c.place(p, dx, dz)
	c.Speed = e.phys.Cycle.BaseSpeed
	c.Input = Input{}
	e.rubber.Reset(&c.Rubber)
	c.LastRubber = rubber.Result{Distance: math.Inf(1), Survived: true, SpeedFactor: 1, Effectiveness: 1}
	return nil
}

// finishRespawns brings RESPAWNING cycles to life at the start of a tick.
func (e *Engine) finishRespawns(out *TickOutcome) {
	for _, c := range e.order {
		if c.Status != StatusRespawning {
			continue
		}
		if c.Transition(StatusAlive) != nil {
			continue
		}
		out.Events = append(out.Events, Event{
			Type:    EventTypeRespawn,
			Tick:    e.tick,
			CycleID: c.ID,
			X:       c.Body.X,
			Z:       c.Body.Z,
			Rubber:  c.Rubber.Rubber,
		})
	}
}

// spawnSlot picks a point on the spawn ring, choosing among a few seeded
// candidates the one farthest from every active cycle. Cycles face along
// the ring (counter-clockwise) so neighbours do not ride at each other.
func (e *Engine) spawnSlot() (physics.Point, float64, float64) {
	radius := e.phys.Arena.HalfExtent * e.phys.Arena.SpawnRing
	if radius <= 0 {
		radius = 50
	}

	bestScore := -1.0
	var best physics.Point
	bestAngle := 0.0
	for i := 0; i < spawnCandidates; i++ {
		angle := e.rng.Float64() * 2 * math.Pi
		p := physics.Point{X: radius * math.Cos(angle), Z: radius * math.Sin(angle)}

		score := math.Inf(1)
		for _, c := range e.order {
			if !c.Alive() && c.Status != StatusRespawning {
				continue
			}
			score = math.Min(score, physics.Dist(p, c.Position()))
		}
		if score > bestScore {
			bestScore, best, bestAngle = score, p, angle
		}
	}
	// Tangent of the ring at bestAngle.
	return best, -math.Sin(bestAngle), math.Cos(bestAngle)
}
