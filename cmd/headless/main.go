package main

import (
	"flag"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/PropertySightlines/cyber-cycles-sub001/internal/config"
	"github.com/PropertySightlines/cyber-cycles-sub001/internal/game"
)

type runStats struct {
	runIndex int
	seed     int64

	ticks   int
	elapsed time.Duration

	deaths    map[string]int
	grinds    int
	boosts    int
	respawns  int
	rejected  int
	rounds    int
	draws     int
	winners   map[string]int
	lastWin   string
	firstKill uint64

	leaders []game.LeaderboardEntry
}

func main() {
	var runs int
	var ticks int
	var cycles int
	var seedBase int64
	var seedStep int64
	var preset string
	var tickRate int
	var eventLog string

	flag.IntVar(&runs, "runs", 3, "number of headless simulation runs")
	flag.IntVar(&ticks, "ticks", 3600, "ticks per run")
	flag.IntVar(&cycles, "cycles", 8, "AI cycles per run")
	flag.Int64Var(&seedBase, "seed-base", 42, "base RNG seed for run 1")
	flag.Int64Var(&seedStep, "seed-step", 1, "seed increment between runs")
	flag.StringVar(&preset, "preset", "classic", "physics preset ("+strings.Join(config.PresetNames(), ", ")+")")
	flag.IntVar(&tickRate, "tick-rate", 60, "simulation ticks per second")
	flag.StringVar(&eventLog, "events", "", "write the first run's events to this JSONL file")
	flag.Parse()

	if runs <= 0 {
		fmt.Println("error: -runs must be > 0")
		return
	}
	if ticks <= 0 {
		fmt.Println("error: -ticks must be > 0")
		return
	}
	if tickRate <= 0 {
		fmt.Println("error: -tick-rate must be > 0")
		return
	}
	phys, ok := config.Preset(preset)
	if !ok {
		fmt.Printf("error: unknown preset %q (supported: %s)\n", preset, strings.Join(config.PresetNames(), ", "))
		return
	}
	limits := config.DefaultLimits()
	if cycles <= 0 || cycles > limits.MaxCycles {
		fmt.Printf("error: -cycles must be in 1..%d\n", limits.MaxCycles)
		return
	}

	fmt.Printf("=== Headless Arena Report ===\n")
	fmt.Printf("preset=%s runs=%d ticks=%d cycles=%d tick_rate=%d seed_base=%d seed_step=%d\n\n",
		phys.Name, runs, ticks, cycles, tickRate, seedBase, seedStep)

	all := make([]runStats, 0, runs)
	for i := 0; i < runs; i++ {
		seed := seedBase + int64(i)*seedStep
		logPath := ""
		if i == 0 {
			logPath = eventLog
		}
		stats, err := runArena(i+1, seed, phys, limits, cycles, ticks, 1/float64(tickRate), logPath)
		if err != nil {
			fmt.Printf("error: run %d: %v\n", i+1, err)
			return
		}
		all = append(all, stats)
		printRun(stats)
	}

	printAggregate(all)
}

func runArena(runIndex int, seed int64, phys config.Physics, limits config.ResourceLimits, cycles, ticks int, dt float64, logPath string) (runStats, error) {
	engine := game.NewEngine(game.EngineConfig{
		Physics: phys,
		Spatial: config.DefaultSpatial(),
		Limits:  limits,
		Seed:    seed,
	})
	if logPath != "" {
		if err := engine.StartEventLog(logPath); err != nil {
			return runStats{}, err
		}
		defer engine.StopEventLog()
	}

	for i := 0; i < cycles; i++ {
		if _, err := engine.AddCycle(game.CycleOptions{
			ID:         fmt.Sprintf("cycle-%02d", i+1),
			Owner:      fmt.Sprintf("bot-%02d", i+1),
			Controller: game.ControllerAI,
		}); err != nil {
			return runStats{}, err
		}
	}
	pilot := game.NewPilot(engine, game.DefaultPilotConfig(), seed)

	stats := runStats{
		runIndex: runIndex,
		seed:     seed,
		ticks:    ticks,
		deaths:   map[string]int{},
		winners:  map[string]int{},
	}

	start := time.Now()
	for i := 0; i < ticks; i++ {
		pilot.Drive()
		out := engine.Step(dt)
		for _, ev := range out.Events {
			switch ev.Type {
			case game.EventTypeDeath:
				stats.deaths[ev.Cause.String()]++
				if stats.firstKill == 0 {
					stats.firstKill = out.Tick
				}
			case game.EventTypeGrind:
				stats.grinds++
			case game.EventTypeBoostStart:
				stats.boosts++
			case game.EventTypeRespawn:
				stats.respawns++
			case game.EventTypeTransitionRejected:
				stats.rejected++
			case game.EventTypeRoundEnd:
				stats.rounds++
				if ev.Winner == "" {
					stats.draws++
				} else {
					stats.winners[ev.Winner]++
					stats.lastWin = ev.Winner
				}
			}
		}
	}
	stats.elapsed = time.Since(start)
	stats.leaders = engine.Leaderboard().Top(3)
	return stats, nil
}

func (s runStats) totalDeaths() int {
	n := 0
	for _, v := range s.deaths {
		n += v
	}
	return n
}

func (s runStats) ticksPerSecond() float64 {
	if s.elapsed <= 0 {
		return 0
	}
	return float64(s.ticks) / s.elapsed.Seconds()
}

func printRun(s runStats) {
	fmt.Printf("--- Run %d (seed=%d) ---\n", s.runIndex, s.seed)
	fmt.Printf("ticks=%d elapsed=%v ticks/s=%.0f\n", s.ticks, s.elapsed.Round(time.Millisecond), s.ticksPerSecond())
	fmt.Printf("deaths=%d %s first_death_tick=%d\n", s.totalDeaths(), formatCounts(s.deaths), s.firstKill)
	fmt.Printf("grinds=%d boosts=%d respawns=%d rejected_transitions=%d\n", s.grinds, s.boosts, s.respawns, s.rejected)

	winner := s.lastWin
	if winner == "" {
		winner = "none"
	}
	fmt.Printf("rounds=%d draws=%d last_winner=%s\n", s.rounds, s.draws, winner)
	for i, e := range s.leaders {
		fmt.Printf("  #%d %s wins=%d kills=%d deaths=%d\n", i+1, e.CycleID, e.Wins, e.Kills, e.Deaths)
	}
	fmt.Println()
}

func printAggregate(all []runStats) {
	deaths := map[string]int{}
	winners := map[string]int{}
	var ticks int
	var elapsed time.Duration
	var grinds, rounds, draws int

	for _, s := range all {
		for k, v := range s.deaths {
			deaths[k] += v
		}
		for k, v := range s.winners {
			winners[k] += v
		}
		ticks += s.ticks
		elapsed += s.elapsed
		grinds += s.grinds
		rounds += s.rounds
		draws += s.draws
	}

	fmt.Printf("=== Aggregate (%d runs) ===\n", len(all))
	if elapsed > 0 {
		fmt.Printf("ticks/s=%.0f\n", float64(ticks)/elapsed.Seconds())
	}
	fmt.Printf("deaths by cause: %s\n", formatCounts(deaths))
	fmt.Printf("grinds=%d rounds=%d draws=%d\n", grinds, rounds, draws)
	if len(winners) > 0 {
		fmt.Printf("round wins: %s\n", formatCounts(winners))
	}
}

// formatCounts renders a count map as "k=v" pairs sorted by key.
func formatCounts(m map[string]int) string {
	if len(m) == 0 {
		return "(none)"
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, m[k]))
	}
	return strings.Join(parts, " ")
}
