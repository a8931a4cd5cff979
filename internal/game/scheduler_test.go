package game

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PropertySightlines/cyber-cycles-sub001/internal/config"
)

type countingStepper struct {
	steps int
	dts   []float64
}

func (s *countingStepper) Step(dt float64) TickOutcome {
	s.steps++
	s.dts = append(s.dts, dt)
	return TickOutcome{Tick: uint64(s.steps)}
}

func testScheduler(maxCatchUp int) (*Scheduler, *countingStepper, *SnapshotPool) {
	sim := &countingStepper{}
	pool := NewSnapshotPool(1)
	cfg := config.Scheduler{TickRate: 60, FrameRate: 60, MaxCatchUpTicks: maxCatchUp}
	return NewScheduler(sim, cfg, pool), sim, pool
}

func TestSchedulerRunsWholeSteps(t *testing.T) {
	s, sim, pool := testScheduler(5)
	dt := s.FixedDt()

	frame := s.Advance(0.5 * dt)
	assert.Equal(t, 0, frame.Ticks)
	assert.InDelta(t, 0.5, frame.Alpha, 1e-9)

	frame = s.Advance(3 * dt)
	assert.Equal(t, 3, frame.Ticks)
	assert.Equal(t, 0, frame.Dropped)
	assert.InDelta(t, 0.5, frame.Alpha, 1e-6)
	assert.Len(t, frame.Outcomes, 3)
	assert.Equal(t, 3, sim.steps)
	assert.Equal(t, frame.Alpha, pool.Alpha())

	for _, got := range sim.dts {
		assert.Equal(t, dt, got)
	}
}

func TestSchedulerCatchUpCap(t *testing.T) {
	s, sim, _ := testScheduler(5)
	dt := s.FixedDt()

	frame := s.Advance(60.5 * dt)
	assert.Equal(t, 5, frame.Ticks)
	assert.Equal(t, 5, sim.steps)
	assert.InDelta(t, 55, frame.Dropped, 1)
	assert.GreaterOrEqual(t, frame.Alpha, 0.0)
	assert.Less(t, frame.Alpha, 1.0)

	stats := s.Stats()
	assert.Less(t, stats.Accumulator, dt)
	assert.Equal(t, uint64(5), stats.Ticks)
	assert.Equal(t, uint64(frame.Dropped), stats.Dropped)

	// The backlog is gone; the next frame is normal.
	frame = s.Advance(dt)
	assert.Equal(t, 1, frame.Ticks)
	assert.Equal(t, 0, frame.Dropped)
}

func TestSchedulerIgnoresBadElapsed(t *testing.T) {
	s, sim, _ := testScheduler(5)

	for _, elapsed := range []float64{-1, math.NaN(), math.Inf(1), math.Inf(-1), 0} {
		frame := s.Advance(elapsed)
		assert.Equal(t, 0, frame.Ticks)
		assert.Equal(t, 0.0, frame.Alpha)
	}
	assert.Equal(t, 0, sim.steps)
}

func TestSchedulerAlphaAlwaysInRange(t *testing.T) {
	s, _, _ := testScheduler(3)
	for i := 0; i < 1000; i++ {
		elapsed := float64(i%97) / 1000
		frame := s.Advance(elapsed)
		require.GreaterOrEqual(t, frame.Alpha, 0.0)
		require.Less(t, frame.Alpha, 1.0)
		require.LessOrEqual(t, frame.Ticks, 3)
	}
}

func TestSchedulerDrivesEngine(t *testing.T) {
	e := testEngine(t, config.Classic())
	addAt(t, e, "a", 0, 0, 1, 0)
	s := NewScheduler(e, config.Scheduler{TickRate: 10, MaxCatchUpTicks: 5}, e.Snapshots())

	frame := s.Advance(0.15)
	require.Equal(t, 1, frame.Ticks)
	st, _ := e.Cycle("a")
	assert.InDelta(t, 4.0, st.X, 1e-9)

	rf, ok := e.Snapshots().RenderFrame()
	require.True(t, ok)
	assert.InDelta(t, 0.5, rf.Alpha, 1e-9)
}

func TestRenderFrameIsConsistentUnderConcurrentSteps(t *testing.T) {
	const steps = 3000
	const dt = 1e-3

	type pose struct {
		x     float64
		trail int
	}
	ref := testEngine(t, config.Classic())
	addAt(t, ref, "a", -100, 0, 1, 0)
	want := make(map[uint64]pose, steps)
	for i := 0; i < steps; i++ {
		out := ref.Step(dt)
		st, _ := ref.Cycle("a")
		want[out.Tick] = pose{x: st.X, trail: len(st.Trail)}
	}

	e := testEngine(t, config.Classic())
	addAt(t, e, "a", -100, 0, 1, 0)

	var wg sync.WaitGroup
	done := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(done)
		for i := 0; i < steps; i++ {
			e.Step(dt)
		}
	}()

	frames := 0
	for running := true; running; {
		select {
		case <-done:
			running = false
		default:
		}
		rf, ok := e.Snapshots().RenderFrame()
		if !ok {
			continue
		}
		frames++
		require.Len(t, rf.Cycles, 1)
		p := want[rf.Tick]
		require.Equal(t, p.x, rf.Cycles[0].X, "tick %d", rf.Tick)
		require.Len(t, rf.Cycles[0].Trail, p.trail, "tick %d", rf.Tick)
	}
	wg.Wait()
	assert.Positive(t, frames)

	snap := e.Snapshot()
	require.NotNil(t, snap)
	assert.Equal(t, uint64(steps), snap.Tick)
}

func TestRunnerStartStop(t *testing.T) {
	e := testEngine(t, config.Classic())
	addAt(t, e, "a", 0, 0, 1, 0)
	r := NewRunner(e, config.Scheduler{TickRate: 120, FrameRate: 200, MaxCatchUpTicks: 5})

	reports, cancel := r.Subscribe(16)
	defer cancel()

	r.Start()
	r.Start()
	assert.True(t, r.Running())

	var ticks int
	deadline := time.After(2 * time.Second)
	for ticks < 3 {
		select {
		case rep := <-reports:
			ticks += rep.Ticks
		case <-deadline:
			t.Fatal("no frames from runner")
		}
	}

	r.Stop()
	r.Stop()
	assert.False(t, r.Running())
	assert.GreaterOrEqual(t, e.Tick(), uint64(3))
	assert.GreaterOrEqual(t, r.Stats().Ticks, uint64(3))
}

func TestRunnerSlowSubscriberDoesNotBlock(t *testing.T) {
	e := testEngine(t, config.Classic())
	r := NewRunner(e, config.Scheduler{TickRate: 120, FrameRate: 500, MaxCatchUpTicks: 5})

	_, cancel := r.Subscribe(1)
	r.Start()
	time.Sleep(100 * time.Millisecond)
	r.Stop()
	cancel()
	cancel()

	assert.Greater(t, e.Tick(), uint64(1))
}
