package game

import (
	"errors"
	"math"
	"testing"

	"github.com/PropertySightlines/cyber-cycles-sub001/internal/config"
	"github.com/PropertySightlines/cyber-cycles-sub001/internal/game/physics"
	"github.com/PropertySightlines/cyber-cycles-sub001/internal/game/rubber"
)

func testCycle(id string, ctl Controller) *Cycle {
	phys := config.Classic()
	return newCycle(id, "", "", ctl, phys, rubber.NewEngine(phys.Rubber).NewState())
}

func TestStatusTransitions(t *testing.T) {
	all := []Status{StatusAlive, StatusDead, StatusRespawning, StatusBoosting}
	allowed := map[[2]Status]bool{
		{StatusAlive, StatusDead}:       true,
		{StatusAlive, StatusBoosting}:   true,
		{StatusDead, StatusRespawning}:  true,
		{StatusDead, StatusAlive}:       true,
		{StatusRespawning, StatusAlive}: true,
		{StatusBoosting, StatusAlive}:   true,
		{StatusBoosting, StatusDead}:    true,
	}

	for _, from := range all {
		for _, to := range all {
			name := from.String() + "->" + to.String()
			t.Run(name, func(t *testing.T) {
				c := testCycle("c", ControllerLocal)
				c.Status = from
				err := c.Transition(to)

				if allowed[[2]Status{from, to}] {
					if err != nil {
						t.Fatalf("expected %s allowed, got %v", name, err)
					}
					if c.Status != to {
						t.Errorf("status = %s, want %s", c.Status, to)
					}
					return
				}
				if !errors.Is(err, ErrInvalidTransition) {
					t.Fatalf("expected ErrInvalidTransition for %s, got %v", name, err)
				}
				if c.Status != from {
					t.Errorf("status changed to %s on rejected transition", c.Status)
				}
			})
		}
	}
}

func TestParseStatus(t *testing.T) {
	for _, s := range []Status{StatusAlive, StatusDead, StatusRespawning, StatusBoosting} {
		got, ok := ParseStatus(s.String())
		if !ok || got != s {
			t.Errorf("ParseStatus(%q) = %v, %v", s.String(), got, ok)
		}
	}
	if _, ok := ParseStatus("FLYING"); ok {
		t.Error("expected unknown status to fail")
	}
}

func TestInputNormalized(t *testing.T) {
	in := Input{TurnLeft: true, TurnRight: true, Brake: true}.Normalized()
	if in.TurnLeft || in.TurnRight {
		t.Error("both turn flags should cancel")
	}
	if !in.Brake {
		t.Error("brake should survive normalization")
	}
}

func TestTrailSpacingAndTrim(t *testing.T) {
	cfg := config.Trail{Spacing: 2, MinPointSpacing: 0.1, MaxLength: 10}
	tr := NewTrail("a", cfg)
	tr.Reset(physics.Point{})

	if tr.Add(physics.Point{X: 0.05}) {
		t.Error("point closer than min spacing should be rejected")
	}
	if tr.Add(physics.Point{X: math.NaN()}) {
		t.Error("non-finite point should be rejected")
	}

	for x := 2.0; x <= 20; x += 2 {
		if !tr.Add(physics.Point{X: x}) {
			t.Fatalf("Add(%v) rejected", x)
		}
		if tr.Length() > cfg.MaxLength+1e-9 {
			t.Fatalf("length %v exceeds max", tr.Length())
		}
	}

	first := tr.Points()[0]
	if first.X < 10-1e-9 || first.X > 10+1e-9 {
		t.Errorf("oldest point = %v, want x=10", first)
	}
	last, _ := tr.Last()
	if last.X != 20 {
		t.Errorf("newest point = %v, want x=20", last)
	}
}

func TestTrailSlidesOldestPoint(t *testing.T) {
	tr := NewTrail("a", config.Trail{MinPointSpacing: 0.1, MaxLength: 5})
	tr.Reset(physics.Point{})
	tr.Add(physics.Point{X: 4})
	tr.Add(physics.Point{X: 7})

	if got := tr.Points()[0].X; got < 2-1e-9 || got > 2+1e-9 {
		t.Errorf("oldest x = %v, want 2", got)
	}
	if tr.Length() != 5 {
		t.Errorf("length = %v, want 5", tr.Length())
	}
}

func TestTrailSegmentsHeadDistance(t *testing.T) {
	tr := NewTrail("a", config.Trail{MinPointSpacing: 0.1, MaxLength: 100})
	tr.Reset(physics.Point{})
	tr.Add(physics.Point{X: 3})
	tr.Add(physics.Point{X: 3, Z: 4})

	segs := tr.Segments()
	if len(segs) != 2 {
		t.Fatalf("got %d segments, want 2", len(segs))
	}
	if segs[1].HeadDistance != 0 || segs[0].HeadDistance != 4 {
		t.Errorf("head distances = %v, %v", segs[0].HeadDistance, segs[1].HeadDistance)
	}
	if segs[0].OwnerID != "a" || segs[0].Length != 3 {
		t.Errorf("unexpected first segment %+v", segs[0])
	}

	cp := tr.Copy()
	cp[0].X = 99
	if tr.Points()[0].X == 99 {
		t.Error("Copy must detach from the trail")
	}
}

func TestDirectoryQueries(t *testing.T) {
	d := NewDirectory()

	for _, tc := range []struct {
		id  string
		ctl Controller
	}{{"c", ControllerAI}, {"a", ControllerLocal}, {"b", ControllerAI}} {
		if !d.AddCycle(testCycle(tc.id, tc.ctl)) {
			t.Fatalf("AddCycle(%s) failed", tc.id)
		}
	}
	if d.AddCycle(testCycle("a", ControllerLocal)) {
		t.Error("duplicate id accepted")
	}
	d.AddObstacle("wall-2", physics.Seg(0, 0, 1, 0))
	d.AddObstacle("wall-1", physics.Seg(0, 0, 0, 1))

	cycles := d.Cycles()
	if len(cycles) != 3 || cycles[0].ID != "a" || cycles[2].ID != "c" {
		t.Errorf("Cycles not sorted: %v", cycleIDs(cycles))
	}
	if got := d.IDsByController(ControllerAI); len(got) != 2 || got[0] != "b" || got[1] != "c" {
		t.Errorf("IDsByController(AI) = %v", got)
	}
	if got := d.IDsByKind(KindObstacle); len(got) != 2 || got[0] != "wall-1" {
		t.Errorf("IDsByKind(obstacle) = %v", got)
	}
	if obs := d.Obstacles(); len(obs) != 2 || obs[0] != physics.Seg(0, 0, 0, 1) {
		t.Errorf("Obstacles not sorted by id: %v", obs)
	}
	if kind, ok := d.Kind("wall-1"); !ok || kind != KindObstacle {
		t.Errorf("Kind(wall-1) = %v, %v", kind, ok)
	}

	if !d.SetController("a", ControllerRemote) {
		t.Fatal("SetController failed")
	}
	if c, _ := d.Cycle("a"); c.Controller != ControllerRemote {
		t.Error("controller not mirrored on the cycle")
	}

	var visited []string
	d.Each(func(c *Cycle, _ Controller) bool {
		visited = append(visited, c.ID)
		return len(visited) < 2
	})
	if len(visited) != 2 {
		t.Errorf("Each did not stop early: %v", visited)
	}

	if !d.Remove("b") || d.Remove("b") {
		t.Error("Remove should succeed once")
	}
	if d.Count(KindCycle) != 2 || d.Count(KindObstacle) != 2 {
		t.Errorf("counts = %d cycles, %d obstacles", d.Count(KindCycle), d.Count(KindObstacle))
	}
	if _, ok := d.Cycle("b"); ok {
		t.Error("removed cycle still present")
	}
}

func TestLeaderboardRanking(t *testing.T) {
	lb := NewLeaderboard()

	winner := testCycle("w", ControllerLocal)
	winner.Wins = 1
	killer := testCycle("k", ControllerLocal)
	killer.Kills = 3
	killer.Deaths = 1
	idle := testCycle("i", ControllerLocal)

	for _, c := range []*Cycle{idle, killer, winner} {
		lb.Update(c)
	}

	top := lb.Top(10)
	if len(top) != 3 {
		t.Fatalf("Top(10) returned %d entries", len(top))
	}
	want := []string{"w", "k", "i"}
	for i, id := range want {
		if top[i].CycleID != id || top[i].Rank != i+1 {
			t.Errorf("rank %d = %s (rank %d), want %s", i+1, top[i].CycleID, top[i].Rank, id)
		}
	}
	if lb.Rank("k") != 2 || lb.Rank("missing") != 0 {
		t.Error("unexpected Rank results")
	}

	lb.Remove("w")
	if lb.Len() != 2 || lb.Top(1)[0].CycleID != "k" {
		t.Error("leaderboard not re-ranked after removal")
	}
}

func cycleIDs(cs []*Cycle) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.ID
	}
	return out
}
