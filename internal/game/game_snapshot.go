package game

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/PropertySightlines/cyber-cycles-sub001/internal/game/physics"
)

// CycleSnapshot is an immutable copy of one cycle for rendering. It carries
// both the previous and current committed pose so the renderer can
// interpolate with the frame alpha.
type CycleSnapshot struct {
	ID       string          `json:"id"`
	Owner    string          `json:"owner"`
	Color    string          `json:"color"`
	PrevX    float64         `json:"prevX"`
	PrevZ    float64         `json:"prevZ"`
	X        float64         `json:"x"`
	Z        float64         `json:"z"`
	PrevDirX float64         `json:"prevDirX"`
	PrevDirZ float64         `json:"prevDirZ"`
	DirX     float64         `json:"dirX"`
	DirZ     float64         `json:"dirZ"`
	Speed    float64         `json:"speed"`
	Alive    bool            `json:"alive"`
	Status   string          `json:"status"`
	Rubber   float64         `json:"rubber"`
	Grinding bool            `json:"grinding"`
	Kills    int             `json:"kills"`
	Deaths   int             `json:"deaths"`
	Wins     int             `json:"wins"`
	Trail    []physics.Point `json:"trail"`
}

// Interpolated returns the pose blended by alpha ∈ [0,1).
func (c *CycleSnapshot) Interpolated(alpha float64) (x, z, dirX, dirZ float64) {
	alpha = physics.Clamp(alpha, 0, 1)
	x = c.PrevX + (c.X-c.PrevX)*alpha
	z = c.PrevZ + (c.Z-c.PrevZ)*alpha
	dirX, dirZ = physics.Normalize(
		c.PrevDirX+(c.DirX-c.PrevDirX)*alpha,
		c.PrevDirZ+(c.DirZ-c.PrevDirZ)*alpha,
	)
	return x, z, dirX, dirZ
}

// GameSnapshot is a complete immutable arena state for rendering and
// broadcasting. Slices are reused between ticks.
type GameSnapshot struct {
	Sequence    uint64          `json:"sequence"`
	Timestamp   time.Time       `json:"timestamp"`
	Tick        uint64          `json:"tick"`
	Round       int             `json:"round"`
	RoundActive bool            `json:"roundActive"`
	HalfExtent  float64         `json:"halfExtent"`
	Cycles      []CycleSnapshot `json:"cycles"`
	AliveCount  int             `json:"aliveCount"`
}

// SnapshotPool pre-allocates snapshots to avoid GC pressure.
// Uses triple buffering: the tick writes one slot while readers hold another.
// Each slot has its own lock, so a reader still copying a slot the writer
// comes back around to delays that write instead of tearing it.
type SnapshotPool struct {
	snapshots [3]GameSnapshot
	locks     [3]sync.RWMutex
	writeIdx  atomic.Uint32
	readIdx   atomic.Uint32
	sequence  atomic.Uint64
	alphaBits atomic.Uint64
	published atomic.Bool
}

// NewSnapshotPool creates a pool sized for maxCycles.
func NewSnapshotPool(maxCycles int) *SnapshotPool {
	pool := &SnapshotPool{}
	for i := range pool.snapshots {
		pool.snapshots[i].Cycles = make([]CycleSnapshot, 0, maxCycles)
	}
	return pool
}

// AcquireWrite returns the next write slot with reset slices (producer only).
// The slot stays locked until PublishWrite.
func (p *SnapshotPool) AcquireWrite() *GameSnapshot {
	idx := p.writeIdx.Add(1) % 3
	if idx == p.readIdx.Load()%3 {
		idx = p.writeIdx.Add(1) % 3
	}
	p.locks[idx].Lock()
	snap := &p.snapshots[idx]

	// Keep each cycle's trail buffer for reuse.
	snap.Cycles = snap.Cycles[:0]
	snap.AliveCount = 0
	snap.Sequence = p.sequence.Add(1)
	snap.Timestamp = time.Now()
	return snap
}

// PublishWrite makes the last acquired slot the read slot.
func (p *SnapshotPool) PublishWrite() {
	idx := p.writeIdx.Load()
	p.locks[idx%3].Unlock()
	p.readIdx.Store(idx)
	p.published.Store(true)
}

// Read calls fn with the latest complete snapshot held against rewrites.
// fn must not retain the snapshot or its slices. Returns false before the
// first publish.
func (p *SnapshotPool) Read(fn func(*GameSnapshot)) bool {
	if !p.published.Load() {
		return false
	}
	idx := p.readIdx.Load() % 3
	p.locks[idx].RLock()
	defer p.locks[idx].RUnlock()
	fn(&p.snapshots[idx])
	return true
}

// Clone returns a deep copy that shares no slices with the pool.
func (s *GameSnapshot) Clone() *GameSnapshot {
	out := *s
	out.Cycles = make([]CycleSnapshot, len(s.Cycles))
	for i, c := range s.Cycles {
		c.Trail = append([]physics.Point(nil), c.Trail...)
		out.Cycles[i] = c
	}
	return &out
}

// SetAlpha stores the scheduler's interpolation fraction.
func (p *SnapshotPool) SetAlpha(alpha float64) {
	p.alphaBits.Store(math.Float64bits(alpha))
}

// Alpha returns the latest interpolation fraction.
func (p *SnapshotPool) Alpha() float64 {
	return math.Float64frombits(p.alphaBits.Load())
}

// appendCycle adds a cycle to the snapshot, reusing the slot's trail buffer.
func (s *GameSnapshot) appendCycle(c *Cycle) {
	var trail []physics.Point
	if n := len(s.Cycles); n < cap(s.Cycles) {
		trail = s.Cycles[:n+1][n].Trail[:0]
	}
	trail = append(trail, c.Trail.Points()...)

	s.Cycles = append(s.Cycles, CycleSnapshot{
		ID:       c.ID,
		Owner:    c.Owner,
		Color:    c.Color,
		PrevX:    c.prevX,
		PrevZ:    c.prevZ,
		X:        c.Body.X,
		Z:        c.Body.Z,
		PrevDirX: c.prevDirX,
		PrevDirZ: c.prevDirZ,
		DirX:     c.DirX,
		DirZ:     c.DirZ,
		Speed:    c.Speed,
		Alive:    c.Alive(),
		Status:   c.Status.String(),
		Rubber:   c.Rubber.Rubber,
		Grinding: c.Rubber.Grinding,
		Kills:    c.Kills,
		Deaths:   c.Deaths,
		Wins:     c.Wins,
		Trail:    trail,
	})
	if c.Alive() {
		s.AliveCount++
	}
}
