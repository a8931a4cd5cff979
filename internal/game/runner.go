package game

import (
	"log"
	"sync"
	"time"

	"github.com/PropertySightlines/cyber-cycles-sub001/internal/config"
)

// FrameReport is what the runner publishes after every wakeup.
type FrameReport struct {
	Frame
	Elapsed  time.Duration // wall time since the previous wakeup
	Duration time.Duration // time spent inside Advance
}

// Runner hosts a Scheduler on a ticker goroutine and fans frame reports out
// to subscribers. Slow subscribers miss reports rather than stall the loop.
type Runner struct {
	mu       sync.Mutex
	sched    *Scheduler
	interval time.Duration
	running  bool
	stopChan chan struct{}
	done     chan struct{}

	subMu sync.RWMutex
	subs  map[int]chan FrameReport
	next  int
	stats SchedulerStats
}

// NewRunner creates a runner for engine using the scheduler settings.
func NewRunner(engine *Engine, cfg config.Scheduler) *Runner {
	sched := NewScheduler(engine, cfg, engine.Snapshots())
	return &Runner{
		sched:    sched,
		interval: cfg.FrameInterval(),
		subs:     make(map[int]chan FrameReport),
		stats:    sched.Stats(),
	}
}

// Start begins the loop. Calling Start on a running runner does nothing.
func (r *Runner) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return
	}
	r.running = true
	r.stopChan = make(chan struct{})
	r.done = make(chan struct{})

	go r.loop(r.stopChan, r.done)
	log.Printf("🎮 Scheduler started: %.0f Hz simulation, %v frames",
		1/r.sched.FixedDt(), r.interval)
}

// Stop ends the loop and waits for it to exit. Safe to call repeatedly.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	close(r.stopChan)
	done := r.done
	r.mu.Unlock()

	<-done
	log.Println("🛑 Scheduler stopped")
}

// Running reports whether the loop is active.
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *Runner) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case now := <-ticker.C:
			elapsed := now.Sub(last)
			last = now

			start := time.Now()
			frame := r.sched.Advance(elapsed.Seconds())
			report := FrameReport{Frame: frame, Elapsed: elapsed, Duration: time.Since(start)}

			r.subMu.Lock()
			r.stats = r.sched.Stats()
			r.subMu.Unlock()
			r.publish(report)
		case <-stop:
			return
		}
	}
}

// Subscribe returns a channel of frame reports and a cancel function.
func (r *Runner) Subscribe(buffer int) (<-chan FrameReport, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan FrameReport, buffer)

	r.subMu.Lock()
	id := r.next
	r.next++
	r.subs[id] = ch
	r.subMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			r.subMu.Lock()
			delete(r.subs, id)
			r.subMu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

func (r *Runner) publish(report FrameReport) {
	r.subMu.RLock()
	defer r.subMu.RUnlock()
	for _, ch := range r.subs {
		select {
		case ch <- report:
		default:
		}
	}
}

// Stats returns the scheduler counters as of the last frame.
func (r *Runner) Stats() SchedulerStats {
	r.subMu.RLock()
	defer r.subMu.RUnlock()
	return r.stats
}
