package game

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/PropertySightlines/cyber-cycles-sub001/internal/game/spatial"
)

const (
	EventBufferSize     = 1024                   // Pending records between flushes
	MaxEventsPerSec     = 10000                  // Global rate limit
	MaxEventsPerCycle   = 100                    // Per-cycle rate limit per second
	BatchFlushSize      = 64                     // Records per batch write
	BatchFlushInterval  = 100 * time.Millisecond // How often to flush
	CycleLimiterCleanup = 5 * time.Minute        // Idle limiter eviction
)

// LogRecord is one line of the event log.
type LogRecord struct {
	Version   uint8  `json:"version"`
	Sequence  uint64 `json:"sequence"`
	Timestamp int64  `json:"timestamp"` // Unix nano
	Event
}

// EventLog writes tick outcomes as newline-delimited JSON. Emission never
// blocks the tick: records beyond the rate limits or buffer are dropped and
// counted.
type EventLog struct {
	queue *spatial.Queue[LogRecord]

	globalLimiter *rate.Limiter
	cycleLimiters sync.Map // map[string]*limiterEntry

	lifeMu   sync.Mutex // serializes Start and Stop
	writerWg sync.WaitGroup
	stopChan chan struct{}
	running  atomic.Bool

	file   *os.File
	out    *bufio.Writer
	fileMu sync.Mutex

	sequence     atomic.Uint64
	droppedCount atomic.Uint64
	totalCount   atomic.Uint64
	writtenCount atomic.Uint64
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastUsed atomic.Int64
}

// NewEventLog creates a bounded event log.
func NewEventLog() *EventLog {
	return &EventLog{
		queue:         spatial.NewQueue[LogRecord](EventBufferSize),
		globalLimiter: rate.NewLimiter(MaxEventsPerSec, MaxEventsPerSec/10),
	}
}

// Start opens the file (append) and begins the async writer. An empty path
// keeps the log in memory-only mode: records are counted and discarded.
// A stopped log can be started again.
func (el *EventLog) Start(filePath string) error {
	el.lifeMu.Lock()
	defer el.lifeMu.Unlock()
	if el.running.Load() {
		return nil
	}

	if filePath != "" {
		file, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("open event log: %w", err)
		}
		el.fileMu.Lock()
		el.file = file
		el.out = bufio.NewWriter(file)
		el.fileMu.Unlock()
	}

	stop := make(chan struct{})
	el.stopChan = stop
	el.running.Store(true)
	el.writerWg.Add(2)
	go el.writerLoop(stop)
	go el.cleanupLoop(stop)

	return nil
}

// Stop flushes pending records and closes the file.
func (el *EventLog) Stop() {
	el.lifeMu.Lock()
	defer el.lifeMu.Unlock()
	if !el.running.Load() {
		return
	}

	el.running.Store(false)
	close(el.stopChan)
	el.writerWg.Wait()

	el.fileMu.Lock()
	if el.out != nil {
		el.out.Flush()
	}
	if el.file != nil {
		el.file.Close()
	}
	el.out, el.file = nil, nil
	el.fileMu.Unlock()
}

// Emit queues one event. Returns false when rate limited or full.
func (el *EventLog) Emit(ev Event) bool {
	if !el.running.Load() {
		return false
	}
	if !el.globalLimiter.Allow() {
		el.droppedCount.Add(1)
		return false
	}
	if ev.CycleID != "" && !el.cycleLimiter(ev.CycleID).Allow() {
		el.droppedCount.Add(1)
		return false
	}

	rec := LogRecord{
		Version:   EventVersion,
		Sequence:  el.sequence.Add(1),
		Timestamp: time.Now().UnixNano(),
		Event:     ev,
	}
	if !el.queue.TryPush(rec) {
		el.droppedCount.Add(1)
		return false
	}
	el.totalCount.Add(1)
	return true
}

// EmitOutcome queues every event of a tick outcome.
func (el *EventLog) EmitOutcome(out TickOutcome) {
	for _, ev := range out.Events {
		el.Emit(ev)
	}
}

func (el *EventLog) cycleLimiter(id string) *rate.Limiter {
	now := time.Now().UnixNano()
	if v, ok := el.cycleLimiters.Load(id); ok {
		entry := v.(*limiterEntry)
		entry.lastUsed.Store(now)
		return entry.limiter
	}
	entry := &limiterEntry{limiter: rate.NewLimiter(MaxEventsPerCycle, MaxEventsPerCycle/10)}
	entry.lastUsed.Store(now)
	actual, _ := el.cycleLimiters.LoadOrStore(id, entry)
	return actual.(*limiterEntry).limiter
}

func (el *EventLog) writerLoop(stop <-chan struct{}) {
	defer el.writerWg.Done()

	ticker := time.NewTicker(BatchFlushInterval)
	defer ticker.Stop()

	batch := make([]LogRecord, 0, BatchFlushSize)
	for {
		select {
		case <-stop:
			for {
				batch = el.collectBatch(batch[:0])
				if len(batch) == 0 {
					return
				}
				el.flushBatch(batch)
			}
		case <-ticker.C:
			batch = el.collectBatch(batch[:0])
			if len(batch) > 0 {
				el.flushBatch(batch)
			}
		}
	}
}

func (el *EventLog) cleanupLoop(stop <-chan struct{}) {
	defer el.writerWg.Done()

	ticker := time.NewTicker(CycleLimiterCleanup)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-CycleLimiterCleanup).UnixNano()
			el.cycleLimiters.Range(func(key, value any) bool {
				if value.(*limiterEntry).lastUsed.Load() < cutoff {
					el.cycleLimiters.Delete(key)
				}
				return true
			})
		}
	}
}

func (el *EventLog) collectBatch(batch []LogRecord) []LogRecord {
	for len(batch) < BatchFlushSize {
		rec, ok := el.queue.TryPop()
		if !ok {
			break
		}
		batch = append(batch, rec)
	}
	return batch
}

func (el *EventLog) flushBatch(batch []LogRecord) {
	el.fileMu.Lock()
	defer el.fileMu.Unlock()

	el.writtenCount.Add(uint64(len(batch)))
	if el.out == nil {
		return
	}
	for _, rec := range batch {
		data, err := json.Marshal(rec)
		if err != nil {
			continue
		}
		el.out.Write(data)
		el.out.WriteByte('\n')
	}
	el.out.Flush()
}

// EventLogStats is a point-in-time view of the log counters.
type EventLogStats struct {
	Total   uint64 `json:"total"`
	Written uint64 `json:"written"`
	Dropped uint64 `json:"dropped"`
	Pending int    `json:"pending"`
	Running bool   `json:"running"`
}

// Stats returns log counters for monitoring.
func (el *EventLog) Stats() EventLogStats {
	return EventLogStats{
		Total:   el.totalCount.Load(),
		Written: el.writtenCount.Load(),
		Dropped: el.droppedCount.Load(),
		Pending: el.queue.Len(),
		Running: el.running.Load(),
	}
}
