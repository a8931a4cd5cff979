// Command mirror follows an arena server's snapshot feed with a local
// predictive engine. Between snapshots the local engine simulates on its
// own; each snapshot is applied as absolute state, and the position error
// the prediction built up is logged.
//
// USAGE:
//  1. Start the arena server first: go run ./cmd/server
//  2. Then start this mirror: go run ./cmd/mirror
package main

import (
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/PropertySightlines/cyber-cycles-sub001/internal/config"
	"github.com/PropertySightlines/cyber-cycles-sub001/internal/game"
	"github.com/PropertySightlines/cyber-cycles-sub001/internal/ipc"
)

// driftWarning is the position error (world units) logged individually.
const driftWarning = 5.0

// driftStats accumulates divergence between stats lines.
type driftStats struct {
	mu        sync.Mutex
	snapshots int
	sumMean   float64
	max       float64
	worst     string
	missing   int
	mismatch  int
	applyErrs int
}

func (d *driftStats) add(div ipc.Divergence, applyErr error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.snapshots++
	d.sumMean += div.MeanError
	if div.MaxError > d.max {
		d.max = div.MaxError
		d.worst = div.WorstID
	}
	d.missing += div.Missing
	d.mismatch += div.Mismatch
	if applyErr != nil {
		d.applyErrs++
	}
}

// flush logs and resets the accumulated figures.
func (d *driftStats) flush() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.snapshots == 0 {
		return
	}
	log.Printf("📐 Drift: %d snapshots, mean %.3f, max %.3f (%s), missing=%d, alive mismatches=%d, apply errors=%d",
		d.snapshots, d.sumMean/float64(d.snapshots), d.max, d.worst, d.missing, d.mismatch, d.applyErrs)
	d.snapshots, d.sumMean, d.max, d.worst = 0, 0, 0, ""
	d.missing, d.mismatch, d.applyErrs = 0, 0, 0
}

func main() {
	if err := godotenv.Load("../.env"); err != nil {
		if err := godotenv.Load(".env"); err != nil {
			log.Println("💡 No .env file found, using environment variables only")
		}
	}

	log.Println("🪞 ================================")
	log.Println("🪞  CYBER CYCLES - MIRROR")
	log.Println("🪞 ================================")

	ipcCfg := config.IPCFromEnv()
	if ipcCfg.SocketPath == "" {
		ipcCfg.SocketPath = ipc.DefaultSocketPath
	}

	// Only the newest snapshot matters; older ones are overwritten.
	incoming := make(chan *ipc.WorldSnapshot, 1)
	subscriber := ipc.NewSubscriber(ipcCfg.SocketPath, func(ws *ipc.WorldSnapshot) {
		select {
		case incoming <- ws:
		default:
			select {
			case <-incoming:
			default:
			}
			select {
			case incoming <- ws:
			default:
			}
		}
	})
	subscriber.Start()

	log.Println("⏳ Waiting for arena server hello...")
	var hello *ipc.HelloMessage
	for hello == nil {
		h, ok := subscriber.WaitForHello(30 * time.Second)
		if !ok {
			log.Println("⚠️ No hello yet. Make sure the arena server is running: go run ./cmd/server")
			continue
		}
		hello = h
	}

	schedCfg := config.SchedulerFromEnv()
	if hello.TickRate > 0 {
		schedCfg.TickRate = hello.TickRate
	}
	engine := game.NewEngine(game.EngineConfig{
		Physics: hello.Physics(),
		Spatial: config.SpatialFromEnv(),
		Limits:  config.LimitsFromEnv(),
		Seed:    hello.Seed,
	})
	runner := game.NewRunner(engine, schedCfg)
	runner.Start()

	var drift driftStats
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ws := range incoming {
			div := ws.Measure(engine)
			err := ws.Apply(engine)
			if err != nil {
				log.Printf("⚠️ %v", err)
			}
			if div.MaxError > driftWarning {
				log.Printf("📐 Snapshot %d (tick %d): %s drifted %.2f", ws.Sequence, ws.Tick, div.WorstID, div.MaxError)
			}
			drift.add(div, err)
		}
	}()

	// Stats logging goroutine
	statsStop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-statsStop:
				return
			case <-ticker.C:
				stats := subscriber.Stats()
				log.Printf("📡 IPC: snapshots=%d, gaps=%d, reconnects=%d, errors=%d, rtt=%v, connected=%v",
					stats.Received, stats.Gaps, stats.Reconnects, stats.Errors, stats.RTT, subscriber.IsConnected())
				drift.flush()
			}
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	log.Println("✅ Mirror ready! Press Ctrl+C to stop.")
	<-quit

	log.Println("🛑 Shutting down mirror...")
	close(statsStop)
	subscriber.Stop()
	close(incoming)
	<-done
	runner.Stop()
	drift.flush()
	log.Println("👋 Goodbye!")
}
