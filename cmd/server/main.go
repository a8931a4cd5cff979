package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/PropertySightlines/cyber-cycles-sub001/internal/api"
	"github.com/PropertySightlines/cyber-cycles-sub001/internal/config"
	"github.com/PropertySightlines/cyber-cycles-sub001/internal/game"
	"github.com/PropertySightlines/cyber-cycles-sub001/internal/ipc"
)

func main() {
	// Load .env file from parent directory
	if err := godotenv.Load("../.env"); err != nil {
		// Try current directory as fallback
		if err := godotenv.Load(".env"); err != nil {
			log.Println("💡 No .env file found, using environment variables only")
		}
	} else {
		log.Println("✅ Loaded environment from ../.env")
	}

	log.Println("🏍️ ================================")
	log.Println("🏍️  CYBER CYCLES - ARENA SERVER")
	log.Println("🏍️ ================================")

	appConfig := config.Load()
	phys := appConfig.Physics
	schedCfg := appConfig.Scheduler

	engine := game.NewEngine(game.EngineConfig{
		Physics: phys,
		Spatial: appConfig.Spatial,
		Limits:  appConfig.Limits,
		Seed:    int64(getEnvInt("ARENA_SEED", 0)),
	})
	log.Printf("🎮 Physics: %s preset, arena ±%.0f, seed %d", phys.Name, phys.Arena.HalfExtent, engine.Seed())
	log.Printf("🛡️ Resource limits: %d cycles, %d queued inputs, %d websockets",
		appConfig.Limits.MaxCycles, appConfig.Limits.InputQueueSize, appConfig.Limits.MaxWSConnections)

	if bots := getEnvInt("ARENA_BOTS", 0); bots > 0 {
		for i := 0; i < bots; i++ {
			if _, err := engine.Join("bot-"+strconv.Itoa(i+1), "", game.ControllerAI); err != nil {
				log.Printf("⚠️ Bot %d not added: %v", i+1, err)
				break
			}
		}
	}

	if path := appConfig.Server.EventLogPath; path != "" {
		if err := engine.StartEventLog(path); err != nil {
			log.Printf("⚠️ Event log disabled: %v", err)
		} else {
			log.Printf("📝 Event log: %s", path)
		}
	}

	runner := game.NewRunner(engine, schedCfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	api.WatchFrames(ctx, runner, engine)
	driveBots(ctx, runner, game.NewPilot(engine, game.DefaultPilotConfig(), engine.Seed()))
	debugServer := api.StartDebugServer(api.DebugServerConfigFrom(appConfig.Observability))

	var publisher *ipc.Publisher
	if path := appConfig.IPC.SocketPath; path != "" {
		publisher = ipc.NewPublisher(path)
		publisher.SetHello(ipc.HelloFromEngine(engine, schedCfg.TickRate))
		if err := publisher.Start(); err != nil {
			log.Printf("⚠️ Snapshot feed disabled: %v", err)
			publisher = nil
		} else {
			feedSnapshots(ctx, runner, engine, publisher, appConfig.IPC.PublishEvery)
		}
	}

	server := api.NewServer(engine, runner, appConfig.Server, appConfig.Limits)

	runner.Start()
	log.Println("✅ Arena simulation started")

	go func() {
		addr := ":" + strconv.Itoa(appConfig.Server.Port)
		log.Printf("🌐 API server on http://localhost%s", addr)
		log.Printf("🔌 WebSocket: ws://localhost%s/ws", addr)

		if err := server.Start(addr); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	log.Println("✅ Server ready! Press Ctrl+C to stop.")
	<-quit

	log.Println("🛑 Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("⚠️ API shutdown: %v", err)
	}
	if debugServer != nil {
		debugServer.Shutdown(shutdownCtx)
	}

	runner.Stop()
	if publisher != nil {
		publisher.Stop()
	}
	engine.StopEventLog()
	log.Println("👋 Goodbye!")
}

// driveBots lets the pilot steer AI cycles once per simulated frame.
func driveBots(ctx context.Context, runner *game.Runner, pilot *game.Pilot) {
	reports, unsubscribe := runner.Subscribe(4)

	go func() {
		defer unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case report, ok := <-reports:
				if !ok {
					return
				}
				if report.Ticks > 0 {
					pilot.Drive()
				}
			}
		}
	}()
}

// feedSnapshots publishes the engine state every `every` simulation ticks.
func feedSnapshots(ctx context.Context, runner *game.Runner, engine *game.Engine, pub *ipc.Publisher, every int) {
	if every < 1 {
		every = 1
	}
	reports, unsubscribe := runner.Subscribe(8)

	go func() {
		defer unsubscribe()
		pending := 0
		for {
			select {
			case <-ctx.Done():
				return
			case report, ok := <-reports:
				if !ok {
					return
				}
				pending += report.Ticks
				if pending < every {
					continue
				}
				pending = 0
				pub.Publish(ipc.SnapshotFromEngine(engine, report.Alpha))
			}
		}
	}()
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}
