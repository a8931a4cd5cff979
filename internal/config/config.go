// Package config provides centralized configuration management.
//
// Physics values are immutable: engines receive a Physics value at
// construction and never read globals. Named presets live in presets.go.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// =============================================================================
// PHYSICS CONFIGURATION
// =============================================================================

// Cycle holds movement tuning for a single light-cycle.
type Cycle struct {
	BaseSpeed       float64 // Cruise speed (units/s)
	MaxSpeed        float64 // Hard ceiling on speed
	MinSpeed        float64 // Floor reached while braking
	Acceleration    float64 // Rate speed recovers toward its target (units/s²)
	BrakeDecel      float64 // Deceleration while braking (units/s²)
	TurnSpeed       float64 // Radians per second while a turn is held
	CollisionRadius float64 // Cycle-to-cycle circle test radius
}

// Rubber holds the grinding budget tuning.
type Rubber struct {
	MaxRubber       float64 // Client-side ceiling
	ServerCeiling   float64 // Largest value the server accepts; never below MaxRubber
	DetectionRadius float64 // Walls closer than this start draining rubber
	MinDistance     float64 // Walls closer than this require rubber to survive
	ProximityFactor float64 // Scales proximity in the decay exponent
	RubberSpeed     float64 // Scales time in the decay exponent
	ConsumptionRate float64 // Rubber per second at full penetration
	GrindSlowdown   float64 // Speed loss per second at zero effectiveness
	RegenRate       float64 // Rubber per second while clear of walls
	MalusFactor     float64 // Regeneration multiplier after turning mid-grind
	MalusDuration   float64 // Seconds the malus lasts
}

// Trail holds wall-emission tuning.
type Trail struct {
	Spacing           float64 // Distance travelled between emitted points
	MinPointSpacing   float64 // Points closer than this to the last one are rejected
	MaxLength         float64 // Oldest points are trimmed past this total length
	SelfGraceDistance float64 // Own wall within this distance of the head is ignored
}

// Arena describes the playing field.
type Arena struct {
	HalfExtent float64 // Arena is the square [-HalfExtent, HalfExtent]²
	SpawnRing  float64 // Radius of the spawn circle as a fraction of HalfExtent
}

// Slipstream holds the drafting bonus tuning.
type Slipstream struct {
	Radius          float64 // Max distance to another cycle's trail
	MaxAngle        float64 // Max heading difference from the trail (radians)
	BoostMultiplier float64 // Target speed multiplier while boosting
}

// Round holds match flow timing.
type Round struct {
	RespawnDelay float64 // Seconds a dead cycle waits before respawning
	RestartDelay float64 // Seconds between a round ending and the next one
	AutoRespawn  bool    // Respawn dead cycles without waiting for the round
	MinPlayers   int     // Cycles required for a round to be scored
}

// Physics is the complete immutable simulation configuration.
type Physics struct {
	Name       string
	Cycle      Cycle
	Rubber     Rubber
	Trail      Trail
	Arena      Arena
	Slipstream Slipstream
	Round      Round
}

// DefaultPhysics returns the classic preset.
func DefaultPhysics() Physics {
	return Classic()
}

// PhysicsFromEnv returns the preset named by PHYSICS_PRESET with
// environment overrides for the arena size.
func PhysicsFromEnv() Physics {
	cfg, ok := Preset(os.Getenv("PHYSICS_PRESET"))
	if !ok {
		cfg = DefaultPhysics()
	}

	if h := getEnvFloat("ARENA_HALF_EXTENT", 0); h > 0 {
		cfg.Arena.HalfExtent = h
	}
	cfg.Round.AutoRespawn = getEnvBool("AUTO_RESPAWN", cfg.Round.AutoRespawn)

	return cfg
}

// =============================================================================
// SCHEDULER CONFIGURATION
// =============================================================================

// Scheduler holds fixed-timestep loop settings.
type Scheduler struct {
	TickRate        int // Simulation ticks per second
	FrameRate       int // Host loop wakeups per second
	MaxCatchUpTicks int // Ticks allowed per frame before time is dropped
}

// DefaultScheduler returns the default scheduler configuration.
func DefaultScheduler() Scheduler {
	return Scheduler{
		TickRate:        60,
		FrameRate:       60,
		MaxCatchUpTicks: 5,
	}
}

// SchedulerFromEnv returns scheduler configuration with environment overrides.
func SchedulerFromEnv() Scheduler {
	cfg := DefaultScheduler()

	if r := getEnvInt("TICK_RATE", 0); r > 0 {
		cfg.TickRate = r
	}
	if r := getEnvInt("FRAME_RATE", 0); r > 0 {
		cfg.FrameRate = r
	}
	if n := getEnvInt("MAX_CATCHUP_TICKS", 0); n > 0 {
		cfg.MaxCatchUpTicks = n
	}

	return cfg
}

// FixedDt returns the simulation step in seconds.
func (s Scheduler) FixedDt() float64 {
	if s.TickRate <= 0 {
		return 1.0 / 60.0
	}
	return 1.0 / float64(s.TickRate)
}

// FrameInterval returns the host loop period.
func (s Scheduler) FrameInterval() time.Duration {
	if s.FrameRate <= 0 {
		return time.Second / 60
	}
	return time.Second / time.Duration(s.FrameRate)
}

// =============================================================================
// RESOURCE LIMITS
// =============================================================================

// ResourceLimits controls DoS protection and performance limits.
type ResourceLimits struct {
	MaxCycles        int // Hard cap on cycles in the arena
	InputQueueSize   int // Pending input intents between ticks
	MaxWSConnections int // Concurrent websocket clients
	InputsPerSecond  int // Per-connection input intent rate
}

// DefaultLimits returns the default resource limits.
func DefaultLimits() ResourceLimits {
	return ResourceLimits{
		MaxCycles:        32,
		InputQueueSize:   1024,
		MaxWSConnections: 256,
		InputsPerSecond:  30,
	}
}

// LimitsFromEnv returns resource limits with environment overrides.
func LimitsFromEnv() ResourceLimits {
	cfg := DefaultLimits()

	if n := getEnvInt("MAX_CYCLES", 0); n > 0 {
		cfg.MaxCycles = n
	}
	if n := getEnvInt("MAX_WS_CONNECTIONS", 0); n > 0 {
		cfg.MaxWSConnections = n
	}

	return cfg
}

// =============================================================================
// SERVER CONFIGURATION
// =============================================================================

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port           int
	AllowedOrigins []string
	EventLogPath   string
	AdminToken     string // Bearer token for /api/admin; empty disables those routes
}

// DefaultServer returns the default server configuration.
func DefaultServer() ServerConfig {
	return ServerConfig{
		Port:           3000,
		AllowedOrigins: []string{"http://localhost:3000", "http://127.0.0.1:3000"},
		EventLogPath:   "",
	}
}

// ServerFromEnv returns server configuration with environment overrides.
func ServerFromEnv() ServerConfig {
	cfg := DefaultServer()

	if p := getEnvInt("PORT", 0); p > 0 {
		cfg.Port = p
	}
	if path := os.Getenv("EVENT_LOG_PATH"); path != "" {
		cfg.EventLogPath = path
	}
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = nil
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
			}
		}
	}
	cfg.AdminToken = os.Getenv("ADMIN_TOKEN")

	return cfg
}

// =============================================================================
// OBSERVABILITY CONFIGURATION
// =============================================================================

// ObservabilityConfig controls the pprof/metrics debug server.
type ObservabilityConfig struct {
	Enabled       bool
	Port          int
	AllowExternal bool
	BasicAuthUser string // Optional basic auth for the debug server
	BasicAuthPass string
}

// ObservabilityFromEnv returns debug server settings.
func ObservabilityFromEnv() ObservabilityConfig {
	cfg := ObservabilityConfig{Enabled: true, Port: 6060}

	cfg.Enabled = !getEnvBool("DISABLE_DEBUG_SERVER", false)
	cfg.AllowExternal = getEnvBool("ALLOW_DEBUG_EXTERNAL", false)
	if p := getEnvInt("DEBUG_PORT", 0); p > 0 {
		cfg.Port = p
	}
	cfg.BasicAuthUser = os.Getenv("DEBUG_AUTH_USER")
	cfg.BasicAuthPass = os.Getenv("DEBUG_AUTH_PASS")

	return cfg
}

// =============================================================================
// IPC CONFIGURATION
// =============================================================================

// IPCConfig holds the authoritative snapshot feed settings.
type IPCConfig struct {
	SocketPath   string
	PublishEvery int // Publish one snapshot every N ticks
}

// DefaultIPC returns the default snapshot feed configuration.
func DefaultIPC() IPCConfig {
	return IPCConfig{
		SocketPath:   "/tmp/cyber-cycles.sock",
		PublishEvery: 2,
	}
}

// IPCFromEnv returns snapshot feed settings with environment overrides.
func IPCFromEnv() IPCConfig {
	cfg := DefaultIPC()

	if path, ok := os.LookupEnv("IPC_SOCKET"); ok {
		cfg.SocketPath = path
	}
	if n := getEnvInt("IPC_PUBLISH_EVERY", 0); n > 0 {
		cfg.PublishEvery = n
	}

	return cfg
}

// =============================================================================
// SPATIAL CONFIGURATION
// =============================================================================

// SpatialConfig holds spatial indexing settings.
type SpatialConfig struct {
	CellSize float64 // Spatial hash cell edge length
}

// DefaultSpatial returns the default spatial configuration.
func DefaultSpatial() SpatialConfig {
	return SpatialConfig{
		CellSize: 5,
	}
}

// SpatialFromEnv returns spatial settings with environment overrides.
func SpatialFromEnv() SpatialConfig {
	cfg := DefaultSpatial()
	if c := getEnvFloat("SPATIAL_CELL_SIZE", 0); c > 0 {
		cfg.CellSize = c
	}
	return cfg
}

// =============================================================================
// COMPLETE APP CONFIGURATION
// =============================================================================

// AppConfig holds the complete application configuration.
type AppConfig struct {
	Physics       Physics
	Scheduler     Scheduler
	Server        ServerConfig
	Limits        ResourceLimits
	Spatial       SpatialConfig
	Observability ObservabilityConfig
	IPC           IPCConfig
}

// Load returns the complete configuration with environment overrides.
func Load() AppConfig {
	return AppConfig{
		Physics:       PhysicsFromEnv(),
		Scheduler:     SchedulerFromEnv(),
		Server:        ServerFromEnv(),
		Limits:        LimitsFromEnv(),
		Spatial:       SpatialFromEnv(),
		Observability: ObservabilityFromEnv(),
		IPC:           IPCFromEnv(),
	}
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}
