package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/PropertySightlines/cyber-cycles-sub001/internal/game"
	"github.com/PropertySightlines/cyber-cycles-sub001/internal/game/physics"
)

// EngineInterface defines the engine methods used by the API.
// This interface enables mocking for tests without spinning up the scheduler.
// Keep this minimal - only include methods the API layer actually calls.
type EngineInterface interface {
	// States returns every cycle's serialized state in update order
	States() []game.CycleState
	// Cycle returns one cycle's state
	Cycle(id string) (game.CycleState, bool)
	// Stats returns engine counters
	Stats() game.EngineStats
	// Leaderboard returns the ranking
	Leaderboard() *game.Leaderboard
	// Join adds a cycle at a spawn slot
	Join(owner, color string, ctl game.Controller) (game.CycleState, error)
	// Respawn requests a respawn for a dead cycle
	Respawn(cycleID string) error
	// SubmitInput queues an input intent for the next tick
	SubmitInput(cycleID string, in game.Input) bool
	// AddObstacle registers a static wall
	AddObstacle(id string, seg physics.Segment) error
	// RemoveCycle takes a cycle and its trail out of the arena
	RemoveCycle(id string) error
}

// SchedulerInterface exposes the fixed-timestep counters for /api/stats.
type SchedulerInterface interface {
	Stats() game.SchedulerStats
	Running() bool
}

// RouterConfig contains all dependencies needed to construct the HTTP router.
// This struct is designed for dependency injection and testability.
//
// Example usage in tests:
//
//	cfg := api.RouterConfig{
//	    Engine: engine,
//	    RateLimitConfig: &api.RateLimitConfig{
//	        RequestsPerSecond: 1000, // High limit for tests
//	        Burst:             1000,
//	    },
//	}
//	router := api.NewRouter(cfg)
//	ts := httptest.NewServer(router)
type RouterConfig struct {
	// Engine is the simulation (required)
	Engine EngineInterface

	// Scheduler is optional; /api/stats omits scheduler counters without it.
	Scheduler SchedulerInterface

	// RateLimiter is an optional pre-configured rate limiter.
	// If nil, a new one will be created using RateLimitConfig.
	RateLimiter *IPRateLimiter

	// RateLimitConfig is optional configuration for the rate limiter.
	// Only used if RateLimiter is nil. If both are nil, uses DefaultRateLimitConfig.
	RateLimitConfig *RateLimitConfig

	// CORSOrigins is an optional list of allowed CORS origins.
	// If nil, only localhost origins are allowed.
	CORSOrigins []string

	// Controls holds cycle control tokens. If nil, the router creates its
	// own; pass the server's store to share it with the websocket hub.
	Controls *ControlTokens

	// Admin guards /api/admin. Nil leaves the admin routes unmounted.
	Admin *SessionManager

	// DisableLogging disables the request logger middleware (useful for benchmarks).
	DisableLogging bool
}

// routerHandlers holds the handler functions for the router.
type routerHandlers struct {
	engine    EngineInterface
	scheduler SchedulerInterface
	controls  *ControlTokens
}

// NewRouter constructs the HTTP router with all middleware and routes.
//
// NewRouter has no side effects beyond the rate limiter's cleanup goroutine
// (when it creates one): no listeners are opened and the simulation is not
// started, so it is safe to use with httptest.NewServer.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Middleware - Order matters!
	if !cfg.DisableLogging {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)
	r.Use(metricsMiddleware)

	// Rate limiting (BEFORE CORS to reject early and save CPU)
	rateLimiter := cfg.RateLimiter
	if rateLimiter == nil {
		rateLimitCfg := DefaultRateLimitConfig
		if cfg.RateLimitConfig != nil {
			rateLimitCfg = *cfg.RateLimitConfig
		}
		rateLimiter = NewIPRateLimiter(rateLimitCfg)
	}
	r.Use(rateLimiter.Middleware)

	corsOrigins := cfg.CORSOrigins
	if corsOrigins == nil {
		corsOrigins = []string{
			"http://localhost:*",
			"http://127.0.0.1:*",
		}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", ControlTokenHeader},
		AllowCredentials: true,
	}))

	controls := cfg.Controls
	if controls == nil {
		controls = NewControlTokens()
	}
	h := &routerHandlers{
		engine:    cfg.Engine,
		scheduler: cfg.Scheduler,
		controls:  controls,
	}

	r.Route("/api", func(r chi.Router) {
		// Arena state
		r.Get("/state", h.handleGetState)
		r.Get("/stats", h.handleGetStats)
		r.Get("/leaderboard", h.handleGetLeaderboard)

		// Cycle control
		r.Post("/cycle/join", h.handleCycleJoin)
		r.Get("/cycle/{id}", h.handleGetCycle)
		r.Post("/cycle/{id}/respawn", h.handleCycleRespawn)
		r.Post("/cycle/{id}/input", h.handleCycleInput)

		if cfg.Admin != nil {
			r.Route("/admin", func(r chi.Router) {
				r.Post("/login", cfg.Admin.HandleLogin)
				r.Get("/status", cfg.Admin.HandleAuthStatus)

				r.Group(func(r chi.Router) {
					r.Use(cfg.Admin.AdminAuthMiddleware)
					r.Post("/logout", cfg.Admin.HandleLogout)
					r.Post("/obstacle", h.handleAddObstacle)
					r.Post("/bots", h.handleAddBots)
					r.Delete("/cycle/{id}", h.handleRemoveCycle)
				})
			})
		}
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"status": "ok"})
	})

	return r
}
