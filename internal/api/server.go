package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/PropertySightlines/cyber-cycles-sub001/internal/config"
)

// Server is the HTTP API server with WebSocket support.
// It combines the HTTP router with the WebSocket hub for real-time updates.
type Server struct {
	engine      EngineInterface
	router      *chi.Mux
	wsHub       *WebSocketHub
	rateLimiter *IPRateLimiter
	admin       *SessionManager
	controls    *ControlTokens

	mu      sync.Mutex
	httpSrv *http.Server
	started bool
}

// NewServer creates a new API server.
//
// Background workers do NOT start until Start() is called, so tests can
// construct the server and use Router() without goroutines or listeners
// beyond the rate limiter cleanup.
func NewServer(engine EngineInterface, scheduler SchedulerInterface, srvCfg config.ServerConfig, limits config.ResourceLimits) *Server {
	controls := NewControlTokens()
	s := &Server{
		engine:      engine,
		rateLimiter: NewIPRateLimiter(DefaultRateLimitConfig),
		admin:       NewSessionManager(srvCfg.AdminToken),
		controls:    controls,
		wsHub: NewWebSocketHub(engine, HubConfig{
			MaxConnections:  limits.MaxWSConnections,
			MaxPerIP:        MaxWSConnectionsPerIP,
			InputsPerSecond: limits.InputsPerSecond,
			Origins:         srvCfg.AllowedOrigins,
			Controls:        controls,
		}),
	}

	s.router = NewRouter(RouterConfig{
		Engine:      engine,
		Scheduler:   scheduler,
		RateLimiter: s.rateLimiter,
		CORSOrigins: srvCfg.AllowedOrigins,
		Admin:       s.admin,
		Controls:    controls,
	})

	// The websocket route needs the hub instance, so it can't be part of
	// the generic NewRouter factory.
	s.router.Get("/ws", s.wsHub.HandleWebSocket)

	if s.admin == nil {
		log.Println("🔒 ADMIN_TOKEN not set, admin routes disabled")
	}
	return s
}

// Start launches the hub and broadcast loop and serves HTTP until Shutdown.
// It returns nil after a graceful shutdown.
func (s *Server) Start(addr string) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("api server already started")
	}
	s.started = true
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	srv := s.httpSrv
	s.mu.Unlock()

	go s.wsHub.Run()
	s.wsHub.StartBroadcastLoop()

	log.Printf("🌐 API server starting on %s", addr)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Router returns the HTTP handler for use with httptest.
//
// Example:
//
//	server := api.NewServer(engine, runner, cfg.Server, cfg.Limits)
//	ts := httptest.NewServer(server.Router())
//	defer ts.Close()
//	resp, _ := http.Get(ts.URL + "/api/state")
func (s *Server) Router() http.Handler {
	return s.router
}

// Controls returns the cycle control token store shared by HTTP and
// websocket input.
func (s *Server) Controls() *ControlTokens {
	return s.controls
}

// Hub returns the websocket hub.
func (s *Server) Hub() *WebSocketHub {
	return s.wsHub
}

// Shutdown stops accepting requests, disconnects websocket clients and
// stops background workers.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpSrv
	s.mu.Unlock()

	var err error
	if srv != nil {
		err = srv.Shutdown(ctx)
	}
	s.Stop()
	if err != nil {
		return fmt.Errorf("api shutdown: %w", err)
	}
	return nil
}

// Stop stops background workers without touching the listener.
func (s *Server) Stop() {
	s.wsHub.Stop()
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}
	if s.admin != nil {
		s.admin.Stop()
	}
}
