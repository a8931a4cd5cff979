package api

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/PropertySightlines/cyber-cycles-sub001/internal/config"
	"github.com/PropertySightlines/cyber-cycles-sub001/internal/game"
)

// Metrics with bounded cardinality (no per-cycle labels to prevent DoS)
var (
	// Simulation metrics
	tickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "arena_tick_duration_seconds",
		Help:    "Time spent in one simulation step",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025},
	})

	frameTicks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_ticks_total",
		Help: "Simulation steps executed by the scheduler",
	})

	frameDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_ticks_dropped_total",
		Help: "Whole steps discarded by the catch-up cap",
	})

	cyclesAlive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arena_cycles_alive",
		Help: "Cycles currently alive",
	})

	cyclesTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arena_cycles",
		Help: "Cycles in the arena",
	})

	deathsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_deaths_total",
		Help: "Cycle deaths by cause",
	}, []string{"cause"}) // Bounded: game.DeathCause names

	grindsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_grind_events_total",
		Help: "Times a cycle started grinding",
	})

	roundEndsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_round_ends_total",
		Help: "Rounds completed",
	})

	inputDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_input_dropped_total",
		Help: "Input intents dropped by rate limit or full queue",
	})

	// Event log metrics
	eventLogTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "event_log_total",
		Help: "Total events logged",
	})

	eventLogDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "event_log_dropped_total",
		Help: "Events dropped due to rate limiting or buffer full",
	})

	// DoS detection metrics - use ONLY bounded label values
	connectionRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "connection_rejected_total",
		Help: "Connections rejected by rate limiter or origin check",
	}, []string{"reason"}) // Bounded: "rate_limit", "origin", "invalid", "ws_total_limit", "ws_ip_limit", "auth"

	// HTTP metrics with bounded labels
	requestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint"}) // endpoint is the route pattern, not the URL

	requestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "endpoint", "status"})

	// WebSocket metrics
	wsConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "websocket_connections_active",
		Help: "Currently active WebSocket connections",
	})

	wsMessagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "websocket_messages_total",
		Help: "Total WebSocket messages sent",
	})
)

// DebugServerConfig configures the pprof/metrics server.
type DebugServerConfig struct {
	Enabled       bool
	ListenAddr    string // Forced to localhost unless AllowExternal
	AllowExternal bool
	BasicAuthUser string // Optional basic auth
	BasicAuthPass string
}

// DebugServerConfigFrom converts the loaded observability settings.
func DebugServerConfigFrom(cfg config.ObservabilityConfig) DebugServerConfig {
	host := "127.0.0.1"
	if cfg.AllowExternal {
		host = "0.0.0.0"
	}
	return DebugServerConfig{
		Enabled:       cfg.Enabled,
		ListenAddr:    fmt.Sprintf("%s:%d", host, cfg.Port),
		AllowExternal: cfg.AllowExternal,
		BasicAuthUser: cfg.BasicAuthUser,
		BasicAuthPass: cfg.BasicAuthPass,
	}
}

// DebugHandler returns the pprof, /metrics and /health routes.
func DebugHandler(cfg DebugServerConfig) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	if cfg.BasicAuthUser != "" {
		return basicAuthMiddleware(cfg.BasicAuthUser, cfg.BasicAuthPass, mux)
	}
	return mux
}

// StartDebugServer starts the internal observability server. It returns
// nil when disabled. pprof is only reachable from localhost unless
// AllowExternal is set.
func StartDebugServer(cfg DebugServerConfig) *http.Server {
	if !cfg.Enabled {
		log.Println("📊 Debug server disabled")
		return nil
	}

	if !cfg.AllowExternal {
		if _, port, ok := splitLoopback(cfg.ListenAddr); !ok {
			log.Println("⚠️ Debug server forced to localhost for security")
			cfg.ListenAddr = "127.0.0.1:" + port
		}
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           DebugHandler(cfg),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("📊 Debug server starting on %s", cfg.ListenAddr)
		log.Printf("   - pprof:   http://%s/debug/pprof/", cfg.ListenAddr)
		log.Printf("   - metrics: http://%s/metrics", cfg.ListenAddr)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("⚠️ Debug server error: %v", err)
		}
	}()

	return srv
}

// splitLoopback returns the port of addr and whether its host is loopback.
func splitLoopback(addr string) (host, port string, ok bool) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil || port == "" {
		return "", "6060", false
	}
	return host, port, host == "127.0.0.1" || host == "localhost" || host == "::1"
}

// basicAuthMiddleware adds basic authentication to the handler
func basicAuthMiddleware(user, pass string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || !secureEqual(u, user) || !secureEqual(p, pass) {
			w.Header().Set("WWW-Authenticate", `Basic realm="debug"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// metricsMiddleware records latency per chi route pattern.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		endpoint := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				endpoint = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		RecordRequest(r.Method, endpoint, status, time.Since(start))
	})
}

// RecordTick records simulation step timing for metrics
func RecordTick(duration time.Duration) {
	tickDuration.Observe(duration.Seconds())
}

// RecordFrame records one scheduler frame and the events of its ticks.
func RecordFrame(report game.FrameReport) {
	if report.Ticks > 0 {
		frameTicks.Add(float64(report.Ticks))
		RecordTick(report.Duration / time.Duration(report.Ticks))
	}
	if report.Dropped > 0 {
		frameDropped.Add(float64(report.Dropped))
	}
	for _, out := range report.Outcomes {
		RecordOutcome(out)
	}
}

// RecordOutcome counts the deaths, grinds and round ends of one tick.
func RecordOutcome(out game.TickOutcome) {
	for _, ev := range out.Events {
		switch ev.Type {
		case game.EventTypeDeath:
			deathsTotal.WithLabelValues(ev.Cause.String()).Inc()
		case game.EventTypeGrind:
			grindsTotal.Inc()
		case game.EventTypeRoundEnd:
			roundEndsTotal.Inc()
		}
	}
}

// UpdateCycleCounts updates the cycle gauges
func UpdateCycleCounts(total, alive int) {
	cyclesTotal.Set(float64(total))
	cyclesAlive.Set(float64(alive))
}

// eventLogSeen tracks the last event log totals so counters get deltas.
var eventLogSeen struct {
	sync.Mutex
	total, dropped uint64
}

// UpdateEventLogStats folds cumulative event log totals into the counters.
func UpdateEventLogStats(total, dropped uint64) {
	eventLogSeen.Lock()
	defer eventLogSeen.Unlock()
	if total > eventLogSeen.total {
		eventLogTotal.Add(float64(total - eventLogSeen.total))
	}
	if dropped > eventLogSeen.dropped {
		eventLogDropped.Add(float64(dropped - eventLogSeen.dropped))
	}
	eventLogSeen.total, eventLogSeen.dropped = total, dropped
}

// RecordInputDropped counts an input intent that never reached the engine.
func RecordInputDropped() {
	inputDropped.Inc()
}

// RecordConnectionRejected increments the rejection counter
func RecordConnectionRejected(reason string) {
	connectionRejected.WithLabelValues(reason).Inc()
}

// RecordRequest records HTTP request metrics
func RecordRequest(method, endpoint string, status int, duration time.Duration) {
	requestLatency.WithLabelValues(method, endpoint).Observe(duration.Seconds())
	requestTotal.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
}

// UpdateWSConnections updates WebSocket connection count
func UpdateWSConnections(count int) {
	wsConnectionsActive.Set(float64(count))
}

// IncrementWSMessages increments WebSocket message counter
func IncrementWSMessages() {
	wsMessagesTotal.Inc()
}

// FrameSource is the part of game.Runner the metrics watcher needs.
type FrameSource interface {
	Subscribe(buffer int) (<-chan game.FrameReport, func())
}

// WatchFrames records metrics for every frame until ctx is done or the
// source closes the channel.
func WatchFrames(ctx context.Context, src FrameSource, engine EngineInterface) {
	reports, cancel := src.Subscribe(64)
	go func() {
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case report, ok := <-reports:
				if !ok {
					return
				}
				RecordFrame(report)
				if report.Ticks == 0 {
					continue
				}
				stats := engine.Stats()
				UpdateCycleCounts(stats.Cycles, stats.Alive)
				UpdateEventLogStats(stats.EventLog.Total, stats.EventLog.Dropped)
			}
		}
	}()
}
