package api_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PropertySightlines/cyber-cycles-sub001/internal/api"
	"github.com/PropertySightlines/cyber-cycles-sub001/internal/config"
	"github.com/PropertySightlines/cyber-cycles-sub001/internal/game"
)

// ============================================================================
// Helpers
// ============================================================================

const testAdminToken = "let-me-in"

func newTestEngine(maxCycles, queue int) *game.Engine {
	return game.NewEngine(game.EngineConfig{
		Physics: config.Classic(),
		Spatial: config.DefaultSpatial(),
		Limits: config.ResourceLimits{
			MaxCycles:        maxCycles,
			InputQueueSize:   queue,
			MaxWSConnections: 4,
			InputsPerSecond:  100,
		},
		Seed: 7,
	})
}

// newTestRouter serves a real engine with generous rate limits.
func newTestRouter(t *testing.T, engine *game.Engine) *httptest.Server {
	t.Helper()
	admin := api.NewSessionManager(testAdminToken)
	t.Cleanup(admin.Stop)

	limiter := api.NewIPRateLimiter(api.RateLimitConfig{
		RequestsPerSecond: 1000,
		Burst:             1000,
		CleanupInterval:   time.Hour,
	})
	t.Cleanup(limiter.Stop)

	ts := httptest.NewServer(api.NewRouter(api.RouterConfig{
		Engine:         engine,
		RateLimiter:    limiter,
		Admin:          admin,
		DisableLogging: true,
	}))
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url string, body interface{}, header ...string) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(raw))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

// joinedCycle is the /api/cycle/join response.
type joinedCycle struct {
	game.CycleState
	Token string `json:"token"`
}

func join(t *testing.T, baseURL, owner string) joinedCycle {
	t.Helper()
	resp := postJSON(t, baseURL+"/api/cycle/join", map[string]string{"owner": owner})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var jc joinedCycle
	decode(t, resp, &jc)
	require.NotEmpty(t, jc.Token)
	return jc
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

// ============================================================================
// Router Tests
// ============================================================================

// TestNewRouterHasNoSideEffects verifies router construction does not
// start the simulation.
func TestNewRouterHasNoSideEffects(t *testing.T) {
	engine := newTestEngine(4, 16)
	router := api.NewRouter(api.RouterConfig{
		Engine: engine,
		RateLimitConfig: &api.RateLimitConfig{
			RequestsPerSecond: 1000,
			Burst:             1000,
			CleanupInterval:   time.Hour,
		},
		DisableLogging: true,
	})
	require.NotNil(t, router)
	assert.Equal(t, uint64(0), engine.Tick())
}

func TestAPIGetState(t *testing.T) {
	engine := newTestEngine(4, 16)
	_, err := engine.Join("alice", "#0ff", game.ControllerRemote)
	require.NoError(t, err)
	_, err = engine.Join("bob", "#f0f", game.ControllerRemote)
	require.NoError(t, err)

	ts := newTestRouter(t, engine)
	resp, err := http.Get(ts.URL + "/api/state")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		Tick   uint64            `json:"tick"`
		Cycles []game.CycleState `json:"cycles"`
	}
	decode(t, resp, &result)
	require.Len(t, result.Cycles, 2)
	for _, c := range result.Cycles {
		assert.True(t, c.Alive)
		assert.Equal(t, "ALIVE", c.Status)
	}
}

func TestAPIStatsIncludesScheduler(t *testing.T) {
	engine := newTestEngine(4, 16)
	runner := game.NewRunner(engine, config.DefaultScheduler())

	limiter := api.NewIPRateLimiter(api.RateLimitConfig{RequestsPerSecond: 100, Burst: 100, CleanupInterval: time.Hour})
	defer limiter.Stop()
	ts := httptest.NewServer(api.NewRouter(api.RouterConfig{
		Engine:         engine,
		Scheduler:      runner,
		RateLimiter:    limiter,
		DisableLogging: true,
	}))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/stats")
	require.NoError(t, err)
	defer resp.Body.Close()

	var stats map[string]json.RawMessage
	decode(t, resp, &stats)
	assert.Contains(t, stats, "engine")
	assert.Contains(t, stats, "scheduler")
	assert.JSONEq(t, "false", string(stats["running"]))
}

func TestAPICycleJoin(t *testing.T) {
	ts := newTestRouter(t, newTestEngine(1, 16))

	resp := postJSON(t, ts.URL+"/api/cycle/join", map[string]string{"owner": "alice", "color": "#0ff"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var st joinedCycle
	decode(t, resp, &st)
	assert.NotEmpty(t, st.ID)
	assert.NotEmpty(t, st.Token)
	assert.NotEqual(t, st.ID, st.Token)
	assert.Equal(t, "alice", st.Owner)
	assert.Equal(t, "remote", st.Controller)

	// Arena full
	resp = postJSON(t, ts.URL+"/api/cycle/join", map[string]string{"owner": "bob"})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	// Missing owner
	resp = postJSON(t, ts.URL+"/api/cycle/join", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPIInvalidJSON(t *testing.T) {
	ts := newTestRouter(t, newTestEngine(4, 16))

	resp, err := http.Post(ts.URL+"/api/cycle/join", "application/json", strings.NewReader("{not json"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPICycleInput(t *testing.T) {
	engine := newTestEngine(4, 2)
	ts := newTestRouter(t, engine)
	st := join(t, ts.URL, "alice")

	url := ts.URL + "/api/cycle/" + st.ID + "/input"
	resp := postJSON(t, url, map[string]interface{}{"turnLeft": true, "token": st.Token})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	engine.Step(1.0 / 60)
	after, _ := engine.Cycle(st.ID)
	assert.NotEqual(t, st.DirX, after.DirX, "turn input should steer the cycle")

	resp = postJSON(t, ts.URL+"/api/cycle/nobody/input", map[string]bool{"brake": true})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Fill the queue without stepping.
	codes := map[int]int{}
	for i := 0; i < 4; i++ {
		codes[postJSON(t, url, map[string]bool{"brake": true}, api.ControlTokenHeader, st.Token).StatusCode]++
	}
	assert.Equal(t, 2, codes[http.StatusAccepted])
	assert.Equal(t, 2, codes[http.StatusServiceUnavailable])
}

func TestAPIRespawnAliveCycleConflicts(t *testing.T) {
	ts := newTestRouter(t, newTestEngine(4, 16))
	st := join(t, ts.URL, "alice")

	resp := postJSON(t, ts.URL+"/api/cycle/"+st.ID+"/respawn", struct{}{}, api.ControlTokenHeader, st.Token)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = postJSON(t, ts.URL+"/api/cycle/ghost/respawn", struct{}{})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPIInputRequiresControlToken(t *testing.T) {
	engine := newTestEngine(4, 16)
	ts := newTestRouter(t, engine)
	alice := join(t, ts.URL, "alice")
	bob := join(t, ts.URL, "bob")
	bot, err := engine.Join("bot", "", game.ControllerAI)
	require.NoError(t, err)

	aliceInput := ts.URL + "/api/cycle/" + alice.ID + "/input"
	t.Run("missing token", func(t *testing.T) {
		resp := postJSON(t, aliceInput, map[string]bool{"turnLeft": true})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
	t.Run("another cycle's token", func(t *testing.T) {
		resp := postJSON(t, aliceInput, map[string]bool{"turnLeft": true}, api.ControlTokenHeader, bob.Token)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		resp = postJSON(t, ts.URL+"/api/cycle/"+alice.ID+"/respawn", struct{}{}, api.ControlTokenHeader, bob.Token)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
	t.Run("ai cycle", func(t *testing.T) {
		resp := postJSON(t, ts.URL+"/api/cycle/"+bot.ID+"/input", map[string]bool{"turnLeft": true}, api.ControlTokenHeader, alice.Token)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		resp = postJSON(t, ts.URL+"/api/cycle/"+bot.ID+"/respawn", struct{}{}, api.ControlTokenHeader, alice.Token)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})
	assert.Equal(t, 0, engine.Stats().InputQueue)

	engine.Step(1.0 / 60)
	after, _ := engine.Cycle(bot.ID)
	assert.Equal(t, bot.DirX, after.DirX)
	assert.Equal(t, bot.DirZ, after.DirZ)

	resp := postJSON(t, aliceInput, map[string]bool{"turnLeft": true}, api.ControlTokenHeader, alice.Token)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, 1, engine.Stats().InputQueue)
}

func TestAPILeaderboard(t *testing.T) {
	engine := newTestEngine(4, 16)
	for _, owner := range []string{"a", "b", "c"} {
		_, err := engine.Join(owner, "", game.ControllerRemote)
		require.NoError(t, err)
	}
	ts := newTestRouter(t, engine)

	resp, err := http.Get(ts.URL + "/api/leaderboard")
	require.NoError(t, err)
	defer resp.Body.Close()

	var entries []game.LeaderboardEntry
	decode(t, resp, &entries)
	require.Len(t, entries, 3)
	assert.Equal(t, 1, entries[0].Rank)
}

// ============================================================================
// Admin Tests
// ============================================================================

func TestAdminRoutesRequireToken(t *testing.T) {
	engine := newTestEngine(8, 16)
	ts := newTestRouter(t, engine)

	obstacle := map[string]interface{}{"id": "pillar", "x1": -5, "z1": 0, "x2": 5, "z2": 0}

	resp := postJSON(t, ts.URL+"/api/admin/obstacle", obstacle)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = postJSON(t, ts.URL+"/api/admin/obstacle", obstacle, "Authorization", "Bearer wrong")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = postJSON(t, ts.URL+"/api/admin/obstacle", obstacle, "Authorization", "Bearer "+testAdminToken)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	// Same id again
	resp = postJSON(t, ts.URL+"/api/admin/obstacle", obstacle, "Authorization", "Bearer "+testAdminToken)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	assert.Equal(t, 5, engine.Stats().Obstacles, "four arena walls plus the pillar")
}

func TestAdminLoginSessionCookie(t *testing.T) {
	engine := newTestEngine(8, 16)
	ts := newTestRouter(t, engine)

	resp := postJSON(t, ts.URL+"/api/admin/login", map[string]string{"token": "nope"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = postJSON(t, ts.URL+"/api/admin/login", map[string]string{"token": testAdminToken})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var session *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == api.SessionCookieName {
			session = c
		}
	}
	require.NotNil(t, session)

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/admin/bots", strings.NewReader(`{"count":3}`))
	require.NoError(t, err)
	req.AddCookie(session)
	botsResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer botsResp.Body.Close()
	require.Equal(t, http.StatusOK, botsResp.StatusCode)

	var bots struct {
		Count int      `json:"count"`
		IDs   []string `json:"ids"`
	}
	decode(t, botsResp, &bots)
	assert.Equal(t, 3, bots.Count)
	assert.Len(t, engine.CycleIDs(game.ControllerAI), 3)

	req, err = http.NewRequest(http.MethodDelete, ts.URL+"/api/admin/cycle/"+bots.IDs[0], nil)
	require.NoError(t, err)
	req.AddCookie(session)
	delResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer delResp.Body.Close()
	assert.Equal(t, http.StatusOK, delResp.StatusCode)
	assert.Len(t, engine.CycleIDs(game.ControllerAI), 2)
}

func TestAdminRoutesAbsentWithoutToken(t *testing.T) {
	engine := newTestEngine(8, 16)
	ts := httptest.NewServer(api.NewRouter(api.RouterConfig{
		Engine:         engine,
		Admin:          api.NewSessionManager(""),
		DisableLogging: true,
	}))
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/api/admin/bots", map[string]int{"count": 1}, "Authorization", "Bearer anything")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// ============================================================================
// Rate Limit Tests
// ============================================================================

func TestRateLimitRejectsBurst(t *testing.T) {
	limiter := api.NewIPRateLimiter(api.RateLimitConfig{
		RequestsPerSecond: 1,
		Burst:             2,
		CleanupInterval:   time.Hour,
	})
	defer limiter.Stop()

	ts := httptest.NewServer(api.NewRouter(api.RouterConfig{
		Engine:         newTestEngine(4, 16),
		RateLimiter:    limiter,
		DisableLogging: true,
	}))
	defer ts.Close()

	var limited int
	for i := 0; i < 5; i++ {
		resp, err := http.Get(ts.URL + "/api/stats")
		require.NoError(t, err)
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		if resp.StatusCode == http.StatusTooManyRequests {
			limited++
			assert.Equal(t, "1", resp.Header.Get("Retry-After"))
		}
	}
	assert.GreaterOrEqual(t, limited, 2)
	assert.GreaterOrEqual(t, limiter.GetStats()["rejected"], uint64(2))
}

// ============================================================================
// WebSocket Tests
// ============================================================================

func TestWebSocketPushesTicksAndAcceptsInput(t *testing.T) {
	engine := newTestEngine(4, 16)
	bot, err := engine.Join("bot", "", game.ControllerAI)
	require.NoError(t, err)

	srv := api.NewServer(engine, nil, config.ServerConfig{}, config.ResourceLimits{
		MaxWSConnections: 4,
		InputsPerSecond:  50,
	})
	go srv.Hub().Run()
	srv.Hub().StartBroadcastLoop()
	defer srv.Stop()

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	st := join(t, ts.URL, "alice")
	assert.True(t, srv.Controls().Valid(st.ID, st.Token))

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var msg struct {
		Event string `json:"event"`
		Data  struct {
			Tick   uint64            `json:"tick"`
			Cycles []game.CycleState `json:"cycles"`
		} `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "tick", msg.Event)
	require.Len(t, msg.Data.Cycles, 2)

	// Intents without the cycle's token are dropped.
	require.NoError(t, conn.WriteJSON(map[string]interface{}{"id": st.ID, "brake": true}))
	require.NoError(t, conn.WriteJSON(map[string]interface{}{"id": bot.ID, "brake": true, "token": st.Token}))
	require.NoError(t, conn.WriteJSON(map[string]interface{}{"id": st.ID, "brake": true, "token": st.Token}))

	deadline := time.Now().Add(2 * time.Second)
	for engine.Stats().InputQueue == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	assert.Equal(t, 1, engine.Stats().InputQueue)
}

func TestWebSocketRejectsForeignOrigin(t *testing.T) {
	srv := api.NewServer(newTestEngine(4, 16), nil, config.ServerConfig{
		AllowedOrigins: []string{"https://arena.example"},
	}, config.DefaultLimits())
	go srv.Hub().Run()
	defer srv.Stop()

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"

	header := http.Header{"Origin": []string{"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header = http.Header{"Origin": []string{"https://arena.example"}}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	conn.Close()
}
