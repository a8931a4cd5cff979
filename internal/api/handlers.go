package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/PropertySightlines/cyber-cycles-sub001/internal/game"
	"github.com/PropertySightlines/cyber-cycles-sub001/internal/game/physics"
)

// maxBotsPerRequest caps /api/admin/bots.
const maxBotsPerRequest = 32

// Handler methods for routerHandlers

func (h *routerHandlers) handleGetState(w http.ResponseWriter, r *http.Request) {
	stats := h.engine.Stats()
	writeJSON(w, map[string]interface{}{
		"tick":        stats.Tick,
		"round":       stats.Round,
		"roundActive": stats.RoundActive,
		"cycles":      h.engine.States(),
	})
}

func (h *routerHandlers) handleGetStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{
		"engine": h.engine.Stats(),
	}
	if h.scheduler != nil {
		stats["scheduler"] = h.scheduler.Stats()
		stats["running"] = h.scheduler.Running()
	}
	writeJSON(w, stats)
}

func (h *routerHandlers) handleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.engine.Leaderboard().Top(10))
}

func (h *routerHandlers) handleGetCycle(w http.ResponseWriter, r *http.Request) {
	st, ok := h.engine.Cycle(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, "Unknown cycle", http.StatusNotFound)
		return
	}
	writeJSON(w, st)
}

func (h *routerHandlers) handleCycleJoin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Owner string `json:"owner"`
		Color string `json:"color"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	if req.Owner == "" {
		writeError(w, "Owner is required", http.StatusBadRequest)
		return
	}

	st, err := h.engine.Join(req.Owner, req.Color, game.ControllerRemote)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSONStatus(w, http.StatusCreated, joinResponse{CycleState: st, Token: h.controls.Issue(st.ID)})
}

// joinResponse is the joined cycle plus the token that controls it.
type joinResponse struct {
	game.CycleState
	Token string `json:"token"`
}

// authorizeControl writes an error and returns false unless the caller
// holds the control token of a cycle that may be driven remotely.
func (h *routerHandlers) authorizeControl(w http.ResponseWriter, id, token string) bool {
	st, ok := h.engine.Cycle(id)
	if !ok {
		h.controls.Forget(id)
		writeError(w, "Unknown cycle", http.StatusNotFound)
		return false
	}
	if st.Controller == game.ControllerAI.String() {
		RecordConnectionRejected("ai_cycle")
		writeError(w, "Cycle is AI controlled", http.StatusForbidden)
		return false
	}
	if !h.controls.Valid(id, token) {
		RecordConnectionRejected("control_token")
		writeError(w, "Invalid control token", http.StatusUnauthorized)
		return false
	}
	return true
}

func (h *routerHandlers) handleCycleRespawn(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	// The body is optional when the token travels in the header.
	var req struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if !h.authorizeControl(w, id, requestToken(r, req.Token)) {
		return
	}

	if err := h.engine.Respawn(id); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, map[string]interface{}{"success": true, "id": id})
}

// inputRequest is the body of /api/cycle/{id}/input and of websocket intents.
type inputRequest struct {
	ID        string `json:"id"`
	Token     string `json:"token"`
	TurnLeft  bool   `json:"turnLeft"`
	TurnRight bool   `json:"turnRight"`
	Brake     bool   `json:"brake"`
}

func (req inputRequest) input() game.Input {
	return game.Input{TurnLeft: req.TurnLeft, TurnRight: req.TurnRight, Brake: req.Brake}
}

func (h *routerHandlers) handleCycleInput(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req inputRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	if !h.authorizeControl(w, id, requestToken(r, req.Token)) {
		return
	}
	if !h.engine.SubmitInput(id, req.input()) {
		RecordInputDropped()
		writeError(w, "Input queue full", http.StatusServiceUnavailable)
		return
	}

	writeJSONStatus(w, http.StatusAccepted, map[string]bool{"queued": true})
}

func (h *routerHandlers) handleAddObstacle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID string  `json:"id"`
		X1 float64 `json:"x1"`
		Z1 float64 `json:"z1"`
		X2 float64 `json:"x2"`
		Z2 float64 `json:"z2"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if req.ID == "" {
		req.ID = "obstacle-" + uuid.NewString()
	}

	if err := h.engine.AddObstacle(req.ID, physics.Seg(req.X1, req.Z1, req.X2, req.Z2)); err != nil {
		writeEngineError(w, err)
		return
	}

	log.Printf("🧱 Obstacle %s added (%.1f,%.1f)-(%.1f,%.1f)", req.ID, req.X1, req.Z1, req.X2, req.Z2)
	writeJSONStatus(w, http.StatusCreated, map[string]string{"id": req.ID})
}

func (h *routerHandlers) handleAddBots(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Count int `json:"count"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	if req.Count <= 0 {
		req.Count = 4
	}
	if req.Count > maxBotsPerRequest {
		req.Count = maxBotsPerRequest
	}

	ids := make([]string, 0, req.Count)
	for i := 0; i < req.Count; i++ {
		st, err := h.engine.Join(fmt.Sprintf("bot-%d", i+1), "", game.ControllerAI)
		if err != nil {
			break
		}
		ids = append(ids, st.ID)
	}

	writeJSON(w, map[string]interface{}{
		"success": len(ids) > 0,
		"count":   len(ids),
		"ids":     ids,
		"message": fmt.Sprintf("Added %d bots", len(ids)),
	})
}

func (h *routerHandlers) handleRemoveCycle(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.engine.RemoveCycle(id); err != nil {
		writeEngineError(w, err)
		return
	}
	h.controls.Forget(id)
	log.Printf("🗑️ Cycle %s removed by admin", id)
	writeJSON(w, map[string]interface{}{"success": true, "id": id})
}

// writeEngineError maps engine sentinel errors to status codes.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, game.ErrUnknownCycle):
		writeError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, game.ErrCapacity):
		writeError(w, err.Error(), http.StatusServiceUnavailable)
	case errors.Is(err, game.ErrInvalidTransition), errors.Is(err, game.ErrDuplicateID):
		writeError(w, err.Error(), http.StatusConflict)
	default:
		writeError(w, err.Error(), http.StatusBadRequest)
	}
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeJSONStatus(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
