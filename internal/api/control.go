package api

import (
	"crypto/subtle"
	"net/http"
	"sync"

	"github.com/google/uuid"
)

// ControlTokenHeader carries a cycle's control token on input and respawn
// requests. The token may also be sent as the "token" body field.
const ControlTokenHeader = "X-Cycle-Token"

// ControlTokens binds each cycle joined through the API to the secret its
// owner must present to steer or respawn it. Cycles without a token (AI,
// server-local) cannot be driven from outside.
type ControlTokens struct {
	mu     sync.RWMutex
	tokens map[string]string
}

// NewControlTokens creates an empty token store.
func NewControlTokens() *ControlTokens {
	return &ControlTokens{tokens: make(map[string]string)}
}

// Issue creates a fresh token for a cycle, replacing any previous one.
func (c *ControlTokens) Issue(cycleID string) string {
	token := uuid.NewString()
	c.mu.Lock()
	c.tokens[cycleID] = token
	c.mu.Unlock()
	return token
}

// Valid reports whether token controls cycleID.
func (c *ControlTokens) Valid(cycleID, token string) bool {
	if token == "" {
		return false
	}
	c.mu.RLock()
	want, ok := c.tokens[cycleID]
	c.mu.RUnlock()
	return ok && subtle.ConstantTimeCompare([]byte(want), []byte(token)) == 1
}

// Forget drops a cycle's token.
func (c *ControlTokens) Forget(cycleID string) {
	c.mu.Lock()
	delete(c.tokens, cycleID)
	c.mu.Unlock()
}

// Len returns the number of issued tokens.
func (c *ControlTokens) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.tokens)
}

// requestToken returns the header token, falling back to the body field.
func requestToken(r *http.Request, body string) string {
	if t := r.Header.Get(ControlTokenHeader); t != "" {
		return t
	}
	return body
}
