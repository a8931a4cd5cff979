package api

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	// SessionCookieName is the admin session cookie.
	SessionCookieName = "cycles_admin_session"

	// SessionDuration is how long an admin login lasts.
	SessionDuration = 12 * time.Hour

	// Cookie settings
	CookieSecure   = false // Set to true in production with HTTPS
	CookieHTTPOnly = true
	CookieSameSite = http.SameSiteStrictMode
)

// ErrBadAdminToken is returned when a login presents the wrong token.
var ErrBadAdminToken = errors.New("invalid admin token")

// AdminSession represents an authenticated admin session
type AdminSession struct {
	ID        string    `json:"-"`
	RemoteIP  string    `json:"remote_ip"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SessionManager guards the admin routes. Clients authenticate either with
// "Authorization: Bearer <token>" on every request, or once via
// /api/admin/login, which issues a signed session cookie.
type SessionManager struct {
	mu sync.RWMutex

	// Active sessions (sessionID -> session)
	sessions map[string]*AdminSession

	// Secret key for signing session cookies
	secretKey []byte

	token []byte

	stopChan chan struct{}
	stopOnce sync.Once
}

// NewSessionManager creates a session manager for the given admin token.
// It returns nil when token is empty, which leaves admin routes unmounted.
func NewSessionManager(token string) *SessionManager {
	if token == "" {
		return nil
	}

	secretKey := make([]byte, 32)
	if _, err := rand.Read(secretKey); err != nil {
		// Deriving from the token keeps cookies verifiable for this process.
		log.Printf("⚠️ Failed to generate session key: %v", err)
		sum := sha256.Sum256([]byte("cycles-admin:" + token))
		secretKey = sum[:]
	}

	sm := &SessionManager{
		sessions:  make(map[string]*AdminSession),
		secretKey: secretKey,
		token:     []byte(token),
		stopChan:  make(chan struct{}),
	}

	go sm.cleanupExpiredSessions(10 * time.Minute)

	return sm
}

// Stop ends the session cleanup goroutine.
func (sm *SessionManager) Stop() {
	sm.stopOnce.Do(func() {
		close(sm.stopChan)
	})
}

// CheckToken compares a presented token in constant time.
func (sm *SessionManager) CheckToken(token string) bool {
	return subtle.ConstantTimeCompare([]byte(token), sm.token) == 1
}

// CreateSession creates a session after verifying the admin token.
func (sm *SessionManager) CreateSession(token, remoteIP string) (string, error) {
	if !sm.CheckToken(token) {
		return "", ErrBadAdminToken
	}

	sessionID, err := generateSessionID()
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}

	now := time.Now()
	sm.mu.Lock()
	sm.sessions[sessionID] = &AdminSession{
		ID:        sessionID,
		RemoteIP:  remoteIP,
		CreatedAt: now,
		ExpiresAt: now.Add(SessionDuration),
	}
	sm.mu.Unlock()

	log.Printf("🔐 Admin session created for %s", remoteIP)
	return sessionID, nil
}

// GetSession retrieves a live session by ID
func (sm *SessionManager) GetSession(sessionID string) *AdminSession {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	session, exists := sm.sessions[sessionID]
	if !exists || time.Now().After(session.ExpiresAt) {
		return nil
	}
	return session
}

// DeleteSession removes a session
func (sm *SessionManager) DeleteSession(sessionID string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	delete(sm.sessions, sessionID)
}

// SessionCount returns the number of stored sessions.
func (sm *SessionManager) SessionCount() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

// Authenticate returns the caller's session, or a synthetic one for a valid
// bearer token. It returns nil when the request is not authorized.
func (sm *SessionManager) Authenticate(r *http.Request) *AdminSession {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		if sm.CheckToken(strings.TrimPrefix(auth, "Bearer ")) {
			return &AdminSession{RemoteIP: GetClientIP(r), ExpiresAt: time.Now().Add(time.Minute)}
		}
		return nil
	}

	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return nil
	}
	sessionID, err := sm.decodeCookie(cookie.Value)
	if err != nil {
		return nil
	}
	return sm.GetSession(sessionID)
}

// SetSessionCookie sets the session cookie on the response
func (sm *SessionManager) SetSessionCookie(w http.ResponseWriter, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    sm.encodeCookie(sessionID),
		Path:     "/api/admin",
		MaxAge:   int(SessionDuration.Seconds()),
		HttpOnly: CookieHTTPOnly,
		Secure:   CookieSecure,
		SameSite: CookieSameSite,
	})
}

// ClearSessionCookie removes the session cookie
func (sm *SessionManager) ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/api/admin",
		MaxAge:   -1,
		HttpOnly: CookieHTTPOnly,
		Secure:   CookieSecure,
		SameSite: CookieSameSite,
	})
}

// encodeCookie creates a signed cookie value: base64(sessionID.hmac)
func (sm *SessionManager) encodeCookie(sessionID string) string {
	mac := hmac.New(sha256.New, sm.secretKey)
	mac.Write([]byte(sessionID))
	signature := hex.EncodeToString(mac.Sum(nil))

	return base64.URLEncoding.EncodeToString([]byte(sessionID + "." + signature))
}

// decodeCookie verifies and extracts the session ID from cookie
func (sm *SessionManager) decodeCookie(cookieValue string) (string, error) {
	decoded, err := base64.URLEncoding.DecodeString(cookieValue)
	if err != nil {
		return "", fmt.Errorf("invalid cookie encoding: %w", err)
	}

	sessionID, providedSig, ok := strings.Cut(string(decoded), ".")
	if !ok {
		return "", errors.New("invalid cookie format")
	}

	mac := hmac.New(sha256.New, sm.secretKey)
	mac.Write([]byte(sessionID))
	expectedSig := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(providedSig), []byte(expectedSig)) {
		return "", errors.New("invalid cookie signature")
	}

	return sessionID, nil
}

func (sm *SessionManager) cleanupExpiredSessions(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-sm.stopChan:
			return
		case <-ticker.C:
			sm.pruneExpired(time.Now())
		}
	}
}

// pruneExpired drops sessions that expired before now.
func (sm *SessionManager) pruneExpired(now time.Time) int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	removed := 0
	for id, session := range sm.sessions {
		if now.After(session.ExpiresAt) {
			delete(sm.sessions, id)
			removed++
		}
	}
	return removed
}

// generateSessionID creates a cryptographically random session ID
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// AdminAuthMiddleware rejects requests without a valid token or session.
func (sm *SessionManager) AdminAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if sm.Authenticate(r) == nil {
			RecordConnectionRejected("auth")
			w.Header().Set("WWW-Authenticate", `Bearer realm="admin"`)
			writeError(w, "Admin authentication required", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// HandleLogin exchanges {"token": "..."} for a session cookie.
func (sm *SessionManager) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	ip := GetClientIP(r)
	sessionID, err := sm.CreateSession(req.Token, ip)
	if err != nil {
		if errors.Is(err, ErrBadAdminToken) {
			log.Printf("⚠️ Admin login failed from %s", ip)
			RecordConnectionRejected("auth")
			writeError(w, "Invalid token", http.StatusUnauthorized)
			return
		}
		writeError(w, "Login failed", http.StatusInternalServerError)
		return
	}

	sm.SetSessionCookie(w, sessionID)
	writeJSON(w, AuthStatus{Authenticated: true, ExpiresAt: time.Now().Add(SessionDuration).Unix()})
}

// AuthStatus returns the current authentication status
type AuthStatus struct {
	Authenticated bool  `json:"authenticated"`
	ExpiresAt     int64 `json:"expires_at,omitempty"`
}

// HandleAuthStatus returns current auth status
func (sm *SessionManager) HandleAuthStatus(w http.ResponseWriter, r *http.Request) {
	session := sm.Authenticate(r)

	status := AuthStatus{Authenticated: session != nil}
	if session != nil {
		status.ExpiresAt = session.ExpiresAt.Unix()
	}
	writeJSON(w, status)
}

// HandleLogout deletes the caller's session and clears the cookie.
func (sm *SessionManager) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		if sessionID, err := sm.decodeCookie(cookie.Value); err == nil {
			sm.DeleteSession(sessionID)
		}
	}

	sm.ClearSessionCookie(w)
	writeJSON(w, AuthStatus{Authenticated: false})
}

// secureEqual compares two strings in constant time.
func secureEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
