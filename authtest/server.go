package authtest

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/MrEthical07/goSession/jwt"
	"github.com/MrEthical07/goSession/session"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Paths served by [Backend].
const (
	PathLogin         = "/api/login"
	PathLogout        = "/api/auth/logout"
	PathRefresh       = "/api/auth/refresh"
	PathVerify        = "/api/auth/verify"
	PathProfile       = "/api/users/profile"
	PathUpdateProfile = "/api/users/profile/update"
	PathBooks         = "/api/books"
)

const maxBodyBytes = 1 << 20

// Options configures a [Backend].
type Options struct {
	// Users seeds accounts; DefaultUsers when empty.
	Users []User
	// AccessTTL is the access token lifetime; 15 minutes when zero.
	AccessTTL time.Duration
	// Secret signs access tokens; random when empty.
	Secret []byte
	// RotateRefreshTokens issues a new refresh token on every refresh and
	// revokes the one presented.
	RotateRefreshTokens bool
	Clock               func() time.Time
	Logger              *zap.Logger
}

// Book is the protected sample resource.
type Book struct {
	ID     int    `json:"id"`
	Title  string `json:"title"`
	Author string `json:"author,omitempty"`
}

// Backend is the identity server handler. It is safe for concurrent use.
type Backend struct {
	mu        sync.Mutex
	users     *directory
	tokens    *jwt.Manager
	accessTTL time.Duration
	rotate    bool
	now       func() time.Time
	logger    *zap.Logger

	access  map[string]session.ID
	refresh map[string]session.ID
	books   []Book
	calls   map[string]int

	refreshFailure int
	refreshGate    chan struct{}

	mux *http.ServeMux
}

// NewBackend seeds users and returns a ready handler.
func NewBackend(opts Options) (*Backend, error) {
	users := opts.Users
	if len(users) == 0 {
		users = DefaultUsers()
	}
	dir, err := newDirectory(users)
	if err != nil {
		return nil, err
	}

	secret := opts.Secret
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := io.ReadFull(rand.Reader, secret); err != nil {
			return nil, err
		}
	}
	ttl := opts.AccessTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	manager, err := jwt.NewManager(jwt.Config{
		AccessTTL:     ttl,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    secret,
		Issuer:        "authtest",
	})
	if err != nil {
		return nil, err
	}

	b := &Backend{
		users:     dir,
		tokens:    manager.WithClock(now),
		accessTTL: ttl,
		rotate:    opts.RotateRefreshTokens,
		now:       now,
		logger:    logger.Named("authtest"),
		access:    make(map[string]session.ID),
		refresh:   make(map[string]session.ID),
		calls:     make(map[string]int),
		books: []Book{
			{ID: 1, Title: "The Name of the Rose", Author: "Umberto Eco"},
			{ID: 2, Title: "Ficciones", Author: "Jorge Luis Borges"},
		},
		mux: http.NewServeMux(),
	}

	b.mux.HandleFunc("POST "+PathLogin, b.handleLogin)
	b.mux.HandleFunc("POST "+PathLogout, b.handleLogout)
	b.mux.HandleFunc("POST "+PathRefresh, b.handleRefresh)
	b.mux.HandleFunc("POST "+PathVerify, b.handleVerify)
	b.mux.HandleFunc("GET "+PathVerify, b.handleVerify)
	b.mux.HandleFunc("GET "+PathProfile, b.handleProfile)
	b.mux.HandleFunc("PUT "+PathUpdateProfile, b.handleUpdateProfile)
	b.mux.HandleFunc("GET "+PathBooks, b.handleListBooks)
	b.mux.HandleFunc("POST "+PathBooks, b.handleCreateBook)

	return b, nil
}

// ServeHTTP counts the call and dispatches it.
func (b *Backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	b.calls[r.URL.Path]++
	b.mu.Unlock()

	b.logger.Debug("request",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("request_id", r.Header.Get("X-Request-ID")),
	)
	b.mux.ServeHTTP(w, r)
}

// Server is a Backend listening on a local httptest server.
type Server struct {
	*httptest.Server
	*Backend
}

// NewServer starts a Backend on a loopback address. Close it when done.
func NewServer(opts Options) (*Server, error) {
	b, err := NewBackend(opts)
	if err != nil {
		return nil, err
	}
	return &Server{Server: httptest.NewServer(b), Backend: b}, nil
}

/*
====================================
CONTROLS
====================================
*/

// Calls returns how many requests reached path.
func (b *Backend) Calls(path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[path]
}

// ResetCalls zeroes all call counters.
func (b *Backend) ResetCalls() {
	b.mu.Lock()
	b.calls = make(map[string]int)
	b.mu.Unlock()
}

// ExpireAccessTokens invalidates every access token issued so far, as if
// they had all expired server-side.
func (b *Backend) ExpireAccessTokens() {
	b.mu.Lock()
	b.access = make(map[string]session.ID)
	b.mu.Unlock()
}

// RevokeRefreshTokens invalidates every refresh token issued so far.
func (b *Backend) RevokeRefreshTokens() {
	b.mu.Lock()
	b.refresh = make(map[string]session.ID)
	b.mu.Unlock()
}

// FailRefresh makes the refresh endpoint answer with status. Zero restores
// normal behavior.
func (b *Backend) FailRefresh(status int) {
	b.mu.Lock()
	b.refreshFailure = status
	b.mu.Unlock()
}

// HoldRefreshes blocks refresh requests until the returned release func is
// called.
func (b *Backend) HoldRefreshes() (release func()) {
	gate := make(chan struct{})
	b.mu.Lock()
	b.refreshGate = gate
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			if b.refreshGate == gate {
				b.refreshGate = nil
			}
			b.mu.Unlock()
			close(gate)
		})
	}
}

// IssueTokens mints a token pair for id with the given access lifetime.
// Zero uses Options.AccessTTL; a negative ttl yields an already expired
// access token.
func (b *Backend) IssueTokens(id session.ID, ttl time.Duration) (access, refresh string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	a, err := b.users.lookup(id)
	if err != nil {
		return "", "", err
	}
	if ttl == 0 {
		ttl = b.accessTTL
	}
	access, err = b.issueAccessLocked(a, ttl)
	if err != nil {
		return "", "", err
	}
	return access, b.issueRefreshLocked(a), nil
}

func (b *Backend) issueAccessLocked(a *account, ttl time.Duration) (string, error) {
	token, _, err := b.tokens.CreateAccessWithTTL(string(a.profile.ID), string(a.profile.Role), ttl)
	if err != nil {
		return "", err
	}
	b.access[token] = a.profile.ID
	return token, nil
}

func (b *Backend) issueRefreshLocked(a *account) string {
	token := uuid.NewString()
	b.refresh[token] = a.profile.ID
	return token
}

/*
====================================
HANDLERS
====================================
*/

func (b *Backend) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !readJSON(w, r, &in) {
		return
	}
	if strings.TrimSpace(in.Email) == "" || in.Password == "" {
		writeMessage(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	a, ok := b.users.authenticate(in.Email, in.Password)
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	if a.profile.Status == session.StatusInactive {
		writeMessage(w, http.StatusForbidden, "Account is inactive")
		return
	}

	access, err := b.issueAccessLocked(a, b.accessTTL)
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, "Could not issue token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":        access,
		"refreshToken": b.issueRefreshLocked(a),
		"user":         a.profile,
	})
}

func (b *Backend) handleLogout(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Token string `json:"token"`
	}
	_ = json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&in)
	token := in.Token
	if token == "" {
		token = bearer(r)
	}

	b.mu.Lock()
	if id, ok := b.access[token]; ok {
		delete(b.access, token)
		for rt, owner := range b.refresh {
			if owner == id {
				delete(b.refresh, rt)
			}
		}
	}
	b.mu.Unlock()

	writeMessage(w, http.StatusOK, "Logged out successfully")
}

func (b *Backend) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var in struct {
		RefreshToken string `json:"refreshToken"`
	}
	if !readJSON(w, r, &in) {
		return
	}

	b.mu.Lock()
	gate := b.refreshGate
	b.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-r.Context().Done():
			return
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.refreshFailure != 0 {
		writeMessage(w, b.refreshFailure, "Refresh unavailable")
		return
	}
	id, ok := b.refresh[in.RefreshToken]
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "Invalid refresh token")
		return
	}
	a, err := b.users.lookup(id)
	if err != nil {
		writeMessage(w, http.StatusUnauthorized, "Invalid refresh token")
		return
	}

	access, err := b.issueAccessLocked(a, b.accessTTL)
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, "Could not issue token")
		return
	}
	out := map[string]any{"token": access}
	if b.rotate {
		delete(b.refresh, in.RefreshToken)
		out["refreshToken"] = b.issueRefreshLocked(a)
	}
	writeJSON(w, http.StatusOK, out)
}

func (b *Backend) handleVerify(w http.ResponseWriter, r *http.Request) {
	token := bearer(r)
	if r.Method == http.MethodPost {
		var in struct {
			Token string `json:"token"`
		}
		_ = json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&in)
		if in.Token != "" {
			token = in.Token
		}
	}
	_, ok := b.authenticateToken(token)
	writeJSON(w, http.StatusOK, map[string]bool{"valid": ok})
}

func (b *Backend) handleProfile(w http.ResponseWriter, r *http.Request) {
	a, ok := b.requireBearer(w, r)
	if !ok {
		return
	}
	b.mu.Lock()
	profile := a.profile
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"user": profile})
}

func (b *Backend) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	a, ok := b.requireBearer(w, r)
	if !ok {
		return
	}
	var in struct {
		Name            string `json:"name"`
		Email           string `json:"email"`
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
	}
	if !readJSON(w, r, &in) {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if in.NewPassword != "" {
		if !a.cred.matches(in.CurrentPassword) {
			writeMessage(w, http.StatusBadRequest, "Current password is incorrect")
			return
		}
		if err := b.users.setPassword(a, in.NewPassword); err != nil {
			writeMessage(w, http.StatusInternalServerError, "Could not update password")
			return
		}
	}
	if in.Email != "" && !strings.EqualFold(in.Email, a.profile.Email) {
		if !b.users.setEmail(a, in.Email) {
			writeMessage(w, http.StatusConflict, "Email already in use")
			return
		}
	}
	if in.Name != "" {
		a.profile.Name = in.Name
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": a.profile})
}

func (b *Backend) handleListBooks(w http.ResponseWriter, r *http.Request) {
	if _, ok := b.requireBearer(w, r); !ok {
		return
	}
	b.mu.Lock()
	books := append([]Book(nil), b.books...)
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"books": books})
}

func (b *Backend) handleCreateBook(w http.ResponseWriter, r *http.Request) {
	if _, ok := b.requireBearer(w, r); !ok {
		return
	}
	var in Book
	if !readJSON(w, r, &in) {
		return
	}
	if strings.TrimSpace(in.Title) == "" {
		writeMessage(w, http.StatusBadRequest, "Title is required")
		return
	}

	b.mu.Lock()
	in.ID = len(b.books) + 1
	b.books = append(b.books, in)
	b.mu.Unlock()
	writeJSON(w, http.StatusCreated, map[string]any{"book": in})
}

/*
====================================
HELPERS
====================================
*/

func (b *Backend) requireBearer(w http.ResponseWriter, r *http.Request) (*account, bool) {
	a, ok := b.authenticateToken(bearer(r))
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "Token expired or invalid")
		return nil, false
	}
	return a, true
}

// authenticateToken accepts a token that verifies and has not been
// expired or revoked through the controls.
func (b *Backend) authenticateToken(token string) (*account, bool) {
	if token == "" {
		return nil, false
	}
	claims, err := b.tokens.ParseAccess(token)
	if err != nil {
		return nil, false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	id, ok := b.access[token]
	if !ok || string(id) != claims.Subject {
		return nil, false
	}
	a, err := b.users.lookup(id)
	if err != nil {
		return nil, false
	}
	return a, true
}

func bearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

func readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeMessage(w, http.StatusBadRequest, "Invalid JSON body")
		return false
	}
	return true
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
