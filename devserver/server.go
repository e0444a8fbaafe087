package devserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/MrEthical07/goGateway/internal"
	"github.com/MrEthical07/goGateway/jwt"
	"github.com/MrEthical07/goGateway/middleware"
	"github.com/MrEthical07/goGateway/password"
	"github.com/MrEthical07/goGateway/permission"
)

// Permission names checked by the guarded routes.
const (
	PermRecordsRead  = "records:read"
	PermRecordsWrite = "records:write"
	PermFilesRead    = "files:read"
	PermFilesWrite   = "files:write"
)

// Built-in roles.
const (
	RoleViewer = "viewer"
	RoleEditor = "editor"
	RoleAdmin  = "admin"
)

// Config wires the server's collaborators.
type Config struct {
	Tokens *jwt.Manager
	// Hasher defaults to bcrypt at its minimum cost, which keeps tests fast.
	Hasher password.Hasher
	Logger *zap.Logger
	// Latency is added to every guarded request.
	Latency time.Duration
}

// Stats counts handled requests.
type Stats struct {
	Logins    int64
	Refreshes int64
	Requests  int64
	Rejected  int64
}

// Server is an in-memory backend. It is safe for concurrent use.
type Server struct {
	tokens   *jwt.Manager
	hasher   password.Hasher
	logger   *zap.Logger
	latency  time.Duration
	registry *permission.Registry
	roles    *permission.RoleTable
	handler  http.Handler

	mu      sync.RWMutex
	users   map[string]account
	csrf    map[string]string
	revoked map[string]struct{}
	records map[string]Record
	files   map[string]storedFile

	// faults forces the next n guarded requests to fail with status.
	faultMu     sync.Mutex
	faultStatus int
	faultCount  int

	logins    atomic.Int64
	refreshes atomic.Int64
	requests  atomic.Int64
	rejected  atomic.Int64
}

type account struct {
	hash string
	role string
}

// Record is the CRUD resource.
type Record struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Status    string    `json:"status"`
	Owner     string    `json:"owner"`
	UpdatedAt time.Time `json:"updated_at"`
}

type storedFile struct {
	contentType string
	data        []byte
}

// New builds a server with the built-in permissions and roles.
func New(cfg Config) (*Server, error) {
	if cfg.Tokens == nil {
		return nil, errors.New("token manager required")
	}
	hasher := cfg.Hasher
	if hasher == nil {
		b, err := password.NewBcrypt(4)
		if err != nil {
			return nil, err
		}
		hasher = b
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	registry := permission.NewRegistry(true)
	if err := registry.RegisterAll(PermRecordsRead, PermRecordsWrite, PermFilesRead, PermFilesWrite); err != nil {
		return nil, err
	}
	registry.Freeze()

	roles := permission.NewRoleTable(registry)
	defs := map[string][]string{
		RoleViewer: {PermRecordsRead, PermFilesRead},
		RoleEditor: {PermRecordsRead, PermRecordsWrite, PermFilesRead, PermFilesWrite},
		RoleAdmin:  {permission.RootName},
	}
	for role, perms := range defs {
		if err := roles.Define(role, perms); err != nil {
			return nil, err
		}
	}
	roles.Freeze()

	s := &Server{
		tokens:   cfg.Tokens,
		hasher:   hasher,
		logger:   logger,
		latency:  cfg.Latency,
		registry: registry,
		roles:    roles,
		users:    make(map[string]account),
		csrf:     make(map[string]string),
		revoked:  make(map[string]struct{}),
		records:  make(map[string]Record),
		files:    make(map[string]storedFile),
	}
	s.handler = s.routes()
	return s, nil
}

// AddUser registers a user under one of the built-in roles.
func (s *Server) AddUser(username, plain, role string) error {
	if _, ok := s.roles.Mask(role); !ok {
		return errors.New("unknown role")
	}
	hash, err := s.hasher.Hash(plain)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.users[username] = account{hash: hash, role: role}
	s.mu.Unlock()
	return nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// FailNext makes the next n guarded requests fail with status before any auth check.
func (s *Server) FailNext(n, status int) {
	s.faultMu.Lock()
	s.faultCount = n
	s.faultStatus = status
	s.faultMu.Unlock()
}

// RevokeToken makes the server reject one access token as if it had expired.
func (s *Server) RevokeToken(accessToken string) {
	claims, err := jwt.Peek(accessToken)
	if err != nil || claims.ID == "" {
		return
	}
	s.mu.Lock()
	s.revoked[claims.ID] = struct{}{}
	s.mu.Unlock()
}

// Stats returns request counters.
func (s *Server) Stats() Stats {
	return Stats{
		Logins:    s.logins.Load(),
		Refreshes: s.refreshes.Load(),
		Requests:  s.requests.Load(),
		Rejected:  s.rejected.Load(),
	}
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", s.handleLogin)
	mux.HandleFunc("POST /auth/refresh", s.handleRefresh)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		writeData(w, http.StatusOK, map[string]string{"status": "ok"}, "")
	})

	guard := func(perm string, h http.HandlerFunc) http.Handler {
		var out http.Handler = h
		out = middleware.RequirePermission(s.registry, perm)(out)
		out = middleware.RequireCSRF(s.csrfFor)(out)
		out = middleware.Guard(s)(out)
		return s.faults(out)
	}

	mux.Handle("GET /records", guard(PermRecordsRead, s.listRecords))
	mux.Handle("POST /records", guard(PermRecordsWrite, s.createRecord))
	mux.Handle("GET /records/{id}", guard(PermRecordsRead, s.getRecord))
	mux.Handle("PUT /records/{id}", guard(PermRecordsWrite, s.updateRecord))
	mux.Handle("PATCH /records/{id}", guard(PermRecordsWrite, s.updateRecord))
	mux.Handle("DELETE /records/{id}", guard(PermRecordsWrite, s.deleteRecord))
	mux.Handle("POST /files", guard(PermFilesWrite, s.uploadFile))
	mux.Handle("GET /files/{name}", guard(PermFilesRead, s.downloadFile))

	return mux
}

// Parse verifies an access token and rejects revoked ones. It lets the server act as
// the middleware.Verifier.
func (s *Server) Parse(token string, want jwt.TokenType) (*jwt.Claims, error) {
	claims, err := s.tokens.Parse(token, want)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	_, revoked := s.revoked[claims.ID]
	s.mu.RUnlock()
	if revoked {
		return nil, jwt.ErrExpired
	}
	return claims, nil
}

func (s *Server) csrfFor(subject string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.csrf[subject]
	return v, ok
}

func (s *Server) faults(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.requests.Add(1)
		if s.latency > 0 {
			select {
			case <-time.After(s.latency):
			case <-r.Context().Done():
				return
			}
		}

		s.faultMu.Lock()
		status := 0
		if s.faultCount > 0 {
			s.faultCount--
			status = s.faultStatus
		}
		s.faultMu.Unlock()

		if status != 0 {
			s.rejected.Add(1)
			writeError(w, status, http.StatusText(status), nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenBody struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	ExpiresAt        time.Time `json:"expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

type userBody struct {
	Name        string   `json:"name"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions,omitempty"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	s.logins.Add(1)

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json", nil)
		return
	}

	s.mu.RLock()
	acct, ok := s.users[req.Username]
	s.mu.RUnlock()
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid credentials", nil)
		return
	}
	match, err := password.Verify(req.Password, acct.hash)
	if err != nil || !match {
		writeError(w, http.StatusUnauthorized, "invalid credentials", nil)
		return
	}

	perms, _ := s.roles.Permissions(acct.role)
	pair, err := s.tokens.IssuePair(req.Username, acct.role, perms)
	if err != nil {
		s.logger.Error("token issue failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "token issue failed", nil)
		return
	}
	csrf, err := internal.NewCSRFToken()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "csrf generation failed", nil)
		return
	}

	s.mu.Lock()
	s.csrf[req.Username] = csrf
	s.mu.Unlock()

	s.logger.Debug("login", zap.String("user", req.Username))
	writeData(w, http.StatusOK, map[string]any{
		"user":       userBody{Name: req.Username, Role: acct.role, Permissions: perms},
		"token":      pairBody(pair),
		"csrf_token": csrf,
	}, "logged in")
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.refreshes.Add(1)

	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "refresh_token required", nil)
		return
	}

	claims, err := s.tokens.Parse(req.RefreshToken, jwt.TypeRefresh)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid refresh token", nil)
		return
	}
	s.mu.RLock()
	acct, ok := s.users[claims.Subject]
	s.mu.RUnlock()
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid refresh token", nil)
		return
	}

	perms, _ := s.roles.Permissions(acct.role)
	pair, err := s.tokens.IssuePair(claims.Subject, acct.role, perms)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "token issue failed", nil)
		return
	}
	writeData(w, http.StatusOK, pairBody(pair), "")
}

func pairBody(p jwt.Pair) tokenBody {
	return tokenBody{
		AccessToken:      p.AccessToken,
		RefreshToken:     p.RefreshToken,
		ExpiresAt:        p.ExpiresAt,
		RefreshExpiresAt: p.RefreshExpiresAt,
	}
}

func writeData(w http.ResponseWriter, status int, data any, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	body := map[string]any{"data": data, "success": true}
	if message != "" {
		body["message"] = message
	}
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string, fields map[string][]string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	body := map[string]any{"message": message}
	if len(fields) > 0 {
		body["errors"] = fields
	}
	_ = json.NewEncoder(w).Encode(body)
}
