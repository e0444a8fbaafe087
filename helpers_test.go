package goGateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/goGateway/devserver"
	"github.com/MrEthical07/goGateway/jwt"
	"github.com/MrEthical07/goGateway/storage"
)

const (
	testUser     = "ada"
	testPassword = "correct-horse"
)

// testEnv is a gateway wired to an in-process devserver.
type testEnv struct {
	gw      *Gateway
	srv     *devserver.Server
	ts      *httptest.Server
	store   *storage.MemoryStore
	doer    *switchDoer
	capture *captureHandler
}

type envOption func(*envSetup)

type envSetup struct {
	cfg     func(*Config)
	auth    func(base Authenticator) Authenticator
	sink    EventSink
	clock   func() time.Time
	store   *storage.MemoryStore
	latency time.Duration
}

func withConfig(fn func(*Config)) envOption {
	return func(s *envSetup) { s.cfg = fn }
}

func withAuthenticator(fn func(base Authenticator) Authenticator) envOption {
	return func(s *envSetup) { s.auth = fn }
}

func withSink(sink EventSink) envOption {
	return func(s *envSetup) { s.sink = sink }
}

func withClock(now func() time.Time) envOption {
	return func(s *envSetup) { s.clock = now }
}

func withStore(store *storage.MemoryStore) envOption {
	return func(s *envSetup) { s.store = store }
}

func withLatency(d time.Duration) envOption {
	return func(s *envSetup) { s.latency = d }
}

func testConfig(baseURL string) Config {
	cfg := DefaultConfig()
	cfg.API.BaseURL = baseURL
	cfg.API.Timeout = 5 * time.Second
	cfg.Auth.RefreshCheckInterval = 0
	cfg.RateLimit.SweepInterval = 0
	cfg.Queue.Concurrency = 16
	cfg.Metrics.Enabled = true
	return cfg
}

func newTestTokens(t testing.TB, now func() time.Time) *jwt.Manager {
	t.Helper()
	tokens, err := jwt.NewManager(jwt.Config{
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    time.Hour,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    []byte("gateway-test-secret-0123456789ab"),
		Now:           now,
	})
	if err != nil {
		t.Fatalf("jwt manager: %v", err)
	}
	return tokens
}

func newTestEnv(t testing.TB, opts ...envOption) *testEnv {
	t.Helper()

	var setup envSetup
	for _, o := range opts {
		o(&setup)
	}

	srv, err := devserver.New(devserver.Config{
		Tokens:  newTestTokens(t, nil),
		Latency: setup.latency,
	})
	if err != nil {
		t.Fatalf("devserver: %v", err)
	}
	for user, role := range map[string]string{
		testUser: devserver.RoleEditor,
		"vic":    devserver.RoleViewer,
	} {
		if err := srv.AddUser(user, testPassword, role); err != nil {
			t.Fatalf("add user: %v", err)
		}
	}

	capture := &captureHandler{next: srv}
	ts := httptest.NewServer(capture)
	t.Cleanup(ts.Close)

	cfg := testConfig(ts.URL)
	if setup.cfg != nil {
		setup.cfg(&cfg)
	}

	store := setup.store
	if store == nil {
		store = storage.NewMemoryStore()
	}
	doer := &switchDoer{next: ts.Client()}

	b := New().
		WithConfig(cfg).
		WithTransport(doer).
		WithStorage(store)
	if setup.auth != nil {
		b = b.WithAuthenticator(setup.auth(NewHTTPAuthenticator(doer, cfg.API, cfg.Auth)))
	}
	if setup.sink != nil {
		b = b.WithEventSink(setup.sink)
	}
	if setup.clock != nil {
		b = b.WithClock(setup.clock)
	}

	gw, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(gw.Close)

	return &testEnv{gw: gw, srv: srv, ts: ts, store: store, doer: doer, capture: capture}
}

func (e *testEnv) login(t testing.TB) *LoginResult {
	t.Helper()
	res, err := e.gw.Login(context.Background(), Credentials{Username: testUser, Password: testPassword})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	return res
}

// switchDoer fails every request with a transport error while down is set.
type switchDoer struct {
	next HTTPDoer
	down atomic.Bool

	mu    sync.Mutex
	holds map[string]chan struct{}
}

var errLinkDown = errors.New("link down")

func (d *switchDoer) Do(req *http.Request) (*http.Response, error) {
	if d.down.Load() {
		return nil, errLinkDown
	}
	resp, err := d.next.Do(req)
	if gate := d.takeHold(req.URL.Path); gate != nil {
		select {
		case <-gate:
		case <-req.Context().Done():
		}
	}
	return resp, err
}

// holdResponse keeps the next response for path inside the transport until release
// is called. Only the first matching request is held.
func (d *switchDoer) holdResponse(path string) (release func()) {
	gate := make(chan struct{})
	d.mu.Lock()
	if d.holds == nil {
		d.holds = make(map[string]chan struct{})
	}
	d.holds[path] = gate
	d.mu.Unlock()

	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

func (d *switchDoer) takeHold(path string) chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	gate, ok := d.holds[path]
	if ok {
		delete(d.holds, path)
	}
	return gate
}

// captureHandler records request headers and response statuses on the way through.
type captureHandler struct {
	next http.Handler

	mu       sync.Mutex
	requests []capturedRequest

	unauthorized atomic.Int64
}

type capturedRequest struct {
	Method string
	Path   string
	Header http.Header
	Status int
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (h *captureHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	h.next.ServeHTTP(rec, r)
	if rec.status == http.StatusUnauthorized {
		h.unauthorized.Add(1)
	}

	h.mu.Lock()
	h.requests = append(h.requests, capturedRequest{
		Method: r.Method,
		Path:   r.URL.Path,
		Header: r.Header.Clone(),
		Status: rec.status,
	})
	h.mu.Unlock()
}

func (h *captureHandler) last(path string) (capturedRequest, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := len(h.requests) - 1; i >= 0; i-- {
		if h.requests[i].Path == path {
			return h.requests[i], true
		}
	}
	return capturedRequest{}, false
}

func (h *captureHandler) count(path string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, r := range h.requests {
		if r.Path == path {
			n++
		}
	}
	return n
}

// gatedAuthenticator holds Refresh until release is closed.
type gatedAuthenticator struct {
	Authenticator
	release chan struct{}
	calls   atomic.Int64
}

func newGatedAuthenticator(base Authenticator) *gatedAuthenticator {
	return &gatedAuthenticator{Authenticator: base, release: make(chan struct{})}
}

func (a *gatedAuthenticator) Refresh(ctx context.Context, refreshToken string) (*AuthToken, error) {
	a.calls.Add(1)
	select {
	case <-a.release:
	case <-ctx.Done():
		return nil, transportError(ctx, ctx.Err())
	}
	return a.Authenticator.Refresh(ctx, refreshToken)
}

// stubAuthenticator returns canned login and refresh results.
type stubAuthenticator struct {
	now func() time.Time

	mu         sync.Mutex
	refreshErr error
	// refreshTTL sets the expiry of refreshed tokens relative to now.
	refreshTTL time.Duration
	loginToken AuthToken
	calls      int
	seq        int
}

func (a *stubAuthenticator) Login(_ context.Context, creds Credentials) (*LoginResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if creds.Password != testPassword {
		return nil, authError(CodeInvalidCredentials, "bad password", nil)
	}
	return &LoginResult{
		User:  User{Name: creds.Username, Role: devserver.RoleEditor},
		Token: a.loginToken,
	}, nil
}

func (a *stubAuthenticator) Refresh(context.Context, string) (*AuthToken, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	if a.refreshErr != nil {
		return nil, a.refreshErr
	}
	a.seq++
	now := a.now()
	ttl := a.refreshTTL
	if ttl == 0 {
		ttl = 15 * time.Minute
	}
	return &AuthToken{
		AccessToken:      "access-" + string(rune('a'+a.seq)),
		RefreshToken:     "refresh-" + string(rune('a'+a.seq)),
		ExpiresAt:        now.Add(ttl),
		RefreshExpiresAt: now.Add(time.Hour),
	}, nil
}

func (a *stubAuthenticator) refreshCalls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

// testClock is a settable clock.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

// drainEvents returns whatever is buffered in sink without blocking.
func drainEvents(sink *ChannelSink) []Event {
	var out []Event
	for {
		select {
		case ev := <-sink.Events():
			out = append(out, ev)
		default:
			return out
		}
	}
}
