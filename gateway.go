package goGateway

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MrEthical07/goGateway/internal/background"
	"github.com/MrEthical07/goGateway/internal/queue"
	"github.com/MrEthical07/goGateway/internal/rate"
	"github.com/MrEthical07/goGateway/session"
	"github.com/MrEthical07/goGateway/storage"
)

const (
	contentTypeJSON   = "application/json"
	anonymousIdentity = "anonymous"
)

// Gateway is the single entry point for outbound calls. Every request passes the rate
// limiter, then queue admission, then header construction, then the transport. It is safe
// for concurrent use; create one with [Builder].
type Gateway struct {
	cfg      Config
	client   HTTPDoer
	auth     *AuthManager
	limiter  *rate.Limiter
	queue    *queue.Queue[*Response]
	sessions *session.Monitor
	store    storage.Store
	keys     storage.Keyspace
	obs      *observer

	tasks []*background.Task

	// offlineMu guards the persisted offline list; flushMu serializes replays.
	offlineMu sync.Mutex
	flushMu   sync.Mutex

	closed    atomic.Bool
	closeOnce sync.Once
}

// call is one trip through the pipeline.
type call struct {
	endpoint    string
	method      string
	opts        RequestOptions
	body        []byte
	contentType string
	alwaysCSRF  bool
	offlineable bool
	// handle consumes a 2xx or non-2xx response; nil means decodeResponse.
	handle func(*http.Response) (*Response, error)
}

type outcome struct {
	resp *Response
	err  error
}

// Request describes one call through the gateway pipeline: closed and feature checks,
// the per-operation rate limit, queue admission, the authenticated send with a single
// refresh-and-retry on 401, and envelope decoding.
//
// Request may return an error when the gateway is closed, the rate limit or queue
// rejects the call, the transport fails, or the server answers with a non-2xx status.
// Every failure is an *Error; mutating calls that fail on the network are stored for
// replay when offline mode is on and surface ErrQueuedOffline.
// Request does not mutate shared global state and can be used concurrently.
func (g *Gateway) Request(ctx context.Context, endpoint string, opts RequestOptions) (*Response, error) {
	method := normalizeMethod(opts.Method)
	body, err := encodeBody(opts.Body)
	if err != nil {
		return nil, err
	}
	return g.do(ctx, call{
		endpoint:    endpoint,
		method:      method,
		opts:        opts,
		body:        body,
		contentType: contentTypeJSON,
		offlineable: true,
	})
}

// Get is Request with GET.
func (g *Gateway) Get(ctx context.Context, endpoint string, opts RequestOptions) (*Response, error) {
	opts.Method = http.MethodGet
	return g.Request(ctx, endpoint, opts)
}

// Post is Request with POST and body.
func (g *Gateway) Post(ctx context.Context, endpoint string, body any, opts RequestOptions) (*Response, error) {
	opts.Method = http.MethodPost
	opts.Body = body
	return g.Request(ctx, endpoint, opts)
}

// Put is Request with PUT and body.
func (g *Gateway) Put(ctx context.Context, endpoint string, body any, opts RequestOptions) (*Response, error) {
	opts.Method = http.MethodPut
	opts.Body = body
	return g.Request(ctx, endpoint, opts)
}

// Patch is Request with PATCH and body.
func (g *Gateway) Patch(ctx context.Context, endpoint string, body any, opts RequestOptions) (*Response, error) {
	opts.Method = http.MethodPatch
	opts.Body = body
	return g.Request(ctx, endpoint, opts)
}

// Delete is Request with DELETE.
func (g *Gateway) Delete(ctx context.Context, endpoint string, opts RequestOptions) (*Response, error) {
	opts.Method = http.MethodDelete
	return g.Request(ctx, endpoint, opts)
}

func (g *Gateway) do(ctx context.Context, c call) (*Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if g.closed.Load() {
		return nil, &Error{Kind: KindClient, Code: CodeClosed, Message: "gateway closed"}
	}
	if c.opts.Operation == OpNotify && !g.cfg.Features.Notifications {
		return nil, &Error{Kind: KindClient, Code: CodeFeatureDisabled, Message: "notifications are disabled"}
	}

	// 1. rate limit
	if c.opts.RateLimit {
		if err := g.checkRateLimit(ctx, c); err != nil {
			return nil, err
		}
	}

	// 2. queue admission; headers are built inside the admitted work
	done, err := g.admit(ctx, c)
	if err != nil {
		return nil, err
	}

	var out outcome
	select {
	case out = <-done:
	case <-ctx.Done():
		return nil, transportError(ctx, ctx.Err())
	}

	if out.err != nil {
		g.obs.inc(MetricRequestFailure)
		return nil, g.maybeQueueOffline(ctx, c, out.err)
	}
	g.obs.inc(MetricRequestSuccess)
	return out.resp, nil
}

// admit starts c's work through the queue, or directly when the queue is disabled. The
// work runs detached from ctx's cancellation.
func (g *Gateway) admit(ctx context.Context, c call) (<-chan outcome, error) {
	done := make(chan outcome, 1)
	work := func() (*Response, error) {
		resp, err := g.execute(ctx, c)
		done <- outcome{resp: resp, err: err}
		return resp, err
	}

	if g.queue == nil {
		go func() { _, _ = work() }()
		return done, nil
	}

	if _, err := g.queue.Submit(work); err != nil {
		if errors.Is(err, queue.ErrQueueFull) {
			g.obs.logger.Debug("queue full", zap.String("endpoint", c.endpoint))
			g.obs.emit(ctx, EventQueueFull, Event{Endpoint: c.endpoint, Operation: c.opts.Operation.String()}, err)
			return nil, queueFullError(err)
		}
		return nil, &Error{Kind: KindClient, Code: CodeInvalidRequest, Message: "request rejected by queue", Err: err}
	}
	return done, nil
}

func (g *Gateway) checkRateLimit(ctx context.Context, c call) error {
	identifier := g.identifier(ctx)
	d, err := g.limiter.Check(ctx, identifier, c.opts.Operation)
	if err != nil {
		if errors.Is(err, rate.ErrUnknownOperation) {
			return &Error{Kind: KindValidation, Code: CodeInvalidRequest, Message: "unknown rate limit operation", Err: err}
		}
		// fail open on store errors
		g.obs.logger.Warn("rate limit check failed", zap.String("identifier", identifier), zap.Error(err))
		return nil
	}
	if d.Allowed {
		return nil
	}

	rerr := rateLimitError(c.opts.Operation.String(), d.RetryAfter(g.limiter.Now()))
	g.obs.emit(ctx, EventRateLimited, Event{
		UserID:    identifier,
		Endpoint:  c.endpoint,
		Operation: c.opts.Operation.String(),
	}, rerr)
	return rerr
}

// execute performs headers, transport and decoding for one admitted call.
func (g *Gateway) execute(parent context.Context, c call) (*Response, error) {
	timeout := c.opts.Timeout
	if timeout <= 0 {
		timeout = g.cfg.API.Timeout
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), timeout)
	defer cancel()

	start := time.Now()
	target := g.url(c.endpoint, c.opts.Query)
	build := func(ctx context.Context, bearer string) (*http.Request, error) {
		var body io.Reader
		if c.body != nil {
			body = bytes.NewReader(c.body)
		}
		req, err := http.NewRequestWithContext(ctx, c.method, target, body)
		if err != nil {
			return nil, err
		}
		g.applyHeaders(req, c, bearer)
		return req, nil
	}

	var (
		resp *http.Response
		err  error
	)
	if c.opts.SkipAuth {
		resp, err = g.sendUnauthenticated(ctx, build)
	} else {
		resp, err = g.auth.fetch(ctx, build)
	}
	if err != nil {
		g.logOutcome(c, 0, time.Since(start), err)
		return nil, err
	}
	defer drainAndClose(resp.Body)

	handle := c.handle
	if handle == nil {
		handle = decodeResponse
	}
	out, err := handle(resp)
	g.obs.observe(MetricRequestLatency, time.Since(start))
	g.logOutcome(c, resp.StatusCode, time.Since(start), err)
	return out, err
}

func (g *Gateway) sendUnauthenticated(ctx context.Context, build requestBuilder) (*http.Response, error) {
	req, err := build(ctx, "")
	if err != nil {
		return nil, &Error{Kind: KindValidation, Code: CodeInvalidRequest, Message: "could not build request", Err: err}
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, transportError(ctx, err)
	}
	return resp, nil
}

// applyHeaders layers caller headers, then the gateway's own: Content-Type, bearer and,
// for mutating methods, the CSRF token.
func (g *Gateway) applyHeaders(req *http.Request, c call, bearer string) {
	for k, vs := range c.opts.Header {
		req.Header[http.CanonicalHeaderKey(k)] = append([]string(nil), vs...)
	}
	if c.contentType != "" {
		req.Header.Set("Content-Type", c.contentType)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", contentTypeJSON)
	}
	if g.cfg.API.UserAgent != "" {
		req.Header.Set("User-Agent", g.cfg.API.UserAgent)
	}
	req.Header.Set("X-Request-ID", uuid.NewString())

	if !c.opts.SkipAuth && bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	if c.alwaysCSRF || (isMutating(c.method) && !c.opts.SkipCSRF) {
		if csrf := g.auth.CSRFToken(); csrf != "" {
			req.Header.Set("X-CSRF-Token", csrf)
		}
	}
}

func (g *Gateway) logOutcome(c call, status int, elapsed time.Duration, err error) {
	fields := []zap.Field{
		zap.String("endpoint", c.endpoint),
		zap.String("method", c.method),
		zap.Int("status", status),
		zap.Duration("duration", elapsed),
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	g.obs.logger.Debug("request", fields...)
}

func (g *Gateway) url(endpoint string, query url.Values) string {
	u := joinURL(g.cfg.API.BaseURL, endpoint)
	if len(query) == 0 {
		return u
	}
	sep := "?"
	if strings.Contains(u, "?") {
		sep = "&"
	}
	return u + sep + query.Encode()
}

// identifier picks the rate-limit key: the context override, the current user, then
// anonymous.
func (g *Gateway) identifier(ctx context.Context) string {
	if id := identifierFromContext(ctx); id != "" {
		return id
	}
	if user, ok := g.auth.CurrentUser(); ok && user.Name != "" {
		return user.Name
	}
	return anonymousIdentity
}

// Auth returns the credential manager.
func (g *Gateway) Auth() *AuthManager {
	return g.auth
}

// Sessions returns the idle-timeout monitor.
func (g *Gateway) Sessions() *session.Monitor {
	return g.sessions
}

// Config returns the effective configuration.
func (g *Gateway) Config() Config {
	return cloneConfig(g.cfg)
}

// Login delegates to the AuthManager.
func (g *Gateway) Login(ctx context.Context, creds Credentials) (*LoginResult, error) {
	return g.auth.Login(ctx, creds)
}

// Logout delegates to the AuthManager.
func (g *Gateway) Logout(ctx context.Context) error {
	return g.auth.Logout(ctx)
}

// CheckRateLimit counts one call for identifier under op without sending anything.
func (g *Gateway) CheckRateLimit(ctx context.Context, identifier string, op Operation) (RateLimitDecision, error) {
	return g.limiter.Check(ctx, identifier, op)
}

// ResetRateLimit clears identifier's windows for ops, or all of them.
func (g *Gateway) ResetRateLimit(ctx context.Context, identifier string, ops ...Operation) error {
	return g.limiter.Reset(ctx, identifier, ops...)
}

// QueueStats reports queue occupancy. It is zero when the queue is disabled.
func (g *Gateway) QueueStats() QueueStats {
	if g.queue == nil {
		return QueueStats{}
	}
	return g.queue.Stats()
}

// Close stops every background task and flushes pending events. Requests already admitted
// run to completion; new ones fail with ErrClosed.
func (g *Gateway) Close() {
	g.closeOnce.Do(func() {
		g.closed.Store(true)
		for _, t := range g.tasks {
			t.Stop()
		}
		g.limiter.Close()
		g.sessions.Close()
		g.auth.wait()
		g.obs.dispatcher.Close()
	})
}

func normalizeMethod(m string) string {
	m = strings.ToUpper(strings.TrimSpace(m))
	if m == "" {
		return http.MethodGet
	}
	return m
}

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}
