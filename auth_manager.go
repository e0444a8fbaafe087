package goGateway

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/MrEthical07/goGateway/internal"
	"github.com/MrEthical07/goGateway/internal/background"
	"github.com/MrEthical07/goGateway/internal/rate"
	"github.com/MrEthical07/goGateway/jwt"
	"github.com/MrEthical07/goGateway/session"
)

const refreshFlightKey = "refresh"

// AuthManager describes the credential lifecycle: login, logout, refresh and the
// bearer attached to every authenticated request. It is the sole owner of the token
// pair, the current user and the CSRF token.
//
// Refreshes are single-flight: concurrent callers that hit a 401 share one call to the
// authenticator, and a caller whose 401 arrives after the token was already replaced
// retries with the new token instead of refreshing again.
//
// AuthManager methods may return an error when the authenticator rejects the
// credentials, the transport fails, or persisted state cannot be written.
// AuthManager does not mutate shared global state and is safe for concurrent use.
type AuthManager struct {
	cfg      AuthConfig
	timeout  time.Duration
	auth     Authenticator
	tokens   *tokenStore
	client   HTTPDoer
	sessions *session.Monitor
	limiter  *rate.Limiter
	obs      *observer
	now      func() time.Time

	flight singleflight.Group
	// async tracks fire-and-forget refreshes so Close can wait for them.
	async sync.WaitGroup
}

type authManagerDeps struct {
	cfg      Config
	auth     Authenticator
	tokens   *tokenStore
	client   HTTPDoer
	sessions *session.Monitor
	limiter  *rate.Limiter
	obs      *observer
}

func newAuthManager(d authManagerDeps) *AuthManager {
	return &AuthManager{
		cfg:      d.cfg.Auth,
		timeout:  d.cfg.API.Timeout,
		auth:     d.auth,
		tokens:   d.tokens,
		client:   d.client,
		sessions: d.sessions,
		limiter:  d.limiter,
		obs:      d.obs,
		now:      d.obs.now,
	}
}

// Login exchanges creds for a token pair, persists it with the user and a fresh CSRF
// token, and starts a session. A rejection is returned as ErrInvalidCredentials; an
// unreachable backend keeps its network kind.
func (m *AuthManager) Login(ctx context.Context, creds Credentials) (*LoginResult, error) {
	creds.Username = strings.TrimSpace(creds.Username)
	if creds.Username == "" || creds.Password == "" {
		err := authError(CodeInvalidCredentials, "username and password are required", nil)
		m.obs.emit(ctx, EventLoginFailed, Event{UserID: creds.Username}, err)
		return nil, err
	}

	res, err := m.auth.Login(ctx, creds)
	if err == nil && res == nil {
		err = &Error{Kind: KindServer, Code: CodeServer, Message: "authenticator returned no result"}
	}
	if err != nil {
		if isAuthRejection(err) {
			err = authError(CodeInvalidCredentials, "invalid username or password", err)
		}
		m.obs.emit(ctx, EventLoginFailed, Event{UserID: creds.Username}, err)
		return nil, err
	}

	token := normalizeToken(res.Token)
	user := res.User
	if user.Name == "" {
		user.Name = creds.Username
	}
	csrf := res.CSRFToken
	if csrf == "" {
		if csrf, err = internal.NewCSRFToken(); err != nil {
			return nil, err
		}
	}
	if err := m.tokens.replace(ctx, token, user, csrf); err != nil {
		return nil, &Error{Kind: KindServer, Code: CodeServer, Message: "could not persist credentials", Err: err}
	}

	var sessionID string
	if m.sessions != nil {
		s, err := m.sessions.Start(ctx, user.Name)
		if err != nil {
			m.obs.logger.Warn("session start failed", zap.String("user", user.Name), zap.Error(err))
		}
		sessionID = s.ID
	}

	m.obs.logger.Info("login", zap.String("user", user.Name), zap.Time("expires_at", token.ExpiresAt))
	m.obs.emit(ctx, EventLogin, Event{UserID: user.Name, SessionID: sessionID}, nil)

	return &LoginResult{User: cloneUser(user), Token: token, CSRFToken: csrf}, nil
}

// Logout clears every piece of credential state, resets the user's rate-limit windows and
// destroys the active session. It is idempotent.
func (m *AuthManager) Logout(ctx context.Context) error {
	user, had, err := m.tokens.clear(ctx)
	if user.Name != "" {
		if rerr := m.limiter.Reset(ctx, user.Name); rerr != nil {
			m.obs.logger.Warn("rate limit reset failed", zap.String("user", user.Name), zap.Error(rerr))
		}
	}
	if m.sessions != nil {
		if serr := m.sessions.Destroy(ctx); serr != nil && err == nil {
			err = serr
		}
	}
	if had {
		m.obs.logger.Info("logout", zap.String("user", user.Name))
		m.obs.emit(ctx, EventLogout, Event{UserID: user.Name}, nil)
	}
	return err
}

// IsAuthenticated reports whether a user and an unexpired access token are held. When the
// access token has expired it starts a background refresh and still returns false;
// callers re-check once the refresh settles.
func (m *AuthManager) IsAuthenticated(ctx context.Context) bool {
	token, user, ok := m.tokens.snapshot()
	if !ok || token.AccessToken == "" || user.Name == "" {
		return false
	}
	if !token.Expired(m.now()) {
		return true
	}

	m.async.Add(1)
	go func() {
		defer m.async.Done()
		if _, err := m.Refresh(context.WithoutCancel(ctx)); err != nil {
			m.obs.logger.Debug("async refresh failed", zap.Error(err))
		}
	}()
	return false
}

// Refresh obtains a new pair. At most one refresh runs at a time; concurrent callers share
// its result. A caller whose ctx ends stops waiting but the shared refresh carries on.
func (m *AuthManager) Refresh(ctx context.Context) (*AuthToken, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	detached := context.WithoutCancel(ctx)
	ch := m.flight.DoChan(refreshFlightKey, func() (any, error) {
		return m.refresh(detached)
	})

	select {
	case res := <-ch:
		if res.Shared {
			m.obs.inc(MetricRefreshShared)
		}
		if res.Err != nil {
			return nil, res.Err
		}
		token := res.Val.(AuthToken)
		return &token, nil
	case <-ctx.Done():
		return nil, authError(CodeRefreshFailed, "stopped waiting for refresh", ctx.Err())
	}
}

func (m *AuthManager) refresh(ctx context.Context) (AuthToken, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	gen := m.tokens.generation()
	current, user, ok := m.tokens.snapshot()
	if !ok || current.RefreshToken == "" || user.Name == "" {
		err := authError(CodeRefreshFailed, "no refresh token", nil)
		m.obs.emit(ctx, EventRefreshFailed, Event{}, err)
		return AuthToken{}, err
	}

	if current.RefreshExpired(m.now()) {
		err := authError(CodeRefreshFailed, "refresh token expired", nil)
		m.dropCredentials(ctx, user, err)
		return AuthToken{}, err
	}

	next, err := m.auth.Refresh(ctx, current.RefreshToken)
	if err == nil && next == nil {
		err = &Error{Kind: KindServer, Code: CodeServer, Message: "authenticator returned no token"}
	}
	if err != nil {
		ferr := authError(CodeRefreshFailed, "refresh rejected", err)
		if isAuthRejection(err) {
			m.dropCredentials(ctx, user, ferr)
		} else {
			m.obs.logger.Warn("refresh unavailable", zap.String("user", user.Name), zap.Error(err))
			m.obs.emit(ctx, EventRefreshFailed, Event{UserID: user.Name}, ferr)
		}
		return AuthToken{}, ferr
	}

	token := normalizeToken(*next)
	if token.RefreshToken == "" {
		token.RefreshToken = current.RefreshToken
		token.RefreshExpiresAt = current.RefreshExpiresAt
	}
	if !current.ExpiresAt.IsZero() && !token.ExpiresAt.IsZero() && token.ExpiresAt.Before(current.ExpiresAt) {
		err := authError(CodeRefreshFailed, "refreshed token expires before the current one", nil)
		m.obs.emit(ctx, EventRefreshFailed, Event{UserID: user.Name}, err)
		return AuthToken{}, err
	}

	installed, err := m.tokens.swapToken(ctx, gen, token)
	if err != nil {
		return AuthToken{}, &Error{Kind: KindServer, Code: CodeRefreshFailed, Message: "could not persist refreshed token", Err: err}
	}
	if !installed {
		err := authError(CodeRefreshFailed, "credentials changed during refresh", nil)
		m.obs.emit(ctx, EventRefreshFailed, Event{UserID: user.Name}, err)
		return AuthToken{}, err
	}

	m.obs.logger.Debug("token refreshed", zap.String("user", user.Name), zap.Time("expires_at", token.ExpiresAt))
	m.obs.emit(ctx, EventRefresh, Event{UserID: user.Name}, nil)
	return token, nil
}

// dropCredentials clears state after the backend refused the refresh token.
func (m *AuthManager) dropCredentials(ctx context.Context, user User, cause error) {
	if _, _, err := m.tokens.clear(ctx); err != nil {
		m.obs.logger.Warn("credential clear failed", zap.Error(err))
	}
	if m.sessions != nil {
		_ = m.sessions.Destroy(ctx)
	}
	m.obs.logger.Info("credentials cleared", zap.String("user", user.Name), zap.Error(cause))
	m.obs.emit(ctx, EventRefreshFailed, Event{UserID: user.Name}, cause)
}

// StartBackgroundRefresh refreshes proactively once the access token is within
// RefreshThreshold of expiry. The returned task is stopped by Gateway.Close.
func (m *AuthManager) StartBackgroundRefresh() *background.Task {
	return background.Every(m.cfg.RefreshCheckInterval, m.refreshIfNearExpiry)
}

func (m *AuthManager) refreshIfNearExpiry(ctx context.Context) {
	token, _, ok := m.tokens.snapshot()
	if !ok || token.ExpiresAt.IsZero() {
		return
	}
	remaining := token.ExpiresAt.Sub(m.now())
	if remaining <= 0 || remaining > m.cfg.RefreshThreshold {
		return
	}
	if _, err := m.Refresh(ctx); err != nil {
		m.obs.logger.Warn("background refresh failed", zap.Error(err))
	}
}

// AuthorizedFetch sends one request with the bearer token. A 401 triggers exactly one
// Refresh and one retry; if the refresh fails the result is ErrSessionExpired. The
// caller closes the returned body.
func (m *AuthManager) AuthorizedFetch(ctx context.Context, method, url string, body []byte, header http.Header) (*http.Response, error) {
	return m.fetch(ctx, func(ctx context.Context, bearer string) (*http.Request, error) {
		var r io.Reader
		if body != nil {
			r = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, r)
		if err != nil {
			return nil, err
		}
		for k, vs := range header {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}
		req.Header.Set("X-Request-ID", uuid.NewString())
		if bearer != "" {
			req.Header.Set("Authorization", "Bearer "+bearer)
		}
		return req, nil
	})
}

// requestBuilder builds a fresh request per attempt for the given bearer token.
type requestBuilder func(ctx context.Context, bearer string) (*http.Request, error)

// fetch sends with the current bearer and retries once on 401. The refresh is skipped
// when another caller already replaced the token this attempt was sent with.
func (m *AuthManager) fetch(ctx context.Context, build requestBuilder) (*http.Response, error) {
	sent, _, _ := m.tokens.snapshot()
	resp, err := m.send(ctx, build, sent.AccessToken)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}
	drainAndClose(resp.Body)

	m.obs.inc(MetricUnauthorizedRetry)
	current, _, ok := m.tokens.snapshot()
	if !ok || current.AccessToken == "" || current.AccessToken == sent.AccessToken {
		if _, err := m.Refresh(ctx); err != nil {
			return nil, authError(CodeSessionExpired, "session expired", err)
		}
		current, _, _ = m.tokens.snapshot()
	}
	return m.send(ctx, build, current.AccessToken)
}

func (m *AuthManager) send(ctx context.Context, build requestBuilder, bearer string) (*http.Response, error) {
	req, err := build(ctx, bearer)
	if err != nil {
		return nil, &Error{Kind: KindValidation, Code: CodeInvalidRequest, Message: "could not build request", Err: err}
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return nil, transportError(ctx, err)
	}
	return resp, nil
}

// CurrentUser returns the authenticated user.
func (m *AuthManager) CurrentUser() (User, bool) {
	_, user, ok := m.tokens.snapshot()
	return user, ok
}

// Token returns the active pair.
func (m *AuthManager) Token() (AuthToken, bool) {
	token, _, ok := m.tokens.snapshot()
	return token, ok
}

// AuthorizationHeader returns "Bearer <token>", or "" when logged out.
func (m *AuthManager) AuthorizationHeader() string {
	token, _, ok := m.tokens.snapshot()
	if !ok || token.AccessToken == "" {
		return ""
	}
	return "Bearer " + token.AccessToken
}

// CSRFToken returns the per-login CSRF token.
func (m *AuthManager) CSRFToken() string {
	return m.tokens.csrfToken()
}

// restore loads persisted credentials. Expired refresh tokens are dropped on load.
func (m *AuthManager) restore(ctx context.Context) error {
	ok, err := m.tokens.load(ctx)
	if err != nil || !ok {
		return err
	}
	token, _, _ := m.tokens.snapshot()
	if token.RefreshExpired(m.now()) && token.Expired(m.now()) {
		_, _, err := m.tokens.clear(ctx)
		return err
	}
	return nil
}

func (m *AuthManager) wait() {
	m.async.Wait()
}

// normalizeToken fills missing expiry times from the JWT exp claims. Opaque tokens keep
// zero expiries.
func normalizeToken(t AuthToken) AuthToken {
	if t.ExpiresAt.IsZero() {
		if c, err := jwt.Peek(t.AccessToken); err == nil {
			t.ExpiresAt = c.ExpiresAtTime()
		}
	}
	if t.RefreshExpiresAt.IsZero() && t.RefreshToken != "" {
		if c, err := jwt.Peek(t.RefreshToken); err == nil {
			t.RefreshExpiresAt = c.ExpiresAtTime()
		}
	}
	return t
}
