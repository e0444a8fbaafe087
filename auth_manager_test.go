package goGateway

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"
)

func stubEnv(t *testing.T, stub *stubAuthenticator, opts ...envOption) *testEnv {
	t.Helper()
	opts = append(opts, withAuthenticator(func(Authenticator) Authenticator { return stub }))
	return newTestEnv(t, opts...)
}

func TestUnauthorizedRefreshesOnceAndRetries(t *testing.T) {
	env := newTestEnv(t)
	login := env.login(t)
	ctx := context.Background()

	env.srv.RevokeToken(login.Token.AccessToken)

	resp, err := env.gw.Get(ctx, "records", RequestOptions{})
	if err != nil {
		t.Fatalf("get after revoke: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if got := env.srv.Stats().Refreshes; got != 1 {
		t.Fatalf("refreshes = %d, want 1", got)
	}
	if got := env.capture.unauthorized.Load(); got != 1 {
		t.Fatalf("401s = %d, want 1", got)
	}
	if env.gw.MetricValue(MetricUnauthorizedRetry) != 1 || env.gw.MetricValue(MetricRefreshSuccess) != 1 {
		t.Fatalf("metrics = %+v", env.gw.MetricsSnapshot().Counters)
	}
	token, _ := env.gw.Auth().Token()
	if token.AccessToken == login.Token.AccessToken {
		t.Fatalf("access token not rotated")
	}
	last, _ := env.capture.last("/records")
	if last.Header.Get("Authorization") != "Bearer "+token.AccessToken {
		t.Fatalf("retry used stale bearer")
	}
}

func TestConcurrentUnauthorizedShareOneRefresh(t *testing.T) {
	var gated *gatedAuthenticator
	env := newTestEnv(t, withAuthenticator(func(base Authenticator) Authenticator {
		gated = newGatedAuthenticator(base)
		return gated
	}))
	login := env.login(t)
	env.srv.RevokeToken(login.Token.AccessToken)

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.gw.Get(context.Background(), "records", RequestOptions{})
			errs <- err
		}()
	}

	waitFor(t, 2*time.Second, func() bool { return env.capture.unauthorized.Load() == n })
	time.Sleep(100 * time.Millisecond)
	close(gated.release)

	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
	}
	if got := gated.calls.Load(); got != 1 {
		t.Fatalf("authenticator refresh calls = %d, want 1", got)
	}
	if got := env.srv.Stats().Refreshes; got != 1 {
		t.Fatalf("backend refreshes = %d, want 1", got)
	}
	if env.gw.MetricValue(MetricRefreshShared) == 0 {
		t.Fatalf("expected shared refresh to be counted")
	}
}

func TestLateUnauthorizedReusesRefreshedToken(t *testing.T) {
	env := newTestEnv(t)
	login := env.login(t)
	env.srv.RevokeToken(login.Token.AccessToken)
	ctx := context.Background()

	release := env.doer.holdResponse("/records")
	defer release()
	late := make(chan error, 1)
	go func() {
		_, err := env.gw.Get(ctx, "records", RequestOptions{})
		late <- err
	}()
	waitFor(t, 2*time.Second, func() bool { return env.capture.unauthorized.Load() == 1 })

	if _, err := env.gw.Get(ctx, "records", RequestOptions{}); err != nil {
		t.Fatalf("first caller: %v", err)
	}
	if got := env.srv.Stats().Refreshes; got != 1 {
		t.Fatalf("refreshes after first caller = %d, want 1", got)
	}

	release()
	if err := <-late; err != nil {
		t.Fatalf("late caller: %v", err)
	}
	if got := env.srv.Stats().Refreshes; got != 1 {
		t.Fatalf("backend refreshes = %d, want 1", got)
	}
	last, _ := env.capture.last("/records")
	if got, want := last.Header.Get("Authorization"), env.gw.Auth().AuthorizationHeader(); got != want {
		t.Fatalf("late retry bearer = %q, want %q", got, want)
	}
}

type rejectingRefresh struct {
	Authenticator
}

func (rejectingRefresh) Refresh(context.Context, string) (*AuthToken, error) {
	return nil, authError(CodeRefreshFailed, "revoked", nil)
}

func TestFailedRefreshSurfacesSessionExpired(t *testing.T) {
	env := newTestEnv(t, withAuthenticator(func(base Authenticator) Authenticator {
		return rejectingRefresh{Authenticator: base}
	}))
	login := env.login(t)
	env.srv.RevokeToken(login.Token.AccessToken)

	_, err := env.gw.Get(context.Background(), "records", RequestOptions{})
	if !errors.Is(err, ErrSessionExpired) || KindOf(err) != KindAuth {
		t.Fatalf("expected session expired, got %v", err)
	}
	if _, ok := env.gw.Auth().CurrentUser(); ok {
		t.Fatalf("credentials should be cleared")
	}
	if env.gw.Auth().IsAuthenticated(context.Background()) {
		t.Fatalf("still authenticated")
	}
}

func TestRefreshRejectedClearsCredentials(t *testing.T) {
	clock := newTestClock()
	stub := &stubAuthenticator{
		now:        clock.Now,
		refreshErr: authError(CodeRefreshFailed, "revoked", nil),
		loginToken: AuthToken{AccessToken: "access-0", RefreshToken: "refresh-0"},
	}
	env := stubEnv(t, stub, withClock(clock.Now))
	env.login(t)
	ctx := context.Background()

	token, err := env.gw.Auth().Refresh(ctx)
	if token != nil || !errors.Is(err, ErrRefreshFailed) {
		t.Fatalf("refresh = %v, %v", token, err)
	}
	if _, ok := env.gw.Auth().CurrentUser(); ok {
		t.Fatalf("user still present")
	}
	if env.gw.Auth().AuthorizationHeader() != "" || env.gw.Auth().CSRFToken() != "" {
		t.Fatalf("credential state survived rejection")
	}
	if env.store.Len() != 0 {
		t.Fatalf("store still holds %d keys", env.store.Len())
	}
}

func TestRefreshNetworkErrorKeepsCredentials(t *testing.T) {
	clock := newTestClock()
	stub := &stubAuthenticator{
		now:        clock.Now,
		refreshErr: networkError(CodeNetwork, errLinkDown),
		loginToken: AuthToken{AccessToken: "access-0", RefreshToken: "refresh-0"},
	}
	env := stubEnv(t, stub, withClock(clock.Now))
	env.login(t)

	_, err := env.gw.Auth().Refresh(context.Background())
	if !errors.Is(err, ErrRefreshFailed) {
		t.Fatalf("refresh err = %v", err)
	}
	if _, ok := env.gw.Auth().CurrentUser(); !ok {
		t.Fatalf("network failure must not log the user out")
	}
	if env.gw.Auth().AuthorizationHeader() != "Bearer access-0" {
		t.Fatalf("token changed: %q", env.gw.Auth().AuthorizationHeader())
	}
}

func TestExpiredRefreshTokenClearsWithoutCallingBackend(t *testing.T) {
	clock := newTestClock()
	stub := &stubAuthenticator{
		now: clock.Now,
		loginToken: AuthToken{
			AccessToken:      "access-0",
			RefreshToken:     "refresh-0",
			ExpiresAt:        clock.Now().Add(time.Minute),
			RefreshExpiresAt: clock.Now().Add(time.Hour),
		},
	}
	env := stubEnv(t, stub, withClock(clock.Now))
	env.login(t)

	clock.Advance(2 * time.Hour)
	token, err := env.gw.Auth().Refresh(context.Background())
	if token != nil || !errors.Is(err, ErrRefreshFailed) {
		t.Fatalf("refresh = %v, %v", token, err)
	}
	if stub.refreshCalls() != 0 {
		t.Fatalf("backend called with an expired refresh token")
	}
	if env.gw.Auth().IsAuthenticated(context.Background()) {
		t.Fatalf("still authenticated")
	}
}

func TestIsAuthenticatedStartsAsyncRefresh(t *testing.T) {
	clock := newTestClock()
	stub := &stubAuthenticator{
		now: clock.Now,
		loginToken: AuthToken{
			AccessToken:      "access-0",
			RefreshToken:     "refresh-0",
			ExpiresAt:        clock.Now().Add(time.Minute),
			RefreshExpiresAt: clock.Now().Add(time.Hour),
		},
	}
	env := stubEnv(t, stub, withClock(clock.Now))
	env.login(t)
	ctx := context.Background()

	if !env.gw.Auth().IsAuthenticated(ctx) {
		t.Fatalf("fresh login should be authenticated")
	}

	clock.Advance(2 * time.Minute)
	if env.gw.Auth().IsAuthenticated(ctx) {
		t.Fatalf("expired access token reported as authenticated")
	}
	env.gw.Auth().wait()

	if stub.refreshCalls() != 1 {
		t.Fatalf("refresh calls = %d", stub.refreshCalls())
	}
	if !env.gw.Auth().IsAuthenticated(ctx) {
		t.Fatalf("async refresh did not restore authentication")
	}
}

func TestRefreshRejectsEarlierExpiry(t *testing.T) {
	clock := newTestClock()
	stub := &stubAuthenticator{
		now:        clock.Now,
		refreshTTL: 5 * time.Minute,
		loginToken: AuthToken{
			AccessToken:  "access-0",
			RefreshToken: "refresh-0",
			ExpiresAt:    clock.Now().Add(30 * time.Minute),
		},
	}
	env := stubEnv(t, stub, withClock(clock.Now))
	env.login(t)

	if _, err := env.gw.Auth().Refresh(context.Background()); !errors.Is(err, ErrRefreshFailed) {
		t.Fatalf("expected refresh failure, got %v", err)
	}
	token, ok := env.gw.Auth().Token()
	if !ok || token.AccessToken != "access-0" {
		t.Fatalf("token replaced by an earlier-expiring one: %+v", token)
	}
}

func TestLogoutDuringRefreshDoesNotResurrect(t *testing.T) {
	clock := newTestClock()
	stub := &stubAuthenticator{
		now:        clock.Now,
		loginToken: AuthToken{AccessToken: "access-0", RefreshToken: "refresh-0"},
	}
	var gated *gatedAuthenticator
	env := newTestEnv(t, withClock(clock.Now), withAuthenticator(func(Authenticator) Authenticator {
		gated = newGatedAuthenticator(stub)
		return gated
	}))
	env.login(t)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := env.gw.Auth().Refresh(ctx)
		done <- err
	}()
	waitFor(t, time.Second, func() bool { return gated.calls.Load() == 1 })

	if err := env.gw.Logout(ctx); err != nil {
		t.Fatalf("logout: %v", err)
	}
	close(gated.release)

	if err := <-done; !errors.Is(err, ErrRefreshFailed) {
		t.Fatalf("refresh err = %v", err)
	}
	if _, ok := env.gw.Auth().CurrentUser(); ok {
		t.Fatalf("refresh resurrected credentials after logout")
	}
	if env.store.Len() != 0 {
		t.Fatalf("store holds %d keys after logout", env.store.Len())
	}
}

func TestRefreshWithoutCredentials(t *testing.T) {
	env := newTestEnv(t)
	token, err := env.gw.Auth().Refresh(context.Background())
	if token != nil || !errors.Is(err, ErrRefreshFailed) {
		t.Fatalf("refresh = %v, %v", token, err)
	}
	if env.srv.Stats().Refreshes != 0 {
		t.Fatalf("backend called without a refresh token")
	}
}

func TestLogoutIdempotent(t *testing.T) {
	sink := NewChannelSink(32)
	env := newTestEnv(t, withSink(sink), withConfig(func(c *Config) {
		c.Events.Enabled = true
		c.Events.DropIfFull = false
	}))
	env.login(t)
	ctx := context.Background()

	if err := env.gw.Logout(ctx); err != nil {
		t.Fatalf("first logout: %v", err)
	}
	if err := env.gw.Logout(ctx); err != nil {
		t.Fatalf("second logout: %v", err)
	}
	if env.gw.Auth().AuthorizationHeader() != "" {
		t.Fatalf("bearer survived logout")
	}
	if _, ok := env.gw.Sessions().Current(); ok {
		t.Fatalf("session survived logout")
	}

	env.gw.Close()
	logouts := 0
	for _, ev := range drainEvents(sink) {
		if ev.Type == "logout" {
			logouts++
			if ev.UserID != testUser {
				t.Fatalf("logout event user = %q", ev.UserID)
			}
		}
	}
	if logouts != 1 {
		t.Fatalf("logout events = %d, want 1", logouts)
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.gw.Login(ctx, Credentials{Username: testUser, Password: "wrong"})
	if !errors.Is(err, ErrInvalidCredentials) || KindOf(err) != KindAuth {
		t.Fatalf("expected invalid credentials, got %v", err)
	}

	_, err = env.gw.Login(ctx, Credentials{Username: "  ", Password: "x"})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("blank username err = %v", err)
	}
	if n := env.capture.count("/auth/login"); n != 1 {
		t.Fatalf("login endpoint hit %d times, want 1", n)
	}
	if env.gw.MetricValue(MetricLoginFailure) != 2 {
		t.Fatalf("login failures = %d", env.gw.MetricValue(MetricLoginFailure))
	}
}

func TestLoginBackendDownIsNetworkError(t *testing.T) {
	env := newTestEnv(t)
	env.doer.down.Store(true)

	_, err := env.gw.Login(context.Background(), Credentials{Username: testUser, Password: testPassword})
	if KindOf(err) != KindNetwork || errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected network error, got %v", err)
	}
}

func TestLoginStartsSessionAndStoresServerCSRF(t *testing.T) {
	env := newTestEnv(t)
	login := env.login(t)

	if login.CSRFToken == "" || env.gw.Auth().CSRFToken() != login.CSRFToken {
		t.Fatalf("csrf = %q / %q", login.CSRFToken, env.gw.Auth().CSRFToken())
	}
	sess, ok := env.gw.Sessions().Current()
	if !ok || sess.UserID != testUser {
		t.Fatalf("session = %+v, %v", sess, ok)
	}
	if login.Token.ExpiresAt.IsZero() || login.Token.RefreshExpiresAt.IsZero() {
		t.Fatalf("token expiry missing: %+v", login.Token)
	}
}

func TestBuildRestoresCredentials(t *testing.T) {
	first := newTestEnv(t)
	first.login(t)
	first.gw.Close()

	second := newTestEnv(t, withStore(first.store))
	user, ok := second.gw.Auth().CurrentUser()
	if !ok || user.Name != testUser {
		t.Fatalf("restored user = %+v, %v", user, ok)
	}
	if _, ok := second.gw.Sessions().Current(); !ok {
		t.Fatalf("session not restored")
	}
	if _, err := second.gw.Get(context.Background(), "records", RequestOptions{}); err != nil {
		t.Fatalf("request with restored token: %v", err)
	}
}

func TestBuildLogsOutIdleCredentials(t *testing.T) {
	for _, logout := range []bool{true, false} {
		clock := newTestClock()
		stub := &stubAuthenticator{
			now:        clock.Now,
			loginToken: AuthToken{AccessToken: "access-0", RefreshToken: "refresh-0"},
		}
		cfg := withConfig(func(c *Config) { c.Session.LogoutOnExpiry = logout })

		first := stubEnv(t, stub, withClock(clock.Now), cfg)
		first.login(t)
		first.gw.Close()

		clock.Advance(time.Hour)
		second := stubEnv(t, stub, withClock(clock.Now), cfg, withStore(first.store))

		_, hasUser := second.gw.Auth().CurrentUser()
		_, hasSession := second.gw.Sessions().Current()
		if logout && (hasUser || hasSession) {
			t.Fatalf("LogoutOnExpiry: user=%v session=%v", hasUser, hasSession)
		}
		if !logout && (!hasUser || !hasSession) {
			t.Fatalf("keep credentials: user=%v session=%v", hasUser, hasSession)
		}
	}
}

func TestRefreshIfNearExpiry(t *testing.T) {
	clock := newTestClock()
	stub := &stubAuthenticator{
		now: clock.Now,
		loginToken: AuthToken{
			AccessToken:      "access-0",
			RefreshToken:     "refresh-0",
			ExpiresAt:        clock.Now().Add(30 * time.Minute),
			RefreshExpiresAt: clock.Now().Add(2 * time.Hour),
		},
	}
	env := stubEnv(t, stub, withClock(clock.Now))
	env.login(t)
	ctx := context.Background()

	env.gw.Auth().refreshIfNearExpiry(ctx)
	if stub.refreshCalls() != 0 {
		t.Fatalf("refreshed a token far from expiry")
	}

	clock.Advance(25 * time.Minute)
	env.gw.Auth().refreshIfNearExpiry(ctx)
	if stub.refreshCalls() != 1 {
		t.Fatalf("refresh calls = %d, want 1", stub.refreshCalls())
	}
	token, _ := env.gw.Auth().Token()
	if !token.ExpiresAt.Equal(clock.Now().Add(15 * time.Minute)) {
		t.Fatalf("expires at = %s", token.ExpiresAt)
	}
}

func TestAuthorizedFetchRetriesAfterRefresh(t *testing.T) {
	env := newTestEnv(t)
	login := env.login(t)
	env.srv.RevokeToken(login.Token.AccessToken)

	resp, err := env.gw.Auth().AuthorizedFetch(context.Background(), http.MethodGet, env.ts.URL+"/records", nil, nil)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if env.srv.Stats().Refreshes != 1 {
		t.Fatalf("refreshes = %d", env.srv.Stats().Refreshes)
	}
}

func TestNormalizeTokenReadsJWTExpiry(t *testing.T) {
	tokens := newTestTokens(t, nil)
	pair, err := tokens.IssuePair(testUser, "editor", nil)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	got := normalizeToken(AuthToken{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken})
	if got.ExpiresAt.Unix() != pair.ExpiresAt.Unix() || got.RefreshExpiresAt.Unix() != pair.RefreshExpiresAt.Unix() {
		t.Fatalf("normalized = %+v, pair = %+v", got, pair)
	}

	opaque := normalizeToken(AuthToken{AccessToken: "opaque"})
	if !opaque.ExpiresAt.IsZero() {
		t.Fatalf("opaque token got an expiry")
	}
}
