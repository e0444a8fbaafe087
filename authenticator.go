package goGateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// Authenticator exchanges credentials and refresh tokens for token pairs. A rejection
// must be returned as an *Error of KindAuth, KindClient or KindValidation so the
// AuthManager can tell it apart from an unreachable backend.
type Authenticator interface {
	Login(ctx context.Context, creds Credentials) (*LoginResult, error)
	Refresh(ctx context.Context, refreshToken string) (*AuthToken, error)
}

// HTTPAuthenticator calls the backend's login and refresh endpoints directly. Those calls
// bypass the rate limiter and request queue.
type HTTPAuthenticator struct {
	client      HTTPDoer
	baseURL     string
	loginPath   string
	refreshPath string
	userAgent   string
}

var _ Authenticator = (*HTTPAuthenticator)(nil)

// NewHTTPAuthenticator builds an authenticator for api using the endpoints in auth.
func NewHTTPAuthenticator(client HTTPDoer, api APIConfig, auth AuthConfig) *HTTPAuthenticator {
	if client == nil {
		client = &http.Client{Timeout: api.Timeout}
	}
	return &HTTPAuthenticator{
		client:      client,
		baseURL:     api.BaseURL,
		loginPath:   auth.LoginEndpoint,
		refreshPath: auth.RefreshEndpoint,
		userAgent:   api.UserAgent,
	}
}

// Login posts creds to the login endpoint.
func (a *HTTPAuthenticator) Login(ctx context.Context, creds Credentials) (*LoginResult, error) {
	resp, err := a.post(ctx, a.loginPath, creds)
	if err != nil {
		return nil, err
	}
	result, err := DecodeData[LoginResult](resp)
	if err != nil {
		return nil, err
	}
	if result.Token.AccessToken == "" {
		return nil, &Error{Kind: KindServer, Code: CodeServer, Message: "login response carried no access token", StatusCode: resp.StatusCode}
	}
	if result.User.Name == "" {
		result.User.Name = creds.Username
	}
	return &result, nil
}

// Refresh posts the refresh token to the refresh endpoint.
func (a *HTTPAuthenticator) Refresh(ctx context.Context, refreshToken string) (*AuthToken, error) {
	resp, err := a.post(ctx, a.refreshPath, map[string]string{"refresh_token": refreshToken})
	if err != nil {
		return nil, err
	}
	token, err := DecodeData[AuthToken](resp)
	if err != nil {
		return nil, err
	}
	if token.AccessToken == "" {
		return nil, &Error{Kind: KindServer, Code: CodeServer, Message: "refresh response carried no access token", StatusCode: resp.StatusCode}
	}
	return &token, nil
}

func (a *HTTPAuthenticator) post(ctx context.Context, endpoint string, body any) (*Response, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, joinURL(a.baseURL, endpoint), bytes.NewReader(raw))
	if err != nil {
		return nil, &Error{Kind: KindValidation, Code: CodeInvalidRequest, Message: "invalid auth endpoint", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if a.userAgent != "" {
		req.Header.Set("User-Agent", a.userAgent)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, transportError(ctx, err)
	}
	defer drainAndClose(resp.Body)

	out, err := decodeResponse(resp)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// joinURL strips one leading slash from endpoint and joins it to base.
func joinURL(base, endpoint string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimPrefix(endpoint, "/")
}

// transportError classifies a failed Do call.
func transportError(ctx context.Context, err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return networkError(CodeTimeout, err)
	case errors.Is(err, context.Canceled):
		return networkError(CodeCanceled, err)
	case ctx != nil && ctx.Err() == context.DeadlineExceeded:
		return networkError(CodeTimeout, err)
	default:
		return networkError(CodeNetwork, err)
	}
}
