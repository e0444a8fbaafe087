package goGateway

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrInvalidCredentials is returned by Login when the authenticator rejects the credentials.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrSessionExpired is returned when a 401 could not be recovered because refresh failed.
	ErrSessionExpired = errors.New("session expired")
	// ErrRefreshFailed is returned by Refresh when no new token pair could be obtained.
	ErrRefreshFailed = errors.New("refresh failed")
	// ErrUnauthorized is returned when a request is still rejected after the refresh retry.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrRateLimited is returned when a rate-limit window is closed.
	ErrRateLimited = errors.New("rate limited")
	// ErrQueueFull is returned when the request queue backlog is at capacity.
	ErrQueueFull = errors.New("request queue full")
	// ErrValidation is returned for 4xx responses carrying field errors.
	ErrValidation = errors.New("validation failed")
	// ErrClient is returned for other 4xx responses.
	ErrClient = errors.New("client error")
	// ErrServer is returned for 5xx responses.
	ErrServer = errors.New("server error")
	// ErrNetwork is returned when the transport failed or timed out.
	ErrNetwork = errors.New("network error")
	// ErrQueuedOffline is returned when a failed mutating request was stored for replay.
	ErrQueuedOffline = errors.New("request queued for offline replay")
	// ErrFeatureDisabled is returned when a request targets a feature turned off in Config.
	ErrFeatureDisabled = errors.New("feature disabled")
	// ErrClosed is returned by calls made after Close.
	ErrClosed = errors.New("gateway closed")
)

// Kind classifies an [Error].
type Kind uint8

const (
	KindAuth Kind = iota + 1
	KindRateLimit
	KindQueueFull
	KindValidation
	KindClient
	KindServer
	KindNetwork
	kindCount
)

var kindNames = [kindCount]string{
	KindAuth:       "auth",
	KindRateLimit:  "rate_limit",
	KindQueueFull:  "queue_full",
	KindValidation: "validation",
	KindClient:     "client",
	KindServer:     "server",
	KindNetwork:    "network",
}

var kindSentinels = [kindCount]error{
	KindRateLimit:  ErrRateLimited,
	KindQueueFull:  ErrQueueFull,
	KindValidation: ErrValidation,
	KindClient:     ErrClient,
	KindServer:     ErrServer,
	KindNetwork:    ErrNetwork,
}

func (k Kind) String() string {
	if k == 0 || k >= kindCount {
		return "unknown"
	}
	return kindNames[k]
}

// Error codes carried in [Error.Code].
const (
	CodeInvalidCredentials = "invalid_credentials"
	CodeSessionExpired     = "session_expired"
	CodeRefreshFailed      = "refresh_failed"
	CodeUnauthorized       = "unauthorized"
	CodeForbidden          = "forbidden"
	CodeRateLimited        = "rate_limited"
	CodeQueueFull          = "queue_full"
	CodeValidation         = "validation_failed"
	CodeInvalidRequest     = "invalid_request"
	CodeClient             = "client_error"
	CodeServer             = "server_error"
	CodeNetwork            = "network_error"
	CodeTimeout            = "timeout"
	CodeCanceled           = "canceled"
	CodeQueuedOffline      = "queued_offline"
	CodeFeatureDisabled    = "feature_disabled"
	CodeClosed             = "closed"
)

var codeSentinels = map[string]error{
	CodeInvalidCredentials: ErrInvalidCredentials,
	CodeSessionExpired:     ErrSessionExpired,
	CodeRefreshFailed:      ErrRefreshFailed,
	CodeUnauthorized:       ErrUnauthorized,
	CodeQueuedOffline:      ErrQueuedOffline,
	CodeFeatureDisabled:    ErrFeatureDisabled,
	CodeClosed:             ErrClosed,
}

// Error is the structured failure returned by every Gateway and AuthManager call.
// Callers branch on Kind or StatusCode, or use errors.Is with the package sentinels.
type Error struct {
	Kind       Kind
	Code       string
	Message    string
	StatusCode int
	Errors     map[string][]string
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Code != "" {
		b.WriteString(" (")
		b.WriteString(e.Code)
		b.WriteString(")")
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.StatusCode != 0 {
		b.WriteString(" [status ")
		b.WriteString(strconv.Itoa(e.StatusCode))
		b.WriteString("]")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches the sentinel for the error's code, then the one for its kind.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	if s, ok := codeSentinels[e.Code]; ok && s == target {
		return true
	}
	if e.Kind > 0 && e.Kind < kindCount {
		if s := kindSentinels[e.Kind]; s != nil && s == target {
			return true
		}
	}
	return false
}

// AsError extracts an *Error from err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of err, or 0 when err is not an *Error.
func KindOf(err error) Kind {
	if e, ok := AsError(err); ok {
		return e.Kind
	}
	return 0
}

func authError(code, message string, err error) *Error {
	return &Error{Kind: KindAuth, Code: code, Message: message, StatusCode: http.StatusUnauthorized, Err: err}
}

func networkError(code string, err error) *Error {
	msg := "transport failure"
	if code == CodeTimeout {
		msg = "request timed out"
	}
	if code == CodeCanceled {
		msg = "request canceled"
	}
	return &Error{Kind: KindNetwork, Code: code, Message: msg, Err: err}
}

func rateLimitError(op string, retryAfter time.Duration) *Error {
	return &Error{
		Kind:       KindRateLimit,
		Code:       CodeRateLimited,
		Message:    fmt.Sprintf("rate limit exceeded for %s; retry in %ds", op, int(retryAfter/time.Second)),
		StatusCode: http.StatusTooManyRequests,
		RetryAfter: retryAfter,
	}
}

func queueFullError(err error) *Error {
	return &Error{Kind: KindQueueFull, Code: CodeQueueFull, Message: "too many pending requests", Err: err}
}

// isAuthRejection reports whether err means the server refused the credential itself,
// as opposed to being unreachable.
func isAuthRejection(err error) bool {
	switch KindOf(err) {
	case KindAuth, KindClient, KindValidation:
		return true
	default:
		return false
	}
}

// errorFromStatus maps a non-2xx response to an *Error. 401 and 429 get their own kinds;
// other statuses split on 4xx/5xx, with field errors promoting a 4xx to KindValidation.
func errorFromStatus(status int, header http.Header, env errorEnvelope) *Error {
	msg := env.Message
	if msg == "" {
		msg = http.StatusText(status)
	}
	e := &Error{Message: msg, StatusCode: status, Errors: env.Errors}

	switch {
	case status == http.StatusUnauthorized:
		e.Kind, e.Code = KindAuth, CodeUnauthorized
	case status == http.StatusTooManyRequests:
		e.Kind, e.Code = KindRateLimit, CodeRateLimited
		e.RetryAfter = parseRetryAfter(header.Get("Retry-After"))
	case status >= 500:
		e.Kind, e.Code = KindServer, CodeServer
	case len(env.Errors) > 0:
		e.Kind, e.Code = KindValidation, CodeValidation
	case status == http.StatusForbidden:
		e.Kind, e.Code = KindClient, CodeForbidden
	default:
		e.Kind, e.Code = KindClient, CodeClient
	}
	return e
}

func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
