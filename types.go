package goGateway

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	internalevents "github.com/MrEthical07/goGateway/internal/events"
	internalmetrics "github.com/MrEthical07/goGateway/internal/metrics"
	"github.com/MrEthical07/goGateway/internal/queue"
	"github.com/MrEthical07/goGateway/internal/rate"
)

// Operation selects the rate-limit policy a request is counted under.
type Operation = rate.Operation

const (
	OpAPI    = rate.OpAPI
	OpCreate = rate.OpCreate
	OpSearch = rate.OpSearch
	OpExport = rate.OpExport
	OpNotify = rate.OpNotify
)

// RateLimitPolicy is one operation's window and ceiling.
type RateLimitPolicy = rate.Policy

// RateLimitPolicies is the per-operation policy table.
type RateLimitPolicies = rate.Policies

// RateLimitDecision is the outcome of a rate-limit check.
type RateLimitDecision = rate.Decision

// QueueStats reports request queue occupancy.
type QueueStats = queue.Stats

// Event is one gateway lifecycle record delivered to an [EventSink].
type Event = internalevents.Event

// EventSink consumes gateway events.
type EventSink = internalevents.Sink

// NoOpSink discards events.
type NoOpSink = internalevents.NoOpSink

// ChannelSink delivers events into a buffered channel.
type ChannelSink = internalevents.ChannelSink

// JSONWriterSink writes one JSON event per line.
type JSONWriterSink = internalevents.JSONWriterSink

// SinkFunc adapts a function to [EventSink].
type SinkFunc = internalevents.SinkFunc

// MultiSink fans every event out to several sinks.
type MultiSink = internalevents.MultiSink

// EventStats counts delivered, dropped and sink-panicked events.
type EventStats = internalevents.Stats

// NewChannelSink creates a [ChannelSink] with the given buffer.
func NewChannelSink(buffer int) *ChannelSink {
	return internalevents.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] over w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalevents.NewJSONWriterSink(w)
}

// MetricID indexes a gateway counter.
type MetricID = internalmetrics.MetricID

// MetricsSnapshot is a point-in-time copy of every counter and histogram.
type MetricsSnapshot = internalmetrics.Snapshot

const (
	MetricRequestSuccess    = internalmetrics.MetricRequestSuccess
	MetricRequestFailure    = internalmetrics.MetricRequestFailure
	MetricRateLimited       = internalmetrics.MetricRateLimited
	MetricQueueRejected     = internalmetrics.MetricQueueRejected
	MetricUnauthorizedRetry = internalmetrics.MetricUnauthorizedRetry
	MetricRefreshSuccess    = internalmetrics.MetricRefreshSuccess
	MetricRefreshFailure    = internalmetrics.MetricRefreshFailure
	MetricRefreshShared     = internalmetrics.MetricRefreshShared
	MetricLoginSuccess      = internalmetrics.MetricLoginSuccess
	MetricLoginFailure      = internalmetrics.MetricLoginFailure
	MetricLogout            = internalmetrics.MetricLogout
	MetricSessionExpired    = internalmetrics.MetricSessionExpired
	MetricOfflineQueued     = internalmetrics.MetricOfflineQueued
	MetricOfflineReplayed   = internalmetrics.MetricOfflineReplayed
	MetricOfflineDropped    = internalmetrics.MetricOfflineDropped
	MetricRequestLatency    = internalmetrics.MetricRequestLatency
	MetricIDCount           = internalmetrics.MetricIDCount
)

// Credentials are what Login exchanges for a token pair.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// User is the identity attached to the active token pair.
type User struct {
	Name        string   `json:"name"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions,omitempty"`
}

// AuthToken is the active access/refresh pair. Zero expiry times mean the token carries
// no readable expiry and is treated as unexpired.
type AuthToken struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	ExpiresAt        time.Time `json:"expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// Expired reports whether the access token has expired at now.
func (t AuthToken) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && !now.Before(t.ExpiresAt)
}

// RefreshExpired reports whether the refresh token has expired at now.
func (t AuthToken) RefreshExpired(now time.Time) bool {
	return !t.RefreshExpiresAt.IsZero() && !now.Before(t.RefreshExpiresAt)
}

// LoginResult is returned by a successful login. CSRFToken is optional; when the backend
// does not issue one a random token is generated.
type LoginResult struct {
	User      User      `json:"user"`
	Token     AuthToken `json:"token"`
	CSRFToken string    `json:"csrf_token,omitempty"`
}

// Response is a decoded 2xx response. Data holds the unwrapped payload: the envelope's
// data field when present, otherwise the raw body.
type Response struct {
	Data       json.RawMessage
	Success    bool
	Message    string
	StatusCode int
	Header     http.Header
}

// RequestOptions tune one call through the gateway pipeline.
type RequestOptions struct {
	// Method defaults to GET.
	Method string
	// Body is JSON-encoded unless it is already []byte or json.RawMessage.
	Body   any
	Header http.Header
	Query  url.Values
	// RateLimit counts the call against Operation's policy for the caller's identifier.
	RateLimit bool
	Operation Operation
	SkipAuth  bool
	SkipCSRF  bool
	// Timeout overrides Config.API.Timeout for this call.
	Timeout time.Duration

	replay bool
}

// FileUpload is a single multipart file part plus optional form fields.
type FileUpload struct {
	FieldName   string
	Filename    string
	ContentType string
	Content     io.Reader
	Fields      map[string]string
}

// DownloadOptions choose where a download is written. Writer wins over Dir.
type DownloadOptions struct {
	Filename string
	Dir      string
	Writer   io.Writer
	Request  RequestOptions
}

// DownloadResult describes a completed download. Path is empty when a Writer was used.
type DownloadResult struct {
	Filename    string
	Path        string
	Bytes       int64
	ContentType string
}

// BatchRequest is one entry of a Batch call.
type BatchRequest struct {
	Endpoint string
	Options  RequestOptions
}

// BatchResult holds the outcome at the same position as its request.
type BatchResult struct {
	Response *Response
	Err      error
}

// OfflineOperation is a mutating request persisted for later replay.
type OfflineOperation struct {
	ID        string          `json:"id"`
	Method    string          `json:"method"`
	Endpoint  string          `json:"endpoint"`
	Body      json.RawMessage `json:"body,omitempty"`
	Operation string          `json:"operation"`
	Attempts  int             `json:"attempts"`
	QueuedAt  time.Time       `json:"queued_at"`
}

// FlushResult summarizes one FlushOffline pass.
type FlushResult struct {
	Replayed  int
	Dropped   int
	Remaining int
}

// HTTPDoer is the transport the gateway sends requests through. *http.Client satisfies it.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}
