package internaldefs

import (
	goGateway "github.com/MrEthical07/goGateway"
)

// CounterDef names one gateway counter.
type CounterDef struct {
	ID   goGateway.MetricID
	Name string
	Help string
}

// HistogramDef names one gateway histogram.
type HistogramDef struct {
	ID   goGateway.MetricID
	Name string
	Help string
}

// EventsDroppedName is the counter for events lost to dispatcher backpressure.
const EventsDroppedName = "gateway_events_dropped_total"

// CounterDefs lists every exported counter in snapshot order.
var CounterDefs = []CounterDef{
	{ID: goGateway.MetricRequestSuccess, Name: "gateway_request_success_total", Help: "Requests that completed with a 2xx response."},
	{ID: goGateway.MetricRequestFailure, Name: "gateway_request_failure_total", Help: "Requests that ended in an error."},
	{ID: goGateway.MetricRateLimited, Name: "gateway_rate_limited_total", Help: "Requests rejected by the client-side rate limiter."},
	{ID: goGateway.MetricQueueRejected, Name: "gateway_queue_rejected_total", Help: "Requests rejected because the queue was full."},
	{ID: goGateway.MetricUnauthorizedRetry, Name: "gateway_unauthorized_retry_total", Help: "Requests retried after a 401 and a token refresh."},
	{ID: goGateway.MetricRefreshSuccess, Name: "gateway_refresh_success_total", Help: "Successful token refreshes."},
	{ID: goGateway.MetricRefreshFailure, Name: "gateway_refresh_failure_total", Help: "Failed token refreshes."},
	{ID: goGateway.MetricRefreshShared, Name: "gateway_refresh_shared_total", Help: "Callers that joined an in-flight refresh."},
	{ID: goGateway.MetricLoginSuccess, Name: "gateway_login_success_total", Help: "Successful logins."},
	{ID: goGateway.MetricLoginFailure, Name: "gateway_login_failure_total", Help: "Failed logins."},
	{ID: goGateway.MetricLogout, Name: "gateway_logout_total", Help: "Logouts."},
	{ID: goGateway.MetricSessionExpired, Name: "gateway_session_expired_total", Help: "Sessions that expired from inactivity."},
	{ID: goGateway.MetricOfflineQueued, Name: "gateway_offline_queued_total", Help: "Mutating requests persisted while offline."},
	{ID: goGateway.MetricOfflineReplayed, Name: "gateway_offline_replayed_total", Help: "Offline operations replayed successfully."},
	{ID: goGateway.MetricOfflineDropped, Name: "gateway_offline_dropped_total", Help: "Offline operations discarded."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: goGateway.MetricRequestLatency, Name: "gateway_request_latency_seconds", Help: "End-to-end request latency."},
}

// HistogramUpperBounds are the bucket limits in seconds; the last bucket is +Inf.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix names each bucket for exporters without native histograms.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates raw to the eight gateway buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
