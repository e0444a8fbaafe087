package goGateway

import (
	"context"
	"time"

	internalevents "github.com/MrEthical07/goGateway/internal/events"
	internalmetrics "github.com/MrEthical07/goGateway/internal/metrics"
	"go.uber.org/zap"
)

// EventType names a lifecycle event.
type EventType uint8

const (
	EventLogin EventType = iota + 1
	EventLoginFailed
	EventLogout
	EventRefresh
	EventRefreshFailed
	EventRateLimited
	EventQueueFull
	EventSessionExpired
	EventOfflineQueued
	EventOfflineReplayed
	EventOfflineDropped
	eventTypeCount
)

var eventTypeNames = [eventTypeCount]string{
	EventLogin:           "login",
	EventLoginFailed:     "login_failed",
	EventLogout:          "logout",
	EventRefresh:         "refresh",
	EventRefreshFailed:   "refresh_failed",
	EventRateLimited:     "rate_limited",
	EventQueueFull:       "queue_full",
	EventSessionExpired:  "session_expired",
	EventOfflineQueued:   "offline_queued",
	EventOfflineReplayed: "offline_replayed",
	EventOfflineDropped:  "offline_dropped",
}

// eventMetrics pairs each event with the counter it bumps.
var eventMetrics = [eventTypeCount]internalmetrics.MetricID{
	EventLogin:           internalmetrics.MetricLoginSuccess,
	EventLoginFailed:     internalmetrics.MetricLoginFailure,
	EventLogout:          internalmetrics.MetricLogout,
	EventRefresh:         internalmetrics.MetricRefreshSuccess,
	EventRefreshFailed:   internalmetrics.MetricRefreshFailure,
	EventRateLimited:     internalmetrics.MetricRateLimited,
	EventQueueFull:       internalmetrics.MetricQueueRejected,
	EventSessionExpired:  internalmetrics.MetricSessionExpired,
	EventOfflineQueued:   internalmetrics.MetricOfflineQueued,
	EventOfflineReplayed: internalmetrics.MetricOfflineReplayed,
	EventOfflineDropped:  internalmetrics.MetricOfflineDropped,
}

func (t EventType) String() string {
	if t == 0 || t >= eventTypeCount {
		return "unknown"
	}
	return eventTypeNames[t]
}

// observer fans an outcome out to metrics, the event dispatcher and the logger.
type observer struct {
	logger     *zap.Logger
	metrics    *internalmetrics.Metrics
	dispatcher *internalevents.Dispatcher
	now        func() time.Time
}

func newObserver(logger *zap.Logger, m *internalmetrics.Metrics, d *internalevents.Dispatcher, now func() time.Time) *observer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	return &observer{logger: logger, metrics: m, dispatcher: d, now: now}
}

func (o *observer) inc(id internalmetrics.MetricID) {
	o.metrics.Inc(id)
}

func (o *observer) observe(id internalmetrics.MetricID, d time.Duration) {
	o.metrics.Observe(id, d)
}

// emit counts the event and hands it to the dispatcher. Success is derived from err.
func (o *observer) emit(ctx context.Context, t EventType, e Event, err error) {
	if t == 0 || t >= eventTypeCount {
		return
	}
	o.metrics.Inc(eventMetrics[t])
	if o.dispatcher == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	e.Type = t.String()
	e.Timestamp = o.now()
	e.Success = err == nil
	if err != nil {
		e.Error = err.Error()
	}
	o.dispatcher.Emit(ctx, e)
}
