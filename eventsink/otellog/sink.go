package otellog

import (
	"context"
	"sort"
	"time"

	goGateway "github.com/MrEthical07/goGateway"
	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// ScopeName is the instrumentation scope records are emitted under.
const ScopeName = "github.com/MrEthical07/goGateway"

// Emitter is the part of an otel log.Logger the sink uses.
type Emitter interface {
	Emit(ctx context.Context, record otellog.Record)
}

// Sink turns gateway events into OpenTelemetry log records.
type Sink struct {
	logger Emitter
}

var _ goGateway.EventSink = (*Sink)(nil)

// New returns a Sink backed by provider. A nil provider yields a Sink that drops
// everything.
func New(provider *sdklog.LoggerProvider) *Sink {
	if provider == nil {
		return &Sink{}
	}
	return &Sink{logger: provider.Logger(ScopeName)}
}

// NewWithLogger returns a Sink over any emitter, usually an otel log.Logger.
func NewWithLogger(logger Emitter) *Sink {
	return &Sink{logger: logger}
}

// Emit implements goGateway.EventSink.
func (s *Sink) Emit(ctx context.Context, event goGateway.Event) {
	if s == nil || s.logger == nil {
		return
	}
	s.logger.Emit(ctx, Record(event))
}

// Record converts one event. Failed events are WARN, the rest INFO.
func Record(event goGateway.Event) otellog.Record {
	var rec otellog.Record

	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	rec.SetTimestamp(ts)
	rec.SetObservedTimestamp(time.Now().UTC())
	rec.SetBody(otellog.StringValue(event.Type))

	if event.Success {
		rec.SetSeverity(otellog.SeverityInfo)
		rec.SetSeverityText("INFO")
	} else {
		rec.SetSeverity(otellog.SeverityWarn)
		rec.SetSeverityText("WARN")
	}

	rec.AddAttributes(
		otellog.String("event_type", event.Type),
		otellog.Bool("success", event.Success),
	)
	if event.UserID != "" {
		rec.AddAttributes(otellog.String("user_id", event.UserID))
	}
	if event.SessionID != "" {
		rec.AddAttributes(otellog.String("session_id", event.SessionID))
	}
	if event.Endpoint != "" {
		rec.AddAttributes(otellog.String("endpoint", event.Endpoint))
	}
	if event.Operation != "" {
		rec.AddAttributes(otellog.String("operation", event.Operation))
	}
	if event.Error != "" {
		rec.AddAttributes(otellog.String("error", event.Error))
	}

	if len(event.Metadata) > 0 {
		keys := make([]string, 0, len(event.Metadata))
		for k := range event.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		kvs := make([]otellog.KeyValue, 0, len(keys))
		for _, k := range keys {
			kvs = append(kvs, otellog.String(k, event.Metadata[k]))
		}
		rec.AddAttributes(otellog.Map("metadata", kvs...))
	}
	return rec
}
