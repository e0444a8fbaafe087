// Package otellog delivers gateway events as OpenTelemetry log records.
//
// Plug a [Sink] into the builder with WithEventSink. Each event becomes one record
// whose body is the event type and whose attributes carry the user, session, endpoint,
// operation and error; metadata is nested under a "metadata" map attribute.
package otellog
