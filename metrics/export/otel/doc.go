// Package otel binds gateway counters to an OpenTelemetry Meter.
//
// [NewExporter] registers an Int64ObservableCounter per gateway counter and an
// Int64ObservableGauge per latency bucket. One callback takes a snapshot per
// collection cycle.
//
// # What this package must NOT do
//
//   - Own the MeterProvider. Callers supply the Meter.
//   - Mutate gateway state.
package otel
