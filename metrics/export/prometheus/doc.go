// Package prometheus exposes gateway counters as a client_golang Collector.
//
// [NewExporter] wraps a built gateway. The exporter registers itself in a private
// registry served by [Exporter.Handler]; callers that run their own registry can
// register the Exporter there instead. Counter names are gateway_*_total and the
// one histogram is gateway_request_latency_seconds.
//
// # What this package must NOT do
//
//   - Register in the global Prometheus registry.
//   - Mutate gateway state.
package prometheus
