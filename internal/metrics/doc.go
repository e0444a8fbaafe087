// Package metrics holds the gateway's counters and its request latency histogram.
//
// Counters sit in cache-line-padded slots and are bumped with atomic adds. The
// histogram has 8 fixed buckets (<=5ms up to +Inf) plus a running sum. Writes never
// allocate; [Metrics.Snapshot] copies everything into maps for exporters.
//
// # What this package must NOT do
//
//   - Perform I/O.
//   - Import goGateway or any sibling package.
//   - Keep global state.
package metrics
