// Package internal contains helpers that are private to goGateway.
//
// # Sub-packages
//
//   - background: owned periodic tasks with a stop handle
//   - events: async event dispatch (Dispatcher + Sink implementations)
//   - metrics: lock-free counters and latency histograms
//   - queue: bounded-concurrency FIFO admission
//   - rate: fixed-window rate limiting over memory or Redis stores
//
// # What this package must NOT do
//
//   - Export types that appear in the public goGateway API.
//   - Be imported by any package outside the goGateway module.
package internal
