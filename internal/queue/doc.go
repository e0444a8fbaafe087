// Package queue provides the bounded-concurrency admission queue every gateway request
// passes through.
//
// # Admission rules
//
//   - Submit fails fast with [ErrQueueFull] once MaxQueueSize items are held
//     (waiting plus executing); nothing is enqueued in that case.
//   - Waiting items start strictly in submission order, at most Concurrency at a time.
//   - Completion order is whatever order the work finishes in.
//   - Results and errors of the work function reach the caller unchanged.
//
// # What this package must NOT do
//
//   - Retry, transform or classify errors returned by work.
//   - Cancel work that has been admitted; callers may only stop waiting.
package queue
