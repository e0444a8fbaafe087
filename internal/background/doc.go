// Package background owns the periodic tasks used by the gateway: proactive token
// refresh, rate-limit sweeps, session idle checks and draft auto-save.
//
// # Architecture boundaries
//
// Every task is an explicit [Task] value returned to whoever started it. The owner stops
// it with [Task.Stop]; nothing in this package keeps a global registry of timers.
//
// # What this package must NOT do
//
//   - Start goroutines that outlive their Task.
//   - Know anything about tokens, sessions or rate limits.
package background
