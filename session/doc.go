// Package session tracks the client's idle timeout, draft persistence and auto-save
// cadence.
//
// # Idle timeout
//
// A [Monitor] holds at most one active [Session]. Tracked user activity pushes its
// expiry to now plus the configured timeout, and a periodic check destroys it once that
// moment passes and notifies [Monitor.OnExpired] subscribers.
//
// # Drafts
//
// Drafts outlive sessions. Each carries its own expiry and expired drafts are pruned
// whenever the list is read.
//
// # What this package must NOT do
//
//   - Import goGateway (no upward imports).
//   - Perform network calls. Logging out on expiry is the subscriber's job.
package session
