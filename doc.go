// Package goGateway is a client-side resilience layer for outbound HTTP calls: token
// lifecycle management, per-operation fixed-window rate limiting, a concurrency-bounded
// request queue and session idle-timeout tracking.
//
// Every call made through [Gateway.Request] passes the same pipeline:
//
//	rate limit → queue admission → headers (Content-Type, bearer, CSRF) → transport
//	→ on 401: one single-flight refresh and one retry → response/error normalization
//
// Rate-limit and queue-full errors are raised before any network work. Failures are
// always returned as *[Error] values that callers branch on by [Kind] or with errors.Is.
//
// # Architecture boundaries
//
// goGateway is the public surface: [Builder], [Gateway], [AuthManager], [Config] and
// value types. Rate limiting, queueing, background tasks, metrics and event dispatch live
// under internal/. Persistence goes through [storage.Store]; session and draft state
// through [session.Monitor].
//
// # What this package must NOT do
//
//   - Hold package-level mutable state; every Gateway is independent.
//   - Retry silently beyond the single 401 recovery (offline replay is explicit).
//   - Log token values.
package goGateway
