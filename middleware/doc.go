// Package middleware exposes HTTP guards for services that accept the tokens goGateway
// sends: bearer verification, CSRF echo checks and permission checks.
//
// # Guards
//
//   - [Guard] verifies the bearer access token and stores its claims in the context.
//   - [RequireCSRF] checks X-CSRF-Token on mutating methods.
//   - [RequirePermission] checks a named permission from the token claims.
//
// Guards compose in that order: Guard first, since the others read its claims.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into jwt and permission calls. It does NOT issue
// tokens or hold credential state.
//
// # What this package must NOT do
//
//   - Create JWTs (that is the jwt package's job).
//   - Access storage backends.
//   - Tell the client more about a rejected token than expired versus invalid.
package middleware
