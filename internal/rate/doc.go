// Package rate implements the per-(identifier, operation) fixed-window limiter that gates
// gateway requests.
//
// # Window semantics
//
// A record {count, resetAt} is created lazily on the first check of a window with
// count 0 and resetAt = now + window, then incremented on every check, including
// rejected ones. Once now >= resetAt the record is discarded and the next check opens a
// fresh window. Counts never decrease inside a window.
//
// Keys are "identifier:operation". The Redis store prefixes them with "rl:".
//
// # Stores
//
//   - [MemoryStore]: process-local map, swept periodically.
//   - [RedisStore]: INCR + PEXPIRE in one Lua call; Redis TTLs do the sweeping.
//
// # What this package must NOT do
//
//   - Decide what happens to a rejected caller (the gateway builds the error).
//   - Be imported outside the goGateway module.
package rate
