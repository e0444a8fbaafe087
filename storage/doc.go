// Package storage persists the client's durable local state: credentials, the active
// session, drafts and the offline operation queue.
//
// Three backends implement [Store]: [MemoryStore] for tests and short-lived processes,
// [FileStore] for a single machine that must survive restarts, and [RedisStore] when
// several processes share one identity.
//
// Values are opaque byte slices. [GetJSON] and [SetJSON] cover the common case of JSON
// documents. Keys are namespaced through a [Keyspace] so several gateways can share
// one backend.
package storage
