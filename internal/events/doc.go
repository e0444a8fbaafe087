// Package events relays gateway lifecycle events to a sink off the request path.
//
// [Dispatcher] owns one goroutine and a bounded buffer. When the buffer is full it
// either drops and counts ([Config].DropIfFull) or makes the emitter wait. A sink
// that panics loses that one event; the relay keeps running.
//
// Sinks: [NoOpSink], [ChannelSink], [JSONWriterSink], [SinkFunc] and [MultiSink].
//
// # What this package must NOT do
//
//   - Decide which events exist. The gateway does.
//   - Import goGateway or any sibling internal package.
package events
