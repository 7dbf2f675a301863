// Package audit implements async, severity-aware event dispatching for
// security-relevant operations.
//
// # Components
//
//   - [Sink] — interface for batch event consumers (channel, JSON writer, no-op).
//   - [Dispatcher] — buffered async relay; batches low-severity events by size
//     and interval, flushes high and critical events immediately, and requeues
//     batches the sink rejects.
//   - [Event] — structured audit record with a ULID identifier, severity,
//     account, restaurant, device, and metadata.
//   - [MemoryStore] — bounded in-memory Store for the Search/Stats read side.
//
// # Architecture boundaries
//
// This package owns event buffering, sanitization, and sink delivery. It does
// NOT decide which events to emit — that responsibility belongs to the Engine.
//
// # What this package must NOT do
//
//   - Filter or suppress events based on business logic.
//   - Import pinauth or any sibling internal package.
//   - Perform network I/O beyond what a caller-supplied Sink does.
package audit
