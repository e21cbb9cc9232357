// Package audit implements async event dispatching for session lifecycle
// operations (login, logout, revoke-all, refresh token reuse).
//
// # Components
//
//   - [Sink]: interface for event consumers (channel, JSON writer, zap, no-op, fan-out).
//   - [Dispatcher]: buffered async relay with drop-if-full or block-if-full semantics.
//   - [Event]: audit record with timestamp, action, user, team, IP and metadata.
//
// # Architecture boundaries
//
// This package owns event buffering and sink delivery. It does NOT decide which
// events to emit; the Engine and flow functions do.
//
// # What this package must NOT do
//
//   - Filter or suppress events based on business logic.
//   - Import goSession or any sibling internal package.
//   - Let a failing sink propagate an error back into a session operation.
package audit
