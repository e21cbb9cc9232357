// Package flows contains the orchestrators behind every Engine operation.
//
// Each flow function (RunIssueSession, RunLogin, RunRefresh, RunProbe,
// RunRevokeAll) accepts a typed dependency struct and returns a result. Side
// effects happen only through those dependencies, so flows are tested with
// an in-memory store and plain function stubs.
//
// # Architecture boundaries
//
// Flow functions coordinate the token codec, refresh store and rate limiter.
// They do NOT own any of these resources; ownership stays with the Engine,
// which also maps failure kinds onto public errors, metrics and audit events.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import goSession (to avoid import cycles).
//   - Touch cookies or HTTP types.
package flows
