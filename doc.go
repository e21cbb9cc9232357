// Package goSession manages the lifecycle of token-based sessions: issuing a
// short-lived access token with a rotating refresh token, silently refreshing
// the pair, and revoking every session of a user.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// goSession is the public surface. It exposes [Engine], [Builder], [Config],
// and value types ([TokenPair], [Session], [MetricsSnapshot]). Flow
// orchestration, rate limiting and audit dispatch live under internal/ and
// are never exported. Refresh records are persisted through the store
// package contract; the memory, Redis and Postgres implementations are
// interchangeable.
//
// # What this package must NOT do
//
//   - Read or write cookies. The httpapi package owns the HTTP surface.
//   - Look up access tokens in storage. Access tokens are validated by
//     signature and expiry only.
//   - Import any sub-package that re-imports goSession (no import cycles).
//
// # Rotation contract
//
// A refresh token rotates successfully at most once. Presenting it again is
// reported as [ErrRefreshReuse] and, with RevokeAllOnReuse, revokes every
// session of its owner. Revoke-all is atomic against in-flight rotations:
// the store advances a per-user generation and records created before it are
// never active again.
package goSession
