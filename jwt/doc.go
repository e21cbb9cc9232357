// Package jwt is the token codec: it issues and verifies signed, time-bound
// access and refresh tokens independent of any storage.
//
// Every token carries a token_type claim. [Manager.VerifyKind] refuses an
// access token where a refresh token is required and the reverse.
//
// # Architecture boundaries
//
// The signing configuration is injected once through [NewManager] and never
// read from the environment here. Verification takes the caller's clock so
// expiry is always evaluated against an explicit instant.
//
// # What this package must NOT do
//
//   - Touch the refresh-token store or any network resource.
//   - Panic or return untyped errors on malformed input.
package jwt
