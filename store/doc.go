// Package store defines the refresh-token record store: the durable record of
// issued refresh tokens per user, with revocation, rotation and lineage.
//
// # Components
//
//   - [Store]: the contract every backend implements.
//   - [Record]: one issued refresh token, identified by the SHA-256 of the raw token.
//   - [MemoryStore]: mutex-guarded implementation for tests and single-process deployments.
//
// Durable backends live in sub-packages: store/redisstore (Lua scripts) and
// store/pgstore (PostgreSQL transactions).
//
// # Generation watermark
//
// Every user has a monotonically increasing generation. A record is created
// at the current generation; [Store.RevokeAllForUser] bumps the generation in
// the same atomic step that revokes the user's active records. A record whose
// generation is below the user's current one is never active, so a rotation
// that raced a revoke-all cannot leave a usable record behind.
//
// # What this package must NOT do
//
//   - Store or log raw refresh tokens.
//   - Parse or verify JWTs.
package store
