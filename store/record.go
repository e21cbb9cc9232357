package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

var (
	// ErrNotFound means no record matches the token hash or id.
	ErrNotFound = errors.New("refresh record not found")
	// ErrExpired means the matching record is past its expiry.
	ErrExpired = errors.New("refresh record expired")
	// ErrRevoked means the record was revoked without being rotated
	// (explicit revoke or revoke-all).
	ErrRevoked = errors.New("refresh record revoked")
	// ErrReused means the record was already rotated: presenting its token
	// again is a replay.
	ErrReused = errors.New("refresh record already rotated")
	// ErrDuplicate means a record with the same token hash already exists.
	ErrDuplicate = errors.New("refresh record hash already exists")
	// ErrUnavailable wraps I/O failures of the backing store.
	ErrUnavailable = errors.New("refresh store unavailable")
)

// Hash is the SHA-256 digest of a raw refresh token.
type Hash [32]byte

// HashToken digests a raw refresh token. Stores only ever see the digest.
func HashToken(raw string) Hash {
	return sha256.Sum256([]byte(raw))
}

// String returns the lowercase hex form used in keys and logs.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Record is one issued refresh token.
type Record struct {
	ID         string
	UserID     string
	TokenHash  Hash
	IssuedAt   time.Time
	ExpiresAt  time.Time
	RevokedAt  *time.Time
	ReplacedBy string
	Generation uint64
}

// Revoked reports whether the record has been revoked for any reason.
func (r *Record) Revoked() bool {
	return r.RevokedAt != nil
}

// Rotated reports whether the record was superseded through rotation.
func (r *Record) Rotated() bool {
	return r.ReplacedBy != ""
}

// ActiveAt reports whether the record is usable at now, given the owner's
// current generation.
func (r *Record) ActiveAt(now time.Time, generation uint64) bool {
	return r.RevokedAt == nil && now.Before(r.ExpiresAt) && r.Generation >= generation
}

// Status classifies an inactive record with one of the package sentinels.
// It returns nil for an active record.
func (r *Record) Status(now time.Time, generation uint64) error {
	switch {
	case r.Rotated():
		return ErrReused
	case r.Revoked(), r.Generation < generation:
		return ErrRevoked
	case !now.Before(r.ExpiresAt):
		return ErrExpired
	default:
		return nil
	}
}

// RotateRequest describes one rotation: the presented token's hash and the
// replacement record to create. UserID is the owner named by the token; when
// set, a record held by anyone else is reported as ErrNotFound. Sharded
// backends route on it.
type RotateRequest struct {
	UserID    string
	OldHash   Hash
	NewID     string
	NewHash   Hash
	IssuedAt  time.Time
	ExpiresAt time.Time
	Now       time.Time
}

// Store is the refresh-token record contract. Every mutation is atomic at
// the record level; Rotate and RevokeAllForUser are linearizable with
// respect to each other.
type Store interface {
	// Create persists a new active record at the user's current generation.
	Create(ctx context.Context, userID string, tokenHash Hash, issuedAt, expiresAt time.Time) (string, error)
	// FindActive returns the record only if it is active at now.
	FindActive(ctx context.Context, tokenHash Hash, now time.Time) (*Record, error)
	// FindByHash returns the record in any state.
	FindByHash(ctx context.Context, tokenHash Hash) (*Record, error)
	// Revoke marks one record revoked. Revoking twice is not an error.
	Revoke(ctx context.Context, recordID string, now time.Time) error
	// RevokeAllForUser bumps the user's generation and revokes every active
	// record, returning how many records it revoked.
	RevokeAllForUser(ctx context.Context, userID string, now time.Time) (int, error)
	// LinkReplacement records that newID superseded oldID.
	LinkReplacement(ctx context.Context, oldID, newID string) error
	// Rotate revokes the active record matching req.OldHash, creates the
	// replacement and links them in one atomic step. It returns the old
	// record, or ErrNotFound, ErrExpired, ErrRevoked, ErrReused. With
	// ErrReused and ErrRevoked the old record is returned as well so the
	// caller can act on its owner.
	Rotate(ctx context.Context, req RotateRequest) (*Record, error)
	// ListActive returns the user's active records, newest first.
	ListActive(ctx context.Context, userID string, now time.Time) ([]Record, error)
	// Ping checks backend availability.
	Ping(ctx context.Context) error
}
