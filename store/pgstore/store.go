// Package pgstore implements store.Store on PostgreSQL through database/sql
// and the pgx driver.
//
// Rotation locks the owner's generation row FOR SHARE before locking the
// token row FOR UPDATE. Revoke-all takes the generation row exclusively
// before touching token rows. Both paths acquire locks in the same order.
package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goSession/store"
	"github.com/MrEthical07/goSession/store/pgstore/migrations"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

const uniqueViolation = "23505"

// Store is a PostgreSQL-backed refresh-token store.
type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// New wraps an open database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open connects with the pgx driver and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return db, nil
}

// gooseUpContext is a seam for tests.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations applies the embedded schema migrations.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	if err := gooseUpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	return nil
}

const recordColumns = `t.id, t.user_id, t.token_hash, t.issued_at, t.expires_at, t.revoked_at, t.replaced_by, t.generation`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*store.Record, error) {
	var (
		rec        store.Record
		hash       []byte
		revokedAt  sql.NullTime
		replacedBy sql.NullString
		generation int64
	)
	if err := row.Scan(&rec.ID, &rec.UserID, &hash, &rec.IssuedAt, &rec.ExpiresAt, &revokedAt, &replacedBy, &generation); err != nil {
		return nil, err
	}
	if len(hash) != len(rec.TokenHash) {
		return nil, fmt.Errorf("refresh record %s: bad token hash length %d", rec.ID, len(hash))
	}
	copy(rec.TokenHash[:], hash)
	if revokedAt.Valid {
		at := revokedAt.Time
		rec.RevokedAt = &at
	}
	rec.ReplacedBy = replacedBy.String
	rec.Generation = uint64(generation)
	return &rec, nil
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// Create inserts a record at the owner's current generation.
func (s *Store) Create(ctx context.Context, userID string, tokenHash store.Hash, issuedAt, expiresAt time.Time) (string, error) {
	query :=
		`INSERT INTO refresh_tokens (id, user_id, token_hash, issued_at, expires_at, generation)
		 VALUES ($1, $2, $3, $4, $5,
		         COALESCE((SELECT generation FROM refresh_token_generations WHERE user_id = $2), 0))
		 `

	id := uuid.NewString()
	if _, err := s.db.ExecContext(ctx, query, id, userID, tokenHash[:], issuedAt, expiresAt); err != nil {
		if isUniqueViolation(err) {
			return "", store.ErrDuplicate
		}
		return "", unavailable(err)
	}
	return id, nil
}

// FindActive filters on revocation, expiry and generation in SQL.
func (s *Store) FindActive(ctx context.Context, tokenHash store.Hash, now time.Time) (*store.Record, error) {
	query :=
		`SELECT ` + recordColumns + `
		 FROM refresh_tokens t
		 LEFT JOIN refresh_token_generations g ON g.user_id = t.user_id
		 WHERE t.token_hash = $1
		   AND t.revoked_at IS NULL
		   AND t.expires_at > $2
		   AND t.generation >= COALESCE(g.generation, 0)
		 `

	rec, err := scanRecord(s.db.QueryRowContext(ctx, query, tokenHash[:], now))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, unavailable(err)
	}
	return rec, nil
}

// FindByHash returns the record in any state.
func (s *Store) FindByHash(ctx context.Context, tokenHash store.Hash) (*store.Record, error) {
	query :=
		`SELECT ` + recordColumns + `
		 FROM refresh_tokens t
		 WHERE t.token_hash = $1
		 `

	rec, err := scanRecord(s.db.QueryRowContext(ctx, query, tokenHash[:]))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, unavailable(err)
	}
	return rec, nil
}

// Revoke keeps the first revocation time.
func (s *Store) Revoke(ctx context.Context, recordID string, now time.Time) error {
	query :=
		`UPDATE refresh_tokens SET revoked_at = COALESCE(revoked_at, $2)
		 WHERE id = $1
		 `

	res, err := s.db.ExecContext(ctx, query, recordID, now)
	if err != nil {
		return unavailable(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable(err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// RevokeAllForUser bumps the generation row (taking its lock) and revokes
// the user's unrevoked records in the same transaction.
func (s *Store) RevokeAllForUser(ctx context.Context, userID string, now time.Time) (int, error) {
	bump :=
		`INSERT INTO refresh_token_generations (user_id, generation)
		 VALUES ($1, 1)
		 ON CONFLICT (user_id) DO UPDATE SET generation = refresh_token_generations.generation + 1
		 RETURNING generation
		 `
	revoke :=
		`UPDATE refresh_tokens SET revoked_at = $2
		 WHERE user_id = $1 AND revoked_at IS NULL
		 `

	var revoked int64
	err := withTx(ctx, s.db, func(ctx context.Context, tx DBTX) error {
		var generation int64
		if err := tx.QueryRowContext(ctx, bump, userID).Scan(&generation); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, revoke, userID, now)
		if err != nil {
			return err
		}
		revoked, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, unavailable(err)
	}
	return int(revoked), nil
}

// LinkReplacement sets replaced_by when both records exist.
func (s *Store) LinkReplacement(ctx context.Context, oldID, newID string) error {
	query :=
		`UPDATE refresh_tokens SET replaced_by = $2
		 WHERE id = $1 AND EXISTS (SELECT 1 FROM refresh_tokens WHERE id = $2)
		 `

	res, err := s.db.ExecContext(ctx, query, oldID, newID)
	if err != nil {
		return unavailable(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable(err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Rotate performs the compare-and-set rotation in one transaction.
func (s *Store) Rotate(ctx context.Context, req store.RotateRequest) (*store.Record, error) {
	owner :=
		`SELECT user_id FROM refresh_tokens WHERE token_hash = $1`
	ensureGeneration :=
		`INSERT INTO refresh_token_generations (user_id, generation)
		 VALUES ($1, 0)
		 ON CONFLICT (user_id) DO NOTHING
		 `
	lockGeneration :=
		`SELECT generation FROM refresh_token_generations WHERE user_id = $1 FOR SHARE`
	lockToken :=
		`SELECT ` + recordColumns + `
		 FROM refresh_tokens t
		 WHERE t.token_hash = $1
		 FOR UPDATE
		 `
	insert :=
		`INSERT INTO refresh_tokens (id, user_id, token_hash, issued_at, expires_at, generation)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 `
	retire :=
		`UPDATE refresh_tokens SET revoked_at = $2, replaced_by = $3
		 WHERE id = $1
		 `

	var (
		old       *store.Record
		statusErr error
	)
	err := withTx(ctx, s.db, func(ctx context.Context, tx DBTX) error {
		var userID string
		if err := tx.QueryRowContext(ctx, owner, req.OldHash[:]).Scan(&userID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return store.ErrNotFound
			}
			return err
		}
		if req.UserID != "" && userID != req.UserID {
			return store.ErrNotFound
		}
		if _, err := tx.ExecContext(ctx, ensureGeneration, userID); err != nil {
			return err
		}
		var generation int64
		if err := tx.QueryRowContext(ctx, lockGeneration, userID).Scan(&generation); err != nil {
			return err
		}

		rec, err := scanRecord(tx.QueryRowContext(ctx, lockToken, req.OldHash[:]))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return store.ErrNotFound
			}
			return err
		}
		if err := rec.Status(req.Now, uint64(generation)); err != nil {
			old, statusErr = rec, err
			return err
		}

		if _, err := tx.ExecContext(ctx, insert,
			req.NewID, rec.UserID, req.NewHash[:], req.IssuedAt, req.ExpiresAt, generation); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, retire, rec.ID, req.Now, req.NewID); err != nil {
			return err
		}

		at := req.Now
		rec.RevokedAt = &at
		rec.ReplacedBy = req.NewID
		old = rec
		return nil
	})

	switch {
	case err == nil:
		return old, nil
	case statusErr != nil:
		return old, statusErr
	case errors.Is(err, store.ErrNotFound):
		return nil, store.ErrNotFound
	case isUniqueViolation(err):
		return nil, store.ErrDuplicate
	default:
		return nil, unavailable(err)
	}
}

// ListActive returns the user's active records, newest first.
func (s *Store) ListActive(ctx context.Context, userID string, now time.Time) ([]store.Record, error) {
	query :=
		`SELECT ` + recordColumns + `
		 FROM refresh_tokens t
		 LEFT JOIN refresh_token_generations g ON g.user_id = t.user_id
		 WHERE t.user_id = $1
		   AND t.revoked_at IS NULL
		   AND t.expires_at > $2
		   AND t.generation >= COALESCE(g.generation, 0)
		 ORDER BY t.issued_at DESC
		 `

	rows, err := s.db.QueryContext(ctx, query, userID, now)
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	out := []store.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, unavailable(err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err)
	}
	return out, nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return unavailable(err)
	}
	return nil
}
