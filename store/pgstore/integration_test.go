//go:build integration

package pgstore

import (
	"context"
	"os"
	"testing"

	"github.com/MrEthical07/goSession/store"
	"github.com/MrEthical07/goSession/store/storetest"
)

// TestRealPostgresSuite runs the store suite against DATABASE_URL. Tables
// are truncated between subtests.
func TestRealPostgresSuite(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}

	ctx := context.Background()
	db, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := RunMigrations(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	storetest.Run(t, func(t *testing.T) store.Store {
		if _, err := db.ExecContext(ctx, `TRUNCATE refresh_tokens, refresh_token_generations`); err != nil {
			t.Fatalf("truncate: %v", err)
		}
		return New(db)
	})
}
