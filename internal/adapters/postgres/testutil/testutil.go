// Package testutil opens a Postgres pool for adapter tests. Tests are skipped unless
// TEST_DATABASE_URL is set.
package testutil

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	postgres "github.com/kominfo-unma/canva-claim-api/internal/adapters/postgres"
)

const EnvDatabaseURL = "TEST_DATABASE_URL"

// OpenMigratedPool connects to TEST_DATABASE_URL and ensures the schema for a claims
// table unique to this test. It returns the pool and the table name; the table is dropped
// when the test ends.
func OpenMigratedPool(t *testing.T) (*pgxpool.Pool, string) {
	t.Helper()

	url := strings.TrimSpace(os.Getenv(EnvDatabaseURL))
	if url == "" {
		t.Skipf("%s not set; skipping postgres tests", EnvDatabaseURL)
	}

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, postgres.PoolOptions{URL: url, MaxConns: 4})
	if err != nil {
		t.Fatalf("open pool: %v", err)
	}

	table := "claims_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if err := postgres.EnsureSchema(ctx, pool, table); err != nil {
		pool.Close()
		t.Fatalf("ensure schema: %v", err)
	}

	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), fmt.Sprintf("DROP TABLE IF EXISTS %s", pgx.Identifier{table}.Sanitize()))
		pool.Close()
	})
	return pool, table
}
