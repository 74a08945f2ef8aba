package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DefaultClaimsTable matches the hosted table name.
const DefaultClaimsTable = "email_submissions"

// Execer is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// EnsureSchema creates the claims table (named table) and the idempotency table when
// they do not exist yet.
func EnsureSchema(ctx context.Context, db Execer, table string) error {
	if table == "" {
		table = DefaultClaimsTable
	}
	ident := pgx.Identifier{table}.Sanitize()
	index := pgx.Identifier{table + "_created_at_idx"}.Sanitize()

	stmts := []string{
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
				organization text NOT NULL UNIQUE,
				email text NOT NULL,
				created_at timestamptz NOT NULL DEFAULT now()
			)`, ident),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (created_at DESC)`, index, ident),
		`
			CREATE TABLE IF NOT EXISTS idempotency_keys (
				idempotency_key text NOT NULL,
				client text NOT NULL,
				method text NOT NULL,
				route text NOT NULL,
				body_hash text NOT NULL,
				status_code integer NOT NULL,
				content_type text NOT NULL,
				body bytea NOT NULL,
				created_at timestamptz NOT NULL,
				PRIMARY KEY (idempotency_key, client, method, route, body_hash)
			)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: ensure schema: %w", err)
		}
	}
	return nil
}
