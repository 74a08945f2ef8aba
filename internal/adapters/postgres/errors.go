package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// AsPgError unwraps err to the server error reported by Postgres, if any.
func AsPgError(err error) (*pgconn.PgError, bool) {
	var pe *pgconn.PgError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
