package claimrepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	postgres "github.com/kominfo-unma/canva-claim-api/internal/adapters/postgres"
	"github.com/kominfo-unma/canva-claim-api/internal/domain"
	"github.com/kominfo-unma/canva-claim-api/internal/ports/out/claimrepo"
)

// Repo is a Postgres implementation of claimrepo.Repository over a single table.
type Repo struct {
	pool  *pgxpool.Pool
	table string
}

func NewRepo(pool *pgxpool.Pool, table string) *Repo {
	if table == "" {
		table = postgres.DefaultClaimsTable
	}
	return &Repo{pool: pool, table: pgx.Identifier{table}.Sanitize()}
}

func (r *Repo) Insert(ctx context.Context, c claimrepo.NewClaim) error {
	if r.pool == nil {
		return errors.New("nil postgres pool")
	}
	_, err := r.pool.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s (organization, email) VALUES ($1, $2)`, r.table),
		c.Organization,
		c.Email,
	)
	if err != nil {
		if pe, ok := postgres.AsPgError(err); ok && claimrepo.IsDuplicate(pe.Code, pe.Message) {
			return fmt.Errorf("%w: %s", claimrepo.ErrOrganizationClaimed, pe.ConstraintName)
		}
		return err
	}
	return nil
}

func (r *Repo) List(ctx context.Context) ([]domain.Claim, error) {
	if r.pool == nil {
		return nil, errors.New("nil postgres pool")
	}
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`
		SELECT id::text, organization, email, created_at
		FROM %s
		ORDER BY created_at DESC, id
	`, r.table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Claim{}
	for rows.Next() {
		var (
			id        string
			c         domain.Claim
			createdAt time.Time
		)
		if err := rows.Scan(&id, &c.Organization, &c.Email, &createdAt); err != nil {
			return nil, err
		}
		c.ID = domain.ClaimID(id)
		createdAt = createdAt.UTC()
		c.CreatedAt = &createdAt
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repo) Delete(ctx context.Context, id domain.ClaimID) error {
	if r.pool == nil {
		return errors.New("nil postgres pool")
	}
	parsed, err := uuid.Parse(string(id))
	if err != nil {
		return fmt.Errorf("%w: %v", claimrepo.ErrInvalidID, err)
	}
	_, err = r.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, r.table), parsed)
	return err
}
