package claimrepo

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/kominfo-unma/canva-claim-api/internal/domain"
	"github.com/kominfo-unma/canva-claim-api/internal/ports/out/claimrepo"
	clockport "github.com/kominfo-unma/canva-claim-api/internal/ports/out/clock"
)

// Repo is an in-memory implementation of claimrepo.Repository.
// It is safe for concurrent use.
type Repo struct {
	mu  sync.RWMutex
	clk clockport.Clock

	byID  map[domain.ClaimID]domain.Claim
	byOrg map[string]domain.ClaimID

	// seq breaks CreatedAt ties so ordering stays deterministic under a frozen clock.
	seq   int64
	order map[domain.ClaimID]int64
}

func NewRepo(clk clockport.Clock) *Repo {
	return &Repo{
		clk:   clk,
		byID:  make(map[domain.ClaimID]domain.Claim),
		byOrg: make(map[string]domain.ClaimID),
		order: make(map[domain.ClaimID]int64),
	}
}

func (r *Repo) Insert(ctx context.Context, c claimrepo.NewClaim) error {
	_ = ctx
	if c.Organization == "" || c.Email == "" {
		return errors.New("organization and email are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	// Exact match, like the table's unique constraint.
	if _, ok := r.byOrg[c.Organization]; ok {
		return claimrepo.ErrOrganizationClaimed
	}

	now := r.clk.Now().UTC()
	id := domain.ClaimID(uuid.NewString())
	r.byID[id] = domain.Claim{
		ID:           id,
		Organization: c.Organization,
		Email:        c.Email,
		CreatedAt:    &now,
	}
	r.byOrg[c.Organization] = id
	r.seq++
	r.order[id] = r.seq
	return nil
}

func (r *Repo) List(ctx context.Context) ([]domain.Claim, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Claim, 0, len(r.byID))
	for _, c := range r.byID {
		out = append(out, cloneClaim(c))
	}
	sort.Slice(out, func(i, j int) bool {
		ti, tj := *out[i].CreatedAt, *out[j].CreatedAt
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return r.order[out[i].ID] > r.order[out[j].ID]
	})
	return out, nil
}

func (r *Repo) Delete(ctx context.Context, id domain.ClaimID) error {
	_ = ctx
	if strings.TrimSpace(string(id)) == "" {
		return claimrepo.ErrInvalidID
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.byID[id]
	if !ok {
		return nil
	}
	delete(r.byID, id)
	delete(r.byOrg, c.Organization)
	delete(r.order, id)
	return nil
}

func cloneClaim(c domain.Claim) domain.Claim {
	out := c
	if c.CreatedAt != nil {
		t := *c.CreatedAt
		out.CreatedAt = &t
	}
	return out
}
