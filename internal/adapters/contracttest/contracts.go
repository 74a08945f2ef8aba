package contracttest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kominfo-unma/canva-claim-api/internal/domain"
	claimrepoport "github.com/kominfo-unma/canva-claim-api/internal/ports/out/claimrepo"
	idempotencyport "github.com/kominfo-unma/canva-claim-api/internal/ports/out/idempotency"
)

type CleanupFunc = func()

type ClaimRepoFactory func(t *testing.T) (claimrepoport.Repository, CleanupFunc)
type IdemStoreFactory func(t *testing.T) (idempotencyport.Store, CleanupFunc)

func RunIdempotencyStore(t *testing.T, newStore IdemStoreFactory) {
	t.Helper()
	ctx := context.Background()

	store, cleanup := newStore(t)
	if cleanup != nil {
		t.Cleanup(cleanup)
	}

	fp := idempotencyport.Fingerprint{
		Key:      "k-1",
		Client:   "192.0.2.10",
		Method:   "POST",
		Route:    "/api/claims",
		BodyHash: "",
	}
	if _, ok, err := store.Get(ctx, fp); err != nil || ok {
		t.Fatalf("Get on empty store: ok=%v err=%v", ok, err)
	}

	rec := idempotencyport.Record{
		StatusCode:  0,
		ContentType: "text/plain",
		Body:        []byte("hash-abc"),
		CreatedAt:   time.Unix(123, 0).UTC(),
	}
	if err := store.Put(ctx, fp, rec); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, ok, err := store.Get(ctx, fp)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatalf("expected ok=true")
	}
	if string(got.Body) != "hash-abc" || got.ContentType != "text/plain" || got.StatusCode != 0 {
		t.Fatalf("unexpected record: %+v", got)
	}

	// Overwrite semantics.
	rec2 := rec
	rec2.Body = []byte("hash-def")
	if err := store.Put(ctx, fp, rec2); err != nil {
		t.Fatalf("Put overwrite: %v", err)
	}
	got, ok, err = store.Get(ctx, fp)
	if err != nil || !ok || string(got.Body) != "hash-def" {
		t.Fatalf("expected overwritten record, got ok=%v err=%v body=%q", ok, err, string(got.Body))
	}
}

// RunClaimRepo exercises the behavior every claims store must share: exact-match
// organization uniqueness, newest-first listing and lenient delete.
func RunClaimRepo(t *testing.T, newRepo ClaimRepoFactory) {
	t.Helper()
	ctx := context.Background()

	repo, cleanup := newRepo(t)
	if cleanup != nil {
		t.Cleanup(cleanup)
	}

	rows, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List empty: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected empty store, got %d rows", len(rows))
	}

	for _, c := range []claimrepoport.NewClaim{
		{Organization: "Divisi A", Email: "a@example.com"},
		{Organization: "Divisi B", Email: "b@example.com"},
		{Organization: "Divisi C", Email: "c@example.com"},
	} {
		if err := repo.Insert(ctx, c); err != nil {
			t.Fatalf("Insert %q: %v", c.Organization, err)
		}
		// Distinct creation timestamps for stores that use the wall clock.
		time.Sleep(5 * time.Millisecond)
	}

	// Organization uniqueness.
	err = repo.Insert(ctx, claimrepoport.NewClaim{Organization: "Divisi A", Email: "other@example.com"})
	if !errors.Is(err, claimrepoport.ErrOrganizationClaimed) {
		t.Fatalf("duplicate insert err=%v, want ErrOrganizationClaimed", err)
	}

	rows, err = repo.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("List len=%d want 3", len(rows))
	}
	wantOrder := []string{"Divisi C", "Divisi B", "Divisi A"}
	for i, want := range wantOrder {
		if rows[i].Organization != want {
			t.Fatalf("List[%d].Organization=%q want %q (rows=%+v)", i, rows[i].Organization, want, rows)
		}
		if rows[i].ID == "" {
			t.Fatalf("List[%d] missing id", i)
		}
		if rows[i].CreatedAt == nil {
			t.Fatalf("List[%d] missing createdAt", i)
		}
	}
	if rows[2].Email != "a@example.com" {
		t.Fatalf("email=%q", rows[2].Email)
	}

	// Delete exactly one row.
	if err := repo.Delete(ctx, rows[1].ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	after, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List after delete: %v", err)
	}
	if len(after) != 2 || after[0].ID != rows[0].ID || after[1].ID != rows[2].ID {
		t.Fatalf("after delete=%+v", after)
	}

	// Deleting again is not an error.
	if err := repo.Delete(ctx, rows[1].ID); err != nil {
		t.Fatalf("Delete missing row: %v", err)
	}

	if err := repo.Delete(ctx, domain.ClaimID("")); !errors.Is(err, claimrepoport.ErrInvalidID) {
		t.Fatalf("Delete empty id err=%v, want ErrInvalidID", err)
	}
}
