package claimrepo

import (
	"context"
	"regexp"

	"github.com/kominfo-unma/canva-claim-api/internal/domain"
)

// NewClaim is the insert shape. Identifier and creation time are assigned by the store.
type NewClaim struct {
	Organization string
	Email        string
}

// Repository is the remote claims table.
//
// Result ordering expectations:
// - List returns claims ordered by CreatedAt descending (newest first).
//
// Delete of an id that matches no row is not an error: the hosted store deletes by filter
// and cannot distinguish the two cases.
type Repository interface {
	Insert(ctx context.Context, c NewClaim) error
	List(ctx context.Context) ([]domain.Claim, error)
	Delete(ctx context.Context, id domain.ClaimID) error
}

// UniqueViolationCode is the SQLSTATE for unique_violation, surfaced by both the direct
// Postgres driver and the hosted REST layer.
const UniqueViolationCode = "23505"

var duplicateMessage = regexp.MustCompile(`(?i)duplicate|unique`)

// IsDuplicate reports whether a store error (code + message) describes a uniqueness
// violation. Stores are inconsistent about codes, so the message is checked as well.
func IsDuplicate(code, message string) bool {
	return code == UniqueViolationCode || duplicateMessage.MatchString(message)
}
