package events

import (
	"context"
	"time"

	"github.com/kominfo-unma/canva-claim-api/internal/domain"
)

type Type string

const (
	TypeClaimSubmitted Type = "claim.submitted"
	TypeClaimDeleted   Type = "claim.deleted"
)

// ClaimEvent notifies downstream consumers (e.g. the campaign operators' invite queue)
// that the claims table changed.
type ClaimEvent struct {
	Type         Type           `json:"type"`
	ClaimID      domain.ClaimID `json:"claimId,omitempty"`
	Organization string         `json:"organization,omitempty"`
	Email        string         `json:"email,omitempty"`
	OccurredAt   time.Time      `json:"occurredAt"`
}

// Publisher delivers claim events. Delivery is best-effort; callers do not fail the
// originating operation when publishing fails.
type Publisher interface {
	Publish(ctx context.Context, e ClaimEvent) error
}
