package domain

import "time"

// Claim is one organization's single permitted submission.
type Claim struct {
	ID           ClaimID
	Organization string
	Email        string

	// CreatedAt is assigned by the store; nil when the store did not return it.
	CreatedAt *time.Time
}
