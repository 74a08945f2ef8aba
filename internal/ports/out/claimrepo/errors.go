package claimrepo

import "errors"

var (
	// ErrOrganizationClaimed indicates the store rejected an insert because the organization
	// already has a claim (unique constraint violation).
	ErrOrganizationClaimed = errors.New("organization already claimed")

	// ErrInvalidID indicates the provided claim id is not in a format the store accepts.
	ErrInvalidID = errors.New("invalid claim id")
)
