package domain

// ClaimID is the store-assigned identifier of a claim record.
// Its format depends on the store (UUID, bigint rendered as text, ...).
type ClaimID string
