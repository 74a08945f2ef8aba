package domain

import "strings"

// NormalizeOrganization trims leading/trailing whitespace. Case is preserved: the store's
// uniqueness constraint is an exact match.
func NormalizeOrganization(s string) string {
	return strings.TrimSpace(s)
}

// NormalizeEmail trims and lower-cases an email address before storage.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// OrganizationKey is the comparison key used to decide whether an organization is still
// available: trimmed and case-insensitive.
func OrganizationKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
