package claims

import (
	"strings"

	"github.com/kominfo-unma/canva-claim-api/internal/domain"
)

// Filter keeps rows whose organization or email contains query, case-insensitively.
// An empty (or whitespace-only) query returns rows unchanged. Order is preserved.
func Filter(rows []domain.Claim, query string) []domain.Claim {
	term := strings.ToLower(strings.TrimSpace(query))
	if term == "" {
		return rows
	}
	out := make([]domain.Claim, 0, len(rows))
	for _, r := range rows {
		if strings.Contains(strings.ToLower(r.Organization), term) || strings.Contains(strings.ToLower(r.Email), term) {
			out = append(out, r)
		}
	}
	return out
}

// Stats are the dashboard counters.
type Stats struct {
	Total         int
	Organizations int
}

// ComputeStats counts rows and distinct non-empty organizations.
func ComputeStats(rows []domain.Claim) Stats {
	orgs := make(map[string]struct{}, len(rows))
	for _, r := range rows {
		if r.Organization != "" {
			orgs[r.Organization] = struct{}{}
		}
	}
	return Stats{Total: len(rows), Organizations: len(orgs)}
}
