package config

import "strings"

// NormalizePath canonicalizes a route path: trimmed, a leading slash, no trailing slash
// (except for the root). An empty path is the root.
func NormalizePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimSuffix(p, "/")
	}
	return p
}

// View names the screen that serves a path.
type View string

const (
	ViewClaim View = "claim"
	ViewAdmin View = "admin"
)

// ViewFor returns ViewAdmin iff the normalized path equals the normalized admin path.
func ViewFor(path, adminPath string) View {
	if NormalizePath(path) == NormalizePath(adminPath) {
		return ViewAdmin
	}
	return ViewClaim
}
