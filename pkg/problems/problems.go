package problems

import (
	"os"
	"strings"
)

// Base returns the base URL for problem type identifiers.
// Order of precedence:
// 1. PROBLEM_BASE_URL (exact base, e.g. https://gomsle.com/problems)
// 2. OIDC_ISSUER + "/problems" (if set)
// 3. https://gomsle.com/problems (fallback)
func Base() string {
	if b := os.Getenv("PROBLEM_BASE_URL"); b != "" {
		return strings.TrimRight(b, "/")
	}
	if b := os.Getenv("OIDC_ISSUER"); b != "" {
		return strings.TrimRight(b, "/") + "/problems"
	}
	return "https://gomsle.com/problems"
}

// Type builds a full problem type URL for the given slug.
func Type(slug string) string { return Base() + "/" + slug }
