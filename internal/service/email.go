package service

import (
	"strings"

	"github.com/noah-isme/course-eval-api/pkg/config"
)

// CleanEmail trims and lowercases email, then rewrites the first matching alias domain suffix
// onto its canonical domain.
func CleanEmail(email string, replacements []config.EmailReplacement) string {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return email
	}
	for _, r := range replacements {
		if strings.HasSuffix(email, r.From) {
			return strings.TrimSuffix(email, r.From) + r.To
		}
	}
	return email
}
