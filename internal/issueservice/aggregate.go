package issueservice

import (
	"strings"

	"github.com/starford/parkwatch/internal/models"
)

// AggregateByStatus counts issues per status.
func AggregateByStatus(issues []models.Issue) models.StatusCounts {
	var c models.StatusCounts
	for _, is := range issues {
		switch is.Status {
		case models.StatusPending:
			c.Pending++
		case models.StatusApproved:
			c.Approved++
		case models.StatusRejected:
			c.Rejected++
		}
	}
	return c
}

// Filter keeps issues whose category or ciphertext contains term,
// case-insensitively. The ciphertext match is what the web client did; it
// only finds anything for codecs that leave structure visible.
func Filter(issues []models.Issue, term string) []models.Issue {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return issues
	}
	out := make([]models.Issue, 0, len(issues))
	for _, is := range issues {
		if strings.Contains(strings.ToLower(is.Category), term) ||
			strings.Contains(strings.ToLower(is.Data), term) {
			out = append(out, is)
		}
	}
	return out
}
