// Package models defines the domain types for parkwatch.
package models

// Status is the moderation state of an issue.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Well-known categories. Category stays an open string; these are the ones
// offered by the report form.
const (
	CategoryFacility    = "Facility"
	CategorySafety      = "Safety"
	CategoryMaintenance = "Maintenance"
	CategoryImprovement = "Improvement"
	CategoryOther       = "Other"
)

// Categories lists the well-known categories in display order.
var Categories = []string{
	CategoryFacility,
	CategorySafety,
	CategoryMaintenance,
	CategoryImprovement,
	CategoryOther,
}

// Issue is one persisted report.
type Issue struct {
	ID        string `json:"id"`
	Data      string `json:"data"`
	Category  string `json:"category"`
	Timestamp int64  `json:"timestamp"`
	Votes     int    `json:"votes"`
	Status    Status `json:"status"`
}

// StatusCounts is the per-status tally of a set of issues.
type StatusCounts struct {
	Pending  int `json:"pending"`
	Approved int `json:"approved"`
	Rejected int `json:"rejected"`
}

// Total returns the number of counted issues.
func (c StatusCounts) Total() int {
	return c.Pending + c.Approved + c.Rejected
}
