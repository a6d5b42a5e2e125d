package api

import (
	"github.com/starford/parkwatch/internal/codec"
	"github.com/starford/parkwatch/internal/models"
)

// SubmitIssueRequest is the request body for reporting an issue.
type SubmitIssueRequest struct {
	Category string        `json:"category" example:"Safety" validate:"required"`
	Payload  codec.Payload `json:"payload" validate:"required"`
}

// SubmitIssueResponse carries the id of the new issue.
type SubmitIssueResponse struct {
	ID string `json:"id" example:"1700000000000-3f9a1c2b7d" validate:"required"`
}

// Issue is the public issue representation (aliased from the domain layer).
type Issue = models.Issue

// IssueListResponse wraps a listing. Stats counts the whole ledger, not just
// the filtered page.
type IssueListResponse struct {
	Issues []Issue             `json:"issues" validate:"required"`
	Total  int                 `json:"total" example:"42" validate:"required"`
	Stats  models.StatusCounts `json:"stats" validate:"required"`
}

// StatsResponse is the per-status tally.
type StatsResponse struct {
	models.StatusCounts
	Total int `json:"total" example:"42"`
}

// StatusResponse reports ledger availability.
type StatusResponse struct {
	Available bool `json:"available"`
}
