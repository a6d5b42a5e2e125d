package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/parkwatch/internal/issueservice"
)

// NewRouter creates a chi router with all API routes mounted behind auth.
// sseHandler, if non-nil, is mounted at GET /events.
func NewRouter(svc *issueservice.Service, auth AuthPolicy, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(auth))

	r.Get("/status", h.Status)

	r.Get("/issues", h.ListIssues)
	r.Post("/issues", h.SubmitIssue)
	r.Get("/issues/stats", h.Stats)
	r.Get("/issues/{id}", h.GetIssue)
	r.Get("/issues/{id}/payload", h.GetPayload)
	r.Post("/issues/{id}/votes", h.Vote)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
