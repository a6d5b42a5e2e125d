package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/parkwatch/internal/checksum"
	"github.com/starford/parkwatch/internal/issueservice"
)

// maxBodyBytes bounds request bodies; issue payloads are short free text.
const maxBodyBytes = 64 << 10

// Handler holds API route handlers.
type Handler struct {
	svc *issueservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *issueservice.Service) *Handler {
	return &Handler{svc: svc}
}

// ListIssues handles GET /issues.
//
//	@Summary		List issues newest first
//	@Tags			issues
//	@Produce		json
//	@Param			q	query		string	false	"Case-insensitive match on category or stored data"
//	@Success		200	{object}	IssueListResponse
//	@Failure		503	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/issues [get]
func (h *Handler) ListIssues(w http.ResponseWriter, r *http.Request) {
	all, err := h.svc.ListSorted(r.Context())
	if err != nil {
		writeError(w, "list issues", err)
		return
	}
	items := issueservice.Filter(all, r.URL.Query().Get("q"))
	writeJSON(w, http.StatusOK, IssueListResponse{
		Issues: items,
		Total:  len(items),
		Stats:  issueservice.AggregateByStatus(all),
	})
}

// Stats handles GET /issues/stats.
//
//	@Summary		Count issues per status
//	@Tags			issues
//	@Produce		json
//	@Success		200	{object}	StatsResponse
//	@Security		BearerAuth
//	@Router			/issues/stats [get]
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	all, err := h.svc.ListSorted(r.Context())
	if err != nil {
		writeError(w, "issue stats", err)
		return
	}
	counts := issueservice.AggregateByStatus(all)
	writeJSON(w, http.StatusOK, StatsResponse{StatusCounts: counts, Total: counts.Total()})
}

// GetIssue handles GET /issues/{id}. The response carries an ETag so pollers
// can revalidate with If-None-Match.
//
//	@Summary		Get a single issue
//	@Tags			issues
//	@Produce		json
//	@Param			id	path		string	true	"Issue id"
//	@Success		200	{object}	Issue
//	@Success		304
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/issues/{id} [get]
func (h *Handler) GetIssue(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	issue, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, "get issue", err, slog.String("id", id))
		return
	}
	body, err := json.Marshal(issue)
	if err != nil {
		writeError(w, "get issue", err, slog.String("id", id))
		return
	}
	etag := checksum.ETag(body)
	w.Header().Set("ETag", etag)
	if match := r.Header.Get("If-None-Match"); match != "" && match == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(append(body, '\n'))
}

// GetPayload handles GET /issues/{id}/payload.
//
//	@Summary		Decode the private payload of an issue
//	@Tags			issues
//	@Produce		json
//	@Param			id	path		string	true	"Issue id"
//	@Success		200	{object}	map[string]string
//	@Failure		404	{object}	errResponse
//	@Failure		501	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/issues/{id}/payload [get]
func (h *Handler) GetPayload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	payload, err := h.svc.Reveal(r.Context(), id)
	if err != nil {
		writeError(w, "reveal payload", err, slog.String("id", id))
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

// SubmitIssue handles POST /issues.
//
//	@Summary		Report a new issue
//	@Tags			issues
//	@Accept			json
//	@Produce		json
//	@Param			body	body		SubmitIssueRequest	true	"Issue"
//	@Success		201		{object}	SubmitIssueResponse
//	@Failure		400		{object}	errResponse
//	@Failure		503		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/issues [post]
func (h *Handler) SubmitIssue(w http.ResponseWriter, r *http.Request) {
	var req SubmitIssueRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON: "+err.Error()))
		return
	}
	id, err := h.svc.Submit(r.Context(), strings.TrimSpace(req.Category), req.Payload)
	if err != nil {
		writeError(w, "submit issue", err, slog.String("category", req.Category))
		return
	}
	w.Header().Set("Location", "/issues/"+id)
	writeJSON(w, http.StatusCreated, SubmitIssueResponse{ID: id})
}

// Vote handles POST /issues/{id}/votes.
//
//	@Summary		Add one vote to an issue
//	@Tags			issues
//	@Param			id	path	string	true	"Issue id"
//	@Success		204
//	@Failure		404	{object}	errResponse
//	@Failure		409	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/issues/{id}/votes [post]
func (h *Handler) Vote(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.svc.Vote(r.Context(), id); err != nil {
		writeError(w, "vote issue", err, slog.String("id", id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Status handles GET /status.
//
//	@Summary		Ledger availability
//	@Tags			system
//	@Produce		json
//	@Success		200	{object}	StatusResponse
//	@Router			/status [get]
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{Available: h.svc.Available(r.Context())})
}
