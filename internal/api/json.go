package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/starford/parkwatch/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error string `json:"error" validate:"required"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// writeError maps the apperr taxonomy onto HTTP statuses. Unclassified errors
// are logged and reported as internal.
func writeError(w http.ResponseWriter, op string, err error, attrs ...slog.Attr) {
	switch {
	case errors.Is(err, apperr.ErrValidation):
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	case errors.Is(err, apperr.ErrRecordNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case errors.Is(err, apperr.ErrWriteRejected):
		writeJSON(w, http.StatusServiceUnavailable, errorBody("write rejected"))
	case errors.Is(err, apperr.ErrBackendUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, errorBody("ledger unavailable"))
	case errors.Is(err, apperr.ErrConflict):
		writeJSON(w, http.StatusConflict, errorBody("conflict, retry"))
	case errors.Is(err, apperr.ErrUnsupported):
		writeJSON(w, http.StatusNotImplemented, errorBody("not supported by this codec"))
	case errors.Is(err, apperr.ErrDecode):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody("stored record is malformed"))
	default:
		args := []any{slog.String("error", err.Error())}
		for _, a := range attrs {
			args = append(args, a)
		}
		slog.Error(op+" failed", args...)
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}
