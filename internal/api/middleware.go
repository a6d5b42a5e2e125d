// Package api implements the parkwatch REST API using chi.
package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// AuthPolicy says which requests must carry the bearer token.
type AuthPolicy struct {
	Enabled bool
	Token   string
	// PublicReads lets GET and HEAD through without a token, so anonymous
	// participants can browse and follow events while submitting and voting
	// stay gated.
	PublicReads bool
}

func (p AuthPolicy) guards(r *http.Request) bool {
	if !p.Enabled {
		return false
	}
	if p.PublicReads && (r.Method == http.MethodGet || r.Method == http.MethodHead) {
		return false
	}
	return true
}

func (p AuthPolicy) authorized(r *http.Request) bool {
	got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	return ok && subtle.ConstantTimeCompare([]byte(got), []byte(p.Token)) == 1
}

// AuthMiddleware enforces p. Rejected requests get 401 with a Bearer
// challenge.
func AuthMiddleware(p AuthPolicy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if p.guards(r) && !p.authorized(r) {
				w.Header().Set("WWW-Authenticate", `Bearer realm="parkwatch"`)
				writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
