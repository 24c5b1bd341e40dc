package daemon

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// requireToken guards the /api routes when api.token is set. An empty token
// leaves the API open; the daemon binds to loopback by default.
func (s *apiServer) requireToken(next http.Handler) http.Handler {
	if s.token == "" {
		return next
	}
	want := []byte(s.token)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		scheme, given, ok := strings.Cut(r.Header.Get("Authorization"), " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") ||
			subtle.ConstantTimeCompare([]byte(strings.TrimSpace(given)), want) != 1 {
			w.Header().Set("WWW-Authenticate", `Bearer realm="montage"`)
			s.writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}
