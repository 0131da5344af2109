package web

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// authorizeRequest accepts the configured token as a bearer header or a
// ?token= query parameter. EventSource and browser WebSocket clients cannot
// set headers, hence the query form.
func (s *Server) authorizeRequest(r *http.Request) bool {
	if s.cfg.Token == "" {
		return true
	}
	for _, candidate := range []string{
		strings.TrimSpace(r.URL.Query().Get("token")),
		bearerToken(r.Header.Get("Authorization")),
	} {
		if candidate != "" && secureEqual(candidate, s.cfg.Token) {
			return true
		}
	}
	return false
}

func bearerToken(authHeader string) string {
	const bearerPrefix = "Bearer "
	authHeader = strings.TrimSpace(authHeader)
	if !strings.HasPrefix(authHeader, bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(authHeader, bearerPrefix))
}

func secureEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
