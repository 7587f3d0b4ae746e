package auth

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
)

// Config holds authentication configuration.
type Config struct {
	Enabled bool
	Token   string
	// PublicReads leaves GET and HEAD requests open so that only the
	// refresh endpoint needs a token.
	PublicReads bool
}

// exemptPaths are always public regardless of auth configuration.
var exemptPaths = map[string]bool{
	"/healthz": true,
	"/readyz":  true,
	"/metrics": true,
}

func isExempt(cfg Config, r *http.Request) bool {
	if exemptPaths[r.URL.Path] {
		return true
	}
	return cfg.PublicReads && (r.Method == http.MethodGet || r.Method == http.MethodHead)
}

// Middleware returns an HTTP middleware that enforces Bearer token auth
// on non-exempt requests when auth is enabled.
func Middleware(cfg Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.Enabled || isExempt(cfg, r) {
				next.ServeHTTP(w, r)
				return
			}

			header := r.Header.Get("Authorization")
			token, found := strings.CutPrefix(header, "Bearer ")

			if !found || subtle.ConstantTimeCompare([]byte(token), []byte(cfg.Token)) != 1 {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("WWW-Authenticate", `Bearer realm="issgo"`)
				w.WriteHeader(http.StatusUnauthorized)
				json.NewEncoder(w).Encode(map[string]any{
					"status":  http.StatusUnauthorized,
					"code":    "unauthorized",
					"message": "missing or invalid bearer token",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
