package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// Auth requires the API key as "Authorization: Bearer <key>" or X-API-Key on
// every path outside publicPrefixes. An empty apiKey disables the check, and
// preflight requests always pass.
func Auth(apiKey string, publicPrefixes ...string) func(http.Handler) http.Handler {
	want := []byte(apiKey)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey == "" || r.Method == http.MethodOptions || hasAnyPrefix(r.URL.Path, publicPrefixes) {
				next.ServeHTTP(w, r)
				return
			}

			switch got := presentedKey(r); {
			case got == "":
				writeJSONError(w, http.StatusUnauthorized, map[string]any{"error": "missing API key"})
			case subtle.ConstantTimeCompare([]byte(got), want) != 1:
				writeJSONError(w, http.StatusUnauthorized, map[string]any{"error": "invalid API key"})
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

func hasAnyPrefix(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

func presentedKey(r *http.Request) string {
	if scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " "); ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}
