package site

import (
	"net/http"
	"strings"
)

type OriginGuardConfig struct {
	AllowedOrigins []string
}

// RequireSameOrigin rejects API writes that did not come from the studio
// page itself. Identity is verified separately per handler; this guard
// only stops cross-site form posts against the loopback server.
func RequireSameOrigin(next http.Handler, cfg OriginGuardConfig) http.Handler {
	allowed := make(map[string]struct{}, len(cfg.AllowedOrigins))
	for _, origin := range cfg.AllowedOrigins {
		allowed[origin] = struct{}{}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || !strings.HasPrefix(r.URL.Path, "/api/") {
			next.ServeHTTP(w, r)
			return
		}

		origin := r.Header.Get("Origin")
		if origin == "" || origin == "null" {
			WriteAPIError(w, http.StatusForbidden, APIError{
				Code:    "ORIGIN_REQUIRED",
				Message: "Origin header is required for write operations.",
				Hint:    "Open the studio at http://127.0.0.1 and retry from the same page.",
			})
			return
		}
		if _, ok := allowed[origin]; !ok {
			WriteAPIError(w, http.StatusForbidden, APIError{
				Code:    "ORIGIN_NOT_ALLOWED",
				Message: "Origin is not allowed for write operations.",
				Hint:    "Use the studio page served by this server; cross-site requests are rejected.",
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}
