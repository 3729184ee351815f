package site

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newOriginGuard() http.Handler {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return RequireSameOrigin(next, OriginGuardConfig{
		AllowedOrigins: []string{"http://127.0.0.1:8080"},
	})
}

func TestRequireSameOrigin_AllowsMatchingOrigin(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodPost, "http://127.0.0.1:8080/api/publish", nil)
	req.Header.Set("Origin", "http://127.0.0.1:8080")
	rr := httptest.NewRecorder()
	newOriginGuard().ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected pass-through, got %d (%s)", rr.Code, rr.Body.String())
	}
}

func TestRequireSameOrigin_RejectsMissingOrigin(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodPost, "http://127.0.0.1:8080/api/publish", nil)
	rr := httptest.NewRecorder()
	newOriginGuard().ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
	var apiErr APIError
	if err := json.Unmarshal(rr.Body.Bytes(), &apiErr); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if apiErr.Code != "ORIGIN_REQUIRED" {
		t.Fatalf("unexpected error code: %q", apiErr.Code)
	}
}

func TestRequireSameOrigin_RejectsForeignOrigin(t *testing.T) {
	t.Parallel()

	for _, origin := range []string{"null", "http://evil.example", "http://127.0.0.1:9999"} {
		req := httptest.NewRequest(http.MethodPost, "http://127.0.0.1:8080/api/generate", nil)
		req.Header.Set("Origin", origin)
		rr := httptest.NewRecorder()
		newOriginGuard().ServeHTTP(rr, req)

		if rr.Code != http.StatusForbidden {
			t.Fatalf("expected 403 for origin %q, got %d", origin, rr.Code)
		}
	}
}

func TestRequireSameOrigin_IgnoresReadsAndNonAPIPaths(t *testing.T) {
	t.Parallel()

	guard := newOriginGuard()

	// Cross-origin GETs are fine; so are non-API POSTs.
	get := httptest.NewRequest(http.MethodGet, "http://127.0.0.1:8080/api/feed", nil)
	get.Header.Set("Origin", "http://evil.example")
	rr := httptest.NewRecorder()
	guard.ServeHTTP(rr, get)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected GET to pass through, got %d", rr.Code)
	}

	post := httptest.NewRequest(http.MethodPost, "http://127.0.0.1:8080/other", nil)
	rr2 := httptest.NewRecorder()
	guard.ServeHTTP(rr2, post)
	if rr2.Code != http.StatusNoContent {
		t.Fatalf("expected non-API POST to pass through, got %d", rr2.Code)
	}
}
