package site

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

type staticProvider struct {
	token string
}

func (p staticProvider) Current() (string, bool) {
	return p.token, p.token != ""
}

func newCountingEndpoint(t *testing.T, calls *atomic.Int64, inspect func(r *http.Request, body map[string]string)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("endpoint received malformed body: %v", err)
		}
		if inspect != nil {
			inspect(r, body)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok":    true,
			"story": "A teak elephant carved by hand.",
			"tags":  []string{"handmade", "teak", "elephant"},
		})
	}))
}

func TestGeneratorClient_EmptyDescriptionMakesNoCall(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	srv := newCountingEndpoint(t, &calls, nil)
	defer srv.Close()

	client, err := NewGeneratorClient(GeneratorClientConfig{
		Endpoint:  srv.URL,
		Transport: TransportBearer,
		Identity:  staticProvider{token: "tok"},
	})
	if err != nil {
		t.Fatalf("NewGeneratorClient error: %v", err)
	}

	if _, err := client.Generate(context.Background(), "   ", nil); !errors.Is(err, ErrEmptyDescription) {
		t.Fatalf("expected ErrEmptyDescription, got %v", err)
	}
	if calls.Load() != 0 {
		t.Fatalf("expected no network call, got %d", calls.Load())
	}
}

func TestGeneratorClient_AbsentIdentityMakesNoCall(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	srv := newCountingEndpoint(t, &calls, nil)
	defer srv.Close()

	client, err := NewGeneratorClient(GeneratorClientConfig{
		Endpoint:        srv.URL,
		Transport:       TransportBearer,
		Identity:        staticProvider{},
		RequireIdentity: true,
	})
	if err != nil {
		t.Fatalf("NewGeneratorClient error: %v", err)
	}

	if _, err := client.Generate(context.Background(), "hand-carved wooden elephant", nil); !errors.Is(err, ErrIdentityAbsent) {
		t.Fatalf("expected ErrIdentityAbsent, got %v", err)
	}
	if calls.Load() != 0 {
		t.Fatalf("expected no network call, got %d", calls.Load())
	}
}

func TestGeneratorClient_IdentityTransports(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		transport IdentityTransport
		inspect   func(t *testing.T, r *http.Request, body map[string]string)
	}{
		{
			name:      "header",
			transport: TransportHeader,
			inspect: func(t *testing.T, r *http.Request, body map[string]string) {
				if got := r.Header.Get("X-Identity-Token"); got != "tok-h" {
					t.Errorf("expected identity header, got %q", got)
				}
				if r.Header.Get("Authorization") != "" {
					t.Errorf("unexpected Authorization header")
				}
				if _, present := body["identityToken"]; present {
					t.Errorf("identity must not ride in the body for header transport")
				}
			},
		},
		{
			name:      "body",
			transport: TransportBody,
			inspect: func(t *testing.T, r *http.Request, body map[string]string) {
				if body["identityToken"] != "tok-h" {
					t.Errorf("expected identityToken body field, got %q", body["identityToken"])
				}
				if r.Header.Get("Authorization") != "" || r.Header.Get("X-Identity-Token") != "" {
					t.Errorf("identity must not ride in headers for body transport")
				}
			},
		},
		{
			name:      "bearer",
			transport: TransportBearer,
			inspect: func(t *testing.T, r *http.Request, body map[string]string) {
				if got := r.Header.Get("Authorization"); got != "Bearer tok-h" {
					t.Errorf("expected bearer Authorization, got %q", got)
				}
			},
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var calls atomic.Int64
			srv := newCountingEndpoint(t, &calls, func(r *http.Request, body map[string]string) {
				tc.inspect(t, r, body)
				if body["description"] != "hand-carved wooden elephant, teak wood" {
					t.Errorf("missing description in body: %v", body)
				}
				if body["productName"] != "Elephant" {
					t.Errorf("missing form field in body: %v", body)
				}
			})
			defer srv.Close()

			client, err := NewGeneratorClient(GeneratorClientConfig{
				Endpoint:        srv.URL,
				Transport:       tc.transport,
				Identity:        staticProvider{token: "tok-h"},
				RequireIdentity: true,
			})
			if err != nil {
				t.Fatalf("NewGeneratorClient error: %v", err)
			}

			result, err := client.Generate(context.Background(),
				"hand-carved wooden elephant, teak wood",
				map[string]string{"productName": "Elephant"})
			if err != nil {
				t.Fatalf("Generate error: %v", err)
			}
			if calls.Load() != 1 {
				t.Fatalf("expected exactly one call, got %d", calls.Load())
			}
			if result.Story == "" || len(result.Tags) != 3 {
				t.Fatalf("unexpected result: %+v", result)
			}
			if JoinTags(result.Tags) != "handmade, teak, elephant" {
				t.Fatalf("unexpected tags field: %q", JoinTags(result.Tags))
			}
		})
	}
}

func TestGeneratorClient_DropsCallerTokenFromPayload(t *testing.T) {
	t.Parallel()

	// A captured form can carry the page caller's identityToken field;
	// the client must not forward it to the endpoint alongside its own
	// identity.
	for _, transport := range []IdentityTransport{TransportHeader, TransportBody, TransportBearer} {
		transport := transport
		t.Run(string(transport), func(t *testing.T) {
			t.Parallel()

			var calls atomic.Int64
			srv := newCountingEndpoint(t, &calls, func(r *http.Request, body map[string]string) {
				if transport == TransportBody {
					if body["identityToken"] != "deploy-token" {
						t.Errorf("expected the client's own token in the body, got %q", body["identityToken"])
					}
				} else if token, present := body["identityToken"]; present {
					t.Errorf("caller token %q forwarded to the endpoint", token)
				}
			})
			defer srv.Close()

			client, err := NewGeneratorClient(GeneratorClientConfig{
				Endpoint:  srv.URL,
				Transport: transport,
				Identity:  staticProvider{token: "deploy-token"},
			})
			if err != nil {
				t.Fatalf("NewGeneratorClient error: %v", err)
			}

			form := map[string]string{
				"productName":   "Elephant",
				"identityToken": "caller-token",
			}
			if _, err := client.Generate(context.Background(), "a teak elephant", form); err != nil {
				t.Fatalf("Generate error: %v", err)
			}
			if calls.Load() != 1 {
				t.Fatalf("expected exactly one call, got %d", calls.Load())
			}
		})
	}
}

func TestGeneratorClient_SurfacesBackendError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "error": "model overloaded"})
	}))
	defer srv.Close()

	client, err := NewGeneratorClient(GeneratorClientConfig{
		Endpoint:  srv.URL,
		Transport: TransportBearer,
		Identity:  staticProvider{token: "tok"},
	})
	if err != nil {
		t.Fatalf("NewGeneratorClient error: %v", err)
	}

	_, err = client.Generate(context.Background(), "a lamp", nil)
	if err == nil || err.Error() != "model overloaded" {
		t.Fatalf("expected backend error message, got %v", err)
	}
}

func TestGeneratorClient_GenericMessageWhenBackendOmitsError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false})
	}))
	defer srv.Close()

	client, err := NewGeneratorClient(GeneratorClientConfig{
		Endpoint:  srv.URL,
		Transport: TransportHeader,
		Identity:  staticProvider{token: "tok"},
	})
	if err != nil {
		t.Fatalf("NewGeneratorClient error: %v", err)
	}

	_, err = client.Generate(context.Background(), "a lamp", nil)
	if err == nil || err.Error() != "story generation failed" {
		t.Fatalf("expected generic failure message, got %v", err)
	}
}

func TestNewGeneratorClient_RejectsUnknownTransport(t *testing.T) {
	t.Parallel()

	if _, err := NewGeneratorClient(GeneratorClientConfig{
		Endpoint:  "http://127.0.0.1:9",
		Transport: IdentityTransport("cookie"),
	}); err == nil {
		t.Fatalf("expected error for unknown transport")
	}
}

func newGenerateRequest(t *testing.T, body string, token string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "http://127.0.0.1/api/generate", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func TestGenerateHandler_RequiresIdentity(t *testing.T) {
	t.Parallel()

	var modelCalls atomic.Int64
	handler := GenerateHandler(GenerateConfig{
		Model: func(ctx context.Context, prompt string) (string, []string, error) {
			modelCalls.Add(1)
			return "story", nil, nil
		},
		Verifier: NewTokenRegistry(),
	})

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, newGenerateRequest(t, `{"description":"a lamp"}`, ""))

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d (%s)", rr.Code, rr.Body.String())
	}
	var apiErr APIError
	if err := json.Unmarshal(rr.Body.Bytes(), &apiErr); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if apiErr.OK || apiErr.Code != "AUTH_REQUIRED" {
		t.Fatalf("unexpected error body: %+v", apiErr)
	}
	if modelCalls.Load() != 0 {
		t.Fatalf("expected no model call, got %d", modelCalls.Load())
	}
}

func TestGenerateHandler_RejectsEmptyDescriptionWithoutModelCall(t *testing.T) {
	t.Parallel()

	registry := NewTokenRegistry()
	token, err := registry.Mint("ngo-1")
	if err != nil {
		t.Fatalf("Mint error: %v", err)
	}

	var modelCalls atomic.Int64
	handler := GenerateHandler(GenerateConfig{
		Model: func(ctx context.Context, prompt string) (string, []string, error) {
			modelCalls.Add(1)
			return "story", nil, nil
		},
		Verifier: registry,
	})

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, newGenerateRequest(t, `{"description":"   ","name":"Asha"}`, token))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d (%s)", rr.Code, rr.Body.String())
	}
	if modelCalls.Load() != 0 {
		t.Fatalf("expected no model call, got %d", modelCalls.Load())
	}
}

func TestGenerateHandler_ReturnsStoryAndTags(t *testing.T) {
	t.Parallel()

	registry := NewTokenRegistry()
	token, err := registry.Mint("ngo-1")
	if err != nil {
		t.Fatalf("Mint error: %v", err)
	}

	handler := GenerateHandler(GenerateConfig{
		Model: func(ctx context.Context, prompt string) (string, []string, error) {
			if !strings.Contains(prompt, "hand-carved wooden elephant, teak wood") {
				t.Errorf("prompt missing description: %q", prompt)
			}
			return "A teak elephant carved by hand.", []string{"handmade", "teak", "elephant"}, nil
		},
		Verifier: registry,
	})

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, newGenerateRequest(t,
		`{"description":"hand-carved wooden elephant, teak wood","productName":"Elephant"}`, token))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rr.Code, rr.Body.String())
	}
	var resp GenerateResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if !resp.OK || resp.Story != "A teak elephant carved by hand." {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if JoinTags(resp.Tags) != "handmade, teak, elephant" {
		t.Fatalf("unexpected tags field: %q", JoinTags(resp.Tags))
	}
}

func TestGenerateHandler_SurfacesModelFailure(t *testing.T) {
	t.Parallel()

	registry := NewTokenRegistry()
	token, err := registry.Mint("ngo-1")
	if err != nil {
		t.Fatalf("Mint error: %v", err)
	}

	handler := GenerateHandler(GenerateConfig{
		Model: func(ctx context.Context, prompt string) (string, []string, error) {
			return "", nil, errors.New("quota exhausted")
		},
		Verifier: registry,
	})

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, newGenerateRequest(t, `{"description":"a lamp"}`, token))

	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d (%s)", rr.Code, rr.Body.String())
	}
	var apiErr APIError
	if err := json.Unmarshal(rr.Body.Bytes(), &apiErr); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if apiErr.Code != "MODEL_FAILED" || !strings.Contains(apiErr.Message, "quota exhausted") {
		t.Fatalf("unexpected error body: %+v", apiErr)
	}
}

func TestGenerateHandler_AcceptsIdentityInBodyField(t *testing.T) {
	t.Parallel()

	registry := NewTokenRegistry()
	token, err := registry.Mint("ngo-1")
	if err != nil {
		t.Fatalf("Mint error: %v", err)
	}

	handler := GenerateHandler(GenerateConfig{
		Model: func(ctx context.Context, prompt string) (string, []string, error) {
			return "story", []string{"a"}, nil
		},
		Verifier: registry,
	})

	body := `{"description":"a lamp","identityToken":"` + token + `"}`
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, newGenerateRequest(t, body, ""))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rr.Code, rr.Body.String())
	}
}

func TestGenerateHandler_ForwardsToUpstream(t *testing.T) {
	t.Parallel()

	var upstreamCalls atomic.Int64
	upstreamSrv := newCountingEndpoint(t, &upstreamCalls, func(r *http.Request, body map[string]string) {
		if r.Header.Get("Authorization") != "Bearer deploy-token" {
			t.Errorf("expected deployment identity on upstream call, got %q", r.Header.Get("Authorization"))
		}
	})
	defer upstreamSrv.Close()

	upstream, err := NewGeneratorClient(GeneratorClientConfig{
		Endpoint:        upstreamSrv.URL,
		Transport:       TransportBearer,
		Identity:        staticProvider{token: "deploy-token"},
		RequireIdentity: true,
	})
	if err != nil {
		t.Fatalf("NewGeneratorClient error: %v", err)
	}

	registry := NewTokenRegistry()
	token, err := registry.Mint("ngo-1")
	if err != nil {
		t.Fatalf("Mint error: %v", err)
	}

	handler := GenerateHandler(GenerateConfig{Upstream: upstream, Verifier: registry})

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, newGenerateRequest(t, `{"description":"a lamp"}`, token))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rr.Code, rr.Body.String())
	}
	if upstreamCalls.Load() != 1 {
		t.Fatalf("expected one upstream call, got %d", upstreamCalls.Load())
	}
}
