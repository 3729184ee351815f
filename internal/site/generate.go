package site

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	identityHeader    = "X-Identity-Token"
	identityBodyField = "identityToken"
)

// IdentityTransport selects how the generator client attaches the caller
// identity to outgoing requests. Picked once per deployment, never per
// request.
type IdentityTransport string

const (
	TransportHeader IdentityTransport = "header"
	TransportBody   IdentityTransport = "body"
	TransportBearer IdentityTransport = "bearer"
)

func ParseIdentityTransport(s string) (IdentityTransport, bool) {
	switch IdentityTransport(strings.ToLower(strings.TrimSpace(s))) {
	case TransportHeader:
		return TransportHeader, true
	case TransportBody:
		return TransportBody, true
	case TransportBearer:
		return TransportBearer, true
	}
	return "", false
}

// StoryResult is the outcome of one generate action. Transient: it lives
// until the next generate or the publish that consumes it.
type StoryResult struct {
	Story string
	Tags  []string
}

// Precondition failures of the generator client. Both are raised before
// any network call is made.
var (
	ErrEmptyDescription = errors.New("description is empty")
	ErrIdentityAbsent   = errors.New("identity is absent")
)

type GeneratorClientConfig struct {
	// Endpoint is the generation endpoint URL.
	Endpoint string
	// Transport picks how identity rides on the request.
	Transport IdentityTransport
	// Identity supplies the caller identity at call time.
	Identity Provider
	// RequireIdentity makes an absent identity a hard failure. When
	// false a request may go out unauthenticated (anonymous variant).
	RequireIdentity bool
	HTTPClient      *http.Client
	Logger          *zap.Logger
}

// GeneratorClient sends a captured description to a generation endpoint
// and interprets the {ok, story, tags, error} response.
type GeneratorClient struct {
	endpoint        string
	transport       IdentityTransport
	identity        Provider
	requireIdentity bool
	httpc           *http.Client
	logger          *zap.Logger
}

type generateWireResponse struct {
	OK    bool     `json:"ok"`
	Story string   `json:"story"`
	Tags  []string `json:"tags"`
	Error string   `json:"error"`
}

func NewGeneratorClient(cfg GeneratorClientConfig) (*GeneratorClient, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, errors.New("Endpoint is required")
	}
	switch cfg.Transport {
	case TransportHeader, TransportBody, TransportBearer:
	default:
		return nil, fmt.Errorf("unsupported identity transport %q", cfg.Transport)
	}
	httpc := cfg.HTTPClient
	if httpc == nil {
		httpc = &http.Client{Timeout: 60 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GeneratorClient{
		endpoint:        cfg.Endpoint,
		transport:       cfg.Transport,
		identity:        cfg.Identity,
		requireIdentity: cfg.RequireIdentity,
		httpc:           httpc,
		logger:          logger,
	}, nil
}

// Generate performs exactly one call to the generation endpoint. The
// description must be non-empty after trimming and, when the deployment
// requires it, the identity must be present; either failure is raised
// without touching the network.
func (c *GeneratorClient) Generate(ctx context.Context, description string, form map[string]string) (StoryResult, error) {
	if strings.TrimSpace(description) == "" {
		return StoryResult{}, ErrEmptyDescription
	}

	var token string
	if c.identity != nil {
		token, _ = c.identity.Current()
	}
	if c.requireIdentity && token == "" {
		return StoryResult{}, ErrIdentityAbsent
	}

	payload := make(map[string]string, len(form)+2)
	for name, value := range form {
		// The caller's own token never travels upstream; only this
		// client's identity does, via the configured transport.
		if name == identityBodyField {
			continue
		}
		payload[name] = value
	}
	payload["description"] = description
	if token != "" && c.transport == TransportBody {
		payload[identityBodyField] = token
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return StoryResult{}, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return StoryResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		switch c.transport {
		case TransportHeader:
			req.Header.Set(identityHeader, token)
		case TransportBearer:
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return StoryResult{}, fmt.Errorf("generation request failed: %w", err)
	}
	defer resp.Body.Close()

	var wire generateWireResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return StoryResult{}, fmt.Errorf("generation endpoint returned malformed JSON: %w", err)
	}
	if !wire.OK {
		message := strings.TrimSpace(wire.Error)
		if message == "" {
			message = "story generation failed"
		}
		return StoryResult{}, errors.New(message)
	}

	c.logger.Debug("story generated",
		zap.Int("storyLen", len(wire.Story)),
		zap.Int("tags", len(wire.Tags)))
	return StoryResult{Story: wire.Story, Tags: wire.Tags}, nil
}

type GenerateConfig struct {
	// Model produces the story in-process. Exactly one of Model and
	// Upstream must be set.
	Model StoryModelFunc
	// Upstream forwards generation to a remote endpoint instead.
	Upstream *GeneratorClient
	// Verifier checks the caller's bearer identity. Required.
	Verifier TokenVerifier
	Logger   *zap.Logger
}

type GenerateResponse struct {
	OK    bool     `json:"ok"`
	Story string   `json:"story"`
	Tags  []string `json:"tags"`
}

// GenerateHandler is POST /api/generate: verify the caller, validate the
// description, make exactly one model (or upstream) call, and answer
// with {ok, story, tags}.
func GenerateHandler(cfg GenerateConfig) http.HandlerFunc {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		values, err := CaptureForm(r)
		if err != nil {
			WriteAPIError(w, http.StatusBadRequest, APIError{
				Code:    "VALIDATION_ERROR",
				Message: "invalid request body",
				Hint:    err.Error(),
			})
			return
		}

		token := identityFromRequest(r, values)
		subject, ok := cfg.Verifier.Verify(token)
		if !ok {
			WriteAPIError(w, http.StatusUnauthorized, APIError{
				Code:    "AUTH_REQUIRED",
				Message: "authentication required",
				Hint:    "Sign in (or supply an identity token) before generating.",
			})
			return
		}

		description := strings.TrimSpace(values["description"])
		if description == "" {
			WriteAPIError(w, http.StatusBadRequest, APIError{
				Code:    "VALIDATION_ERROR",
				Message: "no description provided",
				Hint:    "Fill in the product fields so a description can be built.",
			})
			return
		}

		var result StoryResult
		if cfg.Upstream != nil {
			result, err = cfg.Upstream.Generate(r.Context(), description, values)
		} else {
			var story string
			var tags []string
			story, tags, err = cfg.Model(r.Context(), buildStoryPrompt(values, description))
			result = StoryResult{Story: story, Tags: tags}
		}
		if err != nil {
			logger.Warn("story generation failed",
				zap.String("subject", subject),
				zap.Error(err))
			WriteAPIError(w, http.StatusBadGateway, APIError{
				Code:    "MODEL_FAILED",
				Message: err.Error(),
				Hint:    "Retry the generate action; nothing was published.",
			})
			return
		}

		logger.Info("story generated",
			zap.String("subject", subject),
			zap.Int("tags", len(result.Tags)))
		writeJSON(w, GenerateResponse{OK: true, Story: result.Story, Tags: result.Tags})
	}
}
