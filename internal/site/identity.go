package site

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// IdentityMode selects how a deployment learns who the publishing actor
// is. Exactly one mode is active per deployment.
type IdentityMode string

const (
	// IdentityModeSession follows the auth-state stream: whoever signed
	// in most recently, possibly nobody.
	IdentityModeSession IdentityMode = "session"
	// IdentityModeInjected uses a token minted at page-generation time
	// and fixed for the page's lifetime.
	IdentityModeInjected IdentityMode = "injected"
	// IdentityModeExternal waits for an embedding parent context to
	// supply a token through the exposed setter.
	IdentityModeExternal IdentityMode = "external"
)

func ParseIdentityMode(s string) (IdentityMode, bool) {
	switch IdentityMode(strings.ToLower(strings.TrimSpace(s))) {
	case IdentityModeSession:
		return IdentityModeSession, true
	case IdentityModeInjected:
		return IdentityModeInjected, true
	case IdentityModeExternal:
		return IdentityModeExternal, true
	}
	return "", false
}

// Provider yields the current caller identity. ok=false means absent,
// which callers must treat as a hard precondition failure for publish
// and generate, never as a value to send anyway.
type Provider interface {
	Current() (token string, ok bool)
}

// SessionProvider tracks the auth-state stream. The held token can flip
// to absent at any time (sign-out), so consumers re-read at call time
// instead of caching a snapshot.
type SessionProvider struct {
	mu     sync.Mutex
	state  *AuthState
	events <-chan AuthEvent
	token  string
}

// NewSessionProvider subscribes once to state and follows it for the
// life of the process.
func NewSessionProvider(state *AuthState) *SessionProvider {
	events, _ := state.Subscribe()
	return &SessionProvider{state: state, events: events}
}

// Current drains any pending notifications, then reconciles against the
// hub's latest state. The subscription buffer is bounded, so a burst of
// sign-ins and sign-outs between reads can drop events; the reconcile
// step keeps the answer from going stale when that happens.
func (p *SessionProvider) Current() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
drain:
	for {
		select {
		case ev := <-p.events:
			if ev.Present {
				p.token = ev.Token
			} else {
				p.token = ""
			}
		default:
			break drain
		}
	}
	if ev := p.state.Current(); ev.Present {
		p.token = ev.Token
	} else {
		p.token = ""
	}
	return p.token, p.token != ""
}

// InjectedProvider holds the token the server embedded into the page at
// render time. Immutable; an empty token means "no session" and reads as
// absent.
type InjectedProvider struct {
	token string
}

func NewInjectedProvider(token string) *InjectedProvider {
	return &InjectedProvider{token: strings.TrimSpace(token)}
}

func (p *InjectedProvider) Current() (string, bool) {
	return p.token, p.token != ""
}

// ExternalProvider is absent until an embedding parent supplies a token
// via Set; later calls replace the token wholesale. Stale tokens are not
// refreshed here: the verifier rejects them per-request and the parent
// is expected to call Set again.
type ExternalProvider struct {
	mu    sync.Mutex
	token string
}

func NewExternalProvider() *ExternalProvider {
	return &ExternalProvider{}
}

func (p *ExternalProvider) Set(token string) {
	p.mu.Lock()
	p.token = strings.TrimSpace(token)
	p.mu.Unlock()
}

func (p *ExternalProvider) Current() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.token, p.token != ""
}

type SignInConfig struct {
	Registry *TokenRegistry
	State    *AuthState
	Logger   *zap.Logger
}

type SignInRequest struct {
	Subject string `json:"subject"`
}

type SignInResponse struct {
	OK      bool   `json:"ok"`
	Token   string `json:"token"`
	Subject string `json:"subject"`
}

// SignInHandler mints a verified token for the named subject and
// publishes it on the auth-state stream.
func SignInHandler(cfg SignInConfig) http.HandlerFunc {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req SignInRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			WriteAPIError(w, http.StatusBadRequest, APIError{
				Code:    "VALIDATION_ERROR",
				Message: "invalid JSON body",
				Hint:    err.Error(),
			})
			return
		}
		req.Subject = strings.TrimSpace(req.Subject)
		if req.Subject == "" {
			WriteAPIError(w, http.StatusBadRequest, APIError{
				Code:    "VALIDATION_ERROR",
				Message: "subject is required",
			})
			return
		}

		token, err := cfg.Registry.Mint(req.Subject)
		if err != nil {
			WriteAPIError(w, http.StatusInternalServerError, APIError{
				Code:    "INTERNAL_ERROR",
				Message: "failed to mint identity token",
				Hint:    err.Error(),
			})
			return
		}
		if cfg.State != nil {
			cfg.State.SignIn(token)
		}
		logger.Info("signed in", zap.String("subject", req.Subject))

		writeJSON(w, SignInResponse{OK: true, Token: token, Subject: req.Subject})
	}
}

// SignOutHandler publishes an absent-identity event. Already-minted
// tokens stay valid for bearer use; only the session snapshot goes
// absent.
func SignOutHandler(state *AuthState) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if state != nil {
			state.SignOut()
		}
		writeJSON(w, map[string]any{"ok": true})
	}
}

type SetTokenConfig struct {
	Provider *ExternalProvider
	Registry *TokenRegistry
	// Subject recorded for externally supplied tokens when the request
	// does not name one.
	DefaultSubject string
	Logger         *zap.Logger
}

type SetTokenRequest struct {
	Token   string `json:"token"`
	Subject string `json:"subject,omitempty"`
}

// SetTokenHandler is the exposed setter an embedding parent calls to
// supply or refresh the identity token (the page relays
// window.setIdentityToken here).
func SetTokenHandler(cfg SetTokenConfig) http.HandlerFunc {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req SetTokenRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			WriteAPIError(w, http.StatusBadRequest, APIError{
				Code:    "VALIDATION_ERROR",
				Message: "invalid JSON body",
				Hint:    err.Error(),
			})
			return
		}
		req.Token = strings.TrimSpace(req.Token)
		if req.Token == "" {
			WriteAPIError(w, http.StatusBadRequest, APIError{
				Code:    "VALIDATION_ERROR",
				Message: "token is required",
			})
			return
		}

		subject := strings.TrimSpace(req.Subject)
		if subject == "" {
			subject = cfg.DefaultSubject
		}
		cfg.Registry.Register(req.Token, subject)
		cfg.Provider.Set(req.Token)
		logger.Info("external identity token set", zap.String("subject", subject))

		writeJSON(w, map[string]any{"ok": true})
	}
}
