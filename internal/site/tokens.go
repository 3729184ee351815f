package site

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"strings"
	"sync"
)

// TokenVerifier turns an opaque identity token into the verified subject
// it was minted for. Implementations must be safe for concurrent use.
type TokenVerifier interface {
	Verify(token string) (subject string, ok bool)
}

// GenerateIdentityToken returns a fresh opaque token. Tokens carry no
// structure; the registry is the only party that can map them back to a
// subject.
func GenerateIdentityToken() (string, error) {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf[:]), nil
}

// TokenRegistry is the trusted server-side record of which tokens
// identify which publishing actors. Every identity strategy funnels
// through it: session sign-in mints here, the server-injected token is
// registered at startup, and externally supplied tokens are registered
// when the setter is called.
type TokenRegistry struct {
	mu       sync.Mutex
	subjects map[string]string
}

func NewTokenRegistry() *TokenRegistry {
	return &TokenRegistry{subjects: make(map[string]string)}
}

// Mint creates and registers a new token for subject.
func (r *TokenRegistry) Mint(subject string) (string, error) {
	token, err := GenerateIdentityToken()
	if err != nil {
		return "", err
	}
	r.Register(token, subject)
	return token, nil
}

// Register records an out-of-band token, e.g. one supplied by an
// embedding parent context.
func (r *TokenRegistry) Register(token, subject string) {
	token = strings.TrimSpace(token)
	subject = strings.TrimSpace(subject)
	if token == "" || subject == "" {
		return
	}
	r.mu.Lock()
	r.subjects[token] = subject
	r.mu.Unlock()
}

// Revoke forgets a token. Verifying it afterwards fails.
func (r *TokenRegistry) Revoke(token string) {
	r.mu.Lock()
	delete(r.subjects, token)
	r.mu.Unlock()
}

func (r *TokenRegistry) Verify(token string) (string, bool) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	r.mu.Lock()
	subject, ok := r.subjects[token]
	r.mu.Unlock()
	return subject, ok
}

// identityFromRequest extracts the caller's identity token from a
// request, accepting the three transports a deployment may be configured
// with: Authorization bearer, the identity header, or a body field
// (passed in values by the caller after form capture).
func identityFromRequest(r *http.Request, values map[string]string) string {
	authz := r.Header.Get("Authorization")
	if strings.HasPrefix(authz, "Bearer ") {
		if token := strings.TrimSpace(strings.TrimPrefix(authz, "Bearer ")); token != "" {
			return token
		}
	}
	if token := strings.TrimSpace(r.Header.Get(identityHeader)); token != "" {
		return token
	}
	if values != nil {
		if token := strings.TrimSpace(values[identityBodyField]); token != "" {
			return token
		}
	}
	return ""
}
