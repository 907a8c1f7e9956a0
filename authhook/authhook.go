// Package authhook provides a pluggable authentication hook for the
// HTTP-family transports. It is never mandatory and never part of the
// core dispatch path — the engine and registry have no notion of identity
// or scope; a transport that wires a Validator simply rejects unauthenticated
// requests before they ever reach engine.Server.HandleRequest.
package authhook

import (
	"context"
	"errors"
	"time"
)

// ErrMissingCredential is returned when the configured HeaderType's header
// carries no token at all.
var ErrMissingCredential = errors.New("authhook: missing credential")

// ErrInvalidCredential is returned when a token was present but failed
// validation (bad signature, expired, wrong audience, unknown key).
var ErrInvalidCredential = errors.New("authhook: invalid credential")

// HeaderType selects which HTTP header carries the credential, matching
// minimcp's two supported transports: a bearer JWT in Authorization, or a
// static key in X-API-Key.
type HeaderType string

const (
	HeaderBearer HeaderType = "bearer"
	HeaderAPIKey HeaderType = "api-key"
)

// Claims is the validated identity and scope set carried by a credential,
// independent of whether it came from a JWT or a static API key.
type Claims struct {
	Subject   string
	Issuer    string
	Audience  []string
	Scopes    []string
	ExpiresAt time.Time
	IssuedAt  time.Time
}

// HasScope reports whether claims grants scope. A nil Claims has no scopes.
func (c *Claims) HasScope(scope string) bool {
	if c == nil {
		return false
	}
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// HasAnyScope reports whether claims grants at least one of scopes.
func (c *Claims) HasAnyScope(scopes ...string) bool {
	if c == nil || len(scopes) == 0 {
		return false
	}
	for _, want := range scopes {
		if c.HasScope(want) {
			return true
		}
	}
	return false
}

// Validator authenticates one credential string and returns its claims.
// The credential's shape depends on the paired HeaderType: a compact JWT
// for HeaderBearer, an opaque key for HeaderAPIKey.
type Validator interface {
	Validate(ctx context.Context, credential string) (*Claims, error)
}

type claimsContextKey struct{}

// WithClaims stores claims on ctx for downstream handlers to read via
// ClaimsFromContext — set by Middleware after a successful validation.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey{}, claims)
}

// ClaimsFromContext retrieves claims set by Middleware, if any.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(*Claims)
	return claims, ok
}
