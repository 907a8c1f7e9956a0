package authhook

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTValidator validates bearer tokens as HMAC- or RSA-signed JWTs,
// grounded on mcp-oauth-2.1's TokenValidator: it checks signature,
// expiration (with clock skew), and — when configured — audience.
type JWTValidator struct {
	keyFunc  jwt.Keyfunc
	audience string
	skew     time.Duration
}

// NewJWTValidator builds a JWTValidator. keyFunc resolves the signing key
// for a token's header (kid/alg) the way jwt.Parse expects; audience, if
// non-empty, must appear in the token's aud claim.
func NewJWTValidator(keyFunc jwt.Keyfunc, audience string) *JWTValidator {
	return &JWTValidator{keyFunc: keyFunc, audience: audience, skew: 30 * time.Second}
}

// WithClockSkew overrides the default 30s leeway applied to exp/iat checks.
func (v *JWTValidator) WithClockSkew(skew time.Duration) *JWTValidator {
	v.skew = skew
	return v
}

func (v *JWTValidator) Validate(_ context.Context, credential string) (*Claims, error) {
	if credential == "" {
		return nil, ErrMissingCredential
	}

	parserOpts := []jwt.ParserOption{jwt.WithLeeway(v.skew)}
	if v.audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(v.audience))
	}

	token, err := jwt.Parse(credential, v.keyFunc, parserOpts...)
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected claims type", ErrInvalidCredential)
	}

	return claimsFromMap(mapClaims), nil
}

func claimsFromMap(mc jwt.MapClaims) *Claims {
	claims := &Claims{}
	if sub, err := mc.GetSubject(); err == nil {
		claims.Subject = sub
	}
	if iss, err := mc.GetIssuer(); err == nil {
		claims.Issuer = iss
	}
	if aud, err := mc.GetAudience(); err == nil {
		claims.Audience = aud
	}
	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		claims.ExpiresAt = exp.Time
	}
	if iat, err := mc.GetIssuedAt(); err == nil && iat != nil {
		claims.IssuedAt = iat.Time
	}
	claims.Scopes = scopesFromClaim(mc["scope"])
	return claims
}

// scopesFromClaim parses the OAuth "scope" claim, a space-separated string
// per RFC 6749 §3.3, into individual scope tokens.
func scopesFromClaim(raw any) []string {
	s, ok := raw.(string)
	if !ok || s == "" {
		return nil
	}
	return strings.Fields(s)
}
