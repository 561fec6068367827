// Package token is the signing boundary for every token the service mints:
// session tokens, access tokens and id tokens. The Signer interface keeps the
// JOSE implementation pluggable; the default is HS256 via jwx.
package token

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// Claims is the payload handed to Sign. Registered claim names follow
// RFC 7519 ("sub", "aud", "jti", ...).
type Claims map[string]any

// Signer signs and verifies claim sets.
type Signer interface {
	Sign(ctx context.Context, claims Claims, ttl time.Duration) (string, error)
	Verify(ctx context.Context, raw string) (Claims, error)
}

type hs256Signer struct {
	issuer string
	key    []byte
}

// NewHS256Signer builds the default Signer. An empty secret gets replaced by
// an ephemeral random key, which invalidates all tokens on restart.
func NewHS256Signer(issuer, secret string) (Signer, error) {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("ephemeral key: %w", err)
		}
	}
	return &hs256Signer{issuer: issuer, key: key}, nil
}

func (s *hs256Signer) Sign(ctx context.Context, claims Claims, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	b := jwt.NewBuilder().
		Issuer(s.issuer).
		IssuedAt(now).
		Expiration(now.Add(ttl))
	for k, v := range claims {
		b = b.Claim(k, v)
	}
	t, err := b.Build()
	if err != nil {
		return "", fmt.Errorf("build token: %w", err)
	}
	signed, err := jwt.Sign(t, jwt.WithKey(jwa.HS256, s.key))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return string(signed), nil
}

func (s *hs256Signer) Verify(ctx context.Context, raw string) (Claims, error) {
	t, err := jwt.Parse([]byte(raw),
		jwt.WithKey(jwa.HS256, s.key),
		jwt.WithIssuer(s.issuer),
		jwt.WithValidate(true),
	)
	if err != nil {
		return nil, err
	}
	claims := Claims{}
	for it := t.Iterate(ctx); it.Next(ctx); {
		pair := it.Pair()
		claims[pair.Key.(string)] = pair.Value
	}
	return claims, nil
}

// String reads a string claim, returning "" when absent or mistyped.
func (c Claims) String(key string) string {
	if v, ok := c[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
