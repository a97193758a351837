// Package feedback implements the Feedback Token Signer: an opaque,
// server-signed token that carries no tenant data and grants exactly
// one action — writing feedback for the run_id it was minted for.
package feedback

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned by Verify for any parse, signature or
// expiry failure. It never distinguishes "expired" from "tampered" to
// an unauthenticated caller.
var ErrInvalidToken = errors.New("feedback: invalid token")

// DefaultTTL is the feedback token's lifetime: long enough for a caller
// to review a run and submit a verdict well after the response returned.
const DefaultTTL = 90 * 24 * time.Hour

// Signer mints and verifies feedback tokens under a server secret.
type Signer struct {
	secret []byte
	ttl    time.Duration
}

// NewSigner builds a Signer under secret (token_signing_secret) with
// ttl (defaulting to DefaultTTL when zero).
func NewSigner(secret string, ttl time.Duration) *Signer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Signer{secret: []byte(secret), ttl: ttl}
}

// Sign implements engine.FeedbackSigner: it mints a token whose
// Subject is runID and that expires ttl from now.
func (s *Signer) Sign(runID string) (string, error) {
	if len(s.secret) == 0 {
		return "", fmt.Errorf("feedback: signing secret is not configured")
	}
	if strings.TrimSpace(runID) == "" {
		return "", fmt.Errorf("feedback: run id is required")
	}

	claims := jwt.RegisteredClaims{
		Subject:   runID,
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify recovers the run_id a token was signed for. Any failure —
// malformed token, bad signature, non-HMAC alg header, expiry — is
// reported uniformly as ErrInvalidToken.
func (s *Signer) Verify(token string) (runID string, err error) {
	if len(s.secret) == 0 {
		return "", ErrInvalidToken
	}

	parsed, parseErr := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if parseErr != nil {
		return "", ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || !parsed.Valid {
		return "", ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
