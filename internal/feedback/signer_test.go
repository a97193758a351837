package feedback

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestSignerSignVerify(t *testing.T) {
	signer := NewSigner("secret", time.Hour)
	token, err := signer.Sign("run-1")
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	runID, err := signer.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if runID != "run-1" {
		t.Fatalf("expected run-1, got %q", runID)
	}
}

func TestSignerSignRequiresRunID(t *testing.T) {
	signer := NewSigner("secret", time.Hour)
	if _, err := signer.Sign(""); err == nil {
		t.Fatalf("expected an error for an empty run id")
	}
}

func TestSignerVerifyRejectsTamperedSignature(t *testing.T) {
	signer := NewSigner("secret", time.Hour)
	token, err := signer.Sign("run-1")
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	other := NewSigner("a-different-secret", time.Hour)
	if _, err := other.Verify(token); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken for a token signed under a different secret, got %v", err)
	}
}

func TestSignerVerifyRejectsExpiredToken(t *testing.T) {
	signer := NewSigner("secret", time.Nanosecond)
	token, err := signer.Sign("run-1")
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	time.Sleep(10 * time.Millisecond)

	if _, err := signer.Verify(token); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken for an expired token, got %v", err)
	}
}

func TestSignerVerifyRejectsAlgNoneDowngrade(t *testing.T) {
	signer := NewSigner("secret", time.Hour)

	claims := jwt.RegisteredClaims{
		Subject:   "run-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, claims)
	token, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("failed to build an alg:none token for the test: %v", err)
	}

	if _, err := signer.Verify(token); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken for an alg:none token, got %v", err)
	}
}

func TestSignerVerifyRejectsGarbage(t *testing.T) {
	signer := NewSigner("secret", time.Hour)
	if _, err := signer.Verify("not-a-jwt"); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken for a malformed token, got %v", err)
	}
}

func TestSignerWithoutSecretRejectsEverything(t *testing.T) {
	signer := NewSigner("", time.Hour)
	if _, err := signer.Sign("run-1"); err == nil {
		t.Fatalf("expected an error when no signing secret is configured")
	}
	if _, err := signer.Verify("anything"); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken when no signing secret is configured")
	}
}

func TestDefaultTTLAppliedWhenZero(t *testing.T) {
	signer := NewSigner("secret", 0)
	if signer.ttl != DefaultTTL {
		t.Fatalf("expected DefaultTTL to apply, got %v", signer.ttl)
	}
}
