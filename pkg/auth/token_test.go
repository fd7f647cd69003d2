package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/config"
)

func newTestSigner(t *testing.T) *Signer {
	t.Helper()
	s, err := NewSigner(config.JWTConfig{Secret: "secret", Issuer: "storefront"})
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	return s
}

func TestIssueThenVerify(t *testing.T) {
	s := newTestSigner(t)
	userID := uuid.New()

	token, err := s.Issue(userID, "owner@example.com", time.Now(), 30*time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := s.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.UserID != userID || claims.Subject != userID.String() {
		t.Fatalf("unexpected identity %s / %s", claims.UserID, claims.Subject)
	}
	if claims.Email != "owner@example.com" || claims.Issuer != "storefront" {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	s := newTestSigner(t)
	token, err := s.Issue(uuid.New(), "", time.Now().Add(-2*time.Hour), time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := s.Verify(token); !errors.Is(err, jwt.ErrTokenExpired) {
		t.Fatalf("expected expired error, got %v", err)
	}
}

func TestVerifyRejectsForeignIssuerOrKey(t *testing.T) {
	s := newTestSigner(t)
	token, err := s.Issue(uuid.New(), "", time.Now(), time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	for _, cfg := range []config.JWTConfig{
		{Secret: "secret", Issuer: "someone-else"},
		{Secret: "different", Issuer: "storefront"},
	} {
		other, err := NewSigner(cfg)
		if err != nil {
			t.Fatalf("new signer: %v", err)
		}
		if _, err := other.Verify(token); err == nil {
			t.Fatalf("expected %+v to reject token", cfg)
		}
	}
}

func TestVerifyRejectsOtherAlgorithms(t *testing.T) {
	s := newTestSigner(t)
	claims := jwt.RegisteredClaims{
		Issuer:    "storefront",
		Subject:   uuid.NewString(),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := s.Verify(token); err == nil {
		t.Fatal("expected HS512 token to be rejected")
	}
}

func TestVerifyFallsBackToSubject(t *testing.T) {
	s := newTestSigner(t)
	userID := uuid.New()
	claims := jwt.RegisteredClaims{
		Issuer:    "storefront",
		Subject:   userID.String(),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	parsed, err := s.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if parsed.UserID != userID {
		t.Fatalf("expected subject fallback, got %s", parsed.UserID)
	}
}

func TestSignerValidatesInput(t *testing.T) {
	if _, err := NewSigner(config.JWTConfig{Issuer: "x"}); !errors.Is(err, ErrBadConfig) {
		t.Fatalf("expected ErrBadConfig, got %v", err)
	}
	s := newTestSigner(t)
	if _, err := s.Issue(uuid.Nil, "", time.Now(), time.Hour); !errors.Is(err, ErrMissingSubject) {
		t.Fatalf("expected ErrMissingSubject, got %v", err)
	}
	if _, err := s.Issue(uuid.New(), "", time.Now(), 0); err == nil {
		t.Fatal("expected zero ttl to fail")
	}
}
