// Package auth verifies the HS256 bearer tokens merchants present to the API.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/config"
)

var (
	ErrMissingSubject = errors.New("auth: token carries no user id")
	ErrBadConfig      = errors.New("auth: jwt secret and issuer are required")
)

// Claims is what the identity provider puts in a merchant token. Ownership of a
// merchant is checked per request, so only the user id matters here.
type Claims struct {
	UserID uuid.UUID `json:"user_id"`
	Email  string    `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Signer holds the shared HS256 key. The API only verifies; Issue exists for
// local tooling and tests.
type Signer struct {
	key    []byte
	issuer string
	parser *jwt.Parser
}

func NewSigner(cfg config.JWTConfig) (*Signer, error) {
	secret, issuer := strings.TrimSpace(cfg.Secret), strings.TrimSpace(cfg.Issuer)
	if secret == "" || issuer == "" {
		return nil, ErrBadConfig
	}
	return &Signer{
		key:    []byte(secret),
		issuer: issuer,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(issuer),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(5*time.Second),
		),
	}, nil
}

func (s *Signer) Issue(userID uuid.UUID, email string, now time.Time, ttl time.Duration) (string, error) {
	if userID == uuid.Nil {
		return "", ErrMissingSubject
	}
	if ttl <= 0 {
		return "", fmt.Errorf("auth: ttl must be positive, got %s", ttl)
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.issuer,
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	return token.SignedString(s.key)
}

// Verify checks signature, issuer and expiry. Tokens that only carry the user id
// in "sub" are accepted.
func (s *Signer) Verify(raw string) (*Claims, error) {
	var claims Claims
	if _, err := s.parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return s.key, nil
	}); err != nil {
		return nil, err
	}
	if claims.UserID != uuid.Nil {
		return &claims, nil
	}
	id, err := uuid.Parse(claims.Subject)
	if err != nil || id == uuid.Nil {
		return nil, ErrMissingSubject
	}
	claims.UserID = id
	return &claims, nil
}
