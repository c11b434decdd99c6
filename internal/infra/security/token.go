package security

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"roomstay/internal/domain/identity"
)

var (
	ErrSecretMissing = errors.New("token: signing secret missing")
	ErrNoSubject     = errors.New("token: subject claim missing")
)

// Claims is the token body issued by the identity provider.
type Claims struct {
	Email string   `json:"email,omitempty"`
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// JWTVerifier accepts HS256 bearer tokens.
type JWTVerifier struct {
	Secret []byte
	Issuer string
	Leeway time.Duration
}

func (v JWTVerifier) Verify(ctx context.Context, raw string) (identity.Principal, error) {
	if len(v.Secret) == 0 {
		return identity.Principal{}, ErrSecretMissing
	}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithLeeway(v.Leeway)}
	if v.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.Issuer))
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return v.Secret, nil
	}, opts...)
	if err != nil {
		return identity.Principal{}, fmt.Errorf("token: %w", err)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return identity.Principal{}, ErrNoSubject
	}
	p := identity.Principal{ID: claims.Subject, Email: claims.Email}
	for _, raw := range claims.Roles {
		if role, ok := identity.ParseRole(raw); ok {
			p.Roles = append(p.Roles, role)
		}
	}
	return p, nil
}

// Sign issues a token for p. Used by local tooling and tests; production
// tokens come from the identity provider.
func (v JWTVerifier) Sign(p identity.Principal, ttl time.Duration) (string, error) {
	if len(v.Secret) == 0 {
		return "", ErrSecretMissing
	}
	now := time.Now()
	claims := Claims{
		Email: p.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID,
			Issuer:    v.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	for _, r := range p.Roles {
		claims.Roles = append(claims.Roles, string(r))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.Secret)
}
