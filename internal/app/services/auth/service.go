// Package auth resolves the caller of an API request into a principal. Users
// authenticate with the external identity provider's bearer tokens;
// operators may present a shared admin key instead.
package auth

import (
	"context"
	"log/slog"
	"strings"

	"roomstay/internal/domain/identity"
	"roomstay/internal/domain/shared/errs"
)

var (
	ErrInvalidToken    = errs.New(errs.KindAuthorization, "invalid_token", "auth: bearer token is invalid")
	ErrInvalidAdminKey = errs.New(errs.KindAuthorization, "invalid_admin_key", "auth: admin key rejected")
)

type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

type TokenVerifier interface {
	Verify(ctx context.Context, token string) (identity.Principal, error)
}

type Service struct {
	Tokens       TokenVerifier
	Passwords    PasswordHasher
	AdminKeyHash string
	AdminID      string
	Logger       *slog.Logger
}

type Credentials struct {
	Bearer   string
	AdminKey string
}

func (c Credentials) Empty() bool {
	return strings.TrimSpace(c.Bearer) == "" && strings.TrimSpace(c.AdminKey) == ""
}

// Resolve returns the principal for creds. Empty credentials yield
// identity.ErrUnauthenticated.
func (s *Service) Resolve(ctx context.Context, creds Credentials) (identity.Principal, error) {
	if key := strings.TrimSpace(creds.AdminKey); key != "" {
		return s.resolveAdmin(key)
	}
	token := strings.TrimSpace(creds.Bearer)
	if token == "" {
		return identity.Principal{}, identity.ErrUnauthenticated
	}
	if s.Tokens == nil {
		return identity.Principal{}, ErrInvalidToken.WithMessage("auth: bearer tokens are not accepted")
	}
	p, err := s.Tokens.Verify(ctx, token)
	if err != nil {
		if s.Logger != nil {
			s.Logger.Debug("bearer token rejected", "error", err)
		}
		return identity.Principal{}, ErrInvalidToken.WithCause(err)
	}
	return p, nil
}

func (s *Service) resolveAdmin(key string) (identity.Principal, error) {
	if s.AdminKeyHash == "" || s.Passwords == nil {
		return identity.Principal{}, ErrInvalidAdminKey.WithMessage("auth: admin key access is disabled")
	}
	if err := s.Passwords.Compare(s.AdminKeyHash, key); err != nil {
		if s.Logger != nil {
			s.Logger.Warn("admin key rejected")
		}
		return identity.Principal{}, ErrInvalidAdminKey
	}
	id := s.AdminID
	if id == "" {
		id = "operator"
	}
	return identity.Principal{ID: id, Roles: []identity.Role{identity.RoleAdmin}}, nil
}
