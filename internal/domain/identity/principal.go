// Package identity models the authenticated caller supplied by the identity
// provider.
package identity

import (
	"context"
	"strings"

	"roomstay/internal/domain/shared/errs"
)

type Role string

const (
	RoleRequester Role = "requester"
	RoleOwner     Role = "listing-owner"
	RoleAdmin     Role = "administrator"
)

var (
	ErrUnauthenticated = errs.New(errs.KindAuthorization, "unauthenticated", "identity: authentication required")
	ErrForbidden       = errs.Forbidden("forbidden", "identity: caller is not allowed to perform this operation")
)

type Principal struct {
	ID    string
	Email string
	Roles []Role
}

func (p Principal) Authenticated() bool {
	return strings.TrimSpace(p.ID) != ""
}

func (p Principal) HasRole(role Role) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func (p Principal) IsAdmin() bool {
	return p.HasRole(RoleAdmin)
}

// ParseRole normalises role names coming from tokens ("owner" and "admin" are
// accepted as aliases).
func ParseRole(raw string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "requester", "renter", "guest":
		return RoleRequester, true
	case "listing-owner", "owner", "host":
		return RoleOwner, true
	case "administrator", "admin":
		return RoleAdmin, true
	default:
		return "", false
	}
}

type ctxKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(Principal)
	if !ok || !p.Authenticated() {
		return Principal{}, false
	}
	return p, true
}
