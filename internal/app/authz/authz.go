// Package authz holds the role and ownership rules for booking operations.
package authz

import (
	"context"

	domainbooking "roomstay/internal/domain/booking"
	"roomstay/internal/domain/identity"
)

// Guarded is implemented by commands and queries issued on behalf of a caller.
type Guarded interface {
	Caller() identity.Principal
	// RequiredRoles lists roles of which the caller needs at least one.
	// Administrators pass every check; an empty list admits any caller.
	RequiredRoles() []identity.Role
}

// Authorizer is the bus-level check: authentication and coarse roles. Ownership
// is decided by the handlers once the aggregate is loaded.
type Authorizer struct{}

func (Authorizer) Authorize(ctx context.Context, message any) error {
	g, ok := message.(Guarded)
	if !ok {
		return nil
	}
	p := g.Caller()
	if !p.Authenticated() {
		return identity.ErrUnauthenticated
	}
	if p.IsAdmin() {
		return nil
	}
	roles := g.RequiredRoles()
	if len(roles) == 0 {
		return nil
	}
	for _, r := range roles {
		if p.HasRole(r) {
			return nil
		}
	}
	return identity.ErrForbidden.WithMessage("identity: role %s required", roles[0])
}

type Action string

const (
	ActionConfirm  Action = "confirm"
	ActionReject   Action = "reject"
	ActionCancel   Action = "cancel"
	ActionCheckIn  Action = "check_in"
	ActionCheckOut Action = "check_out"
)

func ParseAction(raw string) (Action, bool) {
	switch a := Action(raw); a {
	case ActionConfirm, ActionReject, ActionCancel, ActionCheckIn, ActionCheckOut:
		return a, true
	}
	return "", false
}

// ActorFor resolves which role the caller acts in for a transition on b.
// The zero Actor means the caller may not perform it.
func ActorFor(p identity.Principal, b *domainbooking.Booking, action Action) domainbooking.Actor {
	if p.IsAdmin() {
		return domainbooking.ActorAdmin
	}
	if isOwner(p, b) {
		return domainbooking.ActorOwner
	}
	if action == ActionCancel && isRequester(p, b) {
		return domainbooking.ActorRequester
	}
	return ""
}

func CanView(p identity.Principal, b *domainbooking.Booking) bool {
	return p.IsAdmin() || isOwner(p, b) || isRequester(p, b)
}

// CanPay admits the requester who made the booking and administrators.
func CanPay(p identity.Principal, b *domainbooking.Booking) bool {
	return p.IsAdmin() || isRequester(p, b)
}

// CanSeeGuestDocument decides whether the id-document is shown unmasked.
func CanSeeGuestDocument(p identity.Principal, b *domainbooking.Booking) bool {
	return p.IsAdmin() || isRequester(p, b)
}

func isOwner(p identity.Principal, b *domainbooking.Booking) bool {
	return p.ID != "" && p.ID == b.OwnerID
}

func isRequester(p identity.Principal, b *domainbooking.Booking) bool {
	return p.ID != "" && p.ID == b.RequesterID
}
