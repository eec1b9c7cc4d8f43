package fine

import (
	"fmt"

	"clubhouse/internal/domain/account"
)

// Action names a single-fine operation guarded by the gate.
type Action string

const (
	ActionRequestPayment Action = "request_payment"
	ActionApprove        Action = "approve"
	ActionReject         Action = "reject"
	ActionDelete         Action = "delete"
)

// Scope describes which fines an actor may see. An empty field means no restriction on it.
type Scope struct {
	ReceiverID string
	CreatorID  string
}

// VisibilityFor returns the read scope for an actor.
// Players see fines they receive, managers and staff see fines they issued, admins see everything.
func VisibilityFor(actor account.Actor) (Scope, error) {
	switch actor.Role {
	case account.RoleAdmin:
		return Scope{}, nil
	case account.RoleManager, account.RoleStaff:
		return Scope{CreatorID: actor.ID}, nil
	case account.RolePlayer:
		return Scope{ReceiverID: actor.ID}, nil
	default:
		return Scope{}, forbidden(actor, "read fines")
	}
}

// Contains reports whether f falls inside the scope.
func (s Scope) Contains(f *Fine) bool {
	if s.ReceiverID != "" && f.ReceiverID != s.ReceiverID {
		return false
	}
	if s.CreatorID != "" && f.CreatorID != s.CreatorID {
		return false
	}
	return true
}

// CanView reports whether the actor may see f at all.
func CanView(actor account.Actor, f *Fine) bool {
	scope, err := VisibilityFor(actor)
	if err != nil {
		return false
	}
	return scope.Contains(f)
}

// CanCreate allows managers and staff to issue fines.
func CanCreate(actor account.Actor) error {
	switch actor.Role {
	case account.RoleManager, account.RoleStaff:
		return nil
	case account.RoleAdmin, account.RolePlayer:
		return forbidden(actor, "create fines")
	default:
		return forbidden(actor, "create fines")
	}
}

// CanExport allows everyone except players to export.
func CanExport(actor account.Actor) error {
	switch actor.Role {
	case account.RoleAdmin, account.RoleManager, account.RoleStaff:
		return nil
	case account.RolePlayer:
		return forbidden(actor, "export fines")
	default:
		return forbidden(actor, "export fines")
	}
}

// CanReset allows only admins to run bulk resets.
func CanReset(actor account.Actor) error {
	switch actor.Role {
	case account.RoleAdmin:
		return nil
	case account.RoleManager, account.RoleStaff, account.RolePlayer:
		return forbidden(actor, "reset fines")
	default:
		return forbidden(actor, "reset fines")
	}
}

// Authorize checks a single-fine action.
// Returns ErrNotFound when the actor cannot see f, so existence is not leaked,
// and ErrForbidden when the actor can see f but the rule denies the action.
// INVARIANT: never mutates f
func Authorize(actor account.Actor, f *Fine, action Action) error {
	if !CanView(actor, f) {
		return ErrNotFound
	}
	var allowed bool
	switch action {
	case ActionRequestPayment:
		allowed = isPlayer(actor.Role) && actor.ID == f.ReceiverID
	case ActionApprove, ActionReject:
		allowed = isIssuer(actor.Role) && actor.ID == f.CreatorID
	case ActionDelete:
		allowed = actor.Role == account.RoleAdmin || (isIssuer(actor.Role) && actor.ID == f.CreatorID)
	default:
		return fmt.Errorf("%w: unknown action %q", ErrForbidden, action)
	}
	if !allowed {
		return forbidden(actor, string(action))
	}
	return nil
}

func isIssuer(r account.Role) bool {
	switch r {
	case account.RoleManager, account.RoleStaff:
		return true
	case account.RoleAdmin, account.RolePlayer:
		return false
	default:
		return false
	}
}

func isPlayer(r account.Role) bool {
	return r == account.RolePlayer
}

func forbidden(actor account.Actor, what string) error {
	return fmt.Errorf("%w: role %q may not %s", ErrForbidden, actor.Role, what)
}
