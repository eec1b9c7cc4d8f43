package fine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clubhouse/internal/domain/account"
	"clubhouse/internal/domain/fine"
)

var (
	admin    = account.Actor{ID: "a1", Role: account.RoleAdmin}
	manager  = account.Actor{ID: "m1", Role: account.RoleManager}
	staff    = account.Actor{ID: "s1", Role: account.RoleStaff}
	receiver = account.Actor{ID: "p1", Role: account.RolePlayer}
	player2  = account.Actor{ID: "p2", Role: account.RolePlayer}
	unknown  = account.Actor{ID: "x1", Role: account.Role("coach")}
)

func TestCanCreate(t *testing.T) {
	assert.NoError(t, fine.CanCreate(manager))
	assert.NoError(t, fine.CanCreate(staff))
	assert.ErrorIs(t, fine.CanCreate(admin), fine.ErrForbidden)
	assert.ErrorIs(t, fine.CanCreate(receiver), fine.ErrForbidden)
	assert.ErrorIs(t, fine.CanCreate(unknown), fine.ErrForbidden)
}

func TestCanExportAndReset(t *testing.T) {
	for _, a := range []account.Actor{admin, manager, staff} {
		assert.NoError(t, fine.CanExport(a), a.Role)
	}
	assert.ErrorIs(t, fine.CanExport(receiver), fine.ErrForbidden)

	assert.NoError(t, fine.CanReset(admin))
	for _, a := range []account.Actor{manager, staff, receiver, unknown} {
		assert.ErrorIs(t, fine.CanReset(a), fine.ErrForbidden, a.Role)
	}
}

func TestVisibilityFor(t *testing.T) {
	f := newFine(t, nil) // creator m1, receiver p1

	tests := []struct {
		actor account.Actor
		sees  bool
	}{
		{admin, true},
		{manager, true},
		{staff, false},
		{receiver, true},
		{player2, false},
		{unknown, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.sees, fine.CanView(tt.actor, &f), "%s/%s", tt.actor.Role, tt.actor.ID)
	}

	scope, err := fine.VisibilityFor(receiver)
	require.NoError(t, err)
	assert.Equal(t, fine.Scope{ReceiverID: "p1"}, scope)

	_, err = fine.VisibilityFor(unknown)
	assert.ErrorIs(t, err, fine.ErrForbidden)
}

func TestAuthorize(t *testing.T) {
	f := newFine(t, nil)
	otherManager := account.Actor{ID: "m2", Role: account.RoleManager}

	tests := []struct {
		name   string
		actor  account.Actor
		action fine.Action
		want   error
	}{
		{"receiver requests", receiver, fine.ActionRequestPayment, nil},
		{"creator cannot request", manager, fine.ActionRequestPayment, fine.ErrForbidden},
		{"other player hidden", player2, fine.ActionRequestPayment, fine.ErrNotFound},
		{"creator approves", manager, fine.ActionApprove, nil},
		{"creator rejects", manager, fine.ActionReject, nil},
		{"receiver cannot approve", receiver, fine.ActionApprove, fine.ErrForbidden},
		{"other manager hidden", otherManager, fine.ActionApprove, fine.ErrNotFound},
		{"admin cannot approve", admin, fine.ActionApprove, fine.ErrForbidden},
		{"creator deletes", manager, fine.ActionDelete, nil},
		{"admin deletes", admin, fine.ActionDelete, nil},
		{"receiver cannot delete", receiver, fine.ActionDelete, fine.ErrForbidden},
		{"unknown action", manager, fine.Action("pardon"), fine.ErrForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := f
			err := fine.Authorize(tt.actor, &f, tt.action)
			if tt.want == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.want)
			}
			assert.Equal(t, before, f)
		})
	}
}
