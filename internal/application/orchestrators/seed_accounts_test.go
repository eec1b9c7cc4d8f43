package orchestrators

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clubhouse/internal/domain/account"
)

func TestSeedAccounts_AdminOnly(t *testing.T) {
	store := newMemAccountStore()
	n, err := ExecuteSeedAccounts(context.Background(), SeedAccountsInput{
		AdminEmail:    "admin@clubhouse.local",
		AdminPassword: "a long admin password",
	}, SeedAccountsDeps{AccountStore: store, Now: fixedNow})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	acct, err := store.GetByEmail(context.Background(), "admin@clubhouse.local")
	require.NoError(t, err)
	assert.Equal(t, account.RoleAdmin, acct.Role)
	assert.Equal(t, fixedTime, acct.CreatedAt)
	assert.NoError(t, acct.CheckPassword("a long admin password"))
}

func TestSeedAccounts_DemoIsIdempotent(t *testing.T) {
	store := newMemAccountStore()
	input := SeedAccountsInput{AdminEmail: "admin@clubhouse.local", AdminPassword: "a long admin password", Demo: true}
	deps := SeedAccountsDeps{AccountStore: store, Now: fixedNow}

	n, err := ExecuteSeedAccounts(context.Background(), input, deps)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, []string{
		"admin@clubhouse.local", "manager@clubhouse.local", "pat@clubhouse.local",
		"riley@clubhouse.local", "staff@clubhouse.local",
	}, store.emails())

	n, err = ExecuteSeedAccounts(context.Background(), input, deps)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSeedAccounts_WeakAdminPassword(t *testing.T) {
	_, err := ExecuteSeedAccounts(context.Background(), SeedAccountsInput{
		AdminEmail:    "admin@clubhouse.local",
		AdminPassword: "short",
	}, SeedAccountsDeps{AccountStore: newMemAccountStore()})
	assert.ErrorIs(t, err, account.ErrPasswordTooShort)
}
