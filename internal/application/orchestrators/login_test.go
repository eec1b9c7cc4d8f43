package orchestrators

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clubhouse/internal/domain/account"
)

func loginStore(t *testing.T) *memAccountStore {
	t.Helper()
	acct := account.Account{ID: "m1", Email: "morgan@example.com", DisplayName: "Morgan", Role: account.RoleManager}
	require.NoError(t, acct.SetPassword("correct horse battery"))
	return newMemAccountStore(acct)
}

func TestLogin_Success(t *testing.T) {
	store := loginStore(t)
	acct, err := ExecuteLogin(context.Background(), LoginInput{Email: " Morgan@Example.com ", Password: "correct horse battery"},
		LoginDeps{AccountStore: store, Now: fixedNow})
	require.NoError(t, err)
	assert.Equal(t, "m1", acct.ID)
	assert.Equal(t, account.Actor{ID: "m1", Role: account.RoleManager}, acct.Actor())
	assert.Zero(t, store.saves, "clean login does not write")
}

func TestLogin_Failures(t *testing.T) {
	store := loginStore(t)
	deps := LoginDeps{AccountStore: store, Now: fixedNow}
	ctx := context.Background()

	_, err := ExecuteLogin(ctx, LoginInput{Email: "", Password: "x"}, deps)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = ExecuteLogin(ctx, LoginInput{Email: "nobody@example.com", Password: "x"}, deps)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = ExecuteLogin(ctx, LoginInput{Email: "morgan@example.com", Password: "wrong"}, deps)
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	acct, _ := store.GetByID(ctx, "m1")
	assert.Equal(t, 1, acct.FailedLogins)
}

func TestLogin_Lockout(t *testing.T) {
	store := loginStore(t)
	ctx := context.Background()
	now := fixedTime
	deps := LoginDeps{AccountStore: store, Now: func() time.Time { return now }}

	for i := 0; i < account.MaxFailedLogins; i++ {
		_, err := ExecuteLogin(ctx, LoginInput{Email: "morgan@example.com", Password: "wrong"}, deps)
		require.ErrorIs(t, err, ErrInvalidCredentials)
	}
	_, err := ExecuteLogin(ctx, LoginInput{Email: "morgan@example.com", Password: "correct horse battery"}, deps)
	assert.ErrorIs(t, err, ErrAccountLocked)

	now = now.Add(account.LockoutDuration + time.Second)
	_, err = ExecuteLogin(ctx, LoginInput{Email: "morgan@example.com", Password: "correct horse battery"}, deps)
	require.NoError(t, err)
	acct, _ := store.GetByID(ctx, "m1")
	assert.Zero(t, acct.FailedLogins)
	assert.True(t, acct.LockedUntil.IsZero())
}
