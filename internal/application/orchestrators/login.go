package orchestrators

import (
	"context"
	"errors"
	"strings"
	"time"

	"clubhouse/internal/domain/account"
	"clubhouse/pkg/logger"
)

// AccountStoreForLogin defines the store interface needed by Login.
type AccountStoreForLogin interface {
	GetByEmail(ctx context.Context, email string) (account.Account, error)
	Save(ctx context.Context, a account.Account) error
}

// LoginInput carries input for the login orchestrator.
type LoginInput struct {
	Email    string
	Password string
}

// LoginDeps holds dependencies for Login.
type LoginDeps struct {
	AccountStore AccountStoreForLogin
	Now          func() time.Time
}

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountLocked      = errors.New("account is locked due to too many failed attempts")
)

// ExecuteLogin validates credentials and returns the account for session creation.
// PRE: Valid email and password provided
// POST: Returns the account on success, records failed login on failure
// INVARIANT: Account must not be locked
func ExecuteLogin(ctx context.Context, input LoginInput, deps LoginDeps) (account.Account, error) {
	email := strings.TrimSpace(input.Email)
	if email == "" || input.Password == "" {
		return account.Account{}, ErrInvalidCredentials
	}
	now := clock(deps.Now)

	acct, err := deps.AccountStore.GetByEmail(ctx, email)
	if err != nil {
		logger.Info("auth_event", "event", "login_failed", "email", email, "reason", "not_found")
		return account.Account{}, ErrInvalidCredentials
	}

	if acct.IsLocked(now) {
		logger.Info("auth_event", "event", "login_blocked", "email", email, "reason", "locked")
		return account.Account{}, ErrAccountLocked
	}

	if err := acct.CheckPassword(input.Password); err != nil {
		acct.RecordFailedLogin(now)
		if saveErr := deps.AccountStore.Save(ctx, acct); saveErr != nil {
			logger.Error("auth_event_save_failed", "email", email, "error", saveErr)
		}
		logger.Info("auth_event", "event", "login_failed", "email", email, "reason", "wrong_password", "failed_logins", acct.FailedLogins)
		return account.Account{}, ErrInvalidCredentials
	}

	if acct.FailedLogins > 0 || !acct.LockedUntil.IsZero() {
		acct.ResetFailedLogins()
		if saveErr := deps.AccountStore.Save(ctx, acct); saveErr != nil {
			logger.Error("auth_event_save_failed", "email", email, "error", saveErr)
		}
	}

	logger.Info("auth_event", "event", "login_success", "email", email, "role", acct.Role)
	return acct, nil
}
