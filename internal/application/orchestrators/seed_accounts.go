package orchestrators

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"clubhouse/internal/domain/account"
	"clubhouse/pkg/logger"
)

// SeedAccountsDeps holds stores needed for account seeding.
type SeedAccountsDeps struct {
	AccountStore seedAccountStore
	Now          func() time.Time
}

type seedAccountStore interface {
	Save(ctx context.Context, a account.Account) error
	GetByEmail(ctx context.Context, email string) (account.Account, error)
}

// SeedAccountsInput configures which accounts are ensured.
type SeedAccountsInput struct {
	AdminEmail    string
	AdminPassword string
	Demo          bool // add a manager, a staff member and two players
}

// DemoPassword is shared by the demo accounts seeded outside production.
const DemoPassword = "clubhouse demo password"

// seedAccountDef defines a single account to seed.
type seedAccountDef struct {
	Email       string
	Password    string
	Role        account.Role
	DisplayName string
}

// demoAccounts returns the accounts seeded for local use.
func demoAccounts() []seedAccountDef {
	return []seedAccountDef{
		{Email: "manager@clubhouse.local", Password: DemoPassword, Role: account.RoleManager, DisplayName: "Morgan Manager"},
		{Email: "staff@clubhouse.local", Password: DemoPassword, Role: account.RoleStaff, DisplayName: "Sam Staff"},
		{Email: "pat@clubhouse.local", Password: DemoPassword, Role: account.RolePlayer, DisplayName: "Pat Player"},
		{Email: "riley@clubhouse.local", Password: DemoPassword, Role: account.RolePlayer, DisplayName: "Riley Player"},
	}
}

// ExecuteSeedAccounts creates the admin and, optionally, demo accounts if they don't already exist.
// It is idempotent and skips accounts that already exist (checked by email).
// PRE: Database is migrated
// POST: Admin account exists; demo accounts exist when requested
func ExecuteSeedAccounts(ctx context.Context, input SeedAccountsInput, deps SeedAccountsDeps) (int, error) {
	defs := []seedAccountDef{{
		Email:       input.AdminEmail,
		Password:    input.AdminPassword,
		Role:        account.RoleAdmin,
		DisplayName: "Administrator",
	}}
	if input.Demo {
		defs = append(defs, demoAccounts()...)
	}

	now := clock(deps.Now)
	created := 0
	for _, def := range defs {
		_, err := deps.AccountStore.GetByEmail(ctx, def.Email)
		if err == nil {
			continue
		}
		if !errors.Is(err, account.ErrNotFound) {
			return created, fmt.Errorf("seed account %s: lookup: %w", def.Email, err)
		}

		acct := account.Account{
			ID:          uuid.New().String(),
			Email:       def.Email,
			DisplayName: def.DisplayName,
			Role:        def.Role,
			CreatedAt:   now,
		}
		if err := acct.Validate(); err != nil {
			return created, fmt.Errorf("seed account %s: %w", def.Email, err)
		}
		if err := acct.SetPassword(def.Password); err != nil {
			return created, fmt.Errorf("seed account %s: set password: %w", def.Email, err)
		}
		if err := deps.AccountStore.Save(ctx, acct); err != nil {
			return created, fmt.Errorf("seed account %s: save: %w", def.Email, err)
		}
		created++
		logger.Info("seed_event", "event", "account_created", "email", def.Email, "role", def.Role)
	}

	if created > 0 {
		logger.Info("seed_event", "event", "accounts_seeded", "created", created)
	}
	return created, nil
}
