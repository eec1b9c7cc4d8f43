package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"clubhouse/internal/adapters/storage"
	domain "clubhouse/internal/domain/account"
)

const uniqueViolation = "23505"

// PostgresStore implements Store using a pgx pool.
type PostgresStore struct {
	q storage.Querier
}

// NewPostgresStore creates a new Postgres-backed AccountStore.
func NewPostgresStore(q storage.Querier) *PostgresStore {
	return &PostgresStore{q: q}
}

// GetByID retrieves an Account by its ID.
// PRE: id is non-empty
// POST: Returns the entity or domain.ErrNotFound
func (s *PostgresStore) GetByID(ctx context.Context, id string) (domain.Account, error) {
	row := s.q.QueryRow(ctx, "SELECT "+accountColumns+" FROM account WHERE id = $1", id)
	return scanPgOne(row)
}

// GetByEmail retrieves an Account by email, case-insensitively.
func (s *PostgresStore) GetByEmail(ctx context.Context, email string) (domain.Account, error) {
	row := s.q.QueryRow(ctx, "SELECT "+accountColumns+" FROM account WHERE lower(email) = lower($1)", strings.TrimSpace(email))
	return scanPgOne(row)
}

// Save persists an Account (insert or update).
// POST: a taken email returns domain.ErrDuplicateEmail
func (s *PostgresStore) Save(ctx context.Context, entity domain.Account) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO account (`+accountColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO UPDATE SET
		   email = EXCLUDED.email, display_name = EXCLUDED.display_name,
		   password_hash = EXCLUDED.password_hash, role = EXCLUDED.role,
		   failed_logins = EXCLUDED.failed_logins, locked_until = EXCLUDED.locked_until`,
		entity.ID,
		entity.Email,
		entity.DisplayName,
		entity.PasswordHash,
		string(entity.Role),
		entity.CreatedAt.UTC(),
		entity.FailedLogins,
		storage.NullTime(entity.LockedUntil),
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return domain.ErrDuplicateEmail
	}
	if err != nil {
		return fmt.Errorf("save account %s: %w", entity.ID, err)
	}
	return nil
}

// List retrieves Accounts based on the filter, ordered by display name.
func (s *PostgresStore) List(ctx context.Context, filter ListFilter) ([]domain.Account, error) {
	var b strings.Builder
	var args []any

	b.WriteString("SELECT " + accountColumns + " FROM account")
	if filter.Role != "" {
		args = append(args, string(filter.Role))
		fmt.Fprintf(&b, " WHERE role = $%d", len(args))
	}
	b.WriteString(" ORDER BY lower(display_name), id")
	if filter.Limit > 0 {
		args = append(args, filter.Limit, filter.Offset)
		fmt.Fprintf(&b, " LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}

	rows, err := s.q.Query(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return collectPg(rows)
}

// ListByIDs returns the accounts whose ids are in ids; unknown ids are skipped.
func (s *PostgresStore) ListByIDs(ctx context.Context, ids []string) ([]domain.Account, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.q.Query(ctx, "SELECT "+accountColumns+" FROM account WHERE id = ANY($1) ORDER BY id", ids)
	if err != nil {
		return nil, fmt.Errorf("list accounts by id: %w", err)
	}
	return collectPg(rows)
}

// Count returns the total number of accounts.
func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var count int
	err := s.q.QueryRow(ctx, "SELECT COUNT(*) FROM account").Scan(&count)
	return count, err
}

func scanPgOne(row pgx.Row) (domain.Account, error) {
	entity, err := scanPgAccount(row.Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Account{}, domain.ErrNotFound
	}
	return entity, err
}

func collectPg(rows pgx.Rows) ([]domain.Account, error) {
	defer rows.Close()
	var results []domain.Account
	for rows.Next() {
		entity, err := scanPgAccount(rows.Scan)
		if err != nil {
			return nil, err
		}
		results = append(results, entity)
	}
	return results, rows.Err()
}

func scanPgAccount(scan func(dest ...any) error) (domain.Account, error) {
	var entity domain.Account
	var role string
	var lockedUntil *time.Time
	err := scan(
		&entity.ID,
		&entity.Email,
		&entity.DisplayName,
		&entity.PasswordHash,
		&role,
		&entity.CreatedAt,
		&entity.FailedLogins,
		&lockedUntil,
	)
	if err != nil {
		return domain.Account{}, err
	}
	entity.Role = domain.Role(role)
	entity.CreatedAt = entity.CreatedAt.UTC()
	entity.LockedUntil = storage.FromNullTime(lockedUntil)
	return entity, nil
}
