package fine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"clubhouse/internal/adapters/storage"
	domain "clubhouse/internal/domain/fine"
)

const pgFineColumns = `id, reason, amount::text, creator_id, receiver_id, is_active, is_paid, payment_requested,
	expiration_date, created_at, updated_at, paid_at, last_rejected_at, rejection_count, version`

// PostgresStore implements Store using a pgx pool.
type PostgresStore struct {
	q storage.Querier
}

// NewPostgresStore creates a new Postgres-backed fine store.
func NewPostgresStore(q storage.Querier) *PostgresStore {
	return &PostgresStore{q: q}
}

// GetByID retrieves a fine by its ID.
// POST: Returns the fine or domain.ErrNotFound
func (s *PostgresStore) GetByID(ctx context.Context, id string) (domain.Fine, error) {
	row := s.q.QueryRow(ctx, "SELECT "+pgFineColumns+" FROM fine WHERE id = $1", id)
	f, err := scanPgFine(row.Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Fine{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Fine{}, fmt.Errorf("get fine %s: %w", id, err)
	}
	return f, nil
}

// Create inserts a new fine at the end of store order.
func (s *PostgresStore) Create(ctx context.Context, f domain.Fine) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO fine (id, reason, amount, creator_id, receiver_id, is_active, is_paid, payment_requested,
		   expiration_date, created_at, updated_at, paid_at, last_rejected_at, rejection_count, version)
		 VALUES ($1, $2, $3::numeric, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		f.ID, f.Reason, f.Amount.StringFixed(2), f.CreatorID, f.ReceiverID,
		f.IsActive, f.IsPaid, f.PaymentRequested,
		storage.NullTime(f.ExpirationDate), f.CreatedAt.UTC(), f.UpdatedAt.UTC(),
		storage.NullTime(f.PaidAt), storage.NullTime(f.LastRejectedAt),
		f.RejectionCount, f.Version,
	)
	if err != nil {
		return fmt.Errorf("insert fine %s: %w", f.ID, err)
	}
	return nil
}

// Update locks the row, compares versions and writes the mutable fields.
// PRE: f.Version is the version that was read
// POST: Returns f with Version+1, or domain.ErrNotFound / domain.ErrStoreConflict with no write
func (s *PostgresStore) Update(ctx context.Context, f domain.Fine) (domain.Fine, error) {
	err := storage.WithTx(ctx, s.q, func(tx pgx.Tx) error {
		var current int
		err := tx.QueryRow(ctx, "SELECT version FROM fine WHERE id = $1 FOR UPDATE", f.ID).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lock fine %s: %w", f.ID, err)
		}
		if current != f.Version {
			return domain.ErrStoreConflict
		}
		_, err = tx.Exec(ctx,
			`UPDATE fine SET
			   reason = $1, amount = $2::numeric, is_active = $3, is_paid = $4, payment_requested = $5,
			   expiration_date = $6, updated_at = $7, paid_at = $8, last_rejected_at = $9,
			   rejection_count = $10, version = version + 1
			 WHERE id = $11`,
			f.Reason, f.Amount.StringFixed(2), f.IsActive, f.IsPaid, f.PaymentRequested,
			storage.NullTime(f.ExpirationDate), f.UpdatedAt.UTC(),
			storage.NullTime(f.PaidAt), storage.NullTime(f.LastRejectedAt),
			f.RejectionCount, f.ID,
		)
		if err != nil {
			return fmt.Errorf("update fine %s: %w", f.ID, err)
		}
		return nil
	})
	if err != nil {
		return domain.Fine{}, err
	}
	f.Version++
	return f, nil
}

// Delete removes a single fine.
// POST: Returns domain.ErrNotFound if it did not exist
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	tag, err := s.q.Exec(ctx, "DELETE FROM fine WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete fine %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// DeleteAll removes every fine in one statement.
func (s *PostgresStore) DeleteAll(ctx context.Context) ([]domain.Fine, error) {
	return s.deleteReturning(ctx, "DELETE FROM fine")
}

// DeleteByReceiver removes every fine for receiverID in one statement.
func (s *PostgresStore) DeleteByReceiver(ctx context.Context, receiverID string) ([]domain.Fine, error) {
	return s.deleteReturning(ctx, "DELETE FROM fine WHERE receiver_id = $1", receiverID)
}

// deleteReturning orders the removed rows by seq through a CTE so callers see store order.
func (s *PostgresStore) deleteReturning(ctx context.Context, del string, args ...any) ([]domain.Fine, error) {
	query := "WITH removed AS (" + del + " RETURNING seq, " + pgFineColumns + ") " +
		"SELECT " + strings.ReplaceAll(pgFineColumns, "amount::text", "amount") + " FROM removed ORDER BY seq"
	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("delete fines: %w", err)
	}
	return collectPgFines(rows)
}

// List returns fines matching the filter in store order.
func (s *PostgresStore) List(ctx context.Context, filter ListFilter) ([]domain.Fine, error) {
	var where []string
	var args []any
	if filter.ReceiverID != "" {
		args = append(args, filter.ReceiverID)
		where = append(where, fmt.Sprintf("receiver_id = $%d", len(args)))
	}
	if filter.CreatorID != "" {
		args = append(args, filter.CreatorID)
		where = append(where, fmt.Sprintf("creator_id = $%d", len(args)))
	}
	query := "SELECT " + pgFineColumns + " FROM fine"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY seq ASC"

	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list fines: %w", err)
	}
	return collectPgFines(rows)
}

func collectPgFines(rows pgx.Rows) ([]domain.Fine, error) {
	defer rows.Close()
	var fines []domain.Fine
	for rows.Next() {
		f, err := scanPgFine(rows.Scan)
		if err != nil {
			return nil, err
		}
		fines = append(fines, f)
	}
	return fines, rows.Err()
}

func scanPgFine(scan func(dest ...any) error) (domain.Fine, error) {
	var f domain.Fine
	var amount string
	var expiration, paid, rejected *time.Time
	err := scan(
		&f.ID, &f.Reason, &amount, &f.CreatorID, &f.ReceiverID,
		&f.IsActive, &f.IsPaid, &f.PaymentRequested,
		&expiration, &f.CreatedAt, &f.UpdatedAt, &paid, &rejected,
		&f.RejectionCount, &f.Version,
	)
	if err != nil {
		return domain.Fine{}, err
	}
	if f.Amount, err = decimal.NewFromString(amount); err != nil {
		return domain.Fine{}, fmt.Errorf("fine %s amount: %w", f.ID, err)
	}
	f.ExpirationDate = storage.FromNullTime(expiration)
	f.CreatedAt = f.CreatedAt.UTC()
	f.UpdatedAt = f.UpdatedAt.UTC()
	f.PaidAt = storage.FromNullTime(paid)
	f.LastRejectedAt = storage.FromNullTime(rejected)
	return f, nil
}
