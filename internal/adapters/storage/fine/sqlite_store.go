package fine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"clubhouse/internal/adapters/storage"
	domain "clubhouse/internal/domain/fine"
)

const fineColumns = `id, reason, amount, creator_id, receiver_id, is_active, is_paid, payment_requested,
	expiration_date, created_at, updated_at, paid_at, last_rejected_at, rejection_count, version`

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db storage.SQLDB
}

// NewSQLiteStore creates a new fine store.
func NewSQLiteStore(db storage.SQLDB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// GetByID retrieves a fine by its ID.
// PRE: id is non-empty
// POST: Returns the fine or domain.ErrNotFound
func (s *SQLiteStore) GetByID(ctx context.Context, id string) (domain.Fine, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+fineColumns+" FROM fine WHERE id = ?", id)
	f, err := scanFine(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Fine{}, domain.ErrNotFound
	}
	return f, err
}

// Create inserts a new fine at the end of store order.
// PRE: f has been validated
// POST: Fine persisted
func (s *SQLiteStore) Create(ctx context.Context, f domain.Fine) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO fine ("+fineColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		f.ID, f.Reason, f.Amount.StringFixed(2), f.CreatorID, f.ReceiverID,
		f.IsActive, f.IsPaid, f.PaymentRequested,
		storage.FormatTime(f.ExpirationDate), storage.FormatTime(f.CreatedAt), storage.FormatTime(f.UpdatedAt),
		storage.FormatTime(f.PaidAt), storage.FormatTime(f.LastRejectedAt),
		f.RejectionCount, f.Version,
	)
	if err != nil {
		return fmt.Errorf("insert fine %s: %w", f.ID, err)
	}
	return nil
}

// Update writes the mutable fields when the stored version matches f.Version.
// PRE: f.Version is the version that was read
// POST: Returns f with Version+1, or domain.ErrNotFound / domain.ErrStoreConflict with no write
func (s *SQLiteStore) Update(ctx context.Context, f domain.Fine) (domain.Fine, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE fine SET
		   reason = ?, amount = ?, is_active = ?, is_paid = ?, payment_requested = ?,
		   expiration_date = ?, updated_at = ?, paid_at = ?, last_rejected_at = ?,
		   rejection_count = ?, version = version + 1
		 WHERE id = ? AND version = ?`,
		f.Reason, f.Amount.StringFixed(2), f.IsActive, f.IsPaid, f.PaymentRequested,
		storage.FormatTime(f.ExpirationDate), storage.FormatTime(f.UpdatedAt),
		storage.FormatTime(f.PaidAt), storage.FormatTime(f.LastRejectedAt),
		f.RejectionCount, f.ID, f.Version,
	)
	if err != nil {
		return domain.Fine{}, fmt.Errorf("update fine %s: %w", f.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.Fine{}, err
	}
	if n == 0 {
		return domain.Fine{}, s.missOrConflict(ctx, f.ID)
	}
	f.Version++
	return f, nil
}

func (s *SQLiteStore) missOrConflict(ctx context.Context, id string) error {
	var one int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM fine WHERE id = ?", id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return err
	}
	return domain.ErrStoreConflict
}

// Delete removes a single fine.
// POST: Returns domain.ErrNotFound if it did not exist
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM fine WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete fine %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// DeleteAll removes every fine in one statement.
// POST: Returns the removed fines in store order
func (s *SQLiteStore) DeleteAll(ctx context.Context) ([]domain.Fine, error) {
	return s.deleteReturning(ctx, "DELETE FROM fine RETURNING seq, "+fineColumns)
}

// DeleteByReceiver removes every fine for receiverID in one statement.
// POST: Returns the removed fines in store order; other receivers untouched
func (s *SQLiteStore) DeleteByReceiver(ctx context.Context, receiverID string) ([]domain.Fine, error) {
	return s.deleteReturning(ctx, "DELETE FROM fine WHERE receiver_id = ? RETURNING seq, "+fineColumns, receiverID)
}

func (s *SQLiteStore) deleteReturning(ctx context.Context, query string, args ...any) ([]domain.Fine, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("delete fines: %w", err)
	}
	defer rows.Close()

	type seqFine struct {
		seq int64
		f   domain.Fine
	}
	var removed []seqFine
	for rows.Next() {
		var seq int64
		f, err := scanFine(func(dest ...any) error {
			return rows.Scan(append([]any{&seq}, dest...)...)
		})
		if err != nil {
			return nil, err
		}
		removed = append(removed, seqFine{seq: seq, f: f})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Slice(removed, func(i, j int) bool { return removed[i].seq < removed[j].seq })

	out := make([]domain.Fine, len(removed))
	for i, r := range removed {
		out[i] = r.f
	}
	return out, nil
}

// List returns fines matching the filter in store order.
func (s *SQLiteStore) List(ctx context.Context, filter ListFilter) ([]domain.Fine, error) {
	var where []string
	var args []any
	if filter.ReceiverID != "" {
		where = append(where, "receiver_id = ?")
		args = append(args, filter.ReceiverID)
	}
	if filter.CreatorID != "" {
		where = append(where, "creator_id = ?")
		args = append(args, filter.CreatorID)
	}
	query := "SELECT " + fineColumns + " FROM fine"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY seq ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list fines: %w", err)
	}
	defer rows.Close()

	var fines []domain.Fine
	for rows.Next() {
		f, err := scanFine(rows.Scan)
		if err != nil {
			return nil, err
		}
		fines = append(fines, f)
	}
	return fines, rows.Err()
}

// scanFine extracts a Fine from a row scanner function.
func scanFine(scan func(dest ...any) error) (domain.Fine, error) {
	var f domain.Fine
	var amount string
	var expiration, created, updated, paid, rejected sql.NullString
	err := scan(
		&f.ID, &f.Reason, &amount, &f.CreatorID, &f.ReceiverID,
		&f.IsActive, &f.IsPaid, &f.PaymentRequested,
		&expiration, &created, &updated, &paid, &rejected,
		&f.RejectionCount, &f.Version,
	)
	if err != nil {
		return domain.Fine{}, err
	}
	if f.Amount, err = decimal.NewFromString(amount); err != nil {
		return domain.Fine{}, fmt.Errorf("fine %s amount: %w", f.ID, err)
	}
	if f.ExpirationDate, err = storage.ParseTime(expiration); err != nil {
		return domain.Fine{}, err
	}
	if f.CreatedAt, err = storage.ParseTime(created); err != nil {
		return domain.Fine{}, err
	}
	if f.UpdatedAt, err = storage.ParseTime(updated); err != nil {
		return domain.Fine{}, err
	}
	if f.PaidAt, err = storage.ParseTime(paid); err != nil {
		return domain.Fine{}, err
	}
	if f.LastRejectedAt, err = storage.ParseTime(rejected); err != nil {
		return domain.Fine{}, err
	}
	return f, nil
}
