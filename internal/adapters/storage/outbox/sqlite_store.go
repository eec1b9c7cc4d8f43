package outbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"clubhouse/internal/adapters/storage"
	domain "clubhouse/internal/domain/outbox"
)

const entryColumns = `id, action_type, ref_id, payload, status, attempts, max_attempts,
	last_attempted_at, created_at, external_id, error_message, next_attempt_at`

// dueLayout is fixed-width UTC so next_attempt_at compares correctly as text.
const dueLayout = "2006-01-02T15:04:05.000000000Z"

// abandonBatch keeps each IN list well under SQLite's bound-variable limit.
const abandonBatch = 500

func formatDue(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dueLayout)
}

// SQLiteStore implements the outbox Store interface using SQLite.
type SQLiteStore struct {
	db storage.SQLDB
}

// NewSQLiteStore creates a new outbox store.
func NewSQLiteStore(db storage.SQLDB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// GetByID retrieves an outbox entry by its ID.
// PRE: id is non-empty
// POST: Returns the entry or domain.ErrNotFound
func (s *SQLiteStore) GetByID(ctx context.Context, id string) (domain.Entry, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+entryColumns+" FROM outbox WHERE id = ?", id)
	e, err := scanEntry(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Entry{}, domain.ErrNotFound
	}
	return e, err
}

// Save persists an outbox entry to the database.
// PRE: entity has been validated
// POST: Entity is persisted (insert or update)
func (s *SQLiteStore) Save(ctx context.Context, e domain.Entry) error {
	lastAttemptedAt := ""
	if !e.LastAttemptedAt.IsZero() {
		lastAttemptedAt = e.LastAttemptedAt.UTC().Format(storage.TimeLayout)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO outbox (`+entryColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   action_type=excluded.action_type, ref_id=excluded.ref_id, payload=excluded.payload,
		   status=excluded.status, attempts=excluded.attempts, max_attempts=excluded.max_attempts,
		   last_attempted_at=excluded.last_attempted_at, external_id=excluded.external_id,
		   error_message=excluded.error_message, next_attempt_at=excluded.next_attempt_at`,
		e.ID, e.ActionType, e.RefID, e.Payload, e.Status, e.Attempts, e.MaxAttempts,
		lastAttemptedAt, e.CreatedAt.UTC().Format(storage.TimeLayout), e.ExternalID, e.ErrorMessage,
		formatDue(e.NextAttemptAt))
	if err != nil {
		return fmt.Errorf("save outbox entry %s: %w", e.ID, err)
	}
	return nil
}

// UpdateAttempt writes the delivery outcome unless the entry has been abandoned.
// POST: Returns whether the row was updated
func (s *SQLiteStore) UpdateAttempt(ctx context.Context, e domain.Entry) (bool, error) {
	lastAttemptedAt := ""
	if !e.LastAttemptedAt.IsZero() {
		lastAttemptedAt = e.LastAttemptedAt.UTC().Format(storage.TimeLayout)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE outbox SET status = ?, attempts = ?, last_attempted_at = ?, next_attempt_at = ?,
		   external_id = ?, error_message = ?
		 WHERE id = ? AND status <> ?`,
		e.Status, e.Attempts, lastAttemptedAt, formatDue(e.NextAttemptAt), e.ExternalID, e.ErrorMessage,
		e.ID, domain.StatusAbandoned)
	if err != nil {
		return false, fmt.Errorf("update outbox attempt %s: %w", e.ID, err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ListDue returns pending or retrying entries whose backoff has elapsed.
// PRE: limit > 0
// POST: Returns up to limit entries ordered by created_at
func (s *SQLiteStore) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.Entry, error) {
	return s.query(ctx,
		`SELECT `+entryColumns+` FROM outbox
		 WHERE status IN (?, ?) AND (next_attempt_at = '' OR next_attempt_at <= ?)
		 ORDER BY created_at ASC, id LIMIT ?`,
		domain.StatusPending, domain.StatusRetrying, formatDue(now), limit)
}

// ListFailed returns entries that have permanently failed.
// PRE: limit > 0
// POST: Returns up to limit failed entries ordered by last_attempted_at desc
func (s *SQLiteStore) ListFailed(ctx context.Context, limit int) ([]domain.Entry, error) {
	return s.query(ctx,
		"SELECT "+entryColumns+" FROM outbox WHERE status = ? AND attempts >= max_attempts ORDER BY last_attempted_at DESC LIMIT ?",
		domain.StatusFailed, limit)
}

// ListRecent returns the newest entries of any status.
func (s *SQLiteStore) ListRecent(ctx context.Context, limit int) ([]domain.Entry, error) {
	return s.query(ctx, "SELECT "+entryColumns+" FROM outbox ORDER BY created_at DESC, id LIMIT ?", limit)
}

// AbandonPendingByRef abandons undelivered entries for the given refs, abandonBatch refs per statement.
// POST: Returns the number of entries changed
func (s *SQLiteStore) AbandonPendingByRef(ctx context.Context, refIDs []string) (int, error) {
	total := 0
	for start := 0; start < len(refIDs); start += abandonBatch {
		chunk := refIDs[start:min(start+abandonBatch, len(refIDs))]
		args := []any{domain.StatusAbandoned, domain.StatusPending, domain.StatusRetrying}
		for _, id := range chunk {
			args = append(args, id)
		}
		res, err := s.db.ExecContext(ctx,
			"UPDATE outbox SET status = ? WHERE status IN (?, ?) AND ref_id IN ("+storage.Placeholders(len(chunk))+")",
			args...)
		if err != nil {
			return total, fmt.Errorf("abandon outbox entries: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, err
		}
		total += int(n)
	}
	return total, nil
}

func (s *SQLiteStore) query(ctx context.Context, query string, args ...any) ([]domain.Entry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.Entry
	for rows.Next() {
		e, err := scanEntry(rows.Scan)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// scanEntry scans a single row into an Entry.
func scanEntry(scan func(dest ...any) error) (domain.Entry, error) {
	var e domain.Entry
	var createdAt, lastAttemptedAt, nextAttemptAt sql.NullString
	err := scan(&e.ID, &e.ActionType, &e.RefID, &e.Payload, &e.Status, &e.Attempts, &e.MaxAttempts,
		&lastAttemptedAt, &createdAt, &e.ExternalID, &e.ErrorMessage, &nextAttemptAt)
	if err != nil {
		return domain.Entry{}, err
	}
	if e.CreatedAt, err = storage.ParseTime(createdAt); err != nil {
		return domain.Entry{}, err
	}
	if e.LastAttemptedAt, err = storage.ParseTime(lastAttemptedAt); err != nil {
		return domain.Entry{}, err
	}
	if e.NextAttemptAt, err = storage.ParseTime(nextAttemptAt); err != nil {
		return domain.Entry{}, err
	}
	return e, nil
}
