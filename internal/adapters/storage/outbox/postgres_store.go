package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"clubhouse/internal/adapters/storage"
	domain "clubhouse/internal/domain/outbox"
)

// PostgresStore implements the outbox Store interface using a pgx pool.
type PostgresStore struct {
	q storage.Querier
}

// NewPostgresStore creates a new Postgres-backed outbox store.
func NewPostgresStore(q storage.Querier) *PostgresStore {
	return &PostgresStore{q: q}
}

// GetByID retrieves an outbox entry by its ID.
// POST: Returns the entry or domain.ErrNotFound
func (s *PostgresStore) GetByID(ctx context.Context, id string) (domain.Entry, error) {
	row := s.q.QueryRow(ctx, "SELECT "+entryColumns+" FROM outbox WHERE id = $1", id)
	e, err := scanPgEntry(row.Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Entry{}, domain.ErrNotFound
	}
	return e, err
}

// Save persists an outbox entry (insert or update).
func (s *PostgresStore) Save(ctx context.Context, e domain.Entry) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO outbox (`+entryColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (id) DO UPDATE SET
		   action_type = EXCLUDED.action_type, ref_id = EXCLUDED.ref_id, payload = EXCLUDED.payload,
		   status = EXCLUDED.status, attempts = EXCLUDED.attempts, max_attempts = EXCLUDED.max_attempts,
		   last_attempted_at = EXCLUDED.last_attempted_at, external_id = EXCLUDED.external_id,
		   error_message = EXCLUDED.error_message, next_attempt_at = EXCLUDED.next_attempt_at`,
		e.ID, e.ActionType, e.RefID, e.Payload, e.Status, e.Attempts, e.MaxAttempts,
		storage.NullTime(e.LastAttemptedAt), e.CreatedAt.UTC(), e.ExternalID, e.ErrorMessage,
		storage.NullTime(e.NextAttemptAt))
	if err != nil {
		return fmt.Errorf("save outbox entry %s: %w", e.ID, err)
	}
	return nil
}

// UpdateAttempt writes the delivery outcome unless the entry has been abandoned.
func (s *PostgresStore) UpdateAttempt(ctx context.Context, e domain.Entry) (bool, error) {
	tag, err := s.q.Exec(ctx,
		`UPDATE outbox SET status = $1, attempts = $2, last_attempted_at = $3, next_attempt_at = $4,
		   external_id = $5, error_message = $6
		 WHERE id = $7 AND status <> $8`,
		e.Status, e.Attempts, storage.NullTime(e.LastAttemptedAt), storage.NullTime(e.NextAttemptAt),
		e.ExternalID, e.ErrorMessage, e.ID, domain.StatusAbandoned)
	if err != nil {
		return false, fmt.Errorf("update outbox attempt %s: %w", e.ID, err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListDue returns due pending or retrying entries, oldest first.
func (s *PostgresStore) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.Entry, error) {
	return s.query(ctx,
		`SELECT `+entryColumns+` FROM outbox
		 WHERE status IN ($1, $2) AND (next_attempt_at IS NULL OR next_attempt_at <= $3)
		 ORDER BY created_at ASC, id LIMIT $4`,
		domain.StatusPending, domain.StatusRetrying, now.UTC(), limit)
}

// ListFailed returns permanently failed entries, most recent attempt first.
func (s *PostgresStore) ListFailed(ctx context.Context, limit int) ([]domain.Entry, error) {
	return s.query(ctx,
		"SELECT "+entryColumns+" FROM outbox WHERE status = $1 AND attempts >= max_attempts ORDER BY last_attempted_at DESC NULLS LAST LIMIT $2",
		domain.StatusFailed, limit)
}

// ListRecent returns the newest entries of any status.
func (s *PostgresStore) ListRecent(ctx context.Context, limit int) ([]domain.Entry, error) {
	return s.query(ctx, "SELECT "+entryColumns+" FROM outbox ORDER BY created_at DESC, id LIMIT $1", limit)
}

// AbandonPendingByRef abandons undelivered entries for the given refs.
func (s *PostgresStore) AbandonPendingByRef(ctx context.Context, refIDs []string) (int, error) {
	if len(refIDs) == 0 {
		return 0, nil
	}
	tag, err := s.q.Exec(ctx,
		"UPDATE outbox SET status = $1 WHERE status IN ($2, $3) AND ref_id = ANY($4)",
		domain.StatusAbandoned, domain.StatusPending, domain.StatusRetrying, refIDs)
	if err != nil {
		return 0, fmt.Errorf("abandon outbox entries: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) query(ctx context.Context, query string, args ...any) ([]domain.Entry, error) {
	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.Entry
	for rows.Next() {
		e, err := scanPgEntry(rows.Scan)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanPgEntry(scan func(dest ...any) error) (domain.Entry, error) {
	var e domain.Entry
	var lastAttemptedAt, nextAttemptAt *time.Time
	err := scan(&e.ID, &e.ActionType, &e.RefID, &e.Payload, &e.Status, &e.Attempts, &e.MaxAttempts,
		&lastAttemptedAt, &e.CreatedAt, &e.ExternalID, &e.ErrorMessage, &nextAttemptAt)
	if err != nil {
		return domain.Entry{}, err
	}
	e.CreatedAt = e.CreatedAt.UTC()
	e.LastAttemptedAt = storage.FromNullTime(lastAttemptedAt)
	e.NextAttemptAt = storage.FromNullTime(nextAttemptAt)
	return e, nil
}
