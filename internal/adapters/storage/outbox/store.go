package outbox

import (
	"context"
	"time"

	domain "clubhouse/internal/domain/outbox"
)

// Store defines the interface for outbox entry persistence.
type Store interface {
	// GetByID retrieves an outbox entry by its ID.
	// PRE: id is non-empty
	// POST: Returns the entry or domain.ErrNotFound
	GetByID(ctx context.Context, id string) (domain.Entry, error)

	// Save persists an outbox entry to the database.
	// PRE: entity has been validated
	// POST: Entity is persisted (insert or update)
	Save(ctx context.Context, e domain.Entry) error

	// UpdateAttempt records the outcome of a delivery attempt unless the entry was abandoned meanwhile.
	// POST: Returns false and changes nothing when the stored entry is abandoned or missing
	UpdateAttempt(ctx context.Context, e domain.Entry) (bool, error)

	// ListDue returns pending or retrying entries whose backoff has elapsed at now.
	// PRE: limit > 0
	// POST: Returns up to limit due entries ordered by created_at; entries in backoff are skipped
	ListDue(ctx context.Context, now time.Time, limit int) ([]domain.Entry, error)

	// ListFailed returns entries that have permanently failed.
	// PRE: limit > 0
	// POST: Returns up to limit failed entries ordered by last_attempted_at desc
	ListFailed(ctx context.Context, limit int) ([]domain.Entry, error)

	// ListRecent returns the newest entries of any status.
	// PRE: limit > 0
	ListRecent(ctx context.Context, limit int) ([]domain.Entry, error)

	// AbandonPendingByRef marks every not-yet-delivered entry for the given refs as abandoned.
	// POST: Returns the number of entries abandoned; done entries are untouched
	AbandonPendingByRef(ctx context.Context, refIDs []string) (int, error)
}
