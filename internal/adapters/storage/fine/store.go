package fine

import (
	"context"

	domain "clubhouse/internal/domain/fine"
)

// Store persists fines. Lists and bulk deletes return fines in store (insertion) order.
type Store interface {
	// GetByID retrieves a fine.
	// POST: Returns the fine or domain.ErrNotFound
	GetByID(ctx context.Context, id string) (domain.Fine, error)

	// Create inserts a new fine.
	// PRE: f has been validated, f.Version == 1
	Create(ctx context.Context, f domain.Fine) error

	// Update writes f if the stored version still equals f.Version.
	// POST: Returns f with Version+1, domain.ErrNotFound, or domain.ErrStoreConflict
	// INVARIANT: a conflicting or failed update leaves the row untouched
	Update(ctx context.Context, f domain.Fine) (domain.Fine, error)

	// Delete removes one fine.
	// POST: Returns domain.ErrNotFound if no row was removed
	Delete(ctx context.Context, id string) error

	// DeleteAll removes every fine in one statement and returns what was removed.
	DeleteAll(ctx context.Context) ([]domain.Fine, error)

	// DeleteByReceiver removes every fine for one receiver in one statement and returns what was removed.
	DeleteByReceiver(ctx context.Context, receiverID string) ([]domain.Fine, error)

	// List returns fines matching the filter in store order.
	List(ctx context.Context, filter ListFilter) ([]domain.Fine, error)
}

// ListFilter restricts List; empty fields do not filter.
type ListFilter struct {
	ReceiverID string
	CreatorID  string
}

// FromScope converts a visibility scope into a store filter.
func FromScope(s domain.Scope) ListFilter {
	return ListFilter{ReceiverID: s.ReceiverID, CreatorID: s.CreatorID}
}
