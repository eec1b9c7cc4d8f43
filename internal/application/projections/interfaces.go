package projections

import (
	"context"

	"clubhouse/internal/adapters/storage/fine"
	domainAccount "clubhouse/internal/domain/account"
	domainFine "clubhouse/internal/domain/fine"
)

// FineStore interface for fine queries.
type FineStore interface {
	List(ctx context.Context, filter fine.ListFilter) ([]domainFine.Fine, error)
}

// AccountStore interface for resolving display names.
type AccountStore interface {
	ListByIDs(ctx context.Context, ids []string) ([]domainAccount.Account, error)
}
