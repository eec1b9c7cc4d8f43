package projections

import (
	"context"
	"fmt"
	"strings"
	"time"

	"clubhouse/internal/adapters/storage/fine"
	"clubhouse/internal/application/listutil"
	"clubhouse/internal/domain/account"
	domain "clubhouse/internal/domain/fine"
)

// Filter values accepted on the list and export endpoints.
const (
	FilterAll      = "all"
	FilterActive   = "active"
	FilterInactive = "inactive"
	FilterPaid     = "paid"
	FilterUnpaid   = "unpaid"
)

// FineFilterKeys are the query parameters read into a FineFilter besides q.
var FineFilterKeys = []string{"status", "payment"}

// EmptyState tells the caller which empty message to show.
type EmptyState string

const (
	EmptyStateNone      EmptyState = "none"       // at least one row matched
	EmptyStateNoFines   EmptyState = "no_fines"   // the actor can see no fines at all
	EmptyStateNoMatches EmptyState = "no_matches" // fines exist but the filters exclude all of them
)

// FineFilter narrows the visible fine set. Zero values mean "all".
type FineFilter struct {
	Status  string // all | active | inactive, on IsActive
	Payment string // all | paid | unpaid, on IsPaid
	Search  string // case-insensitive substring of the receiver's display name
}

// ParseFineFilter validates filter params from a request.
// POST: Returns a normalised filter or a *ValidationError naming the bad field
func ParseFineFilter(fp listutil.FilterParams) (FineFilter, error) {
	f := FineFilter{
		Status:  fp.Filters["status"],
		Payment: fp.Filters["payment"],
		Search:  strings.TrimSpace(fp.Search),
	}
	switch f.Status {
	case "", FilterAll:
		f.Status = FilterAll
	case FilterActive, FilterInactive:
	default:
		return FineFilter{}, &domain.ValidationError{Field: "status", Message: "must be all, active or inactive"}
	}
	switch f.Payment {
	case "", FilterAll:
		f.Payment = FilterAll
	case FilterPaid, FilterUnpaid:
	default:
		return FineFilter{}, &domain.ValidationError{Field: "payment", Message: "must be all, paid or unpaid"}
	}
	return f, nil
}

// FineRow is a fine enriched for display.
type FineRow struct {
	domain.Fine
	ReceiverName string
	CreatorName  string
	Status       domain.Status
}

// FineCounts are computed over the role-visible set, before filters.
type FineCounts struct {
	Total  int
	Active int
	Paid   int
}

// ListFinesQuery carries query parameters.
type ListFinesQuery struct {
	Filter FineFilter
	Page   listutil.PageParams
}

// ListFinesResult carries the query result.
type ListFinesResult struct {
	Rows       []FineRow
	Counts     FineCounts
	EmptyState EmptyState
	Page       listutil.PageInfo
}

// ListFinesDeps holds dependencies for QueryListFines.
type ListFinesDeps struct {
	FineStore    FineStore
	AccountStore AccountStore
	Now          func() time.Time
}

// QueryListFines returns the page of fines the actor may see after filters.
// PRE: actor is authenticated
// POST: Rows are in store order; Counts ignore the filter; Page describes the filtered set
// INVARIANT: a player never receives a fine they do not receive
func QueryListFines(ctx context.Context, actor account.Actor, query ListFinesQuery, deps ListFinesDeps) (ListFinesResult, error) {
	rows, err := visibleRows(ctx, actor, deps.FineStore, deps.AccountStore, now(deps.Now))
	if err != nil {
		return ListFinesResult{}, err
	}

	matched := ApplyFineFilter(rows, query.Filter)
	page, info := listutil.Paginate(matched, query.Page)

	return ListFinesResult{
		Rows:       page,
		Counts:     CountFines(rows),
		EmptyState: emptyState(len(rows), len(matched)),
		Page:       info,
	}, nil
}

// ApplyFineFilter keeps the rows matching every active filter.
// INVARIANT: pure, order-preserving and idempotent
func ApplyFineFilter(rows []FineRow, f FineFilter) []FineRow {
	search := strings.ToLower(strings.TrimSpace(f.Search))
	out := make([]FineRow, 0, len(rows))
	for _, r := range rows {
		switch f.Status {
		case FilterActive:
			if !r.IsActive {
				continue
			}
		case FilterInactive:
			if r.IsActive {
				continue
			}
		}
		switch f.Payment {
		case FilterPaid:
			if !r.IsPaid {
				continue
			}
		case FilterUnpaid:
			if r.IsPaid {
				continue
			}
		}
		if search != "" && !strings.Contains(strings.ToLower(r.ReceiverName), search) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// CountFines tallies total, active and paid rows.
func CountFines(rows []FineRow) FineCounts {
	c := FineCounts{Total: len(rows)}
	for _, r := range rows {
		if r.IsActive {
			c.Active++
		}
		if r.IsPaid {
			c.Paid++
		}
	}
	return c
}

func emptyState(visible, matched int) EmptyState {
	switch {
	case visible == 0:
		return EmptyStateNoFines
	case matched == 0:
		return EmptyStateNoMatches
	default:
		return EmptyStateNone
	}
}

// visibleRows loads the actor's fines in store order and resolves display names.
func visibleRows(ctx context.Context, actor account.Actor, fines FineStore, accounts AccountStore, at time.Time) ([]FineRow, error) {
	scope, err := domain.VisibilityFor(actor)
	if err != nil {
		return nil, err
	}
	list, err := fines.List(ctx, fine.FromScope(scope))
	if err != nil {
		return nil, fmt.Errorf("list fines: %w", err)
	}
	if len(list) == 0 {
		return nil, nil
	}

	names, err := displayNames(ctx, accounts, list)
	if err != nil {
		return nil, err
	}
	rows := make([]FineRow, len(list))
	for i, f := range list {
		rows[i] = FineRow{
			Fine:         f,
			ReceiverName: nameOr(names, f.ReceiverID),
			CreatorName:  nameOr(names, f.CreatorID),
			Status:       f.Status(at),
		}
	}
	return rows, nil
}

func displayNames(ctx context.Context, accounts AccountStore, list []domain.Fine) (map[string]string, error) {
	seen := make(map[string]bool)
	var ids []string
	for _, f := range list {
		for _, id := range []string{f.ReceiverID, f.CreatorID} {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	accts, err := accounts.ListByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve display names: %w", err)
	}
	names := make(map[string]string, len(accts))
	for _, a := range accts {
		names[a.ID] = a.DisplayName
	}
	return names, nil
}

// nameOr falls back to the raw id for unknown accounts.
func nameOr(names map[string]string, id string) string {
	if n := names[id]; n != "" {
		return n
	}
	return id
}

func now(fn func() time.Time) time.Time {
	if fn == nil {
		return time.Now().UTC()
	}
	return fn().UTC()
}
