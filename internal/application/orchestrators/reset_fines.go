package orchestrators

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	fineStore "clubhouse/internal/adapters/storage/fine"
	"clubhouse/internal/domain/account"
	"clubhouse/internal/domain/fine"
	"clubhouse/internal/domain/notification"
	"clubhouse/pkg/logger"
)

// ResetFinesDeps holds dependencies for the admin reset orchestrators.
type ResetFinesDeps struct {
	FineStore fineStore.Store
	Outbox    OutboxAbandoner
	Notifier  notification.Notifier
	Now       func() time.Time
}

// ResetResult reports how many fines a reset removed.
type ResetResult struct {
	Deleted int
}

// ExecuteResetAllFines removes every fine in one store operation.
// PRE: actor is an admin
// POST: No fines remain; each affected receiver gets one fines.reset event
func ExecuteResetAllFines(ctx context.Context, actor account.Actor, deps ResetFinesDeps) (ResetResult, error) {
	if err := fine.CanReset(actor); err != nil {
		return ResetResult{}, err
	}
	removed, err := deps.FineStore.DeleteAll(ctx)
	if err != nil {
		return ResetResult{}, fmt.Errorf("reset all fines: %w", err)
	}
	logger.Info("fines_reset", "scope", "all", "actor_id", actor.ID, "deleted", len(removed))
	afterReset(ctx, "all", removed, deps)
	return ResetResult{Deleted: len(removed)}, nil
}

// ExecuteResetUserFines removes every fine received by one user in one store operation.
// PRE: actor is an admin; userID is non-empty
// POST: No fines with ReceiverID == userID remain; other receivers are untouched
func ExecuteResetUserFines(ctx context.Context, actor account.Actor, userID string, deps ResetFinesDeps) (ResetResult, error) {
	if err := fine.CanReset(actor); err != nil {
		return ResetResult{}, err
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ResetResult{}, &fine.ValidationError{Field: "userId", Message: "is required"}
	}
	removed, err := deps.FineStore.DeleteByReceiver(ctx, userID)
	if err != nil {
		return ResetResult{}, fmt.Errorf("reset fines for %s: %w", userID, err)
	}
	logger.Info("fines_reset", "scope", "user", "user_id", userID, "actor_id", actor.ID, "deleted", len(removed))
	afterReset(ctx, "user", removed, deps)
	return ResetResult{Deleted: len(removed)}, nil
}

// afterReset runs the best-effort follow-ups once the deletion has committed.
func afterReset(ctx context.Context, scope string, removed []fine.Fine, deps ResetFinesDeps) {
	if len(removed) == 0 {
		return
	}
	ids := make([]string, len(removed))
	counts := make(map[string]int)
	var receivers []string
	for i, f := range removed {
		ids[i] = f.ID
		if counts[f.ReceiverID] == 0 {
			receivers = append(receivers, f.ReceiverID)
		}
		counts[f.ReceiverID]++
	}
	abandonNotifications(ctx, deps.Outbox, ids)

	now := clock(deps.Now)
	for _, r := range receivers {
		emit(ctx, deps.Notifier, notification.Event{
			Type:         notification.TypeFinesReset,
			TargetUserID: r,
			Payload:      map[string]string{"count": strconv.Itoa(counts[r]), "scope": scope},
			CreatedAt:    now,
		})
	}
}
