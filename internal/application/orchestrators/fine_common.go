package orchestrators

import (
	"context"
	"errors"
	"time"

	fineStore "clubhouse/internal/adapters/storage/fine"
	"clubhouse/internal/domain/account"
	"clubhouse/internal/domain/fine"
	"clubhouse/internal/domain/notification"
	"clubhouse/pkg/logger"
)

// maxTransitionAttempts bounds the reload-and-reapply loop after a version conflict.
const maxTransitionAttempts = 3

// OutboxAbandoner cancels queued notifications for fines that no longer exist.
type OutboxAbandoner interface {
	AbandonPendingByRef(ctx context.Context, refIDs []string) (int, error)
}

// FineActionDeps holds dependencies for single-fine transitions.
type FineActionDeps struct {
	FineStore fineStore.Store
	Notifier  notification.Notifier
	Now       func() time.Time
}

func (d FineActionDeps) now() time.Time {
	return clock(d.Now)
}

func clock(now func() time.Time) time.Time {
	if now == nil {
		return time.Now().UTC()
	}
	return now().UTC()
}

// transitionFine loads, authorizes, mutates and writes one fine atomically.
// A losing concurrent writer reloads and re-applies, so it sees the winner's state
// and usually fails with ErrInvalidTransition. ErrStoreConflict surfaces only once
// the attempts are used up.
// INVARIANT: on any error the stored fine is unchanged by this call
func transitionFine(ctx context.Context, actor account.Actor, id string, action fine.Action,
	deps FineActionDeps, apply func(f *fine.Fine, now time.Time) error) (fine.Fine, error) {
	for attempt := 1; ; attempt++ {
		f, err := deps.FineStore.GetByID(ctx, id)
		if err != nil {
			return fine.Fine{}, err
		}
		if err := fine.Authorize(actor, &f, action); err != nil {
			return fine.Fine{}, err
		}
		if err := apply(&f, deps.now()); err != nil {
			return fine.Fine{}, err
		}
		updated, err := deps.FineStore.Update(ctx, f)
		if errors.Is(err, fine.ErrStoreConflict) && attempt < maxTransitionAttempts {
			logger.Debug("fine_update_conflict", "fine_id", id, "action", action, "attempt", attempt)
			continue
		}
		return updated, err
	}
}

// emit hands an event to the notifier; failures are logged, never returned.
func emit(ctx context.Context, n notification.Notifier, e notification.Event) {
	if n == nil {
		return
	}
	if err := n.Notify(ctx, e); err != nil {
		logger.Warn("notification_emit_failed", "type", e.Type, "fine_id", e.FineID, "target_user_id", e.TargetUserID, "error", err)
	}
}

// fineEvent builds the notification for a transition on f.
func fineEvent(eventType, target string, f fine.Fine, now time.Time) notification.Event {
	payload := map[string]string{
		"reason": f.Reason,
		"amount": f.Amount.StringFixed(fine.MaxAmountScale),
	}
	if !f.ExpirationDate.IsZero() {
		payload["expirationDate"] = f.ExpirationDate.UTC().Format(time.DateOnly)
	}
	return notification.Event{
		Type:         eventType,
		TargetUserID: target,
		FineID:       f.ID,
		Payload:      payload,
		CreatedAt:    now,
	}
}
