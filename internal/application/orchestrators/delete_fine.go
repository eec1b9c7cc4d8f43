package orchestrators

import (
	"context"
	"time"

	fineStore "clubhouse/internal/adapters/storage/fine"
	"clubhouse/internal/domain/account"
	"clubhouse/internal/domain/fine"
	"clubhouse/internal/domain/notification"
	"clubhouse/pkg/logger"
)

// DeleteFineDeps holds dependencies for ExecuteDeleteFine.
type DeleteFineDeps struct {
	FineStore fineStore.Store
	Outbox    OutboxAbandoner
	Notifier  notification.Notifier
	Now       func() time.Time
}

// ExecuteDeleteFine permanently removes one fine.
// PRE: actor is the fine's creator or an admin
// POST: Fine removed; queued notifications for it abandoned; the receiver is notified
func ExecuteDeleteFine(ctx context.Context, actor account.Actor, fineID string, deps DeleteFineDeps) error {
	f, err := deps.FineStore.GetByID(ctx, fineID)
	if err != nil {
		return err
	}
	if err := fine.Authorize(actor, &f, fine.ActionDelete); err != nil {
		return err
	}
	if err := deps.FineStore.Delete(ctx, f.ID); err != nil {
		return err
	}
	logger.Info("fine_deleted", "fine_id", f.ID, "actor_id", actor.ID, "actor_role", actor.Role)

	abandonNotifications(ctx, deps.Outbox, []string{f.ID})
	emit(ctx, deps.Notifier, fineEvent(notification.TypeFineDeleted, f.ReceiverID, f, clock(deps.Now)))
	return nil
}

// abandonNotifications is best effort; the deletion has already committed.
func abandonNotifications(ctx context.Context, outbox OutboxAbandoner, fineIDs []string) {
	if outbox == nil || len(fineIDs) == 0 {
		return
	}
	n, err := outbox.AbandonPendingByRef(ctx, fineIDs)
	if err != nil {
		logger.Warn("notification_cleanup_failed", "fines", len(fineIDs), "error", err)
		return
	}
	if n > 0 {
		logger.Info("notification_cleanup", "fines", len(fineIDs), "abandoned", n)
	}
}
