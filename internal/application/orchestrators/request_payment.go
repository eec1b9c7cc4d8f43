package orchestrators

import (
	"context"
	"time"

	"clubhouse/internal/domain/account"
	"clubhouse/internal/domain/fine"
	"clubhouse/internal/domain/notification"
	"clubhouse/pkg/logger"
)

// ExecuteRequestPayment records the receiver's claim that they have paid.
// PRE: actor is the fine's receiver with role player
// POST: PaymentRequested is true; the creator is notified
func ExecuteRequestPayment(ctx context.Context, actor account.Actor, fineID string, deps FineActionDeps) (fine.Fine, error) {
	f, err := transitionFine(ctx, actor, fineID, fine.ActionRequestPayment, deps, func(f *fine.Fine, now time.Time) error {
		return f.RequestPayment(now)
	})
	if err != nil {
		return fine.Fine{}, err
	}
	logger.Info("fine_payment_requested", "fine_id", f.ID, "receiver_id", f.ReceiverID)
	emit(ctx, deps.Notifier, fineEvent(notification.TypePaymentRequested, f.CreatorID, f, f.UpdatedAt))
	return f, nil
}
