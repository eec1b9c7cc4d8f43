package orchestrators

import (
	"context"
	"time"

	"clubhouse/internal/domain/account"
	"clubhouse/internal/domain/fine"
	"clubhouse/internal/domain/notification"
	"clubhouse/pkg/logger"
)

// ExecuteApprovePayment confirms a pending payment request.
// PRE: actor is the fine's creator
// POST: IsPaid is true, PaymentRequested is false; the receiver is notified
func ExecuteApprovePayment(ctx context.Context, actor account.Actor, fineID string, deps FineActionDeps) (fine.Fine, error) {
	f, err := transitionFine(ctx, actor, fineID, fine.ActionApprove, deps, func(f *fine.Fine, now time.Time) error {
		return f.Approve(now)
	})
	if err != nil {
		return fine.Fine{}, err
	}
	logger.Info("fine_payment_approved", "fine_id", f.ID, "creator_id", f.CreatorID)
	emit(ctx, deps.Notifier, fineEvent(notification.TypePaymentApproved, f.ReceiverID, f, f.UpdatedAt))
	return f, nil
}

// ExecuteRejectPayment declines a pending payment request.
// PRE: actor is the fine's creator
// POST: PaymentRequested is false, IsPaid unchanged; the receiver is notified and may request again
func ExecuteRejectPayment(ctx context.Context, actor account.Actor, fineID string, deps FineActionDeps) (fine.Fine, error) {
	f, err := transitionFine(ctx, actor, fineID, fine.ActionReject, deps, func(f *fine.Fine, now time.Time) error {
		return f.Reject(now)
	})
	if err != nil {
		return fine.Fine{}, err
	}
	logger.Info("fine_payment_rejected", "fine_id", f.ID, "creator_id", f.CreatorID, "rejections", f.RejectionCount)
	emit(ctx, deps.Notifier, fineEvent(notification.TypePaymentRejected, f.ReceiverID, f, f.UpdatedAt))
	return f, nil
}
