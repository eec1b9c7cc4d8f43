package orchestrators

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	fineStore "clubhouse/internal/adapters/storage/fine"
	"clubhouse/internal/domain/account"
	"clubhouse/internal/domain/fine"
	"clubhouse/internal/domain/notification"
	"clubhouse/pkg/logger"
)

// AccountLookup resolves account ids.
type AccountLookup interface {
	GetByID(ctx context.Context, id string) (account.Account, error)
}

// CreateFineInput carries the raw request fields for a new fine.
type CreateFineInput struct {
	Reason         string
	Amount         string
	ReceiverID     string
	ExpirationDate string // RFC 3339 timestamp or YYYY-MM-DD; empty for none
}

// CreateFineDeps holds dependencies for ExecuteCreateFine.
type CreateFineDeps struct {
	FineStore    fineStore.Store
	AccountStore AccountLookup
	Notifier     notification.Notifier
	Now          func() time.Time
	GenerateID   func() string
}

// ExecuteCreateFine issues a new fine from a manager or staff member to a player.
// PRE: actor is authenticated
// POST: Fine persisted active, unpaid and unrequested; fine.created sent to the receiver
// INVARIANT: nothing is written when any check fails
func ExecuteCreateFine(ctx context.Context, actor account.Actor, input CreateFineInput, deps CreateFineDeps) (fine.Fine, error) {
	if err := fine.CanCreate(actor); err != nil {
		return fine.Fine{}, err
	}
	amount, err := fine.ParseAmount(input.Amount)
	if err != nil {
		return fine.Fine{}, err
	}
	expiration, err := fine.ParseExpiration(input.ExpirationDate)
	if err != nil {
		return fine.Fine{}, err
	}

	now := clock(deps.Now)
	id := uuid.New().String()
	if deps.GenerateID != nil {
		id = deps.GenerateID()
	}
	f, err := fine.New(id, actor.ID, fine.NewInput{
		Reason:         input.Reason,
		Amount:         amount,
		ReceiverID:     input.ReceiverID,
		ExpirationDate: expiration,
	}, now)
	if err != nil {
		return fine.Fine{}, err
	}

	receiver, err := deps.AccountStore.GetByID(ctx, f.ReceiverID)
	if errors.Is(err, account.ErrNotFound) {
		return fine.Fine{}, &fine.ValidationError{Field: "receiverId", Message: "unknown user"}
	}
	if err != nil {
		return fine.Fine{}, fmt.Errorf("lookup receiver: %w", err)
	}
	if receiver.Role != account.RolePlayer {
		return fine.Fine{}, &fine.ValidationError{Field: "receiverId", Message: "fines can only be issued to players"}
	}

	if err := deps.FineStore.Create(ctx, f); err != nil {
		return fine.Fine{}, fmt.Errorf("create fine: %w", err)
	}
	logger.Info("fine_created", "fine_id", f.ID, "creator_id", f.CreatorID, "receiver_id", f.ReceiverID, "amount", f.Amount.StringFixed(2))

	emit(ctx, deps.Notifier, fineEvent(notification.TypeFineCreated, f.ReceiverID, f, now))
	return f, nil
}
