package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"clubhouse/internal/domain/notification"
	"clubhouse/internal/domain/outbox"
	"clubhouse/pkg/logger"
)

// OutboxWriter is the slice of the outbox store the notifier needs.
type OutboxWriter interface {
	Save(ctx context.Context, e outbox.Entry) error
}

// OutboxNotifier turns each event into one outbox entry per delivery channel.
// Delivery happens later in the outbox worker, so Notify never waits on a channel.
type OutboxNotifier struct {
	store    OutboxWriter
	channels []string
	now      func() time.Time
	newID    func() string
}

// NewOutboxNotifier creates a notifier writing entries for the given action types.
// PRE: channels holds outbox action types (email, nats)
func NewOutboxNotifier(store OutboxWriter, channels ...string) *OutboxNotifier {
	return &OutboxNotifier{
		store:    store,
		channels: channels,
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
	}
}

// Notify validates the event and queues it on every channel.
// POST: One pending entry per channel with RefID = e.FineID; all channel errors are joined
func (n *OutboxNotifier) Notify(ctx context.Context, e notification.Event) error {
	if err := e.Validate(); err != nil {
		return err
	}
	now := n.now().UTC()
	if e.ID == "" {
		e.ID = n.newID()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	payload, err := Encode(e)
	if err != nil {
		return err
	}

	var errs []error
	for _, ch := range n.channels {
		entry := outbox.Entry{
			ID:          n.newID(),
			ActionType:  ch,
			RefID:       e.FineID,
			Payload:     payload,
			Status:      outbox.StatusPending,
			MaxAttempts: outbox.DefaultMaxAttempts,
			CreatedAt:   now,
		}
		if err := entry.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		if err := n.store.Save(ctx, entry); err != nil {
			errs = append(errs, fmt.Errorf("queue %s notification: %w", ch, err))
			continue
		}
		logger.Debug("notification_queued", "entry_id", entry.ID, "channel", ch, "type", e.Type, "target_user_id", e.TargetUserID)
	}
	return errors.Join(errs...)
}
