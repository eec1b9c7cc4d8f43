package notification

import (
	"context"
	"errors"
	"time"
)

// Event types raised by the fine workflow.
const (
	TypeFineCreated      = "fine.created"
	TypePaymentRequested = "fine.payment_requested"
	TypePaymentApproved  = "fine.payment_approved"
	TypePaymentRejected  = "fine.payment_rejected"
	TypeFineDeleted      = "fine.deleted"
	TypeFinesReset       = "fines.reset"
)

// Domain errors.
var (
	ErrEmptyType   = errors.New("notification type is required")
	ErrEmptyTarget = errors.New("notification target user is required")
)

// Event is one message for the external notification collaborator.
type Event struct {
	ID           string
	Type         string
	TargetUserID string
	FineID       string // empty for bulk events
	Payload      map[string]string
	CreatedAt    time.Time
}

// Validate checks that the Event has the fields every channel needs.
// PRE: Event struct is populated
// POST: Returns nil if valid, error otherwise
func (e *Event) Validate() error {
	if e.Type == "" {
		return ErrEmptyType
	}
	if e.TargetUserID == "" {
		return ErrEmptyTarget
	}
	return nil
}

// Subject returns a short human-readable title for the event.
func (e *Event) Subject() string {
	switch e.Type {
	case TypeFineCreated:
		return "You have received a new fine"
	case TypePaymentRequested:
		return "A player says they have paid a fine"
	case TypePaymentApproved:
		return "Your fine payment was approved"
	case TypePaymentRejected:
		return "Your fine payment was rejected"
	case TypeFineDeleted:
		return "A fine against you was removed"
	case TypeFinesReset:
		return "Your fines were reset by an administrator"
	default:
		return "Fine update"
	}
}

// Notifier hands events to the notification collaborator.
// Implementations must not block on delivery; failures are reported, never retried inline.
type Notifier interface {
	Notify(ctx context.Context, e Event) error
}
