package fine

import (
	"html"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/shopspring/decimal"
)

// Max length and range constants for user-editable fields.
const (
	MaxReasonLength = 500
	MaxAmountScale  = 2
)

// MaxAmount is the exclusive upper bound for a fine amount.
var MaxAmount = decimal.NewFromInt(1_000_000)

// Status is the derived presentation state of a fine.
type Status string

const (
	StatusUnpaid           Status = "unpaid"
	StatusPaymentRequested Status = "payment_requested"
	StatusPaid             Status = "paid"
	StatusExpired          Status = "expired"
)

var reasonPolicy = bluemonday.StrictPolicy()

// Fine is a monetary penalty issued by a manager or staff member against a player.
type Fine struct {
	ID               string
	Reason           string
	Amount           decimal.Decimal
	CreatorID        string
	ReceiverID       string
	IsActive         bool
	IsPaid           bool
	PaymentRequested bool
	ExpirationDate   time.Time // zero when the fine never expires
	CreatedAt        time.Time
	UpdatedAt        time.Time
	PaidAt           time.Time
	LastRejectedAt   time.Time
	RejectionCount   int
	Version          int
}

// NewInput carries the already-parsed fields for a new fine.
type NewInput struct {
	Reason         string
	Amount         decimal.Decimal
	ReceiverID     string
	ExpirationDate time.Time
}

// New builds a validated fine issued by creatorID at now.
// PRE: id is unique, creatorID identifies a manager or staff member
// POST: Returns an active, unpaid, unrequested fine or a *ValidationError
// INVARIANT: a set ExpirationDate is strictly after CreatedAt
func New(id, creatorID string, in NewInput, now time.Time) (Fine, error) {
	f := Fine{
		ID:             id,
		Reason:         SanitizeReason(in.Reason),
		Amount:         in.Amount,
		CreatorID:      creatorID,
		ReceiverID:     strings.TrimSpace(in.ReceiverID),
		IsActive:       true,
		ExpirationDate: in.ExpirationDate,
		CreatedAt:      now,
		UpdatedAt:      now,
		Version:        1,
	}
	if err := f.Validate(); err != nil {
		return Fine{}, err
	}
	if !f.ExpirationDate.IsZero() && !f.ExpirationDate.After(now) {
		return Fine{}, invalid("expirationDate", "must be in the future")
	}
	return f, nil
}

// Validate checks the field-level rules that hold for every stored fine.
// PRE: Fine struct is populated
// POST: Returns nil if valid, *ValidationError otherwise
// INVARIANT: IsPaid implies !PaymentRequested
func (f *Fine) Validate() error {
	if f.Reason == "" {
		return invalid("reason", "is required")
	}
	if len([]rune(f.Reason)) > MaxReasonLength {
		return invalid("reason", "cannot exceed %d characters", MaxReasonLength)
	}
	if err := ValidateAmount(f.Amount); err != nil {
		return err
	}
	if f.ReceiverID == "" {
		return invalid("receiverId", "is required")
	}
	if f.CreatorID == "" {
		return invalid("creatorId", "is required")
	}
	if f.CreatorID == f.ReceiverID {
		return invalid("receiverId", "cannot fine yourself")
	}
	if f.IsPaid && f.PaymentRequested {
		return invalid("paymentRequested", "must be cleared once paid")
	}
	return nil
}

// ValidateAmount enforces 0 < amount < MaxAmount with at most two decimal places.
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return invalid("amount", "must be greater than zero")
	}
	if amount.GreaterThanOrEqual(MaxAmount) {
		return invalid("amount", "must be less than %s", MaxAmount.String())
	}
	if !amount.Equal(amount.Round(MaxAmountScale)) {
		return invalid("amount", "cannot have more than %d decimal places", MaxAmountScale)
	}
	return nil
}

// maxSanitizePasses bounds how many layers of entity encoding are decoded.
const maxSanitizePasses = 4

var angleStripper = strings.NewReplacer("<", "", ">", "")

// SanitizeReason strips markup and surrounding whitespace from free text.
// POST: Result holds no markup, including markup smuggled in as entities
func SanitizeReason(s string) string {
	for range maxSanitizePasses {
		next := html.UnescapeString(reasonPolicy.Sanitize(html.UnescapeString(s)))
		if next == s {
			return strings.TrimSpace(s)
		}
		s = next
	}
	return strings.TrimSpace(angleStripper.Replace(s))
}

// IsExpired reports the derived expired status: an expiration is set, now is past it, and the fine is unpaid.
// INVARIANT: Fine fields are not mutated
func (f *Fine) IsExpired(now time.Time) bool {
	return !f.IsPaid && f.pastExpiration(now)
}

func (f *Fine) pastExpiration(now time.Time) bool {
	return !f.ExpirationDate.IsZero() && now.After(f.ExpirationDate)
}

// WasRejected reports whether a payment request has ever been rejected.
func (f *Fine) WasRejected() bool {
	return !f.LastRejectedAt.IsZero()
}

// Status returns the derived state shown to users.
// A pending request outranks expiry so the approver still sees it.
func (f *Fine) Status(now time.Time) Status {
	switch {
	case f.IsPaid:
		return StatusPaid
	case f.PaymentRequested:
		return StatusPaymentRequested
	case f.IsExpired(now):
		return StatusExpired
	default:
		return StatusUnpaid
	}
}

// RequestPayment records the receiver's claim that they have paid.
// PRE: caller passed the authorization gate
// POST: PaymentRequested is true, UpdatedAt is now; on error the fine is unchanged
func (f *Fine) RequestPayment(now time.Time) error {
	if f.pastExpiration(now) {
		return transition("fine expired on %s", f.ExpirationDate.UTC().Format(time.DateOnly))
	}
	if f.IsPaid {
		return transition("fine is already paid")
	}
	if f.PaymentRequested {
		return transition("payment has already been requested")
	}
	f.PaymentRequested = true
	f.UpdatedAt = now
	return nil
}

// Approve confirms a pending payment request.
// PRE: caller passed the authorization gate
// POST: IsPaid is true, PaymentRequested is false, PaidAt is now
func (f *Fine) Approve(now time.Time) error {
	if err := f.requirePendingRequest(); err != nil {
		return err
	}
	f.IsPaid = true
	f.PaymentRequested = false
	f.PaidAt = now
	f.UpdatedAt = now
	return nil
}

// Reject declines a pending payment request; the receiver may request again.
// PRE: caller passed the authorization gate
// POST: PaymentRequested is false, LastRejectedAt is now, RejectionCount incremented
func (f *Fine) Reject(now time.Time) error {
	if err := f.requirePendingRequest(); err != nil {
		return err
	}
	f.PaymentRequested = false
	f.LastRejectedAt = now
	f.RejectionCount++
	f.UpdatedAt = now
	return nil
}

func (f *Fine) requirePendingRequest() error {
	if f.IsPaid {
		return transition("fine is already paid")
	}
	if !f.PaymentRequested {
		return transition("no payment request is pending")
	}
	return nil
}
