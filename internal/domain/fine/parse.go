package fine

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ParseAmount parses a decimal amount from user input.
// PRE: none
// POST: Returns a valid amount or a *ValidationError on field "amount"
func ParseAmount(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Decimal{}, invalid("amount", "is required")
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, invalid("amount", "must be a number")
	}
	if err := ValidateAmount(d); err != nil {
		return decimal.Decimal{}, err
	}
	return d, nil
}

// ParseExpiration parses an optional expiration date.
// Accepts RFC 3339 timestamps or YYYY-MM-DD dates; a bare date means the end of that day in UTC.
// PRE: none
// POST: Returns the zero time for empty input, or a *ValidationError on field "expirationDate"
func ParseExpiration(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t.UTC(), nil
	}
	if d, err := time.Parse(time.DateOnly, raw); err == nil {
		return d.Add(24*time.Hour - time.Second), nil
	}
	return time.Time{}, invalid("expirationDate", "must be an RFC 3339 timestamp or YYYY-MM-DD date")
}
