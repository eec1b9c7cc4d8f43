package notify

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	goldmarkHTML "github.com/yuin/goldmark/renderer/html"

	"clubhouse/internal/adapters/email"
	"clubhouse/internal/domain/account"
	"clubhouse/internal/domain/notification"
)

// mdRenderer escapes raw HTML in markdown input; WithUnsafe is not set.
var mdRenderer = goldmark.New(
	goldmark.WithRendererOptions(
		goldmarkHTML.WithHardWraps(),
	),
)

// AccountLookup resolves the recipient of a notification.
type AccountLookup interface {
	GetByID(ctx context.Context, id string) (account.Account, error)
}

// EmailExecutor delivers queued notifications by email.
type EmailExecutor struct {
	Accounts AccountLookup
	Sender   email.Sender
}

// Execute sends the email for one outbox payload.
// PRE: payload was produced by Encode
// POST: Returns the provider message ID
// INVARIANT: outbox entry status managed by caller
func (x *EmailExecutor) Execute(ctx context.Context, payload string) (string, error) {
	e, err := Decode(payload)
	if err != nil {
		return "", err
	}
	acct, err := x.Accounts.GetByID(ctx, e.TargetUserID)
	if err != nil {
		return "", fmt.Errorf("lookup recipient %s: %w", e.TargetUserID, err)
	}

	text := renderBody(e, acct.DisplayName)
	var html bytes.Buffer
	if err := mdRenderer.Convert([]byte(text), &html); err != nil {
		return "", fmt.Errorf("render email: %w", err)
	}

	res, err := x.Sender.Send(ctx, email.SendRequest{
		To:      []string{acct.Email},
		Subject: e.Subject(),
		HTML:    html.String(),
		Text:    text,
	})
	if err != nil {
		return "", err
	}
	return res.MessageID, nil
}

// payloadLabels orders the well-known payload keys in the email body.
var payloadLabels = []struct{ key, label string }{
	{"reason", "Reason"},
	{"amount", "Amount"},
	{"expirationDate", "Due"},
	{"count", "Fines removed"},
}

// renderBody builds the markdown body for an event.
func renderBody(e notification.Event, name string) string {
	var b strings.Builder
	if name == "" {
		name = "there"
	}
	fmt.Fprintf(&b, "Hi %s,\n\n%s.\n\n", name, e.Subject())

	seen := make(map[string]bool, len(payloadLabels))
	for _, pl := range payloadLabels {
		seen[pl.key] = true
		if v := e.Payload[pl.key]; v != "" {
			fmt.Fprintf(&b, "- **%s:** %s\n", pl.label, v)
		}
	}
	var extra []string
	for k := range e.Payload {
		if !seen[k] {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	for _, k := range extra {
		fmt.Fprintf(&b, "- **%s:** %s\n", k, e.Payload[k])
	}
	return b.String()
}
