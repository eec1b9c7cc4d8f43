package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"clubhouse/pkg/logger"
)

// Publisher is the slice of *nats.Conn used by NATSExecutor.
type Publisher interface {
	Publish(subject string, data []byte) error
}

var _ Publisher = (*nats.Conn)(nil)

// NATSExecutor publishes queued notifications on the message bus.
type NATSExecutor struct {
	Conn          Publisher
	SubjectPrefix string
}

// Execute publishes one outbox payload on <prefix>.<type>.
// PRE: payload was produced by Encode
// POST: Returns the subject the message was published on
// INVARIANT: outbox entry status managed by caller
func (x *NATSExecutor) Execute(_ context.Context, payload string) (string, error) {
	e, err := Decode(payload)
	if err != nil {
		return "", err
	}
	subject := Subject(x.SubjectPrefix, e.Type)
	if err := x.Conn.Publish(subject, []byte(payload)); err != nil {
		return "", fmt.Errorf("publish %s: %w", subject, err)
	}
	return subject, nil
}

// Subject joins the configured prefix and event type.
func Subject(prefix, eventType string) string {
	prefix = strings.TrimSuffix(prefix, ".")
	if prefix == "" {
		return eventType
	}
	return prefix + "." + eventType
}

// ConnectNATS dials the bus with reconnect handling.
// POST: Returns a live connection; caller drains or closes it
func ConnectNATS(ctx context.Context, url string) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name("clubhouse"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats_disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	}
	if deadline, ok := ctx.Deadline(); ok {
		opts = append(opts, nats.Timeout(time.Until(deadline)))
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	logger.Info("nats_connected", "url", nc.ConnectedUrl())
	return nc, nil
}
