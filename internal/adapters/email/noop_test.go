package email

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoopSender_RecordsSends(t *testing.T) {
	s := NewNoopSender()
	res, err := s.Send(context.Background(), SendRequest{To: []string{"a@b.co"}, Subject: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "noop-1", res.MessageID)
	assert.False(t, res.SentAt.IsZero())

	sent := s.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "hi", sent[0].Subject)
}

func TestResendSender_RejectsEmptyRecipients(t *testing.T) {
	s := NewResendSender("re_test", "Club <noreply@example.com>")
	_, err := s.Send(context.Background(), SendRequest{Subject: "hi"})
	assert.ErrorIs(t, err, ErrNoRecipients)
}
