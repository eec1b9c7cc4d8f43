package orchestrators

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	outboxStore "clubhouse/internal/adapters/storage/outbox"
	"clubhouse/internal/adapters/storage/storagetest"
	"clubhouse/internal/domain/outbox"
)

type mockExecutor struct{ mock.Mock }

func (m *mockExecutor) Execute(ctx context.Context, payload string) (string, error) {
	args := m.Called(ctx, payload)
	return args.String(0), args.Error(1)
}

func pendingEntry(id, action string, created time.Time) outbox.Entry {
	return outbox.Entry{
		ID:          id,
		ActionType:  action,
		RefID:       "f1",
		Payload:     `{"id":"` + id + `"}`,
		Status:      outbox.StatusPending,
		MaxAttempts: 2,
		CreatedAt:   created,
	}
}

func newProcessor(store *memOutbox, exec ActionExecutor, now *time.Time) *OutboxProcessor {
	p := NewOutboxProcessor(store, map[string]ActionExecutor{outbox.ActionTypeEmail: exec})
	p.now = func() time.Time { return *now }
	return p
}

func TestOutboxProcessor_DeliversPending(t *testing.T) {
	store := newMemOutbox(pendingEntry("o1", outbox.ActionTypeEmail, fixedTime))
	exec := &mockExecutor{}
	exec.On("Execute", mock.Anything, `{"id":"o1"}`).Return("msg-1", nil).Once()
	now := fixedTime
	p := newProcessor(store, exec, &now)

	n, err := p.ProcessPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got := store.entries["o1"]
	assert.Equal(t, outbox.StatusDone, got.Status)
	assert.Equal(t, "msg-1", got.ExternalID)
	assert.Equal(t, 1, got.Attempts)
	exec.AssertExpectations(t)

	n, err = p.ProcessPending(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestOutboxProcessor_BackoffThenFail(t *testing.T) {
	store := newMemOutbox(pendingEntry("o1", outbox.ActionTypeEmail, fixedTime))
	exec := &mockExecutor{}
	exec.On("Execute", mock.Anything, mock.Anything).Return("", errors.New("smtp down"))
	now := fixedTime
	p := newProcessor(store, exec, &now)
	ctx := context.Background()

	_, err := p.ProcessPending(ctx)
	require.NoError(t, err)
	got := store.entries["o1"]
	assert.Equal(t, outbox.StatusRetrying, got.Status)
	assert.Equal(t, "smtp down", got.ErrorMessage)

	now = now.Add(30 * time.Second)
	n, err := p.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "backoff after one attempt is 60s")

	now = now.Add(31 * time.Second)
	n, err = p.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	got = store.entries["o1"]
	assert.Equal(t, outbox.StatusFailed, got.Status)
	assert.True(t, got.IsTerminal())
	exec.AssertNumberOfCalls(t, "Execute", 2)
}

func TestOutboxProcessor_BackedOffEntriesDoNotBlockNewer(t *testing.T) {
	store := outboxStore.NewSQLiteStore(storagetest.SQLite(t))
	ctx := context.Background()
	for i := range DefaultOutboxBatchSize {
		e := pendingEntry(fmt.Sprintf("n%02d", i), outbox.ActionTypeNATS, fixedTime.Add(time.Duration(i)*time.Second))
		e.MaxAttempts = outbox.DefaultMaxAttempts
		require.NoError(t, store.Save(ctx, e))
	}

	bus := &mockExecutor{}
	bus.On("Execute", mock.Anything, mock.Anything).Return("", errors.New("nats unavailable"))
	mail := &mockExecutor{}
	mail.On("Execute", mock.Anything, `{"id":"e1"}`).Return("msg-1", nil).Once()
	p := NewOutboxProcessor(store, map[string]ActionExecutor{
		outbox.ActionTypeNATS:  bus,
		outbox.ActionTypeEmail: mail,
	})
	now := fixedTime.Add(2 * time.Minute)
	p.now = func() time.Time { return now }

	n, err := p.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, DefaultOutboxBatchSize, n)

	require.NoError(t, store.Save(ctx, pendingEntry("e1", outbox.ActionTypeEmail, now)))
	now = now.Add(30 * time.Second)
	n, err = p.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := store.GetByID(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, outbox.StatusDone, got.Status)
	mail.AssertExpectations(t)
	bus.AssertNumberOfCalls(t, "Execute", DefaultOutboxBatchSize)
}

func TestOutboxProcessor_AbandonDuringDeliveryIsKept(t *testing.T) {
	store := outboxStore.NewSQLiteStore(storagetest.SQLite(t))
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, pendingEntry("o1", outbox.ActionTypeEmail, fixedTime)))

	exec := &mockExecutor{}
	exec.On("Execute", mock.Anything, mock.Anything).Return("msg-1", nil).Run(func(mock.Arguments) {
		_, err := store.AbandonPendingByRef(ctx, []string{"f1"})
		require.NoError(t, err)
	})
	p := NewOutboxProcessor(store, map[string]ActionExecutor{outbox.ActionTypeEmail: exec})
	p.now = fixedNow

	n, err := p.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := store.GetByID(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, outbox.StatusAbandoned, got.Status)
	assert.Zero(t, got.Attempts)
	assert.Empty(t, got.ExternalID)
}

func TestOutboxProcessor_UnknownActionType(t *testing.T) {
	e := pendingEntry("o1", "carrier-pigeon", fixedTime)
	e.MaxAttempts = 1
	store := newMemOutbox(e)
	now := fixedTime
	p := newProcessor(store, &mockExecutor{}, &now)

	_, err := p.ProcessPending(context.Background())
	require.NoError(t, err)
	got := store.entries["o1"]
	assert.Equal(t, outbox.StatusFailed, got.Status)
	assert.Contains(t, got.ErrorMessage, "no executor")
}

func TestOutboxProcessor_RetryAndAbandon(t *testing.T) {
	failed := pendingEntry("o1", outbox.ActionTypeEmail, fixedTime)
	failed.Status = outbox.StatusFailed
	failed.Attempts = 2
	done := pendingEntry("o2", outbox.ActionTypeEmail, fixedTime)
	done.Status = outbox.StatusDone
	store := newMemOutbox(failed, done, pendingEntry("o3", outbox.ActionTypeEmail, fixedTime))
	exec := &mockExecutor{}
	exec.On("Execute", mock.Anything, mock.Anything).Return("msg-9", nil)
	now := fixedTime
	p := newProcessor(store, exec, &now)
	ctx := context.Background()

	got, err := p.RetryEntry(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, outbox.StatusDone, got.Status)
	assert.Equal(t, 1, got.Attempts)

	_, err = p.RetryEntry(ctx, "o2")
	assert.ErrorIs(t, err, outbox.ErrTerminal)
	_, err = p.RetryEntry(ctx, "missing")
	assert.ErrorIs(t, err, outbox.ErrNotFound)

	got, err = p.AbandonEntry(ctx, "o3")
	require.NoError(t, err)
	assert.Equal(t, outbox.StatusAbandoned, got.Status)
	_, err = p.AbandonEntry(ctx, "o2")
	assert.ErrorIs(t, err, outbox.ErrTerminal)

	_, err = p.RetryEntry(ctx, "o3")
	assert.ErrorIs(t, err, outbox.ErrTerminal)
}

func TestOutboxProcessor_ListEntries(t *testing.T) {
	failed := pendingEntry("o1", outbox.ActionTypeEmail, fixedTime)
	failed.Status = outbox.StatusFailed
	store := newMemOutbox(failed, pendingEntry("o2", outbox.ActionTypeEmail, fixedTime.Add(time.Second)))
	now := fixedTime
	p := newProcessor(store, &mockExecutor{}, &now)

	got, err := p.ListEntries(context.Background(), false, 10)
	require.NoError(t, err)
	assert.Len(t, got, 1)
	got, err = p.ListEntries(context.Background(), true, 10)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestStartBackgroundWorker_StopsOnCancel(t *testing.T) {
	store := newMemOutbox(pendingEntry("o1", outbox.ActionTypeEmail, fixedTime))
	exec := &mockExecutor{}
	exec.On("Execute", mock.Anything, mock.Anything).Return("msg-1", nil)
	now := fixedTime
	p := newProcessor(store, exec, &now)

	ctx, cancel := context.WithCancel(context.Background())
	done := StartBackgroundWorker(ctx, p, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		e, _ := store.GetByID(context.Background(), "o1")
		return e.Status == outbox.StatusDone
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
