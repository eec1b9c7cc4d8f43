package fine_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clubhouse/internal/adapters/storage"
	store "clubhouse/internal/adapters/storage/fine"
	"clubhouse/internal/adapters/storage/storagetest"
	domain "clubhouse/internal/domain/fine"
)

func TestSQLiteStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T) store.Store {
		return store.NewSQLiteStore(storagetest.SQLite(t))
	})
}

func TestSQLiteStore_TimedDB(t *testing.T) {
	s := store.NewSQLiteStore(storage.NewTimedDB(storagetest.SQLite(t), time.Second))
	f := mustFine(t, "f1", "m1", "p1")
	require.NoError(t, s.Create(context.Background(), f))
	got, err := s.GetByID(context.Background(), "f1")
	require.NoError(t, err)
	assert.Equal(t, "f1", got.ID)
}

func TestPostgresStore(t *testing.T) {
	pool := storagetest.Postgres(t)
	runStoreContract(t, func(t *testing.T) store.Store {
		_, err := pool.Exec(context.Background(), "TRUNCATE fine RESTART IDENTITY")
		require.NoError(t, err)
		return store.NewPostgresStore(pool)
	})
}

// base is truncated to microseconds so Postgres round-trips compare equal.
var base = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

func mustFine(t *testing.T, id, creator, receiver string) domain.Fine {
	t.Helper()
	f, err := domain.New(id, creator, domain.NewInput{
		Reason:         "Late arrival, again",
		Amount:         decimal.RequireFromString("20.50"),
		ReceiverID:     receiver,
		ExpirationDate: base.Add(7 * 24 * time.Hour),
	}, base)
	require.NoError(t, err)
	return f
}

func ids(fines []domain.Fine) []string {
	out := make([]string, len(fines))
	for i, f := range fines {
		out[i] = f.ID
	}
	return out
}

func runStoreContract(t *testing.T, open func(t *testing.T) store.Store) {
	ctx := context.Background()

	t.Run("create and get round trip", func(t *testing.T) {
		s := open(t)
		f := mustFine(t, "f1", "m1", "p1")
		require.NoError(t, s.Create(ctx, f))

		got, err := s.GetByID(ctx, "f1")
		require.NoError(t, err)
		assert.Equal(t, f.Reason, got.Reason)
		assert.True(t, f.Amount.Equal(got.Amount))
		assert.Equal(t, "m1", got.CreatorID)
		assert.Equal(t, "p1", got.ReceiverID)
		assert.True(t, got.IsActive)
		assert.False(t, got.IsPaid)
		assert.False(t, got.PaymentRequested)
		assert.True(t, f.ExpirationDate.Equal(got.ExpirationDate))
		assert.True(t, base.Equal(got.CreatedAt))
		assert.True(t, got.PaidAt.IsZero())
		assert.True(t, got.LastRejectedAt.IsZero())
		assert.Equal(t, 1, got.Version)

		_, err = s.GetByID(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("update bumps version and persists transition", func(t *testing.T) {
		s := open(t)
		f := mustFine(t, "f1", "m1", "p1")
		require.NoError(t, s.Create(ctx, f))

		require.NoError(t, f.RequestPayment(base.Add(time.Hour)))
		updated, err := s.Update(ctx, f)
		require.NoError(t, err)
		assert.Equal(t, 2, updated.Version)

		require.NoError(t, updated.Reject(base.Add(2*time.Hour)))
		updated, err = s.Update(ctx, updated)
		require.NoError(t, err)

		got, err := s.GetByID(ctx, "f1")
		require.NoError(t, err)
		assert.Equal(t, 3, got.Version)
		assert.False(t, got.PaymentRequested)
		assert.Equal(t, 1, got.RejectionCount)
		assert.True(t, base.Add(2*time.Hour).Equal(got.LastRejectedAt))
		assert.True(t, base.Add(2*time.Hour).Equal(got.UpdatedAt))
	})

	t.Run("stale version conflicts", func(t *testing.T) {
		s := open(t)
		f := mustFine(t, "f1", "m1", "p1")
		require.NoError(t, s.Create(ctx, f))

		first := f
		require.NoError(t, first.RequestPayment(base))
		_, err := s.Update(ctx, first)
		require.NoError(t, err)

		stale := f
		stale.IsActive = false
		_, err = s.Update(ctx, stale)
		assert.ErrorIs(t, err, domain.ErrStoreConflict)

		got, err := s.GetByID(ctx, "f1")
		require.NoError(t, err)
		assert.True(t, got.IsActive, "conflicting write must not land")

		ghost := mustFine(t, "ghost", "m1", "p1")
		_, err = s.Update(ctx, ghost)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("concurrent approvals: exactly one wins", func(t *testing.T) {
		s := open(t)
		f := mustFine(t, "f1", "m1", "p1")
		require.NoError(t, f.RequestPayment(base))
		require.NoError(t, s.Create(ctx, f))

		const workers = 8
		var wg sync.WaitGroup
		results := make(chan error, workers)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				loaded := f
				if err := loaded.Approve(base.Add(time.Minute)); err != nil {
					results <- err
					return
				}
				_, err := s.Update(ctx, loaded)
				results <- err
			}()
		}
		wg.Wait()
		close(results)

		var ok, conflicts int
		for err := range results {
			if err == nil {
				ok++
				continue
			}
			assert.ErrorIs(t, err, domain.ErrStoreConflict)
			conflicts++
		}
		assert.Equal(t, 1, ok)
		assert.Equal(t, workers-1, conflicts)

		got, err := s.GetByID(ctx, "f1")
		require.NoError(t, err)
		assert.True(t, got.IsPaid)
		assert.False(t, got.PaymentRequested)
		assert.Equal(t, 2, got.Version)
	})

	t.Run("list preserves store order and filters", func(t *testing.T) {
		s := open(t)
		for i, pair := range [][2]string{{"m1", "p1"}, {"s1", "p2"}, {"m1", "p2"}, {"s1", "p1"}} {
			require.NoError(t, s.Create(ctx, mustFine(t, fmt.Sprintf("f%d", i+1), pair[0], pair[1])))
		}

		all, err := s.List(ctx, store.ListFilter{})
		require.NoError(t, err)
		assert.Equal(t, []string{"f1", "f2", "f3", "f4"}, ids(all))

		p1, err := s.List(ctx, store.ListFilter{ReceiverID: "p1"})
		require.NoError(t, err)
		assert.Equal(t, []string{"f1", "f4"}, ids(p1))

		m1, err := s.List(ctx, store.FromScope(domain.Scope{CreatorID: "m1"}))
		require.NoError(t, err)
		assert.Equal(t, []string{"f1", "f3"}, ids(m1))

		both, err := s.List(ctx, store.ListFilter{CreatorID: "s1", ReceiverID: "p2"})
		require.NoError(t, err)
		assert.Equal(t, []string{"f2"}, ids(both))
	})

	t.Run("delete", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.Create(ctx, mustFine(t, "f1", "m1", "p1")))
		require.NoError(t, s.Delete(ctx, "f1"))
		assert.ErrorIs(t, s.Delete(ctx, "f1"), domain.ErrNotFound)
	})

	t.Run("delete by receiver leaves other players untouched", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.Create(ctx, mustFine(t, "f1", "m1", "p1")))
		require.NoError(t, s.Create(ctx, mustFine(t, "f2", "m1", "p2")))
		require.NoError(t, s.Create(ctx, mustFine(t, "f3", "s1", "p1")))

		removed, err := s.DeleteByReceiver(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, []string{"f1", "f3"}, ids(removed))
		assert.True(t, removed[0].Amount.Equal(decimal.RequireFromString("20.50")))

		left, err := s.List(ctx, store.ListFilter{})
		require.NoError(t, err)
		assert.Equal(t, []string{"f2"}, ids(left))

		none, err := s.DeleteByReceiver(ctx, "p1")
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("delete all", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.Create(ctx, mustFine(t, "f1", "m1", "p1")))
		require.NoError(t, s.Create(ctx, mustFine(t, "f2", "m1", "p2")))

		removed, err := s.DeleteAll(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"f1", "f2"}, ids(removed))

		left, err := s.List(ctx, store.ListFilter{})
		require.NoError(t, err)
		assert.Empty(t, left)
	})
}
