package orchestrators

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	fineStore "clubhouse/internal/adapters/storage/fine"
	"clubhouse/internal/domain/account"
	"clubhouse/internal/domain/fine"
	"clubhouse/internal/domain/notification"
	"clubhouse/internal/domain/outbox"
)

var fixedTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return fixedTime }

var (
	admin   = account.Actor{ID: "admin", Role: account.RoleAdmin}
	manager = account.Actor{ID: "m1", Role: account.RoleManager}
	staff   = account.Actor{ID: "s1", Role: account.RoleStaff}
	player1 = account.Actor{ID: "p1", Role: account.RolePlayer}
	player2 = account.Actor{ID: "p2", Role: account.RolePlayer}
)

// memFineStore is an in-memory fineStore.Store with the same version semantics as the SQL stores.
type memFineStore struct {
	mu        sync.Mutex
	fines     map[string]fine.Fine
	order     []string
	updateErr error
}

var _ fineStore.Store = (*memFineStore)(nil)

func newMemFineStore() *memFineStore {
	return &memFineStore{fines: make(map[string]fine.Fine)}
}

func (s *memFineStore) GetByID(_ context.Context, id string) (fine.Fine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.fines[id]
	if !ok {
		return fine.Fine{}, fine.ErrNotFound
	}
	return f, nil
}

func (s *memFineStore) Create(_ context.Context, f fine.Fine) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.fines[f.ID]; ok {
		return errors.New("duplicate id")
	}
	s.fines[f.ID] = f
	s.order = append(s.order, f.ID)
	return nil
}

func (s *memFineStore) Update(_ context.Context, f fine.Fine) (fine.Fine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return fine.Fine{}, s.updateErr
	}
	cur, ok := s.fines[f.ID]
	if !ok {
		return fine.Fine{}, fine.ErrNotFound
	}
	if cur.Version != f.Version {
		return fine.Fine{}, fine.ErrStoreConflict
	}
	f.Version++
	s.fines[f.ID] = f
	return f, nil
}

func (s *memFineStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.fines[id]; !ok {
		return fine.ErrNotFound
	}
	s.remove(id)
	return nil
}

func (s *memFineStore) DeleteAll(ctx context.Context) ([]fine.Fine, error) {
	return s.deleteWhere(func(fine.Fine) bool { return true })
}

func (s *memFineStore) DeleteByReceiver(_ context.Context, receiverID string) ([]fine.Fine, error) {
	return s.deleteWhere(func(f fine.Fine) bool { return f.ReceiverID == receiverID })
}

func (s *memFineStore) List(_ context.Context, filter fineStore.ListFilter) ([]fine.Fine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []fine.Fine
	for _, id := range s.order {
		f := s.fines[id]
		if filter.ReceiverID != "" && f.ReceiverID != filter.ReceiverID {
			continue
		}
		if filter.CreatorID != "" && f.CreatorID != filter.CreatorID {
			continue
		}
		out = append(out, f)
	}
	return out, nil
}

func (s *memFineStore) deleteWhere(match func(fine.Fine) bool) ([]fine.Fine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed []fine.Fine
	for _, id := range append([]string(nil), s.order...) {
		if f := s.fines[id]; match(f) {
			removed = append(removed, f)
			s.remove(id)
		}
	}
	return removed, nil
}

func (s *memFineStore) remove(id string) {
	delete(s.fines, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}

// memAccountStore keeps accounts keyed by id.
type memAccountStore struct {
	mu       sync.Mutex
	accounts map[string]account.Account
	saves    int
}

func newMemAccountStore(accts ...account.Account) *memAccountStore {
	s := &memAccountStore{accounts: make(map[string]account.Account)}
	for _, a := range accts {
		s.accounts[a.ID] = a
	}
	return s
}

func (s *memAccountStore) GetByID(_ context.Context, id string) (account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return account.Account{}, account.ErrNotFound
	}
	return a, nil
}

func (s *memAccountStore) GetByEmail(_ context.Context, email string) (account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if strings.EqualFold(a.Email, strings.TrimSpace(email)) {
			return a, nil
		}
	}
	return account.Account{}, account.ErrNotFound
}

func (s *memAccountStore) Save(_ context.Context, a account.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[a.ID] = a
	s.saves++
	return nil
}

func (s *memAccountStore) emails() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, a := range s.accounts {
		out = append(out, a.Email)
	}
	sort.Strings(out)
	return out
}

// memOutbox is an in-memory outboxStore.Store.
type memOutbox struct {
	mu         sync.Mutex
	entries    map[string]outbox.Entry
	abandonErr error
	abandoned  [][]string
}

func newMemOutbox(entries ...outbox.Entry) *memOutbox {
	o := &memOutbox{entries: make(map[string]outbox.Entry)}
	for _, e := range entries {
		o.entries[e.ID] = e
	}
	return o
}

func (o *memOutbox) GetByID(_ context.Context, id string) (outbox.Entry, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	e, ok := o.entries[id]
	if !ok {
		return outbox.Entry{}, outbox.ErrNotFound
	}
	return e, nil
}

func (o *memOutbox) Save(_ context.Context, e outbox.Entry) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.entries[e.ID] = e
	return nil
}

func (o *memOutbox) sorted(keep func(outbox.Entry) bool) []outbox.Entry {
	var out []outbox.Entry
	for _, e := range o.entries {
		if keep(e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (o *memOutbox) UpdateAttempt(_ context.Context, e outbox.Entry) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	cur, ok := o.entries[e.ID]
	if !ok || cur.Status == outbox.StatusAbandoned {
		return false, nil
	}
	o.entries[e.ID] = e
	return true, nil
}

func (o *memOutbox) ListDue(_ context.Context, now time.Time, limit int) ([]outbox.Entry, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := o.sorted(func(e outbox.Entry) bool {
		return (e.Status == outbox.StatusPending || e.Status == outbox.StatusRetrying) && e.IsDue(now)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (o *memOutbox) ListFailed(_ context.Context, limit int) ([]outbox.Entry, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sorted(func(e outbox.Entry) bool { return e.Status == outbox.StatusFailed }), nil
}

func (o *memOutbox) ListRecent(_ context.Context, limit int) ([]outbox.Entry, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sorted(func(outbox.Entry) bool { return true }), nil
}

func (o *memOutbox) AbandonPendingByRef(_ context.Context, refIDs []string) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.abandoned = append(o.abandoned, refIDs)
	if o.abandonErr != nil {
		return 0, o.abandonErr
	}
	n := 0
	for _, ref := range refIDs {
		for id, e := range o.entries {
			if e.RefID == ref && (e.Status == outbox.StatusPending || e.Status == outbox.StatusRetrying) {
				e.Status = outbox.StatusAbandoned
				o.entries[id] = e
				n++
			}
		}
	}
	return n, nil
}

// mockNotifier records events through testify/mock.
type mockNotifier struct{ mock.Mock }

func (m *mockNotifier) Notify(ctx context.Context, e notification.Event) error {
	return m.Called(ctx, e).Error(0)
}

func (m *mockNotifier) events() []notification.Event {
	var out []notification.Event
	for _, c := range m.Calls {
		if c.Method == "Notify" {
			out = append(out, c.Arguments.Get(1).(notification.Event))
		}
	}
	return out
}

func acceptingNotifier() *mockNotifier {
	n := &mockNotifier{}
	n.On("Notify", mock.Anything, mock.Anything).Return(nil)
	return n
}

func playerAccounts() *memAccountStore {
	return newMemAccountStore(
		account.Account{ID: "p1", Email: "pat@example.com", DisplayName: "Pat", Role: account.RolePlayer},
		account.Account{ID: "p2", Email: "riley@example.com", DisplayName: "Riley", Role: account.RolePlayer},
		account.Account{ID: "m1", Email: "morgan@example.com", DisplayName: "Morgan", Role: account.RoleManager},
		account.Account{ID: "s1", Email: "sam@example.com", DisplayName: "Sam", Role: account.RoleStaff},
	)
}

var fineStoreAll = fineStore.ListFilter{}
