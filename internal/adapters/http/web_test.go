package web

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clubhouse/internal/adapters/http/perf"
	"clubhouse/internal/adapters/notify"
	accountStore "clubhouse/internal/adapters/storage/account"
	fineStore "clubhouse/internal/adapters/storage/fine"
	outboxStore "clubhouse/internal/adapters/storage/outbox"
	"clubhouse/internal/adapters/storage/storagetest"
	"clubhouse/internal/application/orchestrators"
	"clubhouse/internal/domain/account"
	"clubhouse/internal/domain/outbox"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

var (
	adminAcct   = account.Account{ID: "a1", Email: "admin@clubhouse.local", DisplayName: "Avery Admin", Role: account.RoleAdmin}
	managerAcct = account.Account{ID: "m1", Email: "manager@clubhouse.local", DisplayName: "Morgan Manager", Role: account.RoleManager}
	staffAcct   = account.Account{ID: "s1", Email: "staff@clubhouse.local", DisplayName: "Sam Staff", Role: account.RoleStaff}
	player1     = account.Account{ID: "p1", Email: "pat@clubhouse.local", DisplayName: "Pat Jones", Role: account.RolePlayer}
	player2     = account.Account{ID: "p2", Email: "riley@clubhouse.local", DisplayName: "Riley Smith", Role: account.RolePlayer}
)

// stubExecutor stands in for the email channel.
type stubExecutor struct {
	mu       sync.Mutex
	err      error
	payloads []string
}

func (e *stubExecutor) Execute(ctx context.Context, payload string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.payloads = append(e.payloads, payload)
	if e.err != nil {
		return "", e.err
	}
	return "msg-" + strconv.Itoa(len(e.payloads)), nil
}

type harness struct {
	t       *testing.T
	srv     *Server
	handler http.Handler
	stores  Stores
	email   *stubExecutor
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := storagetest.SQLite(t)
	stores := Stores{
		AccountStore: accountStore.NewSQLiteStore(db),
		FineStore:    fineStore.NewSQLiteStore(db),
		OutboxStore:  outboxStore.NewSQLiteStore(db),
	}
	for _, a := range []account.Account{adminAcct, managerAcct, staffAcct, player1, player2} {
		a.CreatedAt = testNow.Add(-time.Hour)
		require.NoError(t, stores.AccountStore.Save(context.Background(), a))
	}

	email := &stubExecutor{}
	processor := orchestrators.NewOutboxProcessor(stores.OutboxStore, map[string]orchestrators.ActionExecutor{
		outbox.ActionTypeEmail: email,
	})
	srv := NewServer(Config{
		CSRFKey:            []byte(strings.Repeat("c", 32)),
		JWTSecret:          "web-test-secret-with-enough-length",
		RateLimitPerSecond: 10000,
		SlowRequest:        time.Hour,
		StaffDateLayout:    "02/01/2006",
		AdminDateLayout:    "2006-01-02 15:04",
	}, stores, notify.NewOutboxNotifier(stores.OutboxStore, outbox.ActionTypeEmail), processor, perf.NewCollector(100))
	srv.now = func() time.Time { return testNow }
	var seq atomic.Int64
	srv.newID = func() string { return "fine-" + strconv.FormatInt(seq.Add(1), 10) }

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return &harness{t: t, srv: srv, handler: srv.Routes(ctx), stores: stores, email: email}
}

// do sends a request as the given account (nil for anonymous) using a bearer token.
func (h *harness) do(method, path string, body any, as *account.Account) *httptest.ResponseRecorder {
	h.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, ok := body.(string)
		if !ok {
			b, err := json.Marshal(body)
			require.NoError(h.t, err)
			raw = string(b)
		}
		reader = bytes.NewReader([]byte(raw))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if as != nil {
		token, _, err := h.srv.tokens.Issue(*as)
		require.NoError(h.t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

// createFine issues a fine as the manager and returns its id.
func (h *harness) createFine(receiver string, amount any) string {
	h.t.Helper()
	rr := h.do(http.MethodPost, "/api/fines", map[string]any{
		"reason":         "Late to training",
		"amount":         amount,
		"receiverId":     receiver,
		"expirationDate": "2026-03-10",
	}, &managerAcct)
	require.Equal(h.t, http.StatusCreated, rr.Code, rr.Body.String())
	return decode[fineResponse](h.t, rr).ID
}

func TestHealthz(t *testing.T) {
	h := newHarness(t)
	rr := h.do(http.MethodGet, "/healthz", nil, nil)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
	assert.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
}

func TestUnknownRouteIsJSON404(t *testing.T) {
	h := newHarness(t)
	rr := h.do(http.MethodGet, "/api/nope", nil, &adminAcct)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.JSONEq(t, `{"error":"not found"}`, rr.Body.String())
}

func TestAPIRequiresAuthentication(t *testing.T) {
	h := newHarness(t)
	for _, path := range []string{"/api/fines", "/api/fines/export", "/api/me", "/api/admin/outbox"} {
		rr := h.do(http.MethodGet, path, nil, nil)
		assert.Equal(t, http.StatusUnauthorized, rr.Code, path)
	}
}

func TestLoginAndLogout(t *testing.T) {
	h := newHarness(t)
	withPassword := player1
	require.NoError(t, withPassword.SetPassword("correct horse battery"))
	require.NoError(t, h.stores.AccountStore.Save(context.Background(), withPassword))

	t.Run("wrong password", func(t *testing.T) {
		rr := h.do(http.MethodPost, "/api/login", loginRequest{Email: player1.Email, Password: "wrong password here"}, nil)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("unknown fields are rejected", func(t *testing.T) {
		rr := h.do(http.MethodPost, "/api/login", `{"email":"pat@clubhouse.local","password":"x","remember":true}`, nil)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	rr := h.do(http.MethodPost, "/api/login", loginRequest{Email: "PAT@clubhouse.local", Password: "correct horse battery"}, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	login := decode[loginResponse](t, rr)
	assert.Equal(t, "p1", login.Account.ID)
	assert.Equal(t, "player", login.Account.Role)
	require.NotEmpty(t, login.Token)

	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	session := cookies[0]

	t.Run("bearer token authenticates", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
		req.Header.Set("Authorization", "Bearer "+login.Token)
		rr := httptest.NewRecorder()
		h.handler.ServeHTTP(rr, req)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "Pat Jones", decode[accountResponse](t, rr).DisplayName)
	})

	sendWithCookie := func(method, path string) int {
		req := httptest.NewRequest(method, path, strings.NewReader("{}"))
		req.Header.Set("Content-Type", "application/json")
		req.AddCookie(session)
		rr := httptest.NewRecorder()
		h.handler.ServeHTTP(rr, req)
		return rr.Code
	}
	assert.Equal(t, http.StatusOK, sendWithCookie(http.MethodGet, "/api/me"))
	assert.Equal(t, http.StatusNoContent, sendWithCookie(http.MethodPost, "/api/logout"))
	assert.Equal(t, http.StatusUnauthorized, sendWithCookie(http.MethodGet, "/api/me"))
}
