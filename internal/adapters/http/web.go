package web

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"clubhouse/internal/adapters/http/middleware"
	"clubhouse/internal/adapters/http/perf"
	accountStore "clubhouse/internal/adapters/storage/account"
	fineStore "clubhouse/internal/adapters/storage/fine"
	outboxStore "clubhouse/internal/adapters/storage/outbox"
	"clubhouse/internal/application/orchestrators"
	"clubhouse/internal/domain/account"
	"clubhouse/internal/domain/notification"
)

// Stores holds all storage dependencies.
type Stores struct {
	AccountStore accountStore.Store
	FineStore    fineStore.Store
	OutboxStore  outboxStore.Store
}

// Config carries the HTTP-facing settings.
type Config struct {
	CSRFKey            []byte
	Secure             bool // production: Secure cookies and HTTPS CSRF checks
	TrustedOrigins     []string
	JWTSecret          string
	RateLimitPerSecond int
	SlowRequest        time.Duration
	StaffDateLayout    string
	AdminDateLayout    string
}

// Server owns the handler dependencies.
type Server struct {
	cfg       Config
	stores    Stores
	notifier  notification.Notifier
	processor *orchestrators.OutboxProcessor
	collector *perf.Collector
	sessions  *middleware.SessionStore
	tokens    *middleware.Tokens
	now       func() time.Time
	newID     func() string
}

// NewServer wires a Server. collector may be nil.
// PRE: stores are non-nil, processor delivers from stores.OutboxStore
func NewServer(cfg Config, stores Stores, notifier notification.Notifier, processor *orchestrators.OutboxProcessor, collector *perf.Collector) *Server {
	middleware.SecureCookies = cfg.Secure
	return &Server{
		cfg:       cfg,
		stores:    stores,
		notifier:  notifier,
		processor: processor,
		collector: collector,
		sessions:  middleware.NewSessionStore(),
		tokens:    middleware.NewTokens(cfg.JWTSecret),
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
	}
}

// Routes builds the router. ctx bounds background middleware state such as the rate limiter sweep.
// Middleware order: SecurityHeaders -> CSRF -> Auth -> RateLimit -> Timing -> handler.
func (s *Server) Routes(ctx context.Context) http.Handler {
	limit := s.cfg.RateLimitPerSecond
	if limit <= 0 {
		limit = 10
	}

	r := chi.NewRouter()
	r.Use(
		middleware.SecurityHeaders,
		middleware.CSRF(s.cfg.CSRFKey, middleware.CSRFOptions{Secure: s.cfg.Secure, TrustedOrigins: s.cfg.TrustedOrigins}),
		middleware.Auth(s.sessions, s.tokens),
		middleware.RateLimit(middleware.NewRateLimiter(ctx, limit, time.Second)),
		middleware.Timing(s.collector, s.cfg.SlowRequest),
	)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/healthz", s.handleHealthz)

	r.Route("/api", func(r chi.Router) {
		r.Post("/login", s.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth)
			r.Post("/logout", s.handleLogout)
			r.Get("/me", s.handleMe)

			r.Route("/fines", func(r chi.Router) {
				r.Get("/", s.handleListFines)
				r.Post("/", s.handleCreateFine)
				r.Get("/export", s.handleExportFines)
				r.Route("/{id}", func(r chi.Router) {
					r.Post("/request-payment", s.handleRequestPayment)
					r.Post("/approve", s.handleApprovePayment)
					r.Post("/reject", s.handleRejectPayment)
					r.Delete("/", s.handleDeleteFine)
				})
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.RequireRole(account.RoleAdmin))
				r.Post("/fines/reset", s.handleResetFines)
				r.Get("/outbox", s.handleListOutbox)
				r.Post("/outbox/{id}/retry", s.handleRetryOutbox)
				r.Post("/outbox/{id}/abandon", s.handleAbandonOutbox)
				r.Get("/perf", s.handlePerf)
			})
		})
	})
	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// actor returns the authenticated actor. Routes behind RequireAuth always have one.
func actor(r *http.Request) account.Actor {
	sess, _ := middleware.GetSessionFromContext(r.Context())
	return sess.Actor()
}
