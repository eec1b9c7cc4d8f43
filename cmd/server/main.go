package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	emailPkg "clubhouse/internal/adapters/email"
	web "clubhouse/internal/adapters/http"
	"clubhouse/internal/adapters/http/perf"
	"clubhouse/internal/adapters/notify"
	"clubhouse/internal/adapters/storage"
	accountStore "clubhouse/internal/adapters/storage/account"
	fineStore "clubhouse/internal/adapters/storage/fine"
	outboxStore "clubhouse/internal/adapters/storage/outbox"
	"clubhouse/internal/application/orchestrators"
	"clubhouse/internal/config"
	"clubhouse/internal/domain/outbox"
	"clubhouse/pkg/logger"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

const shutdownTimeout = 15 * time.Second

func main() {
	logger.Init("info", false)
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config_invalid", err)
	}
	logger.Init(cfg.LogLevel, !cfg.IsProduction())
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	collector := perf.NewCollector(perf.DefaultRingSize)
	stores, closeDB, err := openStores(ctx, cfg, collector)
	if err != nil {
		logger.Fatal("database_unavailable", err)
	}
	defer closeDB()

	created, err := orchestrators.ExecuteSeedAccounts(ctx, orchestrators.SeedAccountsInput{
		AdminEmail:    cfg.AdminEmail,
		AdminPassword: cfg.AdminPassword,
		Demo:          !cfg.IsProduction(),
	}, orchestrators.SeedAccountsDeps{AccountStore: stores.AccountStore})
	if err != nil {
		logger.Fatal("seed_failed", err)
	}
	if created > 0 {
		logger.Info("seed_complete", "accounts", created)
	}

	executors, channels, closeBus := notificationChannels(ctx, cfg, stores.AccountStore)
	defer closeBus()

	notifier := notify.NewOutboxNotifier(stores.OutboxStore, channels...)
	processor := orchestrators.NewOutboxProcessor(stores.OutboxStore, executors)
	workerDone := orchestrators.StartBackgroundWorker(ctx, processor, cfg.OutboxInterval)

	server := web.NewServer(web.Config{
		CSRFKey:            cfg.CSRFKey,
		Secure:             cfg.IsProduction(),
		JWTSecret:          cfg.JWTSecret,
		RateLimitPerSecond: cfg.RateLimitPerSecond,
		SlowRequest:        cfg.SlowRequest,
		StaffDateLayout:    cfg.StaffDateLayout,
		AdminDateLayout:    cfg.AdminDateLayout,
	}, stores, notifier, processor, collector)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Routes(ctx),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server_starting", "version", version, "addr", cfg.Addr, "env", cfg.Env, "db_driver", cfg.DBDriver, "channels", channels)
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server_failed", "error", err)
		}
		stop()
	case <-ctx.Done():
	}

	logger.Info("server_stopping")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server_shutdown_failed", "error", err)
	}
	<-workerDone
	logger.Info("server_stopped")
}

// openStores migrates and opens the configured database and builds the stores on top of it.
func openStores(ctx context.Context, cfg *config.Config, collector *perf.Collector) (web.Stores, func(), error) {
	switch cfg.DBDriver {
	case config.DriverPostgres:
		if err := storage.MigratePostgres(cfg.DatabaseURL); err != nil {
			return web.Stores{}, nil, err
		}
		pool, err := storage.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return web.Stores{}, nil, err
		}
		return web.Stores{
			AccountStore: accountStore.NewPostgresStore(pool),
			FineStore:    fineStore.NewPostgresStore(pool),
			OutboxStore:  outboxStore.NewPostgresStore(pool),
		}, pool.Close, nil
	default:
		if err := storage.MigrateSQLite(cfg.DBPath); err != nil {
			return web.Stores{}, nil, err
		}
		db, err := storage.OpenSQLite(ctx, cfg.DBPath)
		if err != nil {
			return web.Stores{}, nil, err
		}
		timed := storage.NewTimedDB(db, 0)
		timed.OnQuery(collector.RecordQuery)
		return web.Stores{
			AccountStore: accountStore.NewSQLiteStore(timed),
			FineStore:    fineStore.NewSQLiteStore(timed),
			OutboxStore:  outboxStore.NewSQLiteStore(timed),
		}, func() { _ = db.Close() }, nil
	}
}

// notificationChannels builds one executor per delivery channel. Email is always on;
// the message bus is added when CLUBHOUSE_NATS_URL is set and reachable.
func notificationChannels(ctx context.Context, cfg *config.Config, accounts notify.AccountLookup) (map[string]orchestrators.ActionExecutor, []string, func()) {
	var sender emailPkg.Sender
	if cfg.ResendKey != "" {
		sender = emailPkg.NewResendSender(cfg.ResendKey, cfg.ResendFrom)
		logger.Info("email_sender_configured", "provider", "resend")
	} else {
		sender = emailPkg.NewNoopSender()
		if cfg.IsProduction() {
			logger.Warn("email_delivery_disabled", "reason", "CLUBHOUSE_RESEND_KEY is not set")
		}
	}

	executors := map[string]orchestrators.ActionExecutor{
		outbox.ActionTypeEmail: &notify.EmailExecutor{Accounts: accounts, Sender: sender},
	}
	channels := []string{outbox.ActionTypeEmail}
	closeBus := func() {}

	if cfg.NATSURL != "" {
		conn, err := notify.ConnectNATS(ctx, cfg.NATSURL)
		if err != nil {
			logger.Error("nats_unavailable", "url", cfg.NATSURL, "error", err)
			return executors, channels, closeBus
		}
		executors[outbox.ActionTypeNATS] = &notify.NATSExecutor{Conn: conn, SubjectPrefix: cfg.NotifySubjectPrefix}
		channels = append(channels, outbox.ActionTypeNATS)
		closeBus = func() { _ = conn.Drain() }
	}
	return executors, channels, closeBus
}
