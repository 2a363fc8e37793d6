package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/nats-io/nats.go"

	"github.com/daily-planner/planner/internal/app/identity"
	"github.com/daily-planner/planner/internal/app/todos"
	"github.com/daily-planner/planner/internal/app/web"
	"github.com/daily-planner/planner/internal/platform/auth"
	"github.com/daily-planner/planner/internal/platform/config"
	"github.com/daily-planner/planner/internal/platform/dbpool"
	"github.com/daily-planner/planner/internal/platform/logging"
	"github.com/daily-planner/planner/internal/platform/natsutil"
	"github.com/daily-planner/planner/internal/platform/sqlitedb"
)

type schemaEnsurer interface {
	EnsureSchema(ctx context.Context) error
}

// stores is the storage backend picked by configuration.
type stores struct {
	identity identity.Repository
	todos    todos.Repository
	ping     func(ctx context.Context) error
	close    func()
}

func main() {
	configPath := flag.String("config", "", "path to a config file (defaults to $PLANNER_CONFIG)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log.Level, cfg.Log.Format)

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(runCtx, cfg.Storage)
	if err != nil {
		logger.Fatal("open storage", "driver", cfg.Storage.Driver, "err", err)
	}
	defer st.close()

	for _, repo := range []schemaEnsurer{st.identity, st.todos} {
		if err := waitForSchema(runCtx, logger, repo, 30*time.Second); err != nil {
			logger.Fatal("ensure schema", "err", err)
		}
	}

	var (
		publisher natsutil.Publisher
		feed      *web.Feed
		natsConn  *nats.Conn
	)
	if cfg.NATS.URL != "" {
		client, err := natsutil.ConnectJetStreamWithRetry(runCtx, cfg.NATS.URL, cfg.NATS.ConnectTimeout)
		if err != nil {
			logger.Fatal("connect nats", "url", cfg.NATS.URL, "err", err)
		}
		defer client.Close()
		natsConn = client.Conn
		publisher = natsutil.JetStreamPublisher{JS: client.JS}
		feed = web.NewFeed(natsutil.JetStreamListener{JS: client.JS}, logger.WithPrefix("feed"))
	} else {
		logger.Info("nats.url not set, change feed disabled")
	}

	identitySvc := identity.NewService(st.identity, auth.NewManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTTL), cfg.Auth.RefreshTTL)
	todoSvc := todos.NewService(st.todos, publisher, logger.WithPrefix("todos"))

	srv := web.NewServer(web.Options{
		Identity:      identitySvc,
		Todos:         todoSvc,
		Feed:          feed,
		Logger:        logger.WithPrefix("http"),
		Ready:         readiness(st.ping, natsConn),
		SecureCookies: cfg.Auth.SecureCookies,
		AllowedOrigin: cfg.HTTP.AllowedOrigin,
		InlineLimit:   cfg.Search.InlineLimit,
		StoreTimeout:  cfg.HTTP.StoreTimeout,
	})

	// WriteTimeout stays unset: /events responses are long-lived.
	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	logger.Info("planner web listening", "addr", cfg.HTTP.Addr, "storage", cfg.Storage.Driver, "feed", feed != nil)
	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		logger.Fatal("http server", "err", err)
	case <-runCtx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "err", err)
	}
}

func openStores(ctx context.Context, cfg config.StorageConfig) (stores, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		pool, err := dbpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return stores{}, err
		}
		return stores{
			identity: identity.NewPostgresRepository(pool),
			todos:    todos.NewPostgresRepository(pool),
			ping:     pool.Ping,
			close:    pool.Close,
		}, nil
	default:
		db, err := sqlitedb.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return stores{}, err
		}
		return stores{
			identity: identity.NewSQLiteRepository(db),
			todos:    todos.NewSQLiteRepository(db),
			ping:     db.PingContext,
			close:    func() { _ = db.Close() },
		}, nil
	}
}

func waitForSchema(ctx context.Context, logger *log.Logger, repo schemaEnsurer, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		attemptCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		lastErr = repo.EnsureSchema(attemptCtx)
		cancel()
		if lastErr == nil {
			return nil
		}
		logger.Warn("waiting for schema readiness", "err", lastErr)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
	return lastErr
}

func readiness(ping func(context.Context) error, conn *nats.Conn) web.ReadyFunc {
	return func(ctx context.Context) error {
		if conn != nil && conn.Status() != nats.CONNECTED {
			return fmt.Errorf("nats is not connected: %s", conn.Status().String())
		}
		if err := ping(ctx); err != nil {
			return fmt.Errorf("store ping failed: %w", err)
		}
		return nil
	}
}
