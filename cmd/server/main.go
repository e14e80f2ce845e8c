package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pocketbook/internal/auth"
	"pocketbook/internal/config"
	"pocketbook/internal/events"
	"pocketbook/internal/handlers"
	"pocketbook/internal/log"
	"pocketbook/internal/storage"
	"pocketbook/web"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Load .env file for local development (ignore errors in production)
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, config.Load()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	level, _ := log.ParseLevel(cfg.LogLevel)
	logger := log.New(log.Config{Level: level, Format: cfg.LogFormat, Component: log.ComponentApp})
	log.SetDefault(logger)

	db, err := storage.Open(cfg.DBPath, storage.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	})
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	credentials, err := auth.NewCredentials(db, cfg.BcryptCost)
	if err != nil {
		return err
	}
	sessions, err := auth.NewSessionManager(db, []byte(cfg.SessionSecret), cfg.SessionDuration)
	if err != nil {
		return err
	}

	if cfg.AdminUser != "" {
		if err := ensureUser(ctx, credentials, cfg.AdminUser, cfg.AdminPassword); err != nil {
			return err
		}
		logger.Info("Bootstrap account ready", "username", cfg.AdminUser)
	}

	publisher := newPublisher(cfg, logger)
	defer publisher.Close()

	h := handlers.NewHandlers(db, credentials, sessions, publisher, cfg.SecureCookie)
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           log.Middleware(logger)(handlers.SecurityHeaders(setupRouter(h, web.Static()))),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Server starting", "addr", srv.Addr, "db", cfg.DBPath)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		sweepSessions(gctx, sessions, cfg.SessionSweepInterval, logger.WithComponent(log.ComponentSweeper))
		return nil
	})

	return g.Wait()
}

// setupRouter registers every route on a new ServeMux. Expense routes sit
// behind the auth middleware.
func setupRouter(h *handlers.Handlers, static fs.FS) *http.ServeMux {
	mux := http.NewServeMux()

	mux.Handle("GET /", http.FileServerFS(static))
	mux.HandleFunc("GET /healthz", h.Healthz)

	mux.HandleFunc("POST /auth/register", h.Register)
	mux.HandleFunc("POST /auth/login", h.Login)
	mux.HandleFunc("POST /auth/logout", h.Logout)

	protected := func(f http.HandlerFunc) http.Handler {
		return handlers.NoStore(h.AuthMiddleware(f))
	}
	mux.Handle("GET /expenses", protected(h.ListExpenses))
	mux.Handle("POST /expenses", protected(h.CreateExpense))
	mux.Handle("GET /expenses/monthly-summary", protected(h.MonthlySummary))
	mux.Handle("GET /expenses/category-summary", protected(h.CategorySummary))
	mux.Handle("GET /expenses/{id}", protected(h.GetExpense))
	mux.Handle("PUT /expenses/{id}", protected(h.UpdateExpense))
	mux.Handle("DELETE /expenses/{id}", protected(h.DeleteExpense))

	return mux
}

// ensureUser registers the bootstrap account unless it already exists.
func ensureUser(ctx context.Context, credentials *auth.Credentials, username, password string) error {
	_, err := credentials.Register(ctx, username, password)
	if err != nil && !errors.Is(err, storage.ErrDuplicateUsername) {
		return fmt.Errorf("create bootstrap user: %w", err)
	}
	return nil
}

// newPublisher connects to the broker when one is configured. An
// unreachable broker disables notifications rather than failing startup.
func newPublisher(cfg *config.Config, logger *log.Logger) events.Publisher {
	if cfg.AMQPURL == "" {
		return events.Noop{}
	}
	p, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	if err != nil {
		logger.WithComponent(log.ComponentEvents).Warn("Expense notifications disabled", "error", err)
		return events.Noop{}
	}
	logger.WithComponent(log.ComponentEvents).Info("Publishing expense notifications", "exchange", cfg.AMQPExchange)
	return p
}

// sweepSessions deletes expired sessions every interval until ctx ends.
func sweepSessions(ctx context.Context, sessions *auth.SessionManager, interval time.Duration, logger *log.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := sessions.Sweep(ctx)
			if err != nil {
				if ctx.Err() == nil {
					logger.Error("Session sweep failed", "error", err)
				}
				continue
			}
			if n > 0 {
				logger.Info("Expired sessions removed", "count", n)
			}
		}
	}
}
