package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/mcclellann/tradex/pkg/auth"
	"github.com/mcclellann/tradex/pkg/config"
	"github.com/mcclellann/tradex/pkg/ledger"
	"github.com/mcclellann/tradex/pkg/logger"
	"github.com/mcclellann/tradex/pkg/store"
)

func openStore(ctx context.Context, cfg *config.Config) (store.Storage, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		return store.NewPostgresStore(ctx, cfg.DatabaseURL)
	case config.DriverMemory:
		logger.Warn("Using in-memory store, data is lost on exit")
		return store.NewMemoryStore(), nil
	default:
		return store.NewSQLiteStore(cfg.DatabaseURL)
	}
}

// runReconciler periodically writes freshly derived loan state back to storage
// so stored statuses follow the calendar without new payments.
func runReconciler(ctx context.Context, l *ledger.Ledger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			changes, err := l.Reconcile(ctx)
			if err != nil {
				logger.Error("Reconciliation failed", "error", err)
				sentry.CaptureException(err)
				continue
			}
			for _, c := range changes {
				logger.Info("Loan status changed", "loan_id", c.Loan.ID, "from", c.From, "to", c.To, "event", c.Event)
			}
		}
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger.Setup(cfg.Environment)

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.SentryDSN,
			Environment: cfg.Environment,
		}); err != nil {
			logger.Error("Sentry initialization failed", "error", err)
		} else {
			logger.Info("Sentry initialized")
			defer sentry.Flush(2 * time.Second)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	storage, err := openStore(ctx, cfg)
	if err != nil {
		logger.Error("Failed to initialize store", "driver", cfg.StoreDriver, "error", err)
		os.Exit(1)
	}
	defer storage.Close()

	authenticator := auth.NewAuthenticator(map[string]string{
		cfg.AdminPIN:    auth.RoleAdmin,
		cfg.OperatorPIN: auth.RoleOperator,
	}, cfg.JWTSecret, time.Duration(cfg.JWTExpirationHours)*time.Hour)

	server := NewServer(storage, authenticator)

	if err := server.ledger.SeedInvestors(ctx, cfg.SeedInvestors); err != nil {
		logger.Error("Failed to seed investors", "error", err)
		os.Exit(1)
	}

	if cfg.ReconcileInterval > 0 {
		go runReconciler(ctx, server.ledger, cfg.ReconcileInterval)
		logger.Info("Started reconciliation job", "interval", cfg.ReconcileInterval)
	}

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      server.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Server starting", "port", cfg.Port, "store", cfg.StoreDriver)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Failed to start server", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}
	logger.Info("Server exited")
}
