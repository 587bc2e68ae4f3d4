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

	"github.com/boddenberg/household-ledger/internal/config"
	"github.com/boddenberg/household-ledger/internal/domain"
	"github.com/boddenberg/household-ledger/internal/handler"
	"github.com/boddenberg/household-ledger/internal/infra/cache"
	"github.com/boddenberg/household-ledger/internal/infra/memstore"
	"github.com/boddenberg/household-ledger/internal/infra/observability"
	"github.com/boddenberg/household-ledger/internal/infra/resilience"
	"github.com/boddenberg/household-ledger/internal/infra/supabase"
	"github.com/boddenberg/household-ledger/internal/port"
	"github.com/boddenberg/household-ledger/internal/service"

	"go.uber.org/zap"
)

const serviceName = "household-ledger"

func main() {
	migrateCmd := flag.String("migrate", "", "run a schema migration (up, down, version) and exit")
	steps := flag.Int("steps", 0, "limit -migrate up/down to this many steps")
	envFile := flag.String("env", ".env", "optional env file")
	flag.Parse()

	// --- Config ---
	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel, serviceName)
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.Bool("use_database", cfg.UseDatabase()),
		zap.Duration("cache_ttl", cfg.CacheTTL),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("initial_backoff", cfg.InitialBackoff),
		zap.Bool("tracing_enabled", cfg.TracingEnabled),
	)

	// --- Migrations ---
	if *migrateCmd != "" {
		if !cfg.UseDatabase() {
			logger.Fatal("migrations need DATABASE_URL")
		}
		status, err := supabase.Migrate(cfg.DatabaseURL, *migrateCmd, *steps, logger)
		if err != nil {
			logger.Fatal("migration failed", zap.Error(err))
		}
		logger.Info("migration finished",
			zap.Uint("version", status.Version),
			zap.Bool("dirty", status.Dirty),
			zap.Bool("applied", status.Applied),
		)
		return
	}

	// --- Tracing ---
	if cfg.TracingEnabled {
		shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, serviceName)
		if err != nil {
			logger.Fatal("failed to init tracer", zap.Error(err))
		}
		defer shutdown(context.Background())
	}

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Cache ---
	categoryCache := cache.New[[]domain.Category](cfg.CacheTTL)
	defer categoryCache.Close()

	// --- Store ---
	var store port.LedgerStore
	if cfg.UseDatabase() {
		if cfg.MigrateOnStart {
			if _, err := supabase.Migrate(cfg.DatabaseURL, "up", 0, logger); err != nil {
				logger.Fatal("migration on start failed", zap.Error(err))
			}
		}

		ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTPTimeout)
		pool, err := supabase.Connect(ctx, supabase.PoolConfig{
			URL:             cfg.DatabaseURL,
			MaxConns:        cfg.DBMaxConns,
			MinConns:        cfg.DBMinConns,
			MaxConnLifetime: cfg.DBMaxConnLifetime,
		})
		cancel()
		if err != nil {
			logger.Fatal("failed to connect to database", zap.Error(err))
		}

		pgStore := supabase.NewStore(pool, resilience.Config{
			MaxRetries:     cfg.MaxRetries,
			InitialBackoff: cfg.InitialBackoff,
			MaxConcurrency: cfg.MaxConcurrency,
		}, logger)
		defer pgStore.Close()
		store = pgStore
		logger.Info("using Supabase Postgres as ledger store")
	} else {
		store = memstore.New()
		logger.Warn("DATABASE_URL not set, using in-memory ledger store; data is lost on restart")
	}

	if cfg.SupabaseJWTSecret == "" {
		logger.Warn("SUPABASE_JWT_SECRET not set, every authenticated route will reject requests")
	}

	// --- Services ---
	ledgerSvc := service.NewLedgerService(store, categoryCache, metrics, logger)
	authSvc := service.NewAuthService(cfg.SupabaseJWTSecret, logger)

	// --- Router ---
	router := handler.NewRouter(ledgerSvc, authSvc, metrics, logger)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
