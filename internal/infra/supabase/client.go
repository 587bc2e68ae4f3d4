// Package supabase implements the ledger store on Supabase Postgres.
// It talks to the database directly through pgx so that compound ledger
// operations run inside a single SQL transaction with row locks.
package supabase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/boddenberg/household-ledger/internal/domain"
	"github.com/boddenberg/household-ledger/internal/infra/resilience"
	"github.com/boddenberg/household-ledger/internal/port"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("supabase")

const serviceName = "supabase"

// PoolConfig holds connection pool settings.
type PoolConfig struct {
	URL             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// Connect opens and pings a pgx connection pool.
func Connect(ctx context.Context, cfg PoolConfig) (*pgxpool.Pool, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database URL: %w", err)
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}
	pcfg.MinConns = cfg.MinConns
	if cfg.MaxConnLifetime > 0 {
		pcfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pcfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	return pool, nil
}

// Store is the Postgres-backed port.LedgerStore.
type Store struct {
	pool   *pgxpool.Pool
	cb     *gobreaker.CircuitBreaker
	bh     *resilience.Bulkhead
	cfg    resilience.Config
	logger *zap.Logger
}

var _ port.LedgerStore = (*Store)(nil)

// NewStore wraps pool. Serialization failures and deadlocks are retried per
// cfg; business errors pass straight through and never trip the breaker.
func NewStore(pool *pgxpool.Pool, cfg resilience.Config, logger *zap.Logger) *Store {
	cfg.Retryable = IsRetryable
	return &Store{
		pool:   pool,
		cb:     resilience.NewCircuitBreaker(serviceName, isInfraFailure),
		bh:     resilience.NewBulkhead(cfg.MaxConcurrency),
		cfg:    cfg,
		logger: logger,
	}
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "Supabase.Ping")
	defer span.End()

	if err := s.pool.Ping(ctx); err != nil {
		return &domain.ErrExternalService{Service: serviceName, Err: err}
	}
	return nil
}

// WithinTx runs fn inside one read-committed SQL transaction. Row locks taken
// through tx are held until commit. fn may run more than once when the
// transaction is retried after a serialization failure or deadlock.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx port.LedgerTx) error) error {
	ctx, span := tracer.Start(ctx, "Supabase.WithinTx")
	defer span.End()

	attempt := 0
	err := resilience.Guard(ctx, s.bh, s.cb, s.cfg, func() error {
		attempt++
		span.SetAttributes(attribute.Int("db.attempt", attempt))

		pgTx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
		if err != nil {
			return err
		}
		defer func() { _ = pgTx.Rollback(ctx) }()

		if err := fn(ctx, &Tx{queries: queries{q: pgTx}, tx: pgTx}); err != nil {
			return TranslateError(err)
		}
		return TranslateError(pgTx.Commit(ctx))
	})
	return s.finish(span, "WithinTx", err)
}

// read runs a single read through the breaker and retry policy.
func (s *Store) read(ctx context.Context, op string, fn func(ctx context.Context, q queries) error) error {
	ctx, span := tracer.Start(ctx, "Supabase."+op)
	defer span.End()

	err := resilience.Guard(ctx, s.bh, s.cb, s.cfg, func() error {
		return TranslateError(fn(ctx, queries{q: s.pool}))
	})
	return s.finish(span, op, err)
}

// finish maps infrastructure errors to domain errors and records them.
func (s *Store) finish(span trace.Span, op string, err error) error {
	if err == nil {
		return nil
	}
	if !isInfraFailure(err) {
		return err
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		s.logger.Warn("supabase: circuit open", zap.String("op", op))
		return &domain.ErrCircuitOpen{Service: serviceName}
	}
	s.logger.Error("supabase: operation failed", zap.String("op", op), zap.Error(err))
	return &domain.ErrExternalService{Service: serviceName, Err: err}
}

// IsRetryable reports whether err is a transient Postgres failure worth
// retrying: serialization failures, deadlocks and connection errors that
// happened before anything was sent.
func IsRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.SerializationFailure, pgerrcode.DeadlockDetected:
			return true
		}
		return false
	}
	return pgconn.SafeToRetry(err)
}

// TranslateError maps Postgres data exceptions (class 22) and integrity
// violations (class 23) to domain errors. Those are caused by the request,
// so they reach the caller as rejections and do not count as store failures.
func TranslateError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch {
	case pgErr.Code == pgerrcode.UniqueViolation:
		return &domain.ErrConflict{Message: pgErr.Message}
	case pgerrcode.IsDataException(pgErr.Code), pgerrcode.IsIntegrityConstraintViolation(pgErr.Code):
		field := pgErr.ColumnName
		if field == "" {
			field = pgErr.ConstraintName
		}
		return &domain.ErrValidation{Field: field, Message: pgErr.Message}
	}
	return err
}

// isInfraFailure separates database trouble from business rejections raised
// inside a unit of work.
func isInfraFailure(err error) bool {
	if err == nil {
		return false
	}
	err = TranslateError(err)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var (
		notFound     *domain.ErrNotFound
		validation   *domain.ErrValidation
		insufficient *domain.ErrInsufficientPool
		precondition *domain.ErrPrecondition
		conflict     *domain.ErrConflict
		unauthorized *domain.ErrUnauthorized
	)
	switch {
	case errors.As(err, &notFound),
		errors.As(err, &validation),
		errors.As(err, &insufficient),
		errors.As(err, &precondition),
		errors.As(err, &conflict),
		errors.As(err, &unauthorized):
		return false
	}
	return true
}
