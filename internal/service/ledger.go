// Package service provides the business logic layer (use cases).
// LedgerService owns every ledger operation: classification, cash
// settlement, the counterparty ledger and auto-offset.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/boddenberg/household-ledger/internal/domain"
	"github.com/boddenberg/household-ledger/internal/infra/observability"
	"github.com/boddenberg/household-ledger/internal/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var ledgerTracer = otel.Tracer("service/ledger")

const categoriesCache = "categories"

// LedgerService orchestrates ledger operations over a LedgerStore.
// Every compound operation runs inside one store transaction.
type LedgerService struct {
	store      port.LedgerStore
	categories port.Cache[[]domain.Category]
	metrics    *observability.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

// NewLedgerService creates the ledger service with all dependencies injected.
func NewLedgerService(
	store port.LedgerStore,
	categories port.Cache[[]domain.Category],
	metrics *observability.Metrics,
	logger *zap.Logger,
) *LedgerService {
	return &LedgerService{
		store:      store,
		categories: categories,
		metrics:    metrics,
		logger:     logger,
		now:        time.Now,
	}
}

// WithClock replaces the wall clock used for "today" decisions.
func (s *LedgerService) WithClock(now func() time.Time) *LedgerService {
	s.now = now
	return s
}

// Ping checks the store.
func (s *LedgerService) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *LedgerService) today() time.Time {
	return domain.DateOnly(s.now())
}

// dateOr returns the date part of d, or today when d is unset.
func (s *LedgerService) dateOr(d time.Time) time.Time {
	if d.IsZero() {
		return s.today()
	}
	return domain.DateOnly(d)
}

// track records the duration of op. Use as defer s.track("op")().
func (s *LedgerService) track(op string) func() {
	start := time.Now()
	return func() { s.metrics.RecordDuration(op, time.Since(start)) }
}

// reject counts business rejections and store failures, passing err through unchanged.
func (s *LedgerService) reject(op string, err error) error {
	if err == nil {
		return nil
	}
	var (
		validation   *domain.ErrValidation
		insufficient *domain.ErrInsufficientPool
		precondition *domain.ErrPrecondition
		conflict     *domain.ErrConflict
		external     *domain.ErrExternalService
		circuitOpen  *domain.ErrCircuitOpen
	)
	reason := ""
	switch {
	case errors.As(err, &external), errors.As(err, &circuitOpen):
		s.metrics.IncrStoreError(op)
		s.logger.Error("ledger store failure", zap.String("op", op), zap.Error(err))
		return err
	case errors.As(err, &validation):
		reason = "validation"
	case errors.As(err, &insufficient):
		reason = "insufficient_pool"
	case errors.As(err, &precondition):
		reason = "precondition"
	case errors.As(err, &conflict):
		reason = "conflict"
	}
	if reason != "" {
		s.metrics.IncrRejected(reason)
		s.logger.Info("ledger operation rejected",
			zap.String("op", op),
			zap.String("reason", reason),
			zap.Error(err),
		)
	}
	return err
}

// reportAnomalies logs and counts tolerated integrity warnings.
func (s *LedgerService) reportAnomalies(userID string, warnings []domain.Anomaly) {
	for _, w := range warnings {
		s.metrics.IncrAnomaly(w.Kind)
		s.logger.Warn("ledger integrity anomaly",
			zap.String("user_id", userID),
			zap.String("kind", string(w.Kind)),
			zap.String("transaction_id", w.TransactionID),
			zap.String("line_id", w.LineID),
			zap.String("detail", w.Detail),
		)
	}
}

// categoryIndex returns the user's categories by id, served from the cache when warm.
func (s *LedgerService) categoryIndex(ctx context.Context, userID string) (map[string]domain.Category, error) {
	cats, err := s.listCategories(ctx, userID)
	if err != nil {
		return nil, err
	}
	return domain.IndexCategories(cats), nil
}

// categoryIndexFor is categoryIndex, reloaded from the store when the cached
// copy lacks a category that lines reference.
func (s *LedgerService) categoryIndexFor(ctx context.Context, userID string, lines []domain.LineInput) (map[string]domain.Category, error) {
	idx, err := s.categoryIndex(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, in := range lines {
		if in.CategoryID == "" {
			continue
		}
		if _, ok := idx[in.CategoryID]; !ok {
			s.invalidateCategories(userID)
			return s.categoryIndex(ctx, userID)
		}
	}
	return idx, nil
}

func (s *LedgerService) listCategories(ctx context.Context, userID string) ([]domain.Category, error) {
	key := fmt.Sprintf("categories:%s", userID)
	if cached, ok := s.categories.Get(key); ok {
		s.metrics.IncrCacheHit(categoriesCache)
		return cached, nil
	}
	s.metrics.IncrCacheMiss(categoriesCache)

	cats, err := s.store.ListCategories(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	s.categories.Set(key, cats)
	return cats, nil
}

func (s *LedgerService) invalidateCategories(userID string) {
	s.categories.Delete(fmt.Sprintf("categories:%s", userID))
}

// checkID rejects ids that cannot name a stored row. Every ledger row is keyed by a UUID.
func checkID(resource, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return &domain.ErrNotFound{Resource: resource, ID: id}
	}
	return nil
}

func checkIDs(resource string, ids []string) error {
	for _, id := range ids {
		if err := checkID(resource, id); err != nil {
			return err
		}
	}
	return nil
}
