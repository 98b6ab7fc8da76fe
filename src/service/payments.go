package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"paygateway/src/cache"
	"paygateway/src/domain"
	"paygateway/src/gate"
	"paygateway/src/queue"
	"paygateway/src/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type executor interface {
	Execute(ctx context.Context, id uuid.UUID)
}

type Config struct {
	PaymentCacheTTL time.Duration
}

// PaymentService is the surface exposed to the HTTP layer: non-blocking
// admission of payments and windowed summaries. Admission returns as soon as
// the payment is persisted pending and enqueued; processing happens on the
// queue workers.
type PaymentService struct {
	repo     repository.PaymentRepository
	cache    cache.Cache
	gate     *gate.Gate
	queue    *queue.TaskQueue
	executor executor
	cfg      Config
	logger   *zap.Logger
}

func NewPaymentService(
	repo repository.PaymentRepository,
	c cache.Cache,
	g *gate.Gate,
	q *queue.TaskQueue,
	exec executor,
	cfg Config,
	logger *zap.Logger,
) *PaymentService {
	return &PaymentService{
		repo:     repo,
		cache:    c,
		gate:     g,
		queue:    q,
		executor: exec,
		cfg:      cfg,
		logger:   logger,
	}
}

// Admit claims the correlation id, persists the payment as pending and
// enqueues it for asynchronous processing. Returns
// domain.ErrDuplicateCorrelationID for a repeated submission and a
// domain.ErrInfrastructure-wrapped error when the cache or store is down.
func (s *PaymentService) Admit(ctx context.Context, correlationID uuid.UUID, amount float64) (*domain.Payment, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("amount must be positive, got %v", amount)
	}
	if correlationID == uuid.Nil {
		return nil, errors.New("correlation id is required")
	}

	claimed, err := s.gate.Claim(ctx, correlationID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInfrastructure, err)
	}
	if !claimed {
		return nil, domain.ErrDuplicateCorrelationID
	}

	// A claim can expire long before the payment record does; the durable
	// existence check keeps an expired claim from reopening the window.
	exists, err := s.repo.ExistsByCorrelationID(ctx, correlationID)
	if err != nil {
		s.releaseClaim(correlationID)
		return nil, err
	}
	if exists {
		return nil, domain.ErrDuplicateCorrelationID
	}

	id, err := uuid.NewV7()
	if err != nil {
		s.releaseClaim(correlationID)
		return nil, fmt.Errorf("generate payment id: %w", err)
	}
	payment := &domain.Payment{
		ID:            id,
		CorrelationID: correlationID,
		Amount:        amount,
		Status:        domain.StatusPending,
		RequestedAt:   time.Now().UTC(),
	}

	if err := s.repo.Insert(ctx, payment); err != nil {
		if errors.Is(err, domain.ErrDuplicateCorrelationID) {
			return nil, err
		}
		s.releaseClaim(correlationID)
		return nil, err
	}

	if err := s.cache.Set(ctx, cache.PaymentKey(payment.ID), payment, s.cfg.PaymentCacheTTL); err != nil {
		s.logger.Warn("cache pending payment", zap.Error(err))
	}

	paymentID := payment.ID
	if err := s.queue.Enqueue(ctx, func(taskCtx context.Context) {
		s.executor.Execute(taskCtx, paymentID)
	}); err != nil {
		// The row stays pending; a restarted worker pool will not pick it
		// up, so surface the failure rather than accept silently.
		return nil, fmt.Errorf("%w: enqueue payment: %w", domain.ErrInfrastructure, err)
	}

	return payment, nil
}

// Lookup serves the payment-by-id path, cache first.
func (s *PaymentService) Lookup(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	var cached domain.Payment
	hit, err := s.cache.Get(ctx, cache.PaymentKey(id), &cached)
	if err != nil {
		s.logger.Warn("read cached payment", zap.Error(err))
	}
	if hit {
		return &cached, nil
	}
	return s.repo.FindByID(ctx, id)
}

// Summary returns per-processor counts and totals over [from, to], cached
// with a TTL that grows with the age of the window's end.
func (s *PaymentService) Summary(ctx context.Context, from, to time.Time) (domain.PaymentSummary, error) {
	key := cache.SummaryKey(from, to)

	var cached domain.PaymentSummary
	hit, err := s.cache.Get(ctx, key, &cached)
	if err != nil {
		s.logger.Warn("read cached summary", zap.Error(err))
	}
	if hit {
		return cached, nil
	}

	summary, err := s.repo.QuerySummary(ctx, from, to)
	if err != nil {
		return domain.PaymentSummary{}, err
	}

	if err := s.cache.Set(ctx, key, summary, summaryTTL(to, time.Now().UTC())); err != nil {
		s.logger.Warn("cache summary", zap.Error(err))
	}
	return summary, nil
}

// Purge wipes payments and every derived cache entry. Load-test helper.
func (s *PaymentService) Purge(ctx context.Context) error {
	if err := s.repo.Purge(ctx); err != nil {
		return err
	}
	if err := s.cache.DeleteByPrefix(ctx, "payment:"); err != nil {
		return err
	}
	return s.cache.DeleteByPrefix(ctx, cache.SummaryPrefix)
}

// summaryTTL picks the cache lifetime by how recent the window's end is:
// recent windows still change, old windows are effectively immutable.
func summaryTTL(to, now time.Time) time.Duration {
	age := now.Sub(to)
	switch {
	case age <= 24*time.Hour:
		return 5 * time.Minute
	case age <= 7*24*time.Hour:
		return time.Hour
	default:
		return 24 * time.Hour
	}
}

func (s *PaymentService) releaseClaim(correlationID uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.gate.Release(ctx, correlationID); err != nil {
		s.logger.Warn("release idempotency claim",
			zap.String("correlation_id", correlationID.String()), zap.Error(err))
	}
}
