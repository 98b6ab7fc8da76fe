package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"paygateway/src/cache"
	"paygateway/src/domain"
	"paygateway/src/processor"
	"paygateway/src/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type selector interface {
	SelectBest(ctx context.Context) (domain.ProcessorHealth, bool)
}

type healthInvalidator interface {
	Invalidate()
}

type Config struct {
	SubmitTimeout     time.Duration
	RetryBackoff      time.Duration
	PaymentCacheTTL   time.Duration
	FailureStreakSize int
}

// Executor drives one pending payment to a terminal state: it asks the
// selector which processor to try first, runs the timeout/retry/fallback
// sequence, persists the outcome and keeps the caches coherent. Whatever
// happens inside, the payment never stays pending.
type Executor struct {
	repo     repository.PaymentRepository
	cache    cache.Cache
	clients  processor.Registry
	selector selector
	health   healthInvalidator
	cfg      Config
	logger   *zap.Logger

	failureStreak atomic.Int64
}

func NewExecutor(
	repo repository.PaymentRepository,
	c cache.Cache,
	clients processor.Registry,
	sel selector,
	health healthInvalidator,
	cfg Config,
	logger *zap.Logger,
) *Executor {
	if cfg.FailureStreakSize <= 0 {
		cfg.FailureStreakSize = 3
	}
	return &Executor{
		repo:     repo,
		cache:    c,
		clients:  clients,
		selector: sel,
		health:   health,
		cfg:      cfg,
		logger:   logger,
	}
}

// Execute processes the payment identified by id. It is the task body
// enqueued by the admission path.
func (e *Executor) Execute(ctx context.Context, id uuid.UUID) {
	payment, err := e.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrPaymentNotFound) {
			e.logger.Warn("queued payment no longer exists", zap.String("payment_id", id.String()))
			return
		}
		e.logger.Error("load queued payment", zap.String("payment_id", id.String()), zap.Error(err))
		return
	}
	// A duplicate that slipped past the gate, or a re-delivered task: the
	// row is already terminal, nothing to do.
	if payment.Terminal() {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("panic processing payment",
				zap.String("payment_id", id.String()), zap.Any("panic", r))
			e.markFailed(ctx, payment)
		}
	}()

	primary, secondary := e.attemptOrder(ctx)

	if e.attemptWithRetry(ctx, primary, *payment) {
		e.markSucceeded(ctx, payment, primary.Name())
		return
	}
	if secondary != nil && e.attemptOnce(ctx, secondary, *payment) {
		e.markSucceeded(ctx, payment, secondary.Name())
		return
	}
	e.markFailed(ctx, payment)
}

// attemptOrder ranks the processors by health. When the selector reports
// none usable the fixed default-then-fallback priority still applies: health
// steers ordering, it never parks a payment.
func (e *Executor) attemptOrder(ctx context.Context) (processor.Client, processor.Client) {
	first := domain.ProcessorDefault
	if best, ok := e.selector.SelectBest(ctx); ok {
		first = best.Name
	}
	second := domain.ProcessorFallback
	if first == domain.ProcessorFallback {
		second = domain.ProcessorDefault
	}
	return e.clients[first], e.clients[second]
}

// attemptWithRetry makes at most two attempts against the client under one
// shared deadline, waiting a fixed backoff between them.
func (e *Executor) attemptWithRetry(ctx context.Context, client processor.Client, p domain.Payment) bool {
	if client == nil {
		return false
	}
	phaseCtx, cancel := context.WithTimeout(ctx, e.cfg.SubmitTimeout)
	defer cancel()

	err := client.SubmitPayment(phaseCtx, p)
	if err == nil {
		return true
	}
	e.logger.Debug("primary attempt failed",
		zap.String("processor", string(client.Name())),
		zap.String("correlation_id", p.CorrelationID.String()),
		zap.Error(err))

	select {
	case <-time.After(e.cfg.RetryBackoff):
	case <-phaseCtx.Done():
		return false
	}
	return client.SubmitPayment(phaseCtx, p) == nil
}

func (e *Executor) attemptOnce(ctx context.Context, client processor.Client, p domain.Payment) bool {
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.SubmitTimeout)
	defer cancel()
	return client.SubmitPayment(callCtx, p) == nil
}

func (e *Executor) markSucceeded(ctx context.Context, p *domain.Payment, used domain.ProcessorName) {
	now := time.Now().UTC()
	p.Status = domain.StatusSucceeded
	p.Processor = used
	p.ProcessedAt = &now

	if err := e.repo.UpdateTerminal(ctx, p); err != nil {
		e.logger.Error("persist succeeded payment",
			zap.String("payment_id", p.ID.String()), zap.Error(err))
		return
	}
	e.failureStreak.Store(0)

	// Remove then reinsert so no reader holds a stale copy across the
	// write window.
	key := cache.PaymentKey(p.ID)
	if err := e.cache.Delete(ctx, key); err != nil {
		e.logger.Warn("drop cached payment", zap.String("key", key), zap.Error(err))
	}
	if err := e.cache.Set(ctx, key, p, e.cfg.PaymentCacheTTL); err != nil {
		e.logger.Warn("refresh cached payment", zap.String("key", key), zap.Error(err))
	}
	if err := e.cache.DeleteByPrefix(ctx, cache.SummaryPrefix); err != nil {
		e.logger.Warn("invalidate summary cache", zap.Error(err))
	}

	e.logger.Info("payment succeeded",
		zap.String("payment_id", p.ID.String()),
		zap.String("processor", string(used)))
}

func (e *Executor) markFailed(ctx context.Context, p *domain.Payment) {
	if p.Terminal() {
		return
	}
	now := time.Now().UTC()
	p.Status = domain.StatusFailed
	p.Processor = ""
	p.ProcessedAt = &now

	if err := e.repo.UpdateTerminal(ctx, p); err != nil {
		e.logger.Error("persist failed payment",
			zap.String("payment_id", p.ID.String()), zap.Error(err))
	}
	if err := e.cache.Delete(ctx, cache.PaymentKey(p.ID)); err != nil {
		e.logger.Warn("drop cached payment", zap.Error(err))
	}

	streak := e.failureStreak.Add(1)
	if streak >= int64(e.cfg.FailureStreakSize) {
		e.failureStreak.Store(0)
		e.health.Invalidate()
		e.logger.Info("health snapshot invalidated after failure streak",
			zap.Int64("streak", streak))
	}

	e.logger.Warn("payment failed on both processors",
		zap.String("payment_id", p.ID.String()),
		zap.String("correlation_id", p.CorrelationID.String()))
}
