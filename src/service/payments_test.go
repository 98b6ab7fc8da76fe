package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"paygateway/src/cache"
	"paygateway/src/domain"
	"paygateway/src/gate"
	"paygateway/src/queue"
	"paygateway/src/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type stubRepo struct {
	mu            sync.Mutex
	payments      map[uuid.UUID]domain.Payment
	insertErr     error
	summaryResult domain.PaymentSummary
	summaryCalls  atomic.Int64
}

func newStubRepo() *stubRepo {
	return &stubRepo{payments: make(map[uuid.UUID]domain.Payment)}
}

func (r *stubRepo) Insert(_ context.Context, p *domain.Payment) error {
	if r.insertErr != nil {
		return r.insertErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.payments {
		if existing.CorrelationID == p.CorrelationID {
			return domain.ErrDuplicateCorrelationID
		}
	}
	r.payments[p.ID] = *p
	return nil
}

func (r *stubRepo) UpdateTerminal(_ context.Context, p *domain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payments[p.ID] = *p
	return nil
}

func (r *stubRepo) FindByID(_ context.Context, id uuid.UUID) (*domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[id]
	if !ok {
		return nil, domain.ErrPaymentNotFound
	}
	copied := p
	return &copied, nil
}

func (r *stubRepo) FindByCorrelationID(_ context.Context, correlationID uuid.UUID) (*domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.payments {
		if p.CorrelationID == correlationID {
			copied := p
			return &copied, nil
		}
	}
	return nil, domain.ErrPaymentNotFound
}

func (r *stubRepo) ExistsByCorrelationID(ctx context.Context, correlationID uuid.UUID) (bool, error) {
	_, err := r.FindByCorrelationID(ctx, correlationID)
	if errors.Is(err, domain.ErrPaymentNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (r *stubRepo) QuerySummary(_ context.Context, from, to time.Time) (domain.PaymentSummary, error) {
	r.summaryCalls.Add(1)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.summaryResult != (domain.PaymentSummary{}) {
		return r.summaryResult, nil
	}
	var summary domain.PaymentSummary
	for _, p := range r.payments {
		if p.Status != domain.StatusSucceeded || p.ProcessedAt == nil {
			continue
		}
		if p.ProcessedAt.Before(from) || p.ProcessedAt.After(to) {
			continue
		}
		switch p.Processor {
		case domain.ProcessorDefault:
			summary.Default.TotalRequests++
			summary.Default.TotalAmount += p.Amount
		case domain.ProcessorFallback:
			summary.Fallback.TotalRequests++
			summary.Fallback.TotalAmount += p.Amount
		}
	}
	return summary, nil
}

func (r *stubRepo) Purge(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payments = make(map[uuid.UUID]domain.Payment)
	return nil
}

var _ repository.PaymentRepository = (*stubRepo)(nil)

type recordingExecutor struct {
	executed []uuid.UUID
	mu       sync.Mutex
}

func (e *recordingExecutor) Execute(_ context.Context, id uuid.UUID) {
	e.mu.Lock()
	e.executed = append(e.executed, id)
	e.mu.Unlock()
}

func newService(repo *stubRepo) (*PaymentService, *cache.MemoryCache, *queue.TaskQueue, *recordingExecutor) {
	mem := cache.NewMemoryCache()
	g := gate.New(mem, time.Minute)
	q := queue.New(100, zap.NewNop())
	exec := &recordingExecutor{}
	svc := NewPaymentService(repo, mem, g, q, exec, Config{PaymentCacheTTL: time.Minute}, zap.NewNop())
	return svc, mem, q, exec
}

func TestAdmit(t *testing.T) {
	ctx := context.Background()

	t.Run("accepts and persists pending payment", func(t *testing.T) {
		repo := newStubRepo()
		svc, mem, q, _ := newService(repo)
		correlationID := uuid.New()

		payment, err := svc.Admit(ctx, correlationID, 42.5)
		if err != nil {
			t.Fatalf("admit: %v", err)
		}
		if payment.Status != domain.StatusPending {
			t.Errorf("expected pending, got %s", payment.Status)
		}
		stored, err := repo.FindByCorrelationID(ctx, correlationID)
		if err != nil {
			t.Fatalf("payment row missing: %v", err)
		}
		if stored.Amount != 42.5 {
			t.Errorf("expected amount 42.5, got %v", stored.Amount)
		}
		if hit, _ := mem.Exists(ctx, cache.PaymentKey(payment.ID)); !hit {
			t.Error("expected pending payment to be cached")
		}
		if q.Len() != 1 {
			t.Errorf("expected 1 enqueued task, got %d", q.Len())
		}
	})

	t.Run("rejects duplicate correlation id", func(t *testing.T) {
		repo := newStubRepo()
		svc, _, _, _ := newService(repo)
		correlationID := uuid.New()

		if _, err := svc.Admit(ctx, correlationID, 10); err != nil {
			t.Fatalf("first admit: %v", err)
		}
		_, err := svc.Admit(ctx, correlationID, 10)
		if !errors.Is(err, domain.ErrDuplicateCorrelationID) {
			t.Errorf("expected duplicate error, got %v", err)
		}
	})

	t.Run("concurrent admissions accept exactly one", func(t *testing.T) {
		repo := newStubRepo()
		svc, _, _, _ := newService(repo)
		correlationID := uuid.New()

		const callers = 16
		var accepted, conflicted atomic.Int64
		var wg sync.WaitGroup
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := svc.Admit(ctx, correlationID, 5)
				switch {
				case err == nil:
					accepted.Add(1)
				case errors.Is(err, domain.ErrDuplicateCorrelationID):
					conflicted.Add(1)
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()

		if accepted.Load() != 1 {
			t.Errorf("expected exactly 1 accepted, got %d", accepted.Load())
		}
		if conflicted.Load() != callers-1 {
			t.Errorf("expected %d conflicts, got %d", callers-1, conflicted.Load())
		}
		repo.mu.Lock()
		rows := len(repo.payments)
		repo.mu.Unlock()
		if rows != 1 {
			t.Errorf("expected exactly 1 payment row, got %d", rows)
		}
	})

	t.Run("rejects non-positive amount", func(t *testing.T) {
		svc, _, _, _ := newService(newStubRepo())
		if _, err := svc.Admit(ctx, uuid.New(), 0); err == nil {
			t.Error("expected error for zero amount")
		}
		if _, err := svc.Admit(ctx, uuid.New(), -1); err == nil {
			t.Error("expected error for negative amount")
		}
	})

	t.Run("durable row blocks admission after claim expiry", func(t *testing.T) {
		repo := newStubRepo()
		mem := cache.NewMemoryCache()
		g := gate.New(mem, 5*time.Millisecond)
		q := queue.New(10, zap.NewNop())
		svc := NewPaymentService(repo, mem, g, q, &recordingExecutor{}, Config{PaymentCacheTTL: time.Minute}, zap.NewNop())
		correlationID := uuid.New()

		if _, err := svc.Admit(ctx, correlationID, 10); err != nil {
			t.Fatalf("first admit: %v", err)
		}
		time.Sleep(10 * time.Millisecond)

		_, err := svc.Admit(ctx, correlationID, 10)
		if !errors.Is(err, domain.ErrDuplicateCorrelationID) {
			t.Errorf("expected duplicate after claim expiry, got %v", err)
		}
	})

	t.Run("store failure releases the claim", func(t *testing.T) {
		repo := newStubRepo()
		repo.insertErr = errors.New("connection reset")
		svc, _, _, _ := newService(repo)
		correlationID := uuid.New()

		if _, err := svc.Admit(ctx, correlationID, 10); err == nil {
			t.Fatal("expected admit to fail while the store is down")
		}

		// The store recovers; the same correlation id must be admittable.
		repo.insertErr = nil
		if _, err := svc.Admit(ctx, correlationID, 10); err != nil {
			t.Errorf("expected retry to succeed after release, got %v", err)
		}
	})

	t.Run("enqueued task carries the payment id", func(t *testing.T) {
		repo := newStubRepo()
		svc, _, q, exec := newService(repo)

		payment, err := svc.Admit(ctx, uuid.New(), 10)
		if err != nil {
			t.Fatalf("admit: %v", err)
		}
		task, err := q.Dequeue(ctx)
		if err != nil {
			t.Fatalf("dequeue: %v", err)
		}
		task(ctx)
		if len(exec.executed) != 1 || exec.executed[0] != payment.ID {
			t.Errorf("expected executor invoked with %s, got %v", payment.ID, exec.executed)
		}
	})
}

func TestSummary(t *testing.T) {
	ctx := context.Background()

	seedTerminal := func(repo *stubRepo, processor domain.ProcessorName, amount float64, processedAt time.Time) {
		id, _ := uuid.NewV7()
		repo.payments[id] = domain.Payment{
			ID:            id,
			CorrelationID: uuid.New(),
			Amount:        amount,
			Status:        domain.StatusSucceeded,
			RequestedAt:   processedAt.Add(-time.Second),
			ProcessedAt:   &processedAt,
			Processor:     processor,
		}
	}

	t.Run("aggregates per processor with zero fill", func(t *testing.T) {
		repo := newStubRepo()
		now := time.Now().UTC()
		seedTerminal(repo, domain.ProcessorDefault, 10, now.Add(-time.Hour))
		seedTerminal(repo, domain.ProcessorDefault, 15, now.Add(-30*time.Minute))
		svc, _, _, _ := newService(repo)

		summary, err := svc.Summary(ctx, now.Add(-2*time.Hour), now)
		if err != nil {
			t.Fatalf("summary: %v", err)
		}
		if summary.Default.TotalRequests != 2 || summary.Default.TotalAmount != 25 {
			t.Errorf("unexpected default summary: %+v", summary.Default)
		}
		if summary.Fallback.TotalRequests != 0 || summary.Fallback.TotalAmount != 0 {
			t.Errorf("expected zero-filled fallback summary, got %+v", summary.Fallback)
		}
	})

	t.Run("excludes payments outside the window", func(t *testing.T) {
		repo := newStubRepo()
		now := time.Now().UTC()
		seedTerminal(repo, domain.ProcessorFallback, 10, now.Add(-3*time.Hour))
		seedTerminal(repo, domain.ProcessorFallback, 99, now.Add(-time.Minute))
		svc, _, _, _ := newService(repo)

		summary, err := svc.Summary(ctx, now.Add(-2*time.Hour), now)
		if err != nil {
			t.Fatalf("summary: %v", err)
		}
		if summary.Fallback.TotalRequests != 1 || summary.Fallback.TotalAmount != 99 {
			t.Errorf("expected only the in-window payment, got %+v", summary.Fallback)
		}
	})

	t.Run("second read within TTL is served from cache", func(t *testing.T) {
		repo := newStubRepo()
		repo.summaryResult = domain.PaymentSummary{
			Default: domain.SummaryItem{TotalRequests: 3, TotalAmount: 30},
		}
		svc, _, _, _ := newService(repo)
		from := time.Now().UTC().Add(-time.Hour)
		to := time.Now().UTC()

		first, err := svc.Summary(ctx, from, to)
		if err != nil {
			t.Fatalf("summary: %v", err)
		}
		second, err := svc.Summary(ctx, from, to)
		if err != nil {
			t.Fatalf("summary: %v", err)
		}
		if first != second {
			t.Errorf("cached summary differs: %+v vs %+v", first, second)
		}
		if n := repo.summaryCalls.Load(); n != 1 {
			t.Errorf("expected 1 store query, got %d", n)
		}
	})
}

func TestSummaryTTL(t *testing.T) {
	now := time.Now().UTC()
	cases := []struct {
		name string
		to   time.Time
		want time.Duration
	}{
		{"recent window", now.Add(-time.Hour), 5 * time.Minute},
		{"last week", now.Add(-3 * 24 * time.Hour), time.Hour},
		{"old window", now.Add(-30 * 24 * time.Hour), 24 * time.Hour},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := summaryTTL(tc.to, now); got != tc.want {
				t.Errorf("summaryTTL(%s) = %v, want %v", tc.name, got, tc.want)
			}
		})
	}
}

func TestLookup(t *testing.T) {
	ctx := context.Background()

	t.Run("falls back to the store on cache miss", func(t *testing.T) {
		repo := newStubRepo()
		svc, mem, _, _ := newService(repo)
		id, _ := uuid.NewV7()
		repo.payments[id] = domain.Payment{ID: id, Status: domain.StatusSucceeded}

		payment, err := svc.Lookup(ctx, id)
		if err != nil {
			t.Fatalf("lookup: %v", err)
		}
		if payment.ID != id {
			t.Errorf("expected payment %s, got %s", id, payment.ID)
		}
		if hit, _ := mem.Exists(ctx, cache.PaymentKey(id)); hit {
			t.Log("lookup does not repopulate the cache; the executor owns it")
		}
	})

	t.Run("serves cached copy without touching the store", func(t *testing.T) {
		repo := newStubRepo()
		svc, mem, _, _ := newService(repo)
		id, _ := uuid.NewV7()
		mem.Set(ctx, cache.PaymentKey(id), domain.Payment{ID: id, Status: domain.StatusPending}, time.Minute)

		payment, err := svc.Lookup(ctx, id)
		if err != nil {
			t.Fatalf("lookup: %v", err)
		}
		if payment.Status != domain.StatusPending {
			t.Errorf("expected cached pending copy, got %s", payment.Status)
		}
	})

	t.Run("unknown id is not found", func(t *testing.T) {
		svc, _, _, _ := newService(newStubRepo())
		if _, err := svc.Lookup(ctx, uuid.New()); !errors.Is(err, domain.ErrPaymentNotFound) {
			t.Errorf("expected not found, got %v", err)
		}
	})
}
