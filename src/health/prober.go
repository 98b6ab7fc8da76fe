package health

import (
	"context"
	"sync"
	"time"

	"paygateway/src/domain"
	"paygateway/src/processor"

	"go.uber.org/zap"
)

const (
	healthyLatencyCeiling  = 1000 * time.Millisecond
	degradedLatencyCeiling = 2000 * time.Millisecond
)

// Prober issues bounded-timeout probes against the upstream processors and
// classifies the results. Probe failures never surface as errors; they fold
// into an unhealthy classification with the timeout as a latency penalty.
type Prober struct {
	clients processor.Registry
	timeout time.Duration
	logger  *zap.Logger
}

func NewProber(clients processor.Registry, timeout time.Duration, logger *zap.Logger) *Prober {
	return &Prober{clients: clients, timeout: timeout, logger: logger}
}

func (p *Prober) Probe(ctx context.Context, name domain.ProcessorName) domain.ProcessorHealth {
	client, ok := p.clients[name]
	if !ok {
		return domain.ProcessorHealth{
			Name:        name,
			Status:      domain.HealthUnknown,
			Latency:     p.timeout,
			CheckedAt:   time.Now().UTC(),
			ErrorDetail: "no client registered",
		}
	}

	probeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	resp, err := client.HealthCheck(probeCtx)
	latency := time.Since(start)

	health := classify(name, resp, err, latency, p.timeout)
	if health.Status == domain.HealthUnhealthy {
		p.logger.Warn("processor unhealthy",
			zap.String("processor", string(name)),
			zap.String("detail", health.ErrorDetail),
			zap.Duration("latency", health.Latency))
	}
	return health
}

// ProbeAll fans out one probe per processor concurrently, so the total probe
// time is bounded by the slowest single probe.
func (p *Prober) ProbeAll(ctx context.Context) []domain.ProcessorHealth {
	names := p.clients.Names()
	results := make([]domain.ProcessorHealth, len(names))

	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func(i int, name domain.ProcessorName) {
			defer wg.Done()
			results[i] = p.Probe(ctx, name)
		}(i, name)
	}
	wg.Wait()
	return results
}

func classify(name domain.ProcessorName, resp domain.HealthResponse, err error, latency, timeout time.Duration) domain.ProcessorHealth {
	health := domain.ProcessorHealth{
		Name:      name,
		CheckedAt: time.Now().UTC(),
		Latency:   latency,
	}

	switch {
	case err != nil:
		// Transport error or timeout. The latency is replaced with the
		// timeout ceiling so a fast connection refusal does not look
		// better than a slow success.
		health.Status = domain.HealthUnhealthy
		health.Latency = timeout
		health.ErrorDetail = err.Error()
	case resp.Failing:
		health.Status = domain.HealthUnhealthy
		health.ErrorDetail = "processor self-reports failing"
	case latency < healthyLatencyCeiling:
		health.Status = domain.HealthHealthy
	case latency < degradedLatencyCeiling:
		health.Status = domain.HealthDegraded
	default:
		health.Status = domain.HealthUnhealthy
		health.ErrorDetail = "probe latency above ceiling"
	}
	return health
}
