package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"paygateway/src/domain"
)

// Client is one upstream payment processor: a health probe and a submit
// operation, nothing more.
type Client interface {
	Name() domain.ProcessorName
	HealthCheck(ctx context.Context) (domain.HealthResponse, error)
	SubmitPayment(ctx context.Context, p domain.Payment) error
}

// Registry maps processor names to their clients.
type Registry map[domain.ProcessorName]Client

func (r Registry) Names() []domain.ProcessorName {
	names := make([]domain.ProcessorName, 0, len(r))
	if _, ok := r[domain.ProcessorDefault]; ok {
		names = append(names, domain.ProcessorDefault)
	}
	if _, ok := r[domain.ProcessorFallback]; ok {
		names = append(names, domain.ProcessorFallback)
	}
	for name := range r {
		if name != domain.ProcessorDefault && name != domain.ProcessorFallback {
			names = append(names, name)
		}
	}
	return names
}

type httpClient struct {
	name    domain.ProcessorName
	baseURL string
	client  *http.Client
}

func NewHTTPClient(name domain.ProcessorName, baseURL string) Client {
	return &httpClient{
		name:    name,
		baseURL: baseURL,
		client:  &http.Client{},
	}
}

func (c *httpClient) Name() domain.ProcessorName {
	return c.name
}

func (c *httpClient) HealthCheck(ctx context.Context) (domain.HealthResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/payments/service-health", nil)
	if err != nil {
		return domain.HealthResponse{}, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return domain.HealthResponse{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.HealthResponse{}, fmt.Errorf("health check returned status %d", resp.StatusCode)
	}
	var health domain.HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return domain.HealthResponse{}, fmt.Errorf("decode health response: %w", err)
	}
	return health, nil
}

type submitBody struct {
	CorrelationID string  `json:"correlationId"`
	Amount        float64 `json:"amount"`
	RequestedAt   string  `json:"requestedAt"`
}

func (c *httpClient) SubmitPayment(ctx context.Context, p domain.Payment) error {
	body, err := json.Marshal(submitBody{
		CorrelationID: p.CorrelationID.String(),
		Amount:        p.Amount,
		RequestedAt:   p.RequestedAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/payments", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("processor %s returned status %d", c.name, resp.StatusCode)
	}
	return nil
}
