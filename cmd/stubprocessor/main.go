// Command stubprocessor is a fake upstream payment processor for local runs:
// it accepts payments, serves the service-health endpoint and lets failure
// and latency be toggled at runtime.
package main

import (
	"encoding/json"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

type healthStatus struct {
	Failing         bool `json:"failing"`
	MinResponseTime int  `json:"minResponseTime"`
}

type paymentBody struct {
	CorrelationID string  `json:"correlationId"`
	Amount        float64 `json:"amount"`
	RequestedAt   string  `json:"requestedAt"`
}

type stub struct {
	mu       sync.Mutex
	failing  bool
	delay    time.Duration
	received int
	logger   *zap.Logger
}

func (s *stub) health(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	status := healthStatus{Failing: s.failing, MinResponseTime: int(s.delay.Milliseconds())}
	s.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

func (s *stub) payments(w http.ResponseWriter, r *http.Request) {
	var body paymentBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	failing, delay := s.failing, s.delay
	s.received++
	count := s.received
	s.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if failing {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	s.logger.Info("payment accepted",
		zap.String("correlation_id", body.CorrelationID),
		zap.Float64("amount", body.Amount),
		zap.Int("total", count))
	w.WriteHeader(http.StatusOK)
}

func (s *stub) configure(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Failing *bool `json:"failing"`
		DelayMs *int  `json:"delayMs"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	if req.Failing != nil {
		s.failing = *req.Failing
	}
	if req.DelayMs != nil {
		s.delay = time.Duration(*req.DelayMs) * time.Millisecond
	}
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		os.Exit(1)
	}
	defer logger.Sync()

	port := os.Getenv("STUB_PORT")
	if port == "" {
		port = "8001"
	}
	failing, _ := strconv.ParseBool(os.Getenv("STUB_FAILING"))
	delayMs, _ := strconv.Atoi(os.Getenv("STUB_DELAY_MS"))

	s := &stub{
		failing: failing,
		delay:   time.Duration(delayMs) * time.Millisecond,
		logger:  logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /payments/service-health", s.health)
	mux.HandleFunc("POST /payments", s.payments)
	mux.HandleFunc("PUT /admin/configure", s.configure)

	logger.Info("stub processor listening", zap.String("port", port))
	if err := http.ListenAndServe(":"+port, mux); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
