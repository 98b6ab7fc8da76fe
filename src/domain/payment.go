package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

type PaymentStatus string

const (
	StatusPending   PaymentStatus = "pending"
	StatusSucceeded PaymentStatus = "succeeded"
	StatusFailed    PaymentStatus = "failed"
)

type ProcessorName string

const (
	ProcessorDefault  ProcessorName = "default"
	ProcessorFallback ProcessorName = "fallback"
)

var (
	ErrDuplicateCorrelationID = errors.New("payment with this correlation id already exists")
	ErrPaymentNotFound        = errors.New("payment not found")
	ErrNoProcessorAvailable   = errors.New("no payment processor available")
	ErrInfrastructure         = errors.New("infrastructure failure")
)

// Payment is a client-submitted intent to pay. Status moves exactly once,
// from pending into succeeded or failed; terminal states are final.
// Processor is only set on success.
type Payment struct {
	ID            uuid.UUID     `json:"id"`
	CorrelationID uuid.UUID     `json:"correlationId"`
	Amount        float64       `json:"amount"`
	Status        PaymentStatus `json:"status"`
	RequestedAt   time.Time     `json:"requestedAt"`
	ProcessedAt   *time.Time    `json:"processedAt,omitempty"`
	Processor     ProcessorName `json:"processor,omitempty"`
}

func (p Payment) Terminal() bool {
	return p.Status == StatusSucceeded || p.Status == StatusFailed
}

type PaymentRequest struct {
	CorrelationID string  `json:"correlationId"`
	Amount        float64 `json:"amount"`
}

type PaymentSummary struct {
	Default  SummaryItem `json:"default"`
	Fallback SummaryItem `json:"fallback"`
}

type SummaryItem struct {
	TotalRequests int     `json:"totalRequests"`
	TotalAmount   float64 `json:"totalAmount"`
}
