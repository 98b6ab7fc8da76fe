package domain

import "time"

type HealthState string

const (
	HealthHealthy   HealthState = "healthy"
	HealthDegraded  HealthState = "degraded"
	HealthUnhealthy HealthState = "unhealthy"
	HealthUnknown   HealthState = "unknown"
)

// ProcessorHealth is a point-in-time assessment of one upstream processor.
// Latency holds the probe round trip, or the probe timeout as a penalty
// value when the probe errored out.
type ProcessorHealth struct {
	Name        ProcessorName `json:"name"`
	Status      HealthState   `json:"status"`
	Latency     time.Duration `json:"latency"`
	CheckedAt   time.Time     `json:"checkedAt"`
	ErrorDetail string        `json:"errorDetail,omitempty"`
}

// HealthSnapshot is the whole-replaced result of probing every processor at
// one point in time.
type HealthSnapshot struct {
	Processors []ProcessorHealth `json:"processors"`
	CachedAt   time.Time         `json:"cachedAt"`
}

func (s HealthSnapshot) Age() time.Duration {
	return time.Since(s.CachedAt)
}

// HealthResponse is the wire body of a processor's service-health endpoint.
type HealthResponse struct {
	Failing         bool `json:"failing"`
	MinResponseTime int  `json:"minResponseTime"`
}
