package crawler

import (
	"slices"
	"sync"
	"time"

	"github.com/emperorhan/solana-tx-crawler/internal/domain/model"
	"github.com/emperorhan/solana-tx-crawler/internal/metrics"
)

// HealthStatus is the state a running crawl reports on /healthz.
type HealthStatus string

const (
	HealthStatusUnknown   HealthStatus = "UNKNOWN"
	HealthStatusHealthy   HealthStatus = "HEALTHY"
	HealthStatusDegraded  HealthStatus = "DEGRADED"
	HealthStatusUnhealthy HealthStatus = "UNHEALTHY"
	HealthStatusIdle      HealthStatus = "IDLE"

	// DefaultUnhealthyThreshold is the number of consecutive failed batches
	// before the crawl is considered unhealthy.
	DefaultUnhealthyThreshold = 3

	// DefaultDegradedLatencyThreshold is the P95 batch latency above which
	// the crawl is considered degraded.
	DefaultDegradedLatencyThreshold = 30 * time.Second

	latencyWindowSize = 10
)

func (s HealthStatus) gaugeValue() float64 {
	switch s {
	case HealthStatusHealthy:
		return 1
	case HealthStatusDegraded:
		return 2
	case HealthStatusUnhealthy:
		return 3
	default:
		return 0
	}
}

// Health tracks how the current run is going. A batch fails when at least
// one of its transactions exhausted its retries or when listing failed.
type Health struct {
	mu                       sync.RWMutex
	network                  string
	target                   string
	status                   HealthStatus
	batches                  int
	consecutiveFailures      int
	lastSuccessAt            *time.Time
	lastFailureAt            *time.Time
	unhealthyThreshold       int
	recentLatencies          []time.Duration
	degradedLatencyThreshold time.Duration
	nowFn                    func() time.Time
}

func NewHealth(network string) *Health {
	return &Health{
		network:                  network,
		status:                   HealthStatusUnknown,
		unhealthyThreshold:       DefaultUnhealthyThreshold,
		recentLatencies:          make([]time.Duration, 0, latencyWindowSize),
		degradedLatencyThreshold: DefaultDegradedLatencyThreshold,
		nowFn:                    time.Now,
	}
}

// Start resets the tracker for a new run against target.
func (h *Health) Start(target model.Address) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.target = target.String()
	h.batches = 0
	h.consecutiveFailures = 0
	h.lastSuccessAt = nil
	h.lastFailureAt = nil
	h.recentLatencies = h.recentLatencies[:0]
	h.setStatus(HealthStatusUnknown)
}

// Stop marks the run as over.
func (h *Health) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.setStatus(HealthStatusIdle)
}

// RecordBatch records a completed batch and its latency.
func (h *Health) RecordBatch(latency time.Duration, transientExhausted int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.batches++
	if len(h.recentLatencies) >= latencyWindowSize {
		h.recentLatencies = h.recentLatencies[1:]
	}
	h.recentLatencies = append(h.recentLatencies, latency)

	if transientExhausted > 0 {
		h.recordFailure()
		return
	}
	now := h.nowFn()
	h.consecutiveFailures = 0
	h.lastSuccessAt = &now
	if h.isLatencyDegraded() {
		h.setStatus(HealthStatusDegraded)
	} else {
		h.setStatus(HealthStatusHealthy)
	}
}

// RecordFailure records a failure outside a batch, such as a listing error.
// It returns true if the crawl became unhealthy on this call.
func (h *Health) RecordFailure() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.recordFailure()
}

// Must be called with mu held.
func (h *Health) recordFailure() bool {
	now := h.nowFn()
	h.consecutiveFailures++
	h.lastFailureAt = &now
	if h.consecutiveFailures >= h.unhealthyThreshold {
		changed := h.status != HealthStatusUnhealthy
		h.setStatus(HealthStatusUnhealthy)
		return changed
	}
	if h.status == HealthStatusUnknown || h.status == HealthStatusHealthy {
		h.setStatus(HealthStatusDegraded)
	}
	return false
}

// Must be called with mu held.
func (h *Health) setStatus(s HealthStatus) {
	h.status = s
	metrics.HealthStatus.WithLabelValues(h.network).Set(s.gaugeValue())
}

// Must be called with mu held.
func (h *Health) isLatencyDegraded() bool {
	if len(h.recentLatencies) < 2 {
		return false
	}
	return h.percentileLatency(95) > h.degradedLatencyThreshold
}

// Must be called with mu held.
func (h *Health) percentileLatency(pct int) time.Duration {
	n := len(h.recentLatencies)
	if n == 0 {
		return 0
	}
	sorted := slices.Clone(h.recentLatencies)
	slices.Sort(sorted)
	idx := (pct*n - 1) / 100
	idx = max(0, min(idx, n-1))
	return sorted[idx]
}

// Snapshot returns the current state.
func (h *Health) Snapshot() HealthSnapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return HealthSnapshot{
		Network:             h.network,
		Target:              h.target,
		Status:              string(h.status),
		Batches:             h.batches,
		ConsecutiveFailures: h.consecutiveFailures,
		P95LatencyMS:        h.percentileLatency(95).Milliseconds(),
		LastSuccessAt:       h.lastSuccessAt,
		LastFailureAt:       h.lastFailureAt,
	}
}

// HealthSnapshot is a point-in-time view of crawl health (JSON-safe).
type HealthSnapshot struct {
	Network             string     `json:"network"`
	Target              string     `json:"target,omitempty"`
	Status              string     `json:"status"`
	Batches             int        `json:"batches"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	P95LatencyMS        int64      `json:"p95_latency_ms"`
	LastSuccessAt       *time.Time `json:"last_success_at,omitempty"`
	LastFailureAt       *time.Time `json:"last_failure_at,omitempty"`
}
