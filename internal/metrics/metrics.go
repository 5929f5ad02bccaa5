package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Crawl engine counters and histograms, partitioned by network.

var (
	// Engine
	CrawlBatchesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crawler",
		Subsystem: "engine",
		Name:      "batches_processed_total",
		Help:      "Total signature batches fully processed",
	}, []string{"network"})

	CrawlSignaturesListed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crawler",
		Subsystem: "engine",
		Name:      "signatures_listed_total",
		Help:      "Total signatures returned by history pagination after lower-bound trimming",
	}, []string{"network"})

	CrawlTransactionsFetched = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crawler",
		Subsystem: "engine",
		Name:      "transactions_fetched_total",
		Help:      "Total transaction bodies fetched successfully",
	}, []string{"network"})

	CrawlFetchRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crawler",
		Subsystem: "engine",
		Name:      "fetch_retries_total",
		Help:      "Total transaction fetch retries after transient failures",
	}, []string{"network", "reason"})

	CrawlSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crawler",
		Subsystem: "engine",
		Name:      "transactions_skipped_total",
		Help:      "Total signatures skipped because their transaction could not be fetched",
	}, []string{"network", "kind"})

	CrawlMatchedTransactions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crawler",
		Subsystem: "engine",
		Name:      "matched_transactions_total",
		Help:      "Total transactions passing the transaction filter chain",
	}, []string{"network"})

	CrawlMatchedInstructions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crawler",
		Subsystem: "engine",
		Name:      "matched_instructions_total",
		Help:      "Total instructions passing the instruction filter chain",
	}, []string{"network"})

	CrawlAccountsExtracted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crawler",
		Subsystem: "engine",
		Name:      "accounts_extracted_total",
		Help:      "Total addresses appended to a result bucket",
	}, []string{"network", "label"})

	CrawlFetchLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "crawler",
		Subsystem: "engine",
		Name:      "fetch_duration_seconds",
		Help:      "Transaction fetch duration including retries",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"network"})

	CrawlBatchLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "crawler",
		Subsystem: "engine",
		Name:      "batch_duration_seconds",
		Help:      "Signature batch processing duration (list, fetch, filter, extract)",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"network"})

	// RPC
	RPCCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crawler",
		Subsystem: "rpc",
		Name:      "calls_total",
		Help:      "Total RPC calls by method and status",
	}, []string{"network", "method", "status"})

	RPCRateLimitWaits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crawler",
		Subsystem: "rpc",
		Name:      "rate_limit_waits_total",
		Help:      "Total times RPC calls waited for rate limiter",
	}, []string{"network"})

	RPCBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "crawler",
		Subsystem: "rpc",
		Name:      "breaker_state",
		Help:      "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"endpoint"})

	RPCCacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crawler",
		Subsystem: "rpc",
		Name:      "transaction_cache_hits_total",
		Help:      "Total transaction lookups served from the in-process cache",
	}, []string{"network"})

	// Store
	StoreCheckpointsWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crawler",
		Subsystem: "store",
		Name:      "checkpoints_written_total",
		Help:      "Total crawl checkpoints persisted",
	}, []string{"backend"})

	StoreErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crawler",
		Subsystem: "store",
		Name:      "errors_total",
		Help:      "Total store write failures",
	}, []string{"backend", "op"})

	// Alerts
	AlertsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crawler",
		Subsystem: "alert",
		Name:      "sent_total",
		Help:      "Total alerts delivered by channel and type",
	}, []string{"channel", "type"})

	AlertsSuppressed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crawler",
		Subsystem: "alert",
		Name:      "cooldown_suppressed_total",
		Help:      "Total alerts dropped because the same alert was sent within the cooldown",
	}, []string{"channel", "type"})

	// Health
	HealthStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "crawler",
		Subsystem: "engine",
		Name:      "health_status",
		Help:      "Crawl health (0=unknown, 1=healthy, 2=degraded, 3=unhealthy)",
	}, []string{"network"})
)
