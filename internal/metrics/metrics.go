package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Task metrics
	TasksStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketbeam_tasks_started_total",
			Help: "Total number of tasks started",
		},
		[]string{"mode"},
	)

	TasksCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketbeam_tasks_completed_total",
			Help: "Total number of tasks completed",
		},
		[]string{"mode", "status"},
	)

	TaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "marketbeam_task_duration_seconds",
			Help:    "Task execution duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"mode"},
	)

	TaskTokensUsed = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "marketbeam_task_tokens_used",
			Help:    "Number of tokens used per task",
			Buckets: []float64{10, 50, 100, 500, 1000, 5000, 10000},
		},
	)

	TaskCostUSD = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "marketbeam_task_cost_usd",
			Help:    "Cost in USD per task",
			Buckets: []float64{0.001, 0.01, 0.1, 1, 10},
		},
	)

	// Capability metrics
	CapabilityExecutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketbeam_capability_executions_total",
			Help: "Total number of capability executions",
		},
		[]string{"capability_id", "status"},
	)

	CapabilityExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "marketbeam_capability_execution_duration_ms",
			Help:    "Capability execution duration in milliseconds",
			Buckets: []float64{100, 500, 1000, 2000, 5000, 10000, 30000},
		},
		[]string{"capability_id"},
	)

	CapabilityRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketbeam_capability_retries_total",
			Help: "Total number of completion call retries",
		},
		[]string{"capability_id"},
	)

	// Credential broker metrics
	CredentialCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "marketbeam_credential_cache_hits_total",
			Help: "Total number of credential cache hits",
		},
	)

	CredentialCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "marketbeam_credential_cache_misses_total",
			Help: "Total number of credential cache misses",
		},
	)

	CredentialResolves = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketbeam_credential_resolves_total",
			Help: "Total number of credential resolutions by source",
		},
		[]string{"service", "source"},
	)

	SecretOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketbeam_secret_operations_total",
			Help: "Total number of secret store operations",
		},
		[]string{"operation", "status"},
	)

	// Conversation metrics
	ConversationsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "marketbeam_conversations_created_total",
			Help: "Total number of conversations created",
		},
	)

	ConversationCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "marketbeam_conversation_cache_hits_total",
			Help: "Total number of conversation cache hits",
		},
	)

	ConversationCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "marketbeam_conversation_cache_misses_total",
			Help: "Total number of conversation cache misses",
		},
	)

	ConversationCacheSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "marketbeam_conversation_cache_size",
			Help: "Current number of conversations in local cache",
		},
	)

	ConversationCacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "marketbeam_conversation_cache_evictions_total",
			Help: "Total number of conversations evicted from local cache",
		},
	)

	// Intent metrics
	IntentClassifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketbeam_intent_classifications_total",
			Help: "Total number of intent classifications by category",
		},
		[]string{"category"},
	)

	// Completion endpoint metrics
	CompletionRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketbeam_completion_requests_total",
			Help: "Total number of completion endpoint requests",
		},
		[]string{"provider", "status"},
	)

	CompletionLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "marketbeam_completion_latency_seconds",
			Help:    "Completion endpoint latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	// Pricing fallback metrics
	PricingFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketbeam_pricing_fallback_total",
			Help: "Total number of pricing fallbacks (missing/unknown model)",
		},
		[]string{"reason"},
	)

	// HTTP API metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketbeam_http_requests_total",
			Help: "Total number of HTTP API requests",
		},
		[]string{"route", "method", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "marketbeam_http_request_duration_seconds",
			Help:    "HTTP API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)

	RateLimitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketbeam_rate_limit_rejections_total",
			Help: "Total number of requests rejected by the per-tenant rate limiter",
		},
		[]string{"route"},
	)
)

// RecordTaskMetrics records metrics for a completed task
func RecordTaskMetrics(mode, status string, durationSeconds float64, tokensUsed int, costUSD float64) {
	TasksCompleted.WithLabelValues(mode, status).Inc()
	TaskDuration.WithLabelValues(mode).Observe(durationSeconds)

	if tokensUsed > 0 {
		TaskTokensUsed.Observe(float64(tokensUsed))
	}
	if costUSD > 0 {
		TaskCostUSD.Observe(costUSD)
	}
}

// RecordCapabilityMetrics records metrics for a single capability execution
func RecordCapabilityMetrics(capabilityID, status string, durationMs float64) {
	CapabilityExecutions.WithLabelValues(capabilityID, status).Inc()
	CapabilityExecutionDuration.WithLabelValues(capabilityID).Observe(durationMs)
}

// RecordCompletionMetrics records metrics for a completion endpoint request
func RecordCompletionMetrics(provider, status string, durationSeconds float64) {
	CompletionRequests.WithLabelValues(provider, status).Inc()
	if durationSeconds > 0 {
		CompletionLatency.WithLabelValues(provider).Observe(durationSeconds)
	}
}
