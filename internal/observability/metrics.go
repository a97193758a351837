package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects the Prometheus series exposed on /metrics. One instance
// is built at startup and handed to the HTTP boundary's Deps; the Router,
// Run Engine and Tool Orchestrator do not receive it and record nothing
// into these series.
type Metrics struct {
	// AttemptsTotal counts Router attempts by provider, model and outcome
	// (success|retryable_failure|terminal_failure).
	AttemptsTotal *prometheus.CounterVec

	// AttemptDuration measures wall-clock time of a single provider attempt.
	AttemptDuration *prometheus.HistogramVec

	// FailoversTotal counts attempts that moved to the next (provider, model)
	// pair after a retryable failure.
	FailoversTotal *prometheus.CounterVec

	// RunsTotal counts finished runs by terminal status
	// (success|failed|cancelled).
	RunsTotal *prometheus.CounterVec

	// RunDuration measures end-to-end run wall-clock time.
	RunDuration *prometheus.HistogramVec

	// RunCostUSD accumulates cost_usd across finished runs, by provider and model.
	RunCostUSD *prometheus.CounterVec

	// ContextWindowUsagePercent observes the context_window_usage_percent
	// of each completion, by model.
	ContextWindowUsagePercent *prometheus.HistogramVec

	// ToolInvocationsTotal counts hosted tool invocations by tool name and
	// outcome (success|error|timeout).
	ToolInvocationsTotal *prometheus.CounterVec

	// ToolInvocationDuration measures hosted tool call latency.
	ToolInvocationDuration *prometheus.HistogramVec

	// ProviderHealthScore reports the current EWMA health score per
	// (provider, model) pair, in [0, 1].
	ProviderHealthScore *prometheus.GaugeVec

	// StorePersistFailures counts Run Store writes that failed (fire-and-forget
	// persistence failures that do not fail the already-delivered response).
	StorePersistFailures *prometheus.CounterVec

	// HTTPRequestDuration measures HTTP boundary request latency.
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics registers every series against the default Prometheus registry.
// Call once at process startup.
func NewMetrics() *Metrics {
	return &Metrics{
		AttemptsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "runengine_attempts_total",
				Help: "Provider attempts by provider, model and outcome",
			},
			[]string{"provider", "model", "outcome"},
		),
		AttemptDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "runengine_attempt_duration_seconds",
				Help:    "Duration of a single provider attempt",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider", "model"},
		),
		FailoversTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "runengine_failovers_total",
				Help: "Attempts that failed over to the next provider/model pair",
			},
			[]string{"from_provider", "to_provider", "reason"},
		),
		RunsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "runengine_runs_total",
				Help: "Finished runs by terminal status",
			},
			[]string{"status", "error_kind"},
		),
		RunDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "runengine_run_duration_seconds",
				Help:    "End-to-end run duration",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"status"},
		),
		RunCostUSD: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "runengine_cost_usd_total",
				Help: "Accumulated cost in USD by provider and model",
			},
			[]string{"provider", "model"},
		),
		ContextWindowUsagePercent: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "runengine_context_window_usage_percent",
				Help:    "Observed context window usage percent per completion",
				Buckets: []float64{10, 25, 50, 75, 90, 95, 99, 100},
			},
			[]string{"model"},
		),
		ToolInvocationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "runengine_tool_invocations_total",
				Help: "Hosted tool invocations by tool name and outcome",
			},
			[]string{"tool_name", "outcome"},
		),
		ToolInvocationDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "runengine_tool_invocation_duration_seconds",
				Help:    "Hosted tool invocation latency",
				Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 15},
			},
			[]string{"tool_name"},
		),
		ProviderHealthScore: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "runengine_provider_health_score",
				Help: "Current EWMA health score per (provider, model), in [0, 1]",
			},
			[]string{"provider", "model"},
		),
		StorePersistFailures: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "runengine_store_persist_failures_total",
				Help: "Run Store writes that failed",
			},
			[]string{"reason"},
		),
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "runengine_http_request_duration_seconds",
				Help:    "HTTP boundary request latency",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"method", "path", "status_code"},
		),
	}
}
