package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RoutedMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nova_gateway_routed_messages_total",
			Help: "Total routed messages by route kind",
		},
		[]string{"route", "intent"},
	)

	RateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nova_gateway_rate_limited_total",
			Help: "Total requests rejected by the per-user rate limiter",
		},
	)

	InferenceRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nova_gateway_inference_requests_total",
			Help: "Total inference attempts by tier and outcome",
		},
		[]string{"tier", "outcome"},
	)

	InferenceLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "nova_gateway_inference_latency_seconds",
			Help: "Inference latency in seconds",
		},
	)

	CredentialFailovers = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nova_gateway_credential_failovers_total",
			Help: "Total credentials marked failed and rotated past",
		},
	)

	ToolInvocations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nova_gateway_tool_invocations_total",
			Help: "Total capability invocations by tool and status",
		},
		[]string{"tool", "status"},
	)

	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nova_gateway_cache_lookups_total",
			Help: "Response cache lookups by result",
		},
		[]string{"result"},
	)

	ActiveRuns = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "nova_gateway_active_runs",
			Help: "Number of orchestrator runs in flight",
		},
	)

	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "nova_gateway_run_duration_seconds",
			Help: "Orchestrator run duration in seconds by terminal phase",
		},
		[]string{"phase"},
	)
)
