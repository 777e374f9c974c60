package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AnalysisRunsTotal counts analysis runs, labeled by outcome.
	AnalysisRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "review_analysis_runs_total",
		Help: "The total number of analysis runs",
	}, []string{"status"}) // status: started, success, failed

	// FindingsTotal counts findings emitted per analyzer.
	FindingsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "review_findings_total",
		Help: "The total number of findings emitted by analyzers",
	}, []string{"analyzer"})

	// RunDuration measures the end-to-end time of one analysis run.
	RunDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "review_run_duration_seconds",
		Help:    "Time taken to analyze and publish one review",
		Buckets: prometheus.DefBuckets,
	}, []string{"result"}) // result: success, error

	// WebhookRequests counts incoming webhooks, labeled by status.
	WebhookRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "review_webhook_requests_total",
		Help: "The total number of received webhook requests",
	}, []string{"status"}) // status: received, accepted, dropped_concurrency, invalid_signature, ...

	// TaskCreateFailures counts failed task creation requests.
	TaskCreateFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "review_task_create_failures_total",
		Help: "Total number of failed task creation requests to Bitbucket",
	}, []string{"reason"})

	// PayloadParseFailures counts webhook payloads that could not be parsed.
	PayloadParseFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "review_webhook_payload_parse_failures_total",
		Help: "Total number of webhook payloads that failed to parse",
	}, []string{"failure_type"})
)
