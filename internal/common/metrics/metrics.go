// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	WorkerJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_jobs_active",
			Help: "Number of active jobs per worker",
		},
		[]string{"task_type"},
	)
)

var (
	Decisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qa_decisions_total",
			Help: "Routed decisions by action",
		},
		[]string{"action"},
	)

	FinalScore = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "qa_final_score",
			Help:    "Aggregated confidence of answered questions",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		},
	)

	OracleCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qa_oracle_calls_total",
			Help: "Reasoning oracle invocations by stage and outcome",
		},
		[]string{"stage", "outcome"},
	)

	TopicFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qa_topic_fallback_total",
			Help: "Topic classifications resolved by keyword fallback",
		},
		[]string{"reason"},
	)

	VoterRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qa_voter_runs_total",
			Help: "Consistency votes by trigger",
		},
		[]string{"trigger"},
	)

	DuplicateQuestions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "qa_duplicate_questions_total",
			Help: "Questions answered from the decision store without oracle calls",
		},
	)

	QuestionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "qa_question_duration_seconds",
			Help:    "End-to-end processing time of one question",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		},
	)

	DispatchFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qa_dispatch_failures_total",
			Help: "Failed answer deliveries and escalation notifications",
		},
		[]string{"target"},
	)
)

// ObserveOracleCall matches the oracle call observer signature.
func ObserveOracleCall(stage, outcome string) {
	OracleCalls.WithLabelValues(stage, outcome).Inc()
}
