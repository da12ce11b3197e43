package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registerOnce sync.Once

	// JobsEnqueued — задания, поставленные в очередь (по worker).
	JobsEnqueued = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "workman",
		Name:      "jobs_enqueued_total",
		Help:      "Jobs submitted to the queue",
	}, []string{"worker", "backend"})

	// JobsDispatched — задания, выданные worker, по результату.
	JobsDispatched = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "workman",
		Name:      "jobs_dispatched_total",
		Help:      "Jobs run by a worker, labelled by outcome",
	}, []string{"worker", "outcome"})

	// JobsPurged — задания, удалённые purge.
	JobsPurged = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "workman",
		Name:      "jobs_purged_total",
		Help:      "Jobs discarded by purge",
	}, []string{"worker"})

	// JobDuration — время выполнения worker.
	JobDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "workman",
		Name:      "job_duration_seconds",
		Help:      "Worker execution time",
		Buckets:   prometheus.DefBuckets,
	}, []string{"worker"})

	// ScheduledJobsClaimed — отложенные задания, забранные диспетчером.
	ScheduledJobsClaimed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "workman",
		Name:      "scheduled_jobs_claimed_total",
		Help:      "Scheduled jobs claimed and handed to the queue",
	}, []string{"worker"})

	// ScheduledClaimConflicts — попытки забрать уже забранное задание.
	ScheduledClaimConflicts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "workman",
		Name:      "scheduled_claim_conflicts_total",
		Help:      "Claims lost to another dispatcher",
	})

	// WorkflowsStarted — запущенные экземпляры workflow.
	WorkflowsStarted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "workman",
		Name:      "workflows_started_total",
		Help:      "Workflow instances started by entity events",
	}, []string{"obj_type", "event"})

	// ActionsExecuted — выполненные действия по типу и результату.
	ActionsExecuted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "workman",
		Name:      "workflow_actions_total",
		Help:      "Workflow actions executed, labelled by outcome",
	}, []string{"type", "outcome"})

	// HTTPRequests — запросы к API по шаблону маршрута и статусу.
	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "workman",
		Name:      "http_requests_total",
		Help:      "HTTP requests handled by the API",
	}, []string{"method", "route", "status"})
)

// Значения метки outcome.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeError   = "error"
)

// RegisterMetrics регистрирует метрики в глобальном реестре один раз.
func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			JobsEnqueued,
			JobsDispatched,
			JobsPurged,
			JobDuration,
			ScheduledJobsClaimed,
			ScheduledClaimConflicts,
			WorkflowsStarted,
			ActionsExecuted,
			HTTPRequests,
		)
	})
}

// MetricsHandler возвращает HTTP handler для /metrics.
func MetricsHandler() http.Handler {
	RegisterMetrics()
	return promhttp.Handler()
}
