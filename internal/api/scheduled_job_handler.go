package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"
)

// CreateScheduledJob создаёт отложенное задание.
// POST /api/v1/scheduled-jobs
func (h *Handler) CreateScheduledJob(w http.ResponseWriter, r *http.Request) {
	var req CreateScheduledJobRequest
	if err := decodeJSON(r, &req); err != nil {
		BadRequest(w, err.Error())
		return
	}

	if req.WorkerName == "" {
		BadRequest(w, "worker_name is required")
		return
	}

	var (
		id  uuid.UUID
		err error
	)
	switch {
	case req.Recurrence != nil:
		id, err = h.scheduler.ScheduleRecurring(r.Context(), req.WorkerName, req.Payload, *req.Recurrence)
	case req.RecurrenceType != "":
		id, err = h.scheduler.ScheduleAtInterval(r.Context(), req.WorkerName, req.Payload, req.RecurrenceType, req.Interval)
	case req.ExecuteAt != nil:
		id, err = h.scheduler.ScheduleAtTime(r.Context(), req.WorkerName, *req.ExecuteAt, req.Payload)
	default:
		BadRequest(w, "one of execute_at, recurrence_type or recurrence is required")
		return
	}
	if HandleError(w, h.logger, err, "") {
		return
	}

	job, err := h.scheduler.Get(r.Context(), id)
	if HandleError(w, h.logger, err, "scheduled job not found") {
		return
	}

	Created(w, ScheduledJobFromDomain(job, h.scheduler.Now()))
}

// ListDueJobs возвращает наступившие задания.
// GET /api/v1/scheduled-jobs/due?as_of=<RFC3339>&worker=<name>
func (h *Handler) ListDueJobs(w http.ResponseWriter, r *http.Request) {
	var asOf time.Time
	if s := r.URL.Query().Get("as_of"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			BadRequest(w, "invalid as_of, expected RFC3339")
			return
		}
		asOf = t
	}

	jobs, err := h.scheduler.GetScheduledToRun(r.Context(), asOf, r.URL.Query().Get("worker"))
	if HandleError(w, h.logger, err, "") {
		return
	}

	now := h.scheduler.Now()
	result := make([]ScheduledJobResponse, len(jobs))
	for i := range jobs {
		result[i] = ScheduledJobFromDomain(&jobs[i], now)
	}

	List(w, result, len(result))
}

// GetScheduledJob возвращает задание по ID.
// GET /api/v1/scheduled-jobs/{id}
func (h *Handler) GetScheduledJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid scheduled job id")
		return
	}

	job, err := h.scheduler.Get(r.Context(), id)
	if HandleError(w, h.logger, err, "scheduled job not found") {
		return
	}

	Success(w, ScheduledJobFromDomain(job, h.scheduler.Now()))
}

// MarkJobExecuted помечает задание выполненным.
// POST /api/v1/scheduled-jobs/{id}/executed
//
// 409 — задание уже выполнено.
func (h *Handler) MarkJobExecuted(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid scheduled job id")
		return
	}

	job, err := h.scheduler.MarkExecutedByID(r.Context(), id)
	if HandleError(w, h.logger, err, "scheduled job not found") {
		return
	}

	Success(w, ScheduledJobFromDomain(job, h.scheduler.Now()))
}
