package api

import (
	"net/http"

	"github.com/shaiso/Workman/internal/telemetry"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Middleware chain
	// Logging снаружи: Recovery получает логгер запроса, а статус 500 попадает в лог
	chain := Chain(
		Logging(h.logger),
		Recovery(h.logger),
	)

	// Service
	mux.Handle("GET /health", http.HandlerFunc(h.Health))
	mux.Handle("GET /metrics", telemetry.MetricsHandler())

	// Workers
	mux.Handle("GET /api/v1/workers", chain(http.HandlerFunc(h.ListWorkers)))
	mux.Handle("POST /api/v1/workers/{name}/run", chain(http.HandlerFunc(h.RunWorker)))
	mux.Handle("POST /api/v1/workers/{name}/jobs", chain(http.HandlerFunc(h.EnqueueJob)))
	mux.Handle("DELETE /api/v1/workers/{name}/jobs", chain(http.HandlerFunc(h.PurgeJobs)))

	// Events
	mux.Handle("POST /api/v1/events", chain(http.HandlerFunc(h.NotifyEvent)))

	// Scheduled jobs
	mux.Handle("POST /api/v1/scheduled-jobs", chain(http.HandlerFunc(h.CreateScheduledJob)))
	mux.Handle("GET /api/v1/scheduled-jobs/due", chain(http.HandlerFunc(h.ListDueJobs)))
	mux.Handle("GET /api/v1/scheduled-jobs/{id}", chain(http.HandlerFunc(h.GetScheduledJob)))
	mux.Handle("POST /api/v1/scheduled-jobs/{id}/executed", chain(http.HandlerFunc(h.MarkJobExecuted)))

	// Workflows
	mux.Handle("POST /api/v1/workflows", chain(http.HandlerFunc(h.SaveWorkflow)))
}

// Health отвечает 200, если внешние подключения доступны.
// GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil {
		if err := h.ready(r.Context()); err != nil {
			h.logger.Warn("health check failed", "error", err)
			Error(w, http.StatusServiceUnavailable, ErrCodeUnavailable, err.Error())
			return
		}
	}
	JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
