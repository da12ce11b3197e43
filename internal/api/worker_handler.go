package api

import (
	"net/http"
	"time"
)

// ListWorkers возвращает имена зарегистрированных worker.
// GET /api/v1/workers
func (h *Handler) ListWorkers(w http.ResponseWriter, r *http.Request) {
	names := h.workers.Names()
	List(w, names, len(names))
}

// RunWorker выполняет worker синхронно, минуя очередь.
// POST /api/v1/workers/{name}/run
//
// 404 — worker не найден, 422 — worker завершился ошибкой.
func (h *Handler) RunWorker(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	var req JobRequest
	if err := decodeJSON(r, &req); err != nil {
		BadRequest(w, err.Error())
		return
	}

	err := h.workers.ProcessJob(r.Context(), name, req.Payload)
	if HandleError(w, h.logger, err, "") {
		return
	}

	Success(w, RunResponse{Worker: name, Status: "completed"})
}

// EnqueueJob ставит задание в очередь worker.
// POST /api/v1/workers/{name}/jobs
func (h *Handler) EnqueueJob(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	var req JobRequest
	if err := decodeJSON(r, &req); err != nil {
		BadRequest(w, err.Error())
		return
	}

	var (
		handle string
		err    error
	)
	if req.DelaySeconds != 0 {
		handle, err = h.workers.EnqueueDelayed(r.Context(), name, req.Payload, time.Duration(req.DelaySeconds)*time.Second)
	} else {
		handle, err = h.workers.EnqueueBackground(r.Context(), name, req.Payload)
	}
	if HandleError(w, h.logger, err, "") {
		return
	}

	JSON(w, http.StatusAccepted, DataResponse{Data: EnqueueResponse{
		Handle:  handle,
		Worker:  name,
		Backend: h.workers.Backend(),
	}})
}

// PurgeJobs удаляет ожидающие задания worker.
// DELETE /api/v1/workers/{name}/jobs
func (h *Handler) PurgeJobs(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	n, err := h.workers.Purge(r.Context(), name)
	if HandleError(w, h.logger, err, "") {
		return
	}

	Success(w, PurgeResponse{Worker: name, Purged: n})
}
