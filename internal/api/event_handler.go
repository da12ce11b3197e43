package api

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/shaiso/Workman/internal/domain"
	"github.com/shaiso/Workman/internal/worker"
)

// NotifyEvent запускает workflow по событию сущности.
// POST /api/v1/events
//
// С async=true событие ставится в очередь worker EntityEvent, ответ 202.
func (h *Handler) NotifyEvent(w http.ResponseWriter, r *http.Request) {
	var req EventRequest
	if err := decodeJSON(r, &req); err != nil {
		BadRequest(w, err.Error())
		return
	}

	if req.ObjType == "" || req.EntityID == "" {
		BadRequest(w, "obj_type and entity_id are required")
		return
	}
	event, ok := domain.ParseEvent(req.Event)
	if !ok {
		BadRequest(w, "unknown event: "+req.Event)
		return
	}

	if req.Async {
		handle, err := h.workers.EnqueueBackground(r.Context(), worker.EntityEventWorker, domain.Payload{
			"obj_type":   req.ObjType,
			"entity_id":  req.EntityID,
			"event":      string(event),
			"user_id":    req.UserID,
			"account_id": req.AccountID,
		})
		if HandleError(w, h.logger, err, "") {
			return
		}
		JSON(w, http.StatusAccepted, DataResponse{Data: EventResponse{InstanceIDs: []uuid.UUID{}, Handle: handle}})
		return
	}

	var user *domain.User
	if req.UserID != "" {
		user = &domain.User{ID: req.UserID, AccountID: req.AccountID}
	}

	ids, err := h.workflows.NotifyEvent(r.Context(), req.ObjType, req.EntityID, event, user)
	if HandleError(w, h.logger, err, "entity not found") {
		return
	}
	if ids == nil {
		ids = []uuid.UUID{}
	}

	Success(w, EventResponse{InstanceIDs: ids})
}
