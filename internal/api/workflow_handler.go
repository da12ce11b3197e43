package api

import (
	"net/http"

	"github.com/shaiso/Workman/internal/domain"
)

// SaveWorkflow сохраняет workflow вместе с деревом действий.
// POST /api/v1/workflows
//
// Неизвестные типы действий, циклы и ссылки на отсутствующих
// родителей отклоняются с 400.
func (h *Handler) SaveWorkflow(w http.ResponseWriter, r *http.Request) {
	var req SaveWorkflowRequest
	if err := decodeJSON(r, &req); err != nil {
		BadRequest(w, err.Error())
		return
	}

	wf := req.Workflow
	actions := req.Actions
	if err := h.workflows.SaveWorkflow(r.Context(), &wf, actions); HandleError(w, h.logger, err, "") {
		return
	}

	if actions == nil {
		actions = []domain.WorkflowAction{}
	}
	Created(w, WorkflowResponse{Workflow: wf, Actions: actions})
}
