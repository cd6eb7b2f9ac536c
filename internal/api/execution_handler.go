package api

import (
	"net/http"

	"github.com/google/uuid"
)

// ListFlowExecutions возвращает последние выполнения flow.
// GET /api/v1/flows/{id}/executions?limit=50
func (h *Handler) ListFlowExecutions(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r, "id")
	if !ok {
		BadRequest(w, "invalid flow id")
		return
	}

	execs, err := h.svc.ListExecutions(r.Context(), id, parseLimit(r))
	if HandleError(w, h.logger, err, "") {
		return
	}
	List(w, execs, len(execs))
}

// GetExecution возвращает выполнение flow с выполнениями node.
// GET /api/v1/executions/{id}
func (h *Handler) GetExecution(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid execution id")
		return
	}

	details, err := h.svc.GetExecution(r.Context(), id)
	if HandleError(w, h.logger, err, "execution not found") {
		return
	}
	Success(w, details)
}
