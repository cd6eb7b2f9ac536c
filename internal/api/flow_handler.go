package api

import (
	"net/http"

	"github.com/shaiso/Flowstack/internal/service"
)

// ListFlows возвращает сводку по всем неудалённым flows.
// GET /api/v1/flows
func (h *Handler) ListFlows(w http.ResponseWriter, r *http.Request) {
	infos, err := h.svc.ListFlowInfo(r.Context())
	if HandleError(w, h.logger, err, "") {
		return
	}
	List(w, infos, len(infos))
}

// CreateFlow создаёт flow и ставит его в расписание.
// POST /api/v1/flows
func (h *Handler) CreateFlow(w http.ResponseWriter, r *http.Request) {
	var req service.CreateFlowRequest
	if err := decodeBody(r, &req); err != nil {
		BadRequest(w, "invalid request body: "+err.Error())
		return
	}

	flow, err := h.svc.CreateFlow(r.Context(), &req)
	if HandleError(w, h.logger, err, "") {
		return
	}
	Created(w, FlowFromDomain(flow))
}

// GetFlow возвращает flow по ID.
// GET /api/v1/flows/{id}
func (h *Handler) GetFlow(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r, "id")
	if !ok {
		BadRequest(w, "invalid flow id")
		return
	}

	flow, err := h.svc.GetFlow(r.Context(), id)
	if HandleError(w, h.logger, err, "flow not found") {
		return
	}
	Success(w, FlowFromDomain(flow))
}

// DeleteFlow снимает расписание и логически удаляет flow.
// DELETE /api/v1/flows/{id}
func (h *Handler) DeleteFlow(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r, "id")
	if !ok {
		BadRequest(w, "invalid flow id")
		return
	}

	if HandleError(w, h.logger, h.svc.DeleteFlow(r.Context(), id), "flow not found") {
		return
	}
	NoContent(w)
}

// EnableFlow включает расписание flow.
// POST /api/v1/flows/{id}/enable
func (h *Handler) EnableFlow(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r, "id")
	if !ok {
		BadRequest(w, "invalid flow id")
		return
	}

	flow, err := h.svc.EnableFlow(r.Context(), id)
	if HandleError(w, h.logger, err, "flow not found") {
		return
	}
	Success(w, FlowFromDomain(flow))
}

// DisableFlow выключает расписание flow и отменяет текущее выполнение.
// POST /api/v1/flows/{id}/disable
func (h *Handler) DisableFlow(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r, "id")
	if !ok {
		BadRequest(w, "invalid flow id")
		return
	}

	flow, err := h.svc.DisableFlow(r.Context(), id)
	if HandleError(w, h.logger, err, "flow not found") {
		return
	}
	Success(w, FlowFromDomain(flow))
}

// TriggerFlow запускает flow вне расписания и сразу отвечает 202.
// POST /api/v1/flows/{id}/run
func (h *Handler) TriggerFlow(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r, "id")
	if !ok {
		BadRequest(w, "invalid flow id")
		return
	}

	handle, err := h.svc.TriggerFlow(r.Context(), id)
	if HandleError(w, h.logger, err, "flow not found") {
		return
	}
	Accepted(w, TriggerResponse{FlowID: id, ExecutionID: handle.ExecutionID()})
}
