package api

import (
	"net/http"
	"time"

	"github.com/shaiso/Flowstack/internal/domain"
)

// ValidateNodes проверяет структуру DAG.
// POST /api/v1/editor/validate-nodes
func (h *Handler) ValidateNodes(w http.ResponseWriter, r *http.Request) {
	var req NodesRequest
	if err := decodeBody(r, &req); err != nil {
		BadRequest(w, "invalid request body: "+err.Error())
		return
	}

	if HandleError(w, h.logger, h.svc.ValidateNodes(req.Definition()), "") {
		return
	}
	Success(w, ValidResponse{Valid: true})
}

// FieldSchemas возвращает схемы входных параметров узлов.
// POST /api/v1/editor/field-schemas
func (h *Handler) FieldSchemas(w http.ResponseWriter, r *http.Request) {
	var req NodesRequest
	if err := decodeBody(r, &req); err != nil {
		BadRequest(w, "invalid request body: "+err.Error())
		return
	}

	schemas, err := h.svc.FieldSchemas(req.Definition())
	if HandleError(w, h.logger, err, "") {
		return
	}
	List(w, schemas, len(schemas))
}

// ValidateParams проверяет входные параметры узлов.
// POST /api/v1/editor/validate-params
func (h *Handler) ValidateParams(w http.ResponseWriter, r *http.Request) {
	var req NodesRequest
	if err := decodeBody(r, &req); err != nil {
		BadRequest(w, "invalid request body: "+err.Error())
		return
	}

	def := req.Definition()
	if err := h.svc.ValidateNodes(def); HandleError(w, h.logger, err, "") {
		return
	}
	if HandleError(w, h.logger, h.svc.ValidateParams(def), "") {
		return
	}
	Success(w, ValidResponse{Valid: true})
}

// RunOnce синхронно выполняет определение без сохранения.
// POST /api/v1/run-once
func (h *Handler) RunOnce(w http.ResponseWriter, r *http.Request) {
	var req RunOnceRequest
	if err := decodeBody(r, &req); err != nil {
		BadRequest(w, "invalid request body: "+err.Error())
		return
	}
	if req.TimeoutSec < 0 {
		BadRequest(w, "timeout_sec must not be negative")
		return
	}

	def := &domain.FlowDefinition{Name: req.Name, Nodes: req.Nodes}
	res, err := h.svc.RunOnce(r.Context(), def, time.Duration(req.TimeoutSec)*time.Second)
	if HandleError(w, h.logger, err, "") {
		return
	}
	Success(w, res)
}

// ListNodes возвращает каталог node.
// GET /api/v1/nodes
func (h *Handler) ListNodes(w http.ResponseWriter, _ *http.Request) {
	metas := h.svc.Nodes()
	List(w, metas, len(metas))
}

// ListFields возвращает реестр полей.
// GET /api/v1/fields
func (h *Handler) ListFields(w http.ResponseWriter, _ *http.Request) {
	defs := h.svc.Fields()
	List(w, defs, len(defs))
}
