package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Logging снаружи: panic, перехваченный Recovery, учитывается как 500
	chain := Chain(
		Logging(h.logger),
		Recovery(h.logger),
	)

	// Flows
	mux.Handle("GET /api/v1/flows", chain(http.HandlerFunc(h.ListFlows)))
	mux.Handle("POST /api/v1/flows", chain(http.HandlerFunc(h.CreateFlow)))
	mux.Handle("GET /api/v1/flows/{id}", chain(http.HandlerFunc(h.GetFlow)))
	mux.Handle("DELETE /api/v1/flows/{id}", chain(http.HandlerFunc(h.DeleteFlow)))
	mux.Handle("POST /api/v1/flows/{id}/enable", chain(http.HandlerFunc(h.EnableFlow)))
	mux.Handle("POST /api/v1/flows/{id}/disable", chain(http.HandlerFunc(h.DisableFlow)))
	mux.Handle("POST /api/v1/flows/{id}/run", chain(http.HandlerFunc(h.TriggerFlow)))

	// Executions
	mux.Handle("GET /api/v1/flows/{id}/executions", chain(http.HandlerFunc(h.ListFlowExecutions)))
	mux.Handle("GET /api/v1/executions/{id}", chain(http.HandlerFunc(h.GetExecution)))

	// Editor
	mux.Handle("POST /api/v1/editor/validate-nodes", chain(http.HandlerFunc(h.ValidateNodes)))
	mux.Handle("POST /api/v1/editor/field-schemas", chain(http.HandlerFunc(h.FieldSchemas)))
	mux.Handle("POST /api/v1/editor/validate-params", chain(http.HandlerFunc(h.ValidateParams)))
	mux.Handle("POST /api/v1/run-once", chain(http.HandlerFunc(h.RunOnce)))

	// Catalogue
	mux.Handle("GET /api/v1/nodes", chain(http.HandlerFunc(h.ListNodes)))
	mux.Handle("GET /api/v1/fields", chain(http.HandlerFunc(h.ListFields)))
}
