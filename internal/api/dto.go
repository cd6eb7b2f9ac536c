package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Flowstack/internal/domain"
)

// Flow DTOs

// FlowResponse — ответ с flow.
type FlowResponse struct {
	ID          int64                 `json:"id"`
	Name        string                `json:"name"`
	Description string                `json:"description,omitempty"`
	CronExpr    string                `json:"cron_expr"`
	Enabled     bool                  `json:"enabled"`
	Definition  domain.FlowDefinition `json:"definition"`
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
}

// FlowFromDomain конвертирует domain.FlowRecord в FlowResponse.
func FlowFromDomain(f *domain.FlowRecord) FlowResponse {
	return FlowResponse{
		ID:          f.ID,
		Name:        f.Name,
		Description: f.Description,
		CronExpr:    f.CronExpr,
		Enabled:     f.Enabled,
		Definition:  f.Definition,
		CreatedAt:   f.CreatedAt,
		UpdatedAt:   f.UpdatedAt,
	}
}

// TriggerResponse — ответ на ручной запуск flow.
type TriggerResponse struct {
	FlowID      int64     `json:"flow_id"`
	ExecutionID uuid.UUID `json:"execution_id"`
}

// Editor DTOs

// NodesRequest — список узлов для проверок редактора.
type NodesRequest struct {
	Nodes []domain.FlowNode `json:"nodes"`
}

// Definition возвращает временное определение из узлов запроса.
func (r *NodesRequest) Definition() *domain.FlowDefinition {
	return &domain.FlowDefinition{Name: "editor", Nodes: r.Nodes}
}

// RunOnceRequest — запрос на разовый запуск определения.
type RunOnceRequest struct {
	Name       string            `json:"name,omitempty"`
	Nodes      []domain.FlowNode `json:"nodes"`
	TimeoutSec int               `json:"timeout_sec,omitempty"`
}

// ValidResponse — ответ успешной проверки.
type ValidResponse struct {
	Valid bool `json:"valid"`
}
