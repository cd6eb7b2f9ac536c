package repo

import (
	"context"

	"github.com/google/uuid"

	"github.com/shaiso/Flowstack/internal/domain"
)

// Store — полный набор операций хранилища.
//
// Потребители объявляют свои узкие интерфейсы (history.Store,
// scheduler.DefinitionStore, service.Store); Store нужен точке сборки,
// чтобы выбрать реализацию по конфигурации.
type Store interface {
	CreateFlow(ctx context.Context, flow *domain.FlowRecord) error
	GetFlow(ctx context.Context, id int64) (*domain.FlowRecord, error)
	GetFlowByName(ctx context.Context, name string) (*domain.FlowRecord, error)
	ListFlows(ctx context.Context, filter FlowFilter) ([]domain.FlowRecord, error)
	UpdateFlow(ctx context.Context, flow *domain.FlowRecord) error
	SoftDeleteFlow(ctx context.Context, id int64) error

	CreateFlowExecution(ctx context.Context, exec *domain.FlowExecution) error
	GetFlowExecution(ctx context.Context, executionUUID uuid.UUID) (*domain.FlowExecution, error)
	UpdateFlowExecution(ctx context.Context, exec *domain.FlowExecution) error
	LatestFlowExecution(ctx context.Context, flowID int64) (*domain.FlowExecution, error)
	ListFlowExecutions(ctx context.Context, flowID int64, limit int) ([]domain.FlowExecution, error)

	CreateNodeExecution(ctx context.Context, exec *domain.NodeExecution) error
	GetNodeExecution(ctx context.Context, executionUUID uuid.UUID) (*domain.NodeExecution, error)
	UpdateNodeExecution(ctx context.Context, exec *domain.NodeExecution) error
	ListNodeExecutions(ctx context.Context, flowExecutionID int64) ([]domain.NodeExecution, error)

	Close() error
}

// FlowFilter — фильтр для ListFlows.
type FlowFilter struct {
	// EnabledOnly — только flow с активным расписанием.
	EnabledOnly bool

	// IncludeDeleted — включать логически удалённые.
	IncludeDeleted bool
}

// Match проверяет flow по фильтру.
func (f FlowFilter) Match(flow *domain.FlowRecord) bool {
	if flow.Deleted && !f.IncludeDeleted {
		return false
	}
	if f.EnabledOnly && !flow.Enabled {
		return false
	}
	return true
}

// DefaultExecutionLimit — лимит ListFlowExecutions по умолчанию.
const DefaultExecutionLimit = 50

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultExecutionLimit
	}
	return limit
}
