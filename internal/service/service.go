package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Flowstack/internal/apperr"
	"github.com/shaiso/Flowstack/internal/domain"
	"github.com/shaiso/Flowstack/internal/engine"
	"github.com/shaiso/Flowstack/internal/fields"
	"github.com/shaiso/Flowstack/internal/node"
	"github.com/shaiso/Flowstack/internal/repo"
	"github.com/shaiso/Flowstack/internal/scheduler"
)

// Store — операции хранилища, нужные сервису.
type Store interface {
	CreateFlow(ctx context.Context, flow *domain.FlowRecord) error
	GetFlow(ctx context.Context, id int64) (*domain.FlowRecord, error)
	GetFlowByName(ctx context.Context, name string) (*domain.FlowRecord, error)
	ListFlows(ctx context.Context, filter repo.FlowFilter) ([]domain.FlowRecord, error)

	GetFlowExecution(ctx context.Context, executionUUID uuid.UUID) (*domain.FlowExecution, error)
	LatestFlowExecution(ctx context.Context, flowID int64) (*domain.FlowExecution, error)
	ListFlowExecutions(ctx context.Context, flowID int64, limit int) ([]domain.FlowExecution, error)
	ListNodeExecutions(ctx context.Context, flowExecutionID int64) ([]domain.NodeExecution, error)
}

// Scheduler — управление расписаниями. Реализуется scheduler.Scheduler.
type Scheduler interface {
	Schedule(flow *domain.FlowRecord) error
	StopSchedule(ctx context.Context, flowID int64) (*domain.FlowRecord, error)
	EnableSchedule(ctx context.Context, flowID int64) (*domain.FlowRecord, error)
	DeleteFlow(ctx context.Context, flowID int64) error
	Trigger(ctx context.Context, flowID int64) (*engine.Handle, error)
}

// Config — конфигурация FlowService.
type Config struct {
	Store     Store
	Engine    *engine.Engine
	Scheduler Scheduler
	Nodes     *node.Registry
	Logger    *slog.Logger
}

// FlowService — операции над flows.
type FlowService struct {
	store     Store
	engine    *engine.Engine
	scheduler Scheduler
	nodes     *node.Registry
	logger    *slog.Logger

	// now подменяется в тестах
	now func() time.Time
}

// New создаёт FlowService.
func New(cfg Config) *FlowService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &FlowService{
		store:     cfg.Store,
		engine:    cfg.Engine,
		scheduler: cfg.Scheduler,
		nodes:     cfg.Nodes,
		logger:    logger,
		now:       time.Now,
	}
}

// CreateFlowRequest — запрос на создание flow.
type CreateFlowRequest struct {
	Name        string            `json:"name" yaml:"name"`
	Description string            `json:"description,omitempty" yaml:"description,omitempty"`
	CronExpr    string            `json:"cron_expr" yaml:"cron_expr"`
	Nodes       []domain.FlowNode `json:"nodes" yaml:"nodes"`
}

// Definition возвращает FlowDefinition запроса.
func (r *CreateFlowRequest) Definition() *domain.FlowDefinition {
	return &domain.FlowDefinition{Name: r.Name, Nodes: r.Nodes}
}

// CreateFlow проверяет и сохраняет flow, затем ставит его в расписание.
//
// Порядок проверок: имя, уникальность имени, cron, DAG, параметры.
// Новый flow сохраняется включённым.
func (s *FlowService) CreateFlow(ctx context.Context, req *CreateFlowRequest) (*domain.FlowRecord, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperr.Validationf("flow name is required")
	}

	if _, err := s.store.GetFlowByName(ctx, name); err == nil {
		return nil, apperr.Businessf("duplicate flow name %s", name)
	} else if !errors.Is(err, repo.ErrNotFound) {
		return nil, apperr.Business("lookup flow by name", err)
	}

	if err := scheduler.ValidateCronExpr(req.CronExpr); err != nil {
		return nil, apperr.Validation(fmt.Sprintf("flow %q", name), err)
	}

	def := req.Definition()
	def.Name = name
	if err := s.ValidateNodes(def); err != nil {
		return nil, err
	}
	if err := s.ValidateParams(def); err != nil {
		return nil, err
	}

	flow := &domain.FlowRecord{
		Name:        name,
		Description: req.Description,
		Definition:  *def,
		CronExpr:    req.CronExpr,
		Enabled:     true,
	}
	if err := s.store.CreateFlow(ctx, flow); err != nil {
		if errors.Is(err, repo.ErrAlreadyExists) {
			return nil, apperr.Business(fmt.Sprintf("duplicate flow name %s", name), err)
		}
		return nil, apperr.Business("insert flow", err)
	}

	s.logger.Info("flow created", "flow_id", flow.ID, "flow_name", flow.Name, "cron_expr", flow.CronExpr)

	if s.scheduler != nil {
		if err := s.scheduler.Schedule(flow); err != nil {
			return flow, apperr.Business("schedule flow", err)
		}
	}
	return flow, nil
}

// ValidateNodes проверяет структуру DAG: уникальность ID, наличие
// реализаций и отсутствие циклов.
func (s *FlowService) ValidateNodes(def *domain.FlowDefinition) error {
	if _, err := s.engine.Validator().Validate(def); err != nil {
		return apperr.Validation("node orchestration invalid", err)
	}
	return nil
}

// ValidateParams проверяет, что для каждого объявленного входа каждого
// node задан параметр с источником, а MANUAL-значения соответствуют
// реестру полей.
func (s *FlowService) ValidateParams(def *domain.FlowDefinition) error {
	registry := s.engine.Fields()

	for _, n := range def.Nodes {
		impl, err := s.engine.Validator().Implementation(n.Name)
		if err != nil {
			return apperr.Validation(fmt.Sprintf("node %s", n.NodeID), err)
		}

		for _, key := range impl.Meta().Inputs {
			param, ok := n.InputParams[key]
			if !ok {
				return apperr.Validationf("node %s (%s): missing param %s", n.NodeID, n.Name, key)
			}
			if param.Source == "" {
				return apperr.Validationf("node %s (%s): param %s has no source", n.NodeID, n.Name, key)
			}
			if !param.Source.Valid() {
				return apperr.Validationf("node %s (%s): param %s has unknown source %q", n.NodeID, n.Name, key, param.Source)
			}
			if param.Source != domain.ParamSourceManual {
				continue
			}
			if _, err := registry.Coerce(key, param.Value); err != nil {
				return apperr.Validation(fmt.Sprintf("node %s (%s): param %s value %v", n.NodeID, n.Name, key, param.Value), err)
			}
		}
	}
	return nil
}

// ParamSchema — описание одного входного параметра для редактора.
type ParamSchema struct {
	Source      domain.ParamSource `json:"source"`
	Type        string             `json:"type"`
	Description string             `json:"description,omitempty"`
	Group       string             `json:"group,omitempty"`
	Value       any                `json:"value,omitempty"`
}

// NodeSchema — входные параметры одного узла.
type NodeSchema struct {
	NodeID   string                 `json:"node_id"`
	NodeName string                 `json:"node_name"`
	Params   map[string]ParamSchema `json:"params"`
}

// FieldSchemas возвращает схемы параметров узлов в топологическом порядке.
//
// Вход, который производит как выход один из предшествующих узлов,
// получает источник NODE_OUTPUT, остальные — MANUAL.
func (s *FlowService) FieldSchemas(def *domain.FlowDefinition) ([]NodeSchema, error) {
	order, err := s.engine.Validator().Validate(def)
	if err != nil {
		return nil, apperr.Validation("node orchestration invalid", err)
	}

	produced := make(map[string]bool)
	result := make([]NodeSchema, 0, len(order))

	for _, n := range order {
		impl, err := s.engine.Validator().Implementation(n.Name)
		if err != nil {
			return nil, apperr.Validation(fmt.Sprintf("node %s", n.NodeID), err)
		}
		meta := impl.Meta()

		schema := NodeSchema{
			NodeID:   n.NodeID,
			NodeName: n.Name,
			Params:   make(map[string]ParamSchema, len(meta.Inputs)),
		}
		for _, key := range meta.Inputs {
			source := domain.ParamSourceManual
			if produced[key] {
				source = domain.ParamSourceNodeOutput
			}
			schema.Params[key] = s.paramSchema(key, source)
		}
		result = append(result, schema)

		for _, key := range meta.Outputs {
			produced[key] = true
		}
	}
	return result, nil
}

func (s *FlowService) paramSchema(key string, source domain.ParamSource) ParamSchema {
	def, ok := s.engine.Fields().Get(key)
	if !ok {
		return ParamSchema{Source: source, Type: "unknown"}
	}
	return ParamSchema{
		Source:      source,
		Type:        def.TypeName(),
		Description: def.Description,
		Group:       def.Group,
	}
}

// ListFlowInfo возвращает сводку по всем неудалённым flows.
// Flow без выполнений имеет статус PENDING и нулевую длительность.
func (s *FlowService) ListFlowInfo(ctx context.Context) ([]domain.FlowInfo, error) {
	flows, err := s.store.ListFlows(ctx, repo.FlowFilter{})
	if err != nil {
		return nil, apperr.Business("list flows", err)
	}

	now := s.now()
	result := make([]domain.FlowInfo, 0, len(flows))
	for _, f := range flows {
		info := domain.FlowInfo{
			FlowID:     f.ID,
			Name:       f.Name,
			CronExpr:   f.CronExpr,
			Enabled:    f.Enabled,
			LastStatus: domain.ExecStatusPending,
		}

		last, err := s.store.LatestFlowExecution(ctx, f.ID)
		switch {
		case err == nil:
			info.LastStatus = last.Status
			info.LastDurationSec = int64(last.Duration(now).Seconds())
		case !errors.Is(err, repo.ErrNotFound):
			return nil, apperr.Business(fmt.Sprintf("latest execution of flow %d", f.ID), err)
		}
		result = append(result, info)
	}
	return result, nil
}

// GetFlow возвращает flow по ID.
func (s *FlowService) GetFlow(ctx context.Context, id int64) (*domain.FlowRecord, error) {
	flow, err := s.store.GetFlow(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get flow %d: %w", id, err)
	}
	return flow, nil
}

// EnableFlow включает расписание flow.
func (s *FlowService) EnableFlow(ctx context.Context, id int64) (*domain.FlowRecord, error) {
	flow, err := s.scheduler.EnableSchedule(ctx, id)
	if err != nil {
		return nil, err
	}
	if flow == nil {
		return nil, fmt.Errorf("flow %d: %w", id, repo.ErrNotFound)
	}
	return flow, nil
}

// DisableFlow выключает расписание flow и отменяет текущее выполнение.
func (s *FlowService) DisableFlow(ctx context.Context, id int64) (*domain.FlowRecord, error) {
	flow, err := s.scheduler.StopSchedule(ctx, id)
	if err != nil {
		return nil, err
	}
	if flow == nil {
		return nil, fmt.Errorf("flow %d: %w", id, repo.ErrNotFound)
	}
	return flow, nil
}

// DeleteFlow снимает расписание и логически удаляет flow.
func (s *FlowService) DeleteFlow(ctx context.Context, id int64) error {
	return s.scheduler.DeleteFlow(ctx, id)
}

// TriggerFlow запускает сохранённый flow вне расписания.
// Допуск общий с cron: пока выполнение flow не завершено, повторный
// запуск отклоняется (scheduler.ErrAlreadyRunning). Выполнение не
// привязано к ctx вызывающего.
func (s *FlowService) TriggerFlow(ctx context.Context, id int64) (*engine.Handle, error) {
	h, err := s.scheduler.Trigger(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) || apperr.IsBusiness(err) {
			return nil, err
		}
		return nil, s.classify(err)
	}
	return h, nil
}

// RunResult — итог разового запуска.
type RunResult struct {
	ExecutionID uuid.UUID         `json:"execution_id"`
	Status      domain.ExecStatus `json:"status"`
	Context     map[string]any    `json:"context"`
	Error       string            `json:"error,omitempty"`
}

// RunOnce синхронно выполняет определение без сохранения и событий.
//
// Ошибки проверки DAG и параметров возвращаются как error; отказ node
// отражается в RunResult. Нулевой timeout означает отсутствие ограничения.
func (s *FlowService) RunOnce(ctx context.Context, def *domain.FlowDefinition, timeout time.Duration) (*RunResult, error) {
	if err := s.ValidateNodes(def); err != nil {
		return nil, err
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	fc, err := s.engine.RunOnce(ctx, def)
	if err != nil && fc == nil {
		return nil, s.classify(err)
	}

	result := &RunResult{
		ExecutionID: fc.ExecutionID(),
		Status:      domain.ExecStatusSuccess,
		Context:     fc.Snapshot(),
	}
	if err != nil {
		result.Status = domain.ExecStatusFailed
		result.Error = err.Error()
	}
	return result, nil
}

// ExecutionDetails — выполнение flow вместе с выполнениями node.
type ExecutionDetails struct {
	domain.FlowExecution
	Nodes []domain.NodeExecution `json:"nodes"`
}

// ListExecutions возвращает последние выполнения flow, новые первыми.
func (s *FlowService) ListExecutions(ctx context.Context, flowID int64, limit int) ([]domain.FlowExecution, error) {
	execs, err := s.store.ListFlowExecutions(ctx, flowID, limit)
	if err != nil {
		return nil, apperr.Business(fmt.Sprintf("list executions of flow %d", flowID), err)
	}
	return execs, nil
}

// GetExecution возвращает выполнение flow по UUID вместе с выполнениями node.
func (s *FlowService) GetExecution(ctx context.Context, executionID uuid.UUID) (*ExecutionDetails, error) {
	exec, err := s.store.GetFlowExecution(ctx, executionID)
	if err != nil {
		return nil, fmt.Errorf("get execution %s: %w", executionID, err)
	}

	nodes, err := s.store.ListNodeExecutions(ctx, exec.ID)
	if err != nil {
		return nil, apperr.Business(fmt.Sprintf("list node executions of %s", executionID), err)
	}
	return &ExecutionDetails{FlowExecution: *exec, Nodes: nodes}, nil
}

// Nodes возвращает описания всех зарегистрированных node.
func (s *FlowService) Nodes() []node.Meta {
	return s.nodes.Metas()
}

// Fields возвращает все поля реестра.
func (s *FlowService) Fields() []fields.Definition {
	return s.engine.Fields().All()
}

// classify переводит ошибки engine в классы apperr.
func (s *FlowService) classify(err error) error {
	if engine.IsValidationError(err) {
		return apperr.Validation("flow definition invalid", err)
	}
	return apperr.Business("execute flow", err)
}
