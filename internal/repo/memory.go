package repo

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Flowstack/internal/domain"
)

// MemoryStore — Store в памяти процесса.
type MemoryStore struct {
	mu sync.RWMutex

	flows     map[int64]domain.FlowRecord
	flowExecs map[uuid.UUID]domain.FlowExecution
	nodeExecs map[uuid.UUID]domain.NodeExecution

	nextFlowID     int64
	nextFlowExecID int64
	nextNodeExecID int64

	now func() time.Time
}

// NewMemoryStore создаёт пустое хранилище.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		flows:     make(map[int64]domain.FlowRecord),
		flowExecs: make(map[uuid.UUID]domain.FlowExecution),
		nodeExecs: make(map[uuid.UUID]domain.NodeExecution),
		now:       time.Now,
	}
}

// CreateFlow создаёт flow.
func (s *MemoryStore) CreateFlow(_ context.Context, flow *domain.FlowRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.nameTaken(flow.Name, 0) {
		return fmt.Errorf("flow %q: %w", flow.Name, ErrAlreadyExists)
	}

	s.nextFlowID++
	now := s.now().UTC()
	flow.ID = s.nextFlowID
	flow.Deleted = false
	flow.CreatedAt = now
	flow.UpdatedAt = now
	s.flows[flow.ID] = *flow
	return nil
}

// GetFlow возвращает flow по ID.
func (s *MemoryStore) GetFlow(_ context.Context, id int64) (*domain.FlowRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	flow, ok := s.flows[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &flow, nil
}

// GetFlowByName возвращает неудалённый flow по имени.
func (s *MemoryStore) GetFlowByName(_ context.Context, name string) (*domain.FlowRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, flow := range s.flows {
		if flow.Name == name && !flow.Deleted {
			return &flow, nil
		}
	}
	return nil, ErrNotFound
}

// ListFlows возвращает flows по фильтру, упорядоченные по ID.
func (s *MemoryStore) ListFlows(_ context.Context, filter FlowFilter) ([]domain.FlowRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var flows []domain.FlowRecord
	for _, flow := range s.flows {
		if filter.Match(&flow) {
			flows = append(flows, flow)
		}
	}
	sort.Slice(flows, func(i, j int) bool { return flows[i].ID < flows[j].ID })
	return flows, nil
}

// UpdateFlow обновляет flow.
func (s *MemoryStore) UpdateFlow(_ context.Context, flow *domain.FlowRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.flows[flow.ID]
	if !ok {
		return ErrNotFound
	}
	if !flow.Deleted && s.nameTaken(flow.Name, flow.ID) {
		return fmt.Errorf("flow %q: %w", flow.Name, ErrAlreadyExists)
	}

	flow.CreatedAt = existing.CreatedAt
	flow.UpdatedAt = s.now().UTC()
	s.flows[flow.ID] = *flow
	return nil
}

// SoftDeleteFlow помечает flow удалённым и выключает расписание.
func (s *MemoryStore) SoftDeleteFlow(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	flow, ok := s.flows[id]
	if !ok {
		return ErrNotFound
	}
	flow.Deleted = true
	flow.Enabled = false
	flow.UpdatedAt = s.now().UTC()
	s.flows[id] = flow
	return nil
}

// CreateFlowExecution вставляет запись о выполнении flow.
func (s *MemoryStore) CreateFlowExecution(_ context.Context, exec *domain.FlowExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.flowExecs[exec.ExecutionUUID]; exists {
		return fmt.Errorf("flow execution %s: %w", exec.ExecutionUUID, ErrAlreadyExists)
	}
	s.nextFlowExecID++
	exec.ID = s.nextFlowExecID
	s.flowExecs[exec.ExecutionUUID] = *exec
	return nil
}

// GetFlowExecution возвращает выполнение flow по UUID.
func (s *MemoryStore) GetFlowExecution(_ context.Context, executionUUID uuid.UUID) (*domain.FlowExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	exec, ok := s.flowExecs[executionUUID]
	if !ok {
		return nil, ErrNotFound
	}
	return &exec, nil
}

// UpdateFlowExecution обновляет выполнение flow.
func (s *MemoryStore) UpdateFlowExecution(_ context.Context, exec *domain.FlowExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.flowExecs[exec.ExecutionUUID]
	if !ok {
		return ErrNotFound
	}
	existing.Status = exec.Status
	existing.Context = exec.Context
	existing.Error = exec.Error
	existing.FinishedAt = exec.FinishedAt
	s.flowExecs[exec.ExecutionUUID] = existing
	return nil
}

// LatestFlowExecution возвращает последнее выполнение flow.
func (s *MemoryStore) LatestFlowExecution(ctx context.Context, flowID int64) (*domain.FlowExecution, error) {
	execs, err := s.ListFlowExecutions(ctx, flowID, 1)
	if err != nil {
		return nil, err
	}
	if len(execs) == 0 {
		return nil, ErrNotFound
	}
	return &execs[0], nil
}

// ListFlowExecutions возвращает выполнения flow, новые первыми.
func (s *MemoryStore) ListFlowExecutions(_ context.Context, flowID int64, limit int) ([]domain.FlowExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var execs []domain.FlowExecution
	for _, exec := range s.flowExecs {
		if exec.FlowID == flowID {
			execs = append(execs, exec)
		}
	}
	sortFlowExecutions(execs)

	if limit = normalizeLimit(limit); len(execs) > limit {
		execs = execs[:limit]
	}
	return execs, nil
}

// CreateNodeExecution вставляет запись о выполнении node.
func (s *MemoryStore) CreateNodeExecution(_ context.Context, exec *domain.NodeExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.nodeExecs[exec.ExecutionUUID]; exists {
		return fmt.Errorf("node execution %s: %w", exec.ExecutionUUID, ErrAlreadyExists)
	}
	s.nextNodeExecID++
	exec.ID = s.nextNodeExecID
	s.nodeExecs[exec.ExecutionUUID] = *exec
	return nil
}

// GetNodeExecution возвращает выполнение node по UUID.
func (s *MemoryStore) GetNodeExecution(_ context.Context, executionUUID uuid.UUID) (*domain.NodeExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	exec, ok := s.nodeExecs[executionUUID]
	if !ok {
		return nil, ErrNotFound
	}
	return &exec, nil
}

// UpdateNodeExecution обновляет выполнение node.
func (s *MemoryStore) UpdateNodeExecution(_ context.Context, exec *domain.NodeExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.nodeExecs[exec.ExecutionUUID]
	if !ok {
		return ErrNotFound
	}
	existing.Status = exec.Status
	existing.Output = exec.Output
	existing.Log = exec.Log
	existing.FinishedAt = exec.FinishedAt
	s.nodeExecs[exec.ExecutionUUID] = existing
	return nil
}

// ListNodeExecutions возвращает выполнения node в порядке вставки.
func (s *MemoryStore) ListNodeExecutions(_ context.Context, flowExecutionID int64) ([]domain.NodeExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var execs []domain.NodeExecution
	for _, exec := range s.nodeExecs {
		if exec.FlowExecutionID == flowExecutionID {
			execs = append(execs, exec)
		}
	}
	sort.Slice(execs, func(i, j int) bool { return execs[i].ID < execs[j].ID })
	return execs, nil
}

// Close — no-op.
func (s *MemoryStore) Close() error { return nil }

// nameTaken проверяет, занято ли имя неудалённым flow, кроме exceptID.
// Вызывается под блокировкой.
func (s *MemoryStore) nameTaken(name string, exceptID int64) bool {
	for id, flow := range s.flows {
		if id != exceptID && flow.Name == name && !flow.Deleted {
			return true
		}
	}
	return false
}

// sortFlowExecutions сортирует выполнения: новые первыми.
func sortFlowExecutions(execs []domain.FlowExecution) {
	sort.Slice(execs, func(i, j int) bool {
		if !execs[i].StartedAt.Equal(execs[j].StartedAt) {
			return execs[i].StartedAt.After(execs[j].StartedAt)
		}
		return execs[i].ID > execs[j].ID
	})
}

var _ Store = (*MemoryStore)(nil)
