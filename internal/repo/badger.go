package repo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/google/uuid"

	"github.com/shaiso/Flowstack/internal/domain"
)

// Префиксы ключей Badger.
const (
	keyFlow         = "flow:"
	keyFlowExec     = "flowexec:"
	keyNodeExec     = "nodeexec:"
	keyFlowExecIdx  = "flowexec_idx:" // flow_id:exec_id → execution_uuid
	keyNodeExecIdx  = "nodeexec_idx:" // flow_exec_id:exec_id → execution_uuid
	keySeqFlow      = "seq:flow"
	keySeqFlowExec  = "seq:flowexec"
	keySeqNodeExec  = "seq:nodeexec"
	sequenceLeasing = 100
)

// BadgerStore — Store поверх встроенной Badger.
type BadgerStore struct {
	db *badger.DB

	flowSeq     *badger.Sequence
	flowExecSeq *badger.Sequence
	nodeExecSeq *badger.Sequence
}

// OpenBadger открывает хранилище в каталоге dir.
// Пустой dir — хранилище в памяти.
func OpenBadger(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir).WithLoggingLevel(badger.WARNING)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return NewBadgerStore(db)
}

// NewBadgerStore создаёт Store поверх открытой БД.
func NewBadgerStore(db *badger.DB) (*BadgerStore, error) {
	s := &BadgerStore{db: db}

	var err error
	if s.flowSeq, err = db.GetSequence([]byte(keySeqFlow), sequenceLeasing); err != nil {
		return nil, fmt.Errorf("flow sequence: %w", err)
	}
	if s.flowExecSeq, err = db.GetSequence([]byte(keySeqFlowExec), sequenceLeasing); err != nil {
		return nil, fmt.Errorf("flow execution sequence: %w", err)
	}
	if s.nodeExecSeq, err = db.GetSequence([]byte(keySeqNodeExec), sequenceLeasing); err != nil {
		return nil, fmt.Errorf("node execution sequence: %w", err)
	}
	return s, nil
}

// --- Flow ---

// CreateFlow создаёт flow.
func (s *BadgerStore) CreateFlow(ctx context.Context, flow *domain.FlowRecord) error {
	next, err := s.flowSeq.Next()
	if err != nil {
		return fmt.Errorf("next flow id: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		taken, err := s.nameTaken(txn, flow.Name, 0)
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("flow %q: %w", flow.Name, ErrAlreadyExists)
		}

		now := time.Now().UTC()
		flow.ID = int64(next) + 1
		flow.Deleted = false
		flow.CreatedAt = now
		flow.UpdatedAt = now
		return putJSON(txn, flowKey(flow.ID), flow)
	})
}

// GetFlow возвращает flow по ID.
func (s *BadgerStore) GetFlow(_ context.Context, id int64) (*domain.FlowRecord, error) {
	var flow domain.FlowRecord
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, flowKey(id), &flow)
	})
	if err != nil {
		return nil, err
	}
	return &flow, nil
}

// GetFlowByName возвращает неудалённый flow по имени.
func (s *BadgerStore) GetFlowByName(ctx context.Context, name string) (*domain.FlowRecord, error) {
	flows, err := s.ListFlows(ctx, FlowFilter{})
	if err != nil {
		return nil, err
	}
	for i := range flows {
		if flows[i].Name == name {
			return &flows[i], nil
		}
	}
	return nil, ErrNotFound
}

// ListFlows возвращает flows по фильтру, упорядоченные по ID.
func (s *BadgerStore) ListFlows(_ context.Context, filter FlowFilter) ([]domain.FlowRecord, error) {
	var flows []domain.FlowRecord
	err := s.db.View(func(txn *badger.Txn) error {
		return scanPrefix(txn, keyFlow, func(value []byte) error {
			var flow domain.FlowRecord
			if err := decodeJSON(value, &flow); err != nil {
				return err
			}
			if filter.Match(&flow) {
				flows = append(flows, flow)
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list flows: %w", err)
	}
	return flows, nil
}

// UpdateFlow обновляет flow.
func (s *BadgerStore) UpdateFlow(_ context.Context, flow *domain.FlowRecord) error {
	return s.db.Update(func(txn *badger.Txn) error {
		var existing domain.FlowRecord
		if err := getJSON(txn, flowKey(flow.ID), &existing); err != nil {
			return err
		}
		if !flow.Deleted {
			taken, err := s.nameTaken(txn, flow.Name, flow.ID)
			if err != nil {
				return err
			}
			if taken {
				return fmt.Errorf("flow %q: %w", flow.Name, ErrAlreadyExists)
			}
		}

		flow.CreatedAt = existing.CreatedAt
		flow.UpdatedAt = time.Now().UTC()
		return putJSON(txn, flowKey(flow.ID), flow)
	})
}

// SoftDeleteFlow помечает flow удалённым и выключает расписание.
func (s *BadgerStore) SoftDeleteFlow(_ context.Context, id int64) error {
	return s.db.Update(func(txn *badger.Txn) error {
		var flow domain.FlowRecord
		if err := getJSON(txn, flowKey(id), &flow); err != nil {
			return err
		}
		flow.Deleted = true
		flow.Enabled = false
		flow.UpdatedAt = time.Now().UTC()
		return putJSON(txn, flowKey(id), &flow)
	})
}

// --- FlowExecution ---

// CreateFlowExecution вставляет запись о выполнении flow.
func (s *BadgerStore) CreateFlowExecution(_ context.Context, exec *domain.FlowExecution) error {
	next, err := s.flowExecSeq.Next()
	if err != nil {
		return fmt.Errorf("next flow execution id: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		key := flowExecKey(exec.ExecutionUUID)
		if exists, err := keyExists(txn, key); err != nil {
			return err
		} else if exists {
			return fmt.Errorf("flow execution %s: %w", exec.ExecutionUUID, ErrAlreadyExists)
		}

		exec.ID = int64(next) + 1
		if err := putJSON(txn, key, exec); err != nil {
			return err
		}
		return txn.Set(flowExecIdxKey(exec.FlowID, exec.ID), []byte(exec.ExecutionUUID.String()))
	})
}

// GetFlowExecution возвращает выполнение flow по UUID.
func (s *BadgerStore) GetFlowExecution(_ context.Context, executionUUID uuid.UUID) (*domain.FlowExecution, error) {
	var exec domain.FlowExecution
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, flowExecKey(executionUUID), &exec)
	})
	if err != nil {
		return nil, err
	}
	return &exec, nil
}

// UpdateFlowExecution обновляет выполнение flow.
func (s *BadgerStore) UpdateFlowExecution(_ context.Context, exec *domain.FlowExecution) error {
	return s.db.Update(func(txn *badger.Txn) error {
		key := flowExecKey(exec.ExecutionUUID)
		var existing domain.FlowExecution
		if err := getJSON(txn, key, &existing); err != nil {
			return err
		}
		existing.Status = exec.Status
		existing.Context = exec.Context
		existing.Error = exec.Error
		existing.FinishedAt = exec.FinishedAt
		return putJSON(txn, key, &existing)
	})
}

// LatestFlowExecution возвращает последнее выполнение flow.
func (s *BadgerStore) LatestFlowExecution(ctx context.Context, flowID int64) (*domain.FlowExecution, error) {
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
func (s *BadgerStore) ListFlowExecutions(_ context.Context, flowID int64, limit int) ([]domain.FlowExecution, error) {
	var execs []domain.FlowExecution
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := fmt.Sprintf("%s%020d:", keyFlowExecIdx, flowID)
		return scanPrefix(txn, prefix, func(value []byte) error {
			id, err := uuid.ParseBytes(value)
			if err != nil {
				return fmt.Errorf("parse execution uuid: %w", err)
			}
			var exec domain.FlowExecution
			if err := getJSON(txn, flowExecKey(id), &exec); err != nil {
				return err
			}
			execs = append(execs, exec)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list flow executions: %w", err)
	}

	sortFlowExecutions(execs)
	if limit = normalizeLimit(limit); len(execs) > limit {
		execs = execs[:limit]
	}
	return execs, nil
}

// --- NodeExecution ---

// CreateNodeExecution вставляет запись о выполнении node.
func (s *BadgerStore) CreateNodeExecution(_ context.Context, exec *domain.NodeExecution) error {
	next, err := s.nodeExecSeq.Next()
	if err != nil {
		return fmt.Errorf("next node execution id: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		key := nodeExecKey(exec.ExecutionUUID)
		if exists, err := keyExists(txn, key); err != nil {
			return err
		} else if exists {
			return fmt.Errorf("node execution %s: %w", exec.ExecutionUUID, ErrAlreadyExists)
		}

		exec.ID = int64(next) + 1
		if err := putJSON(txn, key, exec); err != nil {
			return err
		}
		return txn.Set(nodeExecIdxKey(exec.FlowExecutionID, exec.ID), []byte(exec.ExecutionUUID.String()))
	})
}

// GetNodeExecution возвращает выполнение node по UUID.
func (s *BadgerStore) GetNodeExecution(_ context.Context, executionUUID uuid.UUID) (*domain.NodeExecution, error) {
	var exec domain.NodeExecution
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, nodeExecKey(executionUUID), &exec)
	})
	if err != nil {
		return nil, err
	}
	return &exec, nil
}

// UpdateNodeExecution обновляет выполнение node.
func (s *BadgerStore) UpdateNodeExecution(_ context.Context, exec *domain.NodeExecution) error {
	return s.db.Update(func(txn *badger.Txn) error {
		key := nodeExecKey(exec.ExecutionUUID)
		var existing domain.NodeExecution
		if err := getJSON(txn, key, &existing); err != nil {
			return err
		}
		existing.Status = exec.Status
		existing.Output = exec.Output
		existing.Log = exec.Log
		existing.FinishedAt = exec.FinishedAt
		return putJSON(txn, key, &existing)
	})
}

// ListNodeExecutions возвращает выполнения node в порядке вставки.
func (s *BadgerStore) ListNodeExecutions(_ context.Context, flowExecutionID int64) ([]domain.NodeExecution, error) {
	var execs []domain.NodeExecution
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := fmt.Sprintf("%s%020d:", keyNodeExecIdx, flowExecutionID)
		return scanPrefix(txn, prefix, func(value []byte) error {
			id, err := uuid.ParseBytes(value)
			if err != nil {
				return fmt.Errorf("parse execution uuid: %w", err)
			}
			var exec domain.NodeExecution
			if err := getJSON(txn, nodeExecKey(id), &exec); err != nil {
				return err
			}
			execs = append(execs, exec)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list node executions: %w", err)
	}
	sort.Slice(execs, func(i, j int) bool { return execs[i].ID < execs[j].ID })
	return execs, nil
}

// Close освобождает последовательности и закрывает БД.
func (s *BadgerStore) Close() error {
	var errs []error
	for _, seq := range []*badger.Sequence{s.flowSeq, s.flowExecSeq, s.nodeExecSeq} {
		if seq != nil {
			errs = append(errs, seq.Release())
		}
	}
	errs = append(errs, s.db.Close())
	return errors.Join(errs...)
}

// nameTaken проверяет, занято ли имя неудалённым flow, кроме exceptID.
func (s *BadgerStore) nameTaken(txn *badger.Txn, name string, exceptID int64) (bool, error) {
	taken := false
	err := scanPrefix(txn, keyFlow, func(value []byte) error {
		var flow domain.FlowRecord
		if err := decodeJSON(value, &flow); err != nil {
			return err
		}
		if flow.ID != exceptID && flow.Name == name && !flow.Deleted {
			taken = true
		}
		return nil
	})
	return taken, err
}

func flowKey(id int64) []byte {
	return []byte(fmt.Sprintf("%s%020d", keyFlow, id))
}

func flowExecKey(id uuid.UUID) []byte {
	return []byte(keyFlowExec + id.String())
}

func nodeExecKey(id uuid.UUID) []byte {
	return []byte(keyNodeExec + id.String())
}

func flowExecIdxKey(flowID, execID int64) []byte {
	return []byte(fmt.Sprintf("%s%020d:%020d", keyFlowExecIdx, flowID, execID))
}

func nodeExecIdxKey(flowExecID, execID int64) []byte {
	return []byte(fmt.Sprintf("%s%020d:%020d", keyNodeExecIdx, flowExecID, execID))
}

func putJSON(txn *badger.Txn, key []byte, v any) error {
	data, err := encodeJSON(v)
	if err != nil {
		return err
	}
	return txn.Set(key, data)
}

func getJSON(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get %s: %w", key, err)
	}
	return item.Value(func(val []byte) error {
		return decodeJSON(val, v)
	})
}

func keyExists(txn *badger.Txn, key []byte) (bool, error) {
	_, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %s: %w", key, err)
	}
	return true, nil
}

// scanPrefix вызывает fn для значения каждого ключа с префиксом, в порядке ключей.
func scanPrefix(txn *badger.Txn, prefix string, fn func(value []byte) error) error {
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()

	p := []byte(prefix)
	for it.Seek(p); it.ValidForPrefix(p); it.Next() {
		value, err := it.Item().ValueCopy(nil)
		if err != nil {
			return err
		}
		if err := fn(value); err != nil {
			return err
		}
	}
	return nil
}

var _ Store = (*BadgerStore)(nil)
