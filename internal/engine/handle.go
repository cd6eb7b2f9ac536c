package engine

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/shaiso/Flowstack/internal/domain"
	"github.com/shaiso/Flowstack/internal/node"
)

// Handle — управление одним выполнением flow.
type Handle struct {
	executionID uuid.UUID
	flowID      int64
	cancel      context.CancelFunc
	done        chan struct{}

	mu     sync.RWMutex
	status domain.ExecStatus
	err    error
	fc     *node.Context
}

func newHandle(flowID int64, fc *node.Context, cancel context.CancelFunc) *Handle {
	return &Handle{
		executionID: fc.ExecutionID(),
		flowID:      flowID,
		cancel:      cancel,
		done:        make(chan struct{}),
		status:      domain.ExecStatusRunning,
		fc:          fc,
	}
}

// ExecutionID возвращает UUID выполнения.
func (h *Handle) ExecutionID() uuid.UUID { return h.executionID }

// FlowID возвращает идентификатор flow.
func (h *Handle) FlowID() int64 { return h.flowID }

// Done закрывается после завершения выполнения.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Cancel запрашивает отмену выполнения. Отмена кооперативная:
// текущий node может её не заметить, следующий не будет запущен.
func (h *Handle) Cancel() { h.cancel() }

// Finished возвращает true, если выполнение завершено.
func (h *Handle) Finished() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Status возвращает текущий статус выполнения.
func (h *Handle) Status() domain.ExecStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.status
}

// Err возвращает ошибку завершившегося с FAILED выполнения.
func (h *Handle) Err() error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.err
}

// Context возвращает FlowContext выполнения.
// После завершения содержит итоговые данные.
func (h *Handle) Context() *node.Context { return h.fc }

// Wait ждёт завершения выполнения.
// Возвращает ошибку выполнения или ctx.Err(), если ожидание прервано.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Handle) finish(status domain.ExecStatus, err error) {
	h.mu.Lock()
	h.status = status
	h.err = err
	h.mu.Unlock()
	h.cancel()
	close(h.done)
}
