package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Flowstack/internal/channel"
	"github.com/shaiso/Flowstack/internal/domain"
	"github.com/shaiso/Flowstack/internal/fields"
	"github.com/shaiso/Flowstack/internal/node"
	"github.com/shaiso/Flowstack/internal/telemetry"
)

// Emitter принимает события выполнения.
// Реализуется channel.Channel.
type Emitter interface {
	Send(ev channel.Event) bool
}

// Config — конфигурация engine.
type Config struct {
	// Nodes — реестр реализаций node.
	Nodes *node.Registry

	// Fields — реестр полей FlowContext.
	Fields *fields.Registry

	// Emitter — получатель событий. Если nil, события не отправляются.
	Emitter Emitter

	// Logger — логгер. Если nil, используется slog.Default().
	Logger *slog.Logger
}

// Engine выполняет flow.
//
// Каждое выполнение идёт в своей горутине; количество одновременных
// выполнений не ограничено.
type Engine struct {
	validator *Validator
	fields    *fields.Registry
	emitter   Emitter
	logger    *slog.Logger

	// running — активные выполнения (для Wait)
	running sync.WaitGroup
}

// New создаёт engine.
func New(cfg Config) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Fields == nil {
		cfg.Fields = fields.Default()
	}
	return &Engine{
		validator: NewValidator(cfg.Nodes),
		fields:    cfg.Fields,
		emitter:   cfg.Emitter,
		logger:    cfg.Logger,
	}
}

// Validator возвращает валидатор engine.
func (e *Engine) Validator() *Validator {
	return e.validator
}

// Fields возвращает реестр полей.
func (e *Engine) Fields() *fields.Registry {
	return e.fields
}

// Execute запускает выполнение flow в отдельной горутине.
//
// Ошибки валидации DAG и входных параметров возвращаются сразу,
// до запуска какого-либо node. Выполнение живёт, пока не завершится
// или пока не будет отменён ctx либо Handle.
func (e *Engine) Execute(ctx context.Context, flowID int64, def *domain.FlowDefinition) (*Handle, error) {
	order, fc, err := e.prepare(flowID, def)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	h := newHandle(flowID, fc, cancel)

	e.running.Add(1)
	go func() {
		defer e.running.Done()

		status, runErr := e.run(runCtx, order, fc, e.emit)
		h.finish(status, runErr)
	}()

	return h, nil
}

// RunOnce выполняет flow синхронно, без событий.
// Возвращает итоговый FlowContext или ошибку первого упавшего node.
func (e *Engine) RunOnce(ctx context.Context, def *domain.FlowDefinition) (*node.Context, error) {
	order, fc, err := e.prepare(0, def)
	if err != nil {
		return nil, err
	}

	if _, err := e.run(ctx, order, fc, discard); err != nil {
		return fc, err
	}
	return fc, nil
}

// Wait ждёт завершения всех запущенных выполнений.
func (e *Engine) Wait() {
	e.running.Wait()
}

// prepare валидирует определение и создаёт FlowContext с MANUAL-значениями.
func (e *Engine) prepare(flowID int64, def *domain.FlowDefinition) ([]domain.FlowNode, *node.Context, error) {
	order, err := e.validator.Validate(def)
	if err != nil {
		return nil, nil, err
	}

	fc := node.NewContext(e.fields, flowID, def.Name)
	if err := fc.Merge(def.ManualParams()); err != nil {
		wrapped := fmt.Errorf("%w: %w", ErrInvalidParam, err)
		return nil, nil, NewValidationError("", wrapped.Error(), wrapped)
	}
	return order, fc, nil
}

// run — цикл выполнения node в топологическом порядке.
func (e *Engine) run(ctx context.Context, order []domain.FlowNode, fc *node.Context, emit func(channel.Event)) (domain.ExecStatus, error) {
	logger := telemetry.WithExecutionID(telemetry.WithFlowID(e.logger, fc.FlowID()), fc.ExecutionID())
	started := time.Now()

	logger.Info("flow execution started", "flow", fc.FlowName(), "nodes", len(order))
	emit(flowEvent(fc, domain.ExecStatusRunning, ""))

	for i := range order {
		fn := &order[i]

		if err := ctx.Err(); err != nil {
			msg := fmt.Sprintf("%s: %v", ErrCancelled, err)
			logger.Warn("flow execution cancelled", "before_node", fn.NodeID)
			emit(flowEvent(fc, domain.ExecStatusFailed, msg))
			telemetry.FlowExecutions.WithLabelValues(string(domain.ExecStatusFailed)).Inc()
			return domain.ExecStatusFailed, fmt.Errorf("%w: %v", ErrCancelled, err)
		}

		nodeLogger := telemetry.WithNodeID(logger, fn.NodeID)
		nodeExecID := uuid.New()

		emit(nodeEvent(fc, fn, nodeExecID, domain.ExecStatusRunning, ""))
		nodeLogger.Debug("node started", "node", fn.Name)

		if msg := e.runNode(ctx, fn, fc); msg != "" {
			nodeLogger.Error("node failed", "node", fn.Name, "error", msg)
			emit(nodeEvent(fc, fn, nodeExecID, domain.ExecStatusFailed, msg))
			emit(flowEvent(fc, domain.ExecStatusFailed, msg))

			telemetry.NodeExecutions.WithLabelValues(string(domain.ExecStatusFailed)).Inc()
			telemetry.FlowExecutions.WithLabelValues(string(domain.ExecStatusFailed)).Inc()
			return domain.ExecStatusFailed, &NodeError{NodeID: fn.NodeID, NodeName: fn.Name, Message: msg}
		}

		emit(nodeEvent(fc, fn, nodeExecID, domain.ExecStatusSuccess, ""))
		telemetry.NodeExecutions.WithLabelValues(string(domain.ExecStatusSuccess)).Inc()
		nodeLogger.Debug("node succeeded", "node", fn.Name)
	}

	emit(flowEvent(fc, domain.ExecStatusSuccess, ""))
	telemetry.FlowExecutions.WithLabelValues(string(domain.ExecStatusSuccess)).Inc()
	logger.Info("flow execution succeeded", "duration", time.Since(started))

	return domain.ExecStatusSuccess, nil
}

// runNode выполняет один node и сливает его выходы в контекст.
// Возвращает текст ошибки или пустую строку при успехе.
func (e *Engine) runNode(ctx context.Context, fn *domain.FlowNode, fc *node.Context) string {
	impl, err := e.validator.Implementation(fn.Name)
	if err != nil {
		return err.Error()
	}

	res, err := invoke(ctx, impl, fc)
	switch {
	case err != nil:
		return err.Error()
	case res == nil:
		return "node returned no result"
	case res.Status == domain.ExecStatusFailed:
		if res.Error == "" {
			return "node returned FAILED"
		}
		return res.Error
	case res.Status != domain.ExecStatusSuccess:
		return fmt.Sprintf("node returned unexpected status %q", res.Status)
	}

	outputs := node.RestrictTo(res.Outputs, impl.Meta().Outputs)
	if err := fc.Merge(outputs); err != nil {
		return fmt.Sprintf("invalid node output: %v", err)
	}
	return ""
}

// invoke вызывает node, превращая panic в ошибку.
func invoke(ctx context.Context, impl node.Node, fc *node.Context) (res *node.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return impl.Execute(ctx, fc)
}

func (e *Engine) emit(ev channel.Event) {
	if e.emitter == nil {
		return
	}
	e.emitter.Send(ev)
}

func discard(channel.Event) {}

func flowEvent(fc *node.Context, status domain.ExecStatus, errText string) channel.Event {
	return channel.Event{
		Kind:            channel.KindFlow,
		FlowID:          fc.FlowID(),
		FlowName:        fc.FlowName(),
		FlowExecutionID: fc.ExecutionID(),
		Status:          status,
		Data:            fc.Snapshot(),
		Error:           errText,
		At:              time.Now(),
	}
}

func nodeEvent(fc *node.Context, fn *domain.FlowNode, nodeExecID uuid.UUID, status domain.ExecStatus, errText string) channel.Event {
	ev := flowEvent(fc, status, errText)
	ev.Kind = channel.KindNode
	ev.NodeExecutionID = nodeExecID
	ev.Node = fn
	return ev
}

// IsValidationError проверяет, что ошибка — структурная ошибка определения
// (DAG или входные параметры), а не отказ выполнения.
func IsValidationError(err error) bool {
	var ve *ValidationError
	var ce *CycleError
	return errors.As(err, &ve) || errors.As(err, &ce)
}
