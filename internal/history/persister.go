package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Flowstack/internal/apperr"
	"github.com/shaiso/Flowstack/internal/channel"
	"github.com/shaiso/Flowstack/internal/domain"
	"github.com/shaiso/Flowstack/internal/node"
	"github.com/shaiso/Flowstack/internal/repo"
	"github.com/shaiso/Flowstack/internal/telemetry"
)

// drainTimeout — время на запись оставшихся событий при остановке.
const drainTimeout = 10 * time.Second

// eventTimeout — предел записи одного события.
const eventTimeout = 30 * time.Second

// Source — источник событий (channel.Channel).
type Source interface {
	Take(ctx context.Context) (channel.Event, error)
	TryTake() (channel.Event, bool)
}

// Store — операции хранилища, нужные persister.
type Store interface {
	CreateFlowExecution(ctx context.Context, exec *domain.FlowExecution) error
	GetFlowExecution(ctx context.Context, executionUUID uuid.UUID) (*domain.FlowExecution, error)
	UpdateFlowExecution(ctx context.Context, exec *domain.FlowExecution) error

	CreateNodeExecution(ctx context.Context, exec *domain.NodeExecution) error
	GetNodeExecution(ctx context.Context, executionUUID uuid.UUID) (*domain.NodeExecution, error)
	UpdateNodeExecution(ctx context.Context, exec *domain.NodeExecution) error
}

// Notifier получает каждое успешно записанное событие.
// Реализуется mq.Notifier.
type Notifier interface {
	Notify(ctx context.Context, ev channel.Event) error
}

// Config — конфигурация Persister.
type Config struct {
	Source Source
	Store  Store

	// Nodes — реестр node для ограничения снимков объявленными ключами.
	Nodes *node.Registry

	// Notifier — необязательный получатель записанных событий.
	Notifier Notifier

	// Logger — логгер. Если nil, используется slog.Default().
	Logger *slog.Logger
}

// Persister — потребитель событий выполнения.
type Persister struct {
	source   Source
	store    Store
	nodes    *node.Registry
	notifier Notifier
	logger   *slog.Logger

	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// New создаёт Persister.
func New(cfg Config) *Persister {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Persister{
		source:   cfg.Source,
		store:    cfg.Store,
		nodes:    cfg.Nodes,
		notifier: cfg.Notifier,
		logger:   logger,
	}
}

// Start запускает цикл обработки событий.
func (p *Persister) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	p.cancelFunc = cancel

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.loop(ctx)
	}()

	p.logger.Info("history persister started")
}

// Stop останавливает цикл, дописывает события, оставшиеся в очереди,
// и ждёт завершения.
func (p *Persister) Stop() {
	if p.cancelFunc != nil {
		p.cancelFunc()
	}
	p.wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()

	drained := 0
	for ctx.Err() == nil {
		ev, ok := p.source.TryTake()
		if !ok {
			break
		}
		p.process(context.Background(), ev)
		drained++
	}

	p.logger.Info("history persister stopped", "drained", drained)
}

// loop — основной цикл: блокирующее чтение до отмены ctx.
// Отмена прерывает только ожидание события: начатая запись доводится
// до конца.
func (p *Persister) loop(ctx context.Context) {
	writeCtx := context.WithoutCancel(ctx)
	for {
		ev, err := p.source.Take(ctx)
		if err != nil {
			return
		}
		p.process(writeCtx, ev)
	}
}

// process обрабатывает одно событие. Ошибки и panic не выходят наружу.
func (p *Persister) process(ctx context.Context, ev channel.Event) {
	ctx, cancel := context.WithTimeout(ctx, eventTimeout)
	defer cancel()

	logger := telemetry.WithExecutionID(telemetry.WithFlowID(p.logger, ev.FlowID), ev.FlowExecutionID)

	defer func() {
		if r := recover(); r != nil {
			telemetry.PersisterErrors.Inc()
			logger.Error("panic while persisting event", "event", ev.String(), "panic", r)
		}
	}()

	err := p.Handle(ctx, ev)
	switch {
	case err == nil:
		p.notify(ctx, ev, logger)
	case errors.Is(err, repo.ErrAlreadyExists):
		// повторное RUNNING-событие для того же UUID: строка уже есть
		logger.Warn("duplicate running event dropped", "event", ev.String(), "error", err)
	default:
		telemetry.PersisterErrors.Inc()
		logger.Error("failed to persist event", "event", ev.String(), "error", apperr.Chain(err))
	}
}

// Handle записывает одно событие в хранилище.
func (p *Persister) Handle(ctx context.Context, ev channel.Event) error {
	switch ev.Kind {
	case channel.KindFlow:
		if ev.Status == domain.ExecStatusRunning {
			return p.flowStarted(ctx, ev)
		}
		if ev.Status.IsTerminal() {
			return p.flowFinished(ctx, ev)
		}
	case channel.KindNode:
		if ev.Node == nil {
			return fmt.Errorf("%w: node event without node", ErrUnknownEvent)
		}
		if ev.Status == domain.ExecStatusRunning {
			return p.nodeStarted(ctx, ev)
		}
		if ev.Status.IsTerminal() {
			return p.nodeFinished(ctx, ev)
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownEvent, ev.String())
}

func (p *Persister) flowStarted(ctx context.Context, ev channel.Event) error {
	exec := &domain.FlowExecution{
		ExecutionUUID: ev.FlowExecutionID,
		FlowID:        ev.FlowID,
		Status:        domain.ExecStatusRunning,
		StartedAt:     ev.At,
	}
	if err := p.store.CreateFlowExecution(ctx, exec); err != nil {
		if errors.Is(err, repo.ErrAlreadyExists) {
			return err
		}
		return apperr.Business("insert flow execution", err)
	}
	return nil
}

func (p *Persister) flowFinished(ctx context.Context, ev channel.Event) error {
	exec, err := p.store.GetFlowExecution(ctx, ev.FlowExecutionID)
	if err != nil {
		return apperr.Business(fmt.Sprintf("flow execution %s not found for %s", ev.FlowExecutionID, ev.Status), err)
	}
	if exec.IsFinished() {
		return apperr.Business("update flow execution", fmt.Errorf("%w: %s", ErrAlreadyFinished, exec.Status))
	}

	exec.MarkFinished(ev.Status, ev.Data, ev.Error, ev.At)
	if err := p.store.UpdateFlowExecution(ctx, exec); err != nil {
		return apperr.Business("update flow execution", err)
	}
	return nil
}

func (p *Persister) nodeStarted(ctx context.Context, ev channel.Event) error {
	owner, err := p.store.GetFlowExecution(ctx, ev.FlowExecutionID)
	if err != nil {
		return apperr.Business(fmt.Sprintf("flow execution %s not found for node %s", ev.FlowExecutionID, ev.Node.NodeID), err)
	}

	meta, err := p.meta(ev.Node.Name)
	if err != nil {
		return apperr.Business("resolve node implementation", err)
	}

	exec := &domain.NodeExecution{
		ExecutionUUID:   ev.NodeExecutionID,
		FlowID:          ev.FlowID,
		FlowExecutionID: owner.ID,
		NodeID:          ev.Node.NodeID,
		NodeName:        ev.Node.Name,
		Status:          domain.ExecStatusRunning,
		Input:           node.RestrictTo(ev.Data, meta.Inputs),
		StartedAt:       ev.At,
	}
	if err := p.store.CreateNodeExecution(ctx, exec); err != nil {
		if errors.Is(err, repo.ErrAlreadyExists) {
			return err
		}
		return apperr.Business("insert node execution", err)
	}
	return nil
}

func (p *Persister) nodeFinished(ctx context.Context, ev channel.Event) error {
	exec, err := p.store.GetNodeExecution(ctx, ev.NodeExecutionID)
	if err != nil {
		return apperr.Business(fmt.Sprintf("node execution %s not found for %s", ev.NodeExecutionID, ev.Status), err)
	}
	if exec.Status != domain.ExecStatusRunning {
		return apperr.Business("update node execution", fmt.Errorf("%w: %s", ErrAlreadyFinished, exec.Status))
	}

	meta, err := p.meta(ev.Node.Name)
	if err != nil {
		return apperr.Business("resolve node implementation", err)
	}

	exec.MarkFinished(ev.Status, node.RestrictTo(ev.Data, meta.Outputs), ev.Error, ev.At)
	if err := p.store.UpdateNodeExecution(ctx, exec); err != nil {
		return apperr.Business("update node execution", err)
	}
	return nil
}

func (p *Persister) meta(name string) (node.Meta, error) {
	impl, err := p.nodes.Get(name)
	if err != nil {
		return node.Meta{}, err
	}
	return impl.Meta(), nil
}

func (p *Persister) notify(ctx context.Context, ev channel.Event, logger *slog.Logger) {
	if p.notifier == nil {
		return
	}
	if err := p.notifier.Notify(ctx, ev); err != nil {
		logger.Warn("failed to notify about event", "event", ev.String(), "error", err)
	}
}
