package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/shaiso/Flowstack/internal/apperr"
	"github.com/shaiso/Flowstack/internal/domain"
	"github.com/shaiso/Flowstack/internal/engine"
	"github.com/shaiso/Flowstack/internal/repo"
	"github.com/shaiso/Flowstack/internal/telemetry"
)

// DefinitionStore — операции хранилища flows, нужные планировщику.
type DefinitionStore interface {
	GetFlow(ctx context.Context, id int64) (*domain.FlowRecord, error)
	ListFlows(ctx context.Context, filter repo.FlowFilter) ([]domain.FlowRecord, error)
	UpdateFlow(ctx context.Context, flow *domain.FlowRecord) error
	SoftDeleteFlow(ctx context.Context, id int64) error
}

// Executor запускает выполнение flow. Реализуется engine.Engine.
type Executor interface {
	Execute(ctx context.Context, flowID int64, def *domain.FlowDefinition) (*engine.Handle, error)
}

// Config — конфигурация Scheduler.
type Config struct {
	Store    DefinitionStore
	Executor Executor
	Logger   *slog.Logger
}

// entry — запланированный flow.
type entry struct {
	entryID cron.EntryID
	flow    domain.FlowRecord
}

// Scheduler — cron-планировщик flows с контролем перекрытия.
type Scheduler struct {
	store    DefinitionStore
	executor Executor
	logger   *slog.Logger
	cron     *cron.Cron

	mu      sync.Mutex
	entries map[int64]*entry
	// running — последнее выполнение каждого flow, по расписанию или вручную
	running    map[int64]*engine.Handle
	baseCtx    context.Context
	cancelFunc context.CancelFunc
}

// New создаёт Scheduler.
func New(cfg Config) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		store:    cfg.Store,
		executor: cfg.Executor,
		logger:   logger,
		cron: cron.New(
			cron.WithParser(cronParser),
			cron.WithLogger(cronLogger{logger: logger}),
		),
		entries:    make(map[int64]*entry),
		running:    make(map[int64]*engine.Handle),
		baseCtx:    baseCtx,
		cancelFunc: cancel,
	}
}

// Start загружает включённые flows, планирует каждый и запускает cron.
// Flow с некорректным расписанием пропускается с записью в лог.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	s.cancelFunc()
	s.baseCtx, s.cancelFunc = context.WithCancel(context.WithoutCancel(ctx))
	s.mu.Unlock()

	flows, err := s.store.ListFlows(ctx, repo.FlowFilter{EnabledOnly: true})
	if err != nil {
		return apperr.Business("load scheduled flows", err)
	}

	for i := range flows {
		if err := s.Schedule(&flows[i]); err != nil {
			s.logger.Error("failed to schedule flow",
				"flow_id", flows[i].ID,
				"flow_name", flows[i].Name,
				"error", err,
			)
		}
	}

	s.cron.Start()
	s.logger.Info("scheduler started", "scheduled", s.ActiveCount())
	return nil
}

// Stop снимает все расписания, отменяет текущие выполнения и ждёт
// завершения запущенных callback'ов и выполнений (или отмены ctx).
// Флаг enabled в хранилище не меняется: после перезапуска расписания
// восстанавливаются.
func (s *Scheduler) Stop(ctx context.Context) error {
	cronDone := s.cron.Stop()

	s.mu.Lock()
	for id, e := range s.entries {
		s.cron.Remove(e.entryID)
		delete(s.entries, id)
	}
	handles := make([]*engine.Handle, 0, len(s.running))
	for id, h := range s.running {
		h.Cancel()
		handles = append(handles, h)
		delete(s.running, id)
	}
	s.cancelFunc()
	telemetry.SchedulerActiveSchedules.Set(0)
	s.mu.Unlock()

	select {
	case <-cronDone.Done():
	case <-ctx.Done():
		return ctx.Err()
	}

	for _, h := range handles {
		select {
		case <-h.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	s.logger.Info("scheduler stopped", "cancelled", len(handles))
	return nil
}

// Schedule регистрирует cron-триггер для flow.
// Повторный вызов для уже запланированного flow ничего не делает.
func (s *Scheduler) Schedule(flow *domain.FlowRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[flow.ID]; ok {
		return nil
	}

	schedule, err := ParseCronExpr(flow.CronExpr)
	if err != nil {
		return apperr.Validation(fmt.Sprintf("schedule flow %d", flow.ID), err)
	}

	flowID := flow.ID
	entryID := s.cron.Schedule(schedule, cron.FuncJob(func() {
		s.fire(flowID)
	}))

	s.entries[flowID] = &entry{entryID: entryID, flow: *flow}
	telemetry.SchedulerActiveSchedules.Set(float64(len(s.entries)))

	s.logger.Info("flow scheduled",
		"flow_id", flowID,
		"flow_name", flow.Name,
		"cron_expr", flow.CronExpr,
	)
	return nil
}

// fire — callback cron-записи. Возвращает true, если выполнение запущено.
//
// Новое выполнение запускается, только если предыдущее завершено.
// Пропущенное срабатывание теряется.
func (s *Scheduler) fire(flowID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[flowID]
	if !ok {
		return false
	}
	logger := telemetry.WithFlowID(s.logger, flowID)

	if prev := s.activeLocked(flowID); prev != nil {
		telemetry.SchedulerSkippedFires.Inc()
		logger.Warn("previous execution still running, fire skipped",
			"execution_id", prev.ExecutionID(),
		)
		return false
	}

	h, err := s.executor.Execute(s.baseCtx, flowID, &e.flow.Definition)
	if err != nil {
		logger.Error("failed to start scheduled execution", "error", err)
		return false
	}
	s.running[flowID] = h

	logger.Debug("scheduled execution started", "execution_id", h.ExecutionID())
	return true
}

// Trigger запускает flow вне расписания с тем же правилом допуска, что
// и срабатывание cron: пока предыдущее выполнение flow не завершено,
// возвращается ошибка с ErrAlreadyRunning. Выполнение отменяется через
// StopSchedule, DeleteFlow и Stop.
func (s *Scheduler) Trigger(ctx context.Context, flowID int64) (*engine.Handle, error) {
	flow, err := s.store.GetFlow(ctx, flowID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, fmt.Errorf("flow %d: %w", flowID, repo.ErrNotFound)
		}
		return nil, apperr.Business(fmt.Sprintf("load flow %d", flowID), err)
	}
	if flow.Deleted {
		return nil, fmt.Errorf("flow %d: %w", flowID, repo.ErrNotFound)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if prev := s.activeLocked(flowID); prev != nil {
		return nil, apperr.Business(
			fmt.Sprintf("trigger flow %d", flowID),
			fmt.Errorf("%w: execution %s", ErrAlreadyRunning, prev.ExecutionID()),
		)
	}

	h, err := s.executor.Execute(s.baseCtx, flowID, &flow.Definition)
	if err != nil {
		return nil, err
	}
	s.running[flowID] = h

	s.logger.Info("flow triggered", "flow_id", flowID, "execution_id", h.ExecutionID())
	return h, nil
}

// activeLocked возвращает незавершённое выполнение flow или nil.
// Вызывается под s.mu.
func (s *Scheduler) activeLocked(flowID int64) *engine.Handle {
	h, ok := s.running[flowID]
	if !ok || h.Finished() {
		return nil
	}
	return h
}

// unschedule удаляет cron-запись и отменяет текущее выполнение.
// Возвращает false, если flow не был запланирован.
func (s *Scheduler) unschedule(flowID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if h, ok := s.running[flowID]; ok {
		h.Cancel()
		delete(s.running, flowID)
	}

	e, ok := s.entries[flowID]
	if !ok {
		return false
	}

	s.cron.Remove(e.entryID)
	delete(s.entries, flowID)
	telemetry.SchedulerActiveSchedules.Set(float64(len(s.entries)))
	return true
}

// StopSchedule снимает расписание flow, отменяет текущее выполнение
// и сохраняет enabled=false.
// Для неизвестного flow возвращает (nil, nil).
func (s *Scheduler) StopSchedule(ctx context.Context, flowID int64) (*domain.FlowRecord, error) {
	if s.unschedule(flowID) {
		s.logger.Info("flow unscheduled", "flow_id", flowID)
	}

	flow, err := s.store.GetFlow(ctx, flowID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, nil
		}
		return nil, apperr.Business(fmt.Sprintf("load flow %d", flowID), err)
	}

	if flow.Enabled {
		flow.Enabled = false
		if err := s.store.UpdateFlow(ctx, flow); err != nil {
			return nil, apperr.Business(fmt.Sprintf("disable flow %d", flowID), err)
		}
	}
	return flow, nil
}

// EnableSchedule включает расписание flow.
// Отсутствующий или удалённый flow пропускается: (nil, nil).
func (s *Scheduler) EnableSchedule(ctx context.Context, flowID int64) (*domain.FlowRecord, error) {
	flow, err := s.store.GetFlow(ctx, flowID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, nil
		}
		return nil, apperr.Business(fmt.Sprintf("load flow %d", flowID), err)
	}
	if flow.Deleted {
		return nil, nil
	}

	if !flow.Enabled {
		flow.Enabled = true
		if err := s.store.UpdateFlow(ctx, flow); err != nil {
			return nil, apperr.Business(fmt.Sprintf("enable flow %d", flowID), err)
		}
	}

	if err := s.Schedule(flow); err != nil {
		return nil, err
	}
	return flow, nil
}

// DeleteFlow снимает расписание и логически удаляет flow.
func (s *Scheduler) DeleteFlow(ctx context.Context, flowID int64) error {
	if _, err := s.StopSchedule(ctx, flowID); err != nil {
		return err
	}
	if err := s.store.SoftDeleteFlow(ctx, flowID); err != nil {
		return fmt.Errorf("delete flow %d: %w", flowID, err)
	}
	s.logger.Info("flow deleted", "flow_id", flowID)
	return nil
}

// IsScheduled возвращает true, если у flow есть активный cron-триггер.
func (s *Scheduler) IsScheduled(flowID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[flowID]
	return ok
}

// ActiveCount возвращает количество активных расписаний.
func (s *Scheduler) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// NextRun возвращает время следующего срабатывания flow.
// Время известно только после Start.
func (s *Scheduler) NextRun(flowID int64) (time.Time, bool) {
	s.mu.Lock()
	e, ok := s.entries[flowID]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}

	next := s.cron.Entry(e.entryID).Next
	return next, !next.IsZero()
}

// Running возвращает текущее выполнение flow, если оно ещё не завершено.
func (s *Scheduler) Running(flowID int64) (*engine.Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := s.activeLocked(flowID)
	return h, h != nil
}
