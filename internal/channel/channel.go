// Package channel содержит ограниченную очередь событий выполнения.
//
// Channel развязывает engine и запись истории: engine отправляет
// события без ожидания хранилища, единственный потребитель (persister)
// забирает их блокирующим Take.
//
// Send — best-effort: при заполненной очереди делается несколько
// попыток с ограниченным ожиданием, после чего событие отбрасывается.
// Выполнение flow важнее полноты истории.
package channel

import (
	"context"
	"log/slog"
	"time"

	"github.com/shaiso/Flowstack/internal/telemetry"
)

// Значения по умолчанию.
const (
	DefaultCapacity    = 100
	DefaultSendRetries = 3
	DefaultSendWait    = 5 * time.Second
)

// Config — конфигурация канала.
type Config struct {
	// Capacity — ёмкость очереди.
	Capacity int

	// SendRetries — количество попыток отправки.
	SendRetries int

	// SendWait — ожидание места в очереди на одну попытку.
	SendWait time.Duration

	// Logger — логгер. Если nil, используется slog.Default().
	Logger *slog.Logger
}

// Channel — ограниченная очередь событий.
type Channel struct {
	events  chan Event
	retries int
	wait    time.Duration
	logger  *slog.Logger
}

// New создаёт канал. Нулевые значения заменяются значениями по умолчанию.
func New(cfg Config) *Channel {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.SendRetries <= 0 {
		cfg.SendRetries = DefaultSendRetries
	}
	if cfg.SendWait <= 0 {
		cfg.SendWait = DefaultSendWait
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Channel{
		events:  make(chan Event, cfg.Capacity),
		retries: cfg.SendRetries,
		wait:    cfg.SendWait,
		logger:  cfg.Logger,
	}
}

// Send ставит событие в очередь.
// Возвращает false, если событие отброшено после исчерпания попыток.
func (c *Channel) Send(ev Event) bool {
	for attempt := 1; attempt <= c.retries; attempt++ {
		timer := time.NewTimer(c.wait)
		select {
		case c.events <- ev:
			timer.Stop()
			telemetry.ChannelDepth.Set(float64(len(c.events)))
			return true
		case <-timer.C:
			c.logger.Debug("event channel full, retrying",
				"event", ev.String(),
				"attempt", attempt,
			)
		}
	}

	telemetry.ChannelDropped.Inc()
	c.logger.Warn("event dropped",
		"event", ev.String(),
		"flow_id", ev.FlowID,
		"execution_id", ev.FlowExecutionID.String(),
		"retries", c.retries,
	)
	return false
}

// Take забирает следующее событие. Блокируется до появления события
// или отмены ctx.
func (c *Channel) Take(ctx context.Context) (Event, error) {
	select {
	case ev := <-c.events:
		telemetry.ChannelDepth.Set(float64(len(c.events)))
		return ev, nil
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
}

// TryTake забирает событие без ожидания.
// Возвращает false, если очередь пуста.
func (c *Channel) TryTake() (Event, bool) {
	select {
	case ev := <-c.events:
		telemetry.ChannelDepth.Set(float64(len(c.events)))
		return ev, true
	default:
		return Event{}, false
	}
}

// Len возвращает количество событий в очереди.
func (c *Channel) Len() int {
	return len(c.events)
}

// Cap возвращает ёмкость очереди.
func (c *Channel) Cap() int {
	return cap(c.events)
}
