package nodes

import (
	"context"
	"fmt"
	"time"

	"github.com/shaiso/Flowstack/internal/fields"
	"github.com/shaiso/Flowstack/internal/node"
)

// NameDelay — имя node задержки.
const NameDelay = "delay"

// Delay — node задержки.
//
// Приостанавливает выполнение на DELAY_SECONDS (допускается дробное
// значение). Поддерживает graceful shutdown через отмену контекста.
type Delay struct{}

// NewDelay создаёт новый Delay.
func NewDelay() *Delay {
	return &Delay{}
}

// Meta возвращает метаданные node.
func (d *Delay) Meta() node.Meta {
	return node.Meta{
		Name:        NameDelay,
		Description: "pause the flow for the given number of seconds",
		Group:       "control",
		Inputs:      []string{fields.DelaySeconds},
		Outputs:     []string{fields.DelayedMs},
	}
}

// Execute выполняет задержку.
func (d *Delay) Execute(ctx context.Context, fc *node.Context) (*node.Result, error) {
	sec, err := fc.Number(fields.DelaySeconds)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidInput, NameDelay, err)
	}
	if sec < 0 {
		return node.Failed(fmt.Sprintf("%s must not be negative", fields.DelaySeconds)), nil
	}

	duration := time.Duration(sec * float64(time.Second))
	started := time.Now()

	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
	case <-timer.C:
		return node.Success(map[string]any{
			fields.DelayedMs: time.Since(started).Milliseconds(),
		}), nil
	}
}
