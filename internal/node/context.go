package node

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/shaiso/Flowstack/internal/fields"
)

// Context — хранилище данных одного выполнения flow (FlowContext).
//
// Создаётся заново на каждое выполнение. Каждое записанное значение
// проверяется по реестру полей и хранится в каноническом виде.
// Node читают свои входы из Context и возвращают выходы через Result;
// engine сливает их обратно через Merge.
type Context struct {
	mu   sync.RWMutex
	data map[string]any

	registry    *fields.Registry
	executionID uuid.UUID
	flowID      int64
	flowName    string
}

// NewContext создаёт пустой контекст с новым UUID выполнения.
func NewContext(registry *fields.Registry, flowID int64, flowName string) *Context {
	return &Context{
		data:        make(map[string]any),
		registry:    registry,
		executionID: uuid.New(),
		flowID:      flowID,
		flowName:    flowName,
	}
}

// ExecutionID возвращает UUID выполнения flow.
func (c *Context) ExecutionID() uuid.UUID { return c.executionID }

// FlowID возвращает идентификатор определения flow (0 для разового запуска).
func (c *Context) FlowID() int64 { return c.flowID }

// FlowName возвращает имя flow.
func (c *Context) FlowName() string { return c.flowName }

// Set записывает значение поля после проверки по реестру.
func (c *Context) Set(key string, value any) error {
	v, err := c.registry.Coerce(key, value)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.data[key] = v
	c.mu.Unlock()
	return nil
}

// Merge записывает все значения. Значения проверяются до записи:
// при ошибке контекст не меняется.
func (c *Context) Merge(values map[string]any) error {
	coerced := make(map[string]any, len(values))
	for key, value := range values {
		v, err := c.registry.Coerce(key, value)
		if err != nil {
			return err
		}
		coerced[key] = v
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for key, v := range coerced {
		c.data[key] = v
	}
	return nil
}

// Get возвращает значение поля. Списки и объекты возвращаются копией:
// изменения не попадают в контекст и в ранее снятые снимки.
func (c *Context) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.data[key]
	if !ok {
		return nil, false
	}
	return fields.Clone(v), true
}

// Has проверяет наличие значения.
func (c *Context) Has(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.data[key]
	return ok
}

// String возвращает строковое значение поля.
func (c *Context) String(key string) (string, error) {
	return typed[string](c, key)
}

// Number возвращает числовое значение поля.
func (c *Context) Number(key string) (float64, error) {
	return typed[float64](c, key)
}

// Bool возвращает булево значение поля.
func (c *Context) Bool(key string) (bool, error) {
	return typed[bool](c, key)
}

// List возвращает значение-список.
func (c *Context) List(key string) ([]any, error) {
	return typed[[]any](c, key)
}

// Object возвращает значение-объект.
func (c *Context) Object(key string) (map[string]any, error) {
	return typed[map[string]any](c, key)
}

// StringOr возвращает строковое значение или def, если поле не задано.
func (c *Context) StringOr(key, def string) string {
	if !c.Has(key) {
		return def
	}
	s, err := c.String(key)
	if err != nil {
		return def
	}
	return s
}

// Snapshot возвращает глубокую копию данных. Снимок не меняется при
// последующих записях в контекст, и наоборот.
func (c *Context) Snapshot() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]any, len(c.data))
	for k, v := range c.data {
		out[k] = fields.Clone(v)
	}
	return out
}

// Restrict возвращает копию данных только для перечисленных ключей.
// Отсутствующие ключи пропускаются.
func (c *Context) Restrict(keys []string) map[string]any {
	return RestrictTo(c.Snapshot(), keys)
}

// RestrictTo оставляет в снимке только перечисленные ключи.
func RestrictTo(snapshot map[string]any, keys []string) map[string]any {
	out := make(map[string]any, len(keys))
	for _, k := range keys {
		if v, ok := snapshot[k]; ok {
			out[k] = v
		}
	}
	return out
}

func typed[T any](c *Context, key string) (T, error) {
	var zero T
	v, ok := c.Get(key)
	if !ok {
		return zero, fmt.Errorf("%w: %s", ErrMissingValue, key)
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s: got %T", ErrWrongType, key, v)
	}
	return t, nil
}
