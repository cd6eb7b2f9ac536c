// Package fields содержит реестр полей FlowContext.
//
// Реестр — единственный источник правды о том, что означает ключ поля
// и какой формы должно быть его значение. Он заполняется при старте
// процесса и после этого только читается.
//
// Значения проверяются в момент записи в FlowContext (см. Registry.Coerce),
// а не только при чтении.
package fields

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Ошибки реестра.
var (
	// ErrUnknownField — ключ не зарегистрирован.
	ErrUnknownField = errors.New("unknown field")

	// ErrTypeMismatch — значение не соответствует объявленному типу.
	ErrTypeMismatch = errors.New("field type mismatch")

	// ErrDuplicateField — повторная регистрация ключа.
	ErrDuplicateField = errors.New("duplicate field")

	// ErrSealed — реестр уже закрыт для записи.
	ErrSealed = errors.New("field registry is sealed")
)

// Definition — описание поля.
type Definition struct {
	// Key — ключ поля в FlowContext.
	Key string `json:"key"`

	// Kind — семантический тип значения.
	Kind Kind `json:"kind"`

	// ElemKind — тип элементов для KindList. Пустой — любые элементы.
	ElemKind Kind `json:"elem_kind,omitempty"`

	// Description — человекочитаемое описание.
	Description string `json:"description"`

	// Group — логическая группа (filesystem, http, ...).
	Group string `json:"group"`
}

// TypeName возвращает имя типа для сообщений об ошибках, например "list<string>".
func (d Definition) TypeName() string {
	if d.Kind == KindList && d.ElemKind != "" {
		return fmt.Sprintf("list<%s>", d.ElemKind)
	}
	return string(d.Kind)
}

// Registry — реестр полей.
//
// Запись допустима только до вызова Seal. Чтение потокобезопасно.
type Registry struct {
	mu     sync.RWMutex
	defs   map[string]Definition
	sealed bool
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]Definition)}
}

// Register добавляет определение поля.
func (r *Registry) Register(def Definition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return fmt.Errorf("%w: %s", ErrSealed, def.Key)
	}
	if def.Key == "" {
		return fmt.Errorf("%w: empty key", ErrUnknownField)
	}
	if !def.Kind.Valid() {
		return fmt.Errorf("%w: %s: unsupported kind %q", ErrTypeMismatch, def.Key, def.Kind)
	}
	if _, exists := r.defs[def.Key]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateField, def.Key)
	}
	r.defs[def.Key] = def
	return nil
}

// MustRegister регистрирует поле и паникует при ошибке.
// Используется только при инициализации процесса.
func (r *Registry) MustRegister(defs ...Definition) {
	for _, def := range defs {
		if err := r.Register(def); err != nil {
			panic(err)
		}
	}
}

// Seal закрывает реестр для записи.
func (r *Registry) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed = true
}

// Get возвращает определение поля.
func (r *Registry) Get(key string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[key]
	return def, ok
}

// Has проверяет, зарегистрировано ли поле.
func (r *Registry) Has(key string) bool {
	_, ok := r.Get(key)
	return ok
}

// All возвращает все определения, отсортированные по группе и ключу.
func (r *Registry) All() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Definition, 0, len(r.defs))
	for _, def := range r.defs {
		result = append(result, def)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Group != result[j].Group {
			return result[i].Group < result[j].Group
		}
		return result[i].Key < result[j].Key
	})
	return result
}

// Coerce проверяет значение по определению поля и приводит его
// к каноническому представлению (см. Kind.Coerce).
func (r *Registry) Coerce(key string, value any) (any, error) {
	def, ok := r.Get(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownField, key)
	}
	v, err := def.Kind.Coerce(value, def.ElemKind)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: expected %s: %v", ErrTypeMismatch, key, def.TypeName(), err)
	}
	return v, nil
}
