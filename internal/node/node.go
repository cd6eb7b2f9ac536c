// Package node определяет контракт node — подключаемой единицы работы.
//
// Node объявляет статические метаданные (имя, описание, группу,
// ключи входных и выходных полей) и одну операцию Execute.
// Поиск реализации идёт по объявленному имени, а не по типу.
package node

import (
	"context"
	"errors"

	"github.com/shaiso/Flowstack/internal/domain"
)

// Ошибки node.
var (
	// ErrNodeNotFound — реализация с таким именем не зарегистрирована.
	ErrNodeNotFound = errors.New("node implementation not found")

	// ErrMissingValue — в контексте нет значения для поля.
	ErrMissingValue = errors.New("missing context value")

	// ErrWrongType — значение в контексте другого типа.
	ErrWrongType = errors.New("wrong context value type")
)

// Meta — статические метаданные реализации node.
type Meta struct {
	// Name — уникальное имя реализации (ключ для FlowNode.Name).
	Name string `json:"name"`

	// Description — описание.
	Description string `json:"description"`

	// Group — логическая группа.
	Group string `json:"group"`

	// Inputs — ключи полей, которые node читает из контекста.
	Inputs []string `json:"inputs"`

	// Outputs — ключи полей, которые node записывает в контекст.
	Outputs []string `json:"outputs"`
}

// Node — контракт реализации node.
type Node interface {
	// Meta возвращает метаданные.
	Meta() Meta

	// Execute выполняет node.
	//
	// Явный отказ возвращается через Result со статусом FAILED,
	// инфраструктурная ошибка — через error. Оба случая engine
	// превращает в FAILED для node и всего выполнения.
	//
	// ctx отменяется при остановке расписания; проверять его — на
	// усмотрение реализации. Внешние процессы, запущенные node,
	// engine не останавливает.
	Execute(ctx context.Context, fc *Context) (*Result, error)
}

// Result — результат выполнения node.
type Result struct {
	// Status — SUCCESS или FAILED.
	Status domain.ExecStatus

	// Outputs — выходные данные (ключ поля → значение).
	Outputs map[string]any

	// Error — текст ошибки для FAILED.
	Error string
}

// Success создаёт успешный результат.
func Success(outputs map[string]any) *Result {
	out := make(map[string]any, len(outputs))
	for k, v := range outputs {
		out[k] = v
	}
	return &Result{Status: domain.ExecStatusSuccess, Outputs: out}
}

// Failed создаёт результат с ошибкой.
func Failed(errText string) *Result {
	return &Result{
		Status:  domain.ExecStatusFailed,
		Outputs: make(map[string]any),
		Error:   errText,
	}
}

// IsSuccess возвращает true для SUCCESS.
func (r *Result) IsSuccess() bool {
	return r != nil && r.Status == domain.ExecStatusSuccess
}
