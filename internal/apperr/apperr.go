// Package apperr классифицирует ошибки, видимые пользователю.
//
// Два класса:
//   - Validation — некорректный ввод (форма DAG, пропущенные поля, невалидный cron).
//     Возвращается клиенту дословно и никогда не повторяется.
//   - Business — внутренний операционный сбой (расхождение числа записей,
//     отсутствие ожидаемой строки истории, ошибка внешней команды).
//     Возвращается клиенту в виде цепочки причин (см. Chain).
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind — класс ошибки.
type Kind string

const (
	// KindValidation — ошибка валидации ввода.
	KindValidation Kind = "ValidationError"

	// KindBusiness — внутренний операционный сбой.
	KindBusiness Kind = "BusinessError"
)

// maxChainDepth — максимальная глубина цепочки причин в Chain.
const maxChainDepth = 20

// Error — классифицированная ошибка с необязательной причиной.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

// Error реализует интерфейс error.
func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return e.Message + ": " + e.Cause.Error()
}

// Unwrap возвращает причину.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Validation создаёт ошибку валидации.
func Validation(message string, cause error) *Error {
	return &Error{Kind: KindValidation, Message: message, Cause: cause}
}

// Validationf создаёт ошибку валидации без причины с форматированием.
func Validationf(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// Business создаёт внутреннюю ошибку.
func Business(message string, cause error) *Error {
	return &Error{Kind: KindBusiness, Message: message, Cause: cause}
}

// Businessf создаёт внутреннюю ошибку без причины с форматированием.
func Businessf(format string, args ...any) *Error {
	return &Error{Kind: KindBusiness, Message: fmt.Sprintf(format, args...)}
}

// IsValidation проверяет, есть ли в цепочке ошибка валидации.
func IsValidation(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == KindValidation
	}
	return false
}

// IsBusiness проверяет, есть ли в цепочке внутренняя ошибка.
func IsBusiness(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == KindBusiness
	}
	return false
}

// Message возвращает сообщение верхнего уровня без причин.
// Для неклассифицированных ошибок возвращает err.Error().
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

// Chain строит цепочку "{kind}: {message} → ..." по причинам ошибки.
// В цепочке не больше maxChainDepth звеньев, стек вызовов не включается.
// У ошибки с несколькими причинами (fmt.Errorf с несколькими %w)
// цепочка продолжается по последней.
func Chain(err error) string {
	var sb strings.Builder
	for depth := 0; err != nil && depth < maxChainDepth; depth++ {
		if depth > 0 {
			sb.WriteString(" → ")
		}
		if e, ok := err.(*Error); ok {
			sb.WriteString(string(e.Kind) + ": " + e.Message)
		} else {
			sb.WriteString(fmt.Sprintf("%T: %s", err, ownMessage(err)))
		}
		err = cause(err)
	}
	return sb.String()
}

// cause возвращает следующую причину в цепочке.
func cause(err error) error {
	switch u := err.(type) {
	case interface{ Unwrap() error }:
		return u.Unwrap()
	case interface{ Unwrap() []error }:
		errs := u.Unwrap()
		for i := len(errs) - 1; i >= 0; i-- {
			if errs[i] != nil {
				return errs[i]
			}
		}
	}
	return nil
}

// ownMessage отрезает от сообщения текст обёрнутой причины,
// чтобы звенья цепочки не дублировали друг друга.
func ownMessage(err error) string {
	msg := err.Error()
	inner := cause(err)
	if inner == nil {
		return msg
	}
	if trimmed, ok := strings.CutSuffix(msg, ": "+inner.Error()); ok {
		return trimmed
	}
	return msg
}
