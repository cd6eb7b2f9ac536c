package nodes

import "errors"

// Ошибки встроенных node.
var (
	// ErrInvalidInput — входное значение отсутствует или некорректно.
	ErrInvalidInput = errors.New("invalid node input")

	// ErrCancelled — выполнение node отменено.
	ErrCancelled = errors.New("node execution cancelled")
)
