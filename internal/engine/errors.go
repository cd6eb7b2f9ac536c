package engine

import (
	"errors"
	"fmt"
	"strings"
)

// Ошибки валидации FlowDefinition.
var (
	// ErrEmptyNodeID — узел не имеет ID.
	ErrEmptyNodeID = errors.New("node has empty ID")

	// ErrDuplicateNodeID — несколько узлов с одинаковым ID.
	ErrDuplicateNodeID = errors.New("duplicate node ID")

	// ErrNodeImplementNotFound — реализация node не зарегистрирована.
	ErrNodeImplementNotFound = errors.New("node implementation not found")

	// ErrUnknownSuccessor — узел ссылается на несуществующего преемника.
	ErrUnknownSuccessor = errors.New("successor node not found")

	// ErrCyclicDependency — обнаружен цикл в графе.
	ErrCyclicDependency = errors.New("cyclic dependency detected")

	// ErrInvalidParam — значение входного параметра не прошло проверку реестром полей.
	ErrInvalidParam = errors.New("invalid input param")
)

// Ошибки выполнения.
var (
	// ErrNodeFailed — node завершился с ошибкой.
	ErrNodeFailed = errors.New("node failed")

	// ErrCancelled — выполнение отменено до завершения всех node.
	ErrCancelled = errors.New("execution cancelled")
)

// ValidationError — ошибка валидации с контекстом.
type ValidationError struct {
	NodeID  string // ID узла, где произошла ошибка
	Message string // описание ошибки
	Err     error  // базовая ошибка
}

// Error реализует интерфейс error.
func (e *ValidationError) Error() string {
	if e.NodeID != "" {
		return "node " + e.NodeID + ": " + e.Message
	}
	return e.Message
}

// Unwrap возвращает базовую ошибку.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError создаёт новую ошибку валидации.
func NewValidationError(nodeID, message string, err error) *ValidationError {
	return &ValidationError{
		NodeID:  nodeID,
		Message: message,
		Err:     err,
	}
}

// CycleError — граф содержит цикл.
//
// Ordered всегда строго меньше Total: алгоритм Кана не может
// упорядочить узлы, входящие в цикл или достижимые только через него.
type CycleError struct {
	Ordered   int
	Total     int
	Remaining []string // ID неупорядоченных узлов в порядке объявления
}

// Error реализует интерфейс error.
func (e *CycleError) Error() string {
	return fmt.Sprintf("%s: ordered %d of %d nodes, unresolved: %s",
		ErrCyclicDependency, e.Ordered, e.Total, strings.Join(e.Remaining, ", "))
}

// Unwrap возвращает ErrCyclicDependency.
func (e *CycleError) Unwrap() error {
	return ErrCyclicDependency
}

// NodeError — отказ node во время выполнения.
type NodeError struct {
	NodeID   string
	NodeName string
	Message  string // текст ошибки, как он попал в события
}

// Error реализует интерфейс error.
func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s (%s): %s", e.NodeID, e.NodeName, e.Message)
}

// Unwrap возвращает ErrNodeFailed.
func (e *NodeError) Unwrap() error {
	return ErrNodeFailed
}
