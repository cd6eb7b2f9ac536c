package channel

import (
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Flowstack/internal/domain"
)

// Kind — уровень события.
type Kind string

const (
	// KindFlow — событие уровня flow.
	KindFlow Kind = "FLOW"

	// KindNode — событие уровня node.
	KindNode Kind = "NODE"
)

// Event — событие жизненного цикла выполнения.
type Event struct {
	// Kind — FLOW или NODE.
	Kind Kind `json:"kind"`

	// FlowID — идентификатор определения flow.
	FlowID int64 `json:"flow_id"`

	// FlowName — имя flow.
	FlowName string `json:"flow_name"`

	// FlowExecutionID — UUID выполнения flow.
	FlowExecutionID uuid.UUID `json:"flow_execution_id"`

	// NodeExecutionID — UUID выполнения node (только для KindNode).
	NodeExecutionID uuid.UUID `json:"node_execution_id,omitempty"`

	// Node — описание узла DAG (только для KindNode).
	Node *domain.FlowNode `json:"node,omitempty"`

	// Status — статус, о котором сообщает событие.
	Status domain.ExecStatus `json:"status"`

	// Data — полный снимок данных FlowContext на момент события.
	Data map[string]any `json:"data,omitempty"`

	// Error — текст ошибки для FAILED.
	Error string `json:"error,omitempty"`

	// At — время события.
	At time.Time `json:"at"`
}

// IsNode возвращает true для события уровня node.
func (e Event) IsNode() bool {
	return e.Kind == KindNode
}

// String возвращает краткое описание для логов, например "NODE SUCCESS(A)".
func (e Event) String() string {
	if e.Kind == KindNode && e.Node != nil {
		return string(e.Kind) + " " + string(e.Status) + "(" + e.Node.NodeID + ")"
	}
	return string(e.Kind) + " " + string(e.Status)
}
