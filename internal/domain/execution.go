package domain

import (
	"time"

	"github.com/google/uuid"
)

// FlowExecution — запись об одном выполнении flow.
//
// Создаётся persister'ом по событию FLOW RUNNING и обновляется
// по терминальному событию (SUCCESS/FAILED).
type FlowExecution struct {
	// ID — идентификатор записи в хранилище.
	ID int64 `json:"id"`

	// ExecutionUUID — UUID, сгенерированный engine для этого выполнения.
	ExecutionUUID uuid.UUID `json:"execution_uuid"`

	// FlowID — ссылка на FlowRecord. Для разового запуска — 0.
	FlowID int64 `json:"flow_id"`

	// Status — текущий статус выполнения.
	Status ExecStatus `json:"status"`

	// Context — снимок данных FlowContext на момент завершения.
	Context map[string]any `json:"context,omitempty"`

	// Error — текст ошибки, если выполнение завершилось с FAILED.
	Error string `json:"error,omitempty"`

	// StartedAt — время начала выполнения.
	StartedAt time.Time `json:"started_at"`

	// FinishedAt — время завершения. Nil, если ещё выполняется.
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Duration возвращает продолжительность выполнения.
// Для незавершённого выполнения считает до now.
func (e *FlowExecution) Duration(now time.Time) time.Duration {
	if e.FinishedAt == nil {
		return now.Sub(e.StartedAt)
	}
	return e.FinishedAt.Sub(e.StartedAt)
}

// IsFinished возвращает true, если выполнение завершено.
func (e *FlowExecution) IsFinished() bool {
	return e.Status.IsTerminal()
}

// MarkFinished переводит выполнение в терминальный статус.
func (e *FlowExecution) MarkFinished(status ExecStatus, snapshot map[string]any, errText string, at time.Time) {
	e.Status = status
	e.Context = snapshot
	e.Error = errText
	e.FinishedAt = &at
}

// NodeExecution — запись об одном выполнении node внутри FlowExecution.
type NodeExecution struct {
	// ID — идентификатор записи в хранилище.
	ID int64 `json:"id"`

	// ExecutionUUID — UUID выполнения node.
	ExecutionUUID uuid.UUID `json:"execution_uuid"`

	// FlowID — ссылка на FlowRecord.
	FlowID int64 `json:"flow_id"`

	// FlowExecutionID — ссылка на FlowExecution.ID.
	FlowExecutionID int64 `json:"flow_execution_id"`

	// NodeID — идентификатор узла в DAG.
	NodeID string `json:"node_id"`

	// NodeName — имя реализации node.
	NodeName string `json:"node_name"`

	// Status — статус выполнения node.
	Status ExecStatus `json:"status"`

	// Input — снимок входных данных, ограниченный объявленными inputs.
	Input map[string]any `json:"input,omitempty"`

	// Output — снимок выходных данных, ограниченный объявленными outputs.
	Output map[string]any `json:"output,omitempty"`

	// Log — текст ошибки или лог выполнения.
	Log string `json:"log,omitempty"`

	// StartedAt — время начала.
	StartedAt time.Time `json:"started_at"`

	// FinishedAt — время завершения. Nil, если ещё выполняется.
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// MarkFinished переводит выполнение node в терминальный статус.
func (e *NodeExecution) MarkFinished(status ExecStatus, output map[string]any, log string, at time.Time) {
	e.Status = status
	e.Output = output
	e.Log = log
	e.FinishedAt = &at
}
