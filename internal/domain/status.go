package domain

// ExecStatus — статус выполнения flow или node.
//
// Жизненный цикл flow:
//
//	PENDING → RUNNING → SUCCESS
//	                  ↘ FAILED
//	(после завершения flow снова считается PENDING до следующего срабатывания cron)
//
// Жизненный цикл node:
//
//	RUNNING → SUCCESS
//	        ↘ FAILED
type ExecStatus string

const (
	// ExecStatusRunning — выполнение в процессе.
	ExecStatusRunning ExecStatus = "RUNNING"

	// ExecStatusSuccess — выполнение успешно завершено.
	ExecStatusSuccess ExecStatus = "SUCCESS"

	// ExecStatusFailed — выполнение завершилось с ошибкой.
	ExecStatusFailed ExecStatus = "FAILED"

	// ExecStatusPending — только для flow: ожидание следующего срабатывания.
	ExecStatusPending ExecStatus = "PENDING"
)

// IsTerminal возвращает true, если статус финальный.
func (s ExecStatus) IsTerminal() bool {
	switch s {
	case ExecStatusSuccess, ExecStatusFailed:
		return true
	default:
		return false
	}
}

// String возвращает строковое представление ExecStatus.
func (s ExecStatus) String() string {
	return string(s)
}

// ParseExecStatus парсит строку в ExecStatus.
// Неизвестное значение трактуется как PENDING.
func ParseExecStatus(s string) ExecStatus {
	switch s {
	case "RUNNING":
		return ExecStatusRunning
	case "SUCCESS":
		return ExecStatusSuccess
	case "FAILED":
		return ExecStatusFailed
	default:
		return ExecStatusPending
	}
}

// ParamSource — источник значения входного параметра node.
type ParamSource string

const (
	// ParamSourceManual — литерал, заданный при создании flow.
	ParamSourceManual ParamSource = "MANUAL"

	// ParamSourceNodeOutput — значение производится upstream node во время выполнения.
	ParamSourceNodeOutput ParamSource = "NODE_OUTPUT"
)

// Valid проверяет, что источник известен.
func (s ParamSource) Valid() bool {
	return s == ParamSourceManual || s == ParamSourceNodeOutput
}
