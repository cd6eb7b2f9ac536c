package scheduler

import "errors"

// Ошибки планировщика.
var (
	// ErrAlreadyRunning — у flow уже есть незавершённое выполнение.
	ErrAlreadyRunning = errors.New("flow execution already running")

	// ErrInvalidCron — cron-выражение не разобрано.
	ErrInvalidCron = errors.New("invalid cron expression")
)
