package history

import "errors"

// Ошибки persister.
var (
	// ErrUnknownEvent — событие неизвестного вида или статуса.
	ErrUnknownEvent = errors.New("unknown event")

	// ErrAlreadyFinished — терминальное событие для уже завершённой записи.
	ErrAlreadyFinished = errors.New("execution already finished")
)
