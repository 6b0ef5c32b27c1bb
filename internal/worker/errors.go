package worker

import "errors"

// Ошибки воркера.
var (
	// ErrUnknownMethod: для метода задачи нет обработчика.
	ErrUnknownMethod = errors.New("unknown task method")

	// ErrIncompleteTask: в задаче process не хватает полей.
	ErrIncompleteTask = errors.New("incomplete process task")
)
