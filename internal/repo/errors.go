package repo

import "errors"

// Ошибки репозиториев.
var (
	// ErrInvalidTable: имя таблицы из descriptor'а пустое или некорректное.
	ErrInvalidTable = errors.New("invalid table name")
)
