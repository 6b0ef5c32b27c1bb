package domain

import "errors"

// ErrValidation: данные загрузки некорректны. Повтор даст ту же ошибку.
var ErrValidation = errors.New("upload validation failed")

// ValidationError: доменная ошибка с сообщением для пользователя.
//
// Message уходит в failure callback как есть, поэтому не должен
// содержать внутренних подробностей.
type ValidationError struct {
	Field   string // поле descriptor'а, если применимо
	Message string // сообщение для пользователя
	Err     error  // базовая ошибка
}

// Error реализует интерфейс error.
func (e *ValidationError) Error() string {
	return e.Message
}

// Unwrap возвращает базовую ошибку.
func (e *ValidationError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrValidation
}

// Is позволяет матчить любую ValidationError через errors.Is(err, ErrValidation).
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NewValidationError создаёт новую доменную ошибку.
func NewValidationError(field, message string, err error) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Err:     err,
	}
}
