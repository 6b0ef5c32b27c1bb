package mq

import (
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Ошибки шины сообщений.
var (
	// ErrTransientBus: временная проблема транспорта (брокер недоступен,
	// соединение закрыто, истекли credentials). Лечится переподключением.
	ErrTransientBus = errors.New("transient bus error")

	// ErrConfiguration: структурная ошибка (нет exchange/queue,
	// несовместимое объявление). Повтор не поможет.
	ErrConfiguration = errors.New("bus configuration error")

	// ErrMalformedTask: тело сообщения не является задачей.
	ErrMalformedTask = errors.New("malformed task")

	// ErrUnsupportedValue: в payload значение, отличное от строки или числа.
	ErrUnsupportedValue = errors.New("unsupported payload value")
)

// MalformedTaskError: сообщение не удалось декодировать.
// Такие сообщения подтверждаются и не доставляются повторно.
type MalformedTaskError struct {
	MessageID string
	Reason    string
	Err       error
}

// Error реализует интерфейс error.
func (e *MalformedTaskError) Error() string {
	msg := "malformed task " + e.MessageID + ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap возвращает базовую ошибку.
func (e *MalformedTaskError) Unwrap() error {
	return e.Err
}

// Is матчит ErrMalformedTask.
func (e *MalformedTaskError) Is(target error) bool {
	return target == ErrMalformedTask
}

// IsTransient сообщает, стоит ли повторять операцию после переподключения.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransientBus)
}

// classify оборачивает ошибку AMQP в ErrTransientBus или ErrConfiguration.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrTransientBus) || errors.Is(err, ErrConfiguration) {
		return fmt.Errorf("%s: %w", op, err)
	}

	var amqpErr *amqp.Error
	if errors.As(err, &amqpErr) {
		switch amqpErr.Code {
		case amqp.NotFound, amqp.PreconditionFailed, amqp.NotAllowed, amqp.CommandInvalid, amqp.NotImplemented:
			return fmt.Errorf("%s: %w: %w", op, ErrConfiguration, err)
		}
	}

	return fmt.Errorf("%s: %w: %w", op, ErrTransientBus, err)
}
