package domain

// OutcomeKind: результат обработки job.
type OutcomeKind string

const (
	// OutcomeSuccess: job обработан полностью.
	OutcomeSuccess OutcomeKind = "success"

	// OutcomeFailure: job завершился ошибкой.
	OutcomeFailure OutcomeKind = "failure"
)

// GenericFailureMessage уходит в failure callback при непредвиденной ошибке.
// Детали остаются только в логах сервера.
const GenericFailureMessage = "Internal error processing upload"

// Outcome: итог обработки одного job.
// Создаётся один раз на job и живёт только до отправки callback.
type Outcome struct {
	Kind    OutcomeKind
	Message string
}

// Succeeded возвращает успешный Outcome.
func Succeeded() Outcome {
	return Outcome{Kind: OutcomeSuccess}
}

// Failed возвращает Outcome с ошибкой и сообщением для пользователя.
func Failed(message string) Outcome {
	return Outcome{Kind: OutcomeFailure, Message: message}
}

// IsSuccess возвращает true для успешного Outcome.
func (o Outcome) IsSuccess() bool {
	return o.Kind == OutcomeSuccess
}
