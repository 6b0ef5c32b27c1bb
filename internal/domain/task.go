package domain

import (
	"encoding/json"
	"maps"
)

// Методы задач, которые понимает воркер.
const (
	// MethodPing: no-op проверка живости очереди.
	MethodPing = "ping"

	// MethodProcess: обработка загруженного job descriptor.
	MethodProcess = "process"
)

// Ключи payload задачи process.
const (
	KeyMethod     = "method"
	KeyFileName   = "file_name"
	KeySuccessURL = "success_url"
	KeyFailureURL = "failure_url"
)

// Task: задача, доставленная через шину сообщений.
//
// Payload неизменяем после публикации: конструктор копирует map,
// а наружу значения отдаются только через геттеры.
// Две задачи равны, если совпадает транспортный идентификатор.
type Task struct {
	// ID: идентификатор сообщения, назначенный транспортом.
	ID string

	payload map[string]any
}

// NewTask создаёт задачу с копией payload.
func NewTask(id string, payload map[string]any) Task {
	return Task{ID: id, payload: maps.Clone(payload)}
}

// PingPayload возвращает payload задачи ping.
func PingPayload() map[string]any {
	return map[string]any{KeyMethod: MethodPing}
}

// ProcessPayload возвращает payload задачи process.
func ProcessPayload(fileName, successURL, failureURL string) map[string]any {
	return map[string]any{
		KeyMethod:     MethodProcess,
		KeyFileName:   fileName,
		KeySuccessURL: successURL,
		KeyFailureURL: failureURL,
	}
}

// Payload возвращает копию payload.
func (t Task) Payload() map[string]any {
	return maps.Clone(t.payload)
}

// Method возвращает метод задачи или пустую строку.
func (t Task) Method() string {
	return t.String(KeyMethod)
}

// FileName возвращает имя job descriptor для задачи process.
func (t Task) FileName() string {
	return t.String(KeyFileName)
}

// SuccessURL возвращает callback для успешного завершения.
func (t Task) SuccessURL() string {
	return t.String(KeySuccessURL)
}

// FailureURL возвращает callback для неудачного завершения.
func (t Task) FailureURL() string {
	return t.String(KeyFailureURL)
}

// String возвращает строковое значение ключа.
// Числовые значения приводятся к их текстовому представлению.
func (t Task) String(key string) string {
	switch v := t.payload[key].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

// Equal сравнивает задачи по транспортному идентификатору.
func (t Task) Equal(other Task) bool {
	return t.ID == other.ID
}
