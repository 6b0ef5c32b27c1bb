package mq

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/shaiso/Ingest/internal/domain"
)

// Encode сериализует payload задачи в JSON объект.
// Допустимы только строки и числа.
func Encode(payload map[string]any) ([]byte, error) {
	for key, val := range payload {
		if !isScalar(val) {
			return nil, fmt.Errorf("%w: key %q has type %T", ErrUnsupportedValue, key, val)
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return body, nil
}

// Decode восстанавливает задачу из тела сообщения.
// Числа сохраняются как json.Number без потери точности.
func Decode(body []byte, messageID string) (domain.Task, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return domain.Task{}, &MalformedTaskError{MessageID: messageID, Reason: "not a JSON object", Err: err}
	}
	if payload == nil {
		return domain.Task{}, &MalformedTaskError{MessageID: messageID, Reason: "null payload"}
	}
	if dec.More() {
		return domain.Task{}, &MalformedTaskError{MessageID: messageID, Reason: "trailing data"}
	}

	for key, val := range payload {
		if !isScalar(val) {
			return domain.Task{}, &MalformedTaskError{
				MessageID: messageID,
				Reason:    fmt.Sprintf("key %q has type %T", key, val),
			}
		}
	}

	return domain.NewTask(messageID, payload), nil
}

// isScalar проверяет, что значение строка или число.
func isScalar(val any) bool {
	switch val.(type) {
	case string, json.Number,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return true
	default:
		return false
	}
}
