package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// ErrorCode: код ошибки API.
type ErrorCode string

const (
	ErrCodeBadRequest    ErrorCode = "BAD_REQUEST"
	ErrCodeRateLimited   ErrorCode = "RATE_LIMITED"
	ErrCodeUnavailable   ErrorCode = "UNAVAILABLE"
	ErrCodeInternalError ErrorCode = "INTERNAL_ERROR"
)

// ErrorResponse: структура ответа с ошибкой.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail: детали ошибки.
type ErrorDetail struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// JSON отправляет JSON ответ.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error отправляет ответ с ошибкой.
func Error(w http.ResponseWriter, status int, code ErrorCode, message string) {
	JSON(w, status, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// BadRequest отправляет ошибку 400.
func BadRequest(w http.ResponseWriter, message string) {
	Error(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// TooManyRequests отправляет ошибку 429.
func TooManyRequests(w http.ResponseWriter) {
	w.Header().Set("Retry-After", "1")
	Error(w, http.StatusTooManyRequests, ErrCodeRateLimited, "too many requests")
}

// Unavailable отправляет ошибку 503.
func Unavailable(w http.ResponseWriter, logger *slog.Logger, err error) {
	logger.Error("queue unavailable", "error", err)
	Error(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "queue unavailable, try again later")
}

// InternalError отправляет ошибку 500.
func InternalError(w http.ResponseWriter, logger *slog.Logger, err error) {
	logger.Error("internal error", "error", err)
	Error(w, http.StatusInternalServerError, ErrCodeInternalError, "internal server error")
}
