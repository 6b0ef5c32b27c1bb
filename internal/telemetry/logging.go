package telemetry

import (
	"context"
	"log/slog"
	"os"
)

// LogLevel определяет уровень логирования из переменной окружения.
// Возможные значения: DEBUG, INFO, WARN, ERROR
// По умолчанию: INFO
func LogLevel() slog.Level {
	level := os.Getenv("LOG_LEVEL")
	switch level {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewHandler создаёт локальный handler (stdout).
//
// Формат вывода определяется переменной LOG_FORMAT:
//   - "json" (по умолчанию): JSON формат для production
//   - "text": человекочитаемый формат для разработки
func NewHandler() slog.Handler {
	opts := &slog.HandlerOptions{
		Level:     LogLevel(),
		AddSource: LogLevel() == slog.LevelDebug,
	}

	if os.Getenv("LOG_FORMAT") == "text" {
		return slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.NewJSONHandler(os.Stdout, opts)
}

// SetupLogger инициализирует глобальный логгер.
//
// Если sink не nil, записи уровня INFO и выше дополнительно уходят
// в удалённый лог через sink. Сбой sink'а никогда не ломает логирование.
func SetupLogger(sink *Sink) *slog.Logger {
	var handler slog.Handler = NewHandler()
	if sink != nil {
		handler = NewTeeHandler(handler, sink, slog.LevelInfo)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)

	return logger
}

// Ключи контекста для передачи данных в логгер.
type ctxKey string

const (
	// CtxLogger: ключ для логгера в контексте.
	CtxLogger ctxKey = "logger"
)

// WithLogger добавляет логгер в контекст.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, CtxLogger, logger)
}

// FromContext извлекает логгер из контекста.
// Если логгер не найден, возвращает глобальный.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(CtxLogger).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// WithTaskID возвращает логгер с добавленным task_id.
func WithTaskID(logger *slog.Logger, taskID string) *slog.Logger {
	return logger.With("task_id", taskID)
}

// WithJob возвращает логгер с добавленным именем job descriptor'а.
func WithJob(logger *slog.Logger, fileName string) *slog.Logger {
	return logger.With("job", fileName)
}
