// Package telemetry обеспечивает наблюдаемость системы.
//
// Включает:
//   - logging.go: structured logging через slog
//   - metrics.go: Prometheus метрики
//   - sink.go:    устойчивый к обрывам приёмник удалённых логов
//   - tee.go:     slog.Handler, дублирующий записи в Sink
//
// Sink никогда не пишет в логгер сам, поэтому его сбои не порождают
// новых записей для него же.
package telemetry
