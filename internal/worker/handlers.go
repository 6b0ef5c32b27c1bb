package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"

	"github.com/shaiso/Ingest/internal/claim"
	"github.com/shaiso/Ingest/internal/domain"
	"github.com/shaiso/Ingest/internal/telemetry"
)

// Handler обрабатывает задачу одного метода.
type Handler interface {
	Handle(ctx context.Context, task domain.Task) error
}

// HandlerFunc позволяет использовать функцию как Handler.
type HandlerFunc func(ctx context.Context, task domain.Task) error

// Handle вызывает f.
func (f HandlerFunc) Handle(ctx context.Context, task domain.Task) error {
	return f(ctx, task)
}

// Registry: обработчики по методу задачи.
type Registry struct {
	handlers map[string]Handler
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register добавляет обработчик для метода.
func (r *Registry) Register(method string, h Handler) {
	r.handlers[method] = h
}

// Get возвращает обработчик для метода.
func (r *Registry) Get(method string) (Handler, error) {
	h, ok := r.handlers[method]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, method)
	}
	return h, nil
}

// handlePing подтверждает живость очереди.
func (w *Worker) handlePing(_ context.Context, task domain.Task) error {
	w.logger.Info("ping received", "task_id", task.ID)
	return nil
}

// handleProcess захватывает, обрабатывает job и отправляет callback.
func (w *Worker) handleProcess(ctx context.Context, task domain.Task) error {
	fileName := task.FileName()
	successURL := task.SuccessURL()
	failureURL := task.FailureURL()
	if fileName == "" || successURL == "" || failureURL == "" {
		return fmt.Errorf("%w: file_name=%q success_url=%q failure_url=%q",
			ErrIncompleteTask, fileName, successURL, failureURL)
	}

	logger := telemetry.WithJob(telemetry.WithTaskID(w.logger, task.ID), fileName)

	c, err := w.guard.Claim(ctx, fileName)
	if err != nil {
		telemetry.ClaimResults.WithLabelValues("error").Inc()
		logger.Error("failed to claim job", "error", err)
		w.report(ctx, domain.Failed(domain.GenericFailureMessage), successURL, failureURL)
		return nil
	}
	telemetry.ClaimResults.WithLabelValues(c.Result.String()).Inc()

	switch c.Result {
	case claim.AlreadyClaimed:
		logger.Warn("job already claimed, skipping duplicate delivery", "marker", c.Path)
		return nil
	case claim.DoubleSubmission:
		logger.Error("anomaly: job submitted twice, skipping", "marker", c.Path)
		return nil
	}

	logger.Info("job claimed", "path", c.Path)

	outcome := w.runJob(ctx, logger, c.Path)
	telemetry.JobsProcessed.WithLabelValues(string(outcome.Kind)).Inc()

	w.report(ctx, outcome, successURL, failureURL)
	return nil
}

// runJob читает захваченный descriptor и запускает Processor.
// Паника превращается в failure с общим сообщением.
func (w *Worker) runJob(ctx context.Context, logger *slog.Logger, path string) (outcome domain.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic while processing job",
				"panic", r,
				"stack", string(debug.Stack()),
			)
			outcome = domain.Failed(domain.GenericFailureMessage)
		}
	}()

	data, err := os.ReadFile(path)
	if err != nil {
		return w.outcomeFor(logger, fmt.Errorf("read descriptor: %w", err))
	}

	desc, err := domain.ParseDescriptor(data)
	if err != nil {
		return w.outcomeFor(logger, err)
	}

	ctx = telemetry.WithLogger(ctx, logger)
	return w.outcomeFor(logger, w.processor.Process(ctx, desc))
}

// outcomeFor переводит результат Processor в Outcome.
func (w *Worker) outcomeFor(logger *slog.Logger, err error) domain.Outcome {
	if err == nil {
		logger.Info("job processed")
		return domain.Succeeded()
	}

	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		logger.Warn("job rejected", "reason", verr.Message, "field", verr.Field)
		return domain.Failed(verr.Message)
	}

	logger.Error("job failed with unexpected error", "error", err)
	return domain.Failed(domain.GenericFailureMessage)
}

// report отправляет callback. Ошибки уже залогированы Reporter'ом.
func (w *Worker) report(ctx context.Context, outcome domain.Outcome, successURL, failureURL string) {
	_ = w.reporter.Report(ctx, outcome, successURL, failureURL)
}
