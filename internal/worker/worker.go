package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/shaiso/Ingest/internal/claim"
	"github.com/shaiso/Ingest/internal/domain"
	"github.com/shaiso/Ingest/internal/mq"
	"github.com/shaiso/Ingest/internal/retry"
	"github.com/shaiso/Ingest/internal/telemetry"
)

// DefaultDequeueBudget: бюджет повторов чтения из очереди.
var DefaultDequeueBudget = retry.New(5, time.Second, 10*time.Second)

// State: состояние цикла воркера.
type State int32

const (
	Listening State = iota
	Dispatching
	Stopped
)

// String возвращает имя состояния.
func (s State) String() string {
	switch s {
	case Listening:
		return "listening"
	case Dispatching:
		return "dispatching"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Queue: источник задач.
//
// Реализация должна переживать цикл ошибка, Reconnect, повтор:
// после Reconnect тот же объект снова пригоден для Dequeue.
type Queue interface {
	Dequeue(ctx context.Context, max int) ([]domain.Task, error)
	Reconnect() error
}

// Processor выполняет job по разобранному descriptor'у.
type Processor interface {
	Process(ctx context.Context, desc *domain.JobDescriptor) error
}

// Reporter сообщает итог job вызывающей стороне.
type Reporter interface {
	Report(ctx context.Context, outcome domain.Outcome, successURL, failureURL string) error
}

// Worker: последовательный цикл обработки задач.
type Worker struct {
	queue     Queue
	guard     claim.Guard
	processor Processor
	reporter  Reporter
	registry  *Registry

	budget retry.Budget
	sleep  retry.SleepFunc
	logger *slog.Logger

	state atomic.Int32
}

// Config: конфигурация Worker.
type Config struct {
	Queue     Queue
	Guard     claim.Guard
	Processor Processor
	Reporter  Reporter

	// Budget: бюджет повторов Dequeue (default: DefaultDequeueBudget).
	Budget *retry.Budget

	// Sleep подменяет ожидание между попытками (для тестов).
	Sleep retry.SleepFunc

	Logger *slog.Logger
}

// New создаёт Worker с обработчиками ping и process.
func New(cfg Config) *Worker {
	budget := DefaultDequeueBudget
	if cfg.Budget != nil {
		budget = *cfg.Budget
	}

	sleep := cfg.Sleep
	if sleep == nil {
		sleep = retry.Sleep
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	w := &Worker{
		queue:     cfg.Queue,
		guard:     cfg.Guard,
		processor: cfg.Processor,
		reporter:  cfg.Reporter,
		registry:  NewRegistry(),
		budget:    budget,
		sleep:     sleep,
		logger:    logger,
	}
	w.registry.Register(domain.MethodPing, HandlerFunc(w.handlePing))
	w.registry.Register(domain.MethodProcess, HandlerFunc(w.handleProcess))
	return w
}

// Register добавляет или заменяет обработчик метода.
func (w *Worker) Register(method string, h Handler) {
	w.registry.Register(method, h)
}

// State возвращает текущее состояние цикла.
func (w *Worker) State() State {
	return State(w.state.Load())
}

func (w *Worker) setState(s State) {
	w.state.Store(int32(s))
}

// Run крутит цикл до отмены ctx или фатальной ошибки шины.
//
// Отмена ctx даёт nil и состояние Stopped. Исчерпанный бюджет
// или ErrConfiguration возвращаются как ошибка.
func (w *Worker) Run(ctx context.Context) error {
	defer w.setState(Stopped)

	w.logger.Info("worker started",
		"dequeue_attempts", w.budget.MaxAttempts,
		"dequeue_base_delay", w.budget.BaseDelay,
		"dequeue_max_delay", w.budget.MaxDelay,
	)

	for {
		if ctx.Err() != nil {
			w.logger.Info("worker stopped")
			return nil
		}

		w.setState(Listening)
		tasks, err := w.listen(ctx)
		if err != nil {
			if ctx.Err() != nil {
				w.logger.Info("worker stopped")
				return nil
			}
			w.logger.Error("worker giving up on queue", "error", err)
			return fmt.Errorf("dequeue: %w", err)
		}

		if len(tasks) == 0 {
			continue
		}

		// Задача доводится до конца даже при отмене ctx
		w.setState(Dispatching)
		dispatchCtx := context.WithoutCancel(ctx)
		for _, task := range tasks {
			w.dispatch(dispatchCtx, task)
		}
	}
}

// listen читает одну задачу, повторяя временные ошибки шины
// с переподключением.
func (w *Worker) listen(ctx context.Context) ([]domain.Task, error) {
	var tasks []domain.Task

	err := retry.Do(ctx, w.budget, func(ctx context.Context) error {
		var err error
		tasks, err = w.queue.Dequeue(ctx, 1)
		if err != nil && mq.IsTransient(err) {
			if rerr := w.queue.Reconnect(); rerr != nil {
				w.logger.Warn("reconnect failed", "error", rerr)
			}
		}
		return err
	},
		retry.If(mq.IsTransient),
		retry.WithSleep(w.sleep),
		retry.OnRetry(func(attempt int, delay time.Duration, err error) {
			telemetry.DequeueRetries.Inc()
			w.logger.Warn("transient bus error, retrying dequeue",
				"attempt", attempt,
				"delay", delay,
				"error", err,
			)
		}),
	)
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

// dispatch передаёт задачу обработчику её метода.
// Ошибки обработчика логируются и дальше не идут.
func (w *Worker) dispatch(ctx context.Context, task domain.Task) {
	method := task.Method()
	logger := telemetry.WithTaskID(w.logger, task.ID)

	h, err := w.registry.Get(method)
	if err != nil {
		telemetry.TasksDequeued.WithLabelValues("unknown").Inc()
		logger.Error("anomaly: discarding task", "error", err, "payload", task.Payload())
		return
	}
	telemetry.TasksDequeued.WithLabelValues(method).Inc()

	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic in task handler",
				"method", method,
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
	}()

	if err := h.Handle(ctx, task); err != nil {
		if errors.Is(err, ErrIncompleteTask) {
			logger.Error("anomaly: discarding task", "error", err)
			return
		}
		logger.Error("task handler failed", "method", method, "error", err)
	}
}
