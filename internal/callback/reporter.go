// Package callback сообщает вызывающей стороне итог обработки job.
package callback

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shaiso/Ingest/internal/domain"
	"github.com/shaiso/Ingest/internal/retry"
	"github.com/shaiso/Ingest/internal/telemetry"
)

const defaultTimeout = 30 * time.Second

// DefaultBudget: бюджет повторов при ошибках транспорта.
var DefaultBudget = retry.New(3, time.Second, 5*time.Second)

var (
	// ErrRejected: endpoint ответил кодом >= 400. Не повторяется.
	ErrRejected = errors.New("callback rejected")

	// ErrTransport: запрос не дошёл до endpoint'а.
	ErrTransport = errors.New("callback transport error")
)

// Reporter отправляет GET на success или failure URL.
type Reporter struct {
	client *http.Client
	budget retry.Budget
	logger *slog.Logger
	sleep  retry.SleepFunc
}

// Config: конфигурация Reporter.
type Config struct {
	// Client: HTTP клиент (default: новый клиент с Timeout).
	Client *http.Client

	// Timeout: таймаут одного запроса (default: 30s).
	Timeout time.Duration

	// Budget: бюджет повторов (default: DefaultBudget).
	Budget *retry.Budget

	Logger *slog.Logger

	// Sleep подменяет ожидание между попытками (для тестов).
	Sleep retry.SleepFunc
}

// New создаёт Reporter.
func New(cfg Config) *Reporter {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	budget := DefaultBudget
	if cfg.Budget != nil {
		budget = *cfg.Budget
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	sleep := cfg.Sleep
	if sleep == nil {
		sleep = retry.Sleep
	}

	return &Reporter{
		client: client,
		budget: budget,
		logger: logger,
		sleep:  sleep,
	}
}

// FailureURL добавляет к base параметр errmsg с экранированным сообщением.
func FailureURL(base, message string) string {
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + "errmsg=" + url.QueryEscape(message)
}

// Report отправляет ровно один callback для outcome.
//
// Ошибки транспорта повторяются в пределах бюджета, после чего
// callback отбрасывается с предупреждением. Ответ >= 400 считается
// отказом endpoint'а и не повторяется. Возвращённая ошибка уже
// залогирована и нужна только для информации.
func (r *Reporter) Report(ctx context.Context, outcome domain.Outcome, successURL, failureURL string) error {
	kind := string(outcome.Kind)
	target := successURL
	if !outcome.IsSuccess() {
		target = FailureURL(failureURL, outcome.Message)
	}

	logger := r.logger.With("callback", kind, "url", target)

	var status int
	err := retry.Do(ctx, r.budget, func(ctx context.Context) error {
		var err error
		status, err = r.get(ctx, target)
		return err
	},
		retry.If(func(err error) bool { return errors.Is(err, ErrTransport) }),
		retry.WithSleep(r.sleep),
		retry.OnRetry(func(attempt int, delay time.Duration, err error) {
			logger.Info("callback attempt failed, retrying",
				"attempt", attempt,
				"delay", delay,
				"error", err,
			)
		}),
	)

	switch {
	case err == nil:
		telemetry.Callbacks.WithLabelValues(kind, "delivered").Inc()
		logger.Info("callback delivered", "status", status)
	case errors.Is(err, ErrRejected):
		telemetry.Callbacks.WithLabelValues(kind, "rejected").Inc()
		logger.Error("callback failure", "status", status, "error", err)
	default:
		telemetry.Callbacks.WithLabelValues(kind, "dropped").Inc()
		logger.Warn("callback dropped", "error", err)
	}

	return err
}

// get выполняет один GET и возвращает код ответа.
func (r *Reporter) get(ctx context.Context, target string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		// Некорректный URL не исправится повтором
		return 0, fmt.Errorf("%w: create request: %v", ErrRejected, err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	// Дочитываем тело, чтобы соединение вернулось в пул
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode >= 400 {
		return resp.StatusCode, fmt.Errorf("%w: HTTP %d", ErrRejected, resp.StatusCode)
	}
	return resp.StatusCode, nil
}
