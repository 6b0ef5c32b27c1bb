package api

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/shaiso/Ingest/internal/retry"
)

// DefaultEnqueueBudget: бюджет повторов публикации задачи.
var DefaultEnqueueBudget = retry.New(3, 500*time.Millisecond, 2*time.Second)

// Queue: очередь, в которую front door публикует задачи.
type Queue interface {
	Enqueue(ctx context.Context, payload map[string]any) error
	Reconnect() error
}

// Handler: главный обработчик API с зависимостями.
type Handler struct {
	queue            Queue
	uploadDir        string
	responseLocation string
	pingCount        int

	budget  retry.Budget
	sleep   retry.SleepFunc
	limiter *rate.Limiter
	health  func() error
	now     func() time.Time
	logger  *slog.Logger
}

// Config: конфигурация для создания Handler.
type Config struct {
	Queue Queue

	// UploadDir: каталог, общий с воркерами.
	UploadDir string

	// ResponseLocation: префикс заголовка Location.
	ResponseLocation string

	// PingCount: сколько ping'ов публиковать до и после задачи.
	PingCount int

	// Budget: бюджет повторов публикации (default: DefaultEnqueueBudget).
	Budget *retry.Budget
	Sleep  retry.SleepFunc

	// RateLimit: запросов в секунду; 0 отключает ограничение.
	RateLimit float64
	RateBurst int

	// Health: проверка готовности для /healthz; nil означает всегда готов.
	Health func() error

	// Now подменяет часы (для тестов).
	Now func() time.Time

	Logger *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	budget := DefaultEnqueueBudget
	if cfg.Budget != nil {
		budget = *cfg.Budget
	}

	sleep := cfg.Sleep
	if sleep == nil {
		sleep = retry.Sleep
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return &Handler{
		queue:            cfg.Queue,
		uploadDir:        cfg.UploadDir,
		responseLocation: cfg.ResponseLocation,
		pingCount:        cfg.PingCount,
		budget:           budget,
		sleep:            sleep,
		limiter:          limiter,
		health:           cfg.Health,
		now:              now,
		logger:           logger,
	}
}
