package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/shaiso/Ingest/internal/domain"
)

// Queue: очередь, в которую публикуются ping'и.
type Queue interface {
	Enqueue(ctx context.Context, payload map[string]any) error
}

// Leader решает, должен ли этот процесс публиковать ping'и.
// Несколько реплик pinger'а не должны пинговать одновременно.
type Leader interface {
	IsLeader(ctx context.Context) (bool, error)
}

// Pinger публикует ping-задачи по расписанию.
type Pinger struct {
	queue    Queue
	leader   Leader
	schedule cron.Schedule
	count    int
	now      func() time.Time
	logger   *slog.Logger
}

// Config: конфигурация Pinger.
type Config struct {
	Queue    Queue
	Schedule string // cron-выражение или @every (default: @every 5m)
	Count    int    // ping'ов за тик (default: 1)
	Leader   Leader // опционально: без него pinger всегда лидер
	Now      func() time.Time
	Logger   *slog.Logger
}

// New создаёт Pinger. Невалидное расписание возвращает ошибку.
func New(cfg Config) (*Pinger, error) {
	expr := cfg.Schedule
	if expr == "" {
		expr = "@every 5m"
	}

	schedule, err := ParseSchedule(expr)
	if err != nil {
		return nil, err
	}

	count := cfg.Count
	if count <= 0 {
		count = 1
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Pinger{
		queue:    cfg.Queue,
		leader:   cfg.Leader,
		schedule: schedule,
		count:    count,
		now:      now,
		logger:   logger,
	}, nil
}

// Next возвращает время следующего тика после from.
func (p *Pinger) Next(from time.Time) time.Time {
	return p.schedule.Next(from)
}

// Tick публикует count ping'ов.
// Каждый ping несёт tick_id, чтобы связать его с записями воркера.
func (p *Pinger) Tick(ctx context.Context) error {
	tickID := uuid.New().String()

	for i := 0; i < p.count; i++ {
		payload := domain.PingPayload()
		payload["tick_id"] = tickID

		if err := p.queue.Enqueue(ctx, payload); err != nil {
			return fmt.Errorf("publish ping %d/%d: %w", i+1, p.count, err)
		}
	}

	p.logger.Debug("pings published", "tick_id", tickID, "count", p.count)
	return nil
}

// Run вызывает Tick по расписанию до отмены контекста.
// Тик пропускается, если процесс не лидер.
// Ошибка тика логируется, цикл продолжается.
func (p *Pinger) Run(ctx context.Context) error {
	for ctx.Err() == nil {
		next := p.Next(p.now())
		timer := time.NewTimer(time.Until(next))

		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		if !p.isLeader(ctx) {
			continue
		}

		if err := p.Tick(ctx); err != nil {
			p.logger.Warn("ping tick failed", "error", err)
		}
	}
	return nil
}

func (p *Pinger) isLeader(ctx context.Context) bool {
	if p.leader == nil {
		return true
	}

	ok, err := p.leader.IsLeader(ctx)
	if err != nil {
		p.logger.Warn("leader check failed", "error", err)
		return false
	}
	if !ok {
		p.logger.Debug("not a leader, skipping tick")
	}
	return ok
}
