package mq

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const defaultPullTimeout = 30 * time.Second

// Queue: очередь задач поверх пары topic/subscription.
//
// Queue не потокобезопасна для конкурентного Dequeue: воркер читает
// последовательно. Enqueue можно вызывать из нескольких горутин.
type Queue struct {
	broker Broker
	logger *slog.Logger

	topic        string
	subscription string
	pullTimeout  time.Duration

	mu         sync.Mutex
	deliveries <-chan amqp.Delivery
	prefetch   int
	topicReady bool
}

// QueueConfig: конфигурация Queue.
type QueueConfig struct {
	// Name: логическое имя очереди; из него строятся имена topic и подписки.
	Name string

	// PullTimeout: сколько Dequeue ждёт первое сообщение (default: 30s).
	PullTimeout time.Duration

	Logger *slog.Logger
}

// NewQueue создаёт Queue. Сеть не трогает: объекты брокера
// объявляются в Setup или лениво при первом использовании.
func NewQueue(broker Broker, cfg QueueConfig) *Queue {
	pullTimeout := cfg.PullTimeout
	if pullTimeout <= 0 {
		pullTimeout = defaultPullTimeout
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Queue{
		broker:       broker,
		logger:       logger,
		topic:        TopicName(cfg.Name),
		subscription: SubscriptionName(cfg.Name),
		pullTimeout:  pullTimeout,
	}
}

// Topic возвращает имя exchange.
func (q *Queue) Topic() string {
	return q.topic
}

// Subscription возвращает имя общей подписки.
func (q *Queue) Subscription() string {
	return q.subscription
}

// Setup идемпотентно объявляет topic и общую подписку.
func (q *Queue) Setup(ctx context.Context) error {
	if err := q.EnsureTopic(ctx); err != nil {
		return err
	}
	return q.EnsureSubscription(ctx)
}

// EnsureTopic идемпотентно объявляет topic.
func (q *Queue) EnsureTopic(_ context.Context) error {
	ch, err := q.broker.Channel()
	if err != nil {
		return err
	}
	if err := EnsureTopic(ch, q.topic); err != nil {
		return err
	}

	q.mu.Lock()
	q.topicReady = true
	q.mu.Unlock()
	return nil
}

// EnsureSubscription идемпотентно объявляет общую подписку на topic.
func (q *Queue) EnsureSubscription(ctx context.Context) error {
	if err := q.EnsureTopic(ctx); err != nil {
		return err
	}

	ch, err := q.broker.Channel()
	if err != nil {
		return err
	}
	return EnsureSubscription(ch, q.subscription, q.topic)
}

// Reconnect пересоздаёт клиент брокера и сбрасывает consumer.
func (q *Queue) Reconnect() error {
	q.resetConsumer()

	q.mu.Lock()
	q.topicReady = false
	q.mu.Unlock()

	if err := q.broker.Reconnect(); err != nil {
		return fmt.Errorf("reconnect: %w", err)
	}
	return nil
}

// resetConsumer забывает текущий канал доставки.
func (q *Queue) resetConsumer() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.deliveries = nil
	q.prefetch = 0
}
