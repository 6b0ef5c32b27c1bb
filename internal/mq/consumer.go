package mq

import (
	"context"
	"fmt"
	"strconv"
	"time"
	"unicode/utf8"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Ingest/internal/domain"
	"github.com/shaiso/Ingest/internal/telemetry"
)

// Dequeue забирает до max сообщений из общей подписки.
//
// Блокируется, пока не придёт хотя бы одно сообщение, не истечёт
// PullTimeout или не отменится ctx. Каждое возвращаемое сообщение
// подтверждается до возврата управления, так что повторная доставка
// после падения воркера не гарантирована.
//
// Возвращает nil, nil, если сообщений нет. Некорректные сообщения
// подтверждаются, логируются как аномалия и не возвращаются.
func (q *Queue) Dequeue(ctx context.Context, max int) ([]domain.Task, error) {
	if max < 1 {
		max = 1
	}

	deliveries, err := q.consumer(ctx, max)
	if err != nil {
		return nil, err
	}

	timer := time.NewTimer(q.pullTimeout)
	defer timer.Stop()

	var raw []amqp.Delivery

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, nil
	case d, ok := <-deliveries:
		if !ok {
			q.resetConsumer()
			return nil, fmt.Errorf("%w: deliveries channel closed", ErrTransientBus)
		}
		raw = append(raw, d)
	}

	// Дочитываем уже доставленное без ожидания
drain:
	for len(raw) < max {
		select {
		case d, ok := <-deliveries:
			if !ok {
				q.resetConsumer()
				break drain
			}
			raw = append(raw, d)
		default:
			break drain
		}
	}

	tasks := make([]domain.Task, 0, len(raw))
	for _, d := range raw {
		if err := d.Ack(false); err != nil {
			// Неподтверждённые сообщения брокер доставит повторно
			q.resetConsumer()
			if len(tasks) > 0 {
				q.logger.Warn("ack failed, returning already acknowledged tasks",
					"subscription", q.subscription,
					"error", err,
				)
				return tasks, nil
			}
			return nil, classify("ack", err)
		}

		task, err := Decode(d.Body, messageID(d))
		if err != nil {
			telemetry.MalformedMessages.Inc()
			q.logger.Error("anomaly: dropping malformed message",
				"subscription", q.subscription,
				"message_id", messageID(d),
				"error", err,
				"body", truncate(string(d.Body), 200),
			)
			continue
		}

		tasks = append(tasks, task)
	}

	if len(tasks) == 0 {
		return nil, nil
	}
	return tasks, nil
}

// consumer возвращает канал доставки, при необходимости открывая его.
func (q *Queue) consumer(ctx context.Context, prefetch int) (<-chan amqp.Delivery, error) {
	q.mu.Lock()
	if q.deliveries != nil && q.prefetch == prefetch {
		d := q.deliveries
		q.mu.Unlock()
		return d, nil
	}
	q.mu.Unlock()

	// Подписка создаётся лениво, при первом чтении
	if err := q.EnsureSubscription(ctx); err != nil {
		return nil, err
	}

	ch, err := q.broker.Channel()
	if err != nil {
		return nil, err
	}

	// Не больше prefetch неподтверждённых сообщений на этого consumer'а
	if err := ch.Qos(prefetch, 0, false); err != nil {
		return nil, classify("set qos", err)
	}

	deliveries, err := ch.Consume(
		q.subscription, // queue
		"",             // consumer tag (auto-generated)
		false,          // auto-ack (мы ack вручную)
		false,          // exclusive
		false,          // no-local
		false,          // no-wait
		nil,            // args
	)
	if err != nil {
		return nil, classify("consume", err)
	}

	q.mu.Lock()
	q.deliveries = deliveries
	q.prefetch = prefetch
	q.mu.Unlock()

	q.logger.Info("consumer started", "subscription", q.subscription, "prefetch", prefetch)

	return deliveries, nil
}

// messageID возвращает идентификатор сообщения, назначенный транспортом.
func messageID(d amqp.Delivery) string {
	if d.MessageId != "" {
		return d.MessageId
	}
	return "tag-" + strconv.FormatUint(d.DeliveryTag, 10)
}

// truncate обрезает строку до maxLen байт, не разрезая руну.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
