package mq

import (
	"context"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Enqueue публикует задачу в topic.
//
// После публикации сообщение может получить любой подписчик.
// Порядок между публикациями не гарантируется.
func (q *Queue) Enqueue(ctx context.Context, payload map[string]any) error {
	body, err := Encode(payload)
	if err != nil {
		return err
	}

	q.mu.Lock()
	topicReady := q.topicReady
	q.mu.Unlock()

	if !topicReady {
		if err := q.EnsureTopic(ctx); err != nil {
			return err
		}
	}

	ch, err := q.broker.Channel()
	if err != nil {
		return err
	}

	messageID := uuid.New().String()
	err = ch.PublishWithContext(
		ctx,
		q.topic, // exchange
		"",      // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent, // сообщение переживёт рестарт RabbitMQ
			MessageId:    messageID,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		return classify("publish to "+q.topic, err)
	}

	q.logger.Debug("published task",
		"topic", q.topic,
		"message_id", messageID,
		"method", payload["method"],
	)

	return nil
}
