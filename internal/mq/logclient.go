package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Ingest/internal/telemetry"
)

// LogClient публикует записи удалённого лога в fanout exchange.
// Реализует telemetry.Client.
type LogClient struct {
	conn     *Connection
	exchange string

	once    sync.Once
	declErr error
}

// NewLogClient создаёт клиента для лога logName поверх conn.
// Клиент владеет соединением и закрывает его в Close.
func NewLogClient(conn *Connection, logName string) *LogClient {
	return &LogClient{
		conn:     conn,
		exchange: TopicName(logName),
	}
}

// Emit публикует запись.
func (c *LogClient) Emit(ctx context.Context, entry telemetry.Entry) error {
	body, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal log entry: %w", err)
	}

	return c.conn.WithChannel(func(ch Channel) error {
		c.once.Do(func() {
			c.declErr = EnsureTopic(ch, c.exchange)
		})
		if c.declErr != nil {
			return c.declErr
		}

		err := ch.PublishWithContext(
			ctx,
			c.exchange,
			entry.Severity, // routing key: для fanout не важен, но виден в management UI
			false,
			false,
			amqp.Publishing{
				ContentType: "application/json",
				Timestamp:   entry.Time,
				Body:        body,
			},
		)
		return classify("publish log entry", err)
	})
}

// Close закрывает соединение клиента.
func (c *LogClient) Close() error {
	return c.conn.Close()
}
