package mq

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Channel: подмножество *amqp.Channel, которым пользуется пакет.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	Qos(prefetchCount, prefetchSize int, global bool) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Broker выдаёт текущий канал и умеет пересоздавать соединение.
//
// Контракт: один Broker безопасно переиспользуется на протяжении всего
// цикла retry/reconnect. После Reconnect старые каналы недействительны,
// новые берутся через Channel().
type Broker interface {
	Channel() (Channel, error)
	Reconnect() error
}

// Connection: обёртка над AMQP соединением.
//
// Переподключение явное: его вызывает тот, кто получил ErrTransientBus
// (worker loop, front door, telemetry sink). Фоновой горутины нет,
// поэтому момент пересоздания клиента всегда виден вызывающему коду.
type Connection struct {
	url    string
	logger *slog.Logger

	mu      sync.RWMutex
	conn    *amqp.Connection
	channel *amqp.Channel

	closed bool
}

// NewConnection создаёт новое соединение с RabbitMQ.
func NewConnection(url string, logger *slog.Logger) (*Connection, error) {
	if logger == nil {
		logger = slog.Default()
	}

	c := &Connection{
		url:    url,
		logger: logger,
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.connectLocked(); err != nil {
		return nil, err
	}

	return c, nil
}

// connectLocked устанавливает соединение и открывает канал.
// Вызывается под c.mu.
func (c *Connection) connectLocked() error {
	conn, err := amqp.Dial(c.url)
	if err != nil {
		return classify("dial amqp", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return classify("open channel", err)
	}

	c.conn = conn
	c.channel = ch

	c.logger.Info("connected to RabbitMQ")

	return nil
}

// Channel возвращает текущий AMQP канал.
func (c *Connection) Channel() (Channel, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, fmt.Errorf("%w: connection closed", ErrTransientBus)
	}
	if c.channel == nil || c.channel.IsClosed() {
		return nil, fmt.Errorf("%w: no channel available", ErrTransientBus)
	}
	return c.channel, nil
}

// Reconnect закрывает текущее соединение и открывает новое.
func (c *Connection) Reconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("%w: connection closed", ErrTransientBus)
	}

	c.closeLocked()

	c.logger.Info("reconnecting to RabbitMQ")
	return c.connectLocked()
}

// closeLocked закрывает канал и соединение, игнорируя ошибки:
// старое соединение скорее всего уже мертво.
func (c *Connection) closeLocked() {
	if c.channel != nil {
		_ = c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

// Close закрывает соединение.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	var errs []error

	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close channel: %w", err))
		}
	}

	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close connection: %w", err))
		}
	}

	if len(errs) > 0 {
		return errs[0]
	}

	c.logger.Info("connection closed")
	return nil
}

// IsConnected проверяет, установлено ли соединение.
func (c *Connection) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.conn == nil {
		return false
	}

	return !c.conn.IsClosed()
}

// WithChannel выполняет функцию с текущим каналом.
func (c *Connection) WithChannel(fn func(ch Channel) error) error {
	ch, err := c.Channel()
	if err != nil {
		return err
	}
	return fn(ch)
}
