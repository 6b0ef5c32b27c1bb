package mq

import (
	amqp "github.com/rabbitmq/amqp091-go"
)

// Префикс всех объектов очереди в брокере.
const objectPrefix = "udu"

// TopicName возвращает имя exchange для логической очереди name.
func TopicName(name string) string {
	return objectPrefix + "." + name
}

// SubscriptionName возвращает имя общей подписки для очереди name.
//
// Все воркеры читают из одной и той же AMQP очереди, поэтому каждое
// сообщение получает ровно один из них (competing consumers).
func SubscriptionName(name string) string {
	return objectPrefix + "." + name + ".shared"
}

// EnsureTopic создаёт fanout exchange, если его ещё нет.
//
// Повторное объявление идентичного exchange в AMQP не является ошибкой,
// поэтому конкурирующие создатели получают успех. Несовместимое
// объявление приходит как 406 и классифицируется как ErrConfiguration.
func EnsureTopic(ch Channel, topic string) error {
	err := ch.ExchangeDeclare(
		topic,    // name
		"fanout", // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	return classify("declare topic "+topic, err)
}

// EnsureSubscription создаёт общую durable очередь и привязывает её к topic.
func EnsureSubscription(ch Channel, subscription, topic string) error {
	_, err := ch.QueueDeclare(
		subscription, // name
		true,         // durable
		false,        // delete when unused
		false,        // exclusive
		false,        // no-wait
		amqp.Table{}, // arguments
	)
	if err != nil {
		return classify("declare subscription "+subscription, err)
	}

	err = ch.QueueBind(
		subscription, // queue name
		"",           // routing key: fanout его игнорирует
		topic,        // exchange
		false,        // no-wait
		nil,          // arguments
	)
	return classify("bind "+subscription+" to "+topic, err)
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo(name, telemetryLog string) string {
	return `
  UDU RabbitMQ Topology:

    ` + TopicName(name) + ` (fanout)
    └── ` + SubscriptionName(name) + `
            Consumers: udu-worker (competing)

    ` + TopicName(telemetryLog) + ` (fanout)
            Telemetry log entries
  `
}
