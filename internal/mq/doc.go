// Package mq реализует очередь задач поверх RabbitMQ.
//
// Структура:
//   - connection.go: соединение с брокером и явный reconnect
//   - topology.go:   объявление topic (fanout exchange) и общей подписки
//   - envelope.go:   кодирование payload задачи в JSON объект
//   - publisher.go:  Enqueue
//   - consumer.go:   Dequeue с подтверждением до возврата
//   - logclient.go:  клиент телеметрии, публикующий записи в отдельный exchange
//
// Объекты брокера:
//   - udu.<name>          fanout exchange (topic)
//   - udu.<name>.shared   общая очередь, из которой конкурентно читают воркеры
//
// Ошибки делятся на ErrTransientBus (лечится переподключением)
// и ErrConfiguration (повтор бесполезен).
package mq
