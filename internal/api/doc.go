// Package api содержит HTTP front door сервиса загрузок.
//
// Структура:
//   - handler.go:        Handler с зависимостями (очередь, каталог загрузок, logger)
//   - routes.go:         регистрация маршрутов
//   - middleware.go:     recovery, logging, rate limit
//   - response.go:       JSON-ответы и ошибки
//   - upload_handler.go: приём job descriptor'а и публикация задач
//
// Front door только сохраняет descriptor и ставит задачу в очередь.
// Результат обработки вызывающая сторона узнаёт из callback.
package api
