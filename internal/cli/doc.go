// Package cli реализует инструмент командной строки для front door.
//
// # Обзор
//
// CLI: клиентская утилита оператора. Работает через HTTP,
// не импортирует внутренние пакеты системы. Позволяет отправить
// job descriptor вручную и проверить живость очереди.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент front door. Собирает multipart-запрос загрузки,
// разбирает ответы ("processing", "hello", ErrorResponse).
//
//	client := cli.NewClient("http://localhost:8080")
//	res, err := client.Submit("config.json", successURL, failureURL)
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы и вертикальные записи (text/tabwriter): по умолчанию
//   - JSON (json.Encoder с отступами): с флагом --json
//
// Данные выводятся в stdout, сообщения оператору в stderr.
//
// ## Commands
//
//   - submit: загрузка descriptor'а
//   - ping:   публикация ping через /pipePing
//
// Фабричные функции (NewSubmitCmd, NewPingCmd) принимают clientFn
// и outputFn: замыкания для ленивого создания Client и Output
// после парсинга PersistentFlags.
package cli
