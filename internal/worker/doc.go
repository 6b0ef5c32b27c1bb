// Package worker выполняет задачи из очереди UDU.
//
// # Обзор
//
// Worker: единственный последовательный цикл процесса. Он забирает
// по одной задаче из общей подписки, обрабатывает её полностью
// (вплоть до отправки callback) и только потом читает следующую.
// Для пропускной способности запускают несколько процессов; они
// конкурируют за сообщения одной подписки и координируются только
// через claim guard.
//
// # Состояния
//
//   - Listening:   ждём задачу; ошибки шины повторяются по бюджету
//   - Dispatching: обрабатываем полученные задачи
//   - Stopped:     контекст отменён, цикл завершён
//
// Отмена проверяется только между задачами: задача в Dispatching
// доводится до конца.
//
// # Обработка process
//
//  1. Захват descriptor'а через claim.Guard
//  2. AlreadyClaimed или DoubleSubmission: лог, без callback
//  3. Чтение и разбор захваченного descriptor'а
//  4. Processor.Process
//  5. Ровно один callback: success или failure
//
// # Ошибки
//
//   - ErrTransientBus при чтении: Reconnect и backoff в пределах бюджета
//   - прочие ошибки шины или исчерпанный бюджет: Run возвращает ошибку,
//     процесс перезапускает supervisor
//   - *domain.ValidationError: failure callback с текстом ошибки
//   - всё остальное, включая panic: failure callback с общим текстом,
//     подробности только в логе
//
// Падение после захвата и до callback оставляет job захваченным.
// Повторно он не выполняется.
package worker
