// Package scheduler публикует ping-задачи по расписанию.
//
// Без трафика подписка на стороне брокера «остывает», и первая
// настоящая задача ждёт дольше. Pinger держит её тёплой.
//
// Структура:
//   - cron.go:   разбор расписания (cron-выражение или @every)
//   - pinger.go: Pinger (Tick, Run)
//
// Использование:
//
//	pinger, err := scheduler.New(scheduler.Config{
//	    Queue:    queue,
//	    Schedule: "@every 5m",
//	    Count:    2,
//	    Leader:   repo.NewAdvisoryLock(pool, repo.PingerLockKey),
//	    Logger:   logger,
//	})
//	go pinger.Run(ctx)
//
// Leader Election:
//
// Pinger не выбирает лидера сам. Leader передаётся снаружи,
// в udu-pinger это pg_try_advisory_lock на выделенном соединении.
package scheduler
