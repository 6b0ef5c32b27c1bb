// Package retry реализует Retry Budget: ограниченный повтор
// с экспоненциальной задержкой для операций, которые могут упасть временно.
//
// Задержка перед попыткой k+1 (после k неудач) равна
// min(BaseDelay * 2^k, MaxDelay). После MaxAttempts неудач Do
// возвращает ErrExhausted вместе с последней ошибкой.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrExhausted: все попытки исчерпаны.
var ErrExhausted = errors.New("retry budget exhausted")

// Budget: неизменяемая политика повторов.
type Budget struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// New создаёт Budget. Нулевые и отрицательные значения заменяются на 1 попытку
// и нулевые задержки.
func New(maxAttempts int, baseDelay, maxDelay time.Duration) Budget {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if baseDelay < 0 {
		baseDelay = 0
	}
	if maxDelay < baseDelay {
		maxDelay = baseDelay
	}
	return Budget{MaxAttempts: maxAttempts, BaseDelay: baseDelay, MaxDelay: maxDelay}
}

// Delay возвращает задержку после failures неудачных попыток.
func (b Budget) Delay(failures int) time.Duration {
	if failures < 0 {
		failures = 0
	}

	delay := b.BaseDelay
	for i := 0; i < failures; i++ {
		next := delay * 2
		// next < delay: переполнение
		if next < delay || next >= b.MaxDelay {
			return b.MaxDelay
		}
		delay = next
	}

	if delay > b.MaxDelay {
		delay = b.MaxDelay
	}
	return delay
}

// Attempts возвращает число попыток с учётом минимума в одну.
func (b Budget) Attempts() int {
	if b.MaxAttempts < 1 {
		return 1
	}
	return b.MaxAttempts
}

// SleepFunc ждёт d или отмены контекста.
type SleepFunc func(ctx context.Context, d time.Duration) error

type options struct {
	retryIf func(error) bool
	onRetry func(attempt int, delay time.Duration, err error)
	sleep   SleepFunc
}

// Option настраивает Do.
type Option func(*options)

// If ограничивает повторы ошибками, для которых fn возвращает true.
// Остальные ошибки возвращаются сразу, без обёртки в ErrExhausted.
func If(fn func(error) bool) Option {
	return func(o *options) { o.retryIf = fn }
}

// OnRetry вызывается перед каждой задержкой.
// attempt: номер неудачной попытки, начиная с 1.
func OnRetry(fn func(attempt int, delay time.Duration, err error)) Option {
	return func(o *options) { o.onRetry = fn }
}

// WithSleep подменяет ожидание (для тестов).
func WithSleep(fn SleepFunc) Option {
	return func(o *options) { o.sleep = fn }
}

// Do вызывает fn, пока она не вернёт nil, не встретится неповторяемая ошибка
// или не закончится бюджет.
func Do(ctx context.Context, b Budget, fn func(ctx context.Context) error, opts ...Option) error {
	o := options{
		retryIf: func(error) bool { return true },
		sleep:   Sleep,
	}
	for _, opt := range opts {
		opt(&o)
	}

	attempts := b.Attempts()

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		if !o.retryIf(lastErr) {
			return lastErr
		}

		if attempt == attempts {
			break
		}

		delay := b.Delay(attempt)
		if o.onRetry != nil {
			o.onRetry(attempt, delay, lastErr)
		}

		if err := o.sleep(ctx, delay); err != nil {
			return err
		}
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempts, lastErr)
}

// Sleep ждёт d или отмены контекста.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
