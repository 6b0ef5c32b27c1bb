package telemetry

import (
	"context"
	"log/slog"
)

// TeeHandler пишет записи в локальный handler и дублирует их в Sink.
type TeeHandler struct {
	next   slog.Handler
	sink   *Sink
	level  slog.Leveler
	attrs  []slog.Attr
	prefix string
}

// NewTeeHandler создаёт handler, отправляющий в sink записи уровня level и выше.
func NewTeeHandler(next slog.Handler, sink *Sink, level slog.Leveler) *TeeHandler {
	return &TeeHandler{next: next, sink: sink, level: level}
}

// Enabled реализует slog.Handler.
func (h *TeeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level) || level >= h.level.Level()
}

// Handle реализует slog.Handler.
func (h *TeeHandler) Handle(ctx context.Context, r slog.Record) error {
	var err error
	if h.next.Enabled(ctx, r.Level) {
		err = h.next.Handle(ctx, r)
	}

	if r.Level < h.level.Level() {
		return err
	}

	attrs := make(map[string]any, len(h.attrs)+r.NumAttrs())
	for _, a := range h.attrs {
		attrs[a.Key] = a.Value.Resolve().Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		attrs[h.prefix+a.Key] = a.Value.Resolve().Any()
		return true
	})

	// Доставка в фоне: лог не должен ждать удалённый транспорт
	h.sink.Submit(Entry{
		Time:     r.Time,
		Severity: SeverityFor(r.Level),
		Text:     r.Message,
		Attrs:    stringify(attrs),
	})

	return err
}

// WithAttrs реализует slog.Handler.
func (h *TeeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.next = h.next.WithAttrs(attrs)
	clone.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	clone.attrs = append(clone.attrs, h.attrs...)
	for _, a := range attrs {
		clone.attrs = append(clone.attrs, slog.Attr{Key: h.prefix + a.Key, Value: a.Value})
	}
	return &clone
}

// WithGroup реализует slog.Handler.
func (h *TeeHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.next = h.next.WithGroup(name)
	clone.prefix = h.prefix + name + "."
	return &clone
}

// stringify заменяет ошибки их текстом, чтобы запись сериализовалась в JSON.
func stringify(attrs map[string]any) map[string]any {
	if len(attrs) == 0 {
		return nil
	}
	for k, v := range attrs {
		if err, ok := v.(error); ok {
			attrs[k] = err.Error()
		}
	}
	return attrs
}
