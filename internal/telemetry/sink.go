package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shaiso/Ingest/internal/retry"
)

// Уровни в терминах удалённого лога.
const (
	SeverityDebug   = "DEBUG"
	SeverityInfo    = "INFO"
	SeverityWarning = "WARNING"
	SeverityError   = "ERROR"
)

// Entry: одна запись удалённого лога.
type Entry struct {
	Time     time.Time      `json:"time"`
	LogName  string         `json:"log_name"`
	Severity string         `json:"severity"`
	Text     string         `json:"text"`
	Attrs    map[string]any `json:"attrs,omitempty"`
}

// Client отправляет записи в удалённый лог.
type Client interface {
	Emit(ctx context.Context, entry Entry) error
	Close() error
}

// ClientFactory создаёт новый Client. Вызывается при старте и после
// каждой ошибки транспорта.
type ClientFactory func() (Client, error)

// Бюджет по умолчанию: 10 попыток с паузой 2s.
var defaultSinkBudget = retry.New(10, 2*time.Second, 2*time.Second)

// При остановке буфер дописывается одной попыткой на запись.
var flushBudget = retry.New(1, 0, 0)

const (
	defaultSinkBuffer = 256
	flushTimeout      = 5 * time.Second
)

// Sink: устойчивая обёртка над Client.
//
// При ошибке транспорта или истёкших credentials Sink пересоздаёт клиент
// и повторяет ту же запись в пределах бюджета. Если бюджет исчерпан,
// запись молча отбрасывается: телеметрия не должна ронять job,
// который она описывает. Sink сам ничего не логирует.
//
// Emit синхронный. Submit кладёт запись в буфер и сразу возвращается:
// буфер разбирает одна горутина, она же владеет повторами.
type Sink struct {
	logName   string
	factory   ClientFactory
	budget    retry.Budget
	retryable func(error) bool
	sleep     retry.SleepFunc

	mu     sync.Mutex
	client Client

	entries chan Entry
	ctx     context.Context
	stop    context.CancelFunc
	start   sync.Once
	done    chan struct{}
}

// SinkConfig: конфигурация Sink.
type SinkConfig struct {
	// LogName: имя удалённого лога.
	LogName string

	// Factory создаёт клиента.
	Factory ClientFactory

	// Budget: бюджет повторов (default: 10 попыток по 2s).
	Budget *retry.Budget

	// Retryable решает, лечится ли ошибка пересозданием клиента.
	// nil: повторяются все ошибки.
	Retryable func(error) bool

	// Sleep подменяет ожидание между попытками (для тестов).
	Sleep retry.SleepFunc

	// Buffer: ёмкость очереди Submit (default: 256).
	Buffer int
}

// NewSink создаёт Sink. Клиент создаётся лениво, при первой записи.
func NewSink(cfg SinkConfig) *Sink {
	budget := defaultSinkBudget
	if cfg.Budget != nil {
		budget = *cfg.Budget
	}

	retryable := cfg.Retryable
	if retryable == nil {
		retryable = func(error) bool { return true }
	}

	sleep := cfg.Sleep
	if sleep == nil {
		sleep = retry.Sleep
	}

	buffer := cfg.Buffer
	if buffer <= 0 {
		buffer = defaultSinkBuffer
	}

	ctx, stop := context.WithCancel(context.Background())

	return &Sink{
		logName:   cfg.LogName,
		factory:   cfg.Factory,
		budget:    budget,
		retryable: retryable,
		sleep:     sleep,
		entries:   make(chan Entry, buffer),
		ctx:       ctx,
		stop:      stop,
		done:      make(chan struct{}),
	}
}

// LogText отправляет текстовую запись с указанным уровнем.
func (s *Sink) LogText(ctx context.Context, severity, text string) bool {
	return s.Emit(ctx, Entry{Severity: severity, Text: text})
}

// Emit отправляет запись. Возвращает false, если запись отброшена.
func (s *Sink) Emit(ctx context.Context, entry Entry) bool {
	return s.emit(ctx, s.stamp(entry), s.budget)
}

// Submit ставит запись в очередь и не ждёт доставки.
// Возвращает false, если буфер полон или Sink закрыт: запись отброшена.
func (s *Sink) Submit(entry Entry) bool {
	if s.ctx.Err() != nil {
		TelemetryDropped.Inc()
		return false
	}
	s.start.Do(func() { go s.drain() })

	select {
	case s.entries <- s.stamp(entry):
		return true
	default:
		TelemetryDropped.Inc()
		return false
	}
}

// drain доставляет записи из буфера до Close.
func (s *Sink) drain() {
	defer close(s.done)
	for {
		select {
		case entry := <-s.entries:
			s.emit(s.ctx, entry, s.budget)
		case <-s.ctx.Done():
			s.flush()
			return
		}
	}
}

// flush дописывает остаток буфера за ограниченное время.
func (s *Sink) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	for {
		select {
		case entry := <-s.entries:
			if ctx.Err() != nil {
				TelemetryDropped.Inc()
				continue
			}
			s.emit(ctx, entry, flushBudget)
		default:
			return
		}
	}
}

func (s *Sink) stamp(entry Entry) Entry {
	if entry.Time.IsZero() {
		entry.Time = time.Now()
	}
	if entry.LogName == "" {
		entry.LogName = s.logName
	}
	return entry
}

func (s *Sink) emit(ctx context.Context, entry Entry, budget retry.Budget) bool {
	err := retry.Do(ctx, budget, func(ctx context.Context) error {
		client, err := s.current()
		if err != nil {
			return err
		}

		if err := client.Emit(ctx, entry); err != nil {
			if s.retryable(err) {
				s.discard(client)
			}
			return err
		}
		return nil
	}, retry.If(s.retryable), retry.WithSleep(s.sleep))

	if err != nil {
		TelemetryDropped.Inc()
		return false
	}
	return true
}

// current возвращает текущий клиент, создавая его при необходимости.
func (s *Sink) current() (Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		return s.client, nil
	}

	client, err := s.factory()
	if err != nil {
		return nil, err
	}
	s.client = client
	return client, nil
}

// discard закрывает клиент, если он всё ещё текущий.
func (s *Sink) discard(client Client) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client == client {
		_ = s.client.Close()
		s.client = nil
	}
}

// Close останавливает очередь Submit, дописывает буфер и закрывает клиент.
func (s *Sink) Close() error {
	s.stop()
	// drain не запускался: закрыть done за него
	s.start.Do(func() { close(s.done) })
	<-s.done

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	return err
}

// SeverityFor переводит уровень slog в уровень удалённого лога.
func SeverityFor(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return SeverityError
	case level >= slog.LevelWarn:
		return SeverityWarning
	case level >= slog.LevelInfo:
		return SeverityInfo
	default:
		return SeverityDebug
	}
}
