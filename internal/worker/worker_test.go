package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shaiso/Ingest/internal/callback"
	"github.com/shaiso/Ingest/internal/claim"
	"github.com/shaiso/Ingest/internal/domain"
	"github.com/shaiso/Ingest/internal/mq"
	"github.com/shaiso/Ingest/internal/retry"
)

const jobDescriptor = `{
	"GOOGLE_PROJECT": "isb-cgc",
	"USER_PROJECT": "17",
	"STUDY": "42",
	"BUCKET": "user-bucket",
	"BIGQUERY_DATASET": "user_data",
	"USER_METADATA_TABLES": {
		"METADATA_DATA": "meta_data",
		"METADATA_SAMPLES": "meta_samples",
		"FEATURE_DEFS": "feature_defs"
	},
	"FILES": [
		{"DATATYPE": "user_gen", "FILENAME": "user-bucket/clinical.tsv", "BIGQUERY_TABLE_NAME": "clinical",
		 "COLUMNS": [{"NAME": "age", "TYPE": "INTEGER", "INDEX": 1}]}
	]
}`

// --- fakes ---

// step: один ответ fakeQueue.
type step struct {
	tasks []domain.Task
	err   error
}

// fakeQueue отдаёт заранее заданные ответы, а когда они кончаются,
// отменяет контекст воркера.
type fakeQueue struct {
	mu         sync.Mutex
	steps      []step
	calls      int
	reconnects int
	cancel     context.CancelFunc
}

func (q *fakeQueue) Dequeue(ctx context.Context, max int) ([]domain.Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.calls++

	if max != 1 {
		return nil, fmt.Errorf("worker must dequeue one task at a time, got %d", max)
	}

	if len(q.steps) == 0 {
		q.cancel()
		return nil, ctx.Err()
	}
	s := q.steps[0]
	q.steps = q.steps[1:]
	return s.tasks, s.err
}

func (q *fakeQueue) Reconnect() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.reconnects++
	return nil
}

type fakeProcessor struct {
	calls int
	descs []*domain.JobDescriptor
	err   error
	panic any
}

func (p *fakeProcessor) Process(_ context.Context, desc *domain.JobDescriptor) error {
	p.calls++
	p.descs = append(p.descs, desc)
	if p.panic != nil {
		panic(p.panic)
	}
	return p.err
}

// callbackServer запоминает GET запросы к /ok и /fail.
type callbackServer struct {
	*httptest.Server
	mu   sync.Mutex
	hits []*url.URL
}

func newCallbackServer(t *testing.T) *callbackServer {
	t.Helper()
	cs := &callbackServer{}
	cs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cs.mu.Lock()
		cs.hits = append(cs.hits, r.URL)
		cs.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(cs.Close)
	return cs
}

func (cs *callbackServer) count(path string) int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	n := 0
	for _, u := range cs.hits {
		if u.Path == path {
			n++
		}
	}
	return n
}

func (cs *callbackServer) lastFailure() string {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	for i := len(cs.hits) - 1; i >= 0; i-- {
		if cs.hits[i].Path == "/fail" {
			return cs.hits[i].Query().Get("errmsg")
		}
	}
	return ""
}

// harness собирает воркер с настоящими FileGuard и callback.Reporter.
type harness struct {
	dir       string
	queue     *fakeQueue
	processor *fakeProcessor
	callbacks *callbackServer
	sleeps    []time.Duration
	worker    *Worker
	ctx       context.Context
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func noSleep(context.Context, time.Duration) error { return nil }

func newHarness(t *testing.T, steps ...step) *harness {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	h := &harness{
		dir:       t.TempDir(),
		queue:     &fakeQueue{steps: steps, cancel: cancel},
		processor: &fakeProcessor{},
		callbacks: newCallbackServer(t),
		ctx:       ctx,
	}

	budget := retry.New(5, time.Second, 10*time.Second)
	h.worker = New(Config{
		Queue:     h.queue,
		Guard:     claim.NewFileGuard(h.dir, ""),
		Processor: h.processor,
		Reporter:  callback.New(callback.Config{Logger: discardLogger(), Sleep: noSleep}),
		Budget:    &budget,
		Sleep: func(_ context.Context, d time.Duration) error {
			h.sleeps = append(h.sleeps, d)
			return nil
		},
		Logger: discardLogger(),
	})
	return h
}

func (h *harness) writeDescriptor(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(h.dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write descriptor: %v", err)
	}
	return path
}

func (h *harness) processTask(id, name string) domain.Task {
	return domain.NewTask(id, domain.ProcessPayload(name, h.callbacks.URL+"/ok", h.callbacks.URL+"/fail?job=42"))
}

func (h *harness) run(t *testing.T) error {
	t.Helper()
	return h.worker.Run(h.ctx)
}

func deliver(tasks ...domain.Task) step {
	return step{tasks: tasks}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// --- process ---

func TestWorker_Job42Redelivery(t *testing.T) {
	h := newHarness(t)
	descriptor := h.writeDescriptor(t, "job-42.json", jobDescriptor)

	task := h.processTask("m1", "job-42.json")
	h.queue.steps = []step{deliver(task), deliver(task)}

	if err := h.run(t); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if h.processor.calls != 1 {
		t.Errorf("processor must run exactly once, got %d", h.processor.calls)
	}
	if n := h.callbacks.count("/ok"); n != 1 {
		t.Errorf("expected exactly one success callback, got %d", n)
	}
	if n := h.callbacks.count("/fail"); n != 0 {
		t.Errorf("expected no failure callback, got %d", n)
	}

	if exists(descriptor) {
		t.Error("descriptor should be renamed away")
	}
	if !exists(descriptor + ".processed") {
		t.Error("claim marker should persist")
	}

	if got := h.processor.descs[0].Study; got != "42" {
		t.Errorf("processor should receive parsed descriptor, got study %q", got)
	}
}

func TestWorker_CrashAfterClaimIsNotRerun(t *testing.T) {
	h := newHarness(t)
	// Предыдущий воркер захватил job и упал до callback
	marker := h.writeDescriptor(t, "job-42.json.processed", jobDescriptor)
	h.queue.steps = []step{deliver(h.processTask("m1", "job-42.json"))}

	if err := h.run(t); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if h.processor.calls != 0 {
		t.Errorf("claimed job must not be re-executed, got %d calls", h.processor.calls)
	}
	if n := h.callbacks.count("/ok") + h.callbacks.count("/fail"); n != 0 {
		t.Errorf("expected no callbacks, got %d", n)
	}
	if !exists(marker) || exists(filepath.Join(h.dir, "job-42.json")) {
		t.Error("marker must persist and descriptor must stay absent")
	}
}

func TestWorker_DoubleSubmission(t *testing.T) {
	h := newHarness(t)
	h.writeDescriptor(t, "job-42.json", jobDescriptor)
	h.writeDescriptor(t, "job-42.json.processed", jobDescriptor)
	h.queue.steps = []step{deliver(h.processTask("m1", "job-42.json"))}

	if err := h.run(t); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if h.processor.calls != 0 {
		t.Errorf("double submission must not be processed, got %d calls", h.processor.calls)
	}
	if n := h.callbacks.count("/ok") + h.callbacks.count("/fail"); n != 0 {
		t.Errorf("expected no callbacks, got %d", n)
	}
}

func TestWorker_DomainErrorReportsMessage(t *testing.T) {
	h := newHarness(t)
	h.writeDescriptor(t, "job-42.json", jobDescriptor)
	h.processor.err = domain.NewValidationError("COLUMNS", "Upload stopped due to duplicated feature: age", nil)
	h.queue.steps = []step{deliver(h.processTask("m1", "job-42.json"))}

	if err := h.run(t); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if n := h.callbacks.count("/fail"); n != 1 {
		t.Fatalf("expected exactly one failure callback, got %d", n)
	}
	if n := h.callbacks.count("/ok"); n != 0 {
		t.Errorf("expected no success callback, got %d", n)
	}
	if got := h.callbacks.lastFailure(); got != "Upload stopped due to duplicated feature: age" {
		t.Errorf("unexpected errmsg %q", got)
	}
}

func TestWorker_UnexpectedErrorIsGeneric(t *testing.T) {
	h := newHarness(t)
	h.writeDescriptor(t, "job-42.json", jobDescriptor)
	h.processor.err = errors.New("pq: password authentication failed for user udu")
	h.queue.steps = []step{deliver(h.processTask("m1", "job-42.json"))}

	if err := h.run(t); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := h.callbacks.lastFailure(); got != domain.GenericFailureMessage {
		t.Errorf("internal detail must not leak, got errmsg %q", got)
	}
}

func TestWorker_PanicIsGeneric(t *testing.T) {
	h := newHarness(t)
	h.writeDescriptor(t, "job-42.json", jobDescriptor)
	h.writeDescriptor(t, "job-43.json", jobDescriptor)
	h.processor.panic = "index out of range"
	h.queue.steps = []step{
		deliver(h.processTask("m1", "job-42.json")),
		deliver(h.processTask("m2", "job-43.json")),
	}

	if err := h.run(t); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if h.processor.calls != 2 {
		t.Errorf("worker should survive the panic and keep going, got %d calls", h.processor.calls)
	}
	if n := h.callbacks.count("/fail"); n != 2 {
		t.Errorf("expected a failure callback per job, got %d", n)
	}
	if got := h.callbacks.lastFailure(); got != domain.GenericFailureMessage {
		t.Errorf("unexpected errmsg %q", got)
	}
}

func TestWorker_InvalidDescriptor(t *testing.T) {
	h := newHarness(t)
	h.writeDescriptor(t, "job-42.json", `{"GOOGLE_PROJECT": `)
	h.queue.steps = []step{deliver(h.processTask("m1", "job-42.json"))}

	if err := h.run(t); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if h.processor.calls != 0 {
		t.Errorf("processor must not run on invalid descriptor")
	}
	if got := h.callbacks.lastFailure(); got != "Upload configuration is not valid JSON" {
		t.Errorf("unexpected errmsg %q", got)
	}
}

func TestWorker_MissingDescriptorIsGeneric(t *testing.T) {
	h := newHarness(t)
	h.queue.steps = []step{deliver(h.processTask("m1", "job-42.json"))}

	if err := h.run(t); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if h.processor.calls != 0 {
		t.Errorf("processor must not run without descriptor")
	}
	if got := h.callbacks.lastFailure(); got != domain.GenericFailureMessage {
		t.Errorf("unexpected errmsg %q", got)
	}
}

// --- dispatch ---

func TestWorker_DiscardsAnomalies(t *testing.T) {
	h := newHarness(t)
	h.writeDescriptor(t, "job-42.json", jobDescriptor)

	h.queue.steps = []step{
		deliver(domain.NewTask("m1", domain.PingPayload())),
		deliver(domain.NewTask("m2", map[string]any{"method": "explode"})),
		deliver(domain.NewTask("m3", map[string]any{"file_name": "job-42.json"})),
		deliver(domain.NewTask("m4", map[string]any{"method": "process", "file_name": "job-42.json"})),
	}

	if err := h.run(t); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if h.processor.calls != 0 {
		t.Errorf("no task should reach the processor, got %d", h.processor.calls)
	}
	if n := h.callbacks.count("/ok") + h.callbacks.count("/fail"); n != 0 {
		t.Errorf("anomalies are never surfaced to the caller, got %d callbacks", n)
	}
	if !exists(filepath.Join(h.dir, "job-42.json")) {
		t.Error("incomplete task must not claim the descriptor")
	}
	if h.queue.calls != 5 {
		t.Errorf("worker should keep listening after anomalies, got %d dequeues", h.queue.calls)
	}
}

func TestWorker_CustomHandler(t *testing.T) {
	h := newHarness(t)
	var got []string
	h.worker.Register("audit", HandlerFunc(func(_ context.Context, task domain.Task) error {
		got = append(got, task.ID)
		return nil
	}))
	h.queue.steps = []step{deliver(domain.NewTask("m1", map[string]any{"method": "audit"}))}

	if err := h.run(t); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0] != "m1" {
		t.Errorf("custom handler should receive the task, got %v", got)
	}
}

func TestWorker_HandlerPanicDoesNotStopLoop(t *testing.T) {
	h := newHarness(t)
	h.worker.Register(domain.MethodPing, HandlerFunc(func(context.Context, domain.Task) error {
		panic("boom")
	}))
	h.queue.steps = []step{
		deliver(domain.NewTask("m1", domain.PingPayload())),
		deliver(domain.NewTask("m2", domain.PingPayload())),
	}

	if err := h.run(t); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.queue.calls != 3 {
		t.Errorf("expected 3 dequeues, got %d", h.queue.calls)
	}
}

// --- listening ---

func transientErr() error {
	return fmt.Errorf("consume: %w: connection reset", mq.ErrTransientBus)
}

func TestWorker_BackoffThenGiveUp(t *testing.T) {
	h := newHarness(t,
		step{err: transientErr()},
		step{err: transientErr()},
		step{err: transientErr()},
		step{err: transientErr()},
		step{err: transientErr()},
	)

	err := h.run(t)
	if !errors.Is(err, retry.ErrExhausted) {
		t.Fatalf("expected ErrExhausted, got %v", err)
	}
	if !mq.IsTransient(err) {
		t.Errorf("last bus error should be wrapped, got %v", err)
	}

	if h.queue.calls != 5 {
		t.Errorf("expected exactly 5 attempts, got %d", h.queue.calls)
	}
	if h.queue.reconnects != 5 {
		t.Errorf("expected a reconnect per transient error, got %d", h.queue.reconnects)
	}

	want := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second, 10 * time.Second}
	if len(h.sleeps) != len(want) {
		t.Fatalf("expected delays %v, got %v", want, h.sleeps)
	}
	for i := range want {
		if h.sleeps[i] != want[i] {
			t.Errorf("delay before attempt %d: expected %v, got %v", i+2, want[i], h.sleeps[i])
		}
	}

	if h.worker.State() != Stopped {
		t.Errorf("expected Stopped, got %s", h.worker.State())
	}
}

func TestWorker_RecoversAfterTransientErrors(t *testing.T) {
	h := newHarness(t)
	h.writeDescriptor(t, "job-42.json", jobDescriptor)
	h.queue.steps = []step{
		{err: transientErr()},
		{err: transientErr()},
		deliver(h.processTask("m1", "job-42.json")),
		{err: transientErr()},
	}

	if err := h.run(t); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.processor.calls != 1 {
		t.Errorf("expected job to run after recovery, got %d", h.processor.calls)
	}

	// Бюджет сбрасывается после успешного чтения
	want := []time.Duration{2 * time.Second, 4 * time.Second, 2 * time.Second}
	if len(h.sleeps) != len(want) {
		t.Fatalf("expected delays %v, got %v", want, h.sleeps)
	}
	for i := range want {
		if h.sleeps[i] != want[i] {
			t.Errorf("sleep %d: expected %v, got %v", i, want[i], h.sleeps[i])
		}
	}
}

func TestWorker_ConfigurationErrorIsFatal(t *testing.T) {
	h := newHarness(t, step{err: fmt.Errorf("consume: %w: NOT_FOUND", mq.ErrConfiguration)})

	err := h.run(t)
	if !errors.Is(err, mq.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
	if len(h.sleeps) != 0 || h.queue.reconnects != 0 {
		t.Errorf("configuration errors are not retried: sleeps=%v reconnects=%d", h.sleeps, h.queue.reconnects)
	}
}

func TestWorker_EmptyDequeueLoopsWithoutBackoff(t *testing.T) {
	h := newHarness(t, step{}, step{}, step{})

	if err := h.run(t); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.queue.calls != 4 {
		t.Errorf("expected 4 dequeues, got %d", h.queue.calls)
	}
	if len(h.sleeps) != 0 {
		t.Errorf("empty results must not back off, got %v", h.sleeps)
	}
}

func TestWorker_CancelledBeforeStart(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := h.worker.Run(ctx); err != nil {
		t.Fatalf("cancellation is a clean stop, got %v", err)
	}
	if h.queue.calls != 0 {
		t.Errorf("no dequeue after cancellation, got %d", h.queue.calls)
	}
	if h.worker.State() != Stopped {
		t.Errorf("expected Stopped, got %s", h.worker.State())
	}
}

// --- registry ---

func TestRegistry_UnknownMethod(t *testing.T) {
	r := NewRegistry()

	_, err := r.Get("unknown")
	if !errors.Is(err, ErrUnknownMethod) {
		t.Errorf("expected ErrUnknownMethod, got %v", err)
	}
}

func TestNew_DefaultHandlers(t *testing.T) {
	w := New(Config{})

	for _, method := range []string{domain.MethodPing, domain.MethodProcess} {
		if _, err := w.registry.Get(method); err != nil {
			t.Errorf("expected handler for %s, got %v", method, err)
		}
	}
	if w.budget != DefaultDequeueBudget {
		t.Errorf("expected default budget, got %+v", w.budget)
	}
	if w.State() != Listening {
		t.Errorf("new worker starts in Listening, got %s", w.State())
	}
}

func TestState_String(t *testing.T) {
	tests := map[State]string{
		Listening:   "listening",
		Dispatching: "dispatching",
		Stopped:     "stopped",
		State(7):    "unknown",
	}
	for s, want := range tests {
		if s.String() != want {
			t.Errorf("expected %s, got %s", want, s.String())
		}
	}
}
