package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shaiso/Ingest/internal/domain"
	"github.com/shaiso/Ingest/internal/mq"
	"github.com/shaiso/Ingest/internal/retry"
	"github.com/shaiso/Ingest/internal/telemetry"
)

const (
	// UploadField: имя multipart-поля и единственное допустимое имя файла.
	UploadField = "config.json"

	// stampLayout: префикс имени сохранённого descriptor'а.
	stampLayout = "2006-01-02-15-04-05"

	maxUploadSize = 32 << 20

	// rejectedSuffix: метка descriptor'а, задача для которого не поставлена.
	rejectedSuffix = ".rejected"
)

// Submit принимает job descriptor и ставит задачу process в очередь.
// POST /jenkins/job/user-data-proc/buildWithParameters
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	successURL := queryParam(r, "success_url", "SUCCESS_POST_URL")
	failureURL := queryParam(r, "failure_url", "FAILURE_POST_URL")
	if successURL == "" || failureURL == "" {
		h.reject(w, "success_url and failure_url are required")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	file, header, err := r.FormFile(UploadField)
	if errors.Is(err, http.ErrMissingFile) {
		h.reject(w, "missing file part "+UploadField)
		return
	}
	if err != nil {
		h.reject(w, "invalid multipart request")
		return
	}
	defer file.Close()

	if strings.TrimSpace(header.Filename) == "" {
		h.reject(w, "empty filename")
		return
	}
	if header.Filename != UploadField {
		h.reject(w, "unexpected filename")
		return
	}

	name, err := h.save(file)
	if err != nil {
		telemetry.Submissions.WithLabelValues(strconv.Itoa(http.StatusInternalServerError)).Inc()
		InternalError(w, h.logger, err)
		return
	}

	ctx := r.Context()

	// Ping'и вокруг задачи прогревают подписку. Их потеря не мешает загрузке.
	h.pings(ctx, "preamble")
	if err := h.enqueue(ctx, domain.ProcessPayload(name, successURL, failureURL)); err != nil {
		h.discard(name)
		telemetry.Submissions.WithLabelValues(strconv.Itoa(http.StatusServiceUnavailable)).Inc()
		Unavailable(w, h.logger, err)
		return
	}
	h.pings(ctx, "postscript")

	h.logger.Info("upload accepted", "file", name)
	telemetry.Submissions.WithLabelValues(strconv.Itoa(http.StatusOK)).Inc()

	w.Header().Set("Location", h.responseLocation+name)
	JSON(w, http.StatusOK, "processing")
}

// PipePing публикует один ping.
// GET /pipePing
func (h *Handler) PipePing(w http.ResponseWriter, r *http.Request) {
	if err := h.enqueue(r.Context(), domain.PingPayload()); err != nil {
		Unavailable(w, h.logger, err)
		return
	}
	JSON(w, http.StatusOK, "hello")
}

func (h *Handler) reject(w http.ResponseWriter, message string) {
	telemetry.Submissions.WithLabelValues(strconv.Itoa(http.StatusBadRequest)).Inc()
	BadRequest(w, message)
}

// save пишет descriptor под первым свободным именем.
// O_EXCL не даёт двум запросам в одну секунду получить одно имя.
func (h *Handler) save(src io.Reader) (string, error) {
	stamp := h.now().Format(stampLayout)

	for n := 0; ; n++ {
		name := fmt.Sprintf("%s-%d_%s", stamp, n, UploadField)
		path := filepath.Join(h.uploadDir, name)

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("create descriptor: %w", err)
		}

		if _, err := io.Copy(f, src); err != nil {
			f.Close()
			os.Remove(path)
			return "", fmt.Errorf("write descriptor: %w", err)
		}
		if err := f.Close(); err != nil {
			os.Remove(path)
			return "", fmt.Errorf("close descriptor: %w", err)
		}
		return name, nil
	}
}

// discard убирает descriptor из-под воркеров: задачи для него нет,
// и никто его не заберёт. Файл остаётся с меткой .rejected для разбора.
func (h *Handler) discard(name string) {
	path := filepath.Join(h.uploadDir, name)
	if err := os.Rename(path, path+rejectedSuffix); err != nil {
		h.logger.Warn("rejected descriptor not renamed", "file", name, "error", err)
	}
}

func (h *Handler) pings(ctx context.Context, phase string) {
	for i := 0; i < h.pingCount; i++ {
		if err := h.enqueue(ctx, domain.PingPayload()); err != nil {
			h.logger.Warn("ping not published", "phase", phase, "error", err)
			return
		}
	}
}

// enqueue публикует payload, повторяя транзиентные ошибки шины.
func (h *Handler) enqueue(ctx context.Context, payload map[string]any) error {
	return retry.Do(ctx, h.budget, func(ctx context.Context) error {
		return h.queue.Enqueue(ctx, payload)
	},
		retry.If(mq.IsTransient),
		retry.WithSleep(h.sleep),
		retry.OnRetry(func(attempt int, delay time.Duration, err error) {
			h.logger.Warn("enqueue failed, reconnecting",
				"attempt", attempt,
				"delay", delay,
				"error", err,
			)
			if rerr := h.queue.Reconnect(); rerr != nil {
				h.logger.Warn("reconnect failed", "error", rerr)
			}
		}),
	)
}

// queryParam возвращает первый непустой параметр из списка имён.
func queryParam(r *http.Request, names ...string) string {
	q := r.URL.Query()
	for _, name := range names {
		if v := strings.TrimSpace(q.Get(name)); v != "" {
			return v
		}
	}
	return ""
}
