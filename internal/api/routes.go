package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SubmitPath: путь приёма загрузок, который знает веб-приложение.
const SubmitPath = "/jenkins/job/user-data-proc/buildWithParameters"

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Middleware chain
	chain := Chain(
		Recovery(h.logger),
		Logging(h.logger),
		RateLimit(h.limiter),
	)

	mux.Handle("POST "+SubmitPath, chain(http.HandlerFunc(h.Submit)))
	mux.Handle("GET /pipePing", chain(http.HandlerFunc(h.PipePing)))

	// Служебные маршруты без rate limit
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.Handle("GET /metrics", promhttp.Handler())
}

// Healthz отвечает ok, пока front door может публиковать задачи.
// GET /healthz
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(err.Error()))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
