// UDU Pinger: держит подписку тёплой, публикуя ping'и по расписанию.
//
// Реплик может быть несколько: ping'и публикует только держатель
// advisory lock'а в PostgreSQL.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Ingest/internal/config"
	"github.com/shaiso/Ingest/internal/mq"
	"github.com/shaiso/Ingest/internal/repo"
	"github.com/shaiso/Ingest/internal/scheduler"
	"github.com/shaiso/Ingest/internal/telemetry"
)

func main() {
	logger := telemetry.SetupLogger(nil)

	cfg, err := config.Load(os.Getenv("UDU_CONFIG"))
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger.Info("starting udu-pinger", "schedule", cfg.PingSchedule, "count", cfg.PingCount)

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// DB pool: только для leader election
	pool, err := repo.NewPool(ctx, cfg.DBURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	lock := repo.NewAdvisoryLock(pool, repo.PingerLockKey)
	defer lock.Release(context.Background())

	conn, err := mq.NewConnection(cfg.AMQPURL, logger)
	if err != nil {
		logger.Error("failed to connect to RabbitMQ", "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	queue := mq.NewQueue(conn, mq.QueueConfig{Name: cfg.TopicName, Logger: logger})

	pinger, err := scheduler.New(scheduler.Config{
		Queue:    queue,
		Schedule: cfg.PingSchedule,
		Count:    max(cfg.PingCount, 1),
		Leader:   lock,
		Logger:   logger,
	})
	if err != nil {
		logger.Error("failed to create pinger", "error", err)
		os.Exit(1)
	}

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{Addr: ":" + cfg.PingerPort, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	pinger.Run(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	server.Shutdown(shutdownCtx)

	logger.Info("udu-pinger stopped")
}
