// UDU Worker: обрабатывает загрузки пользовательских данных.
//
// Worker:
//   - Получает задачи из RabbitMQ (общая подписка, competing consumers)
//   - Захватывает descriptor через claim guard (file или redis)
//   - Загружает метаданные в PostgreSQL
//   - Сообщает итог через callback
//
// Workers масштабируются горизонтально.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/shaiso/Ingest/internal/callback"
	"github.com/shaiso/Ingest/internal/claim"
	"github.com/shaiso/Ingest/internal/config"
	"github.com/shaiso/Ingest/internal/etl"
	"github.com/shaiso/Ingest/internal/mq"
	"github.com/shaiso/Ingest/internal/repo"
	"github.com/shaiso/Ingest/internal/telemetry"
	"github.com/shaiso/Ingest/internal/worker"
)

func main() {
	// Локальный логгер: им пишет транспорт телеметрии, чтобы не логировать сам в себя
	local := slog.New(telemetry.NewHandler())

	cfg, err := config.Load(os.Getenv("UDU_CONFIG"))
	if err != nil {
		local.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Удалённый лог через отдельное соединение с брокером
	sink := telemetry.NewSink(telemetry.SinkConfig{
		LogName: cfg.TelemetryLog,
		Factory: func() (telemetry.Client, error) {
			conn, err := mq.NewConnection(cfg.AMQPURL, local)
			if err != nil {
				return nil, err
			}
			return mq.NewLogClient(conn, cfg.TelemetryLog), nil
		},
	})
	defer sink.Close()

	logger := telemetry.SetupLogger(sink)
	logger.Info("starting udu-worker", "project", cfg.ProjectID, "topic", cfg.TopicName)

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// RabbitMQ
	conn, err := mq.NewConnection(cfg.AMQPURL, logger)
	if err != nil {
		logger.Error("failed to connect to RabbitMQ", "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	queue := mq.NewQueue(conn, mq.QueueConfig{
		Name:        cfg.TopicName,
		PullTimeout: cfg.PullTimeout,
		Logger:      logger,
	})
	if err := queue.Setup(ctx); err != nil {
		logger.Error("failed to setup topology", "error", err)
		os.Exit(1)
	}
	logger.Debug(mq.TopologyInfo(cfg.TopicName, cfg.TelemetryLog))

	// Claim guard
	var guard claim.Guard
	switch cfg.ClaimBackend {
	case config.ClaimBackendRedis:
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Error("failed to connect to redis", "addr", cfg.RedisAddr, "error", err)
			os.Exit(1)
		}
		guard = claim.NewRedisGuard(rdb, cfg.UploadFolder)
	default:
		guard = claim.NewFileGuard(cfg.UploadFolder, cfg.ClaimSuffix)
	}
	logger.Info("claim guard ready", "backend", cfg.ClaimBackend)

	// DB pool
	pool, err := repo.NewPool(ctx, cfg.DBURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("database connected")

	pipeline := etl.NewPipeline(etl.PipelineConfig{
		Store:  repo.NewMetadataRepo(pool),
		Logger: logger,
	})

	reporter := callback.New(callback.Config{
		Timeout: cfg.CallbackTimeout,
		Logger:  logger,
	})

	w := worker.New(worker.Config{
		Queue:     queue,
		Guard:     guard,
		Processor: pipeline,
		Reporter:  reporter,
		Logger:    logger,
	})

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, _ *http.Request) {
		if w.State() == worker.Stopped || !conn.IsConnected() {
			rw.WriteHeader(http.StatusServiceUnavailable)
			rw.Write([]byte(w.State().String()))
			return
		}
		rw.WriteHeader(http.StatusOK)
		rw.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              ":" + cfg.WorkerPort,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Основной цикл: возвращается при отмене или исчерпании бюджета Dequeue
	runErr := w.Run(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	server.Shutdown(shutdownCtx)

	if runErr != nil {
		logger.Error("worker stopped", "error", runErr)
		os.Exit(1)
	}
	logger.Info("udu-worker stopped")
}
