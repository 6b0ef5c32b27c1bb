// UDU Server: front door загрузок пользовательских данных.
//
// Принимает job descriptor от веб-приложения, сохраняет его в общий
// каталог загрузок и ставит задачу process в очередь. Итог обработки
// веб-приложение получает через callback от воркера.
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

	"github.com/shaiso/Ingest/internal/api"
	"github.com/shaiso/Ingest/internal/config"
	"github.com/shaiso/Ingest/internal/mq"
	"github.com/shaiso/Ingest/internal/telemetry"
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger(nil)

	cfg, err := config.Load(os.Getenv("UDU_CONFIG"))
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger.Info("starting udu-server", "project", cfg.ProjectID, "topic", cfg.TopicName)

	if err := os.MkdirAll(cfg.UploadFolder, 0o755); err != nil {
		logger.Error("failed to create upload folder", "path", cfg.UploadFolder, "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// RabbitMQ
	conn, err := mq.NewConnection(cfg.AMQPURL, logger)
	if err != nil {
		logger.Error("failed to connect to RabbitMQ", "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	queue := mq.NewQueue(conn, mq.QueueConfig{Name: cfg.TopicName, Logger: logger})

	// Подписку создаём и здесь: задачи, опубликованные до старта воркеров, не теряются
	if err := queue.Setup(ctx); err != nil {
		logger.Error("failed to setup topology", "error", err)
		os.Exit(1)
	}

	logger.Info("topology ready", "topic", queue.Topic(), "subscription", queue.Subscription())

	handler := api.NewHandler(api.Config{
		Queue:            queue,
		UploadDir:        cfg.UploadFolder,
		ResponseLocation: cfg.ResponseLocation,
		PingCount:        cfg.PingCount,
		RateLimit:        cfg.RateLimit,
		RateBurst:        cfg.RateBurst,
		Health: func() error {
			if !conn.IsConnected() {
				return errors.New("broker disconnected")
			}
			return nil
		},
		Logger: logger,
	})

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	go func() {
		logger.Info("listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	// Graceful shutdown с таймаутом 10 секунд
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("stopped")
}
