package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"scene-server/internal/app"
	"scene-server/internal/config"
	"scene-server/internal/database"
	"scene-server/internal/messaging"
	"scene-server/pkg/logger"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		boot := logger.NewBootstrap(os.Getenv("ENV"), os.Getenv("LOG_LEVEL"))
		boot.Fatal().Err(err).Msg("failed to load configuration")
	}
	boot := logger.NewBootstrap(cfg.Env, cfg.LogLevel)

	log, err := logger.New(logger.Config{Level: cfg.LogLevel, Encoding: cfg.LogEncoding, Service: "memory-indexer"})
	if err != nil {
		boot.Fatal().Err(err).Msg("failed to build logger")
	}
	defer func() { _ = log.Sync() }()
	cfg.LogSafe(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metricsSrv := startMetricsServer(cfg.MetricsPort, log)

	infra := &app.Infra{}
	defer infra.Close()

	infra.Pool, err = app.ConnectPostgres(ctx, cfg, 2*time.Minute, log)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	if err := app.NewMigrator(infra.Pool, boot).Up(ctx); err != nil {
		log.Fatal("Failed to apply migrations", zap.Error(err))
	}
	infra.Redis, err = database.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, log)
	if err != nil {
		log.Warn("Redis unavailable, continuing without cache", zap.Error(err))
		infra.Redis = nil
	}
	infra.Rabbit, err = messaging.Dial(ctx, cfg.RabbitMQURL, 2*time.Minute, log)
	if err != nil {
		log.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
	}

	mem := app.NewMemory(cfg, infra, log)
	consumer := messaging.NewMemoryIndexConsumer(infra.Rabbit, mem.Writer, messaging.ConsumerConfig{
		Topology:    messaging.Topology{Queue: cfg.MemoryIndexQueue},
		Concurrency: cfg.IndexerConcurrency,
		TaskTimeout: cfg.MemoryWriteTimeout,
	}, log)
	if err := consumer.Start(ctx); err != nil {
		log.Fatal("Failed to start memory index consumer", zap.Error(err))
	}

	<-ctx.Done()
	log.Info("Shutting down memory indexer...")
	consumer.Stop(15 * time.Second)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		log.Error("Metrics server forced to shutdown", zap.Error(err))
	}
	log.Info("Memory indexer stopped")
}

// startMetricsServer отдаёт /metrics и /health на отдельном порту.
func startMetricsServer(port string, log *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	srv := &http.Server{Addr: ":" + port, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Info("Starting metrics server", zap.String("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Metrics server failed", zap.Error(err))
		}
	}()
	return srv
}
