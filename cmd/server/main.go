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
	"scene-server/internal/handler"
	"scene-server/internal/messaging"
	"scene-server/internal/middleware"
	"scene-server/pkg/logger"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	ginprometheus "github.com/zsais/go-gin-prometheus"
	"go.uber.org/zap"
)

func main() {
	if err := godotenv.Load(); err != nil {
		// В production .env обычно нет
		_, _ = os.Stderr.WriteString("Warning: could not load .env file: " + err.Error() + "\n")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		boot := logger.NewBootstrap(os.Getenv("ENV"), os.Getenv("LOG_LEVEL"))
		boot.Fatal().Err(err).Msg("failed to load configuration")
	}
	boot := logger.NewBootstrap(cfg.Env, cfg.LogLevel)

	log, err := logger.New(logger.Config{Level: cfg.LogLevel, Encoding: cfg.LogEncoding, Service: "scene-server"})
	if err != nil {
		boot.Fatal().Err(err).Msg("failed to build logger")
	}
	defer func() { _ = log.Sync() }()
	zap.ReplaceGlobals(log)
	cfg.LogSafe(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	infra := &app.Infra{}
	defer infra.Close()

	infra.Pool, err = app.ConnectPostgres(ctx, cfg, 2*time.Minute, log)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}

	// Сервер стартует, не дожидаясь миграций индексов
	migrationsDone := app.NewMigrator(infra.Pool, boot).UpInBackground(ctx)

	infra.Redis, err = database.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, log)
	if err != nil {
		log.Warn("Redis unavailable, static memory cache disabled", zap.Error(err))
		infra.Redis = nil
	}

	if cfg.MemoryWriteMode == "queue" {
		infra.Rabbit, err = messaging.Dial(ctx, cfg.RabbitMQURL, time.Minute, log)
		if err != nil {
			log.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
		}
	}

	mem := app.NewMemory(cfg, infra, log)
	turns, err := app.NewTurns(cfg, infra, mem, log, boot)
	if err != nil {
		log.Fatal("Failed to build turn pipeline", zap.Error(err))
	}
	defer turns.Close()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.RequestID(), middleware.GinZapLogger(log), gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.AllowedOrigins
	if len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*" {
		corsConfig.AllowOrigins = nil
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", middleware.RequestIDHeader}
	corsConfig.ExposeHeaders = []string{middleware.RequestIDHeader}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	handler.NewSceneHandler(turns.Service, mem.Writer, log).RegisterRoutes(router)

	// /metrics на основном роутере; promauto-метрики пайплайна попадают туда же
	p := ginprometheus.NewPrometheus("gin")
	p.Use(router)

	srv := &http.Server{
		Addr:        ":" + cfg.HTTPPort,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// WriteTimeout не задан: SSE-ответ живёт весь ход
		IdleTimeout: 60 * time.Second,
	}
	go func() {
		log.Info("Starting HTTP server", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP server listen error", zap.Error(err))
		}
	}()

	select {
	case <-ctx.Done():
	case err, ok := <-migrationsDone:
		if ok && err != nil {
			log.Error("Database migrations failed, search indexes may be missing", zap.Error(err))
		} else {
			log.Info("Database migrations are up to date")
		}
		<-ctx.Done()
	}
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server forced to shutdown", zap.Error(err))
	}
	turns.Wait()
	log.Info("Server exiting")
}
