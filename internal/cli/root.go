// Package cli - команды scenectl: миграции, запись памяти и ход из терминала.
package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"scene-server/internal/app"
	"scene-server/internal/config"
	"scene-server/pkg/logger"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	envFile  string
	logLevel string
)

// RootCmd - корневая команда scenectl.
var RootCmd = &cobra.Command{
	Use:           "scenectl",
	Short:         "Operate the scene server from the terminal",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	RootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to .env file (ignored if missing)")
	RootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level: debug, info, warn, error")
}

// session - конфигурация и соединения одной команды.
type session struct {
	cfg   *config.Config
	boot  zerolog.Logger
	log   *zap.Logger
	infra *app.Infra
}

func openSession(ctx context.Context) (*session, error) {
	_ = godotenv.Load(envFile)
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	boot := logger.NewBootstrap(cfg.Env, logLevel)
	log, err := logger.New(logger.Config{Level: logLevel, Encoding: "console", OutputPath: "stderr"})
	if err != nil {
		return nil, err
	}
	pool, err := app.ConnectPostgres(ctx, cfg, 15*time.Second, log)
	if err != nil {
		return nil, err
	}
	return &session{cfg: cfg, boot: boot, log: log, infra: &app.Infra{Pool: pool}}, nil
}

func (s *session) Close() {
	s.infra.Close()
	_ = s.log.Sync()
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
