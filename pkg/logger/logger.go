package logger

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config содержит настройки zap-логгера бинарников.
type Config struct {
	Level      string // debug, info, warn, error; пусто или неизвестно = info
	Encoding   string // json (по умолчанию) или console
	OutputPath string // пусто = stdout
	Service    string // имя сервиса, пишется в каждую запись
}

// ParseLevel разбирает уровень логирования. Неизвестное значение даёт info и false.
func ParseLevel(s string) (zapcore.Level, bool) {
	if strings.TrimSpace(s) == "" {
		return zapcore.InfoLevel, true
	}
	lvl, err := zapcore.ParseLevel(strings.ToLower(s))
	if err != nil {
		return zapcore.InfoLevel, false
	}
	return lvl, true
}

func encoderConfig(console bool) zapcore.EncoderConfig {
	ec := zap.NewProductionEncoderConfig()
	ec.TimeKey = "timestamp"
	ec.EncodeTime = zapcore.ISO8601TimeEncoder
	ec.EncodeLevel = zapcore.CapitalLevelEncoder
	if console {
		ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
		ec.EncodeTime = zapcore.TimeEncoderOfLayout(time.TimeOnly)
	}
	return ec
}

// New создает zap.Logger для сервиса.
func New(cfg Config) (*zap.Logger, error) {
	lvl, ok := ParseLevel(cfg.Level)
	if !ok {
		fmt.Fprintf(os.Stderr, "Invalid log level '%s', using 'info'\n", cfg.Level)
	}

	encoding := "json"
	if strings.EqualFold(cfg.Encoding, "console") {
		encoding = "console"
	}
	output := cfg.OutputPath
	if output == "" {
		output = "stdout"
	}

	zc := zap.Config{
		Level:             zap.NewAtomicLevelAt(lvl),
		DisableCaller:     true,
		DisableStacktrace: true,
		Encoding:          encoding,
		EncoderConfig:     encoderConfig(encoding == "console"),
		OutputPaths:       []string{output},
		ErrorOutputPaths:  []string{"stderr"},
	}
	if cfg.Service != "" {
		zc.InitialFields = map[string]any{"service": cfg.Service}
	}

	l, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return l, nil
}

// NewBootstrap создает zerolog-логгер для старта бинарников и CLI:
// в development читаемый консольный вывод, иначе JSON.
func NewBootstrap(env, level string) zerolog.Logger {
	logLevel := zerolog.InfoLevel
	if lvl, err := zerolog.ParseLevel(strings.ToLower(level)); err == nil && level != "" {
		logLevel = lvl
	}
	var l zerolog.Logger
	if strings.EqualFold(env, "production") {
		l = zerolog.New(os.Stdout)
	} else {
		l = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}
	return l.Level(logLevel).With().Timestamp().Logger()
}
