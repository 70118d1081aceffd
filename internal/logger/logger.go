package logger

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var log *zap.Logger

// Init builds the global logger for env. A non-empty level overrides the
// environment's default level.
func Init(env, level string) error {
	cfg := newConfig(env)
	if level != "" {
		lvl, err := zapcore.ParseLevel(level)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", level, err)
		}
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}

	l, err := cfg.Build(zap.AddCaller())
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	log = l.With(zap.String("service", "paygate"))
	return nil
}

func newConfig(env string) zap.Config {
	if env != "production" {
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return cfg
	}

	cfg := zap.NewProductionConfig()
	// No sampling: every payment event is kept.
	cfg.Sampling = nil
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.MessageKey = "message"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.OutputPaths = []string{"stdout"}
	return cfg
}

// L returns the global logger, building one from APP_ENV and LOG_LEVEL on
// first use. An unparsable LOG_LEVEL falls back to the default level.
func L() *zap.Logger {
	if log == nil {
		env := os.Getenv("APP_ENV")
		if err := Init(env, os.Getenv("LOG_LEVEL")); err != nil {
			if err := Init(env, ""); err != nil {
				log = zap.NewNop()
			}
		}
	}
	return log
}

// Replace swaps the global logger and returns a func restoring the old one.
func Replace(l *zap.Logger) func() {
	prev := log
	log = l
	return func() { log = prev }
}

func Sync() {
	if log != nil {
		_ = log.Sync()
	}
}
