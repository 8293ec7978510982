package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// SafeLogger wraps a zap logger so that a nil receiver or an uninitialized
// logger never panics. Packages receive it instead of a raw *zap.Logger.
type SafeLogger struct {
	logger *zap.Logger
}

// Logger is the process-wide logger. It starts as a no-op so tests and
// init-time code can log before InitLogger runs.
var Logger = &SafeLogger{logger: zap.NewNop()}

// InitLogger builds the production logger and installs it as Logger and as
// the zap global.
func InitLogger() error {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		var level zapcore.Level
		if err := level.UnmarshalText([]byte(logLevel)); err == nil {
			config.Level = zap.NewAtomicLevelAt(level)
		}
	}

	built, err := config.Build(
		zap.AddCallerSkip(1),
		zap.Fields(
			zap.String("service", "nis-portal-api"),
			zap.String("version", "v1"),
		),
	)
	if err != nil {
		return err
	}

	Logger = &SafeLogger{logger: built}
	zap.ReplaceGlobals(built)
	return nil
}

// New wraps an existing zap logger.
func New(l *zap.Logger) *SafeLogger {
	return &SafeLogger{logger: l}
}

func (s *SafeLogger) Debug(msg string, fields ...zap.Field) {
	if s == nil || s.logger == nil {
		return
	}
	s.logger.Debug(msg, fields...)
}

func (s *SafeLogger) Info(msg string, fields ...zap.Field) {
	if s == nil || s.logger == nil {
		return
	}
	s.logger.Info(msg, fields...)
}

func (s *SafeLogger) Warn(msg string, fields ...zap.Field) {
	if s == nil || s.logger == nil {
		return
	}
	s.logger.Warn(msg, fields...)
}

func (s *SafeLogger) Error(msg string, fields ...zap.Field) {
	if s == nil || s.logger == nil {
		return
	}
	s.logger.Error(msg, fields...)
}

// Fatal logs and exits. Without an underlying logger it still exits.
func (s *SafeLogger) Fatal(msg string, fields ...zap.Field) {
	if s == nil || s.logger == nil {
		os.Exit(1)
	}
	s.logger.Fatal(msg, fields...)
}

// With returns a child logger carrying fields.
func (s *SafeLogger) With(fields ...zap.Field) *SafeLogger {
	if s == nil {
		return nil
	}
	if s.logger == nil {
		return s
	}
	return &SafeLogger{logger: s.logger.With(fields...)}
}

// Named returns a child logger with a name segment appended.
func (s *SafeLogger) Named(name string) *SafeLogger {
	if s == nil || s.logger == nil {
		return s
	}
	return &SafeLogger{logger: s.logger.Named(name)}
}

// Unwrap returns the underlying zap logger, or a no-op logger.
func (s *SafeLogger) Unwrap() *zap.Logger {
	if s == nil || s.logger == nil {
		return zap.NewNop()
	}
	return s.logger
}
