// Package logger is the process-wide structured logger.
// Call sites log a snake_case event name followed by key/value pairs:
//
//	logger.Info("fine_created", "fine_id", id, "creator_id", actor.ID)
package logger

import (
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu  sync.RWMutex
	log = zap.NewNop().Sugar()
)

// Init builds the JSON logger at the given level ("debug", "info", "warn", "error").
// Until Init is called every log call is a no-op, which keeps tests quiet.
// PRE: none
// POST: package logger replaced; falls back to zap's example logger if the build fails
func Init(level string, development bool) {
	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(parseLevel(level)),
		Development:      development,
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	built, err := cfg.Build()
	if err != nil {
		built = zap.NewExample()
		built.Sugar().Warnw("logger_init_failed", "error", err)
	}

	mu.Lock()
	log = built.Sugar()
	mu.Unlock()
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func current() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

func Debug(msg string, keysAndValues ...any) {
	current().Debugw(msg, keysAndValues...)
}

func Info(msg string, keysAndValues ...any) {
	current().Infow(msg, keysAndValues...)
}

func Warn(msg string, keysAndValues ...any) {
	current().Warnw(msg, keysAndValues...)
}

func Error(msg string, keysAndValues ...any) {
	current().Errorw(msg, keysAndValues...)
}

// Fatal logs and exits the process.
func Fatal(msg string, err error) {
	current().Fatalw(msg, "error", err)
}

// Sync flushes buffered entries; call before exit.
func Sync() {
	_ = current().Sync()
}
