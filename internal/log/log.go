// Package log is a small facade over zap. Callers pass alternating
// key/value pairs, e.g. log.Info("fetched feed", "sync", id, "bytes", n).
package log

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu       sync.Mutex
	level    = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	base     *zap.SugaredLogger
	baseOnce sync.Once
)

func initLogger() {
	baseOnce.Do(func() {
		encoderConfig := zapcore.EncoderConfig{
			TimeKey:        "time",
			LevelKey:       "level",
			NameKey:        "logger",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalLevelEncoder,
			EncodeTime:     zapcore.RFC3339TimeEncoder,
			EncodeDuration: zapcore.MillisDurationEncoder,
		}

		core := zapcore.NewCore(
			zapcore.NewConsoleEncoder(encoderConfig),
			zapcore.AddSync(os.Stderr),
			level,
		)
		base = zap.New(core).Sugar()
	})
}

// Init parses a level name (debug, info, warn, error) and applies it.
// Unknown names fall back to info. Safe to call more than once.
func Init(lvl string) {
	initLogger()
	SetLevel(lvl)
}

func SetLevel(lvl string) {
	mu.Lock()
	defer mu.Unlock()

	switch strings.ToLower(strings.TrimSpace(lvl)) {
	case "debug":
		level.SetLevel(zapcore.DebugLevel)
	case "", "info":
		level.SetLevel(zapcore.InfoLevel)
	case "warn", "warning":
		level.SetLevel(zapcore.WarnLevel)
	case "error":
		level.SetLevel(zapcore.ErrorLevel)
	default:
		level.SetLevel(zapcore.InfoLevel)
	}
}

func Debug(msg string, kv ...any) {
	initLogger()
	base.Debugw(msg, kv...)
}

func Info(msg string, kv ...any) {
	initLogger()
	base.Infow(msg, kv...)
}

func Warn(msg string, kv ...any) {
	initLogger()
	base.Warnw(msg, kv...)
}

func Error(msg string, err error, kv ...any) {
	initLogger()
	if err != nil {
		kv = append(kv, "err", err)
	}
	base.Errorw(msg, kv...)
}

// Sync flushes buffered log entries. Call before process exit.
func Sync() {
	initLogger()
	_ = base.Sync()
}
