package logger

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var global *zap.SugaredLogger

// Init sets the process-wide logger.
func Init(z *zap.SugaredLogger) { global = z }

// Logger returns the process-wide logger. It never returns nil: before Init
// is called a no-op logger is handed out.
func Logger() *zap.SugaredLogger {
	if global == nil {
		return zap.NewNop().Sugar()
	}
	return global
}

// ParseLevel maps a textual level (debug, info, warn, error) to a zap level.
func ParseLevel(level string) (zapcore.Level, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(level)))); err != nil {
		return zapcore.InfoLevel, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return lvl, nil
}

// Setup builds a console logger at the given level and installs it as the
// global logger. The returned function flushes buffered entries.
func Setup(level string) (func(), error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return func() {}, err
	}

	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.Encoding = "console"
	cfg.DisableStacktrace = lvl > zapcore.DebugLevel
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	z, err := cfg.Build()
	if err != nil {
		return func() {}, fmt.Errorf("building logger: %w", err)
	}
	Init(z.Sugar())
	return func() { _ = z.Sync() }, nil
}
