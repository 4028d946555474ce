// Package core holds the pieces every mvtreport package shares: the
// logging interface and its zap-backed implementation.
package core

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the printf-style logging interface used throughout mvtreport.
// Implement this interface to plug in another backend.
type Logger interface {
	// Debug logs a debug message
	Debug(format string, args ...interface{})

	// Info logs an info message
	Info(format string, args ...interface{})

	// Warn logs a warning message
	Warn(format string, args ...interface{})

	// Error logs an error message
	Error(format string, args ...interface{})
}

// LogLevel represents the logging level.
type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
	LogLevelSilent
)

// ParseLogLevel converts a level name ("debug", "info", ...) to a LogLevel.
func ParseLogLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LogLevelDebug, nil
	case "", "info":
		return LogLevelInfo, nil
	case "warn", "warning":
		return LogLevelWarn, nil
	case "error":
		return LogLevelError, nil
	case "silent", "off", "none":
		return LogLevelSilent, nil
	default:
		return LogLevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

func (l LogLevel) zapLevel() zapcore.Level {
	switch l {
	case LogLevelDebug:
		return zapcore.DebugLevel
	case LogLevelWarn:
		return zapcore.WarnLevel
	case LogLevelError:
		return zapcore.ErrorLevel
	case LogLevelSilent:
		return zapcore.FatalLevel + 1
	default:
		return zapcore.InfoLevel
	}
}

// ZapLogger adapts a zap.SugaredLogger to Logger.
type ZapLogger struct {
	sugar *zap.SugaredLogger
}

// ZapOptions configures NewZapLogger.
type ZapOptions struct {
	Level  LogLevel
	JSON   bool
	Output io.Writer // defaults to os.Stderr
	Name   string
}

// NewZapLogger builds a zap-backed Logger writing to opts.Output.
func NewZapLogger(opts ZapOptions) *ZapLogger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	if opts.JSON {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	core := zapcore.NewCore(enc, zapcore.AddSync(out), zap.NewAtomicLevelAt(opts.Level.zapLevel()))
	logger := zap.New(core)
	if opts.Name != "" {
		logger = logger.Named(opts.Name)
	}
	return &ZapLogger{sugar: logger.Sugar()}
}

func (l *ZapLogger) Debug(format string, args ...interface{}) { l.sugar.Debugf(format, args...) }
func (l *ZapLogger) Info(format string, args ...interface{})  { l.sugar.Infof(format, args...) }
func (l *ZapLogger) Warn(format string, args ...interface{})  { l.sugar.Warnf(format, args...) }
func (l *ZapLogger) Error(format string, args ...interface{}) { l.sugar.Errorf(format, args...) }

// With returns a child logger carrying the given key/value pairs.
func (l *ZapLogger) With(keysAndValues ...interface{}) *ZapLogger {
	return &ZapLogger{sugar: l.sugar.With(keysAndValues...)}
}

// Sync flushes buffered log entries.
func (l *ZapLogger) Sync() error {
	return l.sugar.Sync()
}

// NopLogger is a no-op logger that discards all messages.
type NopLogger struct{}

func (l *NopLogger) Debug(format string, args ...interface{}) {}
func (l *NopLogger) Info(format string, args ...interface{})  {}
func (l *NopLogger) Warn(format string, args ...interface{})  {}
func (l *NopLogger) Error(format string, args ...interface{}) {}

// WithFields returns l with the key/value pairs attached to every entry.
// Loggers without structured fields are returned unchanged.
func WithFields(l Logger, keysAndValues ...interface{}) Logger {
	if zl, ok := l.(*ZapLogger); ok {
		return zl.With(keysAndValues...)
	}
	return OrNop(l)
}

// OrNop returns l, or a NopLogger when l is nil.
func OrNop(l Logger) Logger {
	if l == nil {
		return &NopLogger{}
	}
	return l
}

// Ensure implementations satisfy the interface
var (
	_ Logger = (*ZapLogger)(nil)
	_ Logger = (*NopLogger)(nil)
)
