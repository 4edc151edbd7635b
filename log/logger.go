package log

import (
	"context"
	"log/slog"
	"math"
	"os"
	"runtime"
	"time"
)

const errorKey = "LOG_ERROR"

// Legacy verbosity levels as accepted by the --verbosity flag.
// --verbosity 命令行参数使用的旧式数字级别。
const (
	legacyLevelCrit = iota
	legacyLevelError
	legacyLevelWarn
	legacyLevelInfo
	legacyLevelDebug
	legacyLevelTrace
)

const (
	levelMaxVerbosity slog.Level = math.MinInt
	LevelTrace        slog.Level = -8
	LevelDebug                   = slog.LevelDebug
	LevelInfo                    = slog.LevelInfo
	LevelWarn                    = slog.LevelWarn
	LevelError                   = slog.LevelError
	LevelCrit         slog.Level = 12
)

// FromLegacyLevel converts a numeric verbosity (0=crit ... 5=trace) into an
// slog level. Values above trace clamp to trace, negative ones to crit.
// FromLegacyLevel 将数字形式的日志级别转换为 slog 级别。
func FromLegacyLevel(lvl int) slog.Level {
	switch {
	case lvl >= legacyLevelTrace:
		return LevelTrace
	case lvl == legacyLevelDebug:
		return LevelDebug
	case lvl == legacyLevelInfo:
		return LevelInfo
	case lvl == legacyLevelWarn:
		return LevelWarn
	case lvl == legacyLevelError:
		return LevelError
	default:
		return LevelCrit
	}
}

var levelNames = map[slog.Level][2]string{
	LevelTrace: {"TRACE", "trace"},
	LevelDebug: {"DEBUG", "debug"},
	LevelInfo:  {"INFO ", "info"},
	LevelWarn:  {"WARN ", "warn"},
	LevelError: {"ERROR", "error"},
	LevelCrit:  {"CRIT ", "crit"},
}

// LevelAlignedString returns the 5-character upper case name used by the
// terminal handler.
func LevelAlignedString(l slog.Level) string {
	if names, ok := levelNames[l]; ok {
		return names[0]
	}
	return "unknown level"
}

// LevelString returns the lower case name of the level.
func LevelString(l slog.Level) string {
	if names, ok := levelNames[l]; ok {
		return names[1]
	}
	return "unknown"
}

// A Logger writes key/value pairs to a Handler.
// Logger 将键值对写入到 Handler。
type Logger interface {
	// With returns a new Logger that has this logger's attributes plus the given ones.
	With(ctx ...interface{}) Logger

	// New is an alias of With.
	New(ctx ...interface{}) Logger

	// Log logs a message at the specified level with context key/value pairs.
	Log(level slog.Level, msg string, ctx ...interface{})

	Trace(msg string, ctx ...interface{})
	Debug(msg string, ctx ...interface{})
	Info(msg string, ctx ...interface{})
	Warn(msg string, ctx ...interface{})
	Error(msg string, ctx ...interface{})

	// Crit logs a message at crit level and terminates the process.
	Crit(msg string, ctx ...interface{})

	// Write logs a message at the specified level.
	Write(level slog.Level, msg string, attrs ...any)

	// Enabled reports whether l emits log records at the given context and level.
	Enabled(ctx context.Context, level slog.Level) bool

	// Handler returns the underlying handler of the inner logger.
	Handler() slog.Handler
}

type logger struct {
	inner *slog.Logger
}

// NewLogger returns a logger with the specified handler set.
func NewLogger(h slog.Handler) Logger {
	return &logger{slog.New(h)}
}

func (l *logger) Handler() slog.Handler {
	return l.inner.Handler()
}

// Write builds the record by hand so that the reported call site is the
// caller of the public logging method, not this package.
// Write 手动构造记录，使调用位置指向真正的调用方。
func (l *logger) Write(level slog.Level, msg string, attrs ...any) {
	if !l.inner.Enabled(context.Background(), level) {
		return
	}
	var pcs [1]uintptr
	runtime.Callers(3, pcs[:])

	if len(attrs)%2 != 0 {
		attrs = append(attrs, nil, errorKey, "Normalized odd number of arguments by adding nil")
	}
	r := slog.NewRecord(time.Now(), level, msg, pcs[0])
	r.Add(attrs...)
	l.inner.Handler().Handle(context.Background(), r)
}

func (l *logger) Log(level slog.Level, msg string, attrs ...any) {
	l.Write(level, msg, attrs...)
}

func (l *logger) With(ctx ...interface{}) Logger {
	return &logger{l.inner.With(ctx...)}
}

func (l *logger) New(ctx ...interface{}) Logger {
	return l.With(ctx...)
}

func (l *logger) Enabled(ctx context.Context, level slog.Level) bool {
	return l.inner.Enabled(ctx, level)
}

func (l *logger) Trace(msg string, ctx ...interface{}) { l.Write(LevelTrace, msg, ctx...) }
func (l *logger) Debug(msg string, ctx ...interface{}) { l.Write(LevelDebug, msg, ctx...) }
func (l *logger) Info(msg string, ctx ...interface{})  { l.Write(LevelInfo, msg, ctx...) }
func (l *logger) Warn(msg string, ctx ...interface{})  { l.Write(LevelWarn, msg, ctx...) }
func (l *logger) Error(msg string, ctx ...interface{}) { l.Write(LevelError, msg, ctx...) }

func (l *logger) Crit(msg string, ctx ...interface{}) {
	l.Write(LevelCrit, msg, ctx...)
	os.Exit(1)
}
