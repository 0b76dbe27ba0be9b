package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	SILENT // No logging
)

var levelNames = map[LogLevel]string{
	DEBUG:  "DEBUG",
	INFO:   "INFO",
	WARN:   "WARN",
	ERROR:  "ERROR",
	SILENT: "SILENT",
}

func (l LogLevel) zerolog() zerolog.Level {
	switch l {
	case DEBUG:
		return zerolog.DebugLevel
	case INFO:
		return zerolog.InfoLevel
	case WARN:
		return zerolog.WarnLevel
	case ERROR:
		return zerolog.ErrorLevel
	default:
		return zerolog.Disabled
	}
}

// Config selects level, encoding and destination of log output.
type Config struct {
	Level LogLevel
	// Format is "json" or "console".
	Format   string
	UseColor bool
	Output   io.Writer
}

// Logger provides leveled logging with module support
type Logger struct {
	mu    sync.Mutex
	level LogLevel
	zl    zerolog.Logger
}

var (
	defaultMu     sync.RWMutex
	defaultLogger *Logger
)

// Init installs the global logger. Calling it again replaces the previous one.
func Init(cfg Config) {
	l := New(cfg)
	defaultMu.Lock()
	defaultLogger = l
	defaultMu.Unlock()
}

// New creates a new Logger instance
func New(cfg Config) *Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if strings.EqualFold(cfg.Format, "console") {
		out = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: "15:04:05.000",
			NoColor:    !cfg.UseColor,
		}
	}

	zl := zerolog.New(out).
		Level(cfg.Level.zerolog()).
		With().
		Timestamp().
		Logger()

	return &Logger{level: cfg.Level, zl: zl}
}

// SetLevel changes the log level
func (l *Logger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
	l.zl = l.zl.Level(level.zerolog())
}

// GetLevel returns the current log level
func (l *Logger) GetLevel() LogLevel {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}

// Zerolog exposes the underlying logger for structured fields.
func (l *Logger) Zerolog() zerolog.Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.zl
}

func (l *Logger) log(level LogLevel, module string, format string, args ...interface{}) {
	l.mu.Lock()
	zl := l.zl
	current := l.level
	l.mu.Unlock()

	if level < current {
		return
	}

	ev := zl.WithLevel(level.zerolog())
	if module != "" {
		ev = ev.Str("module", module)
	}
	ev.Msg(fmt.Sprintf(format, args...))
}

// Debug logs a debug message
func (l *Logger) Debug(module string, format string, args ...interface{}) {
	l.log(DEBUG, module, format, args...)
}

// Info logs an info message
func (l *Logger) Info(module string, format string, args ...interface{}) {
	l.log(INFO, module, format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(module string, format string, args ...interface{}) {
	l.log(WARN, module, format, args...)
}

// Error logs an error message
func (l *Logger) Error(module string, format string, args ...interface{}) {
	l.log(ERROR, module, format, args...)
}

// Global logger functions (use default logger)

func global() *Logger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLogger
}

// SetLevel sets the global log level
func SetLevel(level LogLevel) {
	if l := global(); l != nil {
		l.SetLevel(level)
	}
}

// GetLevel returns the global log level
func GetLevel() LogLevel {
	if l := global(); l != nil {
		return l.GetLevel()
	}
	return INFO
}

// Debug logs a debug message using the global logger
func Debug(module string, format string, args ...interface{}) {
	if l := global(); l != nil {
		l.Debug(module, format, args...)
	}
}

// Info logs an info message using the global logger
func Info(module string, format string, args ...interface{}) {
	if l := global(); l != nil {
		l.Info(module, format, args...)
	}
}

// Warn logs a warning message using the global logger
func Warn(module string, format string, args ...interface{}) {
	if l := global(); l != nil {
		l.Warn(module, format, args...)
	}
}

// Error logs an error message using the global logger
func Error(module string, format string, args ...interface{}) {
	if l := global(); l != nil {
		l.Error(module, format, args...)
	}
}

// ParseLevel parses a log level string
func ParseLevel(s string) (LogLevel, error) {
	switch s {
	case "debug", "DEBUG":
		return DEBUG, nil
	case "info", "INFO":
		return INFO, nil
	case "warn", "WARN", "warning", "WARNING":
		return WARN, nil
	case "error", "ERROR":
		return ERROR, nil
	case "silent", "SILENT", "none", "NONE":
		return SILENT, nil
	default:
		return INFO, fmt.Errorf("invalid log level: %s", s)
	}
}

// String returns the string representation of a log level
func (l LogLevel) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "UNKNOWN"
}

func init() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
}
