package logger

import (
	"fmt"
	"io"
	stdlog "log"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a level name (case-insensitive) into a Level.
func ParseLevel(level string) (Level, error) {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return LevelDebug, nil
	case "INFO", "":
		return LevelInfo, nil
	case "WARN":
		return LevelWarn, nil
	case "ERROR":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
}

// Config holds logger configuration.
type Config struct {
	Level  string // DEBUG, INFO, WARN, ERROR
	Output string // stdout, stderr, or file path
}

// Logger is a leveled text logger. Lines look like:
//
//	[2006-01-02 15:04:05] [INFO] message
//
// A Logger is safe for concurrent use.
type Logger struct {
	level  atomic.Int32
	out    *stdlog.Logger
	closer io.Closer
}

// New creates a Logger from the given configuration.
func New(cfg Config) (*Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	var w io.Writer
	var closer io.Closer
	switch strings.ToLower(cfg.Output) {
	case "", "stdout":
		w = os.Stdout
	case "stderr":
		w = os.Stderr
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %q: %w", cfg.Output, err)
		}
		w = f
		closer = f
	}

	l := NewWithWriter(w, level)
	l.closer = closer
	return l, nil
}

// NewWithWriter creates a Logger writing to w. Mostly useful in tests.
func NewWithWriter(w io.Writer, level Level) *Logger {
	l := &Logger{out: stdlog.New(w, "", 0)}
	l.level.Store(int32(level))
	return l
}

// SetLevel changes the minimum level. Unknown names are ignored.
func (l *Logger) SetLevel(level string) {
	if lv, err := ParseLevel(level); err == nil {
		l.level.Store(int32(lv))
	}
}

// Level returns the current minimum level.
func (l *Logger) Level() Level {
	return Level(l.level.Load())
}

// Close releases the log file, if the logger owns one.
func (l *Logger) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

func (l *Logger) log(level Level, format string, v ...any) {
	if level < l.Level() {
		return
	}

	timestamp := time.Now().Format("2006-01-02 15:04:05")
	prefix := fmt.Sprintf("[%s] [%s] ", timestamp, level.String())
	message := fmt.Sprintf(format, v...)
	l.out.Println(prefix + message)
}

func (l *Logger) Debug(format string, v ...any) {
	l.log(LevelDebug, format, v...)
}

func (l *Logger) Info(format string, v ...any) {
	l.log(LevelInfo, format, v...)
}

func (l *Logger) Warn(format string, v ...any) {
	l.log(LevelWarn, format, v...)
}

func (l *Logger) Error(format string, v ...any) {
	l.log(LevelError, format, v...)
}

var (
	defaultMu     sync.RWMutex
	defaultLogger = NewWithWriter(os.Stdout, LevelInfo)
)

// SetDefault installs l as the logger used by the package-level functions.
func SetDefault(l *Logger) {
	if l == nil {
		return
	}
	defaultMu.Lock()
	defaultLogger = l
	defaultMu.Unlock()
}

// Default returns the logger used by the package-level functions.
func Default() *Logger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLogger
}

func Debug(format string, v ...any) {
	Default().log(LevelDebug, format, v...)
}

func Info(format string, v ...any) {
	Default().log(LevelInfo, format, v...)
}

func Warn(format string, v ...any) {
	Default().log(LevelWarn, format, v...)
}

func Error(format string, v ...any) {
	Default().log(LevelError, format, v...)
}
