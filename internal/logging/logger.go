// Package logging provides structured logging with file and console output.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Entry is a single log line kept in the in-memory history ring.
type Entry struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Message   string `json:"message"`
}

// Config holds logger configuration.
type Config struct {
	LogDir     string // directory for log files (default: ~/.mockview/logs)
	Level      string // minimum level: debug, info, warn, error (default: info)
	MaxHistory int    // entries kept in memory (default: 500)
	Console    bool   // also log to stdout (default: true)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		LogDir:     filepath.Join(home, ".mockview", "logs"),
		Level:      "info",
		MaxHistory: 500,
		Console:    true,
	}
}

// Logger wraps zerolog with a date-named log file and a bounded history
// ring so recent entries can be served back over the HTTP surface.
type Logger struct {
	zlog    zerolog.Logger
	file    *os.File
	logPath string

	mu      sync.RWMutex
	history []Entry
	maxHist int
	onLog   func(Entry)
}

// New creates a Logger writing to LogDir and, optionally, the console.
func New(cfg *Config) (*Logger, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	logPath := filepath.Join(cfg.LogDir, fmt.Sprintf("mockview_%s.log", time.Now().Format("2006-01-02")))
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	writers := []io.Writer{file}
	if cfg.Console {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"})
	}

	level := zerolog.InfoLevel
	switch cfg.Level {
	case "debug":
		level = zerolog.DebugLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	l := &Logger{
		file:    file,
		logPath: logPath,
		history: make([]Entry, 0, cfg.MaxHistory),
		maxHist: cfg.MaxHistory,
	}
	l.zlog = zerolog.New(io.MultiWriter(writers...)).
		Level(level).
		With().Timestamp().Str("app", "mockview").Logger().
		Hook(historyHook{l})

	return l, nil
}

// Component returns a sub-logger tagged with the component name.
func (l *Logger) Component(name string) zerolog.Logger {
	return l.zlog.With().Str("component", name).Logger()
}

// Zerolog returns the underlying logger.
func (l *Logger) Zerolog() zerolog.Logger {
	return l.zlog
}

// SetOnLog registers a callback invoked for every recorded entry.
func (l *Logger) SetOnLog(fn func(Entry)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onLog = fn
}

// History returns up to limit recent entries, newest last.
func (l *Logger) History(limit int) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if limit <= 0 || limit > len(l.history) {
		limit = len(l.history)
	}
	out := make([]Entry, limit)
	copy(out, l.history[len(l.history)-limit:])
	return out
}

// Path returns the active log file path.
func (l *Logger) Path() string {
	return l.logPath
}

// Close closes the log file.
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

func (l *Logger) record(e Entry) {
	l.mu.Lock()
	l.history = append(l.history, e)
	if len(l.history) > l.maxHist {
		l.history = l.history[len(l.history)-l.maxHist:]
	}
	cb := l.onLog
	l.mu.Unlock()

	if cb != nil {
		go cb(e)
	}
}

// historyHook mirrors every zerolog event into the history ring.
type historyHook struct {
	l *Logger
}

func (h historyHook) Run(_ *zerolog.Event, level zerolog.Level, msg string) {
	if level == zerolog.NoLevel {
		return
	}
	h.l.record(Entry{
		Timestamp: time.Now().Format("15:04:05.000"),
		Level:     level.String(),
		Message:   msg,
	})
}
