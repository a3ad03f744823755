// Package logging builds the process slog.Logger: a console handler plus
// optional rotating files, with identical records collapsed.
package logging

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/sheetsync/sheetsync/internal/config"
)

const (
	MainLogFile  = "sheetsync.log"
	ErrorLogFile = "errors.log"
)

var (
	// consoleWriter is swapped in tests.
	consoleWriter io.Writer = os.Stdout

	closers   []io.Closer
	closersMu sync.Mutex
)

// Initialize builds the logger from cfg and installs it as slog's default.
func Initialize(cfg config.LoggingConfig) (*slog.Logger, error) {
	logger, err := NewLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	slog.SetDefault(logger)

	logger.Info("Logging initialized",
		"level", cfg.Level,
		"format", cfg.Format,
		"dir", cfg.Dir,
		"console_enabled", cfg.Console.Enabled,
		"file_enabled", cfg.File.Enabled,
		"dedup", cfg.Dedup,
	)
	return logger, nil
}

// NewLogger creates a logger. Files are only opened when file output is
// enabled: sheetsync.log receives every record at the file level and
// errors.log receives warnings and errors.
func NewLogger(cfg config.LoggingConfig) (*slog.Logger, error) {
	var handlers []slog.Handler

	if cfg.Console.Enabled {
		handlers = append(handlers, createHandler(consoleWriter, cfg.ConsoleFormat(), ParseLevel(cfg.ConsoleLevel())))
	}

	if cfg.File.Enabled {
		if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}

		mainFile := rotatingFile(cfg, MainLogFile)
		handlers = append(handlers, createHandler(mainFile, cfg.FileFormat(), ParseLevel(cfg.FileLevel())))

		errorFile := rotatingFile(cfg, ErrorLogFile)
		errorHandler := createHandler(errorFile, cfg.FileFormat(), slog.LevelWarn)
		handlers = append(handlers, NewLevelFilter(errorHandler, slog.LevelWarn))
	}

	var handler slog.Handler
	switch len(handlers) {
	case 0:
		handler = slog.NewTextHandler(io.Discard, nil)
	case 1:
		handler = handlers[0]
	default:
		handler = NewMultiHandler(handlers...)
	}

	if cfg.Dedup {
		dedup := NewDedupHandler(handler, DefaultDedupWindow)
		register(dedup)
		handler = dedup
	}

	return slog.New(handler), nil
}

// Shutdown flushes pending dedup counts and closes the log files.
func Shutdown() error {
	closersMu.Lock()
	defer closersMu.Unlock()

	var errs []error
	for _, c := range closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	closers = nil
	if len(errs) > 0 {
		return fmt.Errorf("failed to close log outputs: %w", errors.Join(errs...))
	}
	return nil
}

func rotatingFile(cfg config.LoggingConfig, name string) *lumberjack.Logger {
	f := &lumberjack.Logger{
		Filename:   filepath.Join(cfg.Dir, name),
		MaxSize:    cfg.Rotation.MaxSize,
		MaxBackups: cfg.Rotation.MaxBackups,
		MaxAge:     cfg.Rotation.MaxAge,
		Compress:   cfg.Rotation.Compress,
	}
	register(f)
	return f
}

// register appends c to the shutdown list. Dedup handlers are registered
// after the files they write to and must flush first, so they go in front.
func register(c io.Closer) {
	closersMu.Lock()
	defer closersMu.Unlock()
	if _, ok := c.(*DedupHandler); ok {
		closers = append([]io.Closer{c}, closers...)
		return
	}
	closers = append(closers, c)
}

// ParseLevel maps a config level name to a slog level; unknown names are info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func createHandler(w io.Writer, format string, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}
