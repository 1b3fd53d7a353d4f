// Package logger provides the ingest core's structured logging,
// grounded on the teacher's pkg/logger (Config + category toggles +
// global default + With()), rebuilt on zerolog instead of slog since
// zerolog is the logging library the teacher's own go.mod names (its
// handwritten logger wraps slog instead; see SPEC_FULL.md). Debug
// categories are the ingest daemon's own subsystems rather than the
// teacher's RTP/NAL/track/RTSP/WebRTC set.
package logger

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

// Level is the logging verbosity.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

func (l Level) toZerolog() zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// ParseLevel converts a string to a Level.
func ParseLevel(s string) (Level, error) {
	switch s {
	case "debug", "DEBUG":
		return LevelDebug, nil
	case "info", "INFO", "":
		return LevelInfo, nil
	case "warn", "WARN", "warning", "WARNING":
		return LevelWarn, nil
	case "error", "ERROR":
		return LevelError, nil
	default:
		return "", fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", s)
	}
}

// Format is the logger's output encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// ParseFormat converts a string to a Format.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "json", "JSON":
		return FormatJSON, nil
	case "text", "TEXT", "":
		return FormatText, nil
	default:
		return "", fmt.Errorf("invalid log format: %s (must be json or text)", s)
	}
}

// Category is a debug-only logging subsystem that can be toggled
// independently of the overall Level.
type Category string

const (
	CategoryCodec    Category = "codec"
	CategoryStream   Category = "stream"
	CategoryControl  Category = "control"
	CategoryTimeline Category = "timeline"
	CategoryIngest   Category = "ingest"
	CategoryAll      Category = "all"
)

var allCategories = []Category{CategoryCodec, CategoryStream, CategoryControl, CategoryTimeline, CategoryIngest}

// Config configures a Logger.
type Config struct {
	Level      Level
	Format     Format
	OutputFile string

	mu         sync.RWMutex
	categories map[Category]bool
}

// NewConfig returns a Config with defaults: info level, text format,
// stdout.
func NewConfig() *Config {
	return &Config{Level: LevelInfo, Format: FormatText, categories: make(map[Category]bool)}
}

// EnableCategory turns on debug logging for a category; CategoryAll
// enables every known category.
func (c *Config) EnableCategory(cat Category) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cat == CategoryAll {
		for _, k := range allCategories {
			c.categories[k] = true
		}
		return
	}
	c.categories[cat] = true
}

// IsCategoryEnabled reports whether a category's debug logging is on.
func (c *Config) IsCategoryEnabled(cat Category) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.categories[cat]
}

// Logger wraps zerolog.Logger with category-gated debug helpers.
type Logger struct {
	zerolog.Logger
	config *Config
	file   *os.File
}

// New builds a Logger from cfg. A text-format logger writing to stdout
// uses zerolog's console writer, colorized via go-colorable when
// go-isatty reports a terminal and uncolored otherwise; a log file
// (in either format) and JSON format get zerolog's JSON writer.
func New(cfg *Config) (*Logger, error) {
	var w io.Writer = os.Stdout
	var file *os.File

	if cfg.OutputFile != "" {
		f, err := os.OpenFile(cfg.OutputFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file %s: %w", cfg.OutputFile, err)
		}
		w = f
		file = f
	}

	if cfg.Format == FormatText {
		out := colorable.NewColorable(os.Stdout)
		if file == nil && isatty.IsTerminal(os.Stdout.Fd()) {
			w = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
		} else if file == nil {
			w = zerolog.ConsoleWriter{Out: os.Stdout, NoColor: true, TimeFormat: "15:04:05"}
		}
	}

	zl := zerolog.New(w).Level(cfg.Level.toZerolog()).With().Timestamp().Logger()

	return &Logger{Logger: zl, config: cfg, file: file}, nil
}

// Close closes the backing log file, if one was opened.
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// category returns a child logger tagged with the given component,
// used by the per-subsystem helper methods below.
func (l *Logger) category(cat Category) *Logger {
	child := l.Logger.With().Str("component", string(cat)).Logger()
	return &Logger{Logger: child, config: l.config, file: l.file}
}

// Codec returns the codec-category sub-logger (pkg/streamcodec, pkg/message).
func (l *Logger) Codec() *Logger { return l.category(CategoryCodec) }

// Stream returns the stream-category sub-logger (pkg/streambuffer).
func (l *Logger) Stream() *Logger { return l.category(CategoryStream) }

// Control returns the control-category sub-logger (pkg/control).
func (l *Logger) Control() *Logger { return l.category(CategoryControl) }

// Timeline returns the timeline-category sub-logger (pkg/timeline).
func (l *Logger) Timeline() *Logger { return l.category(CategoryTimeline) }

// Ingest returns the ingest-category sub-logger (pkg/ingest).
func (l *Logger) Ingest() *Logger { return l.category(CategoryIngest) }

// CategoryEnabled reports whether this logger's Config has the given
// category enabled, letting call sites skip expensive debug payload
// construction entirely when it is not.
func (l *Logger) CategoryEnabled(cat Category) bool {
	return l.config.IsCategoryEnabled(cat)
}

var (
	defaultLogger *Logger
	once          sync.Once
)

// SetDefault installs the process-wide default logger.
func SetDefault(l *Logger) { defaultLogger = l }

// Default returns the process-wide default logger, creating a
// stdout/text/info one on first use.
func Default() *Logger {
	once.Do(func() {
		if defaultLogger == nil {
			l, err := New(NewConfig())
			if err != nil {
				l = &Logger{Logger: zerolog.New(os.Stdout), config: NewConfig()}
			}
			defaultLogger = l
		}
	})
	return defaultLogger
}
