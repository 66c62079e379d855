// Package logging provides the leveled console logger used across the
// runner, an optional structured JSON file sink, and helpers for carrying a
// *slog.Logger through a context.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/backmassage/sfmrunner/internal/config"
	"github.com/backmassage/sfmrunner/internal/term"
)

// Logger writes human-readable leveled lines to the console and mirrors each
// line as a structured record to an optional JSON log file.
type Logger struct {
	mu      sync.Mutex
	out     io.Writer
	errOut  io.Writer
	verbose bool

	file       *os.File
	structured *slog.Logger
}

// NewLogger configures terminal colors from cfg, writes to stdout/stderr and
// opens cfg.LogFile when set. Call Close when done.
func NewLogger(cfg *config.Config) (*Logger, error) {
	term.Configure(cfg.ColorMode, os.Stdout)
	return newLogger(cfg, os.Stdout, os.Stderr)
}

// NewWriterLogger is NewLogger with explicit console writers. Colors are
// left as configured by the caller.
func NewWriterLogger(cfg *config.Config, out, errOut io.Writer) (*Logger, error) {
	return newLogger(cfg, out, errOut)
}

func newLogger(cfg *config.Config, out, errOut io.Writer) (*Logger, error) {
	l := &Logger{
		out:        out,
		errOut:     errOut,
		verbose:    cfg.Verbose,
		structured: discard(),
	}

	if cfg.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o755); err != nil {
			return nil, err
		}
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, err
		}
		l.file = f
		l.structured = slog.New(jsonHandler(f, cfg.Verbose))
	}
	return l, nil
}

// jsonHandler writes records with UTC RFC3339Nano timestamps.
func jsonHandler(w io.Writer, debug bool) slog.Handler {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && a.Value.Kind() == slog.KindTime {
				a.Value = slog.StringValue(a.Value.Time().UTC().Format(time.RFC3339Nano))
			}
			return a
		},
	})
}

func discard() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// Close closes the log file if one was opened.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		l.structured = discard()
		return err
	}
	return nil
}

// Structured returns the structured logger backing the file sink. It
// discards everything when no log file is configured.
func (l *Logger) Structured() *slog.Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.structured
}

// Verbose reports whether debug lines are shown.
func (l *Logger) Verbose() bool { return l.verbose }

func (l *Logger) line(level, color string, slogLevel slog.Level, text string) {
	ts := time.Now().Format("2006-01-02 15:04:05")
	l.mu.Lock()
	defer l.mu.Unlock()

	out := l.out
	if level == "ERROR" {
		out = l.errOut
	}
	if color != "" {
		_, _ = io.WriteString(out, ts+" "+color+"["+level+"]"+term.NC+" "+text+"\n")
	} else {
		_, _ = io.WriteString(out, ts+" ["+level+"] "+text+"\n")
	}
	l.structured.Log(context.Background(), slogLevel, text, "level_name", level)
}

// Info logs at INFO level (blue).
func (l *Logger) Info(format string, args ...interface{}) {
	l.line("INFO", term.Blue, slog.LevelInfo, fmt.Sprintf(format, args...))
}

// Success logs at SUCCESS level (green).
func (l *Logger) Success(format string, args ...interface{}) {
	l.line("SUCCESS", term.Green, slog.LevelInfo, fmt.Sprintf(format, args...))
}

// Warn logs at WARN level (yellow).
func (l *Logger) Warn(format string, args ...interface{}) {
	l.line("WARN", term.Yellow, slog.LevelWarn, fmt.Sprintf(format, args...))
}

// Error logs at ERROR level (red) to the error writer.
func (l *Logger) Error(format string, args ...interface{}) {
	l.line("ERROR", term.Red, slog.LevelError, fmt.Sprintf(format, args...))
}

// Debug logs at DEBUG level (cyan) only when verbose.
func (l *Logger) Debug(format string, args ...interface{}) {
	if !l.verbose {
		return
	}
	l.line("DEBUG", term.Cyan, slog.LevelDebug, fmt.Sprintf(format, args...))
}

// Blank writes an empty separator line to the console only.
func (l *Logger) Blank() {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = io.WriteString(l.out, "\n")
}
