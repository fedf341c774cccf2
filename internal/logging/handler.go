// Package logging builds the slog handler used by the daemon and the CLI.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"golang.org/x/term"
)

// Output formats accepted by NewHandler.
const (
	FormatAuto = "auto"
	FormatText = "text"
	FormatJSON = "json"
)

// ParseLevel maps a config level name to a slog.Level. Unknown names yield info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewHandler returns a colourised tint handler for terminals and a JSON handler
// otherwise. "auto" picks based on whether out is a terminal.
func NewHandler(out io.Writer, format, level string) slog.Handler {
	lvl := ParseLevel(level)
	tty := isTerminal(out)

	switch strings.ToLower(format) {
	case FormatJSON:
		return slog.NewJSONHandler(out, &slog.HandlerOptions{Level: lvl})
	case FormatText:
		return newTint(out, lvl, !tty)
	default:
		if tty {
			return newTint(out, lvl, false)
		}
		return slog.NewJSONHandler(out, &slog.HandlerOptions{Level: lvl})
	}
}

// New is a shortcut for slog.New(NewHandler(...)).
func New(out io.Writer, format, level string) *slog.Logger {
	return slog.New(NewHandler(out, format, level))
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newTint(out io.Writer, lvl slog.Level, noColor bool) slog.Handler {
	return tint.NewHandler(out, &tint.Options{
		Level:      lvl,
		TimeFormat: time.TimeOnly,
		NoColor:    noColor,
	})
}

func isTerminal(out io.Writer) bool {
	f, ok := out.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
