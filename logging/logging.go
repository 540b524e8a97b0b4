// Package logging builds the zerolog logger shared by every component.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

// New returns a logger writing to stderr. format "console" forces the human
// readable writer, "json" forces JSON; anything else picks console only when
// stderr is a terminal.
func New(level, format string) zerolog.Logger {
	return NewWithWriter(os.Stderr, level, format, isatty.IsTerminal(os.Stderr.Fd()))
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(w io.Writer, level, format string, tty bool) zerolog.Logger {
	console := false
	switch strings.ToLower(format) {
	case "console":
		console = true
	case "json":
	default:
		console = tty
	}
	if console {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.DateTime, NoColor: !tty}
	}
	return zerolog.New(w).Level(ParseLevel(level)).With().Timestamp().Logger()
}

// ParseLevel maps a config string to a zerolog level, defaulting to info.
func ParseLevel(s string) zerolog.Level {
	if s == "" {
		return zerolog.InfoLevel
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(s))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// Nop discards everything.
func Nop() zerolog.Logger { return zerolog.Nop() }
