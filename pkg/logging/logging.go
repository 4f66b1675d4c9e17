// Package logging holds the logger shared by the projector packages.
//
// By default nothing is logged. Install a logger built by New, or any
// *slog.Logger, with SetLogger:
//
//	l, err := logging.New(os.Stderr, "debug", "text")
//	if err != nil {
//	    return err
//	}
//	logging.SetLogger(l)
//
// Levels used:
//   - [slog.LevelDebug]: kernel launches, buffer allocation and release
//   - [slog.LevelInfo]: geometry summaries, traversal selection
//   - [slog.LevelWarn]: pool trims under memory pressure
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
)

var (
	silent  = slog.New(slog.DiscardHandler)
	current atomic.Pointer[slog.Logger]
)

// SetLogger installs l for all projector packages. nil restores the silent
// default. Safe for concurrent use with Logger.
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = silent
	}
	current.Store(l)
}

// Logger returns the installed logger, or a silent one.
func Logger() *slog.Logger {
	if l := current.Load(); l != nil {
		return l
	}
	return silent
}

// ParseLevel accepts debug, info, warn and error, optionally with an offset
// such as "debug+2". The empty string is info.
func ParseLevel(s string) (slog.Level, error) {
	if s == "" {
		return slog.LevelInfo, nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("unknown log level %q: %w", s, err)
	}
	return level, nil
}

// CheckFormat reports whether format names a handler New can build.
func CheckFormat(format string) error {
	switch strings.ToLower(format) {
	case "", "text", "json":
		return nil
	}
	return fmt.Errorf("unknown log format %q", format)
}

// New builds a logger writing to w. format is "text" (the default) or
// "json".
func New(w io.Writer, level, format string) (*slog.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	if err := CheckFormat(format); err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}
