// Package debug provides category-gated debug logging for umfrage.
//
// Categories select WHAT is logged (UMFRAGE_DEBUG or logging.debug in the
// config file); the level selects HOW MUCH (UMFRAGE_LOG_LEVEL or
// logging.level). Environment values win over the config file.
//
//	debug.Log("storage", "exec", "stmt", stmt)
//
// Categories: storage, codec, files, lifecycle, transport, auth, config, all.
// Levels: ERROR, WARN, INFO, DEBUG, TRACE.
package debug

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// LevelTrace sits below slog.LevelDebug. Statement text is only logged
// untruncated at this level.
const LevelTrace = slog.LevelDebug - 4

// categories is written by Init at startup and only read afterwards.
var categories map[string]bool

func init() {
	categories = parseCategories(os.Getenv("UMFRAGE_DEBUG"))
}

// Options configures the process-wide logger.
type Options struct {
	Categories string
	Level      string
	Format     string // "text" or "json"
	Output     io.Writer
}

// Init installs the default slog logger and the enabled debug categories.
// It returns the effective level.
func Init(opts Options) slog.Level {
	cats := os.Getenv("UMFRAGE_DEBUG")
	if cats == "" {
		cats = opts.Categories
	}
	categories = parseCategories(cats)

	level := os.Getenv("UMFRAGE_LOG_LEVEL")
	if level == "" {
		level = opts.Level
	}
	slogLevel := ParseLevel(level)

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	handlerOpts := &slog.HandlerOptions{Level: slogLevel}
	var handler slog.Handler
	if strings.EqualFold(opts.Format, "json") {
		handler = slog.NewJSONHandler(out, handlerOpts)
	} else {
		handler = slog.NewTextHandler(out, handlerOpts)
	}
	slog.SetDefault(slog.New(handler))
	return slogLevel
}

// Enabled reports whether debug output is active for the given category.
func Enabled(category string) bool {
	return categories["all"] || categories[category]
}

// Log emits a debug message tagged with category. It is a no-op when the
// category is disabled.
func Log(category string, msg string, args ...any) {
	if !Enabled(category) {
		return
	}
	slog.Debug(msg, append([]any{"debug", category}, args...)...)
}

// Trace emits a trace-level message for the given category.
func Trace(category string, msg string, args ...any) {
	if !TraceEnabled(category) {
		return
	}
	slog.Log(context.Background(), LevelTrace, msg, append([]any{"debug", category}, args...)...)
}

// TraceEnabled reports whether TRACE output is active for the given category.
func TraceEnabled(category string) bool {
	return Enabled(category) && slog.Default().Enabled(context.Background(), LevelTrace)
}

// ParseLevel converts a level string to a slog.Level. Unknown values map to INFO.
func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return LevelTrace
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Truncate shortens s to maxLen bytes, appending "..." when cut.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

func parseCategories(s string) map[string]bool {
	m := make(map[string]bool)
	for _, cat := range strings.Split(s, ",") {
		cat = strings.TrimSpace(strings.ToLower(cat))
		if cat != "" {
			m[cat] = true
		}
	}
	return m
}
