// Package log provides the logging infrastructure shared by all loom
// components.
//
// Loggers are plain *slog.Logger values passed in through constructors,
// never globals. Components add their own context with logger.With().
//
// Usage:
//
//	logger := log.New(log.Config{Level: slog.LevelDebug})
//	gateway := llm.NewGateway(cfg, logger.With("component", "llm"))
//
//	// In tests, discard output or capture it to a buffer:
//	testLogger := log.NewNop()
//	var buf bytes.Buffer
//	testLogger = log.NewWithWriter(&buf, log.Config{})
package log

import (
	"io"
	"log/slog"
	"os"
)

// Logger is a type alias for *slog.Logger. Using the standard library type
// directly keeps full compatibility with the slog ecosystem and avoids a
// custom interface. Components should accept log.Logger as a dependency.
type Logger = *slog.Logger

// Config defines logger configuration options.
type Config struct {
	// Level sets the minimum log level. Default: slog.LevelInfo
	Level slog.Level

	// JSON enables JSON format output. Default: false (text format)
	JSON bool

	// AddSource adds source file information to log entries. Default: false
	AddSource bool
}

// New creates a logger with the given configuration, writing to os.Stderr.
func New(cfg Config) Logger {
	return NewWithWriter(os.Stderr, cfg)
}

// NewWithWriter creates a logger that writes to the specified writer.
// Useful for tests or custom output destinations.
func NewWithWriter(w io.Writer, cfg Config) Logger {
	opts := &slog.HandlerOptions{
		Level:     cfg.Level,
		AddSource: cfg.AddSource,
	}

	var handler slog.Handler
	if cfg.JSON {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

// NewNop creates a logger that discards all output. Test use only;
// production code should always configure a real writer.
func NewNop() Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
