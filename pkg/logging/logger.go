// Package logging configures the zerolog logger shared by the exporter.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs per-request flow and state transitions.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs page progress and the run summary.
	LevelInfo LogLevel = "info"

	// LevelWarn logs throttling and degraded optional services.
	LevelWarn LogLevel = "warn"

	// LevelError logs aborts only.
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer

	// RunID is attached to every line as run_id when set.
	RunID string
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	var output io.Writer = cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output}
	}

	ctx := zerolog.New(output).With().Timestamp()
	if cfg.RunID != "" {
		ctx = ctx.Str("run_id", cfg.RunID)
	}
	logger := ctx.Logger()

	log.Logger = logger

	return logger
}

// ValidateLevel reports an error for level names Setup would not recognize.
func ValidateLevel(level string) error {
	switch strings.ToLower(level) {
	case "debug", "info", "warn", "warning", "error":
		return nil
	default:
		return fmt.Errorf("unknown log level %q", level)
	}
}

// parseLevel converts LogLevel to zerolog.Level.
func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(string(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: request flow
//   - Listing and detail requests (endpoint, query)
//   - Conditional requests and 304 cache reuse
//   - Paginator state transitions
//   - Quota header values
//
// Info: run progress
//   - Export start with page size and fan-out bound
//   - One line per written page (page, conversations, file)
//   - Export summary
//
// Warn: degraded but continuing
//   - Throttling sleep (remaining, sleep, reset_at)
//   - Missing or malformed quota header
//   - Cache or Pushgateway failures
//
// Error: the run aborts
//   - Failed listing or detail request
//   - Output write failure
//   - Configuration errors
//
// Context Fields:
//   - run_id: Export run identifier, also part of every file name
//   - page: 1-based page index
//   - conversation_id: Conversation being normalized
//   - endpoint: Intercom route label
//   - status: HTTP status code
//   - error_class: client, server, rate_limit, network, decode
//   - remaining: X-RateLimit-Remaining value
//   - file: Output file name
