// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
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

	// ComponentLevels overrides the minimum level for individual components
	// (see NewLogger). Components absent from the map use Level.
	ComponentLevels map[string]LogLevel
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// componentLevels holds the per-component overrides installed by Setup.
var componentLevels map[string]zerolog.Level

// Setup configures the global zerolog logger.
func Setup(cfg Config) zerolog.Logger {
	level := parseLevel(cfg.Level)

	// The global level must admit the most verbose component override or
	// that override could never take effect.
	global := level
	overrides := make(map[string]zerolog.Level, len(cfg.ComponentLevels))
	for component, l := range cfg.ComponentLevels {
		parsed := parseLevel(l)
		overrides[component] = parsed
		if parsed < global {
			global = parsed
		}
	}
	zerolog.SetGlobalLevel(global)
	componentLevels = overrides

	// Configure output
	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output}
	}

	// The base logger carries the configured level; component overrides
	// apply in NewLogger.
	logger := zerolog.New(output).Level(level).With().Timestamp().Logger()

	// Set as global logger
	log.Logger = logger

	return logger
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

// NewLogger creates a new logger with the given component name. A component
// named in Setup's ComponentLevels logs at its override level instead of the
// base one, so a single noisy component can be turned up or down on its own.
func NewLogger(component string) zerolog.Logger {
	logger := log.With().Str("component", component).Logger()
	if level, ok := componentLevels[component]; ok {
		logger = logger.Level(level)
	}
	return logger
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Cache operations (hit/miss, key, TTL, tags)
//   - Degraded remote operations (fallback to local tier)
//   - Tag invalidation counts
//
// Info: Normal operation events
//   - Server startup/shutdown
//   - Cache clears and sweeps
//   - Webhook payloads routed
//
// Warn: Warning conditions that don't prevent operation
//   - Corrupt cache entries discarded
//   - Compression failures (stored uncompressed)
//   - Signature verification disabled (no secret configured)
//   - Order attempt warnings (approaching the hourly ceiling)
//
// Error: Error conditions requiring attention
//   - Rejected webhook payloads (bad signature, malformed body)
//   - Customers blocked on the checkout path
//   - Configuration errors
//
// Per-Component Overrides:
//   A component can run at its own level via Config.ComponentLevels
//   (STORECACHE_LOG_COMPONENTS, e.g. "cache:debug,webhook:warn"), useful for
//   debugging one engine component without flooding the rest.
//
// Context Fields:
//   - component: engine component (cache, domaincache, orderlimit, webhook, server)
//   - key: cache key
//   - tags: invalidation tags
//   - category: domain cache category
//   - customer_id / session_id: checkout attempt identity
//   - resource_type / action: webhook classification
