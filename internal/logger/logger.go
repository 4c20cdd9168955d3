// Package logger provides a structured, module-aware logging system built on Go's standard log/slog.
//
// # Quick Start
//
//	cfg := &logger.LoggingConfig{
//	    DefaultLevel: "info",
//	    Timezone:     "UTC",
//	    Console: &logger.ConsoleOutput{
//	        Enabled: true,
//	        Level:   "info",
//	    },
//	}
//
//	centralLogger, err := logger.NewCentralLogger(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer centralLogger.Close()
//
//	engineLogger := centralLogger.Module("counting")
//	engineLogger.Info("Engine started",
//	    logger.Int("bindings", 4),
//	    logger.Duration("debounce_window", 5*time.Second))
//
// # Module Scoping
//
// Loggers nest: centralLogger.Module("datastore").Module("ledger") logs with
// module="datastore.ledger".
//
// # Configuration
//
//	logging:
//	  default_level: "info"
//	  timezone: "Local"
//	  console:
//	    enabled: true
//	    level: "info"
//	  file_output:
//	    enabled: true
//	    path: "logs/occupancy.log"
//	    level: "debug"
//	  module_levels:
//	    datastore: "trace"
//
// # Testing
//
//	buf := &bytes.Buffer{}
//	testLogger := logger.NewSlogLogger(buf, logger.LogLevelDebug, time.UTC)
package logger

import (
	"context"
	"time"
	"unique"
)

// LogLevel represents log severity levels
type LogLevel string

const (
	LogLevelTrace LogLevel = "trace"
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Field represents a structured log field.
// Keys are interned using unique.Make() so repeated keys share one allocation.
type Field struct {
	Key   string
	Value any
}

func internKey(key string) string {
	return unique.Make(key).Value()
}

var (
	errorKey   = internKey("error")
	moduleKey  = internKey("module")
	traceIDKey = internKey("trace_id")
)

// Logger is the centralized logging interface for dependency injection
type Logger interface {
	// Module returns a logger scoped to a specific module
	Module(name string) Logger

	Trace(msg string, fields ...Field)
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)

	// With returns a logger carrying the given fields on every record
	With(fields ...Field) Logger
	// WithContext attaches the trace id found in ctx, if any
	WithContext(ctx context.Context) Logger

	// Log with explicit level
	Log(level LogLevel, msg string, fields ...Field)

	// Flush ensures all buffered logs are written
	Flush() error
}

// String creates a string field.
//
//	log.Info("Zone binding loaded",
//	    logger.String("camera", "lobby_cam"),
//	    logger.String("zone_in", "door_in"))
func String(key, value string) Field {
	return Field{Key: internKey(key), Value: value}
}

// Int creates an integer field for counts, occupancy values and ids.
func Int(key string, value int) Field {
	return Field{Key: internKey(key), Value: value}
}

// Int64 creates a 64-bit integer field.
func Int64(key string, value int64) Field {
	return Field{Key: internKey(key), Value: value}
}

// Float64 creates a 64-bit float field, rounded to 3 decimals on output.
//
//	log.Debug("Detection accepted",
//	    logger.String("label", "person"),
//	    logger.Float64("confidence", 0.8734))
func Float64(key string, value float64) Field {
	return Field{Key: internKey(key), Value: value}
}

// Bool creates a boolean field.
func Bool(key string, value bool) Field {
	return Field{Key: internKey(key), Value: value}
}

// Error creates an error field. The key is always "error".
// A nil error produces a nil value.
//
//	if err := ledger.Commit(ctx, tr); err != nil {
//	    log.Error("Failed to commit transition",
//	        logger.Error(err),
//	        logger.Int("area_id", int(tr.AreaID)))
//	}
func Error(err error) Field {
	if err == nil {
		return Field{Key: errorKey, Value: nil}
	}
	return Field{Key: errorKey, Value: err.Error()}
}

// Duration creates a duration field rendered as a string like "1.5s".
func Duration(key string, value time.Duration) Field {
	return Field{Key: internKey(key), Value: value.String()}
}

// Time creates a time field.
func Time(key string, value time.Time) Field {
	return Field{Key: internKey(key), Value: value}
}
