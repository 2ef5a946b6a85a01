package logging

import (
	"io"
	"os"
	"time"

	"github.com/natefinch/lumberjack"
	"github.com/niels/ctf-server/pkg/config"
	"github.com/rs/zerolog"
)

var (
	// Global logger instance
	globalLogger = zerolog.Nop()
)

// InitGlobalLogger initializes the global logger from the debug flag and the logging section of cfg
func InitGlobalLogger(debug bool, cfg *config.Config) {
	globalLogger = NewLogger(debug, outputFor(debug, cfg))
}

// outputFor picks the log destination.
// File logging rotates through lumberjack; debug mode always mirrors to stderr.
func outputFor(debug bool, cfg *config.Config) io.Writer {
	if cfg == nil || !cfg.Logging.LogToFile {
		if debug {
			return os.Stderr
		}
		// A server without debug or file logging still reports warnings and errors
		return levelFilter{w: os.Stderr, min: zerolog.WarnLevel}
	}

	fileLogger := &lumberjack.Logger{
		Filename:   cfg.Logging.LogFilePath,
		MaxSize:    cfg.Logging.MaxSize, // megabytes
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAge, // days
		Compress:   cfg.Logging.Compress,
	}

	if debug {
		return io.MultiWriter(fileLogger, os.Stderr)
	}

	// Announce the file destination once on stderr, then log to the file only
	tempLogger := NewLogger(false, os.Stderr)
	tempLogger.Info().Str("path", cfg.Logging.LogFilePath).Msg("Logging to file")
	return fileLogger
}

// levelFilter forwards only events at or above min
type levelFilter struct {
	w   io.Writer
	min zerolog.Level
}

func (f levelFilter) Write(p []byte) (int, error) {
	return f.w.Write(p)
}

// WriteLevel implements zerolog.LevelWriter
func (f levelFilter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if level < f.min {
		return len(p), nil
	}
	return f.w.Write(p)
}

// NewLogger creates a new zerolog logger with the specified debug level
func NewLogger(debug bool, output io.Writer) zerolog.Logger {
	// If no output is specified, use stderr
	if output == nil {
		output = os.Stderr
	}

	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}

	return zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Caller().
		Logger()
}

// Debug logs a message at debug level
func Debug(msg string) {
	globalLogger.Debug().Msg(msg)
}

// Info logs a message at info level
func Info(msg string) {
	globalLogger.Info().Msg(msg)
}

// Warn logs a message at warn level
func Warn(msg string) {
	globalLogger.Warn().Msg(msg)
}

// Error logs a message at error level
func Error(msg string) {
	globalLogger.Error().Msg(msg)
}

// DebugWith logs a message at debug level with additional context
func DebugWith(msg string, fields map[string]interface{}) {
	logWith(globalLogger.Debug(), msg, fields)
}

// InfoWith logs a message at info level with additional context
func InfoWith(msg string, fields map[string]interface{}) {
	logWith(globalLogger.Info(), msg, fields)
}

// WarnWith logs a message at warn level with additional context
func WarnWith(msg string, fields map[string]interface{}) {
	logWith(globalLogger.Warn(), msg, fields)
}

// ErrorWith logs a message at error level with additional context
func ErrorWith(msg string, fields map[string]interface{}) {
	logWith(globalLogger.Error(), msg, fields)
}

func logWith(event *zerolog.Event, msg string, fields map[string]interface{}) {
	for k, v := range fields {
		event = addField(event, k, v)
	}
	event.Msg(msg)
}

// GetLogger returns the global logger instance
func GetLogger() zerolog.Logger {
	return globalLogger
}

// SetLogger replaces the global logger, mainly for tests
func SetLogger(logger zerolog.Logger) {
	globalLogger = logger
}

// WithComponent returns a logger with the component field set
func WithComponent(component string) zerolog.Logger {
	return globalLogger.With().Str("component", component).Logger()
}

// WithRequest returns a component logger tagged with a request id
func WithRequest(component, requestID string) zerolog.Logger {
	return globalLogger.With().
		Str("component", component).
		Str("request_id", requestID).
		Logger()
}

// addField adds a field to the log event based on its type
func addField(event *zerolog.Event, key string, value interface{}) *zerolog.Event {
	switch v := value.(type) {
	case string:
		return event.Str(key, v)
	case int:
		return event.Int(key, v)
	case int64:
		return event.Int64(key, v)
	case float64:
		return event.Float64(key, v)
	case bool:
		return event.Bool(key, v)
	case time.Time:
		return event.Time(key, v)
	case time.Duration:
		return event.Dur(key, v)
	case []string:
		return event.Strs(key, v)
	case error:
		return event.AnErr(key, v)
	default:
		return event.Interface(key, v)
	}
}
