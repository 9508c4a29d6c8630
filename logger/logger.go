package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger represents a structured logger
type Logger struct {
	logger zerolog.Logger
}

// Fields represents log fields
type Fields map[string]interface{}

var (
	// Default is the default logger instance
	Default *Logger
)

// Init initializes the logger from LOG_LEVEL and LOG_FILE
func Init() {
	InitWith(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FILE"))
}

// InitWith initializes the logger with an explicit level and optional log file.
// The console writer is always attached; the file, when given, receives the
// same events in JSON form.
func InitWith(levelStr, logFile string) {
	level, levelErr := parseLevel(levelStr)

	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.SetGlobalLevel(level)

	var output io.Writer = zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}

	var fileErr error
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			fileErr = err
		} else {
			output = zerolog.MultiLevelWriter(output, f)
		}
	}

	logger := zerolog.New(output).With().Timestamp().Logger()
	Default = &Logger{logger: logger}

	if levelErr != nil {
		Default.Warn().Err(levelErr).Str("requested", levelStr).Msg("Invalid LOG_LEVEL, defaulting to info")
	}
	if fileErr != nil {
		Default.Warn().Err(fileErr).Str("path", logFile).Msg("Failed to open log file, logging to console only")
	}

	Default.Info().
		Str("level", level.String()).
		Msg("Logger initialized")
}

// parseLevel maps LOG_LEVEL to a zerolog level. An empty value picks a level
// from TOPN_ENVIRONMENT.
func parseLevel(levelStr string) (zerolog.Level, error) {
	if levelStr == "" {
		if os.Getenv("TOPN_ENVIRONMENT") == "production" {
			return zerolog.InfoLevel, nil
		}
		return zerolog.DebugLevel, nil
	}

	switch strings.ToUpper(levelStr) {
	case "WARNING":
		return zerolog.WarnLevel, nil
	case "CRITICAL":
		return zerolog.FatalLevel, nil
	}

	level, err := zerolog.ParseLevel(strings.ToLower(levelStr))
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel, fmt.Errorf("unknown level %q", levelStr)
	}
	return level, nil
}

// New wraps an existing zerolog logger, mostly useful in tests
func New(l zerolog.Logger) *Logger {
	return &Logger{logger: l}
}

// WithFields creates a new logger with fields
func (l *Logger) WithFields(fields Fields) *Logger {
	newLogger := l.logger.With()
	for k, v := range fields {
		newLogger = newLogger.Interface(k, v)
	}
	return &Logger{logger: newLogger.Logger()}
}

// WithField creates a new logger with a single field
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{logger: l.logger.With().Interface(key, value).Logger()}
}

// Debug returns a debug event
func (l *Logger) Debug() *zerolog.Event {
	return l.logger.Debug()
}

// Info returns an info event
func (l *Logger) Info() *zerolog.Event {
	return l.logger.Info()
}

// Warn returns a warn event
func (l *Logger) Warn() *zerolog.Event {
	return l.logger.Warn()
}

// Error returns an error event
func (l *Logger) Error() *zerolog.Event {
	return l.logger.Error()
}

// Fatal returns a fatal event
func (l *Logger) Fatal() *zerolog.Event {
	return l.logger.Fatal()
}

// WithError adds an error to the logger
func (l *Logger) WithError(err error) *Logger {
	return &Logger{logger: l.logger.With().Err(err).Logger()}
}

// Global functions for backward compatibility

// Debug logs a debug message
func Debug(format string, v ...interface{}) {
	ensure()
	Default.Debug().Msgf(format, v...)
}

// Info logs an info message
func Info(format string, v ...interface{}) {
	ensure()
	Default.Info().Msgf(format, v...)
}

// Warn logs a warning message
func Warn(format string, v ...interface{}) {
	ensure()
	Default.Warn().Msgf(format, v...)
}

// Error logs an error message
func Error(format string, v ...interface{}) {
	ensure()
	Default.Error().Msgf(format, v...)
}

// Fatal logs a fatal message and exits
func Fatal(format string, v ...interface{}) {
	ensure()
	Default.Fatal().Msgf(format, v...)
}

// IsDebugEnabled returns true if debug logging is enabled
func IsDebugEnabled() bool {
	ensure()
	return zerolog.GlobalLevel() <= zerolog.DebugLevel
}

// ForScraper creates a logger for a specific marketplace scraper
func ForScraper(name string) *Logger {
	ensure()
	return Default.WithField("scraper", name)
}

// ForMonitor creates a logger for the monitor
func ForMonitor() *Logger {
	ensure()
	return Default.WithField("component", "monitor")
}

// ForStore creates a logger for the store API client
func ForStore() *Logger {
	ensure()
	return Default.WithField("component", "store")
}

// ForPublisher creates a logger for the publisher
func ForPublisher() *Logger {
	ensure()
	return Default.WithField("component", "publisher")
}

// ForCache creates a logger for the cache
func ForCache() *Logger {
	ensure()
	return Default.WithField("component", "cache")
}

// LogError is a convenience method for logging errors with context
func LogError(component string, err error, format string, v ...interface{}) {
	ensure()
	msg := fmt.Sprintf(format, v...)
	Default.Error().
		Str("component", component).
		Err(err).
		Msg(msg)
}

func ensure() {
	if Default == nil {
		Init()
	}
}
