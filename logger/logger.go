package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps a zerolog.Logger with component scoping helpers.
type Logger struct {
	logger zerolog.Logger
}

// Default is the process-wide logger instance.
var Default *Logger

// Init configures zerolog and creates the default logger. The level comes
// from LOG_LEVEL, falling back to debug outside production.
func Init() {
	level := getLogLevel()

	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.SetGlobalLevel(level)

	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}

	Default = &Logger{logger: zerolog.New(output).With().Timestamp().Logger()}

	Default.Info().
		Str("level", level.String()).
		Msg("Logger initialized")
}

func getLogLevel() zerolog.Level {
	levelStr := os.Getenv("LOG_LEVEL")
	if levelStr == "" {
		if os.Getenv("ENVIRONMENT") == "production" {
			return zerolog.InfoLevel
		}
		return zerolog.DebugLevel
	}

	level, err := zerolog.ParseLevel(levelStr)
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}

// ForComponent returns a logger scoped to a named component.
func ForComponent(name string) *Logger {
	if Default == nil {
		Init()
	}
	return &Logger{logger: Default.logger.With().Str("component", name).Logger()}
}

// ForRetailer returns a logger scoped to one retailer's jobs.
func ForRetailer(name string) *Logger {
	if Default == nil {
		Init()
	}
	return &Logger{logger: Default.logger.With().Str("retailer", name).Logger()}
}

// WithField returns a logger with an extra field attached.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{logger: l.logger.With().Interface(key, value).Logger()}
}

// WithError returns a logger with an error attached.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{logger: l.logger.With().Err(err).Logger()}
}

// Debug returns a debug event.
func (l *Logger) Debug() *zerolog.Event { return l.logger.Debug() }

// Info returns an info event.
func (l *Logger) Info() *zerolog.Event { return l.logger.Info() }

// Warn returns a warn event.
func (l *Logger) Warn() *zerolog.Event { return l.logger.Warn() }

// Error returns an error event.
func (l *Logger) Error() *zerolog.Event { return l.logger.Error() }

// Fatal returns a fatal event.
func (l *Logger) Fatal() *zerolog.Event { return l.logger.Fatal() }

// Info logs a formatted info message on the default logger.
func Info(format string, v ...interface{}) {
	if Default == nil {
		Init()
	}
	Default.Info().Msgf(format, v...)
}

// Warn logs a formatted warning on the default logger.
func Warn(format string, v ...interface{}) {
	if Default == nil {
		Init()
	}
	Default.Warn().Msgf(format, v...)
}

// Error logs a formatted error message on the default logger.
func Error(format string, v ...interface{}) {
	if Default == nil {
		Init()
	}
	Default.Error().Msgf(format, v...)
}

// Fatal logs a formatted fatal message and exits.
func Fatal(format string, v ...interface{}) {
	if Default == nil {
		Init()
	}
	Default.Fatal().Msgf(format, v...)
}
