package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

const serviceName = "coinchat"

var zlog = zerolog.New(io.Discard)

// InitStructured configures the process-wide zerolog logger.
// Development gets a human-readable console writer, everything else JSON on stdout.
func InitStructured(env string) {
	var w io.Writer = os.Stdout
	level := zerolog.InfoLevel

	switch env {
	case "development", "dev":
		w = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		level = zerolog.DebugLevel
	case "test":
		w = io.Discard
	}

	zerolog.TimeFieldFormat = time.RFC3339
	zlog = zerolog.New(w).Level(level).With().
		Timestamp().
		Str("service", serviceName).
		Logger()
}

// GetLogger returns the global zerolog logger
func GetLogger() *zerolog.Logger {
	return &zlog
}

// WithRequestID returns a logger with request_id field
func WithRequestID(requestID string) *zerolog.Logger {
	l := zlog.With().Str("request_id", requestID).Logger()
	return &l
}

// WithUserID returns a logger with user_id field
func WithUserID(userID string) *zerolog.Logger {
	l := zlog.With().Str("user_id", userID).Logger()
	return &l
}

// WithComponent tags every event with the emitting component (wallet, payment, gateway...).
func WithComponent(component string) *zerolog.Logger {
	l := zlog.With().Str("component", component).Logger()
	return &l
}
