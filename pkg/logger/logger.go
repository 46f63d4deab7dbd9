package logger

// Init sets up a console logger so bootstrap messages are visible before
// the environment is known. InitStructured replaces it once config is loaded.
func Init() {
	InitStructured("development")
}

// Info logs a printf-style message at info level.
func Info(format string, args ...interface{}) {
	zlog.Info().Msgf(format, args...)
}

// Warn logs a printf-style message at warn level.
func Warn(format string, args ...interface{}) {
	zlog.Warn().Msgf(format, args...)
}

// Error logs a printf-style message at error level.
func Error(format string, args ...interface{}) {
	zlog.Error().Msgf(format, args...)
}
