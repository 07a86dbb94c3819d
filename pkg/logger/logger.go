// Package logger is a small facade over one or more logging backends.
// The worker and the HTTP server log through the same package-level
// functions; which backends receive the output is decided once at
// startup via Init.
package logger

// Backend is a destination for log output. Keyvals are alternating
// key/value pairs attached to the message.
type Backend interface {
	Log(message string, keyvals ...any)
	Debug(message string, keyvals ...any)
	Info(message string, keyvals ...any)
	Warn(message string, keyvals ...any)
	Error(message string, keyvals ...any)
	Fatal(message string, keyvals ...any)
}

var backends []Backend

// Init configures the backends used by all logging functions. Calls
// made before Init are dropped. Call it once during startup; it is not
// safe to call concurrently with logging.
func Init(instances ...Backend) {
	backends = instances
}

func each(fn func(Backend)) {
	for _, b := range backends {
		fn(b)
	}
}

// Log writes at the backend's default level.
func Log(message string, keyvals ...any) {
	each(func(b Backend) { b.Log(message, keyvals...) })
}

// Debug writes at DEBUG level.
func Debug(message string, keyvals ...any) {
	each(func(b Backend) { b.Debug(message, keyvals...) })
}

// Info writes at INFO level.
func Info(message string, keyvals ...any) {
	each(func(b Backend) { b.Info(message, keyvals...) })
}

// Warn writes at WARN level.
func Warn(message string, keyvals ...any) {
	each(func(b Backend) { b.Warn(message, keyvals...) })
}

// Error writes at ERROR level.
func Error(message string, keyvals ...any) {
	each(func(b Backend) { b.Error(message, keyvals...) })
}

// Fatal writes at FATAL level. The console backend exits the process
// after writing.
func Fatal(message string, keyvals ...any) {
	each(func(b Backend) { b.Fatal(message, keyvals...) })
}
