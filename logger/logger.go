// Package logger is the structured logging front end of go-cbm.
//
// The bus engines report handshake failures, bus resets and upload results
// through the Logger interface as a message plus key-value pairs. NewSlog
// backs it with log/slog; any other framework can be plugged in by
// implementing Logger and passing it with the WithLogger option of each
// package, or globally with SetLogger.
package logger

// Level is a logging severity. Lower levels are more verbose.
type Level = int8

const (
	// DebugLevel covers per-transfer detail such as handshake failures.
	// It is noisy on a busy bus.
	DebugLevel Level = iota - 1
	// InfoLevel is the default level.
	InfoLevel
	// WarnLevel reports conditions the bus recovers from, e.g. no drive
	// answering after a reset.
	WarnLevel
	// ErrorLevel reports failed operations.
	ErrorLevel
	// FatalLevel logs and exits the process.
	FatalLevel
)

// Logger is a leveled, structured logger.
//
// keysAndValues alternate between a string key and its value.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
	// Fatal logs at FatalLevel, then calls os.Exit(1) regardless of the
	// level setting.
	Fatal(msg string, keysAndValues ...any)

	// With returns a child logger that adds keyValues to every entry. The
	// parent is not affected.
	With(keyValues ...any) Logger

	Level() Level
	SetLevel(level Level)
}
