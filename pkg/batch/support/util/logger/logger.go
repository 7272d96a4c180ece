// Package logger provides the leveled logging utility used throughout recordbatch.
// It wraps the standard `log` package and filters messages based on the configured level.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync/atomic"
)

// LogLevel is a type representing the logging level.
type LogLevel int32

const (
	// LevelDebug is used for per-record progress and detailed diagnostics.
	LevelDebug LogLevel = iota
	// LevelInfo is used for run lifecycle events such as state changes and flushed batches.
	LevelInfo
	// LevelWarn is used for per-record failures that the pipeline isolates and counts.
	LevelWarn
	// LevelError is used for failures that stop a batch or the whole run.
	LevelError
	// LevelFatal is used for messages that terminate the process.
	LevelFatal
)

// String returns the canonical upper-case name of the level.
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelFatal:
		return "FATAL"
	}
	return fmt.Sprintf("LEVEL(%d)", int32(l))
}

// logLevel is the currently set global log level. Messages below it are discarded.
var logLevel atomic.Int32

var std = log.New(os.Stderr, "", log.LstdFlags)

func init() {
	logLevel.Store(int32(LevelInfo))
}

// ParseLevel converts a level name (case-insensitive) into a LogLevel.
// "TRACE" is accepted as an alias of DEBUG and "SILENT" as FATAL.
func ParseLevel(level string) (LogLevel, error) {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG", "TRACE":
		return LevelDebug, nil
	case "INFO", "":
		return LevelInfo, nil
	case "WARN", "WARNING":
		return LevelWarn, nil
	case "ERROR":
		return LevelError, nil
	case "FATAL", "SILENT":
		return LevelFatal, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level '%s'", level)
}

// SetLogLevel sets the global log level.
// Valid values are "DEBUG", "INFO", "WARN", "ERROR", "FATAL" (case-insensitive).
// If an invalid value is specified, INFO is used and a warning is written.
func SetLogLevel(level string) {
	l, err := ParseLevel(level)
	if err != nil {
		std.Printf("[WARN] %v. Defaulting to INFO level.", err)
	}
	logLevel.Store(int32(l))
}

// GetLogLevel returns the current global log level.
func GetLogLevel() LogLevel {
	return LogLevel(logLevel.Load())
}

// SetOutput redirects log output. Tests use it to capture messages.
func SetOutput(w io.Writer) {
	std.SetOutput(w)
}

func enabled(l LogLevel) bool {
	return LogLevel(logLevel.Load()) <= l
}

// Debugf formats and outputs a DEBUG level log message.
func Debugf(format string, v ...interface{}) {
	if enabled(LevelDebug) {
		std.Printf("[DEBUG] "+format, v...)
	}
}

// Infof formats and outputs an INFO level log message.
func Infof(format string, v ...interface{}) {
	if enabled(LevelInfo) {
		std.Printf("[INFO] "+format, v...)
	}
}

// Warnf formats and outputs a WARN level log message.
func Warnf(format string, v ...interface{}) {
	if enabled(LevelWarn) {
		std.Printf("[WARN] "+format, v...)
	}
}

// Errorf formats and outputs an ERROR level log message.
func Errorf(format string, v ...interface{}) {
	if enabled(LevelError) {
		std.Printf("[ERROR] "+format, v...)
	}
}

// Fatalf outputs a FATAL level log message and terminates the program with os.Exit(1).
func Fatalf(format string, v ...interface{}) {
	std.Fatalf("[FATAL] "+format, v...)
}
