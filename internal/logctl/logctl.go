// Package logctl wraps charmbracelet/log into a single process-wide
// structured logger for the store's lifecycle events (open, flush),
// configured once via Init and reused everywhere.
package logctl

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

var (
	logger *log.Logger
	once   sync.Once
)

// Init builds the package logger from level and output ("stdout" or
// "stderr"; anything else falls back to stderr). Safe to call more than
// once; only the first call takes effect.
func Init(level, output string) {
	once.Do(func() {
		logger = log.NewWithOptions(outputFor(output), log.Options{
			ReportTimestamp: true,
			TimeFormat:      time.RFC3339Nano,
			Prefix:          "lsmstore",
		})
		logger.SetLevel(levelFor(level))
	})
}

// Get returns the process logger, initializing it with sane defaults
// (info level, stderr) if Init was never called.
func Get() *log.Logger {
	Init("info", "stderr")
	return logger
}

func outputFor(output string) io.Writer {
	switch output {
	case "stdout":
		return os.Stdout
	default:
		return os.Stderr
	}
}

func levelFor(level string) log.Level {
	switch level {
	case "debug":
		return log.DebugLevel
	case "warn":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}
