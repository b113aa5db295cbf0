// Package logger holds the process-wide logger the protocol packages
// report through.
//
// The default logger writes zerolog console output to stdout. Under `go
// test` it is a no-op so protocol runs with many in-process parties stay
// quiet; SetOutput or Set restore output when a test wants it.
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

var logger zerolog.Logger

func init() {
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}
	logger = zerolog.New(output).With().Timestamp().Logger()

	if strings.HasSuffix(os.Args[0], ".test") {
		logger = zerolog.Nop()
	}
}

// SetOutput redirects the global logger.
func SetOutput(w io.Writer) {
	logger = logger.Output(w)
}

// Set replaces the global logger.
func Set(l zerolog.Logger) {
	logger = l
}

// Disable silences the global logger.
func Disable() {
	logger = zerolog.Nop()
}

// Logger returns the global logger. Sessions derive per-party subloggers
// from it.
func Logger() zerolog.Logger {
	return logger
}
