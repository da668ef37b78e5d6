package main

import (
	"os"

	"github.com/rs/zerolog"
)

const logDate = `2006-01-02T15:04:05.000-07:00`

// newLogger builds the process-wide logger. Info by default; --verbose
// lowers it to debug.
func newLogger(verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}

	return zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: logDate,
	}).Level(level).With().Timestamp().Logger()
}
