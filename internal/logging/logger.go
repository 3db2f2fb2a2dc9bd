package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// New builds the console logger for environment and installs it as the
// global zerolog logger used by the library packages.
func New(environment string) zerolog.Logger {
	return NewWithWriter(environment, os.Stderr)
}

// NewWithWriter is New writing to out.
func NewWithWriter(environment string, out io.Writer) zerolog.Logger {
	production := environment == "PROD" || environment == "production"
	output := zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.RFC3339,
		NoColor:    production,
	}

	logger := zerolog.New(output).With().
		Timestamp().
		Str("env", environment).
		Logger()

	if production {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	log.Logger = logger
	return logger
}
