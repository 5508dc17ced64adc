package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New returns the JSON logger shared by all services, tagged with the
// service name.
func New(env, service string) zerolog.Logger {
	return newWithWriter(os.Stdout, env, service)
}

func newWithWriter(w io.Writer, env, service string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	l := zerolog.New(w).With().Timestamp().Str("service", service).Logger()
	if env == "dev" {
		return l.Level(zerolog.DebugLevel)
	}
	return l.Level(zerolog.InfoLevel)
}
