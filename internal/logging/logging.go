// Package logging configures the process-wide zerolog logger.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Common field names.
const (
	FieldRun      = "run"
	FieldTask     = "task"
	FieldRole     = "role"
	FieldAttempt  = "attempt"
	FieldProvider = "provider"
)

// Setup sets the global level and output. An empty level means info.
// With pretty set, output goes through a human-readable console writer.
func Setup(level string, pretty bool, w io.Writer) error {
	if strings.TrimSpace(level) == "" {
		level = "info"
	}
	l, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(l)

	if w == nil {
		w = os.Stderr
	}
	if pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	log.Logger = zerolog.New(w).With().Timestamp().Logger()
	return nil
}
