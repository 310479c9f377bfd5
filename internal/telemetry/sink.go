// Package telemetry receives per-attempt model invocation events.
// Sinks are best effort: nothing they do may change the outcome of a run.
package telemetry

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Outcome classifies a single model invocation attempt.
type Outcome string

const (
	OutcomeSuccess     Outcome = "success"
	OutcomeRateLimited Outcome = "rate_limited"
	OutcomeError       Outcome = "error"
	OutcomeCanceled    Outcome = "canceled"
)

// Event describes one attempt at invoking a model for a pipeline stage.
type Event struct {
	RunID    string
	Stage    string // task name
	Role     string // role that executed the attempt
	Provider string
	Attempt  int // 1-based
	Outcome  Outcome
	Wait     time.Duration // backoff wait that preceded this attempt
	Elapsed  time.Duration // duration of the call itself
	Err      error
	Time     time.Time
}

// Sink records invocation events.
type Sink interface {
	Record(Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Event)

func (f SinkFunc) Record(e Event) { f(e) }

// Multi fans an event out to several sinks. A sink that panics is logged
// and skipped.
type Multi []Sink

func (m Multi) Record(e Event) {
	for _, s := range m {
		if s == nil {
			continue
		}
		record(s, e)
	}
}

func record(s Sink, e Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Warn().Interface("panic", r).Str("stage", e.Stage).Msg("telemetry sink panicked")
		}
	}()
	s.Record(e)
}

// LogSink writes every event to a zerolog logger.
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink creates a sink that logs through logger.
func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Record(e Event) {
	var ev *zerolog.Event
	switch e.Outcome {
	case OutcomeSuccess:
		ev = s.logger.Debug()
	case OutcomeRateLimited:
		ev = s.logger.Warn()
	default:
		ev = s.logger.Error()
	}
	ev = ev.Str("run", e.RunID).
		Str("task", e.Stage).
		Str("role", e.Role).
		Str("provider", e.Provider).
		Int("attempt", e.Attempt).
		Str("outcome", string(e.Outcome)).
		Dur("wait", e.Wait).
		Dur("elapsed", e.Elapsed)
	if e.Err != nil {
		ev = ev.Err(e.Err)
	}
	ev.Msg("model invocation attempt")
}
