package events

import "github.com/aristath/grantwriter/internal/telemetry"

// BusSink forwards invocation attempts to a bus as TaskAttemptEvents.
type BusSink struct {
	bus *Bus
}

// NewBusSink creates a telemetry sink publishing on bus.
func NewBusSink(bus *Bus) *BusSink {
	return &BusSink{bus: bus}
}

func (s *BusSink) Record(e telemetry.Event) {
	s.bus.Publish(TaskAttemptEvent{
		ID:        e.Stage,
		Attempt:   e.Attempt,
		Outcome:   string(e.Outcome),
		Wait:      e.Wait,
		Elapsed:   e.Elapsed,
		Err:       e.Err,
		Timestamp: e.Time,
	})
}
