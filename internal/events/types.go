package events

import (
	"time"
)

// Event is the base interface for all events.
type Event interface {
	EventType() string
	Topic() string
	TaskID() string
}

// Topic constants
const (
	TopicTask = "task"
	TopicRun  = "run"
)

// Event type constants
const (
	EventTypeRunStarted    = "run.started"
	EventTypeRunProgress   = "run.progress"
	EventTypeRunFinished   = "run.finished"
	EventTypeTaskStarted   = "task.started"
	EventTypeTaskAttempt   = "task.attempt"
	EventTypeTaskCompleted = "task.completed"
	EventTypeTaskFailed    = "task.failed"
)

// RunStartedEvent is published once the run has validated its request.
type RunStartedEvent struct {
	RunID     string
	OrgName   string
	Tasks     []string // declared order
	Timestamp time.Time
}

func (e RunStartedEvent) EventType() string { return EventTypeRunStarted }
func (e RunStartedEvent) Topic() string     { return TopicRun }
func (e RunStartedEvent) TaskID() string    { return "" }

// RunProgressEvent is published after every recorded task.
type RunProgressEvent struct {
	Total     int
	Succeeded int
	Failed    int
	Pending   int
	Timestamp time.Time
}

func (e RunProgressEvent) EventType() string { return EventTypeRunProgress }
func (e RunProgressEvent) Topic() string     { return TopicRun }
func (e RunProgressEvent) TaskID() string    { return "" }

// RunFinishedEvent is published when the run reaches a terminal status.
type RunFinishedEvent struct {
	RunID     string
	Status    string
	Reason    string
	Duration  time.Duration
	Timestamp time.Time
}

func (e RunFinishedEvent) EventType() string { return EventTypeRunFinished }
func (e RunFinishedEvent) Topic() string     { return TopicRun }
func (e RunFinishedEvent) TaskID() string    { return "" }

// TaskStartedEvent is published when a task begins execution.
type TaskStartedEvent struct {
	ID         string
	Role       string
	ExecutedBy string
	Timestamp  time.Time
}

func (e TaskStartedEvent) EventType() string { return EventTypeTaskStarted }
func (e TaskStartedEvent) Topic() string     { return TopicTask }
func (e TaskStartedEvent) TaskID() string    { return e.ID }

// TaskAttemptEvent is published after every model call a task makes.
type TaskAttemptEvent struct {
	ID        string
	Attempt   int
	Outcome   string
	Wait      time.Duration // backoff before the attempt
	Elapsed   time.Duration
	Err       error
	Timestamp time.Time
}

func (e TaskAttemptEvent) EventType() string { return EventTypeTaskAttempt }
func (e TaskAttemptEvent) Topic() string     { return TopicTask }
func (e TaskAttemptEvent) TaskID() string    { return e.ID }

// TaskCompletedEvent is published when a task completes successfully.
type TaskCompletedEvent struct {
	ID        string
	Result    string
	Attempts  int
	Duration  time.Duration
	Timestamp time.Time
}

func (e TaskCompletedEvent) EventType() string { return EventTypeTaskCompleted }
func (e TaskCompletedEvent) Topic() string     { return TopicTask }
func (e TaskCompletedEvent) TaskID() string    { return e.ID }

// TaskFailedEvent is published when a task fails.
type TaskFailedEvent struct {
	ID        string
	Err       error
	Kind      string
	Attempts  int
	Duration  time.Duration
	Timestamp time.Time
}

func (e TaskFailedEvent) EventType() string { return EventTypeTaskFailed }
func (e TaskFailedEvent) Topic() string     { return TopicTask }
func (e TaskFailedEvent) TaskID() string    { return e.ID }
