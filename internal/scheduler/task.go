package scheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/aristath/grantwriter/internal/agent"
	"github.com/aristath/grantwriter/internal/prompt"
)

// FailurePolicy determines how a task's failure affects the run.
type FailurePolicy int

const (
	PolicyFatal     FailurePolicy = iota // Stop the run
	PolicySkippable                      // Dependents fail, independent tasks still run
)

func (p FailurePolicy) String() string {
	switch p {
	case PolicyFatal:
		return "fatal"
	case PolicySkippable:
		return "skippable"
	default:
		return "unknown"
	}
}

// ParsePolicy converts a configuration value into a FailurePolicy. An empty
// value means fatal.
func ParsePolicy(s string) (FailurePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "fatal":
		return PolicyFatal, nil
	case "skippable":
		return PolicySkippable, nil
	}
	return 0, fmt.Errorf("unknown failure policy %q", s)
}

// TaskSpec is one unit of work in a plan. Specs are immutable once the plan
// is built.
type TaskSpec struct {
	Name           string        // Unique within the plan
	Kind           prompt.Kind   // Template rendered into the task's instructions
	Role           agent.Role    // Role that executes the task
	ExpectedOutput string        // Shown to the model, never checked
	DependsOn      []string      // Upstream task names, all declared earlier
	Policy         FailurePolicy // What a failure of this task does to the run
	OutputFile     string        // Optional path the output is copied to
}

// TaskStatus is the outcome of an executed task.
type TaskStatus int

const (
	TaskSucceeded TaskStatus = iota
	TaskFailed
)

func (s TaskStatus) String() string {
	if s == TaskSucceeded {
		return "succeeded"
	}
	return "failed"
}

// TaskResult records one executed task. Results are never modified after
// they are recorded.
type TaskResult struct {
	Task         string
	Role         agent.Role
	ExecutedBy   agent.Role // Differs from Role when the task was delegated
	Status       TaskStatus
	Output       string
	Err          error
	ErrKind      string
	Attempts     int
	Instructions string // Rendered instructions sent to the model
	StartedAt    time.Time
	CompletedAt  time.Time
}

// Succeeded reports whether the task produced an output.
func (r TaskResult) Succeeded() bool { return r.Status == TaskSucceeded }

func cloneSpec(t TaskSpec) TaskSpec {
	if t.DependsOn != nil {
		t.DependsOn = append([]string(nil), t.DependsOn...)
	}
	return t
}
