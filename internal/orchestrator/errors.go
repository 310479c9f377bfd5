package orchestrator

import (
	"errors"
	"fmt"

	"github.com/aristath/grantwriter/internal/agent"
	"github.com/aristath/grantwriter/internal/backend"
	"github.com/aristath/grantwriter/internal/prompt"
)

var (
	// ErrDeadlineExceeded fails a run that outlived its configured deadline.
	ErrDeadlineExceeded = errors.New("pipeline deadline exceeded")
	// ErrCanceled fails a run whose context was cancelled by the caller.
	ErrCanceled = errors.New("pipeline canceled")
	// ErrInvalidRequest is returned before a run starts.
	ErrInvalidRequest = errors.New("invalid pipeline request")
)

// Failure kinds recorded on task results besides the backend.ErrorKind
// values.
const (
	KindDependencyUnresolved = "dependency_unresolved"
	KindMissingBinding       = "missing_binding"
	KindToolConstruction     = "tool_construction"
	KindConfiguration        = "configuration"
)

// InvocationError is a model call that failed after Attempts attempts.
type InvocationError struct {
	Stage    string
	Kind     backend.ErrorKind
	Attempts int
	Err      error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("invoking %s: %s after %d attempt(s): %v", e.Stage, e.Kind, e.Attempts, e.Err)
}

func (e *InvocationError) Unwrap() error { return e.Err }

// DependencyUnresolvedError marks a task that could not run because an
// upstream task did not succeed.
type DependencyUnresolvedError struct {
	Task       string
	Dependency string
}

func (e *DependencyUnresolvedError) Error() string {
	return fmt.Sprintf("task %s: dependency %s did not succeed", e.Task, e.Dependency)
}

// PipelineError describes the failure that ended a run.
type PipelineError struct {
	RunID    string
	Task     string // empty when the run failed between tasks
	Kind     string
	Attempts int
	Err      error
}

func (e *PipelineError) Error() string {
	if e.Task == "" {
		return fmt.Sprintf("run %s failed (%s): %v", e.RunID, e.Kind, e.Err)
	}
	return fmt.Sprintf("run %s failed at %s (%s, %d attempt(s)): %v", e.RunID, e.Task, e.Kind, e.Attempts, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// kindOf names the failure kind of a task error.
func kindOf(err error) string {
	var (
		dep     *DependencyUnresolvedError
		missing *prompt.MissingBindingError
		tools   *agent.ToolConstructionError
		inv     *InvocationError
	)
	switch {
	case errors.As(err, &dep):
		return KindDependencyUnresolved
	case errors.As(err, &missing):
		return KindMissingBinding
	case errors.As(err, &tools):
		return KindToolConstruction
	case errors.As(err, &inv):
		return string(inv.Kind)
	case errors.Is(err, ErrDeadlineExceeded):
		return string(backend.KindDeadline)
	case errors.Is(err, ErrCanceled):
		return string(backend.KindCanceled)
	case errors.Is(err, agent.ErrNoModel), errors.Is(err, agent.ErrUnknownRole):
		return KindConfiguration
	}
	return string(backend.KindOf(err))
}

// attemptsOf returns how many model calls err consumed.
func attemptsOf(err error) int {
	var inv *InvocationError
	if errors.As(err, &inv) {
		return inv.Attempts
	}
	return 0
}
