package scheduler

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// RunStatus is the lifecycle state of a pipeline run.
type RunStatus int

const (
	RunIdle RunStatus = iota
	RunRunning
	RunSucceeded
	RunPartiallyFailed
	RunFailed
)

func (s RunStatus) String() string {
	switch s {
	case RunIdle:
		return "idle"
	case RunRunning:
		return "running"
	case RunSucceeded:
		return "succeeded"
	case RunPartiallyFailed:
		return "partially_failed"
	case RunFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the run has finished.
func (s RunStatus) Terminal() bool {
	return s == RunSucceeded || s == RunPartiallyFailed || s == RunFailed
}

var (
	ErrRunState        = errors.New("invalid run state transition")
	ErrUnknownTask     = errors.New("task not in plan")
	ErrAlreadyRecorded = errors.New("task already recorded")
	ErrDepsMissing     = errors.New("dependency results missing")
)

// PipelineRun is the state of one execution of a plan. Results grow
// monotonically and are kept in the order they were recorded.
type PipelineRun struct {
	ID   string
	Plan *Plan

	mu         sync.RWMutex
	status     RunStatus
	reason     string
	results    map[string]TaskResult
	order      []string
	startedAt  time.Time
	finishedAt time.Time
}

// NewRun creates an idle run of plan.
func NewRun(id string, plan *Plan) *PipelineRun {
	return &PipelineRun{
		ID:      id,
		Plan:    plan,
		results: make(map[string]TaskResult, plan.Len()),
	}
}

// Start moves the run from idle to running.
func (r *PipelineRun) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status != RunIdle {
		return fmt.Errorf("%w: start from %s", ErrRunState, r.status)
	}
	r.status = RunRunning
	r.startedAt = time.Now()
	return nil
}

// Record stores the result of a task. The task must belong to the plan,
// must not have been recorded before, and every one of its dependencies
// must already have a result.
func (r *PipelineRun) Record(res TaskResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status != RunRunning {
		return fmt.Errorf("%w: record %q while %s", ErrRunState, res.Task, r.status)
	}
	spec, ok := r.Plan.Task(res.Task)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTask, res.Task)
	}
	if _, exists := r.results[res.Task]; exists {
		return fmt.Errorf("%w: %q", ErrAlreadyRecorded, res.Task)
	}
	for _, dep := range spec.DependsOn {
		if _, done := r.results[dep]; !done {
			return fmt.Errorf("%w: %q needs %q", ErrDepsMissing, res.Task, dep)
		}
	}

	r.results[res.Task] = res
	r.order = append(r.order, res.Task)
	return nil
}

// Finish moves a running run to a terminal status.
func (r *PipelineRun) Finish(status RunStatus, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status != RunRunning || !status.Terminal() {
		return fmt.Errorf("%w: %s to %s", ErrRunState, r.status, status)
	}
	r.status = status
	r.reason = reason
	r.finishedAt = time.Now()
	return nil
}

// Status returns the current status.
func (r *PipelineRun) Status() RunStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

// Reason explains a failed or partially failed run.
func (r *PipelineRun) Reason() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.reason
}

// Result returns the recorded result of a task.
func (r *PipelineRun) Result(task string) (TaskResult, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res, ok := r.results[task]
	return res, ok
}

// Results returns all recorded results in execution order.
func (r *PipelineRun) Results() []TaskResult {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]TaskResult, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.results[name])
	}
	return out
}

// StartedAt returns when the run started, or the zero time.
func (r *PipelineRun) StartedAt() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.startedAt
}

// FinishedAt returns when the run finished, or the zero time.
func (r *PipelineRun) FinishedAt() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.finishedAt
}
