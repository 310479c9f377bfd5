// Package report turns a finished pipeline run into the ordered output
// handed back to callers and written to disk.
package report

import (
	"strconv"
	"time"

	"github.com/aristath/grantwriter/internal/scheduler"
)

// Section statuses.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusNotRun    = "not_run"
)

// Section is the outcome of one planned task.
type Section struct {
	Task          string     `json:"task" yaml:"task"`
	Role          string     `json:"role" yaml:"role"`
	ExecutedBy    string     `json:"executed_by,omitempty" yaml:"executed_by,omitempty"`
	Status        string     `json:"status" yaml:"status"`
	Output        *string    `json:"output" yaml:"output"`
	FailureReason string     `json:"failure_reason,omitempty" yaml:"failure_reason,omitempty"`
	ErrorKind     string     `json:"error_kind,omitempty" yaml:"error_kind,omitempty"`
	Attempts      int        `json:"attempts" yaml:"attempts"`
	CompletedAt   *time.Time `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
}

// FinalOutput is the aggregated result of a run.
type FinalOutput struct {
	RunID            string    `json:"run_id" yaml:"run_id"`
	OrgName          string    `json:"org_name" yaml:"org_name"`
	Background       string    `json:"background" yaml:"background"`
	Documents        []string  `json:"documents,omitempty" yaml:"documents,omitempty"`
	Status           string    `json:"status" yaml:"status"`
	Reason           string    `json:"reason,omitempty" yaml:"reason,omitempty"`
	Sections         []Section `json:"sections" yaml:"sections"`
	FinalDeliverable *string   `json:"final_deliverable" yaml:"final_deliverable"`
	StartedAt        time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt       time.Time `json:"finished_at" yaml:"finished_at"`
}

// Meta is the caller-supplied context a run does not record itself.
type Meta struct {
	OrgName    string
	Background string
	Documents  []string
}

// Aggregate builds the output of run with one section per planned task,
// in declared order. Failed tasks carry no output; tasks that never ran
// are marked not_run. The final deliverable is the last task's output.
func Aggregate(run *scheduler.PipelineRun, meta Meta) *FinalOutput {
	out := &FinalOutput{
		RunID:      run.ID,
		OrgName:    meta.OrgName,
		Background: meta.Background,
		Documents:  append([]string(nil), meta.Documents...),
		Status:     run.Status().String(),
		Reason:     run.Reason(),
		StartedAt:  run.StartedAt(),
		FinishedAt: run.FinishedAt(),
	}

	for _, spec := range run.Plan.Tasks() {
		res, ok := run.Result(spec.Name)
		if !ok {
			out.Sections = append(out.Sections, Section{
				Task:   spec.Name,
				Role:   spec.Role.String(),
				Status: StatusNotRun,
			})
			continue
		}
		out.Sections = append(out.Sections, sectionOf(res))
	}

	if n := len(out.Sections); n > 0 && out.Sections[n-1].Output != nil {
		final := *out.Sections[n-1].Output
		out.FinalDeliverable = &final
	}
	return out
}

func sectionOf(res scheduler.TaskResult) Section {
	completed := res.CompletedAt
	s := Section{
		Task:        res.Task,
		Role:        res.Role.String(),
		Attempts:    res.Attempts,
		CompletedAt: &completed,
	}
	if res.ExecutedBy != 0 {
		s.ExecutedBy = res.ExecutedBy.String()
	}
	if res.Succeeded() {
		output := res.Output
		s.Status = StatusSucceeded
		s.Output = &output
		return s
	}

	s.Status = StatusFailed
	s.ErrorKind = res.ErrKind
	if res.Err != nil {
		s.FailureReason = res.Err.Error()
	}
	return s
}

// Section returns the named section.
func (o *FinalOutput) Section(task string) (Section, bool) {
	for _, s := range o.Sections {
		if s.Task == task {
			return s, true
		}
	}
	return Section{}, false
}

// Record is one key/value pair of a flattened output.
type Record struct {
	Key   string
	Value string
}

// Records flattens the output into ordered key/value pairs: run metadata,
// then one entry per section, then the final deliverable.
func (o *FinalOutput) Records() []Record {
	recs := []Record{
		{Key: "run_id", Value: o.RunID},
		{Key: "org_name", Value: o.OrgName},
		{Key: "status", Value: o.Status},
	}
	if o.Reason != "" {
		recs = append(recs, Record{Key: "reason", Value: o.Reason})
	}
	for _, s := range o.Sections {
		recs = append(recs, Record{Key: s.Task, Value: s.Summary()})
	}

	final := ""
	if o.FinalDeliverable != nil {
		final = *o.FinalDeliverable
	}
	return append(recs, Record{Key: "final_deliverable", Value: final})
}

// Summary is the section's output, or a short description of why there
// is none.
func (s Section) Summary() string {
	switch s.Status {
	case StatusSucceeded:
		if s.Output != nil {
			return *s.Output
		}
		return ""
	case StatusNotRun:
		return "not run"
	}

	reason := "failed"
	if s.ErrorKind != "" {
		reason += " (" + s.ErrorKind + ")"
	}
	reason += " after " + strconv.Itoa(s.Attempts) + " attempt"
	if s.Attempts != 1 {
		reason += "s"
	}
	if s.FailureReason != "" {
		reason += ": " + s.FailureReason
	}
	return reason
}
