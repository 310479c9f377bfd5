package scheduler

import (
	"errors"
	"testing"
)

func TestRunLifecycle(t *testing.T) {
	run := NewRun("run-1", DefaultPlan())

	if run.Status() != RunIdle {
		t.Fatalf("new run status = %s, want idle", run.Status())
	}
	if err := run.Record(TaskResult{Task: "document-ingestion"}); !errors.Is(err, ErrRunState) {
		t.Errorf("Record() before Start: err = %v, want ErrRunState", err)
	}
	if err := run.Finish(RunSucceeded, ""); !errors.Is(err, ErrRunState) {
		t.Errorf("Finish() before Start: err = %v, want ErrRunState", err)
	}

	if err := run.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := run.Start(); !errors.Is(err, ErrRunState) {
		t.Errorf("second Start(): err = %v, want ErrRunState", err)
	}
	if run.StartedAt().IsZero() {
		t.Error("StartedAt() not set")
	}

	if err := run.Finish(RunRunning, ""); !errors.Is(err, ErrRunState) {
		t.Errorf("Finish(running): err = %v, want ErrRunState", err)
	}
	if err := run.Finish(RunFailed, "boom"); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}
	if run.Status() != RunFailed || run.Reason() != "boom" {
		t.Errorf("status = %s reason = %q, want failed/boom", run.Status(), run.Reason())
	}
	if run.FinishedAt().IsZero() {
		t.Error("FinishedAt() not set")
	}
	if err := run.Finish(RunSucceeded, ""); !errors.Is(err, ErrRunState) {
		t.Errorf("Finish() after terminal: err = %v, want ErrRunState", err)
	}
}

func TestRunRecordEnforcesDependencies(t *testing.T) {
	run := NewRun("run-2", DefaultPlan())
	if err := run.Start(); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		task    string
		wantErr error
	}{
		{name: "dependency missing", task: "rfp-analysis", wantErr: ErrDepsMissing},
		{name: "root task", task: "document-ingestion"},
		{name: "duplicate", task: "document-ingestion", wantErr: ErrAlreadyRecorded},
		{name: "unknown task", task: "celebration", wantErr: ErrUnknownTask},
		{name: "dependency present", task: "rfp-analysis"},
		{name: "second dependency missing", task: "budget-preparation", wantErr: ErrDepsMissing},
		{name: "both dependencies present", task: "proposal-writing"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := run.Record(TaskResult{Task: tt.task, Output: "out " + tt.task})
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Record(%q) error = %v", tt.task, err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Record(%q) error = %v, want %v", tt.task, err, tt.wantErr)
			}
		})
	}

	results := run.Results()
	want := []string{"document-ingestion", "rfp-analysis", "proposal-writing"}
	if len(results) != len(want) {
		t.Fatalf("got %d results, want %d", len(results), len(want))
	}
	for i, res := range results {
		if res.Task != want[i] {
			t.Errorf("result %d = %q, want %q", i, res.Task, want[i])
		}
	}

	res, ok := run.Result("rfp-analysis")
	if !ok || res.Output != "out rfp-analysis" {
		t.Errorf("Result(rfp-analysis) = %+v, %v", res, ok)
	}
	if _, ok := run.Result("quality-review"); ok {
		t.Error("Result() found a task that never ran")
	}
}

func TestRunStatusString(t *testing.T) {
	tests := []struct {
		status   RunStatus
		want     string
		terminal bool
	}{
		{RunIdle, "idle", false},
		{RunRunning, "running", false},
		{RunSucceeded, "succeeded", true},
		{RunPartiallyFailed, "partially_failed", true},
		{RunFailed, "failed", true},
	}

	for _, tt := range tests {
		if got := tt.status.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
		if got := tt.status.Terminal(); got != tt.terminal {
			t.Errorf("%s.Terminal() = %v, want %v", tt.want, got, tt.terminal)
		}
	}
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    FailurePolicy
		wantErr bool
	}{
		{"", PolicyFatal, false},
		{"fatal", PolicyFatal, false},
		{" Skippable ", PolicySkippable, false},
		{"ignore", 0, true},
	}

	for _, tt := range tests {
		got, err := ParsePolicy(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParsePolicy(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParsePolicy(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}
