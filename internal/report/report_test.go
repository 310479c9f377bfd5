package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aristath/grantwriter/internal/agent"
	"github.com/aristath/grantwriter/internal/prompt"
	"github.com/aristath/grantwriter/internal/scheduler"
)

func threeTaskPlan(t *testing.T) *scheduler.Plan {
	t.Helper()
	spec := func(name string, deps ...string) scheduler.TaskSpec {
		return scheduler.TaskSpec{
			Name:      name,
			Kind:      prompt.KindDocumentIngestion,
			Role:      agent.RoleDocumentIngestion,
			DependsOn: deps,
		}
	}
	plan, err := scheduler.NewPlan([]scheduler.TaskSpec{spec("gather"), spec("draft", "gather"), spec("review", "draft")})
	if err != nil {
		t.Fatalf("NewPlan() error = %v", err)
	}
	return plan
}

func succeeded(task, output string) scheduler.TaskResult {
	return scheduler.TaskResult{
		Task:        task,
		Role:        agent.RoleDocumentIngestion,
		ExecutedBy:  agent.RoleDocumentIngestion,
		Status:      scheduler.TaskSucceeded,
		Output:      output,
		Attempts:    1,
		CompletedAt: time.Now(),
	}
}

// failedRun records gather, fails draft and stops, like a fatal failure.
func failedRun(t *testing.T) *scheduler.PipelineRun {
	t.Helper()
	run := scheduler.NewRun("run-failed", threeTaskPlan(t))
	if err := run.Start(); err != nil {
		t.Fatal(err)
	}
	if err := run.Record(succeeded("gather", "facts")); err != nil {
		t.Fatal(err)
	}
	err := run.Record(scheduler.TaskResult{
		Task:     "draft",
		Role:     agent.RoleDocumentIngestion,
		Status:   scheduler.TaskFailed,
		Err:      errors.New("model unavailable"),
		ErrKind:  "server",
		Attempts: 1,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := run.Finish(scheduler.RunFailed, "draft failed"); err != nil {
		t.Fatal(err)
	}
	return run
}

func succeededRun(t *testing.T) *scheduler.PipelineRun {
	t.Helper()
	run := scheduler.NewRun("run-ok", threeTaskPlan(t))
	if err := run.Start(); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"gather", "draft", "review"} {
		if err := run.Record(succeeded(name, "OUT: "+name)); err != nil {
			t.Fatal(err)
		}
	}
	if err := run.Finish(scheduler.RunSucceeded, ""); err != nil {
		t.Fatal(err)
	}
	return run
}

func TestAggregateFailedRun(t *testing.T) {
	out := Aggregate(failedRun(t), Meta{OrgName: "Acme Foundation", Background: "After-school program"})

	if out.Status != "failed" || out.Reason != "draft failed" {
		t.Errorf("status = %q reason = %q", out.Status, out.Reason)
	}

	wantStatus := []string{StatusSucceeded, StatusFailed, StatusNotRun}
	if len(out.Sections) != len(wantStatus) {
		t.Fatalf("got %d sections, want %d", len(out.Sections), len(wantStatus))
	}
	for i, s := range out.Sections {
		if s.Status != wantStatus[i] {
			t.Errorf("section %d (%s) status = %q, want %q", i, s.Task, s.Status, wantStatus[i])
		}
	}

	draft := out.Sections[1]
	if draft.Output != nil {
		t.Errorf("failed section has output %q", *draft.Output)
	}
	if draft.FailureReason != "model unavailable" || draft.ErrorKind != "server" || draft.Attempts != 1 {
		t.Errorf("failed section = %+v", draft)
	}
	if out.Sections[2].Output != nil || out.Sections[2].CompletedAt != nil {
		t.Error("not_run section should carry no output or timestamp")
	}
	if out.FinalDeliverable != nil {
		t.Errorf("FinalDeliverable = %q, want nil", *out.FinalDeliverable)
	}
}

func TestAggregateSucceededRun(t *testing.T) {
	out := Aggregate(succeededRun(t), Meta{OrgName: "Acme Foundation"})

	for i, name := range []string{"gather", "draft", "review"} {
		s := out.Sections[i]
		if s.Task != name || s.Output == nil || *s.Output != "OUT: "+name {
			t.Errorf("section %d = %+v", i, s)
		}
	}
	if out.FinalDeliverable == nil || *out.FinalDeliverable != "OUT: review" {
		t.Errorf("FinalDeliverable = %v, want OUT: review", out.FinalDeliverable)
	}
}

func TestRecordsAreOrdered(t *testing.T) {
	out := Aggregate(failedRun(t), Meta{OrgName: "Acme Foundation"})

	var keys []string
	values := make(map[string]string)
	for _, r := range out.Records() {
		keys = append(keys, r.Key)
		values[r.Key] = r.Value
	}

	want := "run_id,org_name,status,reason,gather,draft,review,final_deliverable"
	if got := strings.Join(keys, ","); got != want {
		t.Errorf("keys = %s, want %s", got, want)
	}
	if values["gather"] != "facts" {
		t.Errorf("gather = %q", values["gather"])
	}
	if values["draft"] != "failed (server) after 1 attempt: model unavailable" {
		t.Errorf("draft = %q", values["draft"])
	}
	if values["review"] != "not run" {
		t.Errorf("review = %q", values["review"])
	}
}

func TestWriteFormats(t *testing.T) {
	out := Aggregate(failedRun(t), Meta{
		OrgName:    "Acme Foundation",
		Background: "After-school program",
		Documents:  []string{"rfp.pdf"},
	})

	tests := []struct {
		format Format
		check  func(t *testing.T, data []byte)
	}{
		{FormatText, func(t *testing.T, data []byte) {
			s := string(data)
			for _, want := range []string{"RFP / Proposal Draft", "Organization: Acme Foundation", "• rfp.pdf", "1. Gather [succeeded]", "3. Review [not_run]", "Status: failed"} {
				if !strings.Contains(s, want) {
					t.Errorf("text output missing %q:\n%s", want, s)
				}
			}
		}},
		{FormatMarkdown, func(t *testing.T, data []byte) {
			s := string(data)
			if !strings.HasPrefix(s, "# Grant proposal: Acme Foundation") {
				t.Errorf("markdown header missing:\n%s", s)
			}
			if !strings.Contains(s, "> _failed (server) after 1 attempt: model unavailable_") {
				t.Errorf("markdown failure line missing:\n%s", s)
			}
		}},
		{FormatJSON, func(t *testing.T, data []byte) {
			var got FinalOutput
			if err := json.Unmarshal(data, &got); err != nil {
				t.Fatalf("invalid JSON: %v", err)
			}
			if got.RunID != "run-failed" || len(got.Sections) != 3 || got.FinalDeliverable != nil {
				t.Errorf("decoded %+v", got)
			}
		}},
		{FormatYAML, func(t *testing.T, data []byte) {
			var got FinalOutput
			if err := yaml.Unmarshal(data, &got); err != nil {
				t.Fatalf("invalid YAML: %v", err)
			}
			if got.OrgName != "Acme Foundation" || got.Sections[1].Status != StatusFailed {
				t.Errorf("decoded %+v", got)
			}
		}},
		{FormatCSV, func(t *testing.T, data []byte) {
			rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
			if err != nil {
				t.Fatalf("invalid CSV: %v", err)
			}
			if len(rows) != 4 || rows[0][0] != "task" || rows[2][3] != StatusFailed {
				t.Errorf("rows = %v", rows)
			}
		}},
	}

	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			var buf bytes.Buffer
			if err := Write(&buf, out, tt.format); err != nil {
				t.Fatalf("Write() error = %v", err)
			}
			tt.check(t, buf.Bytes())
		})
	}

	if err := Write(&bytes.Buffer{}, out, "pdf"); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("Write(pdf) error = %v, want ErrUnknownFormat", err)
	}
}

func TestSectionSummaryCountsAttempts(t *testing.T) {
	tests := []struct {
		name    string
		section Section
		want    string
	}{
		{
			name:    "rate limited",
			section: Section{Status: StatusFailed, ErrorKind: "rate_limited", Attempts: 5, FailureReason: "429"},
			want:    "failed (rate_limited) after 5 attempts: 429",
		},
		{
			name:    "single attempt",
			section: Section{Status: StatusFailed, ErrorKind: "auth", Attempts: 1},
			want:    "failed (auth) after 1 attempt",
		},
		{
			name:    "dependency never produced",
			section: Section{Status: StatusFailed, ErrorKind: "dependency_unresolved", FailureReason: "rfp-analysis failed"},
			want:    "failed (dependency_unresolved) after 0 attempts: rfp-analysis failed",
		},
		{
			name:    "not run",
			section: Section{Status: StatusNotRun},
			want:    "not run",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.section.Summary(); got != tt.want {
				t.Errorf("Summary() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMarkdownQuotesMultilineReasons(t *testing.T) {
	out := &FinalOutput{
		RunID:   "run-1",
		OrgName: "Acme Foundation",
		Status:  "partially_failed",
		Sections: []Section{{
			Task:          "budget-preparation",
			Status:        StatusFailed,
			ErrorKind:     "server",
			Attempts:      1,
			FailureReason: "upstream error:\n\n{\"error\": \"overloaded\"}",
		}},
	}

	var buf bytes.Buffer
	if err := Write(&buf, out, FormatMarkdown); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	want := "> _failed (server) after 1 attempt: upstream error:_\n>\n> _{\"error\": \"overloaded\"}_\n"
	if !strings.Contains(buf.String(), want) {
		t.Errorf("markdown quote = %q, want it to contain %q", buf.String(), want)
	}
}

func TestParseFormat(t *testing.T) {
	tests := map[string]Format{
		"":         FormatText,
		"md":       FormatMarkdown,
		"Markdown": FormatMarkdown,
		"yml":      FormatYAML,
		"json":     FormatJSON,
		"csv":      FormatCSV,
	}
	for in, want := range tests {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseFormat("docx"); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("ParseFormat(docx) error = %v", err)
	}
}

func TestTitle(t *testing.T) {
	if got := Title("quality-review"); got != "Quality Review" {
		t.Errorf("Title() = %q", got)
	}
}
