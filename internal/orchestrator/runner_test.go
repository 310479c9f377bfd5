package orchestrator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aristath/grantwriter/internal/agent"
	"github.com/aristath/grantwriter/internal/backend"
	"github.com/aristath/grantwriter/internal/document"
	"github.com/aristath/grantwriter/internal/events"
	"github.com/aristath/grantwriter/internal/prompt"
	"github.com/aristath/grantwriter/internal/report"
	"github.com/aristath/grantwriter/internal/scheduler"
	"github.com/aristath/grantwriter/internal/telemetry"
)

func newTestRunner(t *testing.T, cfg Config) *Runner {
	t.Helper()
	if cfg.Invoker == nil {
		cfg.Invoker = NewInvoker(fastPolicy(), nil, nil)
	}
	r, err := NewRunner(cfg)
	if err != nil {
		t.Fatalf("NewRunner() error = %v", err)
	}
	return r
}

func acmeRequest() Request {
	budget := int64(50000)
	return Request{
		OrgName:     "Acme Foundation",
		Background:  "Youth literacy program",
		TotalBudget: &budget,
	}
}

func stageSpec(name string, deps ...string) scheduler.TaskSpec {
	return scheduler.TaskSpec{
		Name:      name,
		Kind:      prompt.KindDocumentIngestion,
		Role:      agent.RoleDocumentIngestion,
		DependsOn: deps,
	}
}

func threeStagePlan(t *testing.T) *scheduler.Plan {
	t.Helper()
	plan, err := scheduler.NewPlan([]scheduler.TaskSpec{stageSpec("a"), stageSpec("b", "a"), stageSpec("c", "b")})
	if err != nil {
		t.Fatal(err)
	}
	return plan
}

// TestRunPipeline_AcmeScenario runs the default plan end to end.
func TestRunPipeline_AcmeScenario(t *testing.T) {
	b := &fakeBackend{}
	bus := events.NewBus()
	defer bus.Close()
	ch := bus.SubscribeAll(100)

	r := newTestRunner(t, Config{Models: bindAll(b), Bus: bus})

	out, err := r.RunPipeline(context.Background(), acmeRequest())
	if err != nil {
		t.Fatalf("RunPipeline() error = %v", err)
	}
	if out.Status != "succeeded" {
		t.Errorf("status = %q, want succeeded", out.Status)
	}

	want := []string{"document-ingestion", "rfp-analysis", "proposal-writing", "budget-preparation", "quality-review"}
	if len(out.Sections) != len(want) {
		t.Fatalf("got %d sections, want %d", len(out.Sections), len(want))
	}
	for i, s := range out.Sections {
		if s.Task != want[i] {
			t.Errorf("section %d = %q, want %q", i, s.Task, want[i])
		}
		if s.Output == nil || !strings.HasPrefix(*s.Output, "OUT:") {
			t.Errorf("section %s output = %v", s.Task, s.Output)
		}
		if s.Attempts != 1 {
			t.Errorf("section %s attempts = %d", s.Task, s.Attempts)
		}
	}
	if out.FinalDeliverable == nil || *out.FinalDeliverable != "OUT: quality-review" {
		t.Errorf("FinalDeliverable = %v", out.FinalDeliverable)
	}

	// Execution order matches declared order.
	for i, req := range b.requests {
		if req.Stage != want[i] {
			t.Errorf("call %d went to %q, want %q", i, req.Stage, want[i])
		}
	}

	budgetReq, _ := b.lastRequest("budget-preparation")
	for _, wantText := range []string{"Acme Foundation", "50,000", "OUT: proposal-writing", "OUT: rfp-analysis"} {
		if !strings.Contains(budgetReq.Instructions, wantText) {
			t.Errorf("budget instructions missing %q", wantText)
		}
	}
	if !strings.Contains(budgetReq.Persona, "Nonprofit Budget Specialist") {
		t.Errorf("budget persona = %q", budgetReq.Persona)
	}
	ingestReq, _ := b.lastRequest("document-ingestion")
	if !strings.Contains(ingestReq.Instructions, "none provided") {
		t.Error("ingestion instructions should say no documents were provided")
	}

	counts := make(map[string]int)
	for len(ch) > 0 {
		counts[(<-ch).EventType()]++
	}
	wantCounts := map[string]int{
		events.EventTypeRunStarted:    1,
		events.EventTypeTaskStarted:   5,
		events.EventTypeTaskCompleted: 5,
		events.EventTypeRunProgress:   5,
		events.EventTypeRunFinished:   1,
	}
	for typ, n := range wantCounts {
		if counts[typ] != n {
			t.Errorf("%s events = %d, want %d", typ, counts[typ], n)
		}
	}
}

// TestRun_FailingSinkDoesNotAbortRun verifies a panicking telemetry sink
// passed through Config.Sink leaves the run intact.
func TestRun_FailingSinkDoesNotAbortRun(t *testing.T) {
	b := &fakeBackend{}
	r, err := NewRunner(Config{
		Models: bindAll(b),
		Sink:   telemetry.SinkFunc(func(telemetry.Event) { panic("metrics exporter down") }),
	})
	if err != nil {
		t.Fatalf("NewRunner() error = %v", err)
	}

	out, err := r.RunPipeline(context.Background(), acmeRequest())
	if err != nil {
		t.Fatalf("RunPipeline() error = %v", err)
	}
	if out.Status != "succeeded" || out.FinalDeliverable == nil {
		t.Errorf("run = %s with deliverable %v, want succeeded", out.Status, out.FinalDeliverable)
	}
}

// TestRun_RateLimitedThenSuccess verifies retries are visible on the result.
func TestRun_RateLimitedThenSuccess(t *testing.T) {
	var rfpCalls atomic.Int32
	b := &fakeBackend{respond: func(_ context.Context, _ int, req backend.Request) (backend.Response, error) {
		if req.Stage == "rfp-analysis" && rfpCalls.Add(1) <= 2 {
			return backend.Response{}, rateLimited()
		}
		return backend.Response{Content: "OUT: " + req.Stage}, nil
	}}

	r := newTestRunner(t, Config{Models: bindAll(b)})
	run, err := r.Run(context.Background(), acmeRequest())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	res, ok := run.Result("rfp-analysis")
	if !ok || !res.Succeeded() {
		t.Fatalf("rfp-analysis result = %+v", res)
	}
	if res.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", res.Attempts)
	}
	if run.Status() != scheduler.RunSucceeded {
		t.Errorf("status = %s", run.Status())
	}
}

// TestRun_FatalFailureShape verifies a fatal failure stops the run.
func TestRun_FatalFailureShape(t *testing.T) {
	b := &fakeBackend{respond: func(_ context.Context, _ int, req backend.Request) (backend.Response, error) {
		if req.Stage == "b" {
			return backend.Response{}, callError(backend.KindBadRequest, 400)
		}
		return backend.Response{Content: "OUT: " + req.Stage}, nil
	}}

	r := newTestRunner(t, Config{Plan: threeStagePlan(t), Models: bindAll(b)})
	out, err := r.RunPipeline(context.Background(), acmeRequest())

	var perr *PipelineError
	if !errors.As(err, &perr) {
		t.Fatalf("expected *PipelineError, got %v", err)
	}
	if perr.Task != "b" || perr.Kind != string(backend.KindBadRequest) || perr.Attempts != 1 {
		t.Errorf("PipelineError = %+v", perr)
	}
	var inv *InvocationError
	if !errors.As(err, &inv) {
		t.Error("PipelineError should wrap the InvocationError")
	}

	if out == nil {
		t.Fatal("partial output missing")
	}
	if out.Status != "failed" {
		t.Errorf("status = %q, want failed", out.Status)
	}
	wantStatus := []string{report.StatusSucceeded, report.StatusFailed, report.StatusNotRun}
	for i, s := range out.Sections {
		if s.Status != wantStatus[i] {
			t.Errorf("section %s status = %q, want %q", s.Task, s.Status, wantStatus[i])
		}
	}
	if out.Sections[1].Output != nil {
		t.Error("failed section should have no output")
	}
	if b.stageCalls("c") != 0 {
		t.Error("task after a fatal failure was invoked")
	}
}

// TestRun_SkippableFailure verifies dependents fail without invoking the model.
func TestRun_SkippableFailure(t *testing.T) {
	b := &fakeBackend{respond: func(_ context.Context, _ int, req backend.Request) (backend.Response, error) {
		if req.Stage == "budget-preparation" {
			return backend.Response{}, callError(backend.KindServer, 500)
		}
		return backend.Response{Content: "OUT: " + req.Stage}, nil
	}}

	r := newTestRunner(t, Config{Models: bindAll(b)})
	run, err := r.Run(context.Background(), acmeRequest())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if run.Status() != scheduler.RunPartiallyFailed {
		t.Errorf("status = %s, want partially_failed", run.Status())
	}
	if !strings.Contains(run.Reason(), "budget-preparation (server)") {
		t.Errorf("reason = %q", run.Reason())
	}

	qa, ok := run.Result("quality-review")
	if !ok || qa.Succeeded() {
		t.Fatalf("quality-review result = %+v", qa)
	}
	var dep *DependencyUnresolvedError
	if !errors.As(qa.Err, &dep) || dep.Dependency != "budget-preparation" {
		t.Errorf("quality-review error = %v", qa.Err)
	}
	if qa.ErrKind != KindDependencyUnresolved || qa.Attempts != 0 {
		t.Errorf("quality-review kind = %q attempts = %d", qa.ErrKind, qa.Attempts)
	}
	if b.stageCalls("quality-review") != 0 {
		t.Error("model invoked for a task with an unresolved dependency")
	}
}

// TestRun_Deadline verifies the run deadline fails the run mid-task.
func TestRun_Deadline(t *testing.T) {
	b := &fakeBackend{respond: func(ctx context.Context, _ int, req backend.Request) (backend.Response, error) {
		if req.Stage == "rfp-analysis" {
			<-ctx.Done()
			return backend.Response{}, ctx.Err()
		}
		return backend.Response{Content: "OUT: " + req.Stage}, nil
	}}

	r := newTestRunner(t, Config{Models: bindAll(b), Deadline: 50 * time.Millisecond})
	start := time.Now()
	run, err := r.Run(context.Background(), acmeRequest())

	if time.Since(start) > 2*time.Second {
		t.Errorf("run outlived its deadline: %v", time.Since(start))
	}
	if !errors.Is(err, ErrDeadlineExceeded) {
		t.Fatalf("error = %v, want ErrDeadlineExceeded", err)
	}
	if run.Status() != scheduler.RunFailed {
		t.Errorf("status = %s, want failed", run.Status())
	}
	if res, _ := run.Result("rfp-analysis"); res.ErrKind != string(backend.KindDeadline) {
		t.Errorf("rfp-analysis kind = %q", res.ErrKind)
	}
	if _, ok := run.Result("proposal-writing"); ok {
		t.Error("task started after the deadline")
	}
}

// TestRun_CanceledBeforeStart verifies no task starts on a cancelled context.
func TestRun_CanceledBeforeStart(t *testing.T) {
	b := &fakeBackend{}
	r := newTestRunner(t, Config{Models: bindAll(b)})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run, err := r.Run(ctx, acmeRequest())
	if !errors.Is(err, ErrCanceled) {
		t.Fatalf("error = %v, want ErrCanceled", err)
	}
	var perr *PipelineError
	if !errors.As(err, &perr) || perr.Task != "" || perr.Kind != string(backend.KindCanceled) {
		t.Errorf("PipelineError = %+v", perr)
	}
	if len(run.Results()) != 0 || b.calls() != 0 {
		t.Error("tasks ran on a cancelled context")
	}
}

// TestRun_Hierarchical verifies delegation to the manager role.
func TestRun_Hierarchical(t *testing.T) {
	specialists := &fakeBackend{name: "groq"}
	manager := &fakeBackend{name: "openai"}
	models := bindAll(specialists)
	models[agent.RoleProjectManager] = manager

	r := newTestRunner(t, Config{Models: models, Process: ProcessHierarchical})
	run, err := r.Run(context.Background(), acmeRequest())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	tests := map[string]agent.Role{
		"document-ingestion": agent.RoleDocumentIngestion,
		"rfp-analysis":       agent.RoleRFPAnalysis,
		"proposal-writing":   agent.RoleProjectManager,
		"budget-preparation": agent.RoleProjectManager,
		"quality-review":     agent.RoleProjectManager,
	}
	for task, want := range tests {
		res, _ := run.Result(task)
		if res.ExecutedBy != want {
			t.Errorf("%s executed by %s, want %s", task, res.ExecutedBy, want)
		}
	}
	if specialists.calls() != 2 || manager.calls() != 3 {
		t.Errorf("specialist calls = %d, manager calls = %d", specialists.calls(), manager.calls())
	}

	// Delegated instructions are the task's own.
	req, _ := manager.lastRequest("budget-preparation")
	if !strings.Contains(req.Instructions, "50,000") {
		t.Error("delegated task lost its instructions")
	}
}

// TestRun_DocumentTools verifies tools are built once and given to document roles.
func TestRun_DocumentTools(t *testing.T) {
	var builds atomic.Int32
	factory := document.FactoryFunc(func(_ context.Context, h document.Handle) (document.SearchTool, error) {
		builds.Add(1)
		return &stubSearchTool{name: "search_" + h.Name()}, nil
	})
	b := &fakeBackend{}

	r := newTestRunner(t, Config{Models: bindAll(b), Tools: factory})
	req := acmeRequest()
	req.Documents = []document.Handle{document.NewMemory("rfp.txt", []byte("The maximum award is 75,000."))}

	if _, err := r.Run(context.Background(), req); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if builds.Load() != 1 {
		t.Errorf("tool built %d times, want 1", builds.Load())
	}

	for stage, want := range map[string]int{"document-ingestion": 1, "rfp-analysis": 1, "proposal-writing": 0} {
		got, _ := b.lastRequest(stage)
		if len(got.Tools) != want {
			t.Errorf("%s got %d tools, want %d", stage, len(got.Tools), want)
		}
	}
	ingest, _ := b.lastRequest("document-ingestion")
	if !strings.Contains(ingest.Instructions, "rfp.txt") {
		t.Error("ingestion instructions should name the documents")
	}
}

// TestRun_ToolConstructionFailsClosed verifies a broken document fails its roles.
func TestRun_ToolConstructionFailsClosed(t *testing.T) {
	factory := document.FactoryFunc(func(context.Context, document.Handle) (document.SearchTool, error) {
		return nil, document.ErrUnsupportedFormat
	})
	b := &fakeBackend{}

	r := newTestRunner(t, Config{Models: bindAll(b), Tools: factory})
	req := acmeRequest()
	req.Documents = []document.Handle{document.NewMemory("scan.pdf", []byte("%PDF-1.7"))}

	run, err := r.Run(context.Background(), req)
	var perr *PipelineError
	if !errors.As(err, &perr) || perr.Kind != KindToolConstruction || perr.Task != "document-ingestion" {
		t.Fatalf("error = %v", err)
	}
	var tce *agent.ToolConstructionError
	if !errors.As(err, &tce) || tce.Document != "scan.pdf" {
		t.Errorf("expected ToolConstructionError for scan.pdf, got %v", err)
	}
	if run.Status() != scheduler.RunFailed || b.calls() != 0 {
		t.Errorf("status = %s, calls = %d", run.Status(), b.calls())
	}
}

// TestRun_OutputFile verifies successful outputs are copied to their file.
func TestRun_OutputFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "drafts", "a.md")
	spec := stageSpec("a")
	spec.OutputFile = path
	plan, err := scheduler.NewPlan([]scheduler.TaskSpec{spec})
	if err != nil {
		t.Fatal(err)
	}

	r := newTestRunner(t, Config{Plan: plan, Models: bindAll(&fakeBackend{})})
	if _, err := r.Run(context.Background(), acmeRequest()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("output file: %v", err)
	}
	if string(data) != "OUT: a" {
		t.Errorf("output file = %q", data)
	}
}

func TestRun_SectionKindsReceiveUpstream(t *testing.T) {
	plan, err := scheduler.NewPlan([]scheduler.TaskSpec{
		{Name: "mission", Kind: prompt.KindMissionVision, Role: agent.RoleMissionVision},
		{Name: "team", Kind: prompt.KindTeamGovernance, Role: agent.RoleTeamGovernance},
		{Name: "final", Kind: prompt.KindFormattingSubmission, Role: agent.RoleQualityReview, DependsOn: []string{"mission", "team"}},
	})
	if err != nil {
		t.Fatal(err)
	}

	b := &fakeBackend{}
	r := newTestRunner(t, Config{Plan: plan, Models: bindAll(b)})
	if _, err := r.Run(context.Background(), acmeRequest()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	mission, _ := b.lastRequest("mission")
	if !strings.Contains(mission.Instructions, prompt.NoUpstream) {
		t.Errorf("first section should have no earlier work:\n%s", mission.Instructions)
	}
	final, _ := b.lastRequest("final")
	for _, want := range []string{"### mission\n\nOUT: mission", "### team\n\nOUT: team", "table of contents"} {
		if !strings.Contains(final.Instructions, want) {
			t.Errorf("final instructions missing %q:\n%s", want, final.Instructions)
		}
	}
}

func TestRun_BudgetUnspecified(t *testing.T) {
	b := &fakeBackend{}
	r := newTestRunner(t, Config{Models: bindAll(b)})

	req := acmeRequest()
	req.TotalBudget = nil
	if _, err := r.Run(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	got, _ := b.lastRequest("budget-preparation")
	if !strings.Contains(got.Instructions, budgetUnspecified) {
		t.Error("budget instructions should say the budget is unspecified")
	}
}

func TestRun_InvalidRequest(t *testing.T) {
	r := newTestRunner(t, Config{Models: bindAll(&fakeBackend{})})
	negative := int64(-1)

	tests := []struct {
		name string
		req  Request
	}{
		{"missing org", Request{Background: "x"}},
		{"missing background", Request{OrgName: "Acme"}},
		{"negative budget", Request{OrgName: "Acme", Background: "x", TotalBudget: &negative}},
		{"documents without index", Request{OrgName: "Acme", Background: "x", Documents: []document.Handle{document.NewMemory("a.txt", []byte("a"))}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			run, err := r.Run(context.Background(), tt.req)
			if !errors.Is(err, ErrInvalidRequest) {
				t.Errorf("error = %v, want ErrInvalidRequest", err)
			}
			if run != nil {
				t.Error("no run should be created for an invalid request")
			}
		})
	}
}

func TestNewRunner_Validation(t *testing.T) {
	partial := map[agent.Role]backend.Backend{agent.RoleDocumentIngestion: &fakeBackend{}}
	noManager := bindAll(&fakeBackend{})
	delete(noManager, agent.RoleProjectManager)

	tests := []struct {
		name string
		cfg  Config
	}{
		{"missing models", Config{Models: partial}},
		{"hierarchical without manager model", Config{Models: noManager, Process: ProcessHierarchical}},
		{"unknown process", Config{Models: bindAll(&fakeBackend{}), Process: "round-robin"}},
		{"negative deadline", Config{Models: bindAll(&fakeBackend{}), Deadline: -time.Second}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewRunner(tt.cfg); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("error = %v, want ErrInvalidConfig", err)
			}
		})
	}

	if _, err := NewRunner(Config{Models: noManager}); err != nil {
		t.Errorf("sequential runner should not need a manager model: %v", err)
	}
}

func TestParseProcess(t *testing.T) {
	for in, want := range map[string]Process{"": ProcessSequential, "Hierarchical": ProcessHierarchical, "sequential": ProcessSequential} {
		got, err := ParseProcess(in)
		if err != nil || got != want {
			t.Errorf("ParseProcess(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseProcess("parallel"); err == nil {
		t.Error("ParseProcess(parallel) should fail")
	}
}
