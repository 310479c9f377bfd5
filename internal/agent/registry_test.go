package agent

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/aristath/grantwriter/internal/backend"
	"github.com/aristath/grantwriter/internal/document"
)

type fakeTool struct {
	name   string
	closed bool
}

func (f *fakeTool) Name() string        { return f.name }
func (f *fakeTool) Description() string { return "fake " + f.name }
func (f *fakeTool) Query(context.Context, string) (string, error) {
	return "match", nil
}
func (f *fakeTool) Close() error {
	f.closed = true
	return nil
}

// countingFactory counts Build calls and fails for names listed in fail.
type countingFactory struct {
	calls atomic.Int32
	fail  map[string]bool
}

func (f *countingFactory) Build(_ context.Context, h document.Handle) (document.SearchTool, error) {
	f.calls.Add(1)
	if f.fail[h.Name()] {
		return nil, document.ErrUnsupportedFormat
	}
	return &fakeTool{name: "search_" + h.Name()}, nil
}

func allModels() map[Role]backend.Backend {
	echo := backend.NewEchoAdapter(backend.Config{Name: "echo"})
	models := make(map[Role]backend.Backend)
	for _, r := range Roles() {
		models[r] = echo
	}
	return models
}

func TestRegistryDescribe(t *testing.T) {
	factory := &countingFactory{}
	docs := []document.Handle{
		document.NewMemory("rfp.txt", []byte("a")),
		document.NewMemory("report.txt", []byte("b")),
	}
	reg := NewRegistry(DefaultProfiles(), allModels(), NewToolCache(factory), docs)
	ctx := context.Background()

	ingest, err := reg.Describe(ctx, RoleDocumentIngestion)
	if err != nil {
		t.Fatalf("Describe failed: %v", err)
	}
	if len(ingest.Tools) != 2 {
		t.Fatalf("expected 2 tools, got %d", len(ingest.Tools))
	}
	if ingest.Tools[0].Name() != "search_rfp.txt" || ingest.Tools[1].Name() != "search_report.txt" {
		t.Errorf("tools out of document order: %s, %s", ingest.Tools[0].Name(), ingest.Tools[1].Name())
	}
	if ingest.AllowDelegation {
		t.Error("document ingestion must not allow delegation")
	}

	analysis, err := reg.Describe(ctx, RoleRFPAnalysis)
	if err != nil {
		t.Fatalf("Describe failed: %v", err)
	}
	if len(analysis.Tools) != 2 {
		t.Errorf("expected rfp-analysis to share the document tools, got %d", len(analysis.Tools))
	}
	if got := factory.calls.Load(); got != 2 {
		t.Errorf("expected 2 tool constructions for 2 documents, got %d", got)
	}

	writer, err := reg.Describe(ctx, RoleProposalWriting)
	if err != nil {
		t.Fatalf("Describe failed: %v", err)
	}
	if len(writer.Tools) != 0 {
		t.Errorf("proposal writer should have no tools, got %d", len(writer.Tools))
	}
	if !writer.AllowDelegation {
		t.Error("proposal writer should allow delegation")
	}

	again, _ := reg.Describe(ctx, RoleProposalWriting)
	if again != writer {
		t.Error("expected the same descriptor for repeated Describe calls")
	}
}

func TestRegistryFailsClosedOnToolError(t *testing.T) {
	factory := &countingFactory{fail: map[string]bool{"scan.pdf": true}}
	docs := []document.Handle{
		document.NewMemory("rfp.txt", []byte("a")),
		document.NewMemory("scan.pdf", []byte("b")),
	}
	reg := NewRegistry(DefaultProfiles(), allModels(), NewToolCache(factory), docs)
	ctx := context.Background()

	for _, role := range []Role{RoleDocumentIngestion, RoleRFPAnalysis} {
		_, err := reg.Describe(ctx, role)
		var tce *ToolConstructionError
		if !errors.As(err, &tce) {
			t.Fatalf("%s: expected *ToolConstructionError, got %v", role, err)
		}
		if tce.Document != "scan.pdf" || tce.Role != role {
			t.Errorf("unexpected error details: %+v", tce)
		}
		if !errors.Is(err, document.ErrUnsupportedFormat) {
			t.Errorf("expected cause to be preserved, got %v", err)
		}
	}

	// Failed construction is not retried within the run
	if got := factory.calls.Load(); got != 2 {
		t.Errorf("expected 2 constructions (one per document), got %d", got)
	}

	if _, err := reg.Describe(ctx, RoleBudgetPreparation); err != nil {
		t.Errorf("roles without document tools should still be described, got %v", err)
	}
}

func TestRegistryNoModel(t *testing.T) {
	reg := NewRegistry(DefaultProfiles(), map[Role]backend.Backend{}, NewToolCache(&countingFactory{}), nil)
	_, err := reg.Describe(context.Background(), RoleQualityReview)
	if !errors.Is(err, ErrNoModel) {
		t.Errorf("expected ErrNoModel, got %v", err)
	}
}

func TestToolCacheIsIdempotent(t *testing.T) {
	factory := &countingFactory{}
	cache := NewToolCache(factory)
	h := document.NewMemory("rfp.txt", []byte("content"))
	ctx := context.Background()

	var wg sync.WaitGroup
	tools := make([]document.SearchTool, 20)
	for i := range tools {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tool, err := cache.Get(ctx, h)
			if err != nil {
				t.Errorf("Get failed: %v", err)
				return
			}
			tools[i] = tool
		}(i)
	}
	wg.Wait()

	if got := factory.calls.Load(); got != 1 {
		t.Errorf("expected exactly 1 construction, got %d", got)
	}
	if cache.Builds() != 1 {
		t.Errorf("expected Builds() == 1, got %d", cache.Builds())
	}
	for i, tool := range tools {
		if tool != tools[0] {
			t.Errorf("caller %d received a different tool instance", i)
		}
	}

	if err := cache.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !tools[0].(*fakeTool).closed {
		t.Error("expected Close to close built tools")
	}
}

func TestParseRole(t *testing.T) {
	for _, r := range Roles() {
		got, err := ParseRole(r.String())
		if err != nil || got != r {
			t.Errorf("ParseRole(%q) = %v, %v", r.String(), got, err)
		}
	}
	if _, err := ParseRole("grant-officer"); !errors.Is(err, ErrUnknownRole) {
		t.Errorf("expected ErrUnknownRole, got %v", err)
	}
}

func TestSystemPersona(t *testing.T) {
	d := &Descriptor{Title: "Expert Proposal Writer", Persona: "You write."}
	if got := d.SystemPersona(); got != "Expert Proposal Writer. You write." {
		t.Errorf("unexpected persona %q", got)
	}
}
