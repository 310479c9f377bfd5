package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/aristath/grantwriter/internal/agent"
	"github.com/aristath/grantwriter/internal/backend"
	"github.com/aristath/grantwriter/internal/telemetry"
)

// fakeBackend answers "OUT: <stage>" unless respond overrides it. It
// records every request it receives.
type fakeBackend struct {
	name    string
	respond func(ctx context.Context, call int, req backend.Request) (backend.Response, error)

	mu       sync.Mutex
	requests []backend.Request
}

func (b *fakeBackend) Name() string {
	if b.name == "" {
		return "fake"
	}
	return b.name
}

func (b *fakeBackend) Close() error { return nil }

func (b *fakeBackend) Send(ctx context.Context, req backend.Request) (backend.Response, error) {
	b.mu.Lock()
	b.requests = append(b.requests, req)
	call := len(b.requests)
	b.mu.Unlock()

	if b.respond != nil {
		return b.respond(ctx, call, req)
	}
	return backend.Response{Content: "OUT: " + req.Stage}, nil
}

func (b *fakeBackend) calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.requests)
}

// stageCalls counts requests sent on behalf of stage.
func (b *fakeBackend) stageCalls(stage string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, r := range b.requests {
		if r.Stage == stage {
			n++
		}
	}
	return n
}

func (b *fakeBackend) lastRequest(stage string) (backend.Request, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := len(b.requests) - 1; i >= 0; i-- {
		if b.requests[i].Stage == stage {
			return b.requests[i], true
		}
	}
	return backend.Request{}, false
}

func callError(kind backend.ErrorKind, status int) error {
	return &backend.CallError{Provider: "fake", Kind: kind, StatusCode: status, Err: errors.New(string(kind))}
}

func rateLimited() error { return callError(backend.KindRateLimited, 429) }

// fastPolicy keeps the default shape with millisecond waits.
func fastPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		MinWait:     time.Millisecond,
		MaxWait:     4 * time.Millisecond,
		Multiplier:  2,
		Jitter:      0.5,
	}
}

type eventLog struct {
	mu     sync.Mutex
	events []telemetry.Event
}

func (l *eventLog) Record(e telemetry.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) all() []telemetry.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]telemetry.Event(nil), l.events...)
}

func descriptorFor(b backend.Backend) *agent.Descriptor {
	return &agent.Descriptor{
		Role:    agent.RoleRFPAnalysis,
		Title:   "Analyst",
		Persona: "You analyze RFPs.",
		Goal:    "Outline the work.",
		Model:   b,
	}
}

func bindAll(b backend.Backend) map[agent.Role]backend.Backend {
	models := make(map[agent.Role]backend.Backend)
	for _, r := range agent.Roles() {
		models[r] = b
	}
	return models
}

type stubSearchTool struct {
	name string
}

func (s *stubSearchTool) Name() string        { return s.name }
func (s *stubSearchTool) Description() string { return "search " + s.name }
func (s *stubSearchTool) Close() error        { return nil }
func (s *stubSearchTool) Query(_ context.Context, q string) (string, error) {
	return "passage for " + q, nil
}
