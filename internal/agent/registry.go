package agent

import (
	"context"
	"fmt"
	"sync"

	"github.com/aristath/grantwriter/internal/backend"
	"github.com/aristath/grantwriter/internal/document"
)

// Descriptor is everything needed to invoke a model as a given role.
// Descriptors are immutable once built.
type Descriptor struct {
	Role            Role
	Title           string
	Persona         string
	Goal            string
	AllowDelegation bool
	Tools           []backend.Tool
	Model           backend.Backend
}

// Registry hands out one descriptor per role for a single run.
type Registry struct {
	profiles map[Role]Profile
	models   map[Role]backend.Backend
	tools    *ToolCache
	docs     []document.Handle

	mu        sync.Mutex
	described map[Role]*Descriptor
}

// NewRegistry creates a run-scoped registry. models binds each role to the
// backend that executes it; tools builds document search tools for roles
// whose profile uses documents.
func NewRegistry(profiles map[Role]Profile, models map[Role]backend.Backend, tools *ToolCache, docs []document.Handle) *Registry {
	return &Registry{
		profiles:  profiles,
		models:    models,
		tools:     tools,
		docs:      docs,
		described: make(map[Role]*Descriptor),
	}
}

// Describe returns the descriptor for role, building its tools on first
// use. If any document tool cannot be built the role cannot be described.
func (r *Registry) Describe(ctx context.Context, role Role) (*Descriptor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if d, ok := r.described[role]; ok {
		return d, nil
	}

	profile, ok := r.profiles[role]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRole, role)
	}
	model := r.models[role]
	if model == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoModel, role)
	}

	var tools []backend.Tool
	if profile.UsesDocuments {
		for _, h := range r.docs {
			tool, err := r.tools.Get(ctx, h)
			if err != nil {
				return nil, &ToolConstructionError{Role: role, Document: h.Name(), Err: err}
			}
			tools = append(tools, tool)
		}
	}

	d := &Descriptor{
		Role:            role,
		Title:           profile.Title,
		Persona:         profile.Persona,
		Goal:            profile.Goal,
		AllowDelegation: profile.AllowDelegation,
		Tools:           tools,
		Model:           model,
	}
	r.described[role] = d
	return d, nil
}

// SystemPersona joins the role title and persona into the text models
// receive as their identity.
func (d *Descriptor) SystemPersona() string {
	if d.Title == "" {
		return d.Persona
	}
	return d.Title + ". " + d.Persona
}
