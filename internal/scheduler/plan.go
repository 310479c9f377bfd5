// Package scheduler holds the task plan of a pipeline and the state of a
// single run through it.
package scheduler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gammazero/toposort"

	"github.com/aristath/grantwriter/internal/agent"
	"github.com/aristath/grantwriter/internal/prompt"
)

// ErrInvalidPlan is wrapped by every plan construction error.
var ErrInvalidPlan = errors.New("invalid plan")

// Plan is a validated, ordered list of tasks. Every dependency names a
// task declared earlier, so declared order is an execution order.
type Plan struct {
	tasks []TaskSpec
	index map[string]int
}

// NewPlan validates tasks and builds a plan from them.
func NewPlan(tasks []TaskSpec) (*Plan, error) {
	if len(tasks) == 0 {
		return nil, fmt.Errorf("%w: no tasks", ErrInvalidPlan)
	}

	p := &Plan{
		tasks: make([]TaskSpec, 0, len(tasks)),
		index: make(map[string]int, len(tasks)),
	}
	for _, t := range tasks {
		if t.Name == "" {
			return nil, fmt.Errorf("%w: task with empty name", ErrInvalidPlan)
		}
		if _, exists := p.index[t.Name]; exists {
			return nil, fmt.Errorf("%w: task %q declared twice", ErrInvalidPlan, t.Name)
		}
		p.index[t.Name] = len(p.tasks)
		p.tasks = append(p.tasks, cloneSpec(t))
	}

	if err := p.validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Plan) validate() error {
	// Verify all dependencies exist
	for _, t := range p.tasks {
		for _, dep := range t.DependsOn {
			if _, exists := p.index[dep]; !exists {
				return fmt.Errorf("%w: task %q depends on unknown task %q", ErrInvalidPlan, t.Name, dep)
			}
		}
	}

	if _, err := p.topoOrder(); err != nil {
		return err
	}

	for i, t := range p.tasks {
		for _, dep := range t.DependsOn {
			if p.index[dep] >= i {
				return fmt.Errorf("%w: task %q depends on %q, which is declared after it", ErrInvalidPlan, t.Name, dep)
			}
		}
		if err := p.checkTask(t); err != nil {
			return err
		}
	}
	return nil
}

// topoOrder sorts the tasks with gammazero/toposort, which also catches
// cycles including self-dependencies.
func (p *Plan) topoOrder() ([]string, error) {
	var edges []toposort.Edge
	for _, t := range p.tasks {
		if len(t.DependsOn) == 0 {
			edges = append(edges, toposort.Edge{nil, t.Name})
			continue
		}
		for _, dep := range t.DependsOn {
			edges = append(edges, toposort.Edge{dep, t.Name})
		}
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return nil, fmt.Errorf("%w: dependency cycle: %v", ErrInvalidPlan, err)
	}

	order := make([]string, 0, len(sorted))
	for _, id := range sorted {
		if id != nil {
			order = append(order, id.(string))
		}
	}
	if len(order) != len(p.tasks) {
		return nil, fmt.Errorf("%w: dependency cycle among %d tasks", ErrInvalidPlan, len(p.tasks)-len(order))
	}
	return order, nil
}

// checkTask verifies the task's role and that every placeholder of its
// template is bound either from the run inputs or from a declared
// dependency.
func (p *Plan) checkTask(t TaskSpec) error {
	if !knownRole(t.Role) {
		return fmt.Errorf("%w: task %q has no valid role", ErrInvalidPlan, t.Name)
	}

	names, err := prompt.Placeholders(t.Kind)
	if err != nil {
		return fmt.Errorf("%w: task %q: %v", ErrInvalidPlan, t.Name, err)
	}

	bound := make(map[string]bool)
	for _, k := range prompt.InputKeys() {
		bound[k] = true
	}
	for _, dep := range t.DependsOn {
		bound[prompt.BindingKey(dep)] = true
	}

	var unbound []string
	for _, name := range names {
		if !bound[name] {
			unbound = append(unbound, name)
		}
	}
	if len(unbound) > 0 {
		return fmt.Errorf("%w: task %q uses %s but does not depend on the tasks producing them",
			ErrInvalidPlan, t.Name, strings.Join(unbound, ", "))
	}
	return nil
}

func knownRole(r agent.Role) bool {
	for _, known := range agent.Roles() {
		if r == known {
			return true
		}
	}
	return false
}

// Tasks returns the tasks in declared order.
func (p *Plan) Tasks() []TaskSpec {
	out := make([]TaskSpec, len(p.tasks))
	for i, t := range p.tasks {
		out[i] = cloneSpec(t)
	}
	return out
}

// Task returns the named task.
func (p *Plan) Task(name string) (TaskSpec, bool) {
	i, ok := p.index[name]
	if !ok {
		return TaskSpec{}, false
	}
	return cloneSpec(p.tasks[i]), true
}

// Len returns the number of tasks.
func (p *Plan) Len() int { return len(p.tasks) }

// Last returns the final task in declared order; its output is the run's
// deliverable.
func (p *Plan) Last() TaskSpec { return cloneSpec(p.tasks[len(p.tasks)-1]) }

// DefaultPlan is the built-in five-stage proposal pipeline.
func DefaultPlan() *Plan {
	p, err := NewPlan(DefaultTasks())
	if err != nil {
		panic(err)
	}
	return p
}

// DefaultTasks returns the task list behind DefaultPlan. Callers may edit a
// copy and pass it to NewPlan.
func DefaultTasks() []TaskSpec {
	return []TaskSpec{
		{
			Name:           "document-ingestion",
			Kind:           prompt.KindDocumentIngestion,
			Role:           agent.RoleDocumentIngestion,
			ExpectedOutput: "Organized summary of key information from all uploaded documents.",
			Policy:         PolicyFatal,
		},
		{
			Name:           "rfp-analysis",
			Kind:           prompt.KindRFPAnalysis,
			Role:           agent.RoleRFPAnalysis,
			ExpectedOutput: "Detailed task outline based on RFP requirements.",
			DependsOn:      []string{"document-ingestion"},
			Policy:         PolicyFatal,
		},
		{
			Name:           "proposal-writing",
			Kind:           prompt.KindProposalWriting,
			Role:           agent.RoleProposalWriting,
			ExpectedOutput: "Draft proposal content tailored to the RFP requirements and the organization's goals.",
			DependsOn:      []string{"document-ingestion", "rfp-analysis"},
			Policy:         PolicyFatal,
		},
		{
			Name:           "budget-preparation",
			Kind:           prompt.KindBudgetPreparation,
			Role:           agent.RoleBudgetPreparation,
			ExpectedOutput: "Comprehensive budget aligned with the proposal and the RFP requirements.",
			DependsOn:      []string{"rfp-analysis", "proposal-writing"},
			Policy:         PolicySkippable,
		},
		{
			Name:           "quality-review",
			Kind:           prompt.KindQualityReview,
			Role:           agent.RoleQualityReview,
			ExpectedOutput: "Final, polished proposal that meets all RFP requirements.",
			DependsOn:      []string{"rfp-analysis", "proposal-writing", "budget-preparation"},
			Policy:         PolicySkippable,
		},
	}
}
