package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/aristath/grantwriter/internal/agent"
	"github.com/aristath/grantwriter/internal/backend"
	"github.com/aristath/grantwriter/internal/document"
	"github.com/aristath/grantwriter/internal/events"
	"github.com/aristath/grantwriter/internal/logging"
	"github.com/aristath/grantwriter/internal/prompt"
	"github.com/aristath/grantwriter/internal/report"
	"github.com/aristath/grantwriter/internal/scheduler"
	"github.com/aristath/grantwriter/internal/telemetry"
)

// Process selects how tasks are assigned to roles.
type Process string

const (
	// ProcessSequential runs every task as its own role.
	ProcessSequential Process = "sequential"
	// ProcessHierarchical routes tasks whose role allows delegation through
	// the manager role.
	ProcessHierarchical Process = "hierarchical"
)

// ParseProcess converts a configuration value into a Process.
func ParseProcess(s string) (Process, error) {
	switch p := Process(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return ProcessSequential, nil
	case ProcessSequential, ProcessHierarchical:
		return p, nil
	}
	return "", fmt.Errorf("unknown process %q", s)
}

// ErrInvalidConfig is returned by NewRunner.
var ErrInvalidConfig = errors.New("invalid runner configuration")

// budgetUnspecified is bound as the budget when the caller gives none.
const budgetUnspecified = "not specified; derive it from the RFP requirements"

// Config configures a Runner.
type Config struct {
	Plan     *scheduler.Plan                // Default: scheduler.DefaultPlan()
	Profiles map[agent.Role]agent.Profile   // Default: agent.DefaultProfiles()
	Models   map[agent.Role]backend.Backend // Required for every role the plan uses
	Tools    document.Factory               // Required when requests carry documents
	Invoker  *Invoker                       // Default: DefaultRetryPolicy, no breakers, Sink
	Sink     telemetry.Sink                 // Used only when Invoker is nil
	Bus      *events.Bus                    // Optional progress events
	Deadline time.Duration                  // Zero disables the run deadline
	Process  Process
	Manager  agent.Role // Default: agent.RoleProjectManager
}

// Runner executes the task plan, one task at a time in declared order.
// A Runner holds no per-run state and may serve concurrent runs.
type Runner struct {
	plan     *scheduler.Plan
	profiles map[agent.Role]agent.Profile
	models   map[agent.Role]backend.Backend
	tools    document.Factory
	invoker  *Invoker
	bus      *events.Bus
	deadline time.Duration
	process  Process
	manager  agent.Role
	log      zerolog.Logger
}

// NewRunner validates cfg and creates a runner.
func NewRunner(cfg Config) (*Runner, error) {
	if cfg.Plan == nil {
		cfg.Plan = scheduler.DefaultPlan()
	}
	if cfg.Profiles == nil {
		cfg.Profiles = agent.DefaultProfiles()
	}
	if cfg.Invoker == nil {
		cfg.Invoker = NewInvoker(DefaultRetryPolicy(), nil, cfg.Sink)
	}
	if cfg.Process == "" {
		cfg.Process = ProcessSequential
	}
	if cfg.Manager == 0 {
		cfg.Manager = agent.RoleProjectManager
	}
	if cfg.Deadline < 0 {
		return nil, fmt.Errorf("%w: negative deadline %s", ErrInvalidConfig, cfg.Deadline)
	}
	if _, err := ParseProcess(string(cfg.Process)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	needed := make(map[agent.Role]bool)
	for _, t := range cfg.Plan.Tasks() {
		needed[t.Role] = true
	}
	if cfg.Process == ProcessHierarchical {
		needed[cfg.Manager] = true
	}
	for role := range needed {
		if _, ok := cfg.Profiles[role]; !ok {
			return nil, fmt.Errorf("%w: no profile for role %s", ErrInvalidConfig, role)
		}
		if cfg.Models[role] == nil {
			return nil, fmt.Errorf("%w: %v: %s", ErrInvalidConfig, agent.ErrNoModel, role)
		}
	}

	return &Runner{
		plan:     cfg.Plan,
		profiles: cfg.Profiles,
		models:   cfg.Models,
		tools:    cfg.Tools,
		invoker:  cfg.Invoker,
		bus:      cfg.Bus,
		deadline: cfg.Deadline,
		process:  cfg.Process,
		manager:  cfg.Manager,
		log:      log.With().Str("component", "runner").Logger(),
	}, nil
}

// Plan returns the plan the runner executes.
func (r *Runner) Plan() *scheduler.Plan { return r.plan }

// Request is the caller input of a run.
type Request struct {
	OrgName     string
	Background  string
	TotalBudget *int64 // nil when the caller has no budget in mind
	Documents   []document.Handle
}

func (r *Runner) validate(req Request) error {
	if strings.TrimSpace(req.OrgName) == "" {
		return fmt.Errorf("%w: organization name is required", ErrInvalidRequest)
	}
	if strings.TrimSpace(req.Background) == "" {
		return fmt.Errorf("%w: background is required", ErrInvalidRequest)
	}
	if req.TotalBudget != nil && *req.TotalBudget < 0 {
		return fmt.Errorf("%w: negative budget %d", ErrInvalidRequest, *req.TotalBudget)
	}
	if len(req.Documents) > 0 && r.tools == nil {
		return fmt.Errorf("%w: documents given but no document index configured", ErrInvalidRequest)
	}
	return nil
}

func inputBindings(req Request) prompt.Bindings {
	b := prompt.Bindings{}
	b.Set(prompt.KeyOrgName, req.OrgName)
	b.Set(prompt.KeyBackground, req.Background)
	if req.TotalBudget != nil {
		b.SetAmount(prompt.KeyTotalBudget, *req.TotalBudget)
	} else {
		b.Set(prompt.KeyTotalBudget, budgetUnspecified)
	}
	if names := document.Names(req.Documents); len(names) > 0 {
		b.Set(prompt.KeyDocumentNames, strings.Join(names, ", "))
	} else {
		b.Set(prompt.KeyDocumentNames, "none provided")
	}
	return b
}

// RunPipeline executes a run and aggregates it. When the run fails the
// partial output is returned together with a *PipelineError.
func (r *Runner) RunPipeline(ctx context.Context, req Request) (*report.FinalOutput, error) {
	run, err := r.Run(ctx, req)
	if run == nil {
		return nil, err
	}
	out := report.Aggregate(run, report.Meta{
		OrgName:    req.OrgName,
		Background: req.Background,
		Documents:  document.Names(req.Documents),
	})
	return out, err
}

// Run executes every task of the plan in declared order. Task failures are
// recorded on the run; the returned error is non-nil only for invalid
// requests and for runs that end Failed (a *PipelineError).
func (r *Runner) Run(ctx context.Context, req Request) (*scheduler.PipelineRun, error) {
	if err := r.validate(req); err != nil {
		return nil, err
	}

	run := scheduler.NewRun(uuid.NewString(), r.plan)
	logger := r.log.With().Str(logging.FieldRun, run.ID).Logger()

	tools := agent.NewToolCache(r.tools)
	defer func() {
		if err := tools.Close(); err != nil {
			logger.Warn().Err(err).Msg("closing document tools")
		}
	}()
	registry := agent.NewRegistry(r.profiles, r.models, tools, req.Documents)

	if r.deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.deadline)
		defer cancel()
	}

	if err := run.Start(); err != nil {
		return nil, err
	}
	logger.Info().Str("org", req.OrgName).Int("tasks", r.plan.Len()).Int("documents", len(req.Documents)).Msg("run started")
	r.bus.Publish(events.RunStartedEvent{
		RunID:     run.ID,
		OrgName:   req.OrgName,
		Tasks:     taskNames(r.plan),
		Timestamp: run.StartedAt(),
	})

	inputs := inputBindings(req)
	partial := false
	for _, spec := range r.plan.Tasks() {
		if err := ctx.Err(); err != nil {
			stopErr := stopCause(err)
			return run, r.fail(run, logger, &PipelineError{RunID: run.ID, Kind: kindOf(stopErr), Err: stopErr})
		}

		res := r.execute(ctx, run, registry, spec, inputs, logger)
		if err := run.Record(res); err != nil {
			return run, r.fail(run, logger, &PipelineError{RunID: run.ID, Task: spec.Name, Kind: KindConfiguration, Err: err})
		}
		r.publishProgress(run)

		if res.Succeeded() {
			continue
		}
		if ctx.Err() != nil || spec.Policy == scheduler.PolicyFatal {
			return run, r.fail(run, logger, &PipelineError{
				RunID:    run.ID,
				Task:     spec.Name,
				Kind:     res.ErrKind,
				Attempts: res.Attempts,
				Err:      res.Err,
			})
		}
		partial = true
	}

	status, reason := scheduler.RunSucceeded, ""
	if partial {
		status, reason = scheduler.RunPartiallyFailed, failedTasksReason(run)
	}
	if err := run.Finish(status, reason); err != nil {
		return run, err
	}
	logger.Info().Str("status", status.String()).Dur("elapsed", run.FinishedAt().Sub(run.StartedAt())).Msg("run finished")
	r.publishFinished(run)
	return run, nil
}

// execute runs one task and returns its result; it never records it.
func (r *Runner) execute(ctx context.Context, run *scheduler.PipelineRun, registry *agent.Registry,
	spec scheduler.TaskSpec, inputs prompt.Bindings, logger zerolog.Logger) scheduler.TaskResult {
	res := scheduler.TaskResult{
		Task:       spec.Name,
		Role:       spec.Role,
		ExecutedBy: spec.Role,
		StartedAt:  time.Now(),
	}
	tlog := logger.With().Str(logging.FieldTask, spec.Name).Str(logging.FieldRole, spec.Role.String()).Logger()

	fail := func(err error) scheduler.TaskResult {
		kind := kindOf(err)
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("%w: %w", stopCause(ctxErr), err)
			kind = string(backend.KindOf(ctxErr))
		}
		res.Status = scheduler.TaskFailed
		res.Err = err
		res.ErrKind = kind
		if n := attemptsOf(err); n > 0 {
			res.Attempts = n
		}
		res.CompletedAt = time.Now()

		tlog.Warn().Err(err).Str("kind", res.ErrKind).Int(logging.FieldAttempt, res.Attempts).Msg("task failed")
		r.bus.Publish(events.TaskFailedEvent{
			ID:        spec.Name,
			Err:       err,
			Kind:      res.ErrKind,
			Attempts:  res.Attempts,
			Duration:  res.CompletedAt.Sub(res.StartedAt),
			Timestamp: res.CompletedAt,
		})
		return res
	}

	bindings := make(prompt.Bindings, len(inputs)+len(spec.DependsOn)+2)
	for k, v := range inputs {
		bindings[k] = v
	}
	bindings.Set(prompt.KeyExpectedOutput, spec.ExpectedOutput)
	upstream := make(map[string]string, len(spec.DependsOn))
	for _, dep := range spec.DependsOn {
		up, ok := run.Result(dep)
		if !ok || !up.Succeeded() {
			return fail(&DependencyUnresolvedError{Task: spec.Name, Dependency: dep})
		}
		bindings.Set(prompt.BindingKey(dep), up.Output)
		upstream[dep] = up.Output
	}
	bindings.Set(prompt.KeyUpstream, prompt.Upstream(spec.DependsOn, upstream))

	instructions, err := prompt.Render(spec.Kind, bindings)
	if err != nil {
		return fail(fmt.Errorf("task %s: %w", spec.Name, err))
	}
	res.Instructions = instructions

	d, err := r.describe(ctx, registry, spec.Role)
	if err != nil {
		return fail(fmt.Errorf("task %s: %w", spec.Name, err))
	}
	res.ExecutedBy = d.Role

	tlog.Info().Str("executed_by", d.Role.String()).Int("tools", len(d.Tools)).Msg("task started")
	r.bus.Publish(events.TaskStartedEvent{
		ID:         spec.Name,
		Role:       spec.Role.String(),
		ExecutedBy: d.Role.String(),
		Timestamp:  res.StartedAt,
	})

	out, err := r.invoker.Invoke(ctx, run.ID, spec.Name, d, instructions)
	res.Attempts = out.Attempts
	if err != nil {
		return fail(err)
	}

	res.Status = scheduler.TaskSucceeded
	res.Output = out.Output
	res.CompletedAt = time.Now()

	if spec.OutputFile != "" {
		if err := writeOutputFile(spec.OutputFile, out.Output); err != nil {
			tlog.Warn().Err(err).Str("path", spec.OutputFile).Msg("writing task output file")
		}
	}

	tlog.Info().Int(logging.FieldAttempt, res.Attempts).
		Int64("input_tokens", out.InputTokens).Int64("output_tokens", out.OutputTokens).
		Msg("task completed")
	r.bus.Publish(events.TaskCompletedEvent{
		ID:        spec.Name,
		Result:    out.Output,
		Attempts:  res.Attempts,
		Duration:  res.CompletedAt.Sub(res.StartedAt),
		Timestamp: res.CompletedAt,
	})
	return res
}

// describe returns the descriptor that executes role. In hierarchical runs
// roles that allow delegation are executed by the manager.
func (r *Runner) describe(ctx context.Context, registry *agent.Registry, role agent.Role) (*agent.Descriptor, error) {
	d, err := registry.Describe(ctx, role)
	if err != nil {
		return nil, err
	}
	if r.process != ProcessHierarchical || !d.AllowDelegation || role == r.manager {
		return d, nil
	}
	return registry.Describe(ctx, r.manager)
}

func (r *Runner) fail(run *scheduler.PipelineRun, logger zerolog.Logger, perr *PipelineError) error {
	if err := run.Finish(scheduler.RunFailed, perr.Error()); err != nil {
		return errors.Join(perr, err)
	}
	logger.Error().Err(perr.Err).Str(logging.FieldTask, perr.Task).Str("kind", perr.Kind).Msg("run failed")
	r.publishFinished(run)
	return perr
}

func (r *Runner) publishProgress(run *scheduler.PipelineRun) {
	ev := events.RunProgressEvent{Total: run.Plan.Len(), Timestamp: time.Now()}
	results := run.Results()
	for _, res := range results {
		if res.Succeeded() {
			ev.Succeeded++
		} else {
			ev.Failed++
		}
	}
	ev.Pending = ev.Total - len(results)
	r.bus.Publish(ev)
}

func (r *Runner) publishFinished(run *scheduler.PipelineRun) {
	r.bus.Publish(events.RunFinishedEvent{
		RunID:     run.ID,
		Status:    run.Status().String(),
		Reason:    run.Reason(),
		Duration:  run.FinishedAt().Sub(run.StartedAt()),
		Timestamp: run.FinishedAt(),
	})
}

// stopCause maps a context error to the pipeline sentinel it stands for.
func stopCause(ctxErr error) error {
	if errors.Is(ctxErr, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrDeadlineExceeded, ctxErr)
	}
	return fmt.Errorf("%w: %w", ErrCanceled, ctxErr)
}

func failedTasksReason(run *scheduler.PipelineRun) string {
	var failed []string
	for _, res := range run.Results() {
		if !res.Succeeded() {
			failed = append(failed, fmt.Sprintf("%s (%s)", res.Task, res.ErrKind))
		}
	}
	return "failed tasks: " + strings.Join(failed, ", ")
}

func taskNames(plan *scheduler.Plan) []string {
	tasks := plan.Tasks()
	names := make([]string, len(tasks))
	for i, t := range tasks {
		names[i] = t.Name
	}
	return names
}

func writeOutputFile(path, content string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, []byte(content), 0o644)
}
