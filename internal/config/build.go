package config

import (
	"errors"
	"fmt"

	"github.com/aristath/grantwriter/internal/agent"
	"github.com/aristath/grantwriter/internal/backend"
	"github.com/aristath/grantwriter/internal/document"
	"github.com/aristath/grantwriter/internal/orchestrator"
	"github.com/aristath/grantwriter/internal/prompt"
	"github.com/aristath/grantwriter/internal/scheduler"
)

// ErrInvalid is returned when the configuration cannot be turned into a
// runnable pipeline.
var ErrInvalid = errors.New("invalid configuration")

// Plan builds the task plan from the pipeline section.
func (c *GrantwriterConfig) Plan() (*scheduler.Plan, error) {
	specs := make([]scheduler.TaskSpec, 0, len(c.Pipeline.Tasks))
	for _, t := range c.Pipeline.Tasks {
		kind, err := prompt.ParseKind(t.Kind)
		if err != nil {
			return nil, fmt.Errorf("%w: task %q: %v", ErrInvalid, t.Name, err)
		}
		role, err := agent.ParseRole(t.Role)
		if err != nil {
			return nil, fmt.Errorf("%w: task %q: %v", ErrInvalid, t.Name, err)
		}
		policy, err := scheduler.ParsePolicy(t.Policy)
		if err != nil {
			return nil, fmt.Errorf("%w: task %q: %v", ErrInvalid, t.Name, err)
		}
		specs = append(specs, scheduler.TaskSpec{
			Name:           t.Name,
			Kind:           kind,
			Role:           role,
			ExpectedOutput: t.ExpectedOutput,
			DependsOn:      t.DependsOn,
			Policy:         policy,
			OutputFile:     t.OutputFile,
		})
	}
	return scheduler.NewPlan(specs)
}

// Profiles returns the built-in role profiles with the agent overrides
// applied.
func (c *GrantwriterConfig) Profiles() (map[agent.Role]agent.Profile, error) {
	profiles := agent.DefaultProfiles()
	for name, ac := range c.Agents {
		role, err := agent.ParseRole(name)
		if err != nil {
			return nil, fmt.Errorf("%w: agent %q: %v", ErrInvalid, name, err)
		}
		p := profiles[role]
		if ac.Title != "" {
			p.Title = ac.Title
		}
		if ac.Persona != "" {
			p.Persona = ac.Persona
		}
		if ac.Goal != "" {
			p.Goal = ac.Goal
		}
		if ac.AllowDelegation != nil {
			p.AllowDelegation = *ac.AllowDelegation
		}
		profiles[role] = p
	}
	return profiles, nil
}

// Process returns the configured process and manager role.
func (c *GrantwriterConfig) Process() (orchestrator.Process, agent.Role, error) {
	process, err := orchestrator.ParseProcess(c.Pipeline.Process)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	manager := agent.RoleProjectManager
	if c.Pipeline.Manager != "" {
		if manager, err = agent.ParseRole(c.Pipeline.Manager); err != nil {
			return "", 0, fmt.Errorf("%w: manager: %v", ErrInvalid, err)
		}
	}
	return process, manager, nil
}

// RetryPolicy returns the retry section as an orchestrator policy. Rate
// limits remain the only retried failures.
func (c *GrantwriterConfig) RetryPolicy() orchestrator.RetryPolicy {
	return orchestrator.RetryPolicy{
		MaxAttempts: c.Retry.MaxAttempts,
		MinWait:     c.Retry.MinWait.Duration,
		MaxWait:     c.Retry.MaxWait.Duration,
		Multiplier:  c.Retry.Multiplier,
		Jitter:      c.Retry.Jitter,
		Retryable:   backend.IsRateLimited,
	}
}

// BreakerSettings returns the breaker section.
func (c *GrantwriterConfig) BreakerSettings() orchestrator.BreakerSettings {
	return orchestrator.BreakerSettings{
		Threshold:   c.Breaker.Threshold,
		Timeout:     c.Breaker.Timeout.Duration,
		MaxRequests: c.Breaker.MaxRequests,
	}
}

// IndexOptions returns the document index settings.
func (c *GrantwriterConfig) IndexOptions() document.IndexOptions {
	return document.IndexOptions{ChunkSize: c.Documents.ChunkSize, TopK: c.Documents.TopK}
}

// BackendConfig returns the backend configuration of a provider, with
// model overriding the provider's default when set.
func (c *GrantwriterConfig) BackendConfig(provider, model string) (backend.Config, error) {
	pc, ok := c.Providers[provider]
	if !ok {
		return backend.Config{}, fmt.Errorf("%w: unknown provider %q", ErrInvalid, provider)
	}
	if model == "" {
		model = pc.Model
	}
	return backend.Config{
		Name:          provider,
		Type:          pc.Type,
		Model:         model,
		BaseURL:       pc.BaseURL,
		APIKeyEnv:     pc.APIKeyEnv,
		Command:       pc.Command,
		Args:          append([]string(nil), pc.Args...),
		MaxTokens:     pc.MaxTokens,
		Temperature:   pc.Temperature,
		MaxToolRounds: pc.MaxToolRounds,
	}, nil
}

// Models builds one backend per distinct provider and model and binds every
// configured role to it. A non-empty override sends every role to that
// provider instead. The returned close function releases all backends.
func (c *GrantwriterConfig) Models(pm *backend.ProcessManager, override string) (map[agent.Role]backend.Backend, func() error, error) {
	type key struct{ provider, model string }
	built := make(map[key]backend.Backend)
	closeAll := func() error {
		var errs []error
		for _, b := range built {
			errs = append(errs, b.Close())
		}
		return errors.Join(errs...)
	}

	models := make(map[agent.Role]backend.Backend)
	for name, ac := range c.Agents {
		role, err := agent.ParseRole(name)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("%w: agent %q: %v", ErrInvalid, name, err)
		}

		k := key{provider: ac.Provider, model: ac.Model}
		if override != "" {
			k = key{provider: override}
		}
		if b, ok := built[k]; ok {
			models[role] = b
			continue
		}

		cfg, err := c.BackendConfig(k.provider, k.model)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("agent %q: %w", name, err)
		}
		b, err := backend.New(cfg, pm)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("agent %q: %w", name, err)
		}
		built[k] = b
		models[role] = b
	}
	return models, closeAll, nil
}
