package config

import (
	"time"

	"github.com/aristath/grantwriter/internal/agent"
	"github.com/aristath/grantwriter/internal/document"
	"github.com/aristath/grantwriter/internal/scheduler"
)

// defaultTemperature matches the sampling temperature the pipeline's
// prompts were tuned with.
const defaultTemperature = 0.7

// DefaultConfig returns the default configuration with built-in providers,
// agents and the five-task proposal pipeline.
func DefaultConfig() *GrantwriterConfig {
	temp := defaultTemperature
	return &GrantwriterConfig{
		Providers: map[string]ProviderConfig{
			"groq": {
				Type:        "openai",
				Model:       "llama3-70b-8192",
				BaseURL:     "https://api.groq.com/openai/v1/",
				APIKeyEnv:   "GROQ_API_KEY",
				Temperature: &temp,
			},
			"openai": {
				Type:        "openai",
				Model:       "gpt-4o-mini",
				APIKeyEnv:   "OPENAI_API_KEY",
				Temperature: &temp,
			},
			"anthropic": {
				Type:          "anthropic",
				Model:         "claude-sonnet-4-5",
				APIKeyEnv:     "ANTHROPIC_API_KEY",
				MaxTokens:     4096,
				MaxToolRounds: 8,
			},
			"claude-cli": {
				Type:    "command",
				Command: "claude",
				Args:    []string{"-p"},
			},
			"echo": {
				Type: "echo",
			},
		},
		Agents: map[string]AgentConfig{
			agent.RoleDocumentIngestion.String(): {Provider: "groq"},
			agent.RoleRFPAnalysis.String():       {Provider: "groq"},
			agent.RoleProposalWriting.String():   {Provider: "groq"},
			agent.RoleBudgetPreparation.String(): {Provider: "groq"},
			agent.RoleQualityReview.String():     {Provider: "groq"},
			agent.RoleProjectManager.String():    {Provider: "openai"},
			agent.RoleMissionVision.String():     {Provider: "groq"},
			agent.RoleImpactResearch.String():    {Provider: "groq"},
			agent.RoleBudgetAnalysis.String():    {Provider: "groq"},
			agent.RoleTeamGovernance.String():    {Provider: "groq"},
			agent.RoleCaseTestimonial.String():   {Provider: "groq"},
		},
		Pipeline: PipelineConfig{
			Tasks:   taskConfigs(scheduler.DefaultTasks()),
			Process: "sequential",
			Manager: agent.RoleProjectManager.String(),
		},
		Retry: RetryConfig{
			MaxAttempts: 5,
			MinWait:     Duration{time.Second},
			MaxWait:     Duration{time.Minute},
			Multiplier:  2,
			Jitter:      0.5,
		},
		Breaker: BreakerConfig{
			Threshold:   5,
			Timeout:     Duration{30 * time.Second},
			MaxRequests: 1,
		},
		Documents: DocumentsConfig{
			ChunkSize: document.DefaultChunkSize,
			TopK:      document.DefaultTopK,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func taskConfigs(tasks []scheduler.TaskSpec) []TaskConfig {
	out := make([]TaskConfig, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, TaskConfig{
			Name:           t.Name,
			Kind:           string(t.Kind),
			Role:           t.Role.String(),
			ExpectedOutput: t.ExpectedOutput,
			DependsOn:      append([]string(nil), t.DependsOn...),
			Policy:         t.Policy.String(),
			OutputFile:     t.OutputFile,
		})
	}
	return out
}
