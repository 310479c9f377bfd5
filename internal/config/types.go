package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// ProviderConfig defines a model transport (hosted API, local CLI or echo).
// Providers are separate from agents -- multiple agents can share one provider.
type ProviderConfig struct {
	Type          string   `json:"type"`                  // Backend type matching backend.Config.Type: "anthropic", "openai", "command", "echo"
	Model         string   `json:"model,omitempty"`       // Default model for agents using this provider
	BaseURL       string   `json:"base_url,omitempty"`    // OpenAI-compatible endpoint (e.g. Groq)
	APIKeyEnv     string   `json:"api_key_env,omitempty"` // Environment variable holding the API key
	Command       string   `json:"command,omitempty"`     // CLI binary name for "command" providers
	Args          []string `json:"args,omitempty"`        // Default args appended to every invocation
	MaxTokens     int64    `json:"max_tokens,omitempty"`
	Temperature   *float64 `json:"temperature,omitempty"`
	MaxToolRounds int      `json:"max_tool_rounds,omitempty"` // Tool-use loop bound for the anthropic backend
}

// AgentConfig binds a role to a provider and optionally overrides its
// built-in profile. Empty fields keep the built-in value.
type AgentConfig struct {
	Provider        string `json:"provider"`        // Key into Providers map
	Model           string `json:"model,omitempty"` // Model override (e.g., "llama3-70b-8192")
	Title           string `json:"title,omitempty"`
	Persona         string `json:"persona,omitempty"`
	Goal            string `json:"goal,omitempty"`
	AllowDelegation *bool  `json:"allow_delegation,omitempty"`
}

// TaskConfig defines one task of the pipeline.
type TaskConfig struct {
	Name           string   `json:"name"`
	Kind           string   `json:"kind"` // Instruction template, e.g. "budget-preparation"
	Role           string   `json:"role"` // Key into Agents map
	ExpectedOutput string   `json:"expected_output"`
	DependsOn      []string `json:"depends_on,omitempty"`
	Policy         string   `json:"policy,omitempty"`      // "fatal" (default) or "skippable"
	OutputFile     string   `json:"output_file,omitempty"` // Written when the task succeeds
}

// PipelineConfig defines the task plan and how it is executed.
type PipelineConfig struct {
	Tasks    []TaskConfig `json:"tasks"`
	Process  string       `json:"process,omitempty"` // "sequential" or "hierarchical"
	Manager  string       `json:"manager,omitempty"` // Role executing delegated tasks
	Deadline Duration     `json:"deadline,omitempty"`
}

// RetryConfig tunes the rate-limit retry policy.
type RetryConfig struct {
	MaxAttempts int      `json:"max_attempts"`
	MinWait     Duration `json:"min_wait"`
	MaxWait     Duration `json:"max_wait"`
	Multiplier  float64  `json:"multiplier"`
	Jitter      float64  `json:"jitter"`
}

// BreakerConfig tunes the per-provider circuit breakers. A zero threshold
// disables them.
type BreakerConfig struct {
	Threshold   uint32   `json:"threshold"`
	Timeout     Duration `json:"timeout"`
	MaxRequests uint32   `json:"max_requests"`
}

// DocumentsConfig tunes the document search index.
type DocumentsConfig struct {
	ChunkSize int `json:"chunk_size"`
	TopK      int `json:"top_k"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `json:"level"`
	Pretty bool   `json:"pretty"`
	File   string `json:"file,omitempty"` // Log destination while the TUI owns the terminal
}

// GrantwriterConfig is the top-level configuration.
type GrantwriterConfig struct {
	Providers map[string]ProviderConfig `json:"providers"`
	Agents    map[string]AgentConfig    `json:"agents"`
	Pipeline  PipelineConfig            `json:"pipeline"`
	Retry     RetryConfig               `json:"retry"`
	Breaker   BreakerConfig             `json:"breaker"`
	Documents DocumentsConfig           `json:"documents"`
	Log       LogConfig                 `json:"log"`
}

// Duration is a time.Duration written as a string ("90s", "2m") in JSON.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("duration must be a string like \"60s\": %w", err)
	}
	if s == "" {
		d.Duration = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}
