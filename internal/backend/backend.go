// Package backend provides the model invocation adapters used by pipeline
// agents: hosted APIs, local CLI tools and an offline echo backend.
package backend

import (
	"context"
	"fmt"
	"os"
)

// Backend defines the interface that all backend adapters must implement.
type Backend interface {
	// Name returns the provider name the backend was configured under.
	Name() string

	// Send performs one model call. Failures are *CallError values.
	Send(ctx context.Context, req Request) (Response, error)

	// Close releases any resources held by the backend.
	Close() error
}

// New creates a new backend based on the provided configuration.
// This factory function switches on cfg.Type and returns the appropriate adapter.
func New(cfg Config, pm *ProcessManager) (Backend, error) {
	if cfg.Name == "" {
		cfg.Name = cfg.Type
	}
	switch cfg.Type {
	case "anthropic":
		return NewAnthropicAdapter(cfg)
	case "openai":
		return NewOpenAIAdapter(cfg)
	case "command":
		return NewCommandAdapter(cfg, pm)
	case "echo":
		return NewEchoAdapter(cfg), nil
	default:
		return nil, fmt.Errorf("unknown backend type: %s", cfg.Type)
	}
}

// resolveAPIKey returns cfg.APIKey, falling back to the named environment
// variable and then to fallbackEnv.
func resolveAPIKey(cfg Config, fallbackEnv string) (string, error) {
	if cfg.APIKey != "" {
		return cfg.APIKey, nil
	}
	env := cfg.APIKeyEnv
	if env == "" {
		env = fallbackEnv
	}
	if key := os.Getenv(env); key != "" {
		return key, nil
	}
	return "", fmt.Errorf("provider %s: no API key (set %s)", cfg.Name, env)
}
