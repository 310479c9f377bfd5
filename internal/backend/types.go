package backend

import (
	"context"
)

// Tool is something a model may consult while answering, such as a
// document search.
type Tool interface {
	Name() string
	Description() string
	Query(ctx context.Context, query string) (string, error)
}

// Request is one model invocation: who the model should be and what it
// should do.
type Request struct {
	Stage        string // pipeline task name, for logs and offline backends
	Persona      string
	Goal         string
	Instructions string
	Tools        []Tool
}

// Response is the model's answer.
type Response struct {
	Content      string
	InputTokens  int64
	OutputTokens int64
	ToolCalls    int
}

// Config defines the configuration for a backend.
type Config struct {
	Name          string // provider name, used for circuit breakers and logs
	Type          string // "anthropic", "openai", "command" or "echo"
	Model         string
	BaseURL       string // OpenAI-compatible endpoint (e.g. Groq)
	APIKey        string
	APIKeyEnv     string   // environment variable consulted when APIKey is empty
	Command       string   // CLI binary for the command backend
	Args          []string // "{prompt}" is replaced by the prompt; otherwise it goes to stdin
	WorkDir       string
	MaxTokens     int64
	Temperature   *float64
	MaxToolRounds int
}
