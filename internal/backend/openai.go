package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	oaoption "github.com/openai/openai-go/option"
)

const defaultOpenAIModel = "gpt-4o-mini"

// OpenAIAdapter calls an OpenAI-compatible Chat Completions endpoint. With
// BaseURL set it serves Groq and other compatible providers. Tools are
// applied by grounding the instructions before the call.
type OpenAIAdapter struct {
	name        string
	client      openai.Client
	model       string
	maxTokens   int64
	temperature *float64
}

// NewOpenAIAdapter creates an adapter. SDK-level retries are disabled.
func NewOpenAIAdapter(cfg Config) (*OpenAIAdapter, error) {
	apiKey, err := resolveAPIKey(cfg, "OPENAI_API_KEY")
	if err != nil {
		return nil, err
	}

	opts := []oaoption.RequestOption{
		oaoption.WithAPIKey(apiKey),
		oaoption.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, oaoption.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = defaultOpenAIModel
	}

	return &OpenAIAdapter{
		name:        cfg.Name,
		client:      openai.NewClient(opts...),
		model:       model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}, nil
}

func (a *OpenAIAdapter) Name() string { return a.name }

func (a *OpenAIAdapter) Close() error { return nil }

func (a *OpenAIAdapter) Send(ctx context.Context, req Request) (Response, error) {
	user, err := groundedInstructions(ctx, req)
	if err != nil {
		return Response{}, &CallError{Provider: a.name, Kind: KindOther, Err: err}
	}

	var messages []openai.ChatCompletionMessageParamUnion
	if sys := systemPrompt(req); sys != "" {
		messages = append(messages, openai.SystemMessage(sys))
	}
	messages = append(messages, openai.UserMessage(user))

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(a.model),
		Messages: messages,
	}
	if a.maxTokens > 0 {
		params.MaxTokens = openai.Int(a.maxTokens)
	}
	if a.temperature != nil {
		params.Temperature = openai.Float(*a.temperature)
	}

	completion, err := a.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return Response{}, wrapError(a.name, err, apiErr.StatusCode)
		}
		return Response{}, wrapError(a.name, err, 0)
	}
	if len(completion.Choices) == 0 {
		return Response{}, &CallError{Provider: a.name, Kind: KindServer, Err: fmt.Errorf("response has no choices")}
	}

	return Response{
		Content:      completion.Choices[0].Message.Content,
		InputTokens:  completion.Usage.PromptTokens,
		OutputTokens: completion.Usage.CompletionTokens,
	}, nil
}
