package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	defaultAnthropicModel     = anthropic.ModelClaudeSonnet4_20250514
	defaultAnthropicMaxTokens = 8192
	defaultMaxToolRounds      = 8
)

// AnthropicAdapter calls the Anthropic Messages API. Document tools are
// offered natively and answered in a bounded tool-use loop.
type AnthropicAdapter struct {
	name          string
	client        anthropic.Client
	model         anthropic.Model
	maxTokens     int64
	temperature   *float64
	maxToolRounds int
}

// NewAnthropicAdapter creates an adapter. SDK-level retries are disabled;
// retry policy belongs to the caller.
func NewAnthropicAdapter(cfg Config) (*AnthropicAdapter, error) {
	apiKey, err := resolveAPIKey(cfg, "ANTHROPIC_API_KEY")
	if err != nil {
		return nil, err
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	a := &AnthropicAdapter{
		name:          cfg.Name,
		client:        anthropic.NewClient(opts...),
		model:         anthropic.Model(cfg.Model),
		maxTokens:     cfg.MaxTokens,
		temperature:   cfg.Temperature,
		maxToolRounds: cfg.MaxToolRounds,
	}
	if a.model == "" {
		a.model = defaultAnthropicModel
	}
	if a.maxTokens <= 0 {
		a.maxTokens = defaultAnthropicMaxTokens
	}
	if a.maxToolRounds <= 0 {
		a.maxToolRounds = defaultMaxToolRounds
	}
	return a, nil
}

func (a *AnthropicAdapter) Name() string { return a.name }

func (a *AnthropicAdapter) Close() error { return nil }

// Send runs the request, answering tool calls until the model ends its turn.
func (a *AnthropicAdapter) Send(ctx context.Context, req Request) (Response, error) {
	var resp Response

	tools := make(map[string]Tool, len(req.Tools))
	for _, t := range req.Tools {
		tools[t.Name()] = t
	}

	messages := []anthropic.MessageParam{
		anthropic.NewUserMessage(anthropic.NewTextBlock(req.Instructions)),
	}

	for round := 0; round < a.maxToolRounds; round++ {
		params := anthropic.MessageNewParams{
			Model:     a.model,
			MaxTokens: a.maxTokens,
			Messages:  messages,
		}
		if sys := systemPrompt(req); sys != "" {
			params.System = []anthropic.TextBlockParam{{Text: sys}}
		}
		if len(req.Tools) > 0 {
			params.Tools = toolDefinitions(req.Tools)
		}
		if a.temperature != nil {
			params.Temperature = anthropic.Float(*a.temperature)
		}

		msg, err := a.client.Messages.New(ctx, params)
		if err != nil {
			return resp, a.classify(err)
		}
		resp.InputTokens += msg.Usage.InputTokens
		resp.OutputTokens += msg.Usage.OutputTokens

		var text strings.Builder
		var assistantBlocks []anthropic.ContentBlockParamUnion
		var toolResults []anthropic.ContentBlockParamUnion

		for _, block := range msg.Content {
			switch variant := block.AsAny().(type) {
			case anthropic.TextBlock:
				text.WriteString(variant.Text)
				assistantBlocks = append(assistantBlocks, anthropic.NewTextBlock(variant.Text))

			case anthropic.ToolUseBlock:
				resp.ToolCalls++
				assistantBlocks = append(assistantBlocks,
					anthropic.NewToolUseBlock(variant.ID, variant.Input, variant.Name))

				content, isError := runTool(ctx, tools, variant.Name, variant.Input)
				toolResults = append(toolResults,
					anthropic.NewToolResultBlock(variant.ID, content, isError))
			}
		}

		if msg.StopReason != anthropic.StopReasonToolUse || len(toolResults) == 0 {
			resp.Content = text.String()
			return resp, nil
		}

		messages = append(messages,
			anthropic.NewAssistantMessage(assistantBlocks...),
			anthropic.NewUserMessage(toolResults...))
	}

	return resp, &CallError{
		Provider: a.name,
		Kind:     KindOther,
		Err:      fmt.Errorf("tool-use loop exceeded %d rounds", a.maxToolRounds),
	}
}

func (a *AnthropicAdapter) classify(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return wrapError(a.name, err, apiErr.StatusCode)
	}
	return wrapError(a.name, err, 0)
}

// toolDefinitions describes every tool as taking a single query string.
func toolDefinitions(tools []Tool) []anthropic.ToolUnionParam {
	defs := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		defs = append(defs, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Name(),
				Description: anthropic.String(t.Description()),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: map[string]interface{}{
						"query": map[string]interface{}{
							"type":        "string",
							"description": "Free-text search query",
						},
					},
					Required: []string{"query"},
				},
			},
		})
	}
	return defs
}

// runTool executes a tool call and returns its content and whether it failed.
func runTool(ctx context.Context, tools map[string]Tool, name string, input json.RawMessage) (string, bool) {
	t, ok := tools[name]
	if !ok {
		return fmt.Sprintf("unknown tool %q", name), true
	}
	var args struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(input, &args); err != nil {
		return fmt.Sprintf("invalid input: %v", err), true
	}
	out, err := t.Query(ctx, args.Query)
	if err != nil {
		return err.Error(), true
	}
	return out, false
}
