package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicBackend forces a single tool call whose input schema is the
// requested output schema, and returns the tool input.
type AnthropicBackend struct {
	client    anthropic.Client
	modelName string
}

func NewAnthropicBackend(apiKey, modelName string) (*AnthropicBackend, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}
	if modelName == "" {
		modelName = string(anthropic.ModelClaude4Sonnet20250514)
	}
	return &AnthropicBackend{
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		modelName: modelName,
	}, nil
}

func (b *AnthropicBackend) Generate(ctx context.Context, req Request) (string, error) {
	var messages []anthropic.MessageParam
	for _, m := range alternate(req.Messages) {
		if m.Role == RoleModel {
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Text)))
			continue
		}
		messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Text)))
	}

	tool := anthropic.ToolParam{
		Name:        req.Name,
		Description: anthropic.String(req.Description),
		InputSchema: anthropic.ToolInputSchemaParam{
			Properties: req.Schema.Properties,
		},
	}

	response, err := b.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(b.modelName),
		MaxTokens: 4096,
		System:    []anthropic.TextBlockParam{{Text: req.System}},
		Messages:  messages,
		Tools:     []anthropic.ToolUnionParam{{OfTool: &tool}},
		ToolChoice: anthropic.ToolChoiceUnionParam{
			OfTool: &anthropic.ToolChoiceToolParam{Name: req.Name},
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic messages: %w", err)
	}

	for _, block := range response.Content {
		switch block := block.AsAny().(type) {
		case anthropic.ToolUseBlock:
			if block.Name != req.Name {
				return "", fmt.Errorf("unexpected tool call: %s", block.Name)
			}
			input, err := json.Marshal(block.Input)
			if err != nil {
				return "", fmt.Errorf("encode tool input: %w", err)
			}
			return string(input), nil
		}
	}
	return "", ErrEmptyResponse
}
