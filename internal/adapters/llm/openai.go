package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// OpenAIBackend asks an OpenAI chat model for a required function call and
// returns its arguments.
type OpenAIBackend struct {
	llm llms.Model
}

func NewOpenAIBackend(apiKey, modelName string) (*OpenAIBackend, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}
	if modelName == "" {
		modelName = "gpt-4o-mini"
	}
	llm, err := openai.New(
		openai.WithModel(modelName),
		openai.WithToken(apiKey),
	)
	if err != nil {
		return nil, fmt.Errorf("creating OpenAI client: %w", err)
	}
	return &OpenAIBackend{llm: llm}, nil
}

// NewOpenAIBackendWithModel wraps any langchaingo model that supports tools.
func NewOpenAIBackendWithModel(model llms.Model) *OpenAIBackend {
	return &OpenAIBackend{llm: model}
}

func (b *OpenAIBackend) Generate(ctx context.Context, req Request) (string, error) {
	params, err := schemaMap(req.Schema)
	if err != nil {
		return "", fmt.Errorf("encode schema: %w", err)
	}

	history := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, req.System),
	}
	for _, m := range alternate(req.Messages) {
		kind := llms.ChatMessageTypeHuman
		if m.Role == RoleModel {
			kind = llms.ChatMessageTypeAI
		}
		history = append(history, llms.TextParts(kind, m.Text))
	}

	tools := []llms.Tool{
		{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        req.Name,
				Description: req.Description,
				Parameters:  params,
			},
		},
	}

	resp, err := b.llm.GenerateContent(ctx, history,
		llms.WithTools(tools),
		llms.WithTemperature(0.7),
		llms.WithToolChoice("required"))
	if err != nil {
		return "", fmt.Errorf("openai generate content: %w", err)
	}

	if len(resp.Choices) == 0 || len(resp.Choices[0].ToolCalls) == 0 {
		return "", fmt.Errorf("no tool calls in response: %w", ErrEmptyResponse)
	}

	toolCall := resp.Choices[0].ToolCalls[0]
	if toolCall.FunctionCall == nil || toolCall.FunctionCall.Name != req.Name {
		return "", fmt.Errorf("unexpected function call in response")
	}
	return toolCall.FunctionCall.Arguments, nil
}
