package llm

import (
	"context"
	"fmt"

	"github.com/invopop/jsonschema"
	"google.golang.org/genai"
)

// GeminiBackend generates structured output with Gemini, either through the
// Gemini API or through Vertex AI.
type GeminiBackend struct {
	client    *genai.Client
	modelName string
}

// NewGeminiBackend uses the Gemini API with an API key.
func NewGeminiBackend(ctx context.Context, apiKey, modelName string) (*GeminiBackend, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating Gemini client: %w", err)
	}
	return &GeminiBackend{client: client, modelName: defaultModel(modelName)}, nil
}

// NewVertexBackend uses Vertex AI with application default credentials.
func NewVertexBackend(ctx context.Context, projectID, location, modelName string) (*GeminiBackend, error) {
	if projectID == "" || location == "" {
		return nil, fmt.Errorf("GCP project and location must be set for Vertex AI")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Project:  projectID,
		Location: location,
		Backend:  genai.BackendVertexAI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating Vertex AI client: %w", err)
	}
	return &GeminiBackend{client: client, modelName: defaultModel(modelName)}, nil
}

func (b *GeminiBackend) Generate(ctx context.Context, req Request) (string, error) {
	var contents []*genai.Content
	for _, m := range req.Messages {
		var role genai.Role = genai.RoleUser
		if m.Role == RoleModel {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Text, role))
	}

	temp := float32(0.7)
	cfg := &genai.GenerateContentConfig{
		// According to official examples, the role here is usually RoleUser, not "system"
		SystemInstruction: genai.NewContentFromText(req.System, genai.RoleUser),
		Temperature:       &temp,
		ResponseMIMEType:  "application/json",
		ResponseSchema:    toGenaiSchema(req.Schema),
	}

	res, err := b.client.Models.GenerateContent(ctx, b.modelName, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}

	text := res.Text()
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

func defaultModel(name string) string {
	if name == "" {
		return "gemini-2.5-flash"
	}
	return name
}

// toGenaiSchema converts a reflected JSON schema into Gemini's response schema.
func toGenaiSchema(s *jsonschema.Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{
		Description: s.Description,
		Required:    s.Required,
	}
	switch s.Type {
	case "object":
		out.Type = genai.TypeObject
		if s.Properties != nil {
			out.Properties = make(map[string]*genai.Schema, s.Properties.Len())
			for p := s.Properties.Oldest(); p != nil; p = p.Next() {
				out.Properties[p.Key] = toGenaiSchema(p.Value)
				out.PropertyOrdering = append(out.PropertyOrdering, p.Key)
			}
		}
	case "array":
		out.Type = genai.TypeArray
		out.Items = toGenaiSchema(s.Items)
	case "integer":
		out.Type = genai.TypeInteger
	case "number":
		out.Type = genai.TypeNumber
	case "boolean":
		out.Type = genai.TypeBoolean
	default:
		out.Type = genai.TypeString
	}
	return out
}
