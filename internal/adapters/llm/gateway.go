package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/invopop/jsonschema"

	"github.com/PabloGalante/needlingo/internal/domain"
	"github.com/PabloGalante/needlingo/internal/observability"
)

// Role of a conversation message sent to a backend.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

type Message struct {
	Role Role
	Text string
}

// Request is one structured generation call. The backend must answer with a
// JSON document for Schema.
type Request struct {
	Name        string
	Description string
	System      string
	Messages    []Message
	Schema      *jsonschema.Schema
}

// Backend is a model vendor able to produce schema-shaped JSON.
type Backend interface {
	Generate(ctx context.Context, req Request) (string, error)
}

var ErrEmptyResponse = errors.New("model returned an empty response")

// Gateway implements domain.Gateway on top of a Backend.
type Gateway struct {
	backend Backend
	timeout time.Duration
}

// NewGateway wraps backend. A zero timeout leaves calls unbounded.
func NewGateway(backend Backend, timeout time.Duration) *Gateway {
	return &Gateway{
		backend: backend,
		timeout: timeout,
	}
}

func (g *Gateway) GeneratePersona(ctx context.Context, lang domain.Language) (*domain.Persona, error) {
	var out personaOutput
	err := g.call(ctx, Request{
		Name:        "generate_persona",
		Description: "Return the generated interview persona",
		System:      personaInstruction(lang),
		Messages:    []Message{{Role: RoleUser, Text: personaPrompt}},
		Schema:      personaSchema,
	}, &out)
	if err != nil {
		return nil, err
	}
	p := domain.Persona(out)
	return &p, nil
}

func (g *Gateway) GenerateGreeting(ctx context.Context, persona domain.Persona, lang domain.Language) (*domain.AgentReply, error) {
	var out greetingOutput
	err := g.call(ctx, Request{
		Name:        "generate_greeting",
		Description: "Return the persona's opening line",
		System:      greetingInstruction(lang),
		Messages:    []Message{{Role: RoleUser, Text: greetingPrompt(persona)}},
		Schema:      greetingSchema,
	}, &out)
	if err != nil {
		return nil, err
	}
	reply := domain.AgentReply(out.AIResponse)
	return &reply, nil
}

func (g *Gateway) SendChatMessage(ctx context.Context, req domain.ChatRequest) (*domain.ChatReply, error) {
	var out chatOutput
	err := g.call(ctx, Request{
		Name:        "send_chat_message",
		Description: "Return the critique of the user's question and the persona's reply",
		System:      chatInstruction(req.Language, req.Persona),
		Messages:    chatMessages(req.History, req.UserText, req.Persona),
		Schema:      chatSchema,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &domain.ChatReply{
		UserAnalysis: domain.Analysis(out.UserAnalysis),
		AIResponse:   domain.AgentReply(out.AIResponse),
	}, nil
}

func (g *Gateway) GenerateHint(ctx context.Context, req domain.HintRequest) (string, error) {
	var out hintOutput
	err := g.call(ctx, Request{
		Name:        "generate_hint",
		Description: "Return the single best next question",
		System:      hintInstruction(req.Language),
		Messages:    []Message{{Role: RoleUser, Text: hintPrompt(req.Persona, req.History)}},
		Schema:      hintSchema,
	}, &out)
	if err != nil {
		return "", err
	}
	hint := strings.TrimSpace(out.Hint)
	if hint == "" {
		return "", fmt.Errorf("generate_hint: %w", ErrEmptyResponse)
	}
	return hint, nil
}

func (g *Gateway) GenerateGrading(ctx context.Context, req domain.GradingRequest) (*domain.GradingResult, error) {
	var out gradingOutput
	err := g.call(ctx, Request{
		Name:        "generate_grading",
		Description: "Return the evaluation of the whole interview",
		System:      gradingInstruction(req.Language),
		Messages:    []Message{{Role: RoleUser, Text: gradingPrompt(req.Persona, req.History)}},
		Schema:      gradingSchema,
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.result(), nil
}

func (g *Gateway) call(ctx context.Context, req Request, out any) error {
	log := observability.LoggerFromContext(ctx).With("call", req.Name)

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	start := time.Now()
	raw, err := g.backend.Generate(ctx, req)
	if err != nil {
		log.Error("gateway call failed", "error", err, "duration", time.Since(start))
		return fmt.Errorf("%s: %w", req.Name, err)
	}
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("%s: %w", req.Name, ErrEmptyResponse)
	}

	if err := decodeStrict(raw, req.Schema, out); err != nil {
		log.Error("model output rejected", "error", err)
		return fmt.Errorf("%s: %w", req.Name, err)
	}

	log.Info("gateway call completed", "duration", time.Since(start))
	return nil
}

// alternate folds consecutive messages of the same role into one and makes
// sure the conversation opens with a user message, as chat APIs require.
func alternate(msgs []Message) []Message {
	var out []Message
	for _, m := range msgs {
		if n := len(out); n > 0 && out[n-1].Role == m.Role {
			out[n-1].Text += "\n\n" + m.Text
			continue
		}
		out = append(out, m)
	}
	if len(out) > 0 && out[0].Role != RoleUser {
		out = append([]Message{{Role: RoleUser, Text: conversationOpener}}, out...)
	}
	return out
}
