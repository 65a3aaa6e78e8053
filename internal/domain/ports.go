package domain

import "context"

// Gateway is the language model collaborator. Every call returns data that
// conforms to the call's output schema, or an error.
type Gateway interface {
	GeneratePersona(ctx context.Context, lang Language) (*Persona, error)
	GenerateGreeting(ctx context.Context, persona Persona, lang Language) (*AgentReply, error)
	SendChatMessage(ctx context.Context, req ChatRequest) (*ChatReply, error)
	GenerateHint(ctx context.Context, req HintRequest) (string, error)
	GenerateGrading(ctx context.Context, req GradingRequest) (*GradingResult, error)
}

// ChatRequest carries the prior transcript and the new user text.
type ChatRequest struct {
	History  Transcript
	UserText string
	Persona  Persona
	Language Language
}

// ChatReply is the analysis of the user's question plus the persona's answer.
type ChatReply struct {
	UserAnalysis Analysis
	AIResponse   AgentReply
}

type HintRequest struct {
	History  Transcript
	Persona  Persona
	Language Language
}

type GradingRequest struct {
	History  Transcript
	Persona  Persona
	Language Language
}

// ArchiveStore persists graded sessions.
type ArchiveStore interface {
	SaveSession(ctx context.Context, rec *SessionRecord) error
	GetSession(ctx context.Context, id SessionID) (*SessionRecord, error)
	ListSessionsByUser(ctx context.Context, userID UserID, limit int) ([]*SessionRecord, error)
}
