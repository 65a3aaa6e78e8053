package domain

import "strings"

type SessionID string
type UserID string
type TurnID string

// Sender tells who authored a turn.
type Sender string

const (
	SenderUser  Sender = "user"
	SenderAgent Sender = "agent"
)

// Language is the output language requested from the model.
type Language string

const (
	LanguageEnglish Language = "en"
	LanguageChinese Language = "zh"
)

// ParseLanguage accepts "en"/"zh" (and a few spellings of them).
func ParseLanguage(s string) (Language, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "en", "english":
		return LanguageEnglish, nil
	case "zh", "cn", "chinese", "zh-cn":
		return LanguageChinese, nil
	default:
		return "", NewError(KindInvalidInput, "parse language", ErrUnknownLanguage)
	}
}

// DisplayName is the name used inside model instructions.
func (l Language) DisplayName() string {
	if l == LanguageChinese {
		return "Chinese (Simplified)"
	}
	return "English"
}

// Phase is the lifecycle state of a session.
type Phase string

const (
	PhaseIdle         Phase = "idle"
	PhaseInitializing Phase = "initializing" // persona generation in flight
	PhaseGreeting     Phase = "greeting"     // opening agent message in flight
	PhaseChatting     Phase = "chatting"
	PhaseGrading      Phase = "grading"
	PhaseGraded       Phase = "graded"
)

// DefaultMaxTurns is the user-turn ceiling that triggers automatic grading.
const DefaultMaxTurns = 15
