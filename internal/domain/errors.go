package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures crossing the controller boundary.
type ErrorKind string

const (
	KindGeneration   ErrorKind = "generation"
	KindChatTurn     ErrorKind = "chat_turn"
	KindGrading      ErrorKind = "grading"
	KindHint         ErrorKind = "hint"
	KindInvalidInput ErrorKind = "invalid_input"
	KindInvalidState ErrorKind = "invalid_state"
	KindNotFound     ErrorKind = "not_found"
	KindSuperseded   ErrorKind = "superseded"
)

// Bootstrap stages reported on generation errors.
const (
	StagePersona  = "persona"
	StageGreeting = "greeting"
)

// Error is the error type returned by the session manager and the controllers.
// Stage is only set for generation errors.
type Error struct {
	Kind  ErrorKind
	Op    string
	Stage string
	Err   error
}

func (e *Error) Error() string {
	msg := e.Op
	if e.Stage != "" {
		msg += " (" + e.Stage + ")"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, ErrChatTurn) works
// on every chat turn failure.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Op == "" || t.Op == e.Op)
}

func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the first *Error in the chain, or "".
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// StageOf returns the bootstrap stage of a generation error, or "".
func StageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Stage
	}
	return ""
}

var (
	ErrGeneration   = &Error{Kind: KindGeneration}
	ErrChatTurn     = &Error{Kind: KindChatTurn}
	ErrGrading      = &Error{Kind: KindGrading}
	ErrHint         = &Error{Kind: KindHint}
	ErrInvalidInput = &Error{Kind: KindInvalidInput}
	ErrInvalidState = &Error{Kind: KindInvalidState}
	ErrNotFound     = &Error{Kind: KindNotFound}
	ErrSuperseded   = &Error{Kind: KindSuperseded}
)

var (
	ErrEmptyMessage    = errors.New("message is empty")
	ErrUnknownLanguage = errors.New("unknown language")
	ErrReplyPending    = errors.New("a reply is still pending")
	ErrNoUserTurns     = errors.New("no user turns to grade")
	ErrIllegalPhase    = errors.New("illegal phase transition")
	ErrNoPersona       = errors.New("session has no persona")
	ErrTurnNotFound    = errors.New("turn not found")
	ErrSessionNotFound = errors.New("session not found")
)
