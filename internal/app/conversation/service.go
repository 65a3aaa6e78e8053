package conversation

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/singleflight"

	"github.com/PabloGalante/needlingo/internal/app/session"
	"github.com/PabloGalante/needlingo/internal/domain"
	"github.com/PabloGalante/needlingo/internal/observability"
)

// AutoGrader is notified after every settled exchange so it can start grading
// once the turn ceiling is reached.
type AutoGrader interface {
	TriggerAuto(ctx context.Context)
}

// Service drives the session bootstrap and the question/answer exchanges of
// one player.
type Service struct {
	gateway  domain.Gateway
	sessions *session.Manager
	grader   AutoGrader

	hints singleflight.Group
}

func NewService(gateway domain.Gateway, sessions *session.Manager, grader AutoGrader) *Service {
	return &Service{
		gateway:  gateway,
		sessions: sessions,
		grader:   grader,
	}
}

// ExchangeResult is a settled user+agent exchange.
type ExchangeResult struct {
	UserTurn  domain.TurnID
	AgentTurn domain.TurnID
	Analysis  domain.Analysis
	Reply     domain.AgentReply
}

// StartSession discards any current session, generates a persona and its
// opening line, and leaves the new session in PhaseChatting. A failure at
// either step aborts the session back to PhaseIdle.
func (s *Service) StartSession(ctx context.Context, lang domain.Language) (domain.View, error) {
	id, _ := s.sessions.CreateSession(lang)
	callCtx, cancel, err := s.sessions.CallContext(ctx, id)
	if err != nil {
		return domain.View{}, err
	}
	defer cancel()

	log := observability.LoggerFromContext(ctx).With(
		"session_id", id,
		"language", lang,
	)
	log.Info("starting new session")

	persona, err := s.gateway.GeneratePersona(callCtx, lang)
	if err == nil {
		err = s.sessions.SetPersona(id, *persona)
	}
	if err != nil {
		return domain.View{}, s.abortBootstrap(ctx, id, domain.StagePersona, err)
	}
	log.Info("persona generated", "persona", persona.Name)

	greeting, err := s.gateway.GenerateGreeting(callCtx, *persona, lang)
	if err == nil {
		_, err = s.sessions.AppendAgentTurn(id, *greeting)
	}
	if err != nil {
		return domain.View{}, s.abortBootstrap(ctx, id, domain.StageGreeting, err)
	}

	if err := s.sessions.Transition(id, domain.PhaseChatting); err != nil {
		return domain.View{}, err
	}

	log.Info("session started")
	return s.sessions.View(), nil
}

// SubmitUserMessage appends the question immediately, then waits for its
// analysis and the persona's answer.
func (s *Service) SubmitUserMessage(ctx context.Context, text string) (*ExchangeResult, error) {
	id, turnID, err := s.sessions.AppendUserTurn(text)
	if err != nil {
		return nil, err
	}
	return s.exchange(ctx, "submit user message", id, turnID)
}

// RetryUserMessage re-requests the reply to a user turn whose exchange failed.
func (s *Service) RetryUserMessage(ctx context.Context, turnID domain.TurnID) (*ExchangeResult, error) {
	id, err := s.sessions.BeginRetry(turnID)
	if err != nil {
		return nil, err
	}
	return s.exchange(ctx, "retry user message", id, turnID)
}

// RequestHint asks the coach for a suggested next question. Concurrent requests
// against the same transcript share one gateway call.
func (s *Service) RequestHint(ctx context.Context) (string, error) {
	const op = "request hint"

	id, req, err := s.sessions.HintRequest()
	if err != nil {
		return "", err
	}
	log := observability.LoggerFromContext(ctx).With("session_id", id)
	key := fmt.Sprintf("%s/%d", id, len(req.History))

	v, err, shared := s.hints.Do(key, func() (any, error) {
		callCtx, cancel, err := s.sessions.CallContext(ctx, id)
		if err != nil {
			return "", err
		}
		defer cancel()
		return s.gateway.GenerateHint(callCtx, req)
	})
	if err != nil {
		log.Error("hint generation failed", "error", err)
		return "", domain.NewError(domain.KindHint, op, err)
	}
	log.Info("hint generated", "shared", shared)
	return v.(string), nil
}

// ToggleAnalysis flips whether a turn's analysis is shown.
func (s *Service) ToggleAnalysis(turnID domain.TurnID) error {
	return s.sessions.ToggleTurnVisibility(turnID)
}

func (s *Service) View() domain.View {
	return s.sessions.View()
}

// --- internal helpers --- //

func (s *Service) exchange(ctx context.Context, op string, id domain.SessionID, turnID domain.TurnID) (*ExchangeResult, error) {
	log := observability.LoggerFromContext(ctx).With(
		"session_id", id,
		"turn_id", turnID,
	)
	log.Info("exchange started")

	req, err := s.sessions.ChatRequest(id, turnID)
	if err != nil {
		_ = s.sessions.FailAnalysis(id, turnID)
		return nil, err
	}
	callCtx, cancel, err := s.sessions.CallContext(ctx, id)
	if err != nil {
		return nil, err
	}
	defer cancel()

	reply, err := s.gateway.SendChatMessage(callCtx, req)
	if err != nil {
		if ferr := s.sessions.FailAnalysis(id, turnID); ferr != nil {
			log.Warn("discarding chat failure of a replaced session", "error", err)
			return nil, domain.NewError(domain.KindSuperseded, op, err)
		}
		log.Error("chat turn failed", "error", err)
		s.checkAutoGrading(ctx)
		return nil, domain.NewError(domain.KindChatTurn, op, err)
	}

	if err := s.sessions.AttachAnalysis(id, turnID, reply.UserAnalysis); err != nil {
		log.Warn("discarding analysis", "error", err)
		return nil, domain.NewError(domain.KindSuperseded, op, err)
	}
	agentID, err := s.sessions.AppendAgentTurn(id, reply.AIResponse)
	if err != nil {
		log.Warn("discarding agent reply", "error", err)
		return nil, domain.NewError(domain.KindSuperseded, op, err)
	}

	log.Info("exchange completed", "score", reply.UserAnalysis.Score)
	s.checkAutoGrading(ctx)

	return &ExchangeResult{
		UserTurn:  turnID,
		AgentTurn: agentID,
		Analysis:  reply.UserAnalysis,
		Reply:     reply.AIResponse,
	}, nil
}

func (s *Service) checkAutoGrading(ctx context.Context) {
	if s.grader != nil {
		s.grader.TriggerAuto(ctx)
	}
}

func (s *Service) abortBootstrap(ctx context.Context, id domain.SessionID, stage string, cause error) error {
	log := observability.LoggerFromContext(ctx).With("session_id", id, "stage", stage)

	if errors.Is(cause, domain.ErrSuperseded) || s.sessions.SessionID() != id {
		log.Warn("bootstrap of a replaced session stopped", "error", cause)
		return domain.NewError(domain.KindSuperseded, "start session", cause)
	}
	if err := s.sessions.Transition(id, domain.PhaseIdle); err != nil {
		log.Warn("failed to abort session", "error", err)
	}
	log.Error("session bootstrap failed", "error", cause)

	return &domain.Error{
		Kind:  domain.KindGeneration,
		Op:    "start session",
		Stage: stage,
		Err:   cause,
	}
}
