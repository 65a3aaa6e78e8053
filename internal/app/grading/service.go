// Package grading runs the end-of-session evaluation. At most one grading
// call is in flight per player; further requests join it.
package grading

import (
	"context"
	"sync"

	"github.com/PabloGalante/needlingo/internal/app/session"
	"github.com/PabloGalante/needlingo/internal/domain"
	"github.com/PabloGalante/needlingo/internal/observability"
)

type Service struct {
	gateway  domain.Gateway
	sessions *session.Manager
	archive  domain.ArchiveStore

	mu      sync.Mutex
	current *call
}

// call is one in-flight grading request.
type call struct {
	id     domain.SessionID
	done   chan struct{}
	result *domain.GradingResult
	err    error
}

// NewService builds the grading controller. archive may be nil.
func NewService(gateway domain.Gateway, sessions *session.Manager, archive domain.ArchiveStore) *Service {
	return &Service{
		gateway:  gateway,
		sessions: sessions,
		archive:  archive,
	}
}

// Finalize grades the current session and waits for the result. A call made
// while grading is already in flight waits for that same request.
func (s *Service) Finalize(ctx context.Context) (*domain.GradingResult, error) {
	c, err := s.start(ctx)
	if err != nil {
		return nil, err
	}
	return s.wait(ctx, c)
}

// TriggerAuto starts grading in the background when the turn ceiling has been
// reached. It never blocks on the gateway.
func (s *Service) TriggerAuto(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil && s.current.id == s.sessions.SessionID() {
		return
	}
	id, req, ok := s.sessions.BeginAutoGrading()
	if !ok {
		return
	}
	observability.LoggerFromContext(ctx).Info("turn ceiling reached, grading",
		"session_id", id,
		"max_turns", s.sessions.MaxTurns(),
	)
	s.launchLocked(ctx, id, req)
}

// Wait blocks until the in-flight grading, if any, settles and returns its
// outcome. Without one it returns the stored result of a graded session.
func (s *Service) Wait(ctx context.Context) (*domain.GradingResult, error) {
	s.mu.Lock()
	c := s.current
	s.mu.Unlock()

	if c != nil {
		return s.wait(ctx, c)
	}
	if g, ok := s.sessions.Grading(); ok {
		return g, nil
	}
	return nil, domain.NewError(domain.KindInvalidState, "wait grading", nil)
}

// --- internal helpers --- //

func (s *Service) start(ctx context.Context) (*call, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil && s.current.id == s.sessions.SessionID() {
		observability.LoggerFromContext(ctx).Info("joining in-flight grading", "session_id", s.current.id)
		return s.current, nil
	}

	id, req, err := s.sessions.BeginGrading()
	if err != nil {
		return nil, err
	}
	observability.LoggerFromContext(ctx).Info("grading requested", "session_id", id)
	return s.launchLocked(ctx, id, req), nil
}

func (s *Service) launchLocked(ctx context.Context, id domain.SessionID, req domain.GradingRequest) *call {
	c := &call{id: id, done: make(chan struct{})}
	s.current = c

	callCtx, cancel, err := s.sessions.CallContext(ctx, id)
	if err != nil {
		c.err = err
		s.current = nil
		close(c.done)
		return c
	}

	go func() {
		defer cancel()
		s.run(callCtx, c, req)

		s.mu.Lock()
		if s.current == c {
			s.current = nil
		}
		s.mu.Unlock()
		close(c.done)
	}()
	return c
}

func (s *Service) run(ctx context.Context, c *call, req domain.GradingRequest) {
	const op = "finalize"
	log := observability.LoggerFromContext(ctx).With("session_id", c.id)

	result, err := s.gateway.GenerateGrading(ctx, req)
	if err != nil {
		if ferr := s.sessions.FailGrading(c.id); ferr != nil {
			log.Warn("discarding grading failure of a replaced session", "error", err)
			c.err = domain.NewError(domain.KindSuperseded, op, err)
			return
		}
		log.Error("grading failed", "error", err)
		c.err = domain.NewError(domain.KindGrading, op, err)
		return
	}

	if err := s.sessions.CompleteGrading(c.id, *result); err != nil {
		log.Warn("discarding grading result", "error", err)
		c.err = err
		return
	}
	c.result = result
	log.Info("session graded",
		"total_score", result.TotalScore,
		"cleared", result.IsLevelCleared,
	)

	s.store(ctx, c.id)
}

// store archives a graded session. Failures are only logged.
func (s *Service) store(ctx context.Context, id domain.SessionID) {
	if s.archive == nil {
		return
	}
	log := observability.LoggerFromContext(ctx).With("session_id", id)

	rec, err := s.sessions.Record(id)
	if err != nil {
		log.Warn("cannot build archive record", "error", err)
		return
	}
	if err := s.archive.SaveSession(ctx, rec); err != nil {
		log.Error("failed to archive session", "error", err)
	}
}

func (s *Service) wait(ctx context.Context, c *call) (*domain.GradingResult, error) {
	select {
	case <-c.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if c.err != nil {
		return nil, c.err
	}
	g := c.result.Clone()
	return &g, nil
}
