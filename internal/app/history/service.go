package history

import (
	"context"

	"github.com/PabloGalante/needlingo/internal/domain"
	"github.com/PabloGalante/needlingo/internal/observability"
)

const defaultLimit = 20

// Service holds the logic of reading archived sessions
type Service struct {
	store domain.ArchiveStore
}

// NewService creates a history service from an ArchiveStore
func NewService(store domain.ArchiveStore) *Service {
	return &Service{
		store: store,
	}
}

// ListUserSessions returns the last `limit` graded sessions of a user.
// If limit <= 0, a reasonable default value is used.
func (s *Service) ListUserSessions(
	ctx context.Context,
	userID domain.UserID,
	limit int,
) ([]*domain.SessionRecord, error) {

	if s.store == nil {
		return []*domain.SessionRecord{}, nil
	}

	if limit <= 0 {
		limit = defaultLimit
	}

	recs, err := s.store.ListSessionsByUser(ctx, userID, limit)
	if err != nil {
		observability.LoggerFromContext(ctx).Error("failed to list archived sessions",
			"user_id", userID,
			"error", err,
		)
		return nil, err
	}
	return recs, nil
}

// GetSession returns one archived session, including the hidden persona.
func (s *Service) GetSession(ctx context.Context, id domain.SessionID) (*domain.SessionRecord, error) {
	if s.store == nil {
		return nil, domain.NewError(domain.KindNotFound, "get archived session", domain.ErrSessionNotFound)
	}
	return s.store.GetSession(ctx, id)
}
