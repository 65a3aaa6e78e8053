package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/PabloGalante/needlingo/internal/domain"
)

// ArchiveStore keeps graded sessions in process memory.
type ArchiveStore struct {
	mu       sync.RWMutex
	sessions map[domain.SessionID]*domain.SessionRecord
}

func NewArchiveStore() *ArchiveStore {
	return &ArchiveStore{
		sessions: make(map[domain.SessionID]*domain.SessionRecord),
	}
}

func (s *ArchiveStore) SaveSession(_ context.Context, rec *domain.SessionRecord) error {
	if rec == nil || rec.ID == "" {
		return fmt.Errorf("memory SaveSession: record without id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[rec.ID] = rec.Clone()
	return nil
}

func (s *ArchiveStore) GetSession(_ context.Context, id domain.SessionID) (*domain.SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.sessions[id]
	if !ok {
		return nil, domain.NewError(domain.KindNotFound, "get archived session", domain.ErrSessionNotFound)
	}
	return rec.Clone(), nil
}

// ListSessionsByUser returns the user's sessions, most recently graded first.
func (s *ArchiveStore) ListSessionsByUser(_ context.Context, userID domain.UserID, limit int) ([]*domain.SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.SessionRecord
	for _, rec := range s.sessions {
		if rec.UserID == userID {
			result = append(result, rec.Clone())
		}
	}

	slices.SortFunc(result, func(a, b *domain.SessionRecord) int {
		return b.GradedAt.Compare(a.GradedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
