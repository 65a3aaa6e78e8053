package history_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/PabloGalante/needlingo/internal/adapters/storage/memory"
	"github.com/PabloGalante/needlingo/internal/app/history"
	"github.com/PabloGalante/needlingo/internal/domain"
)

func TestListUserSessionsDefaultLimit(t *testing.T) {
	ctx := context.Background()
	store := memory.NewArchiveStore()
	base := time.Now()

	for i := 0; i < 25; i++ {
		err := store.SaveSession(ctx, &domain.SessionRecord{
			ID:       domain.SessionID(fmt.Sprintf("s%02d", i)),
			UserID:   "u1",
			GradedAt: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("SaveSession: %v", err)
		}
	}

	svc := history.NewService(store)
	recs, err := svc.ListUserSessions(ctx, "u1", 0)
	if err != nil {
		t.Fatalf("ListUserSessions: %v", err)
	}
	if len(recs) != 20 {
		t.Fatalf("expected default limit of 20, got %d", len(recs))
	}
	if recs[0].ID != "s24" {
		t.Fatalf("expected newest first, got %s", recs[0].ID)
	}

	if _, err := svc.GetSession(ctx, "s03"); err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if _, err := svc.GetSession(ctx, "nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestNilStore(t *testing.T) {
	svc := history.NewService(nil)
	recs, err := svc.ListUserSessions(context.Background(), "u1", 5)
	if err != nil || len(recs) != 0 {
		t.Fatalf("expected empty list, got %v %v", recs, err)
	}
}
