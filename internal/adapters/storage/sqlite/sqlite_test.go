package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/PabloGalante/needlingo/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	store, err := New(dbPath)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

func testRecord(id string, user domain.UserID, gradedAt time.Time) *domain.SessionRecord {
	created := gradedAt.Add(-10 * time.Minute)
	return &domain.SessionRecord{
		ID:       domain.SessionID(id),
		UserID:   user,
		Language: domain.LanguageEnglish,
		Persona: domain.Persona{
			Name: "Alice", Role: "Nurse", Problem: "too much paperwork", CurrentSolution: "sticky notes",
			Context: "night shifts", DetailedWorkflow: "copies notes at 6am", EmotionalTrigger: "audits",
		},
		Turns: domain.Transcript{
			{ID: "t1", Text: "Hi, just finishing some charts.", CreatedAt: created,
				Body: &domain.AgentTurn{Subtext: "distracted"}},
			{ID: "t2", Text: "Would you use an app for this?", CreatedAt: created.Add(time.Minute), AnalysisVisible: true,
				Body: &domain.UserTurn{Status: domain.AnalysisReady, Analysis: &domain.Analysis{
					Subtext: "pitch", Feedback: "hypothetical", Score: 10, BetterAlternative: "When did this last happen?",
				}}},
			{ID: "t3", Text: "Sure, maybe.", CreatedAt: created.Add(2 * time.Minute),
				Body: &domain.AgentTurn{Subtext: "polite"}},
		},
		Grading: domain.GradingResult{
			TotalScore:     -5,
			IsLevelCleared: false,
			LevelFeedback:  "Pitching.",
			Strengths:      []string{},
			Weaknesses:     []string{"future questions"},
			LineByLineAnalysis: []domain.LineFeedback{
				{OriginalText: "Would you use an app for this?", Score: -5, Reason: "pitch"},
			},
		},
		CreatedAt: created,
		GradedAt:  gradedAt,
	}
}

func TestSaveAndGetSession(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	now := time.Now().UTC().Truncate(time.Millisecond)
	rec := testRecord("s1", "u1", now)
	if err := store.SaveSession(ctx, rec); err != nil {
		t.Fatalf("save session: %v", err)
	}

	got, err := store.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got.UserID != "u1" || got.Persona.EmotionalTrigger != "audits" || !got.GradedAt.Equal(now) {
		t.Fatalf("unexpected session: %+v", got)
	}
	if got.Grading.TotalScore != -5 || len(got.Grading.LineByLineAnalysis) != 1 {
		t.Fatalf("unexpected grading: %+v", got.Grading)
	}
	if len(got.Turns) != 3 || got.Turns.UserTurns() != 1 {
		t.Fatalf("unexpected turns: %+v", got.Turns)
	}

	user := got.Turns[1]
	if !user.AnalysisVisible || user.User() == nil || user.User().Analysis.Score != 10 {
		t.Fatalf("unexpected user turn: %+v", user)
	}
	if got.Turns[2].Agent() == nil || got.Turns[2].Agent().Subtext != "polite" {
		t.Fatalf("unexpected agent turn: %+v", got.Turns[2])
	}

	// saving again replaces the transcript instead of duplicating it
	if err := store.SaveSession(ctx, rec); err != nil {
		t.Fatalf("save session again: %v", err)
	}
	got, err = store.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if len(got.Turns) != 3 {
		t.Fatalf("expected 3 turns after re-save, got %d", len(got.Turns))
	}
}

func TestGetSessionNotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.GetSession(context.Background(), "missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListSessionsByUser(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	base := time.Now().UTC().Truncate(time.Millisecond)
	for i := 0; i < 3; i++ {
		rec := testRecord(fmt.Sprintf("s%d", i), "u1", base.Add(time.Duration(i)*time.Hour))
		if err := store.SaveSession(ctx, rec); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}
	if err := store.SaveSession(ctx, testRecord("other", "u2", base)); err != nil {
		t.Fatalf("save other: %v", err)
	}

	recs, err := store.ListSessionsByUser(ctx, "u1", 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(recs))
	}
	if recs[0].ID != "s2" || recs[1].ID != "s1" {
		t.Fatalf("expected newest first, got %s, %s", recs[0].ID, recs[1].ID)
	}
	if len(recs[0].Turns) != 3 {
		t.Fatalf("expected transcripts to be loaded")
	}
}
