package session_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/PabloGalante/needlingo/internal/app/session"
	"github.com/PabloGalante/needlingo/internal/domain"
)

func testPersona() domain.Persona {
	return domain.Persona{
		Name:             "Alice",
		Role:             "Clinic manager",
		Problem:          "Scheduling nurses",
		CurrentSolution:  "A shared spreadsheet",
		Context:          "Runs three clinics",
		DetailedWorkflow: "Edits the sheet every Sunday night",
		EmotionalTrigger: "Last-minute sick calls",
	}
}

func newManager(t *testing.T, maxTurns int) *session.Manager {
	t.Helper()
	n := 0
	return session.NewManager(session.Options{
		UserID:   "u1",
		MaxTurns: maxTurns,
		NewID: func() string {
			n++
			return fmt.Sprintf("id-%d", n)
		},
	})
}

// chatting returns a manager in PhaseChatting with persona and greeting set.
func chatting(t *testing.T, maxTurns int) (*session.Manager, domain.SessionID) {
	t.Helper()
	m := newManager(t, maxTurns)
	id, _ := m.CreateSession(domain.LanguageEnglish)
	if err := m.SetPersona(id, testPersona()); err != nil {
		t.Fatalf("SetPersona: %v", err)
	}
	if _, err := m.AppendAgentTurn(id, domain.AgentReply{Text: "Hi", Subtext: "busy"}); err != nil {
		t.Fatalf("AppendAgentTurn: %v", err)
	}
	if err := m.Transition(id, domain.PhaseChatting); err != nil {
		t.Fatalf("Transition: %v", err)
	}
	return m, id
}

func exchange(t *testing.T, m *session.Manager, text string) domain.TurnID {
	t.Helper()
	id, turnID, err := m.AppendUserTurn(text)
	if err != nil {
		t.Fatalf("AppendUserTurn: %v", err)
	}
	if err := m.AttachAnalysis(id, turnID, domain.Analysis{Subtext: "s", Feedback: "f", Score: 70}); err != nil {
		t.Fatalf("AttachAnalysis: %v", err)
	}
	if _, err := m.AppendAgentTurn(id, domain.AgentReply{Text: "reply", Subtext: "s"}); err != nil {
		t.Fatalf("AppendAgentTurn: %v", err)
	}
	return turnID
}

func TestBootstrapPhases(t *testing.T) {
	m := newManager(t, 0)
	if m.Phase() != domain.PhaseIdle {
		t.Fatalf("expected idle, got %s", m.Phase())
	}

	id, ctx := m.CreateSession(domain.LanguageChinese)
	if m.Phase() != domain.PhaseInitializing {
		t.Fatalf("expected initializing, got %s", m.Phase())
	}
	if ctx.Err() != nil {
		t.Fatalf("session context should be live")
	}

	if err := m.SetPersona(id, testPersona()); err != nil {
		t.Fatalf("SetPersona: %v", err)
	}
	v := m.View()
	if v.Phase != domain.PhaseGreeting || v.Persona == nil || v.Persona.Name != "Alice" {
		t.Fatalf("unexpected view after persona: %+v", v)
	}
	if v.MaxTurns != domain.DefaultMaxTurns || v.TurnsLeft != domain.DefaultMaxTurns {
		t.Fatalf("unexpected turn counters: %+v", v)
	}
}

func TestSetPersonaRejectsBlankField(t *testing.T) {
	m := newManager(t, 0)
	id, _ := m.CreateSession(domain.LanguageEnglish)
	p := testPersona()
	p.EmotionalTrigger = "  "
	err := m.SetPersona(id, p)
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if m.Phase() != domain.PhaseInitializing {
		t.Fatalf("phase changed on invalid persona: %s", m.Phase())
	}
}

func TestCreateSessionSupersedesPrevious(t *testing.T) {
	m := newManager(t, 0)
	old, oldCtx := m.CreateSession(domain.LanguageEnglish)
	fresh, _ := m.CreateSession(domain.LanguageEnglish)

	if old == fresh {
		t.Fatalf("expected a new session id")
	}
	if oldCtx.Err() == nil {
		t.Fatalf("old session context should be cancelled")
	}
	if err := m.SetPersona(old, testPersona()); !errors.Is(err, domain.ErrSuperseded) {
		t.Fatalf("expected superseded, got %v", err)
	}
	if m.Phase() != domain.PhaseInitializing {
		t.Fatalf("stale result changed phase: %s", m.Phase())
	}
}

func TestTransitionToIdleClearsSession(t *testing.T) {
	m := newManager(t, 0)
	id, ctx := m.CreateSession(domain.LanguageEnglish)
	if err := m.Transition(id, domain.PhaseIdle); err != nil {
		t.Fatalf("Transition: %v", err)
	}
	v := m.View()
	if v.Phase != domain.PhaseIdle || v.SessionID != "" || v.Persona != nil || len(v.Turns) != 0 {
		t.Fatalf("expected cleared view, got %+v", v)
	}
	if ctx.Err() == nil {
		t.Fatalf("expected context cancelled on abort")
	}
}

func TestIllegalTransitions(t *testing.T) {
	m, id := chatting(t, 0)

	if err := m.Transition(id, domain.PhaseIdle); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("chatting -> idle should be illegal, got %v", err)
	}
	if err := m.Transition(id, domain.PhaseGraded); !errors.Is(err, domain.ErrIllegalPhase) {
		t.Fatalf("chatting -> graded should be illegal, got %v", err)
	}

	tests := []struct {
		from, to domain.Phase
		want     bool
	}{
		{domain.PhaseIdle, domain.PhaseInitializing, true},
		{domain.PhaseInitializing, domain.PhaseChatting, false},
		{domain.PhaseGreeting, domain.PhaseChatting, true},
		{domain.PhaseGrading, domain.PhaseChatting, true},
		{domain.PhaseGraded, domain.PhaseChatting, false},
	}
	for _, tt := range tests {
		if got := session.CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestAppendUserTurnGuards(t *testing.T) {
	m := newManager(t, 0)
	m.CreateSession(domain.LanguageEnglish)
	if _, _, err := m.AppendUserTurn("hello"); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected invalid state before chatting, got %v", err)
	}

	m, _ = chatting(t, 0)
	if _, _, err := m.AppendUserTurn("   "); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for blank text, got %v", err)
	}

	if _, _, err := m.AppendUserTurn("How did you handle it last week?"); err != nil {
		t.Fatalf("AppendUserTurn: %v", err)
	}
	_, _, err := m.AppendUserTurn("second")
	if !errors.Is(err, domain.ErrReplyPending) {
		t.Fatalf("expected pending reply error, got %v", err)
	}

	v := m.View()
	if v.TurnsUsed != 1 || v.PendingTurn == "" {
		t.Fatalf("unexpected view: %+v", v)
	}
	last := v.Turns[len(v.Turns)-1]
	if last.Sender != domain.SenderUser || last.AnalysisStatus != domain.AnalysisPending || last.Analysis != nil {
		t.Fatalf("unexpected pending turn: %+v", last)
	}
}

func TestAttachAnalysisUnknownTurn(t *testing.T) {
	m, id := chatting(t, 0)
	err := m.AttachAnalysis(id, "missing", domain.Analysis{Score: 10})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	_, turnID, _ := m.AppendUserTurn("q")
	m.CreateSession(domain.LanguageEnglish)
	if err := m.AttachAnalysis(id, turnID, domain.Analysis{Score: 10}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found for stale session, got %v", err)
	}
}

func TestFailAnalysisAndRetry(t *testing.T) {
	m, id := chatting(t, 0)
	_, turnID, _ := m.AppendUserTurn("Would you buy this?")

	if _, err := m.BeginRetry(turnID); !errors.Is(err, domain.ErrReplyPending) {
		t.Fatalf("retry while pending should fail, got %v", err)
	}
	if err := m.FailAnalysis(id, turnID); err != nil {
		t.Fatalf("FailAnalysis: %v", err)
	}
	v := m.View()
	if v.PendingTurn != "" || v.Turns[len(v.Turns)-1].AnalysisStatus != domain.AnalysisFailed {
		t.Fatalf("unexpected view after failure: %+v", v)
	}
	if v.TurnsUsed != 1 {
		t.Fatalf("failed turn should still count, got %d", v.TurnsUsed)
	}

	if _, err := m.BeginRetry(turnID); err != nil {
		t.Fatalf("BeginRetry: %v", err)
	}
	req, err := m.ChatRequest(id, turnID)
	if err != nil {
		t.Fatalf("ChatRequest: %v", err)
	}
	if req.UserText != "Would you buy this?" || len(req.History) != 1 {
		t.Fatalf("unexpected chat request: %+v", req)
	}
}

func TestToggleTurnVisibility(t *testing.T) {
	m, _ := chatting(t, 0)
	turnID := exchange(t, m, "q")

	if err := m.ToggleTurnVisibility(turnID); err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	v := m.View()
	idx := -1
	for i, tv := range v.Turns {
		if tv.ID == turnID {
			idx = i
		}
	}
	if idx < 0 || !v.Turns[idx].AnalysisVisible {
		t.Fatalf("expected visible analysis, got %+v", v.Turns)
	}
	if err := m.ToggleTurnVisibility("nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestBeginGradingRequiresUserTurn(t *testing.T) {
	m, _ := chatting(t, 0)
	if _, _, err := m.BeginGrading(); !errors.Is(err, domain.ErrNoUserTurns) {
		t.Fatalf("expected no user turns error, got %v", err)
	}

	exchange(t, m, "q")
	id, req, err := m.BeginGrading()
	if err != nil {
		t.Fatalf("BeginGrading: %v", err)
	}
	if m.Phase() != domain.PhaseGrading || len(req.History) != 3 {
		t.Fatalf("unexpected grading state: %s %d", m.Phase(), len(req.History))
	}

	if err := m.FailGrading(id); err != nil {
		t.Fatalf("FailGrading: %v", err)
	}
	if m.Phase() != domain.PhaseChatting || m.TurnsUsed() != 1 {
		t.Fatalf("expected chatting with intact transcript")
	}

	if _, _, err := m.BeginGrading(); err != nil {
		t.Fatalf("BeginGrading again: %v", err)
	}
	result := domain.GradingResult{TotalScore: 72, IsLevelCleared: true, Summary: "ok"}
	if err := m.CompleteGrading(id, result); err != nil {
		t.Fatalf("CompleteGrading: %v", err)
	}
	g, ok := m.Grading()
	if !ok || g.TotalScore != 72 || m.Phase() != domain.PhaseGraded {
		t.Fatalf("unexpected graded state")
	}

	rec, err := m.Record(id)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if rec.UserID != "u1" || rec.Persona.Name != "Alice" || len(rec.Turns) != 3 {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestAutoGradingFiresOncePerCount(t *testing.T) {
	m, id := chatting(t, 2)

	exchange(t, m, "one")
	if _, _, ok := m.BeginAutoGrading(); ok {
		t.Fatalf("auto grading below ceiling")
	}
	exchange(t, m, "two")

	v := m.View()
	if v.TurnsLeft != 0 {
		t.Fatalf("expected 0 turns left, got %d", v.TurnsLeft)
	}

	gid, _, ok := m.BeginAutoGrading()
	if !ok || gid != id {
		t.Fatalf("expected auto grading to start")
	}
	if err := m.FailGrading(id); err != nil {
		t.Fatalf("FailGrading: %v", err)
	}
	if _, _, ok := m.BeginAutoGrading(); ok {
		t.Fatalf("auto grading fired twice at the same count")
	}

	exchange(t, m, "three")
	if m.View().TurnsLeft != 0 {
		t.Fatalf("turns left must not go negative")
	}
	if _, _, ok := m.BeginAutoGrading(); !ok {
		t.Fatalf("expected auto grading after a further exchange")
	}
}

func TestSubscribeReceivesViews(t *testing.T) {
	m := newManager(t, 0)
	ch, unsubscribe := m.Subscribe(4)

	m.CreateSession(domain.LanguageEnglish)
	v := <-ch
	if v.Phase != domain.PhaseInitializing {
		t.Fatalf("expected initializing view, got %s", v.Phase)
	}

	unsubscribe()
	unsubscribe()
	if _, ok := <-ch; ok {
		t.Fatalf("expected closed channel")
	}
}
