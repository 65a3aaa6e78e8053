package domain

import "time"

// View is the read model handed to presentation layers. It never carries the
// hidden persona attributes.
type View struct {
	SessionID   SessionID       `json:"sessionId,omitempty"`
	Phase       Phase           `json:"phase"`
	Language    Language        `json:"language,omitempty"`
	Persona     *PersonaProfile `json:"persona,omitempty"`
	Turns       []TurnView      `json:"turns"`
	TurnsUsed   int             `json:"turnsUsed"`
	TurnsLeft   int             `json:"turnsLeft"`
	MaxTurns    int             `json:"maxTurns"`
	PendingTurn TurnID          `json:"pendingTurn,omitempty"`
	Grading     *GradingResult  `json:"grading,omitempty"`
}

// TurnView flattens a Turn for rendering.
type TurnView struct {
	ID              TurnID         `json:"id"`
	Sender          Sender         `json:"sender"`
	Text            string         `json:"text"`
	CreatedAt       time.Time      `json:"createdAt"`
	AnalysisVisible bool           `json:"analysisVisible"`
	AnalysisStatus  AnalysisStatus `json:"analysisStatus,omitempty"`
	Analysis        *Analysis      `json:"analysis,omitempty"`
	Subtext         string         `json:"subtext,omitempty"`
}

func NewTurnView(t Turn) TurnView {
	v := TurnView{
		ID:              t.ID,
		Sender:          t.Sender(),
		Text:            t.Text,
		CreatedAt:       t.CreatedAt,
		AnalysisVisible: t.AnalysisVisible,
	}
	switch b := t.Body.(type) {
	case *UserTurn:
		v.AnalysisStatus = b.Status
		if b.Analysis != nil {
			a := *b.Analysis
			v.Analysis = &a
		}
	case *AgentTurn:
		v.Subtext = b.Subtext
	}
	return v
}

// IdleView is what a player sees before starting any session.
func IdleView(maxTurns int) View {
	return View{
		Phase:     PhaseIdle,
		Turns:     []TurnView{},
		TurnsLeft: maxTurns,
		MaxTurns:  maxTurns,
	}
}

// RemainingTurns is max(0, ceiling - used).
func RemainingTurns(ceiling, used int) int {
	return max(0, ceiling-used)
}

// Turn rebuilds the transcript entry a TurnView was made from.
func (v TurnView) Turn() Turn {
	t := Turn{
		ID:              v.ID,
		Text:            v.Text,
		CreatedAt:       v.CreatedAt,
		AnalysisVisible: v.AnalysisVisible,
	}
	if v.Sender == SenderUser {
		u := &UserTurn{Status: v.AnalysisStatus}
		if v.Analysis != nil {
			a := *v.Analysis
			u.Analysis = &a
		}
		t.Body = u
	} else {
		t.Body = &AgentTurn{Subtext: v.Subtext}
	}
	return t
}
