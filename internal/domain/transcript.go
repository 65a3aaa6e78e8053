package domain

import (
	"time"

	"github.com/samber/lo"
)

// AnalysisStatus tracks the back-fill of a user turn's Analysis.
type AnalysisStatus string

const (
	AnalysisPending AnalysisStatus = "pending"
	AnalysisReady   AnalysisStatus = "ready"
	AnalysisFailed  AnalysisStatus = "failed"
)

// Analysis is the coach's critique of one user question.
// Score is nominally 0-100 but is not clamped.
type Analysis struct {
	Subtext           string `json:"subtext"`
	Feedback          string `json:"feedback"`
	Score             int    `json:"score"`
	BetterAlternative string `json:"betterAlternative,omitempty"`
}

// AgentReply is an in-character line plus its psychological subtext.
type AgentReply struct {
	Text    string `json:"text"`
	Subtext string `json:"subtext"`
}

// TurnBody is the sender-specific payload of a Turn: *UserTurn or *AgentTurn.
type TurnBody interface {
	Sender() Sender
	clone() TurnBody
}

// UserTurn carries the analysis of a question. Analysis is nil until it resolves.
type UserTurn struct {
	Status   AnalysisStatus
	Analysis *Analysis
}

func (*UserTurn) Sender() Sender { return SenderUser }

func (u *UserTurn) clone() TurnBody {
	c := *u
	if u.Analysis != nil {
		a := *u.Analysis
		c.Analysis = &a
	}
	return &c
}

// AgentTurn is a persona reply. Agent turns are never scored.
type AgentTurn struct {
	Subtext string
}

func (*AgentTurn) Sender() Sender { return SenderAgent }

func (a *AgentTurn) clone() TurnBody {
	c := *a
	return &c
}

// Turn is one entry of the transcript.
type Turn struct {
	ID              TurnID
	Text            string
	CreatedAt       time.Time
	AnalysisVisible bool
	Body            TurnBody
}

func (t Turn) Sender() Sender { return t.Body.Sender() }

// User returns the user payload, or nil for agent turns.
func (t Turn) User() *UserTurn {
	u, _ := t.Body.(*UserTurn)
	return u
}

// Agent returns the agent payload, or nil for user turns.
func (t Turn) Agent() *AgentTurn {
	a, _ := t.Body.(*AgentTurn)
	return a
}

// Clone returns a deep copy safe to hand out of the session lock.
func (t Turn) Clone() Turn {
	c := t
	if t.Body != nil {
		c.Body = t.Body.clone()
	}
	return c
}

// Transcript is the ordered, append-only list of turns of a session.
type Transcript []Turn

// UserTurns counts turns authored by the user.
func (tr Transcript) UserTurns() int {
	return lo.CountBy(tr, func(t Turn) bool { return t.Sender() == SenderUser })
}

// Index returns the position of the turn with the given id, or -1.
func (tr Transcript) Index(id TurnID) int {
	_, idx, ok := lo.FindIndexOf(tr, func(t Turn) bool { return t.ID == id })
	if !ok {
		return -1
	}
	return idx
}

func (tr Transcript) Clone() Transcript {
	return lo.Map(tr, func(t Turn, _ int) Turn { return t.Clone() })
}
