// Package session holds the state of the single active interview of a player
// and guards every transition of its lifecycle.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/PabloGalante/needlingo/internal/domain"
)

// Options configures a Manager. Zero values fall back to defaults.
type Options struct {
	UserID   domain.UserID
	MaxTurns int
	Now      func() time.Time
	NewID    func() string
}

// Manager owns one active session at a time. Results of asynchronous gateway
// calls are applied with the SessionID they were issued for; once a newer
// session exists those results are rejected instead of being applied.
type Manager struct {
	mu sync.Mutex

	userID   domain.UserID
	maxTurns int
	now      func() time.Time
	newID    func() string

	id        domain.SessionID
	phase     domain.Phase
	lang      domain.Language
	persona   *domain.Persona
	turns     domain.Transcript
	grading   *domain.GradingResult
	pending   domain.TurnID
	createdAt time.Time

	// user-turn count at the last automatic grading trigger
	autoGradedAt int

	ctx    context.Context
	cancel context.CancelFunc

	subs    map[int]chan domain.View
	nextSub int
}

func NewManager(opts Options) *Manager {
	if opts.MaxTurns <= 0 {
		opts.MaxTurns = domain.DefaultMaxTurns
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Manager{
		userID:   opts.UserID,
		maxTurns: opts.MaxTurns,
		now:      opts.Now,
		newID:    opts.NewID,
		phase:    domain.PhaseIdle,
		subs:     make(map[int]chan domain.View),
	}
}

func (m *Manager) UserID() domain.UserID { return m.userID }

func (m *Manager) MaxTurns() int { return m.maxTurns }

// CreateSession discards whatever session exists, cancels its in-flight calls
// and starts a new one in PhaseInitializing. The returned context lives until
// the session is replaced or its bootstrap fails.
func (m *Manager) CreateSession(lang domain.Language) (domain.SessionID, context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel != nil {
		m.cancel()
	}
	m.ctx, m.cancel = context.WithCancel(context.Background())

	m.id = domain.SessionID(m.newID())
	m.phase = domain.PhaseInitializing
	m.lang = lang
	m.persona = nil
	m.turns = nil
	m.grading = nil
	m.pending = ""
	m.autoGradedAt = 0
	m.createdAt = m.now()

	m.publishLocked()
	return m.id, m.ctx
}

func (m *Manager) Phase() domain.Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

func (m *Manager) SessionID() domain.SessionID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.id
}

// TurnsUsed counts the user turns of the current transcript.
func (m *Manager) TurnsUsed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.turns.UserTurns()
}

// CallContext derives the context for a gateway call made on behalf of
// session id. It keeps the caller's values but is cancelled only when the
// session is replaced or aborted, so a caller going away does not abort it.
func (m *Manager) CallContext(caller context.Context, id domain.SessionID) (context.Context, context.CancelFunc, error) {
	m.mu.Lock()
	sessionCtx := m.ctx
	err := m.checkLocked("call context", id)
	m.mu.Unlock()
	if err != nil {
		return nil, nil, err
	}

	ctx, cancel := context.WithCancel(context.WithoutCancel(caller))
	stop := context.AfterFunc(sessionCtx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}, nil
}

func (m *Manager) View() domain.View {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.viewLocked()
}

// Transition moves the session identified by id to another phase. Moving back
// to PhaseIdle drops everything built so far.
func (m *Manager) Transition(id domain.SessionID, to domain.Phase) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkLocked("transition", id); err != nil {
		return err
	}
	if err := m.transitionLocked("transition", to); err != nil {
		return err
	}
	m.publishLocked()
	return nil
}

// SetPersona stores the generated persona and moves on to the greeting.
func (m *Manager) SetPersona(id domain.SessionID, p domain.Persona) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	const op = "set persona"
	if err := m.checkLocked(op, id); err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return err
	}
	if err := m.transitionLocked(op, domain.PhaseGreeting); err != nil {
		return err
	}
	m.persona = &p
	m.publishLocked()
	return nil
}

// AppendUserTurn validates and appends a question. Its analysis stays pending
// until AttachAnalysis or FailAnalysis is called with the returned id.
func (m *Manager) AppendUserTurn(text string) (domain.SessionID, domain.TurnID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	const op = "append user turn"
	if strings.TrimSpace(text) == "" {
		return "", "", domain.NewError(domain.KindInvalidInput, op, domain.ErrEmptyMessage)
	}
	if m.phase != domain.PhaseChatting {
		return "", "", domain.NewError(domain.KindInvalidState, op,
			fmt.Errorf("cannot send a message while %s", m.phase))
	}
	if m.pending != "" {
		return "", "", domain.NewError(domain.KindInvalidState, op, domain.ErrReplyPending)
	}

	turn := domain.Turn{
		ID:        domain.TurnID(m.newID()),
		Text:      text,
		CreatedAt: m.now(),
		Body:      &domain.UserTurn{Status: domain.AnalysisPending},
	}
	m.turns = append(m.turns, turn)
	m.pending = turn.ID
	m.publishLocked()
	return m.id, turn.ID, nil
}

// AttachAnalysis back-fills the analysis of a user turn. It fails with a
// NotFound error, and changes nothing, when the turn is not part of the
// current session.
func (m *Manager) AttachAnalysis(id domain.SessionID, turnID domain.TurnID, a domain.Analysis) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, err := m.userTurnLocked("attach analysis", id, turnID)
	if err != nil {
		return err
	}
	u.Status = domain.AnalysisReady
	u.Analysis = &a
	m.publishLocked()
	return nil
}

// FailAnalysis marks a user turn whose reply could not be produced. The turn
// stays in the transcript and may be retried.
func (m *Manager) FailAnalysis(id domain.SessionID, turnID domain.TurnID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, err := m.userTurnLocked("fail analysis", id, turnID)
	if err != nil {
		return err
	}
	if u.Status == domain.AnalysisPending {
		u.Status = domain.AnalysisFailed
	}
	if m.pending == turnID {
		m.pending = ""
	}
	m.publishLocked()
	return nil
}

// BeginRetry re-arms a failed user turn so its reply can be requested again.
func (m *Manager) BeginRetry(turnID domain.TurnID) (domain.SessionID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	const op = "retry user turn"
	if m.phase != domain.PhaseChatting {
		return "", domain.NewError(domain.KindInvalidState, op,
			fmt.Errorf("cannot retry while %s", m.phase))
	}
	if m.pending != "" {
		return "", domain.NewError(domain.KindInvalidState, op, domain.ErrReplyPending)
	}
	u, err := m.userTurnLocked(op, m.id, turnID)
	if err != nil {
		return "", err
	}
	if u.Status != domain.AnalysisFailed {
		return "", domain.NewError(domain.KindInvalidState, op,
			fmt.Errorf("turn %s analysis is %s", turnID, u.Status))
	}
	u.Status = domain.AnalysisPending
	m.pending = turnID
	m.publishLocked()
	return m.id, nil
}

// AppendAgentTurn appends a persona reply. Any pending user turn is settled by it.
func (m *Manager) AppendAgentTurn(id domain.SessionID, reply domain.AgentReply) (domain.TurnID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	const op = "append agent turn"
	if err := m.checkLocked(op, id); err != nil {
		return "", err
	}
	switch m.phase {
	case domain.PhaseInitializing, domain.PhaseGreeting, domain.PhaseChatting:
	default:
		return "", domain.NewError(domain.KindInvalidState, op,
			fmt.Errorf("cannot append a reply while %s", m.phase))
	}

	turn := domain.Turn{
		ID:        domain.TurnID(m.newID()),
		Text:      reply.Text,
		CreatedAt: m.now(),
		Body:      &domain.AgentTurn{Subtext: reply.Subtext},
	}
	m.turns = append(m.turns, turn)
	m.pending = ""
	m.publishLocked()
	return turn.ID, nil
}

// ToggleTurnVisibility flips the presentation-only analysis flag of a turn.
func (m *Manager) ToggleTurnVisibility(turnID domain.TurnID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.turns.Index(turnID)
	if idx < 0 {
		return domain.NewError(domain.KindNotFound, "toggle turn", domain.ErrTurnNotFound)
	}
	m.turns[idx].AnalysisVisible = !m.turns[idx].AnalysisVisible
	m.publishLocked()
	return nil
}

// ChatRequest builds the gateway request for the given user turn, using only
// the turns that precede it as history.
func (m *Manager) ChatRequest(id domain.SessionID, turnID domain.TurnID) (domain.ChatRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	const op = "chat request"
	if err := m.checkLocked(op, id); err != nil {
		return domain.ChatRequest{}, err
	}
	if m.persona == nil {
		return domain.ChatRequest{}, domain.NewError(domain.KindInvalidState, op, domain.ErrNoPersona)
	}
	idx := m.turns.Index(turnID)
	if idx < 0 {
		return domain.ChatRequest{}, domain.NewError(domain.KindNotFound, op, domain.ErrTurnNotFound)
	}
	return domain.ChatRequest{
		History:  m.turns[:idx].Clone(),
		UserText: m.turns[idx].Text,
		Persona:  *m.persona,
		Language: m.lang,
	}, nil
}

// HintRequest snapshots what the hint call needs. It never mutates the session.
func (m *Manager) HintRequest() (domain.SessionID, domain.HintRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	const op = "hint request"
	if m.phase != domain.PhaseChatting {
		return "", domain.HintRequest{}, domain.NewError(domain.KindInvalidState, op,
			fmt.Errorf("no hint while %s", m.phase))
	}
	if m.persona == nil {
		return "", domain.HintRequest{}, domain.NewError(domain.KindInvalidState, op, domain.ErrNoPersona)
	}
	return m.id, domain.HintRequest{
		History:  m.turns.Clone(),
		Persona:  *m.persona,
		Language: m.lang,
	}, nil
}

// BeginGrading moves a chatting session with at least one user turn to PhaseGrading.
func (m *Manager) BeginGrading() (domain.SessionID, domain.GradingRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	const op = "begin grading"
	if m.phase != domain.PhaseChatting {
		return "", domain.GradingRequest{}, illegalTransition(op, m.phase, domain.PhaseGrading)
	}
	if m.turns.UserTurns() == 0 {
		return "", domain.GradingRequest{}, domain.NewError(domain.KindInvalidState, op, domain.ErrNoUserTurns)
	}
	if m.pending != "" {
		return "", domain.GradingRequest{}, domain.NewError(domain.KindInvalidState, op, domain.ErrReplyPending)
	}
	return m.startGradingLocked()
}

// BeginAutoGrading starts grading when the user-turn ceiling has been reached
// at a count that has not triggered grading before. It reports false when
// nothing was started.
func (m *Manager) BeginAutoGrading() (domain.SessionID, domain.GradingRequest, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	used := m.turns.UserTurns()
	if m.phase != domain.PhaseChatting || m.pending != "" || used < m.maxTurns || used == m.autoGradedAt {
		return "", domain.GradingRequest{}, false
	}
	m.autoGradedAt = used
	id, req, err := m.startGradingLocked()
	if err != nil {
		return "", domain.GradingRequest{}, false
	}
	return id, req, true
}

func (m *Manager) startGradingLocked() (domain.SessionID, domain.GradingRequest, error) {
	if err := m.transitionLocked("begin grading", domain.PhaseGrading); err != nil {
		return "", domain.GradingRequest{}, err
	}
	req := domain.GradingRequest{
		History:  m.turns.Clone(),
		Persona:  *m.persona,
		Language: m.lang,
	}
	m.publishLocked()
	return m.id, req, nil
}

// CompleteGrading stores the result and ends the session.
func (m *Manager) CompleteGrading(id domain.SessionID, result domain.GradingResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	const op = "complete grading"
	if err := m.checkLocked(op, id); err != nil {
		return err
	}
	if err := m.transitionLocked(op, domain.PhaseGraded); err != nil {
		return err
	}
	g := result.Clone()
	m.grading = &g
	m.publishLocked()
	return nil
}

// FailGrading returns the session to PhaseChatting with its transcript intact.
func (m *Manager) FailGrading(id domain.SessionID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	const op = "fail grading"
	if err := m.checkLocked(op, id); err != nil {
		return err
	}
	if err := m.transitionLocked(op, domain.PhaseChatting); err != nil {
		return err
	}
	m.publishLocked()
	return nil
}

// Grading returns the result of a graded session.
func (m *Manager) Grading() (*domain.GradingResult, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.grading == nil {
		return nil, false
	}
	g := m.grading.Clone()
	return &g, true
}

// Record returns the archive form of a graded session.
func (m *Manager) Record(id domain.SessionID) (*domain.SessionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	const op = "record"
	if err := m.checkLocked(op, id); err != nil {
		return nil, err
	}
	if m.phase != domain.PhaseGraded || m.grading == nil || m.persona == nil {
		return nil, domain.NewError(domain.KindInvalidState, op,
			fmt.Errorf("session is %s", m.phase))
	}
	return &domain.SessionRecord{
		ID:        m.id,
		UserID:    m.userID,
		Language:  m.lang,
		Persona:   *m.persona,
		Turns:     m.turns.Clone(),
		Grading:   m.grading.Clone(),
		CreatedAt: m.createdAt,
		GradedAt:  m.now(),
	}, nil
}

// Subscribe returns a channel receiving a View after every mutation. Views are
// dropped for subscribers that fall behind. The returned func unsubscribes.
func (m *Manager) Subscribe(buffer int) (<-chan domain.View, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan domain.View, buffer)

	m.mu.Lock()
	key := m.nextSub
	m.nextSub++
	m.subs[key] = ch
	m.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, key)
			m.mu.Unlock()
			close(ch)
		})
	}
}

// --- internal helpers --- //

func (m *Manager) checkLocked(op string, id domain.SessionID) error {
	if id == "" || id != m.id {
		return domain.NewError(domain.KindSuperseded, op, domain.ErrSessionNotFound)
	}
	return nil
}

func (m *Manager) transitionLocked(op string, to domain.Phase) error {
	if !CanTransition(m.phase, to) {
		return illegalTransition(op, m.phase, to)
	}
	m.phase = to
	if to == domain.PhaseIdle {
		if m.cancel != nil {
			m.cancel()
		}
		m.id = ""
		m.persona = nil
		m.turns = nil
		m.grading = nil
		m.pending = ""
	}
	return nil
}

func (m *Manager) userTurnLocked(op string, id domain.SessionID, turnID domain.TurnID) (*domain.UserTurn, error) {
	if id == "" || id != m.id {
		return nil, domain.NewError(domain.KindNotFound, op, domain.ErrTurnNotFound)
	}
	idx := m.turns.Index(turnID)
	if idx < 0 {
		return nil, domain.NewError(domain.KindNotFound, op, domain.ErrTurnNotFound)
	}
	u := m.turns[idx].User()
	if u == nil {
		return nil, domain.NewError(domain.KindNotFound, op,
			fmt.Errorf("turn %s is not a user turn", turnID))
	}
	return u, nil
}

func (m *Manager) viewLocked() domain.View {
	used := m.turns.UserTurns()
	v := domain.View{
		SessionID:   m.id,
		Phase:       m.phase,
		Language:    m.lang,
		Turns:       lo.Map(m.turns, func(t domain.Turn, _ int) domain.TurnView { return domain.NewTurnView(t) }),
		TurnsUsed:   used,
		TurnsLeft:   domain.RemainingTurns(m.maxTurns, used),
		MaxTurns:    m.maxTurns,
		PendingTurn: m.pending,
	}
	if m.persona != nil {
		p := m.persona.Profile()
		v.Persona = &p
	}
	if m.grading != nil {
		g := m.grading.Clone()
		v.Grading = &g
	}
	return v
}

func (m *Manager) publishLocked() {
	if len(m.subs) == 0 {
		return
	}
	v := m.viewLocked()
	for _, ch := range m.subs {
		select {
		case ch <- v:
		default:
		}
	}
}
