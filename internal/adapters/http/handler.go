package httpadapter

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/samber/lo"

	"github.com/PabloGalante/needlingo/internal/app/history"
	"github.com/PabloGalante/needlingo/internal/app/trainer"
	"github.com/PabloGalante/needlingo/internal/domain"
	"github.com/PabloGalante/needlingo/internal/observability"
)

type Server struct {
	trainers    *trainer.Registry
	history     *history.Service
	defaultLang domain.Language
}

func NewServer(trainers *trainer.Registry, hist *history.Service, defaultLang domain.Language) http.Handler {
	s := &Server{
		trainers:    trainers,
		history:     hist,
		defaultLang: defaultLang,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(withRequestContext)
	r.Use(withLogging)
	r.Use(middleware.Recoverer)
	r.Use(withCORS)

	r.Get("/healthz", s.handleHealthz)

	r.Route("/users/{userID}", func(r chi.Router) {
		r.Route("/session", func(r chi.Router) {
			r.Post("/", s.handleStartSession)
			r.Get("/", s.handleGetSession)
			r.Post("/messages", s.handleSendMessage)
			r.Post("/turns/{turnID}/retry", s.handleRetryTurn)
			r.Post("/turns/{turnID}/toggle", s.handleToggleTurn)
			r.Post("/hint", s.handleHint)
			r.Post("/grade", s.handleGrade)
			r.Get("/events", s.handleSessionEvents)
		})
		r.Get("/history", s.handleListHistory)
	})
	r.Get("/history/{sessionID}", s.handleGetArchived)

	return r
}

// ─────────────────────────────────────────────
// DTOs (request/response)
// ─────────────────────────────────────────────

type startSessionRequest struct {
	Language string `json:"language,omitempty"`
}

type sendMessageRequest struct {
	Text string `json:"text"`
}

type exchangeResponse struct {
	UserTurnID  domain.TurnID     `json:"userTurnId"`
	AgentTurnID domain.TurnID     `json:"agentTurnId"`
	Analysis    domain.Analysis   `json:"analysis"`
	Reply       domain.AgentReply `json:"reply"`
	Session     domain.View       `json:"session"`
}

type hintResponse struct {
	Hint string `json:"hint"`
}

type archivedSummary struct {
	ID             domain.SessionID `json:"id"`
	Language       domain.Language  `json:"language"`
	PersonaName    string           `json:"personaName"`
	PersonaRole    string           `json:"personaRole"`
	UserTurns      int              `json:"userTurns"`
	TotalScore     int              `json:"totalScore"`
	IsLevelCleared bool             `json:"isLevelCleared"`
	CreatedAt      time.Time        `json:"createdAt"`
	GradedAt       time.Time        `json:"gradedAt"`
}

type archivedSession struct {
	ID        domain.SessionID     `json:"id"`
	UserID    domain.UserID        `json:"userId"`
	Language  domain.Language      `json:"language"`
	Persona   domain.Persona       `json:"persona"`
	Turns     []domain.TurnView    `json:"turns"`
	Grading   domain.GradingResult `json:"grading"`
	CreatedAt time.Time            `json:"createdAt"`
	GradedAt  time.Time            `json:"gradedAt"`
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
	Stage string `json:"stage,omitempty"`
}

// ─────────────────────────────────────────────
// Session handlers
// ─────────────────────────────────────────────

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(w, "invalid JSON body")
		return
	}

	lang := s.defaultLang
	if req.Language != "" {
		parsed, err := domain.ParseLanguage(req.Language)
		if err != nil {
			writeError(w, r, err)
			return
		}
		lang = parsed
	}

	view, err := s.trainer(r).Turns.StartSession(r.Context(), lang)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	t, ok := s.trainers.Lookup(domain.UserID(chi.URLParam(r, "userID")))
	if !ok {
		writeJSON(w, http.StatusOK, domain.IdleView(s.trainers.MaxTurns()))
		return
	}
	writeJSON(w, http.StatusOK, t.Turns.View())
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}

	t := s.trainer(r)
	out, err := t.Turns.SubmitUserMessage(r.Context(), req.Text)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, exchangeResponse{
		UserTurnID:  out.UserTurn,
		AgentTurnID: out.AgentTurn,
		Analysis:    out.Analysis,
		Reply:       out.Reply,
		Session:     t.Turns.View(),
	})
}

func (s *Server) handleRetryTurn(w http.ResponseWriter, r *http.Request) {
	t := s.trainer(r)
	out, err := t.Turns.RetryUserMessage(r.Context(), domain.TurnID(chi.URLParam(r, "turnID")))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, exchangeResponse{
		UserTurnID:  out.UserTurn,
		AgentTurnID: out.AgentTurn,
		Analysis:    out.Analysis,
		Reply:       out.Reply,
		Session:     t.Turns.View(),
	})
}

func (s *Server) handleToggleTurn(w http.ResponseWriter, r *http.Request) {
	t := s.trainer(r)
	if err := t.Turns.ToggleAnalysis(domain.TurnID(chi.URLParam(r, "turnID"))); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t.Turns.View())
}

func (s *Server) handleHint(w http.ResponseWriter, r *http.Request) {
	hint, err := s.trainer(r).Turns.RequestHint(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, hintResponse{Hint: hint})
}

func (s *Server) handleGrade(w http.ResponseWriter, r *http.Request) {
	result, err := s.trainer(r).Grading.Finalize(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ─────────────────────────────────────────────
// History handlers
// ─────────────────────────────────────────────

func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			badRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	recs, err := s.history.ListUserSessions(r.Context(), domain.UserID(chi.URLParam(r, "userID")), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lo.Map(recs, func(rec *domain.SessionRecord, _ int) archivedSummary {
		return toArchivedSummary(rec)
	}))
}

func (s *Server) handleGetArchived(w http.ResponseWriter, r *http.Request) {
	rec, err := s.history.GetSession(r.Context(), domain.SessionID(chi.URLParam(r, "sessionID")))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toArchivedSession(rec))
}

// ─────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────

func (s *Server) trainer(r *http.Request) *trainer.Trainer {
	return s.trainers.Get(domain.UserID(chi.URLParam(r, "userID")))
}

func toArchivedSummary(rec *domain.SessionRecord) archivedSummary {
	return archivedSummary{
		ID:             rec.ID,
		Language:       rec.Language,
		PersonaName:    rec.Persona.Name,
		PersonaRole:    rec.Persona.Role,
		UserTurns:      rec.Turns.UserTurns(),
		TotalScore:     rec.Grading.TotalScore,
		IsLevelCleared: rec.Grading.IsLevelCleared,
		CreatedAt:      rec.CreatedAt,
		GradedAt:       rec.GradedAt,
	}
}

func toArchivedSession(rec *domain.SessionRecord) archivedSession {
	return archivedSession{
		ID:        rec.ID,
		UserID:    rec.UserID,
		Language:  rec.Language,
		Persona:   rec.Persona,
		Turns:     lo.Map(rec.Turns, func(t domain.Turn, _ int) domain.TurnView { return domain.NewTurnView(t) }),
		Grading:   rec.Grading,
		CreatedAt: rec.CreatedAt,
		GradedAt:  rec.GradedAt,
	}
}

// statusFor maps a domain error kind to an HTTP status.
func statusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindInvalidInput:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindInvalidState, domain.KindSuperseded:
		return http.StatusConflict
	case domain.KindGeneration, domain.KindChatTurn, domain.KindGrading, domain.KindHint:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := domain.KindOf(err)
	status := statusFor(kind)

	log := observability.LoggerFromContext(r.Context())
	if status >= http.StatusInternalServerError {
		log.Error("request failed", "kind", kind, "error", err)
	} else {
		log.Warn("request rejected", "kind", kind, "error", err)
	}

	if status == http.StatusInternalServerError {
		writeJSON(w, status, errorResponse{Error: "internal server error"})
		return
	}
	writeJSON(w, status, errorResponse{
		Error: err.Error(),
		Kind:  string(kind),
		Stage: domain.StageOf(err),
	})
}

func decodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{
		Error: msg,
		Kind:  string(domain.KindInvalidInput),
	})
}
