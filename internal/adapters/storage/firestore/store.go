package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/PabloGalante/needlingo/internal/domain"
)

type Store struct {
	client *firestore.Client
}

// NewStore creates a Firestore archive store.
// Uses the project passed (NEEDLINGO_GCP_PROJECT).
func NewStore(ctx context.Context, projectID string) (*Store, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required for Firestore store")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}

	return &Store{client: client}, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

// ─────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────

func (s *Store) sessionsCol() *firestore.CollectionRef {
	return s.client.Collection("sessions")
}

func (s *Store) sessionDoc(id domain.SessionID) *firestore.DocumentRef {
	return s.sessionsCol().Doc(string(id))
}

func (s *Store) turnsCol(sessionID domain.SessionID) *firestore.CollectionRef {
	return s.sessionDoc(sessionID).Collection("turns")
}

// ─────────────────────────────────────────
// Firestore Types
// ─────────────────────────────────────────

type personaDoc struct {
	Name             string `firestore:"name"`
	Role             string `firestore:"role"`
	Problem          string `firestore:"problem"`
	CurrentSolution  string `firestore:"current_solution"`
	Context          string `firestore:"context"`
	DetailedWorkflow string `firestore:"detailed_workflow"`
	EmotionalTrigger string `firestore:"emotional_trigger"`
}

type lineDoc struct {
	OriginalText      string `firestore:"original_text"`
	Score             int    `firestore:"score"`
	Reason            string `firestore:"reason"`
	BetterAlternative string `firestore:"better_alternative"`
}

type gradingDoc struct {
	TotalScore     int       `firestore:"total_score"`
	IsLevelCleared bool      `firestore:"is_level_cleared"`
	LevelFeedback  string    `firestore:"level_feedback"`
	Summary        string    `firestore:"summary"`
	Strengths      []string  `firestore:"strengths"`
	Weaknesses     []string  `firestore:"weaknesses"`
	Lines          []lineDoc `firestore:"line_by_line"`
}

type sessionDoc struct {
	UserID    string     `firestore:"user_id"`
	Language  string     `firestore:"language"`
	Persona   personaDoc `firestore:"persona"`
	Grading   gradingDoc `firestore:"grading"`
	CreatedAt time.Time  `firestore:"created_at"`
	GradedAt  time.Time  `firestore:"graded_at"`
}

type analysisDoc struct {
	Subtext           string `firestore:"subtext"`
	Feedback          string `firestore:"feedback"`
	Score             int    `firestore:"score"`
	BetterAlternative string `firestore:"better_alternative"`
}

type turnDoc struct {
	Seq             int          `firestore:"seq"`
	Sender          string       `firestore:"sender"`
	Text            string       `firestore:"text"`
	Subtext         string       `firestore:"subtext"`
	AnalysisStatus  string       `firestore:"analysis_status"`
	Analysis        *analysisDoc `firestore:"analysis"`
	AnalysisVisible bool         `firestore:"analysis_visible"`
	CreatedAt       time.Time    `firestore:"created_at"`
}

// ─────────────────────────────────────────
// ArchiveStore implementation
// ─────────────────────────────────────────

// SaveSession writes the session document and its turns in one batch.
func (s *Store) SaveSession(ctx context.Context, rec *domain.SessionRecord) error {
	batch := s.client.Batch()
	batch.Set(s.sessionDoc(rec.ID), toSessionDoc(rec))

	for i, t := range rec.Turns {
		batch.Set(s.turnsCol(rec.ID).Doc(string(t.ID)), toTurnDoc(i, t))
	}

	if _, err := batch.Commit(ctx); err != nil {
		return fmt.Errorf("firestore SaveSession: %w", err)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, id domain.SessionID) (*domain.SessionRecord, error) {
	snap, err := s.sessionDoc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, domain.NewError(domain.KindNotFound, "get archived session", domain.ErrSessionNotFound)
		}
		return nil, fmt.Errorf("firestore GetSession: %w", err)
	}

	var doc sessionDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("firestore GetSession decode: %w", err)
	}

	rec := fromSessionDoc(id, doc)
	if rec.Turns, err = s.turns(ctx, id); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Store) ListSessionsByUser(ctx context.Context, userID domain.UserID, limit int) ([]*domain.SessionRecord, error) {
	q := s.sessionsCol().Where("user_id", "==", string(userID)).OrderBy("graded_at", firestore.Desc)
	if limit > 0 {
		q = q.Limit(limit)
	}

	iter := q.Documents(ctx)
	defer iter.Stop()

	var out []*domain.SessionRecord
	for {
		snap, err := iter.Next()
		if err != nil {
			if err == iterator.Done {
				break
			}
			return nil, fmt.Errorf("firestore ListSessionsByUser: %w", err)
		}

		var doc sessionDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode sessionDoc: %w", err)
		}

		rec := fromSessionDoc(domain.SessionID(snap.Ref.ID), doc)
		if rec.Turns, err = s.turns(ctx, rec.ID); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *Store) turns(ctx context.Context, sessionID domain.SessionID) (domain.Transcript, error) {
	iter := s.turnsCol(sessionID).OrderBy("seq", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	var out domain.Transcript
	for {
		snap, err := iter.Next()
		if err != nil {
			if err == iterator.Done {
				break
			}
			return nil, fmt.Errorf("firestore turns: %w", err)
		}

		var doc turnDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode turnDoc: %w", err)
		}
		out = append(out, fromTurnDoc(domain.TurnID(snap.Ref.ID), doc))
	}
	return out, nil
}

// ─────────────────────────────────────────
// Mapping
// ─────────────────────────────────────────

func toSessionDoc(rec *domain.SessionRecord) sessionDoc {
	p := rec.Persona
	g := rec.Grading

	lines := make([]lineDoc, 0, len(g.LineByLineAnalysis))
	for _, l := range g.LineByLineAnalysis {
		lines = append(lines, lineDoc(l))
	}

	return sessionDoc{
		UserID:   string(rec.UserID),
		Language: string(rec.Language),
		Persona:  personaDoc(p),
		Grading: gradingDoc{
			TotalScore:     g.TotalScore,
			IsLevelCleared: g.IsLevelCleared,
			LevelFeedback:  g.LevelFeedback,
			Summary:        g.Summary,
			Strengths:      g.Strengths,
			Weaknesses:     g.Weaknesses,
			Lines:          lines,
		},
		CreatedAt: rec.CreatedAt,
		GradedAt:  rec.GradedAt,
	}
}

func fromSessionDoc(id domain.SessionID, doc sessionDoc) *domain.SessionRecord {
	lines := make([]domain.LineFeedback, 0, len(doc.Grading.Lines))
	for _, l := range doc.Grading.Lines {
		lines = append(lines, domain.LineFeedback(l))
	}

	return &domain.SessionRecord{
		ID:       id,
		UserID:   domain.UserID(doc.UserID),
		Language: domain.Language(doc.Language),
		Persona:  domain.Persona(doc.Persona),
		Grading: domain.GradingResult{
			TotalScore:         doc.Grading.TotalScore,
			IsLevelCleared:     doc.Grading.IsLevelCleared,
			LevelFeedback:      doc.Grading.LevelFeedback,
			Summary:            doc.Grading.Summary,
			Strengths:          doc.Grading.Strengths,
			Weaknesses:         doc.Grading.Weaknesses,
			LineByLineAnalysis: lines,
		},
		CreatedAt: doc.CreatedAt,
		GradedAt:  doc.GradedAt,
	}
}

func toTurnDoc(seq int, t domain.Turn) turnDoc {
	v := domain.NewTurnView(t)
	doc := turnDoc{
		Seq:             seq,
		Sender:          string(v.Sender),
		Text:            v.Text,
		Subtext:         v.Subtext,
		AnalysisStatus:  string(v.AnalysisStatus),
		AnalysisVisible: v.AnalysisVisible,
		CreatedAt:       v.CreatedAt,
	}
	if v.Analysis != nil {
		a := analysisDoc(*v.Analysis)
		doc.Analysis = &a
	}
	return doc
}

func fromTurnDoc(id domain.TurnID, doc turnDoc) domain.Turn {
	v := domain.TurnView{
		ID:              id,
		Sender:          domain.Sender(doc.Sender),
		Text:            doc.Text,
		CreatedAt:       doc.CreatedAt,
		AnalysisVisible: doc.AnalysisVisible,
		AnalysisStatus:  domain.AnalysisStatus(doc.AnalysisStatus),
		Subtext:         doc.Subtext,
	}
	if doc.Analysis != nil {
		a := domain.Analysis(*doc.Analysis)
		v.Analysis = &a
	}
	return v.Turn()
}
