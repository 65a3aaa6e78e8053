// Package sqlite implements domain.ArchiveStore using SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/PabloGalante/needlingo/internal/domain"
)

// Store persists graded sessions and their transcripts.
type Store struct {
	db *sql.DB
}

// New opens (or creates) a SQLite database at the given path.
func New(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			id            TEXT PRIMARY KEY,
			user_id       TEXT NOT NULL,
			language      TEXT NOT NULL,
			persona_json  TEXT NOT NULL,
			grading_json  TEXT NOT NULL,
			total_score   INTEGER NOT NULL DEFAULT 0,
			level_cleared INTEGER NOT NULL DEFAULT 0,
			created_at    INTEGER NOT NULL,
			graded_at     INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_sessions_user_graded
			ON sessions(user_id, graded_at DESC);

		CREATE TABLE IF NOT EXISTS turns (
			session_id       TEXT NOT NULL,
			seq              INTEGER NOT NULL,
			id               TEXT NOT NULL,
			sender           TEXT NOT NULL,
			text             TEXT NOT NULL,
			subtext          TEXT NOT NULL DEFAULT '',
			analysis_status  TEXT NOT NULL DEFAULT '',
			analysis_json    TEXT NOT NULL DEFAULT '',
			analysis_visible INTEGER NOT NULL DEFAULT 0,
			created_at       INTEGER NOT NULL,
			PRIMARY KEY (session_id, seq),
			FOREIGN KEY (session_id) REFERENCES sessions(id)
		);
	`)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveSession writes a session and replaces its stored transcript.
func (s *Store) SaveSession(ctx context.Context, rec *domain.SessionRecord) error {
	persona, err := json.Marshal(rec.Persona)
	if err != nil {
		return fmt.Errorf("encode persona: %w", err)
	}
	grading, err := json.Marshal(rec.Grading)
	if err != nil {
		return fmt.Errorf("encode grading: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite SaveSession: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, language, persona_json, grading_json,
		                       total_score, level_cleared, created_at, graded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			grading_json = excluded.grading_json,
			total_score = excluded.total_score,
			level_cleared = excluded.level_cleared,
			graded_at = excluded.graded_at`,
		rec.ID, rec.UserID, rec.Language, string(persona), string(grading),
		rec.Grading.TotalScore, boolToInt(rec.Grading.IsLevelCleared),
		rec.CreatedAt.UnixMilli(), rec.GradedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("sqlite SaveSession: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM turns WHERE session_id = ?`, rec.ID); err != nil {
		return fmt.Errorf("sqlite SaveSession turns: %w", err)
	}
	for i, t := range rec.Turns {
		v := domain.NewTurnView(t)
		analysis := ""
		if v.Analysis != nil {
			b, err := json.Marshal(v.Analysis)
			if err != nil {
				return fmt.Errorf("encode analysis: %w", err)
			}
			analysis = string(b)
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO turns (session_id, seq, id, sender, text, subtext,
			                    analysis_status, analysis_json, analysis_visible, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, i, v.ID, v.Sender, v.Text, v.Subtext,
			v.AnalysisStatus, analysis, boolToInt(v.AnalysisVisible), v.CreatedAt.UnixMilli(),
		)
		if err != nil {
			return fmt.Errorf("sqlite SaveSession turn %d: %w", i, err)
		}
	}

	return tx.Commit()
}

// GetSession retrieves an archived session with its transcript.
func (s *Store) GetSession(ctx context.Context, id domain.SessionID) (*domain.SessionRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, language, persona_json, grading_json, created_at, graded_at
		 FROM sessions WHERE id = ?`, id,
	)
	rec, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewError(domain.KindNotFound, "get archived session", domain.ErrSessionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite GetSession: %w", err)
	}

	rec.Turns, err = s.turns(ctx, id)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ListSessionsByUser returns the user's sessions, most recently graded first.
// Transcripts are included.
func (s *Store) ListSessionsByUser(ctx context.Context, userID domain.UserID, limit int) ([]*domain.SessionRecord, error) {
	q := `SELECT id, user_id, language, persona_json, grading_json, created_at, graded_at
	      FROM sessions WHERE user_id = ? ORDER BY graded_at DESC`
	args := []any{userID}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite ListSessionsByUser: %w", err)
	}
	defer rows.Close()

	var out []*domain.SessionRecord
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite ListSessionsByUser: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, rec := range out {
		if rec.Turns, err = s.turns(ctx, rec.ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Store) turns(ctx context.Context, id domain.SessionID) (domain.Transcript, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, sender, text, subtext, analysis_status, analysis_json, analysis_visible, created_at
		 FROM turns WHERE session_id = ? ORDER BY seq ASC`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite turns: %w", err)
	}
	defer rows.Close()

	var out domain.Transcript
	for rows.Next() {
		var (
			v        domain.TurnView
			analysis string
			visible  int
			created  int64
		)
		if err := rows.Scan(&v.ID, &v.Sender, &v.Text, &v.Subtext, &v.AnalysisStatus,
			&analysis, &visible, &created); err != nil {
			return nil, fmt.Errorf("sqlite turns: %w", err)
		}
		if analysis != "" {
			v.Analysis = &domain.Analysis{}
			if err := json.Unmarshal([]byte(analysis), v.Analysis); err != nil {
				return nil, fmt.Errorf("decode analysis: %w", err)
			}
		}
		v.AnalysisVisible = visible != 0
		v.CreatedAt = time.UnixMilli(created).UTC()
		out = append(out, v.Turn())
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*domain.SessionRecord, error) {
	var (
		rec              domain.SessionRecord
		persona, grading string
		created, graded  int64
	)
	if err := row.Scan(&rec.ID, &rec.UserID, &rec.Language, &persona, &grading, &created, &graded); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(persona), &rec.Persona); err != nil {
		return nil, fmt.Errorf("decode persona: %w", err)
	}
	if err := json.Unmarshal([]byte(grading), &rec.Grading); err != nil {
		return nil, fmt.Errorf("decode grading: %w", err)
	}
	rec.CreatedAt = time.UnixMilli(created).UTC()
	rec.GradedAt = time.UnixMilli(graded).UTC()
	return &rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
