package domain

import "time"

// SessionRecord is a graded session as kept in the archive. Unlike a View it
// includes the hidden persona, since the interview is over.
type SessionRecord struct {
	ID        SessionID
	UserID    UserID
	Language  Language
	Persona   Persona
	Turns     Transcript
	Grading   GradingResult
	CreatedAt time.Time
	GradedAt  time.Time
}

func (r *SessionRecord) Clone() *SessionRecord {
	c := *r
	c.Turns = r.Turns.Clone()
	c.Grading = r.Grading.Clone()
	return &c
}
