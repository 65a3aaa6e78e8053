// Package trainer wires one session manager and its controllers per player.
package trainer

import (
	"sync"

	"github.com/PabloGalante/needlingo/internal/app/conversation"
	"github.com/PabloGalante/needlingo/internal/app/grading"
	"github.com/PabloGalante/needlingo/internal/app/session"
	"github.com/PabloGalante/needlingo/internal/domain"
)

// Trainer is the active interview of one player.
type Trainer struct {
	Sessions *session.Manager
	Turns    *conversation.Service
	Grading  *grading.Service
}

// Registry hands out one Trainer per user id.
type Registry struct {
	gateway  domain.Gateway
	archive  domain.ArchiveStore
	maxTurns int

	mu       sync.Mutex
	trainers map[domain.UserID]*Trainer
}

func NewRegistry(gateway domain.Gateway, archive domain.ArchiveStore, maxTurns int) *Registry {
	return &Registry{
		gateway:  gateway,
		archive:  archive,
		maxTurns: maxTurns,
		trainers: make(map[domain.UserID]*Trainer),
	}
}

// Get returns the user's trainer, creating an idle one on first use.
func (r *Registry) Get(userID domain.UserID) *Trainer {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.trainers[userID]; ok {
		return t
	}

	mgr := session.NewManager(session.Options{UserID: userID, MaxTurns: r.maxTurns})
	grader := grading.NewService(r.gateway, mgr, r.archive)
	t := &Trainer{
		Sessions: mgr,
		Turns:    conversation.NewService(r.gateway, mgr, grader),
		Grading:  grader,
	}
	r.trainers[userID] = t
	return t
}

// MaxTurns is the turn ceiling given to every new trainer.
func (r *Registry) MaxTurns() int { return r.maxTurns }

// Lookup returns the user's trainer without creating one.
func (r *Registry) Lookup(userID domain.UserID) (*Trainer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.trainers[userID]
	return t, ok
}
