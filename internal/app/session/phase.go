package session

import (
	"fmt"

	"github.com/PabloGalante/needlingo/internal/domain"
)

// transitions lists the legal phase moves. Session creation is a reset, not a
// transition, and is allowed from any phase.
var transitions = map[domain.Phase][]domain.Phase{
	domain.PhaseIdle:         {domain.PhaseInitializing},
	domain.PhaseInitializing: {domain.PhaseGreeting, domain.PhaseIdle},
	domain.PhaseGreeting:     {domain.PhaseChatting, domain.PhaseIdle},
	domain.PhaseChatting:     {domain.PhaseGrading},
	domain.PhaseGrading:      {domain.PhaseGraded, domain.PhaseChatting},
	domain.PhaseGraded:       nil,
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to domain.Phase) bool {
	for _, p := range transitions[from] {
		if p == to {
			return true
		}
	}
	return false
}

func illegalTransition(op string, from, to domain.Phase) error {
	return domain.NewError(domain.KindInvalidState, op,
		fmt.Errorf("%w: %s -> %s", domain.ErrIllegalPhase, from, to))
}
