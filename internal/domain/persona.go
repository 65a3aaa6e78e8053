package domain

import "strings"

// Persona is the synthetic customer the user interviews.
//
// Name, Role, Problem and CurrentSolution are the surface the user always sees.
// Context, DetailedWorkflow and EmotionalTrigger are the hidden truth: they only
// reach the user through in-character dialogue.
type Persona struct {
	Name            string `json:"name"`
	Role            string `json:"role"`
	Problem         string `json:"problem"`
	CurrentSolution string `json:"currentSolution"`

	Context          string `json:"context"`
	DetailedWorkflow string `json:"detailedWorkflow"`
	EmotionalTrigger string `json:"emotionalTrigger"`
}

// PersonaProfile is the visible part of a Persona.
type PersonaProfile struct {
	Name            string `json:"name"`
	Role            string `json:"role"`
	Problem         string `json:"problem"`
	CurrentSolution string `json:"currentSolution"`
}

func (p Persona) Profile() PersonaProfile {
	return PersonaProfile{
		Name:            p.Name,
		Role:            p.Role,
		Problem:         p.Problem,
		CurrentSolution: p.CurrentSolution,
	}
}

// Validate reports the first empty attribute. Every attribute is required.
func (p Persona) Validate() error {
	fields := []struct {
		name, value string
	}{
		{"name", p.Name},
		{"role", p.Role},
		{"problem", p.Problem},
		{"currentSolution", p.CurrentSolution},
		{"context", p.Context},
		{"detailedWorkflow", p.DetailedWorkflow},
		{"emotionalTrigger", p.EmotionalTrigger},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return NewError(KindInvalidInput, "validate persona", errMissingField(f.name))
		}
	}
	return nil
}

type errMissingField string

func (e errMissingField) Error() string { return "persona field " + string(e) + " is empty" }
