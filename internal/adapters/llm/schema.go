package llm

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"

	"github.com/PabloGalante/needlingo/internal/domain"
)

// Response shapes of the five gateway calls. Fields without omitempty are
// required.

type personaOutput struct {
	Name             string `json:"name"`
	Role             string `json:"role"`
	Problem          string `json:"problem" jsonschema:"description=Surface level problem statement."`
	CurrentSolution  string `json:"currentSolution" jsonschema:"description=Surface level workaround."`
	Context          string `json:"context" jsonschema:"description=Brief context about their situation."`
	DetailedWorkflow string `json:"detailedWorkflow" jsonschema:"description=The HIDDEN truth. A specific step-by-step story of what they actually do. Contains the real pain."`
	EmotionalTrigger string `json:"emotionalTrigger" jsonschema:"description=The specific thing that makes them angry or frustrated in that workflow."`
}

type replyOutput struct {
	Text    string `json:"text"`
	Subtext string `json:"subtext"`
}

type analysisOutput struct {
	Subtext           string `json:"subtext" jsonschema:"description=Psychological interpretation."`
	Feedback          string `json:"feedback" jsonschema:"description=Critique."`
	Score             int    `json:"score" jsonschema:"description=0-100 Score."`
	BetterAlternative string `json:"betterAlternative" jsonschema:"description=A better question to ask."`
}

type greetingOutput struct {
	AIResponse replyOutput `json:"aiResponse"`
}

type chatOutput struct {
	UserAnalysis analysisOutput `json:"userAnalysis"`
	AIResponse   replyOutput    `json:"aiResponse"`
}

type hintOutput struct {
	Hint string `json:"hint"`
}

type lineOutput struct {
	OriginalText      string `json:"originalText"`
	Score             int    `json:"score"`
	Reason            string `json:"reason"`
	BetterAlternative string `json:"betterAlternative,omitempty"`
}

type gradingOutput struct {
	TotalScore         int          `json:"totalScore"`
	IsLevelCleared     bool         `json:"isLevelCleared" jsonschema:"description=True if they found the detailedWorkflow or real pain AND secured a commitment."`
	LevelFeedback      string       `json:"levelFeedback" jsonschema:"description=Short explanation of why they won or lost."`
	Summary            string       `json:"summary"`
	Strengths          []string     `json:"strengths"`
	Weaknesses         []string     `json:"weaknesses"`
	LineByLineAnalysis []lineOutput `json:"lineByLineAnalysis"`
}

func (o gradingOutput) result() *domain.GradingResult {
	lines := make([]domain.LineFeedback, 0, len(o.LineByLineAnalysis))
	for _, l := range o.LineByLineAnalysis {
		lines = append(lines, domain.LineFeedback(l))
	}
	return &domain.GradingResult{
		TotalScore:         o.TotalScore,
		IsLevelCleared:     o.IsLevelCleared,
		LevelFeedback:      o.LevelFeedback,
		Summary:            o.Summary,
		Strengths:          o.Strengths,
		Weaknesses:         o.Weaknesses,
		LineByLineAnalysis: lines,
	}
}

var (
	personaSchema  = reflectSchema[personaOutput]()
	greetingSchema = reflectSchema[greetingOutput]()
	chatSchema     = reflectSchema[chatOutput]()
	hintSchema     = reflectSchema[hintOutput]()
	gradingSchema  = reflectSchema[gradingOutput]()
)

func reflectSchema[T any]() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return reflector.Reflect(v)
}

// schemaMap renders s as a plain JSON object without the meta keywords
// function-calling APIs reject.
func schemaMap(s *jsonschema.Schema) (map[string]any, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	delete(m, "$schema")
	delete(m, "$id")
	return m, nil
}

// ErrSchemaViolation is returned when model output does not match the
// requested schema.
var ErrSchemaViolation = errors.New("model output does not match schema")

// decodeStrict parses raw into out after checking it against s: every
// required property must be present at every level and every value must have
// the declared JSON type. Markdown code fences around the document are ignored.
func decodeStrict(raw string, s *jsonschema.Schema, out any) error {
	raw = stripFences(raw)

	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("%w: invalid JSON: %v", ErrSchemaViolation, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data after JSON document", ErrSchemaViolation)
	}

	if s != nil {
		if err := validate(v, s, "$"); err != nil {
			return err
		}
	}

	if err := json.NewDecoder(bytes.NewReader([]byte(raw))).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrSchemaViolation, err)
	}
	return nil
}

func validate(v any, s *jsonschema.Schema, path string) error {
	mismatch := func(want string) error {
		return fmt.Errorf("%w: %s must be %s", ErrSchemaViolation, path, want)
	}

	switch s.Type {
	case "object":
		m, ok := v.(map[string]any)
		if !ok {
			return mismatch("an object")
		}
		for _, name := range s.Required {
			if _, ok := m[name]; !ok {
				return fmt.Errorf("%w: %s.%s is required", ErrSchemaViolation, path, name)
			}
		}
		if s.Properties == nil {
			return nil
		}
		for p := s.Properties.Oldest(); p != nil; p = p.Next() {
			val, ok := m[p.Key]
			if !ok {
				continue
			}
			if err := validate(val, p.Value, path+"."+p.Key); err != nil {
				return err
			}
		}
	case "array":
		items, ok := v.([]any)
		if !ok {
			return mismatch("an array")
		}
		if s.Items == nil {
			return nil
		}
		for i, item := range items {
			if err := validate(item, s.Items, fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
	case "string":
		if _, ok := v.(string); !ok {
			return mismatch("a string")
		}
	case "integer":
		n, ok := v.(json.Number)
		if !ok {
			return mismatch("an integer")
		}
		if _, err := n.Int64(); err != nil {
			return mismatch("an integer")
		}
	case "number":
		if _, ok := v.(json.Number); !ok {
			return mismatch("a number")
		}
	case "boolean":
		if _, ok := v.(bool); !ok {
			return mismatch("a boolean")
		}
	}
	return nil
}

func stripFences(raw string) string {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "```") {
		return raw
	}
	if i := strings.IndexByte(raw, '\n'); i >= 0 {
		raw = raw[i+1:]
	} else {
		raw = strings.TrimPrefix(raw, "```")
	}
	raw = strings.TrimSpace(raw)
	raw = strings.TrimSuffix(raw, "```")
	return strings.TrimSpace(raw)
}
